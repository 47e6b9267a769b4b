package types

// Version is the canonical client version.
// The CLI, the library and the registration identifier sent to the API
// share this version.
const Version = "0.3.0"

// AppID is the application identifier reported alongside Version.
const AppID = "DFXCLIENT"
