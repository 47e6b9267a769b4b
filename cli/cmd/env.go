package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/config"
	"github.com/nuralogix/dfx-apiv2-client-go/log"
)

// env is the per-invocation state shared by commands.
type env struct {
	settings  *config.Settings
	store     *config.Store
	sessionID string
	logger    *log.Logger
	restURL   string
	wsURL     string
}

// loadEnv reads the settings file (optional) and the credential store.
func loadEnv(c *cli.Context) (*env, error) {
	settings := &config.Settings{}
	if path := c.String("settings"); path != "" {
		s, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		settings = s
	}

	credsPath := c.String("config")
	if !c.IsSet("config") && settings.CredentialsFile != "" {
		credsPath = settings.CredentialsFile
	}
	store, err := config.LoadStore(credsPath)
	if err != nil {
		return nil, err
	}
	creds := store.Credentials()

	level := settings.Log.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	if level == "" {
		level = "info"
	}

	e := &env{
		settings:  settings,
		store:     store,
		sessionID: uuid.NewString(),
		restURL:   firstNonEmpty(c.String("rest-url"), settings.RestURL, creds.RestURL, api.DefaultBaseURL),
		wsURL:     firstNonEmpty(c.String("ws-url"), settings.WSURL, creds.WSURL, api.DefaultWebSocketURL),
	}
	e.logger = log.NewLoggerWithWriter(log.SessionMeta{
		SessionID: e.sessionID,
		StudyID:   creds.SelectedStudy,
		Mode:      settings.Measure.Mode,
	}, errWriter(c), log.ParseLevel(level))
	return e, nil
}

// errNoToken is returned by commands that need credentials when none are stored.
var errNoToken = errors.New("no device or user token in the credentials file")

// client builds the REST collaborator. When requireToken is set a missing
// token is an error.
func (e *env) client(requireToken bool) (*api.Client, error) {
	token := e.store.Credentials().Token()
	if requireToken && token == "" {
		return nil, fmt.Errorf("%w (%s)", errNoToken, e.store.Path())
	}
	return api.New(api.Config{
		BaseURL: e.restURL,
		Token:   token,
		Timeout: e.settings.Timeout.Duration,
	})
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
