// Package types defines the domain types shared by the DFX measurement client.
//
//nolint:revive // types is a common Go package naming convention
package types

import "errors"

// Resolution selects how the server processes a measurement.
// The value is passed through to the API unchanged.
type Resolution int

// ResolutionBatch is the default resolution used when none is requested.
const ResolutionBatch Resolution = 0

// Measurement is a server-side aggregate that accumulates chunks.
// The ID is assigned by the server on create and is immutable afterwards.
type Measurement struct {
	// ID is the server-assigned measurement identifier.
	ID string `json:"id" yaml:"id"`
	// StudyID is the study the measurement was created against.
	StudyID string `json:"study_id" yaml:"study_id"`
	// Resolution is the processing mode requested at create time.
	Resolution Resolution `json:"resolution" yaml:"resolution"`
	// UserProfileID is the optional owning profile.
	UserProfileID string `json:"user_profile_id,omitempty" yaml:"user_profile_id,omitempty"`
	// PartnerID is the optional partner identifier.
	PartnerID string `json:"partner_id,omitempty" yaml:"partner_id,omitempty"`
}

// CreateRequest carries the parameters of a measurement create call.
type CreateRequest struct {
	StudyID       string
	Resolution    Resolution
	UserProfileID string
	PartnerID     string
}

// ErrNoStudy is returned when a measurement is requested without a study.
var ErrNoStudy = errors.New("no study selected")

// Validate checks that a study has been selected.
func (r *CreateRequest) Validate() error {
	if r.StudyID == "" {
		return ErrNoStudy
	}
	return nil
}
