package api

import (
	"context"
	"net/url"
)

const studiesPath = "studies"

// Study is a study definition.
type Study struct {
	ID              string `json:"ID" yaml:"id"`
	Name            string `json:"Name" yaml:"name"`
	Description     string `json:"Description,omitempty" yaml:"description,omitempty"`
	StatusID        string `json:"StatusID" yaml:"status_id"`
	StudyTemplateID string `json:"StudyTemplateID,omitempty" yaml:"study_template_id,omitempty"`
	Participants    int    `json:"Participants,omitempty" yaml:"participants,omitempty"`
	Created         int64  `json:"Created,omitempty" yaml:"created,omitempty"`
}

// RetrieveStudy fetches one study.
func (c *Client) RetrieveStudy(ctx context.Context, studyID string) (*Study, error) {
	var out Study
	if err := c.Get(ctx, studiesPath+"/"+url.PathEscape(studyID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStudies lists studies, optionally filtered by status.
func (c *Client) ListStudies(ctx context.Context, status string) ([]Study, error) {
	q := url.Values{}
	if status != "" {
		q.Set("Status", status)
	}
	var out []Study
	if err := c.Get(ctx, studiesPath, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
