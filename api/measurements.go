package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

const measurementsPath = "measurements"

// ChunkData is the REST data-submission body.
type ChunkData struct {
	ChunkOrder int    `json:"ChunkOrder"`
	Action     string `json:"Action"`
	StartTime  string `json:"StartTime"`
	EndTime    string `json:"EndTime"`
	Duration   string `json:"Duration"`
	// Meta and Payload are base64 (standard alphabet).
	Meta    string `json:"Meta"`
	Payload string `json:"Payload"`
}

// NewChunkData builds the submission body for c.
func NewChunkData(c *types.Chunk) ChunkData {
	return ChunkData{
		ChunkOrder: c.Order,
		Action:     string(c.Action),
		StartTime:  types.FormatSeconds(c.StartTime),
		EndTime:    types.FormatSeconds(c.EndTime),
		Duration:   types.FormatSeconds(c.Duration),
		Meta:       base64.StdEncoding.EncodeToString(c.Metadata),
		Payload:    base64.StdEncoding.EncodeToString(c.Payload),
	}
}

// MeasurementRecord is a measurement as returned by list and retrieve.
type MeasurementRecord struct {
	ID            string `json:"ID" yaml:"id"`
	StudyID       string `json:"StudyID" yaml:"study_id"`
	UserProfileID string `json:"UserProfileID,omitempty" yaml:"user_profile_id,omitempty"`
	PartnerID     string `json:"PartnerID,omitempty" yaml:"partner_id,omitempty"`
	StatusID      string `json:"StatusID" yaml:"status_id"`
	Resolution    int    `json:"Resolution" yaml:"resolution"`
	Created       int64  `json:"Created" yaml:"created"`
	Updated       int64  `json:"Updated,omitempty" yaml:"updated,omitempty"`
	// Results is present when retrieved with ExpandResults.
	Results json.RawMessage `json:"Results,omitempty" yaml:"-"`
}

// ListOptions filters a measurement listing. Zero values are omitted.
type ListOptions struct {
	Date            string
	EndDate         string
	UserProfileID   string
	UserProfileName string
	StudyID         string
	StatusID        string
	PartnerID       string
	Limit           int
	Offset          int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("Date", o.Date)
	set("EndDate", o.EndDate)
	set("UserProfileID", o.UserProfileID)
	set("UserProfileName", o.UserProfileName)
	set("StudyID", o.StudyID)
	set("StatusID", o.StatusID)
	set("PartnerID", o.PartnerID)
	limit := o.Limit
	if limit <= 0 {
		limit = 50
	}
	q.Set("Limit", strconv.Itoa(limit))
	q.Set("Offset", strconv.Itoa(o.Offset))
	return q
}

// CreateMeasurement creates a measurement and returns it with its
// server-assigned ID.
func (c *Client) CreateMeasurement(ctx context.Context, req types.CreateRequest) (*types.Measurement, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp struct {
		ID string `json:"ID"`
	}
	if err := c.Post(ctx, measurementsPath, req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("create measurement: response has no ID")
	}
	return &types.Measurement{
		ID:            resp.ID,
		StudyID:       req.StudyID,
		Resolution:    req.Resolution,
		UserProfileID: req.UserProfileID,
		PartnerID:     req.PartnerID,
	}, nil
}

// AddData submits one chunk and returns the server-assigned chunk ID.
func (c *Client) AddData(ctx context.Context, measurementID string, chunk *types.Chunk) (string, error) {
	var resp struct {
		ID string `json:"ID"`
	}
	if err := c.Post(ctx, measurementPath(measurementID, "data"), NewChunkData(chunk), &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ListMeasurements lists measurements matching opts.
func (c *Client) ListMeasurements(ctx context.Context, opts ListOptions) ([]MeasurementRecord, error) {
	var out []MeasurementRecord
	if err := c.Get(ctx, measurementsPath, opts.query(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrieveMeasurement fetches one measurement. With expand set, results are
// included.
func (c *Client) RetrieveMeasurement(ctx context.Context, measurementID string, expand bool) (*MeasurementRecord, error) {
	q := url.Values{}
	if expand {
		q.Set("ExpandResults", "true")
	}
	var out MeasurementRecord
	if err := c.Get(ctx, measurementPath(measurementID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMeasurement deletes a measurement.
func (c *Client) DeleteMeasurement(ctx context.Context, measurementID string) error {
	return c.Delete(ctx, measurementPath(measurementID), nil)
}

// RetrieveResult fetches the result at index. ready is false when the server
// has nothing for that index yet (empty body or an empty JSON object).
func (c *Client) RetrieveResult(ctx context.Context, measurementID string, index int) (json.RawMessage, bool, error) {
	path := measurementPath(measurementID, "results", strconv.Itoa(index))
	status, body, err := c.DoStatus(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, false, err
	}
	if status < 200 || status >= 300 {
		return nil, false, &StatusError{Code: status, Method: http.MethodGet, Path: path, Body: truncate(body)}
	}
	if isEmptyResult(body) {
		return nil, false, nil
	}
	if !json.Valid(body) {
		return nil, false, fmt.Errorf("GET %s: result is not valid JSON", path)
	}
	return json.RawMessage(body), true, nil
}

func isEmptyResult(body []byte) bool {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil && len(obj) == 0 {
		return true
	}
	return false
}

func measurementPath(id string, rest ...string) string {
	p := measurementsPath + "/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func truncate(body []byte) []byte {
	if len(body) > maxErrorBody {
		return body[:maxErrorBody]
	}
	return body
}
