package types

import (
	"encoding/json"
	"time"
)

// Result is one decoded result message delivered for a measurement.
type Result struct {
	// MeasurementID is the measurement the result belongs to.
	MeasurementID string `json:"measurement_id" yaml:"measurement_id"`
	// RequestID is the correlation id the result arrived under.
	RequestID string `json:"request_id" yaml:"request_id"`
	// Index is the zero-based arrival position among matched results.
	Index int `json:"index" yaml:"index"`
	// Status is the wire status code (WebSocket) or HTTP status (polling).
	Status int `json:"status" yaml:"status"`
	// ReceivedAt is the local receive time.
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
	// Body is the decoded JSON result document.
	Body json.RawMessage `json:"body" yaml:"-"`
}

// Fields decodes the result body into a generic map.
func (r *Result) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return nil, err
	}
	return m, nil
}
