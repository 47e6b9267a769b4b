// Package adapter defines the notification boundary for finished measurements.
//
// Adapters publish a completion event to a downstream system once a
// measurement session reaches Completed. Publishing is best effort; the
// session result does not depend on it.
package adapter

import (
	"context"
	"time"
)

// EventVersion is the version of the event payload shape.
const EventVersion = "1"

// EventTypeMeasurementCompleted is the only event type published.
const EventTypeMeasurementCompleted = "measurement_completed"

// MeasurementCompletedEvent is the payload published when a session completes.
type MeasurementCompletedEvent struct {
	Version         string `json:"version"`
	EventType       string `json:"event_type"` // always "measurement_completed"
	MeasurementID   string `json:"measurement_id"`
	StudyID         string `json:"study_id"`
	SessionID       string `json:"session_id"`
	Mode            string `json:"mode"` // websocket or rest
	ChunksSent      int    `json:"chunks_sent"`
	ResultsReceived int    `json:"results_received"`
	DurationMs      int64  `json:"duration_ms"`
	Timestamp       string `json:"timestamp"` // RFC 3339
}

// NewMeasurementCompletedEvent fills the fixed fields of an event.
func NewMeasurementCompletedEvent(measurementID, studyID, sessionID, mode string, chunks, results int, d time.Duration, at time.Time) *MeasurementCompletedEvent {
	return &MeasurementCompletedEvent{
		Version:         EventVersion,
		EventType:       EventTypeMeasurementCompleted,
		MeasurementID:   measurementID,
		StudyID:         studyID,
		SessionID:       sessionID,
		Mode:            mode,
		ChunksSent:      chunks,
		ResultsReceived: results,
		DurationMs:      d.Milliseconds(),
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes completion events to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *MeasurementCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
