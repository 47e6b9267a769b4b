package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxTotalDurationSeconds is the ceiling on declared measurement duration
// (duration_s * number_chunks).
const MaxTotalDurationSeconds = 120.0

// PropertyRecord is the declarative properties file that accompanies a
// payload file.
type PropertyRecord struct {
	// NumberChunks is the total number of chunks in the measurement.
	NumberChunks int `json:"number_chunks"`
	// ChunkNumber is this chunk's ordinal.
	ChunkNumber int `json:"chunk_number"`
	// DurationS is the declared duration. Derived from the start and end
	// times when absent.
	DurationS *float64 `json:"duration_s,omitempty"`
	// StartTimeS is the optional start offset.
	StartTimeS *float64 `json:"start_time_s,omitempty"`
	// EndTimeS is the optional end offset.
	EndTimeS *float64 `json:"end_time_s,omitempty"`
}

// ParsePropertyRecord decodes and validates a properties document.
// A missing duration_s is filled in as end_time_s - start_time_s.
func ParsePropertyRecord(data []byte) (*PropertyRecord, error) {
	var rec PropertyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid properties JSON: %w", err)
	}

	if rec.NumberChunks < 1 {
		return nil, fmt.Errorf("number_chunks must be >= 1, got %d", rec.NumberChunks)
	}
	if rec.ChunkNumber < 0 || rec.ChunkNumber >= rec.NumberChunks {
		return nil, fmt.Errorf("chunk_number %d out of range [0, %d)", rec.ChunkNumber, rec.NumberChunks)
	}

	if rec.DurationS == nil {
		if rec.StartTimeS == nil || rec.EndTimeS == nil {
			return nil, errors.New("properties need duration_s or both start_time_s and end_time_s")
		}
		d := *rec.EndTimeS - *rec.StartTimeS
		rec.DurationS = &d
	}
	if *rec.DurationS < 0 {
		return nil, fmt.Errorf("duration_s must be >= 0, got %g", *rec.DurationS)
	}

	return &rec, nil
}

// Duration returns the declared (or derived) duration in seconds.
func (p *PropertyRecord) Duration() float64 {
	if p.DurationS == nil {
		return 0
	}
	return *p.DurationS
}

// TotalDuration returns duration_s * number_chunks.
func (p *PropertyRecord) TotalDuration() float64 {
	return p.Duration() * float64(p.NumberChunks)
}

// Times returns the start and end offsets of the chunk. Offsets missing
// from the record are derived from the ordinal and the duration.
func (p *PropertyRecord) Times() (start, end float64) {
	d := p.Duration()
	start = float64(p.ChunkNumber) * d
	if p.StartTimeS != nil {
		start = *p.StartTimeS
	}
	end = start + d
	if p.EndTimeS != nil {
		end = *p.EndTimeS
	}
	return start, end
}
