package capture

import (
	"errors"
	"io"
	"sort"
	"strconv"

	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// Frame is a decoded view of a captured frame header.
type Frame struct {
	Seq       int64  `json:"seq" yaml:"seq"`
	Direction string `json:"direction" yaml:"direction"`
	At        string `json:"at" yaml:"at"`
	Action    string `json:"action,omitempty" yaml:"action,omitempty"`
	Status    int    `json:"status,omitempty" yaml:"status,omitempty"`
	RequestID string `json:"request_id" yaml:"request_id"`
	BodyBytes int    `json:"body_bytes" yaml:"body_bytes"`
	// Error is set when the frame header could not be decoded.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Describe decodes the wire header of rec.
func Describe(rec *Record) Frame {
	f := Frame{
		Seq:       rec.Seq,
		Direction: string(rec.Direction),
		At:        rec.At.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if err := wire.CheckMessageType(rec.MessageType); err != nil {
		f.Error = err.Error()
		f.BodyBytes = len(rec.Frame)
		return f
	}

	switch rec.Direction {
	case Outbound:
		action, requestID, body, err := wire.DecodeRequest(rec.Frame)
		if err != nil {
			f.Error = err.Error()
			return f
		}
		f.Action, f.RequestID, f.BodyBytes = string(action), requestID, len(body)
	default:
		status, requestID, payload, err := wire.DecodeResponse(rec.Frame)
		f.Status, f.RequestID, f.BodyBytes = status, requestID, len(payload)
		if err != nil {
			f.Error = err.Error()
		}
	}
	return f
}

// Summary aggregates a capture file.
type Summary struct {
	Records   int            `json:"records" yaml:"records"`
	Outbound  int            `json:"outbound" yaml:"outbound"`
	Inbound   int            `json:"inbound" yaml:"inbound"`
	ByAction  map[string]int `json:"by_action" yaml:"by_action"`
	ByStatus  map[string]int `json:"by_status" yaml:"by_status"`
	Errors    int            `json:"errors" yaml:"errors"`
	Truncated bool           `json:"truncated" yaml:"truncated"`
}

// Inspect reads every record from r, describing each and summarizing the
// whole file. A truncated tail is reported in the summary, not as an error.
func Inspect(r io.Reader) ([]Frame, *Summary, error) {
	reader := NewReader(r)
	sum := &Summary{ByAction: map[string]int{}, ByStatus: map[string]int{}}
	var frames []Frame

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if IsTruncated(err) {
			sum.Truncated = true
			break
		}
		if err != nil {
			return frames, sum, err
		}

		f := Describe(rec)
		frames = append(frames, f)
		sum.Records++
		if rec.Direction == Outbound {
			sum.Outbound++
			if f.Action != "" {
				sum.ByAction[f.Action]++
			}
		} else {
			sum.Inbound++
			if f.Status != 0 {
				sum.ByStatus[strconv.Itoa(f.Status)]++
			}
		}
		if f.Error != "" {
			sum.Errors++
		}
	}

	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Seq < frames[j].Seq })
	return frames, sum, nil
}
