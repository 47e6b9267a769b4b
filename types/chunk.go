package types

import "strconv"

// ChunkAction is the role tag sent with each chunk.
type ChunkAction string

const (
	// ActionFirst marks ordinal 0 of a multi-chunk measurement.
	ActionFirst ChunkAction = "FIRST::PROCESS"
	// ActionChunk marks every chunk between the first and the last.
	ActionChunk ChunkAction = "CHUNK::PROCESS"
	// ActionLast marks the final chunk. The server infers completion from it.
	ActionLast ChunkAction = "LAST::PROCESS"
)

// DetermineAction derives the role of the chunk at ordinal out of total.
//
// The checks run in order: ordinal 0 of more than one chunk is FIRST, then the
// final ordinal is LAST, everything else is CHUNK. A single-chunk measurement
// therefore sends LAST and never FIRST; servers rely on that.
func DetermineAction(ordinal, total int) ChunkAction {
	action := ActionChunk
	if ordinal == 0 && total > 1 {
		action = ActionFirst
	} else if ordinal == total-1 {
		action = ActionLast
	}
	return action
}

// Chunk is one ordered unit of payload submitted to a measurement.
type Chunk struct {
	// Order is the zero-based chunk ordinal.
	Order int `json:"chunk_order" msgpack:"chunk_order"`
	// Total is the number of chunks in the measurement.
	Total int `json:"total" msgpack:"total"`
	// Action is the role derived from Order and Total.
	Action ChunkAction `json:"action" msgpack:"action"`
	// StartTime is the chunk start offset in seconds.
	StartTime float64 `json:"start_time_s" msgpack:"start_time_s"`
	// EndTime is the chunk end offset in seconds.
	EndTime float64 `json:"end_time_s" msgpack:"end_time_s"`
	// Duration is the declared chunk duration in seconds.
	Duration float64 `json:"duration_s" msgpack:"duration_s"`
	// Payload is the opaque sensor payload.
	Payload []byte `json:"-" msgpack:"-"`
	// Metadata is the optional opaque chunk metadata.
	Metadata []byte `json:"-" msgpack:"-"`
	// PayloadPath is the file the payload was read from.
	PayloadPath string `json:"payload_path,omitempty" msgpack:"payload_path,omitempty"`
}

// IsLast reports whether the chunk carries the LAST action.
func (c *Chunk) IsLast() bool {
	return c.Action == ActionLast
}

// FormatSeconds renders a second offset the way the API expects it in
// string-typed timing fields.
func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
