// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single measurement session.
// It is a leaf package with no internal dependencies. Snapshots can be
// exported in the Prometheus text format (see export.go).
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64

	// Transport
	ChunksSent   int64
	BytesSent    int64
	SendFailures int64

	// Results
	ResultsReceived int64
	FramesIgnored   int64
	DecodeErrors    int64
	APIErrors       int64
	PollAttempts    int64
	PollNotReady    int64

	// Archive / notifications
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64
	NotifySuccess       int64
	NotifyFailure       int64

	// Dimensions (informational, set at construction)
	Mode           string
	StorageBackend string
	SessionID      string
	MeasurementID  string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(mode, storageBackend, sessionID string) *Collector {
	return &Collector{s: Snapshot{
		Mode:           mode,
		StorageBackend: storageBackend,
		SessionID:      sessionID,
	}}
}

func add(field *int64, n int64) {
	*field += n
}

func (c *Collector) update(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// SetMeasurementID records the server-assigned measurement id.
func (c *Collector) SetMeasurementID(id string) {
	c.update(func(s *Snapshot) { s.MeasurementID = id })
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	c.update(func(s *Snapshot) { add(&s.SessionsStarted, 1) })
}

// IncSessionCompleted records a session reaching Completed.
func (c *Collector) IncSessionCompleted() {
	c.update(func(s *Snapshot) { add(&s.SessionsCompleted, 1) })
}

// IncSessionFailed records a session aborted by an error.
func (c *Collector) IncSessionFailed() {
	c.update(func(s *Snapshot) { add(&s.SessionsFailed, 1) })
}

// --- Transport ---

// AddChunkSent records one chunk handed to the transport.
func (c *Collector) AddChunkSent(payloadBytes int) {
	c.update(func(s *Snapshot) {
		add(&s.ChunksSent, 1)
		add(&s.BytesSent, int64(payloadBytes))
	})
}

// IncSendFailure records a failed chunk send.
func (c *Collector) IncSendFailure() {
	c.update(func(s *Snapshot) { add(&s.SendFailures, 1) })
}

// --- Results ---

// IncResultReceived records a matched, decoded result.
func (c *Collector) IncResultReceived() {
	c.update(func(s *Snapshot) { add(&s.ResultsReceived, 1) })
}

// IncFrameIgnored records an inbound frame for another request id.
func (c *Collector) IncFrameIgnored() {
	c.update(func(s *Snapshot) { add(&s.FramesIgnored, 1) })
}

// IncDecodeError records a frame or result that failed to decode.
func (c *Collector) IncDecodeError() {
	c.update(func(s *Snapshot) { add(&s.DecodeErrors, 1) })
}

// IncAPIError records an inbound error frame.
func (c *Collector) IncAPIError() {
	c.update(func(s *Snapshot) { add(&s.APIErrors, 1) })
}

// IncPoll records one polling request. notReady marks an empty response.
func (c *Collector) IncPoll(notReady bool) {
	c.update(func(s *Snapshot) {
		add(&s.PollAttempts, 1)
		if notReady {
			add(&s.PollNotReady, 1)
		}
	})
}

// --- Archive / notifications ---

// IncArchiveWrite records an archive write outcome.
func (c *Collector) IncArchiveWrite(err error) {
	c.update(func(s *Snapshot) {
		if err != nil {
			add(&s.ArchiveWriteFailure, 1)
			return
		}
		add(&s.ArchiveWriteSuccess, 1)
	})
}

// IncNotify records a completion notification outcome.
func (c *Collector) IncNotify(err error) {
	c.update(func(s *Snapshot) {
		if err != nil {
			add(&s.NotifyFailure, 1)
			return
		}
		add(&s.NotifySuccess, 1)
	})
}

// --- Snapshot ---

// Snapshot returns a point-in-time copy of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
