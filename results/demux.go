// Package results collects measurement results.
//
// Over WebSocket, a Subscriber filters the shared inbound stream by the
// subscription's request id and counts matches until the expected number of
// results has arrived. Over REST, a Poller fetches results by index at a
// fixed interval. Both hand each result to a Sink.
package results

import "sync"

// Demux matches inbound request ids against one subscription.
type Demux struct {
	requestID string
	expected  int

	mu      sync.Mutex
	matched int
}

// NewDemux returns a demultiplexer for requestID that completes after
// expected matches.
func NewDemux(requestID string, expected int) *Demux {
	return &Demux{requestID: requestID, expected: expected}
}

// RequestID returns the id the demux filters on.
func (d *Demux) RequestID() string {
	return d.requestID
}

// Accept reports whether a frame tagged with requestID should be delivered,
// and whether the subscription is complete once it has been. Frames arriving
// after completion are not delivered.
func (d *Demux) Accept(requestID string) (deliver, done bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.matched >= d.expected {
		return false, true
	}
	if requestID != d.requestID {
		return false, false
	}
	d.matched++
	return true, d.matched >= d.expected
}

// Matched returns how many frames have been delivered.
func (d *Demux) Matched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matched
}

// Done reports whether the expected count has been reached.
func (d *Demux) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matched >= d.expected
}
