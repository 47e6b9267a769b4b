// Package transporttest provides an in-memory transport.Socket for tests.
package transporttest

import (
	"context"
	"net/http"
	"sync"

	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// Message is one inbound message queued on a Socket.
type Message struct {
	Type int
	Data []byte
}

// Socket is a scripted transport.Socket. Frames written by the client are
// recorded; inbound messages are queued with Push. OnWrite, when set, runs
// after each recorded write and may Push replies.
type Socket struct {
	OnWrite func(s *Socket, frame []byte)

	mu         sync.Mutex
	written    [][]byte
	closeCount int
	closed     bool

	inbound chan Message
	done    chan struct{}
}

// NewSocket returns an open socket with a generous inbound buffer.
func NewSocket() *Socket {
	return &Socket{
		inbound: make(chan Message, 1024),
		done:    make(chan struct{}),
	}
}

// Push queues a binary message for Receive.
func (s *Socket) Push(data []byte) {
	s.PushType(wire.BinaryMessage, data)
}

// PushType queues a message of the given type for Receive.
func (s *Socket) PushType(msgType int, data []byte) {
	s.inbound <- Message{Type: msgType, Data: append([]byte(nil), data...)}
}

// PushResponse encodes and queues an inbound frame. It panics on encode
// errors, which only bad test input can cause.
func (s *Socket) PushResponse(requestID string, status int, payload []byte) {
	frame, err := wire.EncodeResponse(requestID, status, payload)
	if err != nil {
		panic(err)
	}
	s.Push(frame)
}

// WriteBinary implements transport.Socket.
func (s *Socket) WriteBinary(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	frame := append([]byte(nil), data...)
	s.written = append(s.written, frame)
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(s, frame)
	}
	return nil
}

// Receive implements transport.Socket. Queued messages are still delivered
// in order; once the queue is empty a closed socket returns ErrClosed.
func (s *Socket) Receive(ctx context.Context) (int, []byte, error) {
	select {
	case m := <-s.inbound:
		return m.Type, m.Data, nil
	default:
	}
	select {
	case m := <-s.inbound:
		return m.Type, m.Data, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-s.done:
		return 0, nil, transport.ErrClosed
	}
}

// Close implements transport.Socket.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Written returns copies of every frame written so far.
func (s *Socket) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

// CloseCount returns how many times Close was called.
func (s *Socket) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Dialer hands out a fixed Socket and records dial calls.
type Dialer struct {
	Socket *Socket
	Err    error

	mu     sync.Mutex
	dials  int
	url    string
	header http.Header
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(_ context.Context, url string, header http.Header) (transport.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.url = url
	d.header = header
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Socket, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Header returns the header of the last dial.
func (d *Dialer) Header() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header
}

// URL returns the url of the last dial.
func (d *Dialer) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}
