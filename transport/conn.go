package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024 // 16MB
	DefaultCloseGracePeriod = 5 * time.Second
)

// ErrClosed is returned by operations on a closed socket.
var ErrClosed = errors.New("websocket is closed")

// Socket is the full-duplex message channel shared by the sending and
// receiving halves of a WebSocket session. Writes are safe for concurrent
// use; Receive must only be called from one goroutine at a time.
type Socket interface {
	// WriteBinary sends one binary message.
	WriteBinary(ctx context.Context, data []byte) error
	// Receive blocks until a message arrives or ctx is done. It returns the
	// WebSocket message type alongside the data.
	Receive(ctx context.Context) (int, []byte, error)
	// Close closes the socket. Further calls are no-ops.
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// ConnConfig configures WebSocket connection behavior.
type ConnConfig struct {
	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration
	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration
	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64
	// CloseGracePeriod is the deadline for writing the close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration
}

func (c *ConnConfig) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
}

// WebSocketDialer dials gorilla/websocket connections.
type WebSocketDialer struct {
	Config ConnConfig
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	cfg := d.Config
	cfg.defaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	conn.SetReadLimit(cfg.MaxMessageSize)

	return &Conn{cfg: cfg, conn: conn}, nil
}

type readResult struct {
	msgType int
	data    []byte
	err     error
}

// Conn is a Socket over a gorilla/websocket connection.
type Conn struct {
	cfg  ConnConfig
	conn *websocket.Conn

	mu      sync.Mutex
	writeMu sync.Mutex // serializes writes (gorilla/websocket requirement)
	closed  bool

	readMu sync.Mutex
	// pending holds a read left in flight by a canceled Receive. The next
	// Receive collects it instead of starting a second concurrent read.
	pending chan readResult
}

// WriteBinary implements Socket.
func (c *Conn) WriteBinary(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive implements Socket.
func (c *Conn) Receive(ctx context.Context) (int, []byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed && c.pending == nil {
		return 0, nil, ErrClosed
	}

	ch := c.pending
	if ch == nil {
		ch = make(chan readResult, 1)
		go func() {
			msgType, data, err := c.conn.ReadMessage()
			ch <- readResult{msgType: msgType, data: data, err: err}
		}()
	}

	select {
	case <-ctx.Done():
		c.pending = ch
		return 0, nil, ctx.Err()
	case r := <-ch:
		c.pending = nil
		if r.err != nil {
			if c.IsClosed() {
				return 0, nil, ErrClosed
			}
			return 0, nil, r.err
		}
		return r.msgType, r.data, nil
	}
}

// Close sends a normal-closure frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsClosed reports whether err means the socket was already closed, either by
// this side or by a close frame already sent.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}

// IsNormalClose reports whether err is a normal or going-away close from the
// peer.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
