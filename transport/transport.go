// Package transport delivers measurement chunks to the DFX API.
//
// Two strategies implement Transport: REST submits each chunk with a
// synchronous POST, WebSocket writes fire-and-forget data frames on a shared
// socket. Both pace themselves by sleeping each chunk's declared duration
// after sending it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/chunk"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// Strategy names.
const (
	ModeWebSocket = "websocket"
	ModeREST      = "rest"
)

// Transport delivers every chunk produced by a source, in order, and
// returns how many were sent.
type Transport interface {
	Name() string
	Send(ctx context.Context, src chunk.Source) (int, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SendHook is called after each chunk is handed to the transport. id is the
// frame request id (WebSocket) or the server chunk id (REST).
type SendHook func(c *types.Chunk, id string)

// SendError reports the chunk a send failed on.
type SendError struct {
	Order int
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send chunk %d: %v", e.Order, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// PaceDuration converts a chunk's declared duration to a sleep.
func PaceDuration(c *types.Chunk) time.Duration {
	return time.Duration(c.Duration * float64(time.Second))
}

// each drives src, calling send for every chunk and sleeping pace(c)
// afterwards. It returns the number of chunks sent.
func each(ctx context.Context, src chunk.Source, sleep Sleeper, pace func(c *types.Chunk) time.Duration, send func(c *types.Chunk) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		c, err := src.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("next chunk: %w", err)
		}
		if err := send(c); err != nil {
			return sent, &SendError{Order: c.Order, Err: err}
		}
		sent++
		if err := sleep(ctx, pace(c)); err != nil {
			return sent, err
		}
	}
}
