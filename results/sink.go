package results

import (
	"context"
	"errors"
	"sync"

	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// Sink receives each decoded result.
type Sink interface {
	WriteResult(ctx context.Context, r *types.Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *types.Result) error

// WriteResult implements Sink.
func (f SinkFunc) WriteResult(ctx context.Context, r *types.Result) error {
	return f(ctx, r)
}

// MultiSink writes to every sink in order and joins their errors.
type MultiSink []Sink

// WriteResult implements Sink.
func (m MultiSink) WriteResult(ctx context.Context, r *types.Result) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.WriteResult(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink logs each result at info level.
type LogSink struct {
	Logger *log.Logger
}

// WriteResult implements Sink.
func (s LogSink) WriteResult(_ context.Context, r *types.Result) error {
	s.Logger.Info("result received", map[string]any{
		"request_id": r.RequestID,
		"index":      r.Index,
		"status":     r.Status,
		"bytes":      len(r.Body),
	})
	return nil
}

// Collect keeps every result in memory.
type Collect struct {
	mu      sync.Mutex
	results []*types.Result
}

// WriteResult implements Sink.
func (c *Collect) WriteResult(_ context.Context, r *types.Result) error {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
	return nil
}

// Results returns the collected results in arrival order.
func (c *Collect) Results() []*types.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Result(nil), c.results...)
}

type discard struct{}

func (discard) WriteResult(context.Context, *types.Result) error { return nil }

// Discard is a Sink that drops every result.
var Discard Sink = discard{}
