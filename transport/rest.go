package transport

import (
	"context"
	"errors"

	"github.com/nuralogix/dfx-apiv2-client-go/chunk"
	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// DataSubmitter submits one chunk over REST. Satisfied by *api.Client.
type DataSubmitter interface {
	AddData(ctx context.Context, measurementID string, c *types.Chunk) (string, error)
}

// REST submits chunks one at a time, waiting for each response before the
// next. It produces no results; see results.Poller.
type REST struct {
	Client        DataSubmitter
	MeasurementID string
	// Sleep paces sends. Defaults to Sleep.
	Sleep Sleeper
	// OnSent is optional.
	OnSent SendHook
	// Logger is optional.
	Logger *log.Logger
}

// Name implements Transport.
func (r *REST) Name() string { return ModeREST }

// Send implements Transport. A non-2xx response aborts with the
// *api.StatusError wrapped in a *SendError.
func (r *REST) Send(ctx context.Context, src chunk.Source) (int, error) {
	if r.Client == nil {
		return 0, errors.New("rest transport has no client")
	}
	logger := r.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return each(ctx, src, r.Sleep, PaceDuration, func(c *types.Chunk) error {
		chunkID, err := r.Client.AddData(ctx, r.MeasurementID, c)
		if err != nil {
			return err
		}
		logger.Info("chunk sent", map[string]any{
			"chunk_id":    chunkID,
			"chunk_order": c.Order,
			"action":      string(c.Action),
			"bytes":       len(c.Payload),
			"wait_s":      c.Duration,
		})
		if r.OnSent != nil {
			r.OnSent(c, chunkID)
		}
		return nil
	})
}
