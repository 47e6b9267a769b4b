package results

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// DefaultPollInterval is the delay before each polling request.
const DefaultPollInterval = 5 * time.Second

// ResultFetcher retrieves the result at a given index. ready is false while
// the server has nothing for that index. Satisfied by *api.Client.
type ResultFetcher interface {
	RetrieveResult(ctx context.Context, measurementID string, index int) (json.RawMessage, bool, error)
}

// Poller collects results over REST by fetching them in index order until
// Expected results have been received.
type Poller struct {
	Client        ResultFetcher
	MeasurementID string
	Expected      int
	// Interval defaults to DefaultPollInterval.
	Interval time.Duration
	// Sleep defaults to transport.Sleep.
	Sleep transport.Sleeper
	// Sink defaults to Discard.
	Sink Sink
	// Logger is optional.
	Logger *log.Logger
	// Collector is optional.
	Collector *metrics.Collector
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run polls until Expected results have been received and returns the
// count. Every request is preceded by one Interval wait.
func (p *Poller) Run(ctx context.Context) (int, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = transport.Sleep
	}
	sink := p.Sink
	if sink == nil {
		sink = Discard
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	received := 0
	for received < p.Expected {
		if err := sleep(ctx, interval); err != nil {
			return received, err
		}

		body, ready, err := p.Client.RetrieveResult(ctx, p.MeasurementID, received)
		if err != nil {
			return received, fmt.Errorf("poll result %d: %w", received, err)
		}
		p.Collector.IncPoll(!ready)
		if !ready {
			logger.Debug("result not ready", map[string]any{"index": received})
			continue
		}

		result := &types.Result{
			MeasurementID: p.MeasurementID,
			Index:         received,
			Status:        http.StatusOK,
			ReceivedAt:    now().UTC(),
			Body:          body,
		}
		if err := sink.WriteResult(ctx, result); err != nil {
			return received, fmt.Errorf("write result %d: %w", received, err)
		}
		received++
		p.Collector.IncResultReceived()
		logger.Info("result received", map[string]any{
			"index":    result.Index,
			"expected": p.Expected,
			"bytes":    len(body),
		})
	}
	return received, nil
}
