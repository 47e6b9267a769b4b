// Package redis publishes measurement completion events to Redis, either on
// a pub/sub channel or appended to a stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nuralogix/dfx-apiv2-client-go/adapter"
)

// DefaultChannel is the default channel (pub/sub) or stream key.
const DefaultChannel = "dfx:measurement_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Delivery modes.
const (
	ModePublish = "publish"
	ModeStream  = "stream"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel or stream key (default DefaultChannel).
	Channel string
	// Mode is ModePublish (default) or ModeStream.
	Mode string
	// MaxLen caps the stream length approximately. Zero means no cap.
	MaxLen int64
	// Timeout is the per-attempt timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The URL is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePublish
	case ModePublish, ModeStream:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q", cfg.Mode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish delivers the event as JSON, retrying with exponential backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.MeasurementCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	return adapter.Retry(ctx, "redis", a.config.Retries, a.config.Backoff, isClosed, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.deliver(attemptCtx, event.MeasurementID, body)
	})
}

func (a *Adapter) deliver(ctx context.Context, measurementID string, body []byte) error {
	if a.config.Mode == ModeStream {
		return a.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: a.config.Channel,
			MaxLen: a.config.MaxLen,
			Approx: a.config.MaxLen > 0,
			Values: map[string]any{
				"measurement_id": measurementID,
				"event":          string(body),
			},
		}).Err()
	}
	return a.client.Publish(ctx, a.config.Channel, body).Err()
}

func isClosed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
