package adapter

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry. It doubles per attempt.
const DefaultBackoff = 500 * time.Millisecond

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. permanent, when non-nil, stops the loop early for errors that
// will not succeed on retry. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, permanent func(error) bool, fn func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			timer := time.NewTimer(backoff << uint(i-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
