package session

import (
	"context"

	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// State is a session lifecycle state.
type State string

// Session states. There is no failed state; failures are returned errors.
const (
	StateCreated   State = "created"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
)

// Observer is notified of session progress. Calls come from the send and
// receive goroutines and must not block.
type Observer interface {
	// OnState is called on each state transition.
	OnState(state State, measurementID string)
	// OnChunkSent is called after each chunk is handed to the transport.
	OnChunkSent(c *types.Chunk, requestID string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

// OnState implements Observer.
func (NopObserver) OnState(State, string) {}

// OnChunkSent implements Observer.
func (NopObserver) OnChunkSent(*types.Chunk, string) {}

// Store persists the id of the last completed measurement.
type Store interface {
	Save(ctx context.Context, lastMeasurement string) error
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, lastMeasurement string) error

// Save implements Store.
func (f StoreFunc) Save(ctx context.Context, lastMeasurement string) error {
	return f(ctx, lastMeasurement)
}
