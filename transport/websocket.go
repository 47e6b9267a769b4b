package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/chunk"
	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// WebSocket sends each chunk as a data frame on a shared socket without
// waiting for acknowledgement. Results arrive out of band and are read by
// a results.Subscriber on the same socket.
type WebSocket struct {
	Socket        Socket
	MeasurementID string
	// Sleep paces sends. Defaults to Sleep.
	Sleep Sleeper
	// MinDuration is the shortest wait after a send, in seconds. A chunk
	// declaring less still waits this long.
	MinDuration float64
	// OnSent is optional.
	OnSent SendHook
	// Logger is optional.
	Logger *log.Logger
}

// Name implements Transport.
func (w *WebSocket) Name() string { return ModeWebSocket }

// Send implements Transport. It never closes the socket.
func (w *WebSocket) Send(ctx context.Context, src chunk.Source) (int, error) {
	if w.Socket == nil {
		return 0, errors.New("websocket transport has no socket")
	}
	logger := w.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return each(ctx, src, w.Sleep, w.pace, func(c *types.Chunk) error {
		requestID := wire.NewRequestID()
		frame, err := EncodeData(requestID, w.MeasurementID, c)
		if err != nil {
			return err
		}
		if err := w.Socket.WriteBinary(ctx, frame); err != nil {
			return err
		}
		logger.Info("chunk sent", map[string]any{
			"request_id":  requestID,
			"chunk_order": c.Order,
			"action":      string(c.Action),
			"bytes":       len(c.Payload),
			"wait_s":      w.pace(c).Seconds(),
		})
		if w.OnSent != nil {
			w.OnSent(c, requestID)
		}
		return nil
	})
}

func (w *WebSocket) pace(c *types.Chunk) time.Duration {
	return time.Duration(max(c.Duration, w.MinDuration) * float64(time.Second))
}

// EncodeData builds the data frame for c.
func EncodeData(requestID, measurementID string, c *types.Chunk) ([]byte, error) {
	body := (&wire.DataRequest{
		MeasurementID: measurementID,
		ChunkOrder:    int32(c.Order),
		Action:        string(c.Action),
		StartTime:     types.FormatSeconds(c.StartTime),
		EndTime:       types.FormatSeconds(c.EndTime),
		Duration:      int64(c.Duration),
		Meta:          c.Metadata,
		Payload:       c.Payload,
	}).Marshal()
	return wire.EncodeRequest(wire.ActionMeasurementData, requestID, body)
}

// Authenticate logs the socket in with token and waits for the reply.
// It is needed only when the upgrade request carried no Authorization
// header. An error reply is returned as a *wire.APIError.
func Authenticate(ctx context.Context, sock Socket, token string) error {
	if token == "" {
		return errors.New("websocket login requires a token")
	}
	requestID := wire.NewRequestID()
	body := (&wire.LoginWithTokenRequest{Token: token}).Marshal()
	frame, err := wire.EncodeRequest(wire.ActionLoginWithToken, requestID, body)
	if err != nil {
		return err
	}
	if err := sock.WriteBinary(ctx, frame); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	msgType, data, err := sock.Receive(ctx)
	if err != nil {
		return fmt.Errorf("await login reply: %w", err)
	}
	if err := wire.CheckMessageType(msgType); err != nil {
		return err
	}
	if _, _, _, err := wire.DecodeResponse(data); err != nil {
		return err
	}
	return nil
}
