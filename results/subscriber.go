package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// ErrIncomplete is returned when the stream ends before every expected
// result has arrived.
var ErrIncomplete = errors.New("stream ended before all results arrived")

// ErrNotSubscribed is returned by Run when Subscribe has not succeeded.
var ErrNotSubscribed = errors.New("subscriber has not subscribed")

// Subscriber subscribes to a measurement's results on a shared socket and
// reads the inbound stream until the expected count of results matching the
// subscription's request id has been delivered.
//
// A Subscriber never closes the socket.
type Subscriber struct {
	Socket        transport.Socket
	MeasurementID string
	// Expected is the number of results to wait for, normally the number of
	// chunks in the measurement.
	Expected int
	// Sink receives each result. Defaults to Discard.
	Sink Sink
	// Logger is optional.
	Logger *log.Logger
	// Collector is optional.
	Collector *metrics.Collector
	// Now is the clock for ReceivedAt. Defaults to time.Now.
	Now func() time.Time

	demux *Demux
}

// Subscribe sends the subscribe-to-results frame. The frame's own request id
// and the results request id are generated separately; results arrive
// tagged with the latter.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	resultsID := wire.NewRequestID()
	body := (&wire.SubscribeResultsRequest{
		MeasurementID: s.MeasurementID,
		RequestID:     resultsID,
	}).Marshal()

	frame, err := wire.EncodeRequest(wire.ActionSubscribeResults, wire.NewRequestID(), body)
	if err != nil {
		return err
	}
	if err := s.Socket.WriteBinary(ctx, frame); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	s.demux = NewDemux(resultsID, s.Expected)
	s.logger().Info("subscribed to results", map[string]any{
		"results_request_id": resultsID,
		"expected":           s.Expected,
	})
	return nil
}

// RequestID returns the results request id, or "" before Subscribe.
func (s *Subscriber) RequestID() string {
	if s.demux == nil {
		return ""
	}
	return s.demux.RequestID()
}

// Run reads inbound frames until Expected results have been delivered and
// returns the number delivered.
//
// Errors:
//   - *wire.FramingError: a non-binary message, a malformed frame, or a
//     result body that is not JSON
//   - *wire.APIError: an inbound frame with status >= 400
//   - ErrIncomplete: the socket closed early
//   - the Sink's error, or ctx's error
func (s *Subscriber) Run(ctx context.Context) (int, error) {
	if s.demux == nil {
		return 0, ErrNotSubscribed
	}
	logger := s.logger()
	sink := s.Sink
	if sink == nil {
		sink = Discard
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	for !s.demux.Done() {
		msgType, data, err := s.Socket.Receive(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.demux.Matched(), ctxErr
			}
			if errors.Is(err, transport.ErrClosed) || transport.IsNormalClose(err) {
				return s.demux.Matched(), fmt.Errorf("%w: %d of %d", ErrIncomplete, s.demux.Matched(), s.Expected)
			}
			return s.demux.Matched(), fmt.Errorf("receive: %w", err)
		}

		if err := wire.CheckMessageType(msgType); err != nil {
			s.Collector.IncDecodeError()
			return s.demux.Matched(), err
		}

		status, requestID, payload, err := wire.DecodeResponse(data)
		if err != nil {
			if wire.IsAPIError(err) {
				s.Collector.IncAPIError()
			} else {
				s.Collector.IncDecodeError()
			}
			return s.demux.Matched(), err
		}

		deliver, _ := s.demux.Accept(requestID)
		if !deliver {
			s.Collector.IncFrameIgnored()
			logger.Debug("frame ignored", map[string]any{
				"request_id": requestID,
				"status":     status,
			})
			continue
		}

		if !json.Valid(payload) {
			s.Collector.IncDecodeError()
			return s.demux.Matched(), &wire.FramingError{
				Kind: wire.FrameErrorBody,
				Msg:  fmt.Sprintf("result %d for request %q is not valid JSON", s.demux.Matched()-1, requestID),
			}
		}

		result := &types.Result{
			MeasurementID: s.MeasurementID,
			RequestID:     requestID,
			Index:         s.demux.Matched() - 1,
			Status:        status,
			ReceivedAt:    now().UTC(),
			Body:          json.RawMessage(append([]byte(nil), payload...)),
		}
		if err := sink.WriteResult(ctx, result); err != nil {
			return s.demux.Matched(), fmt.Errorf("write result %d: %w", result.Index, err)
		}
		s.Collector.IncResultReceived()
		logger.Info("result received", map[string]any{
			"index":    result.Index,
			"expected": s.Expected,
			"bytes":    len(payload),
		})
	}

	return s.demux.Matched(), nil
}

func (s *Subscriber) logger() *log.Logger {
	if s.Logger == nil {
		return log.NewNop()
	}
	return s.Logger
}
