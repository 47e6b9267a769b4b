package transport_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/transport/transporttest"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// sliceSource yields a fixed list of chunks.
type sliceSource struct {
	chunks []*types.Chunk
	err    error
}

func (s *sliceSource) Next() (*types.Chunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func makeChunks(n int, duration float64) []*types.Chunk {
	chunks := make([]*types.Chunk, n)
	for i := range chunks {
		chunks[i] = &types.Chunk{
			Order:     i,
			Total:     n,
			Action:    types.DetermineAction(i, n),
			StartTime: float64(i) * duration,
			EndTime:   float64(i+1) * duration,
			Duration:  duration,
			Payload:   []byte{byte(i)},
		}
	}
	return chunks
}

// recordingSleeper records requested sleeps without waiting.
type recordingSleeper struct {
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func TestWebSocket_SendsFramesInOrder(t *testing.T) {
	sock := transporttest.NewSocket()
	sleeper := &recordingSleeper{}
	var hooked []int

	tr := &transport.WebSocket{
		Socket:        sock,
		MeasurementID: "m-1",
		Sleep:         sleeper.Sleep,
		OnSent:        func(c *types.Chunk, _ string) { hooked = append(hooked, c.Order) },
	}

	sent, err := tr.Send(context.Background(), &sliceSource{chunks: makeChunks(3, 1)})
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []int{0, 1, 2}, hooked)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, sleeper.sleeps)
	assert.Equal(t, 0, sock.CloseCount(), "transport must not close the socket")

	frames := sock.Written()
	require.Len(t, frames, 3)
	wantActions := []string{"FIRST::PROCESS", "CHUNK::PROCESS", "LAST::PROCESS"}
	seen := map[string]bool{}
	for i, frame := range frames {
		action, requestID, body, err := wire.DecodeRequest(frame)
		require.NoError(t, err)
		assert.Equal(t, wire.ActionMeasurementData, action)
		assert.Len(t, requestID, wire.RequestIDSize)
		assert.False(t, seen[requestID], "request ids must be unique")
		seen[requestID] = true

		req, err := wire.UnmarshalDataRequest(body)
		require.NoError(t, err)
		assert.Equal(t, "m-1", req.MeasurementID)
		assert.Equal(t, int32(i), req.ChunkOrder)
		assert.Equal(t, wantActions[i], req.Action)
		assert.Equal(t, int64(1), req.Duration)
		assert.Equal(t, []byte{byte(i)}, req.Payload)
	}
}

func TestWebSocket_PaceHasFloor(t *testing.T) {
	sleeper := &recordingSleeper{}
	chunks := makeChunks(2, 1)
	chunks[1].Duration = 7

	tr := &transport.WebSocket{
		Socket:        transporttest.NewSocket(),
		MeasurementID: "m-1",
		Sleep:         sleeper.Sleep,
		MinDuration:   5,
	}

	_, err := tr.Send(context.Background(), &sliceSource{chunks: chunks})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 7 * time.Second}, sleeper.sleeps)
}

func TestWebSocket_WriteFailureStops(t *testing.T) {
	sock := transporttest.NewSocket()
	require.NoError(t, sock.Close())

	tr := &transport.WebSocket{Socket: sock, MeasurementID: "m", Sleep: (&recordingSleeper{}).Sleep}
	sent, err := tr.Send(context.Background(), &sliceSource{chunks: makeChunks(2, 1)})

	assert.Equal(t, 0, sent)
	var se *transport.SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.Order)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestWebSocket_SourceError(t *testing.T) {
	boom := errors.New("disk gone")
	tr := &transport.WebSocket{Socket: transporttest.NewSocket(), Sleep: (&recordingSleeper{}).Sleep}

	sent, err := tr.Send(context.Background(), &sliceSource{chunks: makeChunks(1, 1), err: boom})
	assert.Equal(t, 1, sent)
	assert.ErrorIs(t, err, boom)
}

func TestAuthenticate(t *testing.T) {
	sock := transporttest.NewSocket()
	sock.OnWrite = func(s *transporttest.Socket, frame []byte) {
		action, requestID, body, err := wire.DecodeRequest(frame)
		require.NoError(t, err)
		assert.Equal(t, wire.ActionLoginWithToken, action)
		req, err := wire.UnmarshalLoginWithTokenRequest(body)
		require.NoError(t, err)
		assert.Equal(t, "tok", req.Token)
		s.PushResponse(requestID, 200, nil)
	}

	require.NoError(t, transport.Authenticate(context.Background(), sock, "tok"))
	assert.Len(t, sock.Written(), 1)
}

func TestAuthenticate_Rejected(t *testing.T) {
	sock := transporttest.NewSocket()
	sock.OnWrite = func(s *transporttest.Socket, frame []byte) {
		_, requestID, _, _ := wire.DecodeRequest(frame)
		s.PushResponse(requestID, 401, (&wire.Error{Code: "INVALID_TOKEN", Message: "expired"}).Marshal())
	}

	err := transport.Authenticate(context.Background(), sock, "tok")
	var apiErr *wire.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "INVALID_TOKEN", apiErr.Code)
}

func TestAuthenticate_TextReplyIsFramingError(t *testing.T) {
	sock := transporttest.NewSocket()
	sock.OnWrite = func(s *transporttest.Socket, _ []byte) {
		s.PushType(wire.TextMessage, []byte("hello"))
	}

	err := transport.Authenticate(context.Background(), sock, "tok")
	assert.True(t, wire.IsFramingError(err), "got %v", err)
}

func TestAuthenticate_NoToken(t *testing.T) {
	err := transport.Authenticate(context.Background(), transporttest.NewSocket(), "")
	assert.Error(t, err)
}
