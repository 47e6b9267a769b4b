package results

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/transport/transporttest"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// subscribe runs Subscribe on a fresh socket and returns the decoded
// subscribe request.
func subscribe(t *testing.T, s *Subscriber, sock *transporttest.Socket) *wire.SubscribeResultsRequest {
	t.Helper()
	if err := s.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	frames := sock.Written()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	action, outerID, body, err := wire.DecodeRequest(frames[0])
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if action != wire.ActionSubscribeResults {
		t.Errorf("action = %s, want %s", action, wire.ActionSubscribeResults)
	}
	req, err := wire.UnmarshalSubscribeResultsRequest(body)
	if err != nil {
		t.Fatalf("UnmarshalSubscribeResultsRequest failed: %v", err)
	}
	if req.RequestID == outerID {
		t.Error("results request id should differ from the subscribe frame id")
	}
	return req
}

func TestSubscriber_DemultiplexesInterleavedFrames(t *testing.T) {
	sock := transporttest.NewSocket()
	sink := &Collect{}
	collector := metrics.NewCollector("websocket", "none", "s")
	s := &Subscriber{
		Socket:        sock,
		MeasurementID: "m-1",
		Expected:      3,
		Sink:          sink,
		Collector:     collector,
	}
	req := subscribe(t, s, sock)
	if req.MeasurementID != "m-1" {
		t.Errorf("MeasurementID = %q", req.MeasurementID)
	}

	a := req.RequestID
	for i, id := range []string{a, "otherBBBBB", a, "otherCCCCC", a} {
		sock.PushResponse(id, 200, []byte(fmt.Sprintf(`{"seq":%d}`, i)))
	}
	// Anything after completion must not be read.
	sock.PushResponse(a, 200, []byte(`{"seq":99}`))

	n, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Run() = %d, want 3", n)
	}

	got := sink.Results()
	if len(got) != 3 {
		t.Fatalf("sink got %d results, want 3", len(got))
	}
	for i, want := range []string{`{"seq":0}`, `{"seq":2}`, `{"seq":4}`} {
		if string(got[i].Body) != want {
			t.Errorf("result %d body = %s, want %s", i, got[i].Body, want)
		}
		if got[i].Index != i {
			t.Errorf("result %d Index = %d", i, got[i].Index)
		}
		if got[i].RequestID != a || got[i].MeasurementID != "m-1" {
			t.Errorf("result %d = %+v", i, got[i])
		}
	}
	if sock.CloseCount() != 0 {
		t.Error("subscriber must not close the socket")
	}

	snap := collector.Snapshot()
	if snap.ResultsReceived != 3 || snap.FramesIgnored != 2 {
		t.Errorf("ResultsReceived=%d FramesIgnored=%d, want 3/2", snap.ResultsReceived, snap.FramesIgnored)
	}
}

func TestSubscriber_Errors(t *testing.T) {
	tests := []struct {
		name  string
		push  func(sock *transporttest.Socket, id string)
		check func(t *testing.T, err error)
	}{
		{
			name: "text message",
			push: func(sock *transporttest.Socket, _ string) {
				sock.PushType(wire.TextMessage, []byte("{}"))
			},
			check: func(t *testing.T, err error) {
				var fe *wire.FramingError
				if !errors.As(err, &fe) || fe.Kind != wire.FrameErrorMessageType {
					t.Errorf("got %v, want message type FramingError", err)
				}
			},
		},
		{
			name: "api error",
			push: func(sock *transporttest.Socket, id string) {
				sock.PushResponse(id, 500, (&wire.Error{Code: "INTERNAL", Message: "boom"}).Marshal())
			},
			check: func(t *testing.T, err error) {
				var apiErr *wire.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != "INTERNAL" {
					t.Errorf("got %v, want APIError INTERNAL", err)
				}
			},
		},
		{
			name: "short frame",
			push: func(sock *transporttest.Socket, _ string) {
				sock.Push([]byte("abc"))
			},
			check: func(t *testing.T, err error) {
				if !wire.IsFramingError(err) {
					t.Errorf("got %v, want FramingError", err)
				}
			},
		},
		{
			name: "invalid json result",
			push: func(sock *transporttest.Socket, id string) {
				sock.PushResponse(id, 200, []byte("not json"))
			},
			check: func(t *testing.T, err error) {
				var fe *wire.FramingError
				if !errors.As(err, &fe) || fe.Kind != wire.FrameErrorBody {
					t.Errorf("got %v, want body FramingError", err)
				}
			},
		},
		{
			name: "closed early",
			push: func(sock *transporttest.Socket, id string) {
				sock.PushResponse(id, 200, []byte("{}"))
				_ = sock.Close()
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrIncomplete) {
					t.Errorf("got %v, want ErrIncomplete", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock := transporttest.NewSocket()
			s := &Subscriber{Socket: sock, MeasurementID: "m", Expected: 2}
			req := subscribe(t, s, sock)
			tt.push(sock, req.RequestID)

			_, err := s.Run(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			tt.check(t, err)
		})
	}
}

func TestSubscriber_ContextCanceled(t *testing.T) {
	sock := transporttest.NewSocket()
	s := &Subscriber{Socket: sock, MeasurementID: "m", Expected: 1}
	subscribe(t, s, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestSubscriber_RunBeforeSubscribe(t *testing.T) {
	s := &Subscriber{Socket: transporttest.NewSocket(), Expected: 1}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("got %v, want ErrNotSubscribed", err)
	}
}

func TestSubscriber_SinkError(t *testing.T) {
	sock := transporttest.NewSocket()
	boom := errors.New("disk full")
	s := &Subscriber{
		Socket:   sock,
		Expected: 1,
		Sink:     SinkFunc(func(context.Context, *types.Result) error { return boom }),
	}
	req := subscribe(t, s, sock)
	sock.PushResponse(req.RequestID, 200, []byte("{}"))

	if _, err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("got %v, want sink error", err)
	}
}
