package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/adapter"
	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/results"
	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/transport/transporttest"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// writePayloads creates n payload files in a temp dir, each with a
// properties file built by props(i) when props is non-nil.
func writePayloads(t *testing.T, n int, props func(i int) string) string {
	t.Helper()
	dir := t.TempDir()
	for i := range n {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("payload%03d.bin", i)), []byte(fmt.Sprintf("payload-%d", i)), 0o644); err != nil {
			t.Fatalf("write payload: %v", err)
		}
		if props != nil {
			if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("properties%03d.json", i)), []byte(props(i)), 0o644); err != nil {
				t.Fatalf("write properties: %v", err)
			}
		}
	}
	return dir
}

func declared(n int, duration float64) func(i int) string {
	return func(i int) string {
		return fmt.Sprintf(`{"number_chunks": %d, "chunk_number": %d, "duration_s": %g}`, n, i, duration)
	}
}

// fakeAPI records every call.
type fakeAPI struct {
	token     string
	createErr error
	addErr    error

	mu      sync.Mutex
	calls   int
	creates []types.CreateRequest
	added   []*types.Chunk
	polls   int
}

func (f *fakeAPI) CreateMeasurement(_ context.Context, req types.CreateRequest) (*types.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &types.Measurement{ID: "meas-1", StudyID: req.StudyID}, nil
}

func (f *fakeAPI) AddData(_ context.Context, _ string, c *types.Chunk) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, c)
	return fmt.Sprintf("chunk-%d", c.Order), nil
}

func (f *fakeAPI) RetrieveResult(_ context.Context, _ string, index int) (json.RawMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.polls++
	// Every other poll is "not ready", and results never outrun sent chunks.
	if f.polls%2 == 1 || index >= len(f.added) {
		return nil, false, nil
	}
	return json.RawMessage(fmt.Sprintf(`{"index":%d}`, index)), true, nil
}

func (f *fakeAPI) Token() string { return f.token }

func (f *fakeAPI) AuthHeader() http.Header {
	if f.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+f.token)
	return h
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

type recordingObserver struct {
	mu     sync.Mutex
	states []State
	chunks []*types.Chunk
}

func (r *recordingObserver) OnState(s State, _ string) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recordingObserver) OnChunkSent(c *types.Chunk, _ string) {
	r.mu.Lock()
	r.chunks = append(r.chunks, c)
	r.mu.Unlock()
}

type recordingNotifier struct {
	events []*adapter.MeasurementCompletedEvent
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, e *adapter.MeasurementCompletedEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingNotifier) Close() error { return nil }

// resultServer scripts a socket that acknowledges each data frame on its
// own request id and answers with one result on the subscription id.
func resultServer(t *testing.T, sock *transporttest.Socket) {
	var resultsID string
	sock.OnWrite = func(s *transporttest.Socket, frame []byte) {
		action, requestID, body, err := wire.DecodeRequest(frame)
		if err != nil {
			t.Errorf("server decode: %v", err)
			return
		}
		switch action {
		case wire.ActionSubscribeResults:
			req, err := wire.UnmarshalSubscribeResultsRequest(body)
			if err != nil {
				t.Errorf("server decode subscribe: %v", err)
				return
			}
			resultsID = req.RequestID
			s.PushResponse(requestID, 200, nil)
		case wire.ActionMeasurementData:
			req, err := wire.UnmarshalDataRequest(body)
			if err != nil {
				t.Errorf("server decode data: %v", err)
				return
			}
			s.PushResponse(requestID, 200, []byte(`{"ack":true}`))
			s.PushResponse(resultsID, 200, []byte(fmt.Sprintf(`{"chunk":%d}`, req.ChunkOrder)))
		}
	}
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func TestExecute_WebSocketEndToEnd(t *testing.T) {
	dir := writePayloads(t, 3, declared(3, 1))
	fapi := &fakeAPI{token: "tok"}
	sock := transporttest.NewSocket()
	resultServer(t, sock)
	dialer := &transporttest.Dialer{Socket: sock}
	sleeper := &recordingSleeper{}
	observer := &recordingObserver{}
	notifier := &recordingNotifier{}
	collect := &results.Collect{}
	collector := metrics.NewCollector(transport.ModeWebSocket, "none", "sess")
	var saved string

	o := newOrchestrator(t, Config{
		StudyID:      "study-1",
		PayloadDir:   dir,
		API:          fapi,
		Dialer:       dialer,
		WebSocketURL: "wss://example.test",
		Sink:         collect,
		Observer:     observer,
		Notifier:     notifier,
		Collector:    collector,
		Sleep:        sleeper.Sleep,
		Store: StoreFunc(func(_ context.Context, id string) error {
			saved = id
			return nil
		}),
	})

	res, err := o.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.MeasurementID != "meas-1" || res.State != StateCompleted {
		t.Errorf("result = %+v", res)
	}
	if res.ChunksSent != 3 || res.ResultsReceived != 3 {
		t.Errorf("sent/received = %d/%d, want 3/3", res.ChunksSent, res.ResultsReceived)
	}

	// Roles and ordinals.
	wantActions := []types.ChunkAction{types.ActionFirst, types.ActionChunk, types.ActionLast}
	if len(observer.chunks) != 3 {
		t.Fatalf("observer saw %d chunks, want 3", len(observer.chunks))
	}
	for i, c := range observer.chunks {
		if c.Order != i || c.Action != wantActions[i] {
			t.Errorf("chunk %d = order %d action %s", i, c.Order, c.Action)
		}
	}

	// Subscribe first, then three data frames in order.
	written := sock.Written()
	if len(written) != 4 {
		t.Fatalf("written %d frames, want 4", len(written))
	}
	if action, _, _, _ := wire.DecodeRequest(written[0]); action != wire.ActionSubscribeResults {
		t.Errorf("first frame action = %s, want subscribe", action)
	}
	for i, frame := range written[1:] {
		action, _, body, err := wire.DecodeRequest(frame)
		if err != nil || action != wire.ActionMeasurementData {
			t.Fatalf("frame %d: action %s err %v", i+1, action, err)
		}
		req, err := wire.UnmarshalDataRequest(body)
		if err != nil {
			t.Fatalf("frame %d: %v", i+1, err)
		}
		if int(req.ChunkOrder) != i || req.Action != string(wantActions[i]) || req.MeasurementID != "meas-1" {
			t.Errorf("frame %d = %+v", i+1, req)
		}
	}

	// Exactly the matched results, in order; acks ignored.
	got := collect.Results()
	if len(got) != 3 {
		t.Fatalf("sink got %d results, want 3", len(got))
	}
	for i, r := range got {
		if string(r.Body) != fmt.Sprintf(`{"chunk":%d}`, i) {
			t.Errorf("result %d body = %s", i, r.Body)
		}
	}

	if sock.CloseCount() != 1 {
		t.Errorf("CloseCount = %d, want 1", sock.CloseCount())
	}
	if dialer.Dials() != 1 || dialer.URL() != "wss://example.test" {
		t.Errorf("dials = %d url = %q", dialer.Dials(), dialer.URL())
	}
	if dialer.Header().Get("Authorization") != "Bearer tok" {
		t.Errorf("dial header = %v", dialer.Header())
	}
	if len(sleeper.waits) != 3 {
		t.Errorf("waits = %v, want 3x1s", sleeper.waits)
	}
	for _, d := range sleeper.waits {
		if d != time.Second {
			t.Errorf("wait = %v, want 1s", d)
		}
	}

	wantStates := []State{StateCreated, StateStreaming, StateCompleted}
	if fmt.Sprint(observer.states) != fmt.Sprint(wantStates) {
		t.Errorf("states = %v, want %v", observer.states, wantStates)
	}
	if saved != "meas-1" {
		t.Errorf("saved last measurement = %q", saved)
	}
	if len(notifier.events) != 1 || notifier.events[0].ResultsReceived != 3 {
		t.Errorf("notifier events = %+v", notifier.events)
	}

	snap := collector.Snapshot()
	if snap.SessionsCompleted != 1 || snap.ChunksSent != 3 || snap.ResultsReceived != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.FramesIgnored != 4 {
		t.Errorf("FramesIgnored = %d, want 4 (subscribe ack + 3 data acks)", snap.FramesIgnored)
	}
}

func TestExecute_PreconditionsMakeNoNetworkCalls(t *testing.T) {
	tests := []struct {
		name  string
		study string
		dir   func(t *testing.T) string
	}{
		{"declared 3 chunks, 2 files", "study-1", func(t *testing.T) string {
			return writePayloads(t, 2, declared(3, 1))
		}},
		{"duration ceiling 65x2", "study-1", func(t *testing.T) string {
			return writePayloads(t, 2, declared(2, 65))
		}},
		{"no payload files", "study-1", func(t *testing.T) string {
			return t.TempDir()
		}},
		{"no study selected", "", func(t *testing.T) string {
			return writePayloads(t, 2, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fapi := &fakeAPI{token: "tok"}
			dialer := &transporttest.Dialer{Socket: transporttest.NewSocket()}
			o := newOrchestrator(t, Config{
				StudyID:    tt.study,
				PayloadDir: tt.dir(t),
				API:        fapi,
				Dialer:     dialer,
			})

			res, err := o.Execute(t.Context())
			if !IsPrecondition(err) {
				t.Fatalf("err = %v, want precondition", err)
			}
			if fapi.callCount() != 0 {
				t.Errorf("API calls = %d, want 0", fapi.callCount())
			}
			if dialer.Dials() != 0 {
				t.Errorf("dials = %d, want 0", dialer.Dials())
			}
			if res.MeasurementID != "" {
				t.Errorf("MeasurementID = %q, want empty", res.MeasurementID)
			}
		})
	}
}

func TestExecute_NoStudyIsErrNoStudy(t *testing.T) {
	o := newOrchestrator(t, Config{PayloadDir: writePayloads(t, 1, nil), API: &fakeAPI{}})
	_, err := o.Execute(t.Context())
	if !errors.Is(err, types.ErrNoStudy) {
		t.Errorf("err = %v, want ErrNoStudy", err)
	}
}

func TestExecute_WebSocketFailures(t *testing.T) {
	tests := []struct {
		name   string
		script func(s *transporttest.Socket, resultsID *string, frame []byte)
		check  func(t *testing.T, err error)
	}{
		{
			name: "server error frame",
			script: func(s *transporttest.Socket, _ *string, frame []byte) {
				action, id, _, _ := wire.DecodeRequest(frame)
				if action == wire.ActionMeasurementData {
					body := (&wire.Error{Code: "INVALID_PAYLOAD", Message: "bad chunk"}).Marshal()
					s.PushResponse(id, 400, body)
				}
			},
			check: func(t *testing.T, err error) {
				if !IsAPI(err) {
					t.Errorf("err = %v, want api", err)
				}
				var apiErr *wire.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_PAYLOAD" {
					t.Errorf("APIError = %+v", apiErr)
				}
			},
		},
		{
			name: "text frame",
			script: func(s *transporttest.Socket, _ *string, frame []byte) {
				if action, _, _, _ := wire.DecodeRequest(frame); action == wire.ActionMeasurementData {
					s.PushType(wire.TextMessage, []byte("hello"))
				}
			},
			check: func(t *testing.T, err error) {
				if !IsProtocol(err) {
					t.Errorf("err = %v, want protocol", err)
				}
				if !wire.IsFramingError(err) {
					t.Error("FramingError not reachable")
				}
			},
		},
		{
			name: "result body not JSON",
			script: func(s *transporttest.Socket, resultsID *string, frame []byte) {
				if action, _, _, _ := wire.DecodeRequest(frame); action == wire.ActionMeasurementData {
					s.PushResponse(*resultsID, 200, []byte("{not json"))
				}
			},
			check: func(t *testing.T, err error) {
				if !IsProtocol(err) {
					t.Errorf("err = %v, want protocol", err)
				}
			},
		},
		{
			name: "socket closed early",
			script: func(s *transporttest.Socket, resultsID *string, frame []byte) {
				action, _, body, _ := wire.DecodeRequest(frame)
				if action != wire.ActionMeasurementData {
					return
				}
				if req, _ := wire.UnmarshalDataRequest(body); req.ChunkOrder == 0 {
					s.PushResponse(*resultsID, 200, []byte(`{}`))
					go func() { _ = s.Close() }()
				}
			},
			check: func(t *testing.T, err error) {
				if !IsTransport(err) {
					t.Errorf("err = %v, want transport", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock := transporttest.NewSocket()
			var resultsID string
			sock.OnWrite = func(s *transporttest.Socket, frame []byte) {
				action, _, body, _ := wire.DecodeRequest(frame)
				if action == wire.ActionSubscribeResults {
					req, _ := wire.UnmarshalSubscribeResultsRequest(body)
					resultsID = req.RequestID
				}
				tt.script(s, &resultsID, frame)
			}
			o := newOrchestrator(t, Config{
				StudyID:    "study-1",
				PayloadDir: writePayloads(t, 3, declared(3, 1)),
				API:        &fakeAPI{token: "tok"},
				Dialer:     &transporttest.Dialer{Socket: sock},
				Sleep:      (&recordingSleeper{}).Sleep,
			})

			res, err := o.Execute(t.Context())
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
			if res.State != StateStreaming {
				t.Errorf("State = %q, want streaming", res.State)
			}
			if sock.CloseCount() < 1 {
				t.Error("socket was not closed")
			}
		})
	}
}

func TestExecute_CreateFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"structured 4xx", &api.StatusError{Code: 400, Method: "POST", Path: "measurements", Body: []byte(`{"Code":"INVALID_STUDY","Message":"no such study"}`)}, IsAPI},
		{"bare 502", &api.StatusError{Code: 502, Method: "POST", Path: "measurements", Body: []byte("bad gateway")}, IsTransport},
		{"network", errors.New("dial tcp: connection refused"), IsTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &transporttest.Dialer{Socket: transporttest.NewSocket()}
			o := newOrchestrator(t, Config{
				StudyID:    "study-1",
				PayloadDir: writePayloads(t, 1, nil),
				API:        &fakeAPI{token: "tok", createErr: tt.err},
				Dialer:     dialer,
			})
			_, err := o.Execute(t.Context())
			if !tt.is(err) {
				t.Errorf("err = %v, classification mismatch", err)
			}
			var se *Error
			if !errors.As(err, &se) || se.Op != "create" {
				t.Errorf("Op = %v, want create", se)
			}
			if dialer.Dials() != 0 {
				t.Errorf("dialed after failed create")
			}
		})
	}
}

func TestExecute_DialFailure(t *testing.T) {
	o := newOrchestrator(t, Config{
		StudyID:    "study-1",
		PayloadDir: writePayloads(t, 1, nil),
		API:        &fakeAPI{token: "tok"},
		Dialer:     &transporttest.Dialer{Err: errors.New("handshake refused")},
	})
	_, err := o.Execute(t.Context())
	var se *Error
	if !errors.As(err, &se) || se.Op != "dial" || se.Kind != KindTransport {
		t.Errorf("err = %v, want transport dial error", err)
	}
}

func TestExecute_SocketLogin(t *testing.T) {
	sock := transporttest.NewSocket()
	var order []wire.Action
	var resultsID string
	sock.OnWrite = func(s *transporttest.Socket, frame []byte) {
		action, id, body, _ := wire.DecodeRequest(frame)
		order = append(order, action)
		switch action {
		case wire.ActionLoginWithToken:
			req, _ := wire.UnmarshalLoginWithTokenRequest(body)
			if req.Token != "tok" {
				t.Errorf("login token = %q", req.Token)
			}
			s.PushResponse(id, 200, nil)
		case wire.ActionSubscribeResults:
			req, _ := wire.UnmarshalSubscribeResultsRequest(body)
			resultsID = req.RequestID
		case wire.ActionMeasurementData:
			s.PushResponse(resultsID, 200, []byte(`{}`))
		}
	}
	dialer := &transporttest.Dialer{Socket: sock}
	o := newOrchestrator(t, Config{
		StudyID:     "study-1",
		PayloadDir:  writePayloads(t, 1, nil),
		API:         &fakeAPI{token: "tok"},
		Dialer:      dialer,
		SocketLogin: true,
		Sleep:       (&recordingSleeper{}).Sleep,
	})

	res, err := o.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.ResultsReceived != 1 {
		t.Errorf("ResultsReceived = %d, want 1", res.ResultsReceived)
	}
	if dialer.Header() != nil {
		t.Errorf("dial header = %v, want none", dialer.Header())
	}
	want := fmt.Sprint([]wire.Action{wire.ActionLoginWithToken, wire.ActionSubscribeResults, wire.ActionMeasurementData})
	if fmt.Sprint(order) != want {
		t.Errorf("frame order = %v, want %s", order, want)
	}
}

func TestExecute_SingleChunkIsLast(t *testing.T) {
	fapi := &fakeAPI{token: "tok"}
	observer := &recordingObserver{}
	o := newOrchestrator(t, Config{
		StudyID:    "study-1",
		PayloadDir: writePayloads(t, 1, nil),
		Mode:       transport.ModeREST,
		API:        fapi,
		Observer:   observer,
		Sleep:      (&recordingSleeper{}).Sleep,
	})
	if _, err := o.Execute(t.Context()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(fapi.added) != 1 || fapi.added[0].Action != types.ActionLast {
		t.Errorf("added = %+v, want one LAST chunk", fapi.added)
	}
}

func TestExecute_RESTWithPolling(t *testing.T) {
	fapi := &fakeAPI{token: "tok"}
	collect := &results.Collect{}
	sleeper := &recordingSleeper{}
	dialer := &transporttest.Dialer{Socket: transporttest.NewSocket()}
	o := newOrchestrator(t, Config{
		StudyID:      "study-1",
		PayloadDir:   writePayloads(t, 2, declared(2, 2)),
		Mode:         transport.ModeREST,
		PollResults:  true,
		PollInterval: 5 * time.Second,
		API:          fapi,
		Dialer:       dialer,
		Sink:         collect,
		Sleep:        sleeper.Sleep,
	})

	res, err := o.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.ChunksSent != 2 || res.ResultsReceived != 2 {
		t.Errorf("sent/received = %d/%d", res.ChunksSent, res.ResultsReceived)
	}
	if dialer.Dials() != 0 {
		t.Errorf("REST mode dialed a socket")
	}
	if fapi.added[0].Action != types.ActionFirst || fapi.added[1].Action != types.ActionLast {
		t.Errorf("actions = %s, %s", fapi.added[0].Action, fapi.added[1].Action)
	}
	got := collect.Results()
	if len(got) != 2 || string(got[1].Body) != `{"index":1}` {
		t.Errorf("results = %+v", got)
	}
}

func TestExecute_RESTSendFailure(t *testing.T) {
	collector := metrics.NewCollector(transport.ModeREST, "none", "s")
	o := newOrchestrator(t, Config{
		StudyID:    "study-1",
		PayloadDir: writePayloads(t, 2, nil),
		Mode:       transport.ModeREST,
		API: &fakeAPI{token: "tok", addErr: &api.StatusError{
			Code: 400, Method: "POST", Path: "measurements/meas-1/data",
			Body: []byte(`{"Code":"INVALID_ACTION","Message":"bad"}`),
		}},
		Collector: collector,
		Sleep:     (&recordingSleeper{}).Sleep,
	})
	_, err := o.Execute(t.Context())
	var se *Error
	if !errors.As(err, &se) || se.Op != "send" || se.Kind != KindAPI {
		t.Fatalf("err = %v, want api send error", err)
	}
	snap := collector.Snapshot()
	if snap.SendFailures != 1 || snap.SessionsFailed != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestExecute_StoreAndNotifyFailuresAreBestEffort(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("redis down")}
	collector := metrics.NewCollector(transport.ModeREST, "none", "s")
	o := newOrchestrator(t, Config{
		StudyID:    "study-1",
		PayloadDir: writePayloads(t, 1, nil),
		Mode:       transport.ModeREST,
		API:        &fakeAPI{token: "tok"},
		Notifier:   notifier,
		Collector:  collector,
		Sleep:      (&recordingSleeper{}).Sleep,
		Store: StoreFunc(func(context.Context, string) error {
			return errors.New("read-only file system")
		}),
	})
	res, err := o.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("State = %q", res.State)
	}
	if collector.Snapshot().NotifyFailure != 1 {
		t.Errorf("NotifyFailure = %d, want 1", collector.Snapshot().NotifyFailure)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without API")
	}
	if _, err := New(Config{API: &fakeAPI{}, Mode: "grpc"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := New(Config{API: &fakeAPI{}, PollResults: true}); err == nil {
		t.Error("expected error for polling in websocket mode")
	}
	o, err := New(Config{API: &fakeAPI{}, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o.SessionID() == "" {
		t.Error("SessionID not generated")
	}
	if o.config.Mode != transport.ModeWebSocket {
		t.Errorf("Mode = %q, want websocket", o.config.Mode)
	}
}
