// Package session runs one measurement end to end: preflight checks,
// measurement create, then chunk sending and result collection running
// concurrently over a single connection.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nuralogix/dfx-apiv2-client-go/adapter"
	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/capture"
	"github.com/nuralogix/dfx-apiv2-client-go/chunk"
	"github.com/nuralogix/dfx-apiv2-client-go/log"
	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/results"
	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// NotifyTimeout bounds the best-effort completion notification.
const NotifyTimeout = 10 * time.Second

// API is the subset of the REST collaborator a session uses.
// Satisfied by *api.Client.
type API interface {
	CreateMeasurement(ctx context.Context, req types.CreateRequest) (*types.Measurement, error)
	AddData(ctx context.Context, measurementID string, c *types.Chunk) (string, error)
	RetrieveResult(ctx context.Context, measurementID string, index int) (json.RawMessage, bool, error)
	Token() string
	AuthHeader() http.Header
}

// Config configures a single measurement session.
type Config struct {
	// StudyID is required. Missing it is a precondition failure.
	StudyID       string
	Resolution    types.Resolution
	UserProfileID string
	PartnerID     string

	// PayloadDir holds payload*.bin, metadata*.bin and properties*.json.
	PayloadDir string
	// DefaultDuration is the chunk duration in seconds when no properties
	// files exist. Defaults to chunk.DefaultChunkDuration.
	DefaultDuration float64

	// Mode is transport.ModeWebSocket (default) or transport.ModeREST.
	Mode string
	// PollResults enables result polling in REST mode.
	PollResults bool
	// PollInterval defaults to results.DefaultPollInterval.
	PollInterval time.Duration
	// SocketLogin dials without an Authorization header and logs in over
	// the socket instead.
	SocketLogin bool

	// API is the REST collaborator (required).
	API API
	// Dialer opens the WebSocket. Defaults to transport.WebSocketDialer.
	Dialer transport.Dialer
	// WebSocketURL defaults to api.DefaultWebSocketURL.
	WebSocketURL string

	// Sink receives each result. Defaults to results.Discard.
	Sink results.Sink
	// Observer defaults to NopObserver.
	Observer Observer
	// Store persists last_measurement on completion. Optional.
	Store Store
	// Notifier publishes a completion event, best effort. Optional.
	Notifier adapter.Adapter
	// Capture records every socket frame. Optional.
	Capture *capture.Writer

	// SessionID defaults to a random UUID.
	SessionID string
	// Collector is optional; all methods are nil-safe.
	Collector *metrics.Collector
	// Logger defaults to a stderr JSON logger.
	Logger *log.Logger
	// Sleep paces sends and polls. Defaults to transport.Sleep.
	Sleep transport.Sleeper
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result summarizes a session.
type Result struct {
	SessionID       string
	MeasurementID   string
	ChunksSent      int
	ResultsReceived int
	Duration        time.Duration
	// State is the last state reached.
	State State
}

// Orchestrator runs one session. It owns the connection and is its only
// closer.
type Orchestrator struct {
	config   Config
	logger   *log.Logger
	observer Observer
	now      func() time.Time
	state    State
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.API == nil {
		return nil, errors.New("session requires an API client")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = transport.ModeWebSocket
	case transport.ModeWebSocket, transport.ModeREST:
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Mode)
	}
	if cfg.PollResults && cfg.Mode != transport.ModeREST {
		return nil, errors.New("result polling requires rest mode")
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = chunk.DefaultChunkDuration
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.WebSocketDialer{}
	}
	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = api.DefaultWebSocketURL
	}
	if cfg.Sink == nil {
		cfg.Sink = results.Discard
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = transport.Sleep
	}

	o := &Orchestrator{
		config:   cfg,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		now:      cfg.Now,
	}
	if o.logger == nil {
		o.logger = log.NewLogger(log.SessionMeta{
			SessionID: cfg.SessionID,
			StudyID:   cfg.StudyID,
			Mode:      cfg.Mode,
		})
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// SessionID returns the client-side session id.
func (o *Orchestrator) SessionID() string {
	return o.config.SessionID
}

// Execute runs the session.
//
// Flow:
//  1. Preflight: study selected, payload files present and consistent.
//     No network call happens before this passes.
//  2. Create the measurement (Created).
//  3. Send chunks and collect results concurrently (Streaming). The
//     connection is closed once, after both tasks return.
//  4. Persist last_measurement and publish the completion event (Completed).
//
// On failure the returned Result holds what was reached so far and the
// error is a *Error.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	start := o.now()
	cfg := &o.config
	collector := cfg.Collector
	res := &Result{SessionID: cfg.SessionID}

	collector.IncSessionStarted()
	o.logger.Info("starting session", map[string]any{
		"payload_dir": cfg.PayloadDir,
		"mode":        cfg.Mode,
	})

	fail := func(op string, err error) (*Result, error) {
		serr := wrap(op, err)
		res.State = o.state
		res.Duration = o.now().Sub(start)
		collector.IncSessionFailed()
		o.logger.Error("session failed", map[string]any{
			"op":    serr.Op,
			"kind":  serr.Kind.String(),
			"error": serr.Err.Error(),
		})
		return res, serr
	}

	set, err := o.preflight()
	if err != nil {
		return fail("preflight", err)
	}
	o.logger.Info("payload files validated", map[string]any{
		"chunks":         set.Count,
		"total_duration": set.TotalDuration(),
		"has_properties": set.HasProperties(),
		"has_metadata":   set.HasMetadata(),
	})

	m, err := cfg.API.CreateMeasurement(ctx, types.CreateRequest{
		StudyID:       cfg.StudyID,
		Resolution:    cfg.Resolution,
		UserProfileID: cfg.UserProfileID,
		PartnerID:     cfg.PartnerID,
	})
	if err != nil {
		return fail("create", err)
	}
	res.MeasurementID = m.ID
	o.logger = o.logger.WithMeasurement(m.ID)
	collector.SetMeasurementID(m.ID)
	o.logger.Info("measurement created", nil)
	o.enter(StateCreated, m.ID)

	var stream streamFunc = o.streamWebSocket
	if cfg.Mode == transport.ModeREST {
		stream = o.streamREST
	}
	sent, received, err := stream(ctx, m.ID, set)
	res.ChunksSent = sent
	res.ResultsReceived = received
	if err != nil {
		if se := wrap("stream", err); se.Op == "send" {
			collector.IncSendFailure()
		}
		return fail("stream", err)
	}

	o.enter(StateCompleted, m.ID)
	res.State = o.state
	res.Duration = o.now().Sub(start)
	collector.IncSessionCompleted()
	o.logger.Info("session completed", map[string]any{
		"chunks_sent":      sent,
		"results_received": received,
		"duration_ms":      res.Duration.Milliseconds(),
	})

	o.persist(ctx, m.ID)
	o.notify(ctx, res)
	return res, nil
}

func (o *Orchestrator) preflight() (*chunk.Set, error) {
	req := types.CreateRequest{StudyID: o.config.StudyID}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return chunk.Discover(o.config.PayloadDir, chunk.Options{DefaultDuration: o.config.DefaultDuration})
}

// streamFunc returns the chunks sent and results received. Errors are
// *Error tagged with the failing phase.
type streamFunc func(ctx context.Context, measurementID string, set *chunk.Set) (int, int, error)

func (o *Orchestrator) streamWebSocket(ctx context.Context, measurementID string, set *chunk.Set) (int, int, error) {
	cfg := &o.config

	header := cfg.API.AuthHeader()
	if cfg.SocketLogin {
		header = nil
	}
	sock, err := cfg.Dialer.Dial(ctx, cfg.WebSocketURL, header)
	if err != nil {
		return 0, 0, wrap("dial", err)
	}
	if cfg.Capture != nil {
		sock = capture.Wrap(sock, cfg.Capture, func(err error) {
			o.logger.Warn("frame capture failed", map[string]any{"error": err.Error()})
		})
	}
	defer o.closeSocket(sock)

	if header.Get("Authorization") == "" {
		if err := transport.Authenticate(ctx, sock, cfg.API.Token()); err != nil {
			return 0, 0, wrap("login", err)
		}
		o.logger.Debug("socket login accepted", nil)
	}

	sub := &results.Subscriber{
		Socket:        sock,
		MeasurementID: measurementID,
		Expected:      set.Count,
		Sink:          cfg.Sink,
		Logger:        o.logger,
		Collector:     cfg.Collector,
		Now:           o.now,
	}
	if err := sub.Subscribe(ctx); err != nil {
		return 0, 0, wrap("subscribe", err)
	}

	o.enter(StateStreaming, measurementID)
	tr := &transport.WebSocket{
		Socket:        sock,
		MeasurementID: measurementID,
		Sleep:         cfg.Sleep,
		MinDuration:   set.Duration,
		OnSent:        o.onSent,
		Logger:        o.logger,
	}
	return o.join(ctx, set, tr, sub.Run)
}

func (o *Orchestrator) streamREST(ctx context.Context, measurementID string, set *chunk.Set) (int, int, error) {
	cfg := &o.config

	o.enter(StateStreaming, measurementID)
	tr := &transport.REST{
		Client:        cfg.API,
		MeasurementID: measurementID,
		Sleep:         cfg.Sleep,
		OnSent:        o.onSent,
		Logger:        o.logger,
	}
	if !cfg.PollResults {
		sent, err := tr.Send(ctx, set.Sequence())
		if err != nil {
			return sent, 0, wrap("send", err)
		}
		return sent, 0, nil
	}

	poller := &results.Poller{
		Client:        cfg.API,
		MeasurementID: measurementID,
		Expected:      set.Count,
		Interval:      cfg.PollInterval,
		Sleep:         cfg.Sleep,
		Sink:          cfg.Sink,
		Logger:        o.logger,
		Collector:     cfg.Collector,
		Now:           o.now,
	}
	return o.join(ctx, set, tr, poller.Run)
}

// join runs send and receive as sibling tasks and waits for both. The first
// failure cancels the other task and is the one returned.
func (o *Orchestrator) join(ctx context.Context, set *chunk.Set, tr transport.Transport, receive func(context.Context) (int, error)) (int, int, error) {
	var sent, received int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := tr.Send(gctx, set.Sequence())
		sent = n
		if err != nil {
			return wrap("send", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := receive(gctx)
		received = n
		if err != nil {
			return wrap("receive", err)
		}
		return nil
	})
	err := g.Wait()
	return sent, received, err
}

func (o *Orchestrator) enter(state State, measurementID string) {
	o.state = state
	o.logger.Debug("session state", map[string]any{"state": string(state)})
	o.observer.OnState(state, measurementID)
}

func (o *Orchestrator) onSent(c *types.Chunk, requestID string) {
	o.config.Collector.AddChunkSent(len(c.Payload))
	o.observer.OnChunkSent(c, requestID)
}

func (o *Orchestrator) closeSocket(sock transport.Socket) {
	if err := sock.Close(); err != nil && !transport.IsClosed(err) {
		o.logger.Warn("socket close failed", map[string]any{"error": err.Error()})
	}
}

func (o *Orchestrator) persist(ctx context.Context, measurementID string) {
	if o.config.Store == nil {
		return
	}
	if err := o.config.Store.Save(context.WithoutCancel(ctx), measurementID); err != nil {
		o.logger.Warn("failed to save last measurement", map[string]any{"error": err.Error()})
	}
}

func (o *Orchestrator) notify(ctx context.Context, res *Result) {
	if o.config.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), NotifyTimeout)
	defer cancel()

	event := adapter.NewMeasurementCompletedEvent(
		res.MeasurementID, o.config.StudyID, res.SessionID, o.config.Mode,
		res.ChunksSent, res.ResultsReceived, res.Duration, o.now(),
	)
	err := o.config.Notifier.Publish(nctx, event)
	o.config.Collector.IncNotify(err)
	if err != nil {
		o.logger.Warn("completion notification failed (best effort)", map[string]any{"error": err.Error()})
	}
}
