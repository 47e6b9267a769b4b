package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/archive"
	"github.com/nuralogix/dfx-apiv2-client-go/capture"
	"github.com/nuralogix/dfx-apiv2-client-go/chunk"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/render"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/tui"
	"github.com/nuralogix/dfx-apiv2-client-go/iox"
	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/results"
	"github.com/nuralogix/dfx-apiv2-client-go/session"
	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// MeasureCommand returns the measure command with subcommands.
func MeasureCommand() *cli.Command {
	return &cli.Command{
		Name:  "measure",
		Usage: "Make, show, list and delete measurements",
		Subcommands: []*cli.Command{
			measureMakeCommand(),
			{
				Name:      "get",
				Usage:     "Show a measurement (defaults to the last measurement)",
				ArgsUsage: "[measurement-id]",
				Flags: append(ReadOnlyFlags(),
					&cli.BoolFlag{
						Name:  "no-results",
						Usage: "Do not expand results",
					},
				),
				Action: measureGetAction,
			},
			{
				Name:  "list",
				Usage: "List measurements",
				Flags: append(ReadOnlyFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of measurements to return",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of measurements to skip",
					},
					&cli.StringFlag{
						Name:  "profile_id",
						Usage: "Filter by user profile id",
					},
					&cli.StringFlag{
						Name:  "partner_id",
						Usage: "Filter by partner id",
					},
					&cli.StringFlag{
						Name:  "study_id",
						Usage: "Filter by study id",
					},
					&cli.StringFlag{
						Name:  "status_id",
						Usage: "Filter by status id",
					},
				),
				Action: measureListAction,
			},
			{
				Name:      "delete",
				Usage:     "Delete a measurement",
				ArgsUsage: "<measurement-id>",
				Action:    measureDeleteAction,
			},
		},
	}
}

func measureMakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "make",
		Usage:     "Create a measurement and stream a folder of payload chunks to it",
		ArgsUsage: "<payloads-folder>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "rest",
				Usage: "Send chunks over REST instead of the WebSocket",
			},
			&cli.BoolFlag{
				Name:  "poll",
				Usage: "Poll for results (REST mode only)",
			},
			&cli.BoolFlag{
				Name:  "socket-login",
				Usage: "Authenticate over the socket instead of the handshake header",
			},
			&cli.StringFlag{
				Name:  "user_profile_id",
				Usage: "Profile the measurement belongs to",
			},
			&cli.StringFlag{
				Name:  "partner_id",
				Usage: "Partner id recorded with the measurement",
			},
			&cli.IntFlag{
				Name:  "resolution",
				Usage: "Measurement resolution (0 is batch)",
			},
			&cli.Float64Flag{
				Name:  "chunk_duration_s",
				Usage: "Chunk duration in seconds when no properties files exist",
				Value: chunk.DefaultChunkDuration,
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "Record every socket frame to this file",
			},
			&cli.StringFlag{
				Name:  "archive",
				Usage: "Archive results to this directory (fs backend)",
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "Write session metrics in Prometheus text format to this file",
			},
		),
		Action: measureMakeAction,
	}
}

// MakeResponse is the response for measure make.
type MakeResponse struct {
	SessionID       string `json:"session_id" yaml:"session_id"`
	MeasurementID   string `json:"measurement_id" yaml:"measurement_id"`
	State           string `json:"state" yaml:"state"`
	ChunksSent      int    `json:"chunks_sent" yaml:"chunks_sent"`
	ResultsReceived int    `json:"results_received" yaml:"results_received"`
	Duration        string `json:"duration" yaml:"duration"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}

// makeOptions is measure make configuration after merging flags over settings.
type makeOptions struct {
	dir             string
	mode            string
	poll            bool
	pollInterval    time.Duration
	socketLogin     bool
	resolution      types.Resolution
	userProfileID   string
	partnerID       string
	chunkDuration   float64
	capturePath     string
	metricsTextfile string
	storage         storageChoice
}

func parseMakeOptions(c *cli.Context, e *env) (makeOptions, error) {
	m := e.settings.Measure
	opts := makeOptions{
		dir:             c.Args().First(),
		mode:            m.Mode,
		poll:            m.PollResults || c.Bool("poll"),
		pollInterval:    m.PollInterval.Duration,
		socketLogin:     m.SocketLogin || c.Bool("socket-login"),
		resolution:      types.Resolution(m.Resolution),
		userProfileID:   c.String("user_profile_id"),
		partnerID:       c.String("partner_id"),
		chunkDuration:   c.Float64("chunk_duration_s"),
		capturePath:     firstNonEmpty(c.String("capture"), e.settings.Capture.Path),
		metricsTextfile: firstNonEmpty(c.String("metrics-textfile"), e.settings.Metrics.Textfile),
		storage:         storageFromSettings(e.settings.Storage),
	}
	if opts.dir == "" {
		return opts, errors.New("measure make requires a payloads folder")
	}
	if c.Bool("rest") {
		opts.mode = transport.ModeREST
	}
	if opts.mode == "" {
		opts.mode = transport.ModeWebSocket
	}
	if c.IsSet("resolution") {
		opts.resolution = types.Resolution(c.Int("resolution"))
	}
	if !c.IsSet("chunk_duration_s") && m.ChunkDuration > 0 {
		opts.chunkDuration = m.ChunkDuration
	}
	if path := c.String("archive"); path != "" {
		opts.storage = storageChoice{backend: "fs", path: path, dataset: opts.storage.dataset}
	}
	if opts.poll && opts.mode != transport.ModeREST {
		return opts, errors.New("--poll requires --rest (or measure.mode: rest)")
	}
	return opts, nil
}

func measureMakeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	e, err := loadEnv(c)
	if err != nil {
		return exit(err)
	}
	opts, err := parseMakeOptions(c, e)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	creds := e.store.Credentials()
	client, err := e.client(false)
	if err != nil {
		return exit(err)
	}
	logger := e.logger
	collector := metrics.NewCollector(opts.mode, opts.storage.backend, e.sessionID)

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	sinks := results.MultiSink{results.LogSink{Logger: logger}}

	arch, err := buildArchive(ctx, opts.storage, archive.Config{
		StudyID:   creds.SelectedStudy,
		SessionID: e.sessionID,
		Mode:      opts.mode,
	})
	if err != nil {
		return exit(err)
	}
	if arch != nil {
		arch.WithCollector(collector)
		defer iox.DiscardClose(arch)
		sinks = append(sinks, arch)
	}

	var tracker *tui.Tracker
	var observer session.Observer
	if c.Bool("tui") {
		tracker = tui.NewTracker(0)
		observer = tracker
		sinks = append(sinks, tracker)
	}

	var capWriter *capture.Writer
	if opts.capturePath != "" {
		f, err := os.Create(opts.capturePath)
		if err != nil {
			return exit(fmt.Errorf("cannot create capture file: %w", err))
		}
		defer iox.DiscardClose(f)
		capWriter = capture.NewWriter(f)
	}

	notifier, err := buildAdapter(e.settings.Adapter)
	if err != nil {
		return exit(err)
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	orch, err := session.New(session.Config{
		StudyID:         creds.SelectedStudy,
		Resolution:      opts.resolution,
		UserProfileID:   opts.userProfileID,
		PartnerID:       opts.partnerID,
		PayloadDir:      opts.dir,
		DefaultDuration: opts.chunkDuration,
		Mode:            opts.mode,
		PollResults:     opts.poll,
		PollInterval:    opts.pollInterval,
		SocketLogin:     opts.socketLogin,
		API:             client,
		WebSocketURL:    e.wsURL,
		Sink:            sinks,
		Observer:        observer,
		Store:           e.store,
		Notifier:        notifier,
		Capture:         capWriter,
		SessionID:       e.sessionID,
		Collector:       collector,
		Logger:          logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	var res *session.Result
	run := func(ctx context.Context) error {
		var runErr error
		res, runErr = orch.Execute(ctx)
		return runErr
	}
	if tracker != nil {
		err = tui.RunProgress(ctx, tracker, run)
	} else {
		err = run(ctx)
	}

	if arch != nil && res != nil && res.MeasurementID != "" {
		if serr := arch.WriteSummary(ctx, archive.Summary{
			MeasurementID:   res.MeasurementID,
			ChunksSent:      res.ChunksSent,
			ResultsReceived: res.ResultsReceived,
			Duration:        res.Duration,
			State:           string(res.State),
			CompletedAt:     time.Now(),
		}); serr != nil {
			logger.Warn("archive summary failed", map[string]any{"error": serr.Error()})
		}
	}
	if opts.metricsTextfile != "" {
		if merr := metrics.WriteTextfile(opts.metricsTextfile, collector.Snapshot()); merr != nil {
			logger.Warn("metrics textfile failed", map[string]any{"error": merr.Error()})
		}
	}
	iox.DiscardErr(logger.Sync)

	if res != nil {
		resp := MakeResponse{
			SessionID:       res.SessionID,
			MeasurementID:   res.MeasurementID,
			State:           string(res.State),
			ChunksSent:      res.ChunksSent,
			ResultsReceived: res.ResultsReceived,
			Duration:        res.Duration.Round(time.Millisecond).String(),
		}
		if err != nil {
			resp.Error = err.Error()
		}
		if rerr := r.Render(resp); rerr != nil && err == nil {
			return rerr
		}
	}
	return exit(err)
}

func measureGetAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	client, e, err := authedClient(c)
	if err != nil {
		return exit(err)
	}
	id := c.Args().First()
	if id == "" {
		id = e.store.Credentials().LastMeasurement
	}
	if id == "" {
		return cli.Exit("no measurement id given and no last measurement recorded", exitPrecondition)
	}

	rec, err := client.RetrieveMeasurement(c.Context, id, !c.Bool("no-results"))
	if err != nil {
		return exit(err)
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewMeasurement, rec)
	}
	return r.Render(rec)
}

func measureListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", exitError)
	}

	client, _, err := authedClient(c)
	if err != nil {
		return exit(err)
	}
	recs, err := client.ListMeasurements(c.Context, api.ListOptions{
		UserProfileID: c.String("profile_id"),
		PartnerID:     c.String("partner_id"),
		StudyID:       c.String("study_id"),
		StatusID:      c.String("status_id"),
		Limit:         c.Int("limit"),
		Offset:        c.Int("offset"),
	})
	if err != nil {
		return exit(err)
	}
	if recs == nil {
		recs = []api.MeasurementRecord{}
	}
	return r.Render(recs)
}

func measureDeleteAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.Exit("measure delete requires a measurement id", exitError)
	}
	client, e, err := authedClient(c)
	if err != nil {
		return exit(err)
	}
	if err := client.DeleteMeasurement(c.Context, id); err != nil {
		return exit(err)
	}
	e.logger.Info("measurement deleted", map[string]any{"measurement_id": id})
	return nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
