package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nuralogix/dfx-apiv2-client-go/session"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// refreshInterval is how often the progress view polls its tracker.
const refreshInterval = 100 * time.Millisecond

// Tracker accumulates session progress. It implements session.Observer and
// results.Sink and never blocks, so it can sit on the send and receive paths.
type Tracker struct {
	mu            sync.Mutex
	state         session.State
	measurementID string
	total         int
	sent          int
	results       int
	lastAction    types.ChunkAction
}

// Progress is a point-in-time view of a Tracker.
type Progress struct {
	State         session.State
	MeasurementID string
	Total         int
	Sent          int
	Results       int
	LastAction    types.ChunkAction
}

// NewTracker creates a tracker expecting total chunks. Zero means unknown
// until the first chunk reports its total.
func NewTracker(total int) *Tracker {
	return &Tracker{total: total}
}

// OnState implements session.Observer.
func (t *Tracker) OnState(state session.State, measurementID string) {
	t.mu.Lock()
	t.state, t.measurementID = state, measurementID
	t.mu.Unlock()
}

// OnChunkSent implements session.Observer.
func (t *Tracker) OnChunkSent(c *types.Chunk, _ string) {
	t.mu.Lock()
	t.sent++
	t.lastAction = c.Action
	if c.Total > t.total {
		t.total = c.Total
	}
	t.mu.Unlock()
}

// WriteResult implements results.Sink.
func (t *Tracker) WriteResult(_ context.Context, _ *types.Result) error {
	t.mu.Lock()
	t.results++
	t.mu.Unlock()
	return nil
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Progress{
		State:         t.state,
		MeasurementID: t.measurementID,
		Total:         t.total,
		Sent:          t.sent,
		Results:       t.results,
		LastAction:    t.lastAction,
	}
}

type tickMsg struct{}

// DoneMsg ends the progress view with the session outcome.
type DoneMsg struct {
	Err error
}

// ProgressModel renders a running measurement.
type ProgressModel struct {
	tracker  *Tracker
	bar      progress.Model
	current  Progress
	done     bool
	err      error
	quitting bool
}

// NewProgressModel creates a progress view over tracker.
func NewProgressModel(tracker *Tracker) ProgressModel {
	return ProgressModel{
		tracker: tracker,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if w := msg.Width - 4; w > 10 && w < 80 {
			m.bar.Width = w
		}
	case tickMsg:
		m.current = m.tracker.Snapshot()
		if m.done {
			return m, nil
		}
		return m, tick()
	case DoneMsg:
		m.current = m.tracker.Snapshot()
		m.done, m.err = true, msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// Quitting reports whether the user asked to quit.
func (m ProgressModel) Quitting() bool {
	return m.quitting
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	p := m.current
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Measurement"))
	b.WriteString("\n")
	id := p.MeasurementID
	if id == "" {
		id = "-"
	}
	state := string(p.State)
	if state == "" {
		state = "preflight"
	}
	if m.err != nil {
		state = "failed"
	}
	b.WriteString(row("ID", id))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("State:"), StateStyle(state).Render(state)))

	percent := 0.0
	if p.Total > 0 {
		percent = float64(p.Sent) / float64(p.Total)
	}
	b.WriteString(row("Chunks", fmt.Sprintf("%d/%d", p.Sent, p.Total)))
	b.WriteString(row("Results", fmt.Sprintf("%d", p.Results)))
	if p.LastAction != "" {
		b.WriteString(row("Last action", string(p.LastAction)))
	}
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(percent))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	if !m.done {
		b.WriteString(HelpStyle.Render("Press q or Ctrl+C to abort"))
	}
	return b.String()
}

// RunProgress runs fn while showing its progress. fn receives a context
// that is canceled when the user quits the view. The returned error is
// fn's.
func RunProgress(ctx context.Context, tracker *Tracker, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(tracker))

	errCh := make(chan error, 1)
	go func() {
		err := fn(ctx)
		errCh <- err
		p.Send(DoneMsg{Err: err})
	}()

	final, runErr := p.Run()
	if m, ok := final.(ProgressModel); ok && m.Quitting() {
		cancel()
	}
	err := <-errCh
	if err == nil && runErr != nil {
		return fmt.Errorf("progress view: %w", runErr)
	}
	return err
}
