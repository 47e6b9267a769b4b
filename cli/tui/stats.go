package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nuralogix/dfx-apiv2-client-go/capture"
)

// StatsModel is a Bubble Tea model for aggregate views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{viewType: viewType, data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewCapture:
		content = m.renderCapture()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
}

func (m StatsModel) renderCapture() string {
	data, ok := m.data.(*capture.Summary)
	if !ok {
		return "Invalid data type for " + ViewCapture
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Capture Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		renderStatBox("Records", data.Records, highlightColor),
		renderStatBox("Outbound", data.Outbound, successColor),
		renderStatBox("Inbound", data.Inbound, warningColor),
		renderStatBox("Errors", data.Errors, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	if len(data.ByAction) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("By Action"))
		b.WriteString("\n")
		b.WriteString(counts(data.ByAction))
	}
	if len(data.ByStatus) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("By Status"))
		b.WriteString("\n")
		b.WriteString(counts(data.ByStatus))
	}
	if data.Truncated {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render("capture file ends with a truncated record"))
		b.WriteString("\n")
	}
	return b.String()
}

func counts(m map[string]int) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(row("  "+k, fmt.Sprintf("%d", m[k])))
	}
	return b.String()
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	p := tea.NewProgram(NewStatsModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders a stats view without a terminal program.
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
