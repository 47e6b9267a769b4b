package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
)

// InspectModel is a Bubble Tea model for a single record.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{viewType: viewType, data: data}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewMeasurement:
		content = m.renderMeasurement()
	case ViewStudy:
		content = m.renderStudy()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
}

func (m InspectModel) renderMeasurement() string {
	data, ok := m.data.(*api.MeasurementRecord)
	if !ok {
		return "Invalid data type for " + ViewMeasurement
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Measurement"))
	b.WriteString("\n\n")
	b.WriteString(row("ID", data.ID))
	b.WriteString(row("Study", data.StudyID))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Status:"), StateStyle(data.StatusID).Render(data.StatusID)))
	b.WriteString(row("Resolution", fmt.Sprintf("%d", data.Resolution)))
	if data.UserProfileID != "" {
		b.WriteString(row("Profile", data.UserProfileID))
	}
	if data.PartnerID != "" {
		b.WriteString(row("Partner", data.PartnerID))
	}
	b.WriteString(row("Created", formatUnix(data.Created)))
	if data.Updated != 0 {
		b.WriteString(row("Updated", formatUnix(data.Updated)))
	}
	if len(data.Results) > 0 {
		b.WriteString(row("Results", fmt.Sprintf("%d bytes", len(data.Results))))
	}
	return BoxStyle.Render(b.String())
}

func (m InspectModel) renderStudy() string {
	data, ok := m.data.(*api.Study)
	if !ok {
		return "Invalid data type for " + ViewStudy
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Study"))
	b.WriteString("\n\n")
	b.WriteString(row("ID", data.ID))
	b.WriteString(row("Name", data.Name))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Status:"), StateStyle(data.StatusID).Render(data.StatusID)))
	if data.Description != "" {
		b.WriteString(row("Description", data.Description))
	}
	if data.StudyTemplateID != "" {
		b.WriteString(row("Template", data.StudyTemplateID))
	}
	b.WriteString(row("Participants", fmt.Sprintf("%d", data.Participants)))
	b.WriteString(row("Created", formatUnix(data.Created)))
	return BoxStyle.Render(b.String())
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	p := tea.NewProgram(NewInspectModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders an inspect view without a terminal program.
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
