package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// View types.
const (
	ViewMeasurement = "inspect_measurement"
	ViewStudy       = "inspect_study"
	ViewCapture     = "stats_capture"
)

// Run starts the view for viewType.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	if strings.HasPrefix(viewType, "inspect_") {
		return RunInspectTUI(viewType, data)
	}
	return RunStatsTUI(viewType, data)
}

// IsTUISupported reports whether viewType has an interactive view.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews lists the view types with an interactive view.
func SupportedTUIViews() []string {
	return []string{ViewMeasurement, ViewStudy, ViewCapture}
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s\n", LabelStyle.Render(label+":"), ValueStyle.Render(value))
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return unixTime(ts).Format("2006-01-02 15:04:05")
}
