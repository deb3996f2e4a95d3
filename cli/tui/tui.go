package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// View types with TUI support.
const (
	ViewStatsRuns    = "stats_runs"
	ViewStatsRun     = "stats_run"
	ViewStatsMetrics = "stats_metrics"
	ViewInspectRows  = "inspect_rows"
)

var supportedViews = []string{ViewStatsRuns, ViewStatsRun, ViewStatsMetrics, ViewInspectRows}

// Run starts the TUI for viewType.
func Run(viewType string, data any) error {
	model, err := newModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func newModel(viewType string, data any) (tea.Model, error) {
	switch viewType {
	case ViewStatsRuns, ViewStatsRun, ViewStatsMetrics:
		return NewStatsModel(viewType, data), nil
	case ViewInspectRows:
		return NewRowsModel(data)
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(supportedViews, viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return slices.Clone(supportedViews)
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
