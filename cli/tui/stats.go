package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/encore/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
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
	case ViewStatsRuns:
		content = m.renderRuns()
	case ViewStatsRun:
		content = m.renderRun()
	case ViewStatsMetrics:
		content = m.renderMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	return content + "\n" + HelpStyle.Render("Press q to quit")
}

func (m StatsModel) renderRuns() string {
	data, ok := m.data.(*reader.RunStats)
	if !ok {
		return "Invalid data type for stats_runs"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Statistics"))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Runs", fmt.Sprint(data.Total), highlightColor),
		statBox("Success", fmt.Sprint(data.Succeeded), successColor),
		statBox("Partial", fmt.Sprint(data.Partial), warningColor),
		statBox("Load Failure", fmt.Sprint(data.LoadFailed), errorColor),
		statBox("Canceled", fmt.Sprint(data.Canceled), mutedColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Rows Loaded", fmt.Sprint(data.RowsPersisted), successColor),
		statBox("Rows Rejected", fmt.Sprint(data.RowsRejected), errorColor),
		statBox("Batches Skipped", fmt.Sprint(data.BatchesSkipped), warningColor),
		statBox("Song Match", fmt.Sprintf("%.1f%%", data.MatchRate*100), highlightColor),
	))
	if data.Invalid > 0 {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%d report files could not be read", data.Invalid)))
	}
	return b.String()
}

func (m StatsModel) renderRun() string {
	data, ok := m.data.(*reader.RunDetail)
	if !ok {
		return "Invalid data type for stats_run"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run " + data.RunID))
	b.WriteString("\n")

	fields := [][2]string{
		{"Outcome", OutcomeStyle(data.Outcome).Render(data.Outcome)},
		{"Message", ValueStyle.Render(data.Message)},
		{"Attempt", ValueStyle.Render(fmt.Sprint(data.Attempt))},
		{"Started", ValueStyle.Render(data.StartedAt.Format("2006-01-02 15:04:05"))},
		{"Duration", ValueStyle.Render(fmt.Sprintf("%dms", data.DurationMs))},
		{"Files / Records", ValueStyle.Render(fmt.Sprintf("%d / %d", data.FilesRead, data.RecordsRead))},
		{"Plays", ValueStyle.Render(fmt.Sprintf("%d (artist %d, song %d)", data.Plays, data.ArtistMatched, data.SongMatched))},
		{"Policy", ValueStyle.Render(data.Policy)},
	}
	if data.JobID != "" {
		fields = slices.Insert(fields, 2, [2]string{"Job", ValueStyle.Render(data.JobID)})
	}
	for _, f := range fields {
		b.WriteString(LabelStyle.Render(f[0]+":") + " " + f[1] + "\n")
	}

	b.WriteString("\n")
	header := fmt.Sprintf("%-10s %10s %10s %10s", "table", "produced", "persisted", "rejected")
	b.WriteString(LabelStyle.UnsetWidth().Render(header) + "\n")
	for _, t := range data.Tables {
		line := fmt.Sprintf("%-10s %10d %10d %10d", t.Table, t.Produced, t.Persisted, t.Rejected)
		if t.Rejected > 0 {
			line = WarningStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	return BoxStyle.Render(b.String())
}

func (m StatsModel) renderMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Metrics " + data.RunID))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Files", fmt.Sprint(data.FilesRead), highlightColor),
		statBox("Records", fmt.Sprint(data.RecordsRead), highlightColor),
		statBox("Skipped", fmt.Sprint(data.BatchesSkipped), warningColor),
		statBox("Plays", fmt.Sprint(data.Plays), highlightColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Received", fmt.Sprint(data.RowsReceived), highlightColor),
		statBox("Persisted", fmt.Sprint(data.RowsPersisted), successColor),
		statBox("Rejected", fmt.Sprint(data.RowsRejected), errorColor),
	))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(fmt.Sprintf("policy=%s store=%s staging=%s completed=%s",
		data.Policy, data.StoreDriver, data.StagingBackend, data.CompletedAt)))
	return b.String()
}

func statBox(label, value string, color lipgloss.Color) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatValueStyle.Foreground(color).Render(value),
		StatLabelStyle.Render(label),
	)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

// RenderStatsStatic renders a stats view without starting a program.
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
