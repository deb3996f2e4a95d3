package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/encore/lode"
	"github.com/justapithecus/encore/types"
)

// maxCellWidth caps a column's width in the rows table.
const maxCellWidth = 28

// RowsModel browses staged rows in a scrollable table.
type RowsModel struct {
	table    table.Model
	count    int
	quitting bool
}

// NewRowsModel builds a rows view. All rows must belong to one table.
func NewRowsModel(data any) (RowsModel, error) {
	rows, ok := data.([]lode.StagedRow)
	if !ok {
		return RowsModel{}, fmt.Errorf("inspect_rows expects []lode.StagedRow, got %T", data)
	}

	var cols []string
	if len(rows) > 0 {
		cols = types.Columns(types.Table(rows[0].Table))
		if cols == nil {
			cols = sortedValueKeys(rows[0].Values)
		}
	}

	columns := make([]table.Column, 0, len(cols)+1)
	columns = append(columns, table.Column{Title: "run_id", Width: len("run_id")})
	for _, c := range cols {
		columns = append(columns, table.Column{Title: c, Width: len(c)})
	}

	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		row := make(table.Row, 0, len(columns))
		row = append(row, r.RunID)
		for _, c := range cols {
			row = append(row, cell(r.Values[c]))
		}
		for i, v := range row {
			columns[i].Width = min(max(columns[i].Width, lipgloss.Width(v)), maxCellWidth)
		}
		tableRows = append(tableRows, row)
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows),
		table.WithFocused(true),
		table.WithHeight(min(len(tableRows)+2, 20)),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(primaryColor).Bold(true)
	s.Selected = s.Selected.Foreground(lipgloss.Color("#FFFFFF")).Background(highlightColor)
	t.SetStyles(s)

	return RowsModel{table: t, count: len(rows)}, nil
}

// Init implements tea.Model.
func (m RowsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m RowsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-6, 3))
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m RowsModel) View() string {
	if m.quitting {
		return ""
	}
	title := TitleStyle.Render(fmt.Sprintf("Staged rows (%d)", m.count))
	help := HelpStyle.Render("↑/↓ scroll • q quit")
	return title + "\n" + BoxStyle.Padding(0, 1).Render(m.table.View()) + "\n" + help
}

func cell(v any) string {
	if v == nil {
		return "∅"
	}
	return fmt.Sprint(v)
}

func sortedValueKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
