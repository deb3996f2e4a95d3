package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/encore/cli/reader"
	"github.com/justapithecus/encore/lode"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewStatsRuns, true},
		{ViewStatsRun, true},
		{ViewStatsMetrics, true},
		{ViewInspectRows, true},
		{"list_runs", false},
		{"migrate_status", false},
		{"version", false},
		{"run", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews_ReturnsCopy(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 4 {
		t.Fatalf("SupportedTUIViews() returned %d views, expected 4", len(views))
	}
	views[0] = "mutated"
	if !IsTUISupported(ViewStatsRuns) {
		t.Error("mutating the returned slice changed supported views")
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("list_runs", nil); err == nil {
		t.Error("expected error for unsupported view type")
	}
}

func TestRenderStatsStatic(t *testing.T) {
	tests := []struct {
		name     string
		viewType string
		data     any
		want     []string
	}{
		{
			"runs",
			ViewStatsRuns,
			&reader.RunStats{Total: 3, Succeeded: 2, Partial: 1, RowsPersisted: 120, MatchRate: 0.25},
			[]string{"Run Statistics", "120", "25.0%"},
		},
		{
			"run detail",
			ViewStatsRun,
			&reader.RunDetail{
				RunID:     "run-7",
				Outcome:   "partial",
				StartedAt: time.Date(2018, 11, 30, 0, 0, 0, 0, time.UTC),
				Tables:    []reader.TableRow{{Table: "songplays", Produced: 10, Persisted: 9, Rejected: 1}},
			},
			[]string{"run-7", "partial", "songplays"},
		},
		{
			"metrics",
			ViewStatsMetrics,
			&reader.MetricsSnapshot{RunID: "run-9", Policy: "strict", StoreDriver: "sqlite", RowsPersisted: 42},
			[]string{"run-9", "42", "store=sqlite"},
		},
		{
			"wrong payload",
			ViewStatsRuns,
			"nope",
			[]string{"Invalid data type"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderStatsStatic(tt.viewType, tt.data)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRowsModel(t *testing.T) {
	rows := []lode.StagedRow{
		{Table: "users", RunID: "run-1", Key: "39", Values: map[string]any{
			"user_id": "39", "first_name": "Walter", "last_name": "Frye", "gender": "M", "level": "free",
		}},
		{Table: "users", RunID: "run-1", Key: "8", Values: map[string]any{
			"user_id": "8", "first_name": "Kaylee", "last_name": nil, "gender": "F", "level": "free",
		}},
	}

	m, err := NewRowsModel(rows)
	if err != nil {
		t.Fatalf("NewRowsModel: %v", err)
	}
	view := m.View()
	for _, w := range []string{"Staged rows (2)", "first_name", "Walter", "∅"} {
		if !strings.Contains(view, w) {
			t.Errorf("view missing %q:\n%s", w, view)
		}
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
	if next.(RowsModel).View() != "" {
		t.Error("expected empty view after quit")
	}
}

func TestNewRowsModel_WrongType(t *testing.T) {
	if _, err := NewRowsModel(map[string]any{}); err == nil {
		t.Fatal("expected error for wrong payload type")
	}
}
