package calendar

import (
	"math"
	"testing"
	"time"

	"github.com/justapithecus/encore/types"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		unit Unit
		want types.TimeFact
	}{
		{
			name: "event log millis",
			ts:   1541121934796,
			unit: Millisecond,
			want: types.TimeFact{
				StartTime: time.Date(2018, 11, 2, 1, 25, 34, 796e6, time.UTC),
				Hour:      1, Week: 44, Month: 11, Year: 2018, Weekday: 4,
			},
		},
		{
			name: "epoch seconds",
			ts:   0,
			unit: Second,
			want: types.TimeFact{
				StartTime: time.Unix(0, 0).UTC(),
				Hour:      0, Week: 1, Month: 1, Year: 1970, Weekday: 3,
			},
		},
		{
			name: "iso week 53 on a sunday",
			ts:   time.Date(2021, 1, 3, 23, 0, 0, 0, time.UTC).UnixMilli(),
			unit: Millisecond,
			want: types.TimeFact{
				StartTime: time.Date(2021, 1, 3, 23, 0, 0, 0, time.UTC),
				Hour:      23, Week: 53, Month: 1, Year: 2021, Weekday: 6,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand([]int64{tt.ts}, tt.unit)
			if len(got) != 1 {
				t.Fatalf("len = %d", len(got))
			}
			if !got[0].StartTime.Equal(tt.want.StartTime) {
				t.Errorf("StartTime = %v, want %v", got[0].StartTime, tt.want.StartTime)
			}
			g, w := got[0], tt.want
			if g.Hour != w.Hour || g.Week != w.Week || g.Month != w.Month || g.Year != w.Year || g.Weekday != w.Weekday {
				t.Errorf("Expand() = %+v, want %+v", g, w)
			}
		})
	}
}

func TestExpand_PreservesOrderAndDuplicates(t *testing.T) {
	in := []int64{1541122176796, 1541121934796, 1541122176796}
	got := Expand(in, Millisecond)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].StartTime.UnixMilli() != in[0] || got[1].StartTime.UnixMilli() != in[1] {
		t.Error("order not preserved")
	}
	if got := Dedup(got); len(got) != 2 || got[0].StartTime.UnixMilli() != in[0] {
		t.Errorf("Dedup() = %+v", got)
	}
}

func TestDedup_FarApartInstantsStayDistinct(t *testing.T) {
	// 2^64 ns apart: UnixNano wraps to the same value for both.
	early := time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Duration(math.MaxInt64)).Add(time.Duration(math.MaxInt64)).Add(2)
	got := Dedup([]types.TimeFact{Fact(early), Fact(late), Fact(early)})
	if len(got) != 2 {
		t.Fatalf("Dedup() len = %d, want 2", len(got))
	}
	if !got[0].StartTime.Equal(early) || !got[1].StartTime.Equal(late) {
		t.Errorf("Dedup() = %v, %v", got[0].StartTime, got[1].StartTime)
	}
}

func TestExpand_Empty(t *testing.T) {
	if got := Expand(nil, Millisecond); len(got) != 0 {
		t.Errorf("len = %d", len(got))
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1541121934796", 1541121934796, false},
		{" 1541121934796 ", 1541121934796, false},
		{"1541121934796.0", 1541121934796, false},
		{"1541121934796.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"1e30", 0, true},
		{"-1e30", 0, true},
		{"9223372036854775808.0", 0, true},
		{"NaN", 0, true},
		{"1.5e12", 1500000000000, false},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimestamp(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{"ms": Millisecond, "s": Second, "us": Microsecond, "ns": Nanosecond, "": Millisecond} {
		got, err := ParseUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseUnit(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseUnit("fortnight"); err == nil {
		t.Error("expected error for unknown unit")
	}
}
