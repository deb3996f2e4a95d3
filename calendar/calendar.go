// Package calendar expands epoch timestamps into calendar attributes.
// All computation is in UTC.
package calendar

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/justapithecus/encore/types"
)

// Unit is the resolution of an epoch timestamp.
type Unit int

const (
	Millisecond Unit = iota
	Second
	Microsecond
	Nanosecond
)

// ParseUnit maps a unit name ("ms", "s", "us", "ns") to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(s) {
	case "ms", "millisecond", "milliseconds", "":
		return Millisecond, nil
	case "s", "second", "seconds":
		return Second, nil
	case "us", "microsecond", "microseconds":
		return Microsecond, nil
	case "ns", "nanosecond", "nanoseconds":
		return Nanosecond, nil
	}
	return 0, fmt.Errorf("unknown timestamp unit %q", s)
}

// Time converts an epoch value to a UTC time.
func (u Unit) Time(v int64) time.Time {
	switch u {
	case Second:
		return time.Unix(v, 0).UTC()
	case Microsecond:
		return time.UnixMicro(v).UTC()
	case Nanosecond:
		return time.Unix(0, v).UTC()
	default:
		return time.UnixMilli(v).UTC()
	}
}

// Expand derives one TimeFact per timestamp, preserving input order and
// duplicates.
func Expand(timestamps []int64, unit Unit) []types.TimeFact {
	out := make([]types.TimeFact, len(timestamps))
	for i, ts := range timestamps {
		out[i] = Fact(unit.Time(ts))
	}
	return out
}

// Fact derives calendar attributes for one instant. Week is the ISO-8601
// week number; weekday counts Monday as 0 through Sunday as 6.
func Fact(t time.Time) types.TimeFact {
	t = t.UTC()
	_, week := t.ISOWeek()
	return types.TimeFact{
		StartTime: t,
		Hour:      t.Hour(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// ParseTimestamp parses the exact text of an integral epoch value.
// Text with a fractional part is accepted only when the fraction is zero.
func ParseTimestamp(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", text, err)
	}
	if math.Trunc(f) != f || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse timestamp %q: not integral", text)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("parse timestamp %q: out of range", text)
	}
	return int64(f), nil
}

// instant identifies a start time exactly over the whole time.Time range.
type instant struct {
	sec  int64
	nsec int
}

// Dedup removes facts whose start time was already seen. The first
// occurrence wins and order is otherwise preserved.
func Dedup(facts []types.TimeFact) []types.TimeFact {
	seen := make(map[instant]struct{}, len(facts))
	out := make([]types.TimeFact, 0, len(facts))
	for _, f := range facts {
		k := instant{sec: f.StartTime.Unix(), nsec: f.StartTime.Nanosecond()}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}
