// Package reconcile resolves play candidates against the artist and song
// catalog, producing songplay facts.
//
// Both joins are left outer joins: every candidate yields exactly one play,
// and a candidate the catalog cannot resolve keeps nil foreign keys.
package reconcile

import (
	"math"
	"strconv"
	"time"

	"github.com/justapithecus/encore/calendar"
	"github.com/justapithecus/encore/types"
)

type songKey struct {
	title    string
	duration float64
}

// Reconcile joins candidates to artists on artist name and to songs on
// (title, duration). Durations compare as exact float64 values. When the
// catalog holds several rows for the same join key, the first one seen
// resolves it.
func Reconcile(candidates []types.PlayCandidate, artists []types.ArtistFact, songs []types.SongFact) []types.PlayFact {
	byName := make(map[string]string, len(artists))
	for _, a := range artists {
		if a.Name == "" {
			continue
		}
		if _, ok := byName[a.Name]; !ok {
			byName[a.Name] = a.ArtistID
		}
	}

	bySong := make(map[songKey]string, len(songs))
	for _, s := range songs {
		if s.Title == nil || s.Duration == nil || *s.Title == "" || math.IsNaN(*s.Duration) {
			continue
		}
		k := songKey{title: *s.Title, duration: *s.Duration}
		if _, ok := bySong[k]; !ok {
			bySong[k] = s.SongID
		}
	}

	plays := make([]types.PlayFact, len(candidates))
	for i, c := range candidates {
		p := types.PlayFact{
			StartTime: startTime(c.TS),
			UserID:    c.UserID,
			Level:     c.Level,
			SessionID: c.SessionID,
			Location:  c.Location,
			UserAgent: c.UserAgent,
		}
		if name := present(c.ArtistName); name != "" {
			if id, ok := byName[name]; ok {
				p.ArtistID = &id
			}
		}
		if k, ok := candidateSongKey(c); ok {
			if id, ok := bySong[k]; ok {
				p.SongID = &id
			}
		}
		plays[i] = p
	}
	return plays
}

func candidateSongKey(c types.PlayCandidate) (songKey, bool) {
	title, length := present(c.TrackTitle), present(c.TrackLength)
	if title == "" || length == "" {
		return songKey{}, false
	}
	f, err := strconv.ParseFloat(length, 64)
	if err != nil || math.IsNaN(f) {
		return songKey{}, false
	}
	return songKey{title: title, duration: f}, true
}

func startTime(ts *string) *time.Time {
	if ts == nil || *ts == "" {
		return nil
	}
	n, err := calendar.ParseTimestamp(*ts)
	if err != nil {
		return nil
	}
	t := calendar.Millisecond.Time(n)
	return &t
}

func present(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Summary counts how many plays each join resolved.
type Summary struct {
	Plays         int `json:"plays"`
	ArtistMatched int `json:"artist_matched"`
	SongMatched   int `json:"song_matched"`
	FullyMatched  int `json:"fully_matched"`
	Unmatched     int `json:"unmatched"`
}

// Summarize computes join statistics for a set of plays.
func Summarize(plays []types.PlayFact) Summary {
	s := Summary{Plays: len(plays)}
	for _, p := range plays {
		switch {
		case p.ArtistID != nil && p.SongID != nil:
			s.FullyMatched++
		case p.ArtistID == nil && p.SongID == nil:
			s.Unmatched++
		}
		if p.ArtistID != nil {
			s.ArtistMatched++
		}
		if p.SongID != nil {
			s.SongMatched++
		}
	}
	return s
}
