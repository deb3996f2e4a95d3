package types

import (
	"strconv"
	"strings"
	"time"
)

// ArtistFact is one row of the artists table.
type ArtistFact struct {
	ArtistID  string   `json:"artist_id" msgpack:"artist_id"`
	Name      string   `json:"name" msgpack:"name"`
	Location  *string  `json:"location" msgpack:"location"`
	Latitude  *float64 `json:"latitude" msgpack:"latitude"`
	Longitude *float64 `json:"longitude" msgpack:"longitude"`
}

// Key implements Fact.
func (a ArtistFact) Key() string { return a.ArtistID }

// Row implements Fact.
func (a ArtistFact) Row() Row {
	return Row{a.ArtistID, a.Name, deref(a.Location), deref(a.Latitude), deref(a.Longitude)}
}

// SongFact is one row of the songs table.
type SongFact struct {
	SongID   string   `json:"song_id" msgpack:"song_id"`
	Title    *string  `json:"title" msgpack:"title"`
	ArtistID *string  `json:"artist_id" msgpack:"artist_id"`
	Year     *int64   `json:"year" msgpack:"year"`
	Duration *float64 `json:"duration" msgpack:"duration"`
}

// Key implements Fact.
func (s SongFact) Key() string { return s.SongID }

// Row implements Fact.
func (s SongFact) Row() Row {
	return Row{s.SongID, deref(s.Title), deref(s.ArtistID), deref(s.Year), deref(s.Duration)}
}

// UserFact is one row of the users table.
type UserFact struct {
	UserID    string  `json:"user_id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Gender    *string `json:"gender"`
	Level     string  `json:"level"`
}

// Key implements Fact.
func (u UserFact) Key() string { return u.UserID }

// Row implements Fact.
func (u UserFact) Row() Row {
	return Row{u.UserID, deref(u.FirstName), deref(u.LastName), deref(u.Gender), u.Level}
}

// TimeFact is one row of the time table. StartTime is the natural key.
// Weekday uses Monday=0 through Sunday=6; Week is the ISO 8601 week.
type TimeFact struct {
	StartTime time.Time `json:"start_time"`
	Hour      int       `json:"hour"`
	Week      int       `json:"week"`
	Month     int       `json:"month"`
	Year      int       `json:"year"`
	Weekday   int       `json:"weekday"`
}

// Key implements Fact.
func (t TimeFact) Key() string { return formatTime(t.StartTime) }

// Row implements Fact.
func (t TimeFact) Row() Row {
	return Row{t.StartTime, int64(t.Hour), int64(t.Week), int64(t.Month), int64(t.Year), int64(t.Weekday)}
}

// PlayCandidate is a logged-in NextSong event that has not been matched
// against the catalog yet. TS and TrackLength keep the exact text of the
// source so the join compares original representations.
type PlayCandidate struct {
	TS          *string
	UserID      string
	Level       string
	SessionID   *int64
	Location    *string
	UserAgent   *string
	ArtistName  *string
	TrackLength *string
	TrackTitle  *string
}

// PlayFact is one row of the songplays table. SongID and ArtistID are nil
// when the catalog has no match.
type PlayFact struct {
	StartTime *time.Time `json:"start_time"`
	UserID    string     `json:"user_id"`
	Level     string     `json:"level"`
	SongID    *string    `json:"song_id"`
	ArtistID  *string    `json:"artist_id"`
	SessionID *int64     `json:"session_id"`
	Location  *string    `json:"location"`
	UserAgent *string    `json:"user_agent"`
}

// Key implements Fact. A play is identified by when, who and which session.
func (p PlayFact) Key() string {
	var b strings.Builder
	if p.StartTime != nil {
		b.WriteString(formatTime(*p.StartTime))
	}
	b.WriteByte('|')
	b.WriteString(p.UserID)
	b.WriteByte('|')
	if p.SessionID != nil {
		b.WriteString(strconv.FormatInt(*p.SessionID, 10))
	}
	return b.String()
}

// Row implements Fact.
func (p PlayFact) Row() Row {
	return Row{
		deref(p.StartTime), p.UserID, p.Level, deref(p.SongID), deref(p.ArtistID),
		deref(p.SessionID), deref(p.Location), deref(p.UserAgent),
	}
}

// deref returns the pointed-to value, or nil (the absent marker).
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
