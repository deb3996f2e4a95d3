// Package events turns validated listening-event records into user and time
// dimension facts and the play candidates that the reconciler joins against
// the catalog.
package events

import (
	"github.com/justapithecus/encore/batch"
	"github.com/justapithecus/encore/calendar"
	"github.com/justapithecus/encore/types"
	"github.com/justapithecus/encore/validate"
)

// PageNextSong marks an actual playback event.
const PageNextSong = "NextSong"

// AuthLoggedIn is the only auth status kept.
const AuthLoggedIn = "Logged In"

// Schema is the event-log input schema. Keys are the raw camelCase names
// used by the log producer.
var Schema = validate.Schema{
	Columns: []validate.Column{
		{Name: "userId", Type: validate.TypeString},
		{Name: "firstName", Type: validate.TypeString},
		{Name: "lastName", Type: validate.TypeString},
		{Name: "gender", Type: validate.TypeString},
		{Name: "level", Type: validate.TypeString},
		{Name: "ts", Type: validate.TypeNumericString},
		{Name: "auth", Type: validate.TypeString},
		{Name: "page", Type: validate.TypeString},
		{Name: "sessionId", Type: validate.TypeInt},
		{Name: "location", Type: validate.TypeString},
		{Name: "userAgent", Type: validate.TypeString},
		{Name: "artist", Type: validate.TypeString},
		{Name: "length", Type: validate.TypeNumericString},
		{Name: "song", Type: validate.TypeString},
	},
	NotNull: []string{"userId", "level"},
	Filter:  &validate.Match{Column: "auth", Value: AuthLoggedIn},
}

// Result is the output of Process.
type Result struct {
	Candidates  []types.PlayCandidate
	Times       []types.TimeFact
	Users       []types.UserFact
	Diagnostics []validate.Diagnostic
	// DroppedUsers counts logged-in rows whose user_id or level was empty
	// after normalization. Such rows contribute no user, time or candidate.
	DroppedUsers int
	// UntimedPlays counts playback rows without a usable timestamp. They
	// still become candidates but produce no time row.
	UntimedPlays int
}

// Process validates event batches and projects them.
func Process(batches []batch.Batch) Result {
	table, diags := validate.Validate(batches, Schema)
	res := Project(table)
	res.Diagnostics = diags
	return res
}

// Project converts an already-validated, already-filtered event table.
// Users are deduplicated on user_id and times on start_time, first
// occurrence winning.
func Project(table *batch.Table) Result {
	var res Result
	seenUser := make(map[string]struct{})
	var stamps []int64

	for _, raw := range table.Rows() {
		row := make([]any, len(raw))
		copy(row, raw)
		validate.NormalizeRow(row)
		r := table.View(row)

		userID, level := r.String("userId"), r.String("level")
		if userID == nil || level == nil {
			res.DroppedUsers++
			continue
		}

		if _, ok := seenUser[*userID]; !ok {
			seenUser[*userID] = struct{}{}
			res.Users = append(res.Users, types.UserFact{
				UserID:    *userID,
				FirstName: r.String("firstName"),
				LastName:  r.String("lastName"),
				Gender:    r.String("gender"),
				Level:     *level,
			})
		}

		if page := r.String("page"); page == nil || *page != PageNextSong {
			continue
		}

		ts := r.String("ts")
		if ts != nil {
			if n, err := calendar.ParseTimestamp(*ts); err == nil {
				stamps = append(stamps, n)
			} else {
				res.UntimedPlays++
			}
		} else {
			res.UntimedPlays++
		}

		res.Candidates = append(res.Candidates, types.PlayCandidate{
			TS:          ts,
			UserID:      *userID,
			Level:       *level,
			SessionID:   r.Int("sessionId"),
			Location:    r.String("location"),
			UserAgent:   r.String("userAgent"),
			ArtistName:  r.String("artist"),
			TrackLength: r.String("length"),
			TrackTitle:  r.String("song"),
		})
	}

	res.Times = calendar.Dedup(calendar.Expand(stamps, calendar.Millisecond))
	return res
}
