package events

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/justapithecus/encore/batch"
	"github.com/justapithecus/encore/validate"
)

func event(userID, level, page, auth string, ts json.Number) batch.Record {
	return batch.Record{
		"userId":    userID,
		"firstName": "Kevin",
		"lastName":  "",
		"gender":    "M",
		"level":     level,
		"ts":        ts,
		"auth":      auth,
		"page":      page,
		"sessionId": json.Number("484"),
		"location":  "NYC",
		"userAgent": "ua",
		"artist":    "Eminem",
		"length":    json.Number("326.00"),
		"song":      "Lose Yourself",
	}
}

func TestProcess(t *testing.T) {
	b := batch.Batch{Index: 0, Source: "2018-11-02-events.json", Records: []batch.Record{
		event("10", "free", PageNextSong, AuthLoggedIn, "1541121934796"),
		event("10", "paid", "Home", AuthLoggedIn, "1541121934800"),
		event("", "free", "Home", "Logged Out", "1541121934801"),
		event("26", "free", PageNextSong, AuthLoggedIn, "1541121934796"),
		event("26", "free", PageNextSong, AuthLoggedIn, "1541122176796"),
	}}

	res := Process([]batch.Batch{b})

	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics: %+v", res.Diagnostics)
	}
	if len(res.Users) != 2 {
		t.Fatalf("users = %d, want 2", len(res.Users))
	}
	if res.Users[0].UserID != "10" || res.Users[0].Level != "free" {
		t.Errorf("first occurrence should win: %+v", res.Users[0])
	}
	if res.Users[0].LastName != nil {
		t.Error("empty last name should be absent")
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(res.Candidates))
	}
	c := res.Candidates[0]
	if *c.TS != "1541121934796" || *c.TrackLength != "326.00" || *c.SessionID != 484 {
		t.Errorf("candidate lost raw join keys: %+v", c)
	}
	if len(res.Times) != 2 {
		t.Fatalf("times = %d, want 2 after dedup", len(res.Times))
	}
	if res.Times[0].StartTime.UnixMilli() != 1541121934796 {
		t.Errorf("times[0] = %v", res.Times[0].StartTime)
	}
}

func TestProcess_NullUserSkipsBatch(t *testing.T) {
	r := event("10", "free", PageNextSong, AuthLoggedIn, "1")
	r["level"] = nil
	res := Process([]batch.Batch{{Index: 4, Source: "bad.json", Records: []batch.Record{r}}})
	if len(res.Diagnostics) != 1 || !errors.Is(res.Diagnostics[0].Err, validate.ErrNullConstraint) {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
	if res.Diagnostics[0].BatchIndex != 4 {
		t.Errorf("batch index = %d", res.Diagnostics[0].BatchIndex)
	}
	if len(res.Users)+len(res.Candidates)+len(res.Times) != 0 {
		t.Error("skipped batch leaked rows")
	}
}

func TestProcess_EmptyUserIDDropped(t *testing.T) {
	res := Process([]batch.Batch{{Records: []batch.Record{
		event("", "free", PageNextSong, AuthLoggedIn, "1541121934796"),
	}}})
	if res.DroppedUsers != 1 {
		t.Errorf("DroppedUsers = %d, want 1", res.DroppedUsers)
	}
	if len(res.Users) != 0 || len(res.Candidates) != 0 {
		t.Errorf("users=%d candidates=%d", len(res.Users), len(res.Candidates))
	}
}

func TestProcess_NonNumericTimestampSkipsBatch(t *testing.T) {
	r := event("10", "free", PageNextSong, AuthLoggedIn, "")
	r["ts"] = "yesterday"
	res := Process([]batch.Batch{{Records: []batch.Record{r}}})
	if len(res.Diagnostics) != 1 || !errors.Is(res.Diagnostics[0].Err, validate.ErrCoercion) {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
}

func TestProcess_MissingTimestampStillCandidate(t *testing.T) {
	r := event("10", "free", PageNextSong, AuthLoggedIn, "")
	r["ts"] = ""
	res := Process([]batch.Batch{{Records: []batch.Record{r}}})
	if len(res.Candidates) != 1 || res.Candidates[0].TS != nil {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
	if res.UntimedPlays != 1 || len(res.Times) != 0 {
		t.Errorf("untimed=%d times=%d", res.UntimedPlays, len(res.Times))
	}
}

func TestProcess_UsersDedupAcrossBatches(t *testing.T) {
	b0 := batch.Batch{Index: 0, Records: []batch.Record{event("10", "free", "Home", AuthLoggedIn, "1")}}
	b1 := batch.Batch{Index: 1, Records: []batch.Record{event("10", "paid", "Home", AuthLoggedIn, "2")}}
	res := Process([]batch.Batch{b0, b1})
	if len(res.Users) != 1 || res.Users[0].Level != "free" {
		t.Errorf("users = %+v", res.Users)
	}
}
