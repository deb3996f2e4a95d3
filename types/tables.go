package types

// Table names one of the five load targets.
type Table string

const (
	TableSongplays Table = "songplays"
	TableUsers     Table = "users"
	TableSongs     Table = "songs"
	TableArtists   Table = "artists"
	TableTime      Table = "time"
)

// LoadOrder lists the tables in the order they are handed to sinks.
// Dimensions load before the fact table so a partially failed run never
// leaves plays pointing at rows that were never written.
var LoadOrder = []Table{TableArtists, TableSongs, TableUsers, TableTime, TableSongplays}

var tableColumns = map[Table][]string{
	TableSongplays: {"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"},
	TableUsers:     {"user_id", "first_name", "last_name", "gender", "level"},
	TableSongs:     {"song_id", "title", "artist_id", "year", "duration"},
	TableArtists:   {"artist_id", "name", "location", "latitude", "longitude"},
	TableTime:      {"start_time", "hour", "week", "month", "year", "weekday"},
}

// Columns returns the fixed column order of a table's load tuples.
// Returns nil for unknown tables.
func Columns(t Table) []string {
	cols, ok := tableColumns[t]
	if !ok {
		return nil
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// IsKnown reports whether t is one of the five load targets.
func (t Table) IsKnown() bool {
	_, ok := tableColumns[t]
	return ok
}

// Row is a load tuple of primitive values: string, int64, float64,
// time.Time, or nil as the absent marker.
type Row []any

// Fact is implemented by every load-ready row shape.
type Fact interface {
	// Key returns the row identity used for dedup and rejection reports.
	Key() string
	// Row returns the load tuple in Columns order.
	Row() Row
}

// RowSet is an ordered batch of load tuples for one table.
// Keys is parallel to Rows.
type RowSet struct {
	Table Table
	Keys  []string
	Rows  []Row
}

// Len returns the number of rows in the set.
func (s RowSet) Len() int { return len(s.Rows) }

// NewRowSet projects facts into a RowSet, preserving order.
func NewRowSet[F Fact](table Table, facts []F) RowSet {
	set := RowSet{
		Table: table,
		Keys:  make([]string, 0, len(facts)),
		Rows:  make([]Row, 0, len(facts)),
	}
	for _, f := range facts {
		set.Keys = append(set.Keys, f.Key())
		set.Rows = append(set.Rows, f.Row())
	}
	return set
}

// LoadSet is the complete output of one run, ready for the loader.
type LoadSet struct {
	Artists []ArtistFact
	Songs   []SongFact
	Users   []UserFact
	Times   []TimeFact
	Plays   []PlayFact
}

// RowSets returns one RowSet per table in LoadOrder.
func (l *LoadSet) RowSets() []RowSet {
	sets := make([]RowSet, 0, len(LoadOrder))
	for _, t := range LoadOrder {
		switch t {
		case TableArtists:
			sets = append(sets, NewRowSet(t, l.Artists))
		case TableSongs:
			sets = append(sets, NewRowSet(t, l.Songs))
		case TableUsers:
			sets = append(sets, NewRowSet(t, l.Users))
		case TableTime:
			sets = append(sets, NewRowSet(t, l.Times))
		case TableSongplays:
			sets = append(sets, NewRowSet(t, l.Plays))
		}
	}
	return sets
}

// Counts returns the row count per table.
func (l *LoadSet) Counts() map[Table]int64 {
	return map[Table]int64{
		TableArtists:   int64(len(l.Artists)),
		TableSongs:     int64(len(l.Songs)),
		TableUsers:     int64(len(l.Users)),
		TableTime:      int64(len(l.Times)),
		TableSongplays: int64(len(l.Plays)),
	}
}
