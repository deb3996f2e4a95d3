// Package catalog turns validated song-catalog records into artist and song
// facts.
package catalog

import (
	"github.com/justapithecus/encore/batch"
	"github.com/justapithecus/encore/types"
	"github.com/justapithecus/encore/validate"
)

// Schema is the song-catalog input schema.
var Schema = validate.Schema{
	Columns: []validate.Column{
		{Name: "artist_id", Type: validate.TypeString},
		{Name: "artist_name", Type: validate.TypeString},
		{Name: "artist_location", Type: validate.TypeString},
		{Name: "artist_latitude", Type: validate.TypeFloat},
		{Name: "artist_longitude", Type: validate.TypeFloat},
		{Name: "title", Type: validate.TypeString},
		{Name: "song_id", Type: validate.TypeString},
		{Name: "year", Type: validate.TypeInt},
		{Name: "duration", Type: validate.TypeFloat},
	},
	NotNull: []string{"artist_id", "artist_name", "song_id"},
}

// Result is the output of Process.
type Result struct {
	Artists     []types.ArtistFact
	Songs       []types.SongFact
	Diagnostics []validate.Diagnostic
	// DroppedArtists counts rows whose artist key or name was empty after
	// normalization. The song half of such a row is still kept if its own
	// key is present.
	DroppedArtists int
	// DroppedSongs counts rows whose song_id was empty after normalization.
	DroppedSongs int
}

// Process validates catalog batches and projects them into artist and song
// facts, deduplicated on primary key with the first occurrence winning.
func Process(batches []batch.Batch) Result {
	table, diags := validate.Validate(batches, Schema)
	res := Project(table)
	res.Diagnostics = diags
	return res
}

// Project converts an already-validated catalog table into facts. Callers
// that validate batches concurrently merge them first and then call
// Project once, so dedup sees every batch.
func Project(table *batch.Table) Result {
	var res Result
	seenArtist := make(map[string]struct{})
	seenSong := make(map[string]struct{})

	for _, raw := range table.Rows() {
		row := make([]any, len(raw))
		copy(row, raw)
		validate.NormalizeRow(row)
		r := table.View(row)

		artistID, name := r.String("artist_id"), r.String("artist_name")
		switch {
		case artistID == nil || name == nil:
			res.DroppedArtists++
		default:
			if _, ok := seenArtist[*artistID]; !ok {
				seenArtist[*artistID] = struct{}{}
				res.Artists = append(res.Artists, types.ArtistFact{
					ArtistID:  *artistID,
					Name:      *name,
					Location:  r.String("artist_location"),
					Latitude:  r.Float("artist_latitude"),
					Longitude: r.Float("artist_longitude"),
				})
			}
		}

		songID := r.String("song_id")
		if songID == nil {
			res.DroppedSongs++
			continue
		}
		if _, ok := seenSong[*songID]; ok {
			continue
		}
		seenSong[*songID] = struct{}{}
		res.Songs = append(res.Songs, types.SongFact{
			SongID:   *songID,
			Title:    r.String("title"),
			ArtistID: artistID,
			Year:     r.Int("year"),
			Duration: r.Float("duration"),
		})
	}
	return res
}
