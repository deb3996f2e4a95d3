// Package cache persists the merged song catalog between runs.
//
// A snapshot is a stream of length-prefixed msgpack frames: one header
// followed by chunks of artists and songs. Event-only runs load it so
// plays still resolve against catalogs ingested earlier.
package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/justapithecus/encore/iox"
	"github.com/justapithecus/encore/types"
)

// FormatVersion is the snapshot format written by Save.
const FormatVersion = 1

// chunkSize bounds the facts carried by one frame.
const chunkSize = 512

// Catalog is the cached artist and song dimension data, in first-seen order.
type Catalog struct {
	Artists []types.ArtistFact
	Songs   []types.SongFact
}

// Len returns the total number of cached facts.
func (c Catalog) Len() int { return len(c.Artists) + len(c.Songs) }

type header struct {
	Type      string    `msgpack:"type"`
	Version   int       `msgpack:"version"`
	WrittenAt time.Time `msgpack:"written_at"`
	Artists   int       `msgpack:"artists"`
	Songs     int       `msgpack:"songs"`
}

type artistChunk struct {
	Type  string             `msgpack:"type"`
	Items []types.ArtistFact `msgpack:"items"`
}

type songChunk struct {
	Type  string           `msgpack:"type"`
	Items []types.SongFact `msgpack:"items"`
}

// Merge returns base followed by the facts of next whose keys base does
// not already hold. Cached facts come from earlier runs, so they win.
func Merge(base, next Catalog) Catalog {
	return Catalog{
		Artists: mergeFacts(base.Artists, next.Artists),
		Songs:   mergeFacts(base.Songs, next.Songs),
	}
}

func mergeFacts[F types.Fact](base, next []F) []F {
	out := make([]F, 0, len(base)+len(next))
	seen := make(map[string]struct{}, len(base)+len(next))
	for _, list := range [][]F{base, next} {
		for _, f := range list {
			if _, dup := seen[f.Key()]; dup {
				continue
			}
			seen[f.Key()] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// Encode writes c as a snapshot stream.
func Encode(w io.Writer, c Catalog, writtenAt time.Time) error {
	fw := &frameWriter{w: w}
	if err := fw.writeFrame(header{
		Type:      headerType,
		Version:   FormatVersion,
		WrittenAt: writtenAt.UTC(),
		Artists:   len(c.Artists),
		Songs:     len(c.Songs),
	}); err != nil {
		return err
	}
	for start := 0; start < len(c.Artists); start += chunkSize {
		end := min(start+chunkSize, len(c.Artists))
		if err := fw.writeFrame(artistChunk{Type: artistsType, Items: c.Artists[start:end]}); err != nil {
			return err
		}
	}
	for start := 0; start < len(c.Songs); start += chunkSize {
		end := min(start+chunkSize, len(c.Songs))
		if err := fw.writeFrame(songChunk{Type: songsType, Items: c.Songs[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a snapshot stream. The header must come first and the fact
// counts must match it.
func Decode(r io.Reader) (Catalog, error) {
	fr := &frameReader{r: r}

	payload, err := fr.readFrame()
	if err != nil {
		if err == io.EOF {
			return Catalog{}, &FrameError{Kind: FrameErrorPartial, Msg: "snapshot has no header"}
		}
		return Catalog{}, err
	}
	var h header
	if err := decodeFrame(payload, &h, "header"); err != nil {
		return Catalog{}, err
	}
	if h.Type != headerType {
		return Catalog{}, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("first frame is %q, want header", h.Type)}
	}
	if h.Version != FormatVersion {
		return Catalog{}, &FrameError{
			Kind: FrameErrorVersion,
			Msg:  fmt.Sprintf("snapshot version %d, want %d", h.Version, FormatVersion),
		}
	}

	c := Catalog{
		Artists: make([]types.ArtistFact, 0, h.Artists),
		Songs:   make([]types.SongFact, 0, h.Songs),
	}
	for {
		payload, err := fr.readFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Catalog{}, err
		}

		var probe frameTypeProbe
		if err := decodeFrame(payload, &probe, "frame type"); err != nil {
			return Catalog{}, err
		}
		switch probe.Type {
		case artistsType:
			var chunk artistChunk
			if err := decodeFrame(payload, &chunk, "artist chunk"); err != nil {
				return Catalog{}, err
			}
			c.Artists = append(c.Artists, chunk.Items...)
		case songsType:
			var chunk songChunk
			if err := decodeFrame(payload, &chunk, "song chunk"); err != nil {
				return Catalog{}, err
			}
			c.Songs = append(c.Songs, chunk.Items...)
		default:
			return Catalog{}, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown frame type %q", probe.Type)}
		}
	}

	if len(c.Artists) != h.Artists || len(c.Songs) != h.Songs {
		return Catalog{}, &FrameError{
			Kind: FrameErrorPartial,
			Msg: fmt.Sprintf("snapshot holds %d artists and %d songs, header says %d and %d",
				len(c.Artists), len(c.Songs), h.Artists, h.Songs),
		}
	}
	return c, nil
}

// Load reads the snapshot at path. A missing file is an empty catalog.
func Load(path string) (Catalog, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Catalog{}, nil
	}
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog cache: %w", err)
	}
	defer iox.DiscardClose(f)

	c, err := Decode(bufio.NewReader(f))
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog cache %s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path atomically via a temp file and rename.
func Save(path string, c Catalog, writtenAt time.Time) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer func() {
		if err != nil {
			iox.DiscardClose(tmp)
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, c, writtenAt); err != nil {
		return fmt.Errorf("encode catalog cache: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush catalog cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close catalog cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install catalog cache: %w", err)
	}
	return nil
}
