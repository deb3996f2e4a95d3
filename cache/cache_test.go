package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/encore/types"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

var writtenAt = time.Date(2018, 11, 30, 12, 0, 0, 0, time.UTC)

func sampleCatalog() Catalog {
	return Catalog{
		Artists: []types.ArtistFact{
			{ArtistID: "AR1", Name: "Elena", Location: strPtr("Dubai UAE"), Latitude: f64Ptr(25.2)},
			{ArtistID: "AR2", Name: "Line Renaud"},
		},
		Songs: []types.SongFact{
			{SongID: "SO1", Title: strPtr("Setanta matins"), ArtistID: strPtr("AR1"), Duration: f64Ptr(269.58322)},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleCatalog(), writtenAt); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got.Artists) != 2 || len(got.Songs) != 1 {
		t.Fatalf("decoded %d artists, %d songs; want 2, 1", len(got.Artists), len(got.Songs))
	}
	if got.Artists[0].Location == nil || *got.Artists[0].Location != "Dubai UAE" {
		t.Errorf("artist location = %v, want Dubai UAE", got.Artists[0].Location)
	}
	if got.Artists[1].Location != nil {
		t.Errorf("absent location decoded as %q", *got.Artists[1].Location)
	}
	if got.Songs[0].Duration == nil || *got.Songs[0].Duration != 269.58322 {
		t.Errorf("duration = %v, want exact 269.58322", got.Songs[0].Duration)
	}
}

func TestEncode_ChunksLargeCatalogs(t *testing.T) {
	var c Catalog
	for i := range chunkSize*2 + 3 {
		c.Songs = append(c.Songs, types.SongFact{SongID: fmt.Sprintf("SO%d", i)})
	}

	var buf bytes.Buffer
	if err := Encode(&buf, c, writtenAt); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	fr := &frameReader{r: bytes.NewReader(buf.Bytes())}
	frames := 0
	for {
		if _, err := fr.readFrame(); err != nil {
			break
		}
		frames++
	}
	if frames != 4 {
		t.Errorf("frames = %d, want header + 3 song chunks", frames)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got.Songs) != len(c.Songs) || got.Songs[chunkSize].SongID != fmt.Sprintf("SO%d", chunkSize) {
		t.Errorf("decoded songs out of order or truncated")
	}
}

func TestDecode_Errors(t *testing.T) {
	var full bytes.Buffer
	if err := Encode(&full, sampleCatalog(), writtenAt); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	oversized := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(oversized, MaxPayloadSize+1)

	var wrongVersion bytes.Buffer
	fw := &frameWriter{w: &wrongVersion}
	if err := fw.writeFrame(header{Type: headerType, Version: FormatVersion + 1}); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	var noHeader bytes.Buffer
	fw = &frameWriter{w: &noHeader}
	if err := fw.writeFrame(songChunk{Type: songsType}); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		kind FrameErrorKind
	}{
		{"empty", nil, FrameErrorPartial},
		{"truncated", full.Bytes()[:full.Len()-3], FrameErrorPartial},
		{"oversized", oversized, FrameErrorTooLarge},
		{"wrong version", wrongVersion.Bytes(), FrameErrorVersion},
		{"missing header", noHeader.Bytes(), FrameErrorDecode},
		{"garbage payload", []byte{0, 0, 0, 1, 0xc1}, FrameErrorDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatal("Decode succeeded, want error")
			}
			if !IsFrameError(err, tt.kind) {
				t.Errorf("err = %v, want FrameError kind %s", err, tt.kind)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.cache")

	if err := Save(path, sampleCatalog(), writtenAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Len() != 3 {
		t.Errorf("Len = %d, want 3", got.Len())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir holds %d entries, want only the snapshot", len(entries))
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.cache"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("Len = %d, want 0", got.Len())
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.cache")
	if err := os.WriteFile(path, []byte{0, 0}, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	_, err := Load(path)
	if !IsFrameError(err, FrameErrorPartial) {
		t.Errorf("Load err = %v, want partial FrameError", err)
	}
}

func TestMerge_CachedFactsWin(t *testing.T) {
	cached := sampleCatalog()
	fresh := Catalog{
		Artists: []types.ArtistFact{
			{ArtistID: "AR2", Name: "Line Renaud (renamed)"},
			{ArtistID: "AR3", Name: "Tweeterfriendly Music"},
		},
		Songs: []types.SongFact{{SongID: "SO2", Title: strPtr("Broken-Down Merry-Go-Round")}},
	}

	merged := Merge(cached, fresh)
	if len(merged.Artists) != 3 {
		t.Fatalf("artists = %d, want 3", len(merged.Artists))
	}
	if merged.Artists[1].Name != "Line Renaud" {
		t.Errorf("AR2 name = %q, want cached value", merged.Artists[1].Name)
	}
	if merged.Artists[2].ArtistID != "AR3" {
		t.Errorf("new artist not appended: %+v", merged.Artists)
	}
	if len(merged.Songs) != 2 {
		t.Errorf("songs = %d, want 2", len(merged.Songs))
	}
}
