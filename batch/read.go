package batch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/justapithecus/encore/iox"
)

// ErrMalformed indicates a file that is not valid newline-delimited JSON.
// The file is skipped as a whole, like any other invalid batch.
var ErrMalformed = errors.New("malformed input")

// DefaultExtension is the file extension picked up by Discover.
const DefaultExtension = ".json"

// Discover returns every file under root (recursively) whose name ends in
// ext. When sorted is true the paths are returned in lexical order, which
// for date-named event logs is chronological order.
func Discover(root, ext string, sorted bool) ([]string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	if sorted {
		sort.Strings(paths)
	}
	return paths, nil
}

// ReadFile decodes one newline-delimited JSON file into a Batch.
func ReadFile(index int, path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{Index: index, Source: path}, fmt.Errorf("open %s: %w", path, err)
	}
	defer iox.DiscardClose(f)

	records, err := Decode(f)
	if err != nil {
		return Batch{Index: index, Source: path}, fmt.Errorf("%s: %w", path, err)
	}
	return Batch{Index: index, Source: path, Records: records}, nil
}

// maxLineSize bounds one NDJSON line.
const maxLineSize = 16 << 20

// Decode reads newline-delimited JSON: exactly one object per non-blank
// line. Anything after the object on the same line, including a separator
// such as "," or ":", makes the whole input malformed.
func Decode(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var records []Record
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		rec, err := decodeLine(text)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line+1, err)
	}
	return records, nil
}

// decodeLine decodes one trimmed line. The stream decoder skips "," and
// ":" between values, so the line must start with the object and the
// decoder must stop exactly at its end.
func decodeLine(text []byte) (Record, error) {
	if text[0] != '{' {
		return nil, errors.New("expected a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if dec.InputOffset() != int64(len(text)) {
		return nil, fmt.Errorf("trailing data after object at offset %d", dec.InputOffset())
	}
	return Record(rec), nil
}
