// Package batch holds the raw-input side of the pipeline: discovering
// newline-delimited JSON files, decoding them into batches of records, and
// the column-ordered tables that validated batches are reduced to.
//
// A batch is the set of records parsed from one source file. Batches are
// independent; nothing here shares state across them.
package batch

import (
	"strings"
)

// Record is one decoded input line. Numbers decode as json.Number so that
// large integers (13-digit millisecond timestamps) keep their exact digits.
type Record map[string]any

// Lookup returns the value stored under col, matching the key
// case-insensitively. An exact match wins over a folded one; among several
// folded matches the lexically smallest key wins, so the result never
// depends on map iteration order.
func (r Record) Lookup(col string) (any, bool) {
	if v, ok := r[col]; ok {
		return v, true
	}
	var (
		best  string
		found bool
	)
	for k := range r {
		if strings.EqualFold(k, col) && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return r[best], true
}

// Batch is the set of records parsed from one source file.
type Batch struct {
	// Index is the batch's position in discovery order.
	Index int
	// Source identifies the originating file.
	Source string
	// Records are the decoded lines in file order.
	Records []Record
}

// ColumnSet returns the lower-cased union of keys across all records.
func (b Batch) ColumnSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range b.Records {
		for k := range r {
			set[strings.ToLower(k)] = struct{}{}
		}
	}
	return set
}
