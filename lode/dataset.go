// Package lode stages load-ready rows in a Lode dataset and reads them back.
//
// Staged records are Hive-partitioned by source, table, day and run_id and
// encoded as JSON lines. The filesystem and S3 backends share one layout, so
// a dataset written by one run can be inspected from anywhere.
package lode

import (
	"strings"

	"github.com/justapithecus/lode/lode"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "encore"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"source", "table", "day", "run_id"}

// NewDataset opens a dataset over factory with the staging layout and codec.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return ds, nil
}

// NewDatasetFS opens a dataset rooted at a local directory.
func NewDatasetFS(dataset, root string) (lode.Dataset, error) {
	return NewDataset(dataset, lode.NewFSFactory(root))
}

// snapshotMatches reports whether any file in the snapshot lies under the
// key=value partition. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks for an exact key=value path segment, so
// run_id=run-1 does not match run_id=run-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
