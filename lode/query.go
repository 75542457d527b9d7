package lode

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecordsFound is returned when no stored records match a query.
var ErrNoRecordsFound = errors.New("no records found")

// NewReadDataset creates a dataset for reading with the write layout.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return newDataset(dataset, factory)
}

// Query filters stored records. Empty fields match everything.
type Query struct {
	RequestID  string
	API        string
	RecordType string
}

// ReadRecords returns stored rows matching q, ordered by request and
// sequence number.
func ReadRecords(ctx context.Context, ds lode.Dataset, q Query) ([]RecordRow, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var out []RecordRow
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "request_id", q.RequestID) ||
			!snapshotMatchesFilter(snap, "api", q.API) ||
			!snapshotMatchesFilter(snap, "record_type", q.RecordType) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindRecord {
				continue
			}
			row := fromRow(m)
			if q.RequestID != "" && row.RequestID != q.RequestID {
				continue
			}
			if q.API != "" && row.API != q.API {
				continue
			}
			if q.RecordType != "" && row.RecordType != q.RecordType {
				continue
			}
			out = append(out, row)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecordsFound
	}
	slices.SortStableFunc(out, func(a, b RecordRow) int {
		if c := cmp.Compare(a.RequestID, b.RequestID); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
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

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so request_id=r-1 does not match request_id=r-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
