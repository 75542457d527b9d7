// Package lode persists decoded records to a Lode dataset.
//
// Records are written as JSON lines under a Hive layout partitioned by
// api/day/request_id/record_type, one write per completed request.
package lode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/sliderule/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "sliderule"

// PartitionKeys is the Hive layout of the records dataset.
var PartitionKeys = []string{"api", "day", "request_id", "record_type"}

// DeriveDay computes the partition day from the request completion time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds sink configuration.
type Config struct {
	// Dataset is the Lode dataset ID (default "sliderule").
	Dataset string
	// Backend names the store for logging ("fs", "s3", "memory").
	Backend string
}

// Sink writes request results to Lode. It is safe for concurrent use.
type Sink struct {
	dataset lode.Dataset
	config  Config

	mu sync.Mutex
}

// NewSink creates a sink over the given store factory.
// Use lode.NewMemoryFactory() for testing.
func NewSink(cfg Config, factory lode.StoreFactory) (*Sink, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Sink{dataset: ds, config: cfg}, nil
}

// NewFSSink creates a sink with filesystem storage rooted at root.
func NewFSSink(cfg Config, root string) (*Sink, error) {
	if root == "" {
		return nil, errors.New("filesystem storage requires a path")
	}
	cfg.Backend = "fs"
	return NewSink(cfg, lode.NewFSFactory(root))
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteRecords writes the records of one completed request and returns
// the partition path prefix they were written under. Writing no records
// is a no-op.
func (s *Sink) WriteRecords(ctx context.Context, meta *types.RequestMeta, completedAt time.Time, recs []*types.Record) (string, error) {
	if err := meta.Validate(); err != nil {
		return "", fmt.Errorf("lode: %w", err)
	}
	day := DeriveDay(completedAt)
	path := StoragePath(s.config.Dataset, meta.API, day, meta.RequestID)
	if len(recs) == 0 {
		return path, nil
	}

	rows := make([]any, 0, len(recs))
	for i, rec := range recs {
		rows = append(rows, toRecordRow(meta, day, int64(i), completedAt, rec))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return "", WrapWriteError(err, path)
	}
	return path, nil
}

// Dataset returns the underlying dataset for reads.
func (s *Sink) Dataset() lode.Dataset {
	return s.dataset
}

// Close releases sink resources.
func (s *Sink) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// StoragePath is the partition prefix of one request's records.
func StoragePath(dataset, api, day, requestID string) string {
	return fmt.Sprintf("%s/api=%s/day=%s/request_id=%s", dataset, api, day, requestID)
}
