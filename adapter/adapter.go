// Package adapter defines the notification boundary for completed
// requests. Adapters publish a summary event to a downstream system after
// a request succeeds.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/sliderule/types"
)

// EventTypeRequestCompleted is the EventType of every published event.
const EventTypeRequestCompleted = "request_completed"

// RequestCompletedEvent is the payload published when a request finishes.
type RequestCompletedEvent struct {
	ClientVersion string           `json:"client_version"`
	EventType     string           `json:"event_type"`
	RequestID     string           `json:"request_id"`
	API           string           `json:"api"`
	Stream        bool             `json:"stream"`
	Attempt       int              `json:"attempt"`
	RecordCount   int              `json:"record_count"`
	RecordTypes   map[string]int64 `json:"record_types,omitempty"`
	StoragePath   string           `json:"storage_path,omitempty"`
	Timestamp     string           `json:"timestamp"` // RFC 3339
	DurationMs    int64            `json:"duration_ms"`
}

// NewRequestCompletedEvent builds the event for a finished request.
func NewRequestCompletedEvent(meta *types.RequestMeta, stream bool, recs []*types.Record, storagePath string, completedAt time.Time, elapsed time.Duration) *RequestCompletedEvent {
	var byType map[string]int64
	if len(recs) > 0 {
		byType = make(map[string]int64)
		for _, r := range recs {
			byType[r.Type]++
		}
	}
	return &RequestCompletedEvent{
		ClientVersion: types.Version,
		EventType:     EventTypeRequestCompleted,
		RequestID:     meta.RequestID,
		API:           meta.API,
		Stream:        stream,
		Attempt:       meta.Attempt,
		RecordCount:   len(recs),
		RecordTypes:   byType,
		StoragePath:   storagePath,
		Timestamp:     completedAt.UTC().Format(time.RFC3339),
		DurationMs:    elapsed.Milliseconds(),
	}
}

// Adapter publishes request completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event. Must respect context cancellation
	// and deadlines.
	Publish(ctx context.Context, event *RequestCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. Each further retry
// doubles it.
var BaseBackoff = 500 * time.Millisecond

// Retry runs fn up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx ends or when permanent reports the
// error as not worth retrying. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
