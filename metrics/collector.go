// Package metrics provides client-side counters for requests, framing,
// decoding and definition fetches.
//
// The Collector is shared by every request a client issues. It is a leaf
// package with no internal dependencies, and every method is nil-receiver
// safe so callers may pass a nil *Collector to disable metrics.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Requests
	RequestsStarted   int64 `json:"requests_started"`
	RequestsCompleted int64 `json:"requests_completed"`
	RequestsFailed    int64 `json:"requests_failed"`
	RequestRetries    int64 `json:"request_retries"`

	// Transport
	TransportErrors int64 `json:"transport_errors"`
	BytesReceived   int64 `json:"bytes_received"`

	// Framing and decoding
	FramesDecoded  int64 `json:"frames_decoded"`
	FramesSkipped  int64 `json:"frames_skipped"`
	FrameErrors    int64 `json:"frame_errors"`
	RecordsDecoded int64 `json:"records_decoded"`
	DecodeErrors   int64 `json:"decode_errors"`

	// Dispatch
	RecordsDispatched   int64            `json:"records_dispatched"`
	RecordsAccumulated  int64            `json:"records_accumulated"`
	RecordsByType       map[string]int64 `json:"records_by_type"`
	ExceptionsRetryable int64            `json:"exceptions_retryable"`
	ExceptionsFatal     int64            `json:"exceptions_fatal"`

	// Definitions
	DefinitionFetches       int64 `json:"definition_fetches"`
	DefinitionFetchFailures int64 `json:"definition_fetch_failures"`

	// Storage
	SinkWriteSuccess int64 `json:"sink_write_success"`
	SinkWriteFailure int64 `json:"sink_write_failure"`

	// Service is the service URL dimension set at construction.
	Service string `json:"service"`
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector labeled with the service URL.
func NewCollector(service string) *Collector {
	return &Collector{s: Snapshot{
		Service:       service,
		RecordsByType: make(map[string]int64),
	}}
}

func (c *Collector) add(field func(*Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	field(&c.s)
	c.mu.Unlock()
}

// --- Requests ---

// IncRequestStarted records the first attempt of a request.
func (c *Collector) IncRequestStarted() { c.add(func(s *Snapshot) { s.RequestsStarted++ }) }

// IncRequestCompleted records a request that returned a result.
func (c *Collector) IncRequestCompleted() { c.add(func(s *Snapshot) { s.RequestsCompleted++ }) }

// IncRequestFailed records a request that surfaced an error.
func (c *Collector) IncRequestFailed() { c.add(func(s *Snapshot) { s.RequestsFailed++ }) }

// IncRequestRetry records one retried attempt.
func (c *Collector) IncRequestRetry() { c.add(func(s *Snapshot) { s.RequestRetries++ }) }

// --- Transport ---

// IncTransportError records a connection, timeout, status or truncation failure.
func (c *Collector) IncTransportError() { c.add(func(s *Snapshot) { s.TransportErrors++ }) }

// AddBytesReceived records stream bytes fed to the frame reader.
func (c *Collector) AddBytesReceived(n int) {
	c.add(func(s *Snapshot) { s.BytesReceived += int64(n) })
}

// --- Framing and decoding ---

// IncFrameDecoded records a complete frame.
func (c *Collector) IncFrameDecoded() { c.add(func(s *Snapshot) { s.FramesDecoded++ }) }

// IncFrameSkipped records a zero-size frame that was dropped.
func (c *Collector) IncFrameSkipped() { c.add(func(s *Snapshot) { s.FramesSkipped++ }) }

// IncFrameError records a framing failure.
func (c *Collector) IncFrameError() { c.add(func(s *Snapshot) { s.FrameErrors++ }) }

// IncRecordDecoded records a successfully decoded record.
func (c *Collector) IncRecordDecoded(recordType string) {
	c.add(func(s *Snapshot) {
		s.RecordsDecoded++
		s.RecordsByType[recordType]++
	})
}

// IncDecodeError records a malformed record.
func (c *Collector) IncDecodeError() { c.add(func(s *Snapshot) { s.DecodeErrors++ }) }

// --- Dispatch ---

// IncRecordDispatched records a record consumed by a handler.
func (c *Collector) IncRecordDispatched() { c.add(func(s *Snapshot) { s.RecordsDispatched++ }) }

// IncRecordAccumulated records a record appended to the result list.
func (c *Collector) IncRecordAccumulated() { c.add(func(s *Snapshot) { s.RecordsAccumulated++ }) }

// IncException records a server exception signal by severity.
func (c *Collector) IncException(fatal bool) {
	c.add(func(s *Snapshot) {
		if fatal {
			s.ExceptionsFatal++
		} else {
			s.ExceptionsRetryable++
		}
	})
}

// --- Definitions ---

// IncDefinitionFetch records a definition query issued to the server.
func (c *Collector) IncDefinitionFetch() { c.add(func(s *Snapshot) { s.DefinitionFetches++ }) }

// IncDefinitionFetchFailure records a failed or malformed definition query.
func (c *Collector) IncDefinitionFetchFailure() {
	c.add(func(s *Snapshot) { s.DefinitionFetchFailures++ })
}

// --- Storage ---
// Sink counters are per-call, not per-record.

// IncSinkWriteSuccess records a successful sink write.
func (c *Collector) IncSinkWriteSuccess() { c.add(func(s *Snapshot) { s.SinkWriteSuccess++ }) }

// IncSinkWriteFailure records a failed sink write.
func (c *Collector) IncSinkWriteFailure() { c.add(func(s *Snapshot) { s.SinkWriteFailure++ }) }

// Snapshot returns a copy of all counters. The Collector can continue to be
// mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.s
	out.RecordsByType = make(map[string]int64, len(c.s.RecordsByType))
	for k, v := range c.s.RecordsByType {
		out.RecordsByType[k] = v
	}
	return out
}
