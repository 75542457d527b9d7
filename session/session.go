// Package session decodes one binary response stream: frames are cut from
// incoming chunks, decoded into records, and offered to the dispatch
// registry. Records no handler consumes are accumulated in arrival order.
package session

import (
	"context"
	"errors"
	"io"

	"github.com/pithecene-io/sliderule/decode"
	"github.com/pithecene-io/sliderule/dispatch"
	"github.com/pithecene-io/sliderule/iox"
	"github.com/pithecene-io/sliderule/ipc"
	"github.com/pithecene-io/sliderule/log"
	"github.com/pithecene-io/sliderule/metrics"
	"github.com/pithecene-io/sliderule/types"
)

// ErrClosed is returned by Feed after Finish.
var ErrClosed = errors.New("session: feed after finish")

// Observer is told about every decoded record, handled or not. It runs on
// the decoding goroutine and must not block.
type Observer func(rec *types.Record, handled bool)

// Options configures a Session. All fields are optional.
type Options struct {
	Registry  *dispatch.Registry
	Collector *metrics.Collector
	Logger    *log.Logger
	Observer  Observer
}

// Session holds the state of one response stream. It is not safe for
// concurrent use and is not reusable across requests.
type Session struct {
	reader    *ipc.FrameReader
	decoder   *decode.Decoder
	registry  *dispatch.Registry
	collector *metrics.Collector
	logger    *log.Logger
	observer  Observer

	records  []*types.Record
	err      error
	finished bool
}

// New creates a session decoding with decoder.
func New(decoder *decode.Decoder, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Session{
		reader:    ipc.NewFrameReader(opts.Collector),
		decoder:   decoder,
		registry:  opts.Registry,
		collector: opts.Collector,
		logger:    logger,
		observer:  opts.Observer,
	}
}

// Feed processes one chunk. The first error is sticky: once Feed fails,
// every later Feed and Finish returns the same error and the accumulated
// records are discarded.
func (s *Session) Feed(ctx context.Context, chunk []byte) error {
	if s.err != nil {
		return s.err
	}
	if s.finished {
		return ErrClosed
	}
	s.collector.AddBytesReceived(len(chunk))

	frames, frameErr := s.reader.Feed(chunk)
	for _, f := range frames {
		if err := s.handleFrame(ctx, f); err != nil {
			return s.fail(err)
		}
	}
	if frameErr != nil {
		return s.fail(frameErr)
	}
	return nil
}

func (s *Session) handleFrame(ctx context.Context, f ipc.Frame) error {
	rec, err := s.decoder.Decode(ctx, f.Type, f.Payload)
	if err != nil {
		s.collector.IncDecodeError()
		return err
	}
	s.collector.IncRecordDecoded(rec.Type)

	handled, err := s.registry.Dispatch(ctx, rec)
	if s.observer != nil {
		s.observer(rec, handled)
	}
	if err != nil {
		var exc *dispatch.ExceptionError
		if errors.As(err, &exc) {
			s.collector.IncException(exc.Fatal)
		}
		return err
	}
	if handled {
		s.collector.IncRecordDispatched()
		return nil
	}

	s.records = append(s.records, rec)
	s.collector.IncRecordAccumulated()
	return nil
}

func (s *Session) fail(err error) error {
	s.err = err
	s.records = nil
	s.reader.Reset()
	s.logger.Debug("stream aborted", map[string]any{"error": err.Error()})
	return err
}

// Finish ends the stream and returns the accumulated records. A stream
// that ends inside a frame fails with an *ipc.FrameError of kind
// FrameErrorTruncated.
func (s *Session) Finish() ([]*types.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.finished = true
	if err := s.reader.Finish(); err != nil {
		s.collector.IncFrameError()
		return nil, s.fail(err)
	}
	return s.records, nil
}

// Records returns the records accumulated so far.
func (s *Session) Records() []*types.Record {
	return s.records
}

// Err returns the error that aborted the session, if any.
func (s *Session) Err() error {
	return s.err
}

// Run feeds r to the session in chunks of chunkSize bytes and finishes it.
func (s *Session) Run(ctx context.Context, r io.Reader, chunkSize int) ([]*types.Record, error) {
	_, err := iox.ReadChunks(ctx, r, chunkSize, func(chunk []byte) error {
		return s.Feed(ctx, chunk)
	})
	if err != nil {
		if s.err == nil {
			s.fail(err)
		}
		return nil, err
	}
	return s.Finish()
}
