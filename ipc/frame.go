// Package ipc implements record stream framing.
//
// A stream is a sequence of frames:
//
//	[int16 version][int16 type size][int32 data size]   8-byte big-endian header
//	[type name]\x00[field data]                         type size + data size bytes
//
// FrameReader reassembles frames from byte chunks of any length. Chunk
// boundaries carry no meaning: a chunk may end inside a header, inside a
// body, or hold several frames.
package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pithecene-io/sliderule/metrics"
	"github.com/pithecene-io/sliderule/types"
)

// HeaderSize is the size of the frame header in bytes.
const HeaderSize = 8

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorVersion indicates a header version other than types.FrameVersion.
	FrameErrorVersion FrameErrorKind = iota
	// FrameErrorDegenerate indicates negative sizes or a body without a
	// NUL-terminated type name.
	FrameErrorDegenerate
	// FrameErrorTruncated indicates the stream ended inside a frame.
	FrameErrorTruncated
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorVersion:
		return "version"
	case FrameErrorDegenerate:
		return "degenerate"
	case FrameErrorTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// FrameError represents a framing error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("frame %s: %s", e.Kind, e.Msg)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream must be abandoned without retry.
// A truncated stream is a transport failure and may be retried.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorTruncated
}

// IsFatalFrameError returns true if err is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Frame is one complete record frame.
type Frame struct {
	// Type is the record type name.
	Type string
	// Payload is the raw field data following the type name.
	Payload []byte
}

type phase int

const (
	phaseHeader phase = iota
	phaseBody
)

// FrameReader is a resumable frame parser. It is owned by one stream and
// is not safe for concurrent use.
type FrameReader struct {
	phase     phase
	header    [HeaderSize]byte
	headerLen int
	body      []byte
	bodyLen   int

	collector *metrics.Collector
}

// NewFrameReader creates a reader positioned at a frame header.
// collector may be nil.
func NewFrameReader(collector *metrics.Collector) *FrameReader {
	return &FrameReader{collector: collector}
}

// Feed consumes chunk entirely and returns the frames it completed, in
// stream order. Partial header or body bytes are kept for the next call.
//
// On error, frames completed earlier in the chunk are returned with it and
// the reader is reset to expect a header.
func (r *FrameReader) Feed(chunk []byte) ([]Frame, error) {
	var frames []Frame
	for len(chunk) > 0 {
		switch r.phase {
		case phaseHeader:
			n := copy(r.header[r.headerLen:], chunk)
			r.headerLen += n
			chunk = chunk[n:]
			if r.headerLen < HeaderSize {
				continue
			}
			if err := r.startBody(); err != nil {
				r.Reset()
				r.collector.IncFrameError()
				return frames, err
			}

		case phaseBody:
			n := copy(r.body[r.bodyLen:], chunk)
			r.bodyLen += n
			chunk = chunk[n:]
			if r.bodyLen < len(r.body) {
				continue
			}
			frame, err := splitBody(r.body)
			r.Reset()
			if err != nil {
				r.collector.IncFrameError()
				return frames, err
			}
			r.collector.IncFrameDecoded()
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

// startBody decodes a complete header. A zero-size frame is dropped and
// the reader stays in the header phase.
func (r *FrameReader) startBody() error {
	version := int16(binary.BigEndian.Uint16(r.header[0:2]))
	typeSize := int16(binary.BigEndian.Uint16(r.header[2:4]))
	dataSize := int32(binary.BigEndian.Uint32(r.header[4:8]))

	if version != types.FrameVersion {
		return &FrameError{
			Kind: FrameErrorVersion,
			Msg:  fmt.Sprintf("invalid record format: %d", version),
		}
	}
	if typeSize < 0 || dataSize < 0 {
		return &FrameError{
			Kind: FrameErrorDegenerate,
			Msg:  fmt.Sprintf("negative frame size (type %d, data %d)", typeSize, dataSize),
		}
	}

	total := int(typeSize) + int(dataSize)
	if total == 0 {
		r.Reset()
		r.collector.IncFrameSkipped()
		return nil
	}

	r.body = make([]byte, total)
	r.bodyLen = 0
	r.phase = phaseBody
	return nil
}

// splitBody separates the NUL-terminated type name from the field data.
func splitBody(body []byte) (Frame, error) {
	i := bytes.IndexByte(body, 0)
	if i < 0 {
		return Frame{}, &FrameError{
			Kind: FrameErrorDegenerate,
			Msg:  "record type name is not NUL-terminated",
		}
	}
	return Frame{Type: string(body[:i]), Payload: body[i+1:]}, nil
}

// Pending reports whether the reader holds part of a frame.
func (r *FrameReader) Pending() bool {
	return r.headerLen > 0 || r.phase == phaseBody
}

// Finish reports a *FrameError of kind FrameErrorTruncated if the stream
// ended inside a frame.
func (r *FrameReader) Finish() error {
	if !r.Pending() {
		return nil
	}
	var msg string
	if r.phase == phaseBody {
		msg = fmt.Sprintf("stream ended after %d of %d body bytes", r.bodyLen, len(r.body))
	} else {
		msg = fmt.Sprintf("stream ended after %d of %d header bytes", r.headerLen, HeaderSize)
	}
	r.Reset()
	return &FrameError{Kind: FrameErrorTruncated, Msg: msg}
}

// Reset discards any partial frame.
func (r *FrameReader) Reset() {
	r.phase = phaseHeader
	r.headerLen = 0
	r.body = nil
	r.bodyLen = 0
}
