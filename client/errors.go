package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/sliderule/decode"
	"github.com/pithecene-io/sliderule/dispatch"
	"github.com/pithecene-io/sliderule/ipc"
	"github.com/pithecene-io/sliderule/recdef"
	"github.com/pithecene-io/sliderule/transport"
)

// Class is the retry classification of a request error.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	// ClassRetryable errors repeat the whole request: transport failures,
	// streams cut mid-frame, and non-fatal server exceptions.
	ClassRetryable
	// ClassFatal errors end the request: framing and schema errors,
	// malformed records, fatal server exceptions, bad content types and
	// caller cancellation.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify decides whether err is worth another attempt. Schema and record
// errors are fatal even when a transport failure sits further down their
// chain: a definition the server cannot serve fails the same way on every
// attempt.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	var recErr *decode.RecordError
	if errors.As(err, &recErr) {
		return ClassFatal
	}
	var schemaErr *recdef.SchemaError
	if errors.As(err, &schemaErr) {
		return ClassFatal
	}

	var exc *dispatch.ExceptionError
	if errors.As(err, &exc) {
		if exc.Fatal {
			return ClassFatal
		}
		return ClassRetryable
	}

	var frameErr *ipc.FrameError
	if errors.As(err, &frameErr) {
		if frameErr.IsFatal() {
			return ClassFatal
		}
		return ClassRetryable
	}

	if transport.IsTransportError(err) {
		return ClassRetryable
	}
	return ClassFatal
}

// ContentTypeError is returned for a response that is neither JSON nor a
// record stream.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type: %q", e.ContentType)
}

// RequestError is the final error of a failed request.
type RequestError struct {
	API       string
	RequestID string
	Attempts  int
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s (%s) failed after %d attempt(s): %v", e.API, e.RequestID, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
