package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies transport failures for logging.
type ErrorKind int

const (
	// KindConnect is a failure to reach the endpoint.
	KindConnect ErrorKind = iota + 1
	// KindTimeout is a connect, header or body read timeout.
	KindTimeout
	// KindTruncated is a response body that ended abnormally.
	KindTruncated
	// KindStatus is a non-2xx response.
	KindStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTimeout:
		return "timeout"
	case KindTruncated:
		return "truncated"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Error is a transient request failure. All kinds are retryable.
type Error struct {
	Kind   ErrorKind
	URL    string
	Status int // set for KindStatus
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("transport: %s: HTTP %d %s", e.URL, e.Status, http.StatusText(e.Status))
	default:
		if e.Err != nil {
			return fmt.Sprintf("transport: %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("transport: %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Overloaded reports whether the server answered 503.
func (e *Error) Overloaded() bool {
	return e.Kind == KindStatus && e.Status == http.StatusServiceUnavailable
}

// IsTransportError reports whether err is or wraps an *Error.
func IsTransportError(err error) bool {
	var tErr *Error
	return errors.As(err, &tErr)
}

func classify(url string, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	return &Error{Kind: KindConnect, URL: url, Err: err}
}
