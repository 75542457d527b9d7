package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/sliderule/log"
	"github.com/pithecene-io/sliderule/types"
)

// Reserved record types and their fields.
const (
	EventRecordType     = "event"
	ExceptionRecordType = "exception"

	// Legacy names still sent by older servers.
	LegacyEventRecordType     = "eventrec"
	LegacyExceptionRecordType = "exceptrec"

	FieldLevel      = "level"
	FieldAttribute  = "attribute"
	FieldAttrLegacy = "attr"
	FieldCode       = "code"
	FieldText       = "text"
)

// ExceptionCode is a server processing exception code.
type ExceptionCode int

// Known exception codes.
const (
	CodeError                ExceptionCode = 0
	CodeTimeout              ExceptionCode = 1
	CodeResourceDoesNotExist ExceptionCode = 2
	CodeEmptySubset          ExceptionCode = 3
)

// Exception describes how a known exception code is handled.
type Exception struct {
	Code ExceptionCode
	Name string
	// Fatal exceptions abort the request. Non-fatal ones make it retryable.
	Fatal bool
	// Unexpected exceptions are reported at critical severity.
	Expected bool
}

var exceptions = map[ExceptionCode]Exception{
	CodeError:                {Code: CodeError, Name: "ERROR", Fatal: true, Expected: false},
	CodeTimeout:              {Code: CodeTimeout, Name: "TIMEOUT", Fatal: false, Expected: true},
	CodeResourceDoesNotExist: {Code: CodeResourceDoesNotExist, Name: "RESOURCE_DOES_NOT_EXIST", Fatal: true, Expected: true},
	CodeEmptySubset:          {Code: CodeEmptySubset, Name: "EMPTY_SUBSET", Fatal: true, Expected: true},
}

// LookupException returns the taxonomy entry for code.
func LookupException(code ExceptionCode) (Exception, bool) {
	e, ok := exceptions[code]
	return e, ok
}

// ExceptionError is a server-signaled exception that ends the current
// attempt. When Fatal is false the whole request may be retried.
type ExceptionError struct {
	Code  ExceptionCode
	Name  string
	Text  string
	Fatal bool
}

func (e *ExceptionError) Error() string {
	kind := "retryable"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("%s server exception %s <%d>: %s", kind, e.Name, e.Code, e.Text)
}

// IsRetryable reports whether err carries a non-fatal server exception.
func IsRetryable(err error) bool {
	var exc *ExceptionError
	return errors.As(err, &exc) && !exc.Fatal
}

// IsFatal reports whether err carries a fatal server exception.
func IsFatal(err error) bool {
	var exc *ExceptionError
	return errors.As(err, &exc) && exc.Fatal
}

// ExceptionHandler returns the handler for exception records.
//
// Unknown codes are reported at critical severity and otherwise ignored.
// Known codes not marked expected are also reported at critical severity.
// Known codes then produce an *ExceptionError whose Fatal flag comes from
// the taxonomy. With verbose set, every known exception is also logged at
// info level.
func ExceptionHandler(logger *log.Logger, verbose bool) Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(_ context.Context, rec *types.Record) error {
		v, _ := rec.Get(FieldCode)
		n, ok := v.Int()
		code := ExceptionCode(n)
		text := recordText(rec, FieldText)

		exc, known := exceptions[code]
		if !ok || !known {
			logger.Critical("unrecognized server exception", map[string]any{
				"code": n,
				"text": text,
			})
			return nil
		}

		if verbose {
			logger.Info(fmt.Sprintf("%s exception <%d>: %s", exc.Name, exc.Code, text), nil)
		}
		if !exc.Expected {
			logger.Critical("unexpected server error: "+exc.Name, map[string]any{
				"code": int(exc.Code),
				"text": text,
			})
		}
		return &ExceptionError{Code: exc.Code, Name: exc.Name, Text: text, Fatal: exc.Fatal}
	}
}

func recordText(rec *types.Record, names ...string) string {
	for _, name := range names {
		if v, ok := rec.Get(name); ok {
			if s, ok := v.Str(); ok {
				return s
			}
		}
	}
	return ""
}
