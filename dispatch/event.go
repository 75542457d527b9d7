package dispatch

import (
	"context"

	"github.com/pithecene-io/sliderule/log"
	"github.com/pithecene-io/sliderule/types"
)

// Server event severities.
const (
	LevelDebug int64 = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// EventHandler returns the handler for server log event records. With
// verbose unset it discards events. It never returns an error.
func EventHandler(logger *log.Logger, verbose bool) Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(_ context.Context, rec *types.Record) error {
		if !verbose {
			return nil
		}
		msg := recordText(rec, FieldAttribute, FieldAttrLegacy)
		v, _ := rec.Get(FieldLevel)
		level, _ := v.Int()

		fields := map[string]any{"source": "server"}
		switch level {
		case LevelDebug:
			logger.Debug(msg, fields)
		case LevelInfo:
			logger.Info(msg, fields)
		case LevelWarning:
			logger.Warn(msg, fields)
		case LevelError:
			logger.Error(msg, fields)
		case LevelCritical:
			logger.Critical(msg, fields)
		default:
			fields["level"] = level
			logger.Info(msg, fields)
		}
		return nil
	}
}

// Defaults returns a registry with the event and exception handlers
// installed under both current and legacy record type names.
func Defaults(logger *log.Logger, verbose bool) *Registry {
	r := NewRegistry()
	ev := EventHandler(logger, verbose)
	exc := ExceptionHandler(logger, verbose)
	r.Register(EventRecordType, ev)
	r.Register(LegacyEventRecordType, ev)
	r.Register(ExceptionRecordType, exc)
	r.Register(LegacyExceptionRecordType, exc)
	return r
}
