// Package decode turns raw record payloads into typed record trees using
// the record definitions published by the server.
package decode

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pithecene-io/sliderule/catalog"
	"github.com/pithecene-io/sliderule/recdef"
	"github.com/pithecene-io/sliderule/types"
)

// Resolver supplies record definitions. *recdef.Cache implements it.
type Resolver interface {
	Resolve(ctx context.Context, recordType string) (*recdef.Definition, error)
}

// RecordError reports a payload that does not match its definition. It is
// local to one record; the frame reader is unaffected.
type RecordError struct {
	Type   string
	Field  string
	Offset int // byte offset of the field within the decoded instance
	Span   int // bytes the field requires
	Len    int // bytes available in the instance
	Msg    string
	Err    error
}

func (e *RecordError) Error() string {
	msg := fmt.Sprintf("record %s.%s at offset %d: %s", e.Type, e.Field, e.Offset, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Decoder decodes record payloads. It holds no per-stream state and is
// safe for concurrent use if its Resolver is.
type Decoder struct {
	defs Resolver
}

// NewDecoder creates a decoder backed by defs.
func NewDecoder(defs Resolver) *Decoder {
	return &Decoder{defs: defs}
}

// Decode decodes raw as an instance of recordType.
//
// Field rules:
//   - pointer fields are skipped
//   - elements == 1 yields a scalar (or a single nested record)
//   - elements > 1 yields an array of that length
//   - elements <= 0 yields an array filling the rest of raw, even when the
//     computed length is 1
//   - STRING fields always yield a string cut at the first NUL
//
// Errors are *recdef.SchemaError when recordType cannot be resolved, and
// *RecordError when raw is too short for a field or a nested type fails.
func (d *Decoder) Decode(ctx context.Context, recordType string, raw []byte) (*types.Record, error) {
	def, err := d.defs.Resolve(ctx, recordType)
	if err != nil {
		return nil, err
	}
	return d.decodeDef(ctx, def, raw)
}

func (d *Decoder) decodeDef(ctx context.Context, def *recdef.Definition, raw []byte) (*types.Record, error) {
	rec := types.NewRecord(def.Type, len(def.Fields))
	for _, f := range def.Fields {
		var (
			v   types.Value
			err error
		)
		switch f.Class {
		case recdef.ClassPointer:
			continue
		case recdef.ClassPrimitive:
			v, err = decodePrimitive(def.Type, f, raw)
		case recdef.ClassNested:
			v, err = d.decodeNested(ctx, def.Type, f, raw)
		default:
			err = &RecordError{Type: def.Type, Field: f.Name, Offset: f.ByteOffset(), Len: len(raw), Msg: "unclassified field"}
		}
		if err != nil {
			return nil, err
		}
		rec.Set(f.Name, v)
	}
	return rec, nil
}

func decodePrimitive(recordType string, f recdef.Field, raw []byte) (types.Value, error) {
	p := f.Primitive
	off := f.ByteOffset()
	if off > len(raw) {
		return types.Value{}, &RecordError{Type: recordType, Field: f.Name, Offset: off, Len: len(raw), Msg: "offset beyond payload"}
	}

	count := f.Elements
	if f.Computed() {
		count = (len(raw) - off) / p.Size
	}
	if !fits(count, p.Size, len(raw)-off) {
		return types.Value{}, &RecordError{
			Type: recordType, Field: f.Name, Offset: off, Span: spanOf(count, p.Size), Len: len(raw),
			Msg: fmt.Sprintf("%d x %s exceeds payload", count, p.Name),
		}
	}
	span := p.Span(count)
	b := raw[off : off+span]

	if p.Kind == catalog.String {
		return types.ScalarValue(catalog.ReadString(b)), nil
	}

	order := f.ByteOrder()
	if f.Scalar() {
		v, err := p.ReadScalar(b, order)
		if err != nil {
			return types.Value{}, &RecordError{Type: recordType, Field: f.Name, Offset: off, Span: span, Len: len(raw), Msg: "decode failed", Err: err}
		}
		return types.ScalarValue(v), nil
	}

	arr, err := p.ReadArray(b, count, order)
	if err != nil {
		return types.Value{}, &RecordError{Type: recordType, Field: f.Name, Offset: off, Span: span, Len: len(raw), Msg: "decode failed", Err: err}
	}
	return types.ArrayValue(arr), nil
}

// decodeNested decodes each element from the suffix of raw that starts at
// the element, so offsets inside the nested layout are relative to the
// instance.
func (d *Decoder) decodeNested(ctx context.Context, recordType string, f recdef.Field, raw []byte) (types.Value, error) {
	off := f.ByteOffset()
	child, err := d.defs.Resolve(ctx, f.Type)
	if err != nil {
		return types.Value{}, &RecordError{Type: recordType, Field: f.Name, Offset: off, Len: len(raw), Msg: "unresolvable type " + f.Type, Err: err}
	}
	if child.Size <= 0 {
		return types.Value{}, &RecordError{Type: recordType, Field: f.Name, Offset: off, Len: len(raw), Msg: "nested type " + f.Type + " has no instance size"}
	}
	if off > len(raw) {
		return types.Value{}, &RecordError{Type: recordType, Field: f.Name, Offset: off, Len: len(raw), Msg: "offset beyond payload"}
	}

	count := f.Elements
	if f.Computed() {
		count = (len(raw) - off) / child.Size
	}
	if !fits(count, child.Size, len(raw)-off) {
		return types.Value{}, &RecordError{
			Type: recordType, Field: f.Name, Offset: off, Span: spanOf(count, child.Size), Len: len(raw),
			Msg: fmt.Sprintf("%d x %s exceeds payload", count, f.Type),
		}
	}

	recs := make([]*types.Record, 0, count)
	for i := range count {
		start := off + i*child.Size
		r, err := d.decodeDef(ctx, child, raw[start:])
		if err != nil {
			return types.Value{}, nestedErr(recordType, f, start, len(raw), err)
		}
		recs = append(recs, r)
	}

	if f.Scalar() {
		return types.RecordValue(recs[0]), nil
	}
	return types.RecordArrayValue(recs), nil
}

// fits reports whether count elements of size bytes fit in n bytes. It
// never multiplies, so element counts from a bad layout cannot overflow.
func fits(count, size, n int) bool {
	return count >= 0 && count <= n/size
}

// spanOf is count*size, or 0 when the product overflows int.
func spanOf(count, size int) int {
	if count < 0 || count > math.MaxInt/size {
		return 0
	}
	return count * size
}

// nestedErr attributes a failure inside a nested instance to the parent
// field while keeping the inner error in the chain.
func nestedErr(recordType string, f recdef.Field, start, n int, err error) error {
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return &RecordError{
			Type: recordType, Field: f.Name, Offset: start + recErr.Offset, Span: recErr.Span, Len: n,
			Msg: "in " + f.Type + "." + recErr.Field, Err: err,
		}
	}
	return err
}
