// Package types defines core domain types for the sliderule client.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"fmt"
)

// RecordTypeKey is the key that carries a record's type name in map form.
const RecordTypeKey = "__rectype"

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	// KindScalar is a single primitive (integer, float or string).
	KindScalar ValueKind = iota + 1
	// KindArray is a typed slice of primitives ([]int8 ... []float64).
	KindArray
	// KindRecord is a single nested record.
	KindRecord
	// KindRecordArray is an ordered slice of nested records.
	KindRecordArray
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	case KindRecordArray:
		return "record_array"
	default:
		return "unknown"
	}
}

// Value is one decoded field value. Exactly one payload member is set,
// selected by Kind.
type Value struct {
	Kind    ValueKind
	Scalar  any
	Array   any
	Record  *Record
	Records []*Record
}

// ScalarValue wraps a primitive scalar.
func ScalarValue(v any) Value { return Value{Kind: KindScalar, Scalar: v} }

// ArrayValue wraps a typed primitive slice.
func ArrayValue(v any) Value { return Value{Kind: KindArray, Array: v} }

// RecordValue wraps a nested record.
func RecordValue(r *Record) Value { return Value{Kind: KindRecord, Record: r} }

// RecordArrayValue wraps an ordered slice of nested records.
func RecordArrayValue(rs []*Record) Value { return Value{Kind: KindRecordArray, Records: rs} }

// Interface returns the payload as a plain Go value. Nested records are
// returned in map form.
func (v Value) Interface() any {
	switch v.Kind {
	case KindScalar:
		return v.Scalar
	case KindArray:
		return plainArray(v.Array)
	case KindRecord:
		if v.Record == nil {
			return nil
		}
		return v.Record.Map()
	case KindRecordArray:
		out := make([]any, len(v.Records))
		for i, r := range v.Records {
			out[i] = r.Map()
		}
		return out
	default:
		return nil
	}
}

// Int returns a scalar integer of any width as int64.
func (v Value) Int() (int64, bool) {
	if v.Kind != KindScalar {
		return 0, false
	}
	switch n := v.Scalar.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Float returns a scalar float, or an integer scalar converted to float64.
func (v Value) Float() (float64, bool) {
	if v.Kind != KindScalar {
		return 0, false
	}
	switch n := v.Scalar.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := v.Int(); ok {
		return float64(i), true
	}
	return 0, false
}

// Str returns a scalar string.
func (v Value) Str() (string, bool) {
	if v.Kind != KindScalar {
		return "", false
	}
	s, ok := v.Scalar.(string)
	return s, ok
}

// Field is one named value of a record, in definition order.
type Field struct {
	Name  string
	Value Value
}

// Record is a decoded record. Records are built by the decoder and are not
// modified after they are returned.
type Record struct {
	Type   string
	Fields []Field
}

// NewRecord creates an empty record of the given type.
func NewRecord(recordType string, capacity int) *Record {
	return &Record{Type: recordType, Fields: make([]Field, 0, capacity)}
}

// Set appends a field. Only the decoder calls Set.
func (r *Record) Set(name string, v Value) {
	r.Fields = append(r.Fields, Field{Name: name, Value: v})
}

// Get returns the named field.
func (r *Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Map returns the record as a map keyed by field name, including the
// RecordTypeKey entry. Used for rendering and persistence.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+1)
	m[RecordTypeKey] = r.Type
	for _, f := range r.Fields {
		m[f.Name] = f.Value.Interface()
	}
	return m
}

// MarshalJSON encodes the record in map form.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

func (r *Record) String() string {
	return fmt.Sprintf("%s%v", r.Type, r.Map())
}

// plainArray widens []uint8 so that JSON and YAML encoders emit numbers
// instead of a base64 or binary blob.
func plainArray(a any) any {
	b, ok := a.([]uint8)
	if !ok {
		return a
	}
	out := make([]uint16, len(b))
	for i, v := range b {
		out[i] = uint16(v)
	}
	return out
}
