// Package recdef holds record definitions: the per-type field layouts the
// server publishes through its "definition" endpoint, and the process-wide
// cache that fetches and memoizes them.
package recdef

import (
	"encoding/binary"
	"slices"

	"github.com/pithecene-io/sliderule/catalog"
)

// Reserved definition keys and flags.
const (
	// MetaPrefix marks metadata keys; they are never data fields.
	MetaPrefix = "__"
	// SizeKey is the metadata entry holding the encoded size in bytes of
	// one instance of the type.
	SizeKey = "__datasize"

	// FlagPointer marks a pointer field. Pointer fields are skipped.
	FlagPointer = "PTR"
	// FlagLittleEndian selects little-endian decoding. Absent means big-endian.
	FlagLittleEndian = "LE"
)

// FieldLayout is one field as published by the server.
type FieldLayout struct {
	Name string `json:"name" yaml:"name"`
	// Type is a primitive name (see catalog) or a nested record type name.
	Type string `json:"type" yaml:"type"`
	// Offset is the field's offset in bits from the start of the instance.
	Offset int `json:"offset" yaml:"offset"`
	// Elements is 1 for a scalar, >1 for a fixed array, and <= 0 for an
	// array that consumes the rest of the record.
	Elements int      `json:"elements" yaml:"elements"`
	Flags    []string `json:"flags" yaml:"flags"`
}

// HasFlag reports whether flag is set on the field.
func (f FieldLayout) HasFlag(flag string) bool {
	return slices.Contains(f.Flags, flag)
}

// ByteOffset is Offset converted to bytes.
func (f FieldLayout) ByteOffset() int {
	return f.Offset / 8
}

// ByteOrder returns the field's decode byte order.
func (f FieldLayout) ByteOrder() binary.ByteOrder {
	if f.HasFlag(FlagLittleEndian) {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// FieldClass is how the decoder treats a field, decided once when the
// definition is parsed.
type FieldClass int

const (
	// ClassPrimitive fields decode through the type catalog.
	ClassPrimitive FieldClass = iota + 1
	// ClassNested fields decode recursively as another record type.
	ClassNested
	// ClassPointer fields are skipped entirely.
	ClassPointer
)

// Field is a FieldLayout plus its resolved class.
type Field struct {
	FieldLayout
	Class FieldClass
	// Primitive is set when Class is ClassPrimitive.
	Primitive catalog.Primitive
}

// Scalar reports whether the declared element count selects a bare value.
func (f Field) Scalar() bool {
	return f.Elements == 1
}

// Computed reports whether the element count is derived from the
// remaining payload length.
func (f Field) Computed() bool {
	return f.Elements <= 0
}

// Definition is the layout of one record type.
type Definition struct {
	Type string
	// Size is the encoded size in bytes of one instance, used to stride
	// arrays of nested records.
	Size int
	// Fields are the data fields in declaration order. Metadata keys are
	// excluded.
	Fields []Field
}

// Field returns the named data field.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// NestedTypes returns the distinct nested record types referenced by
// non-pointer fields, in declaration order.
func (d *Definition) NestedTypes() []string {
	var out []string
	for _, f := range d.Fields {
		if f.Class == ClassNested && !slices.Contains(out, f.Type) {
			out = append(out, f.Type)
		}
	}
	return out
}
