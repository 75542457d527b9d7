// Package catalog is the static table of primitive field types.
//
// Each primitive has an on-wire byte width, a wire format (signed, unsigned,
// float or string) and the Go type it decodes into. Record definitions name
// primitives by their upper-case wire name ("INT32", "DOUBLE", ...); any
// other type name refers to a nested record type.
package catalog

// Kind enumerates primitive types.
type Kind int

const (
	Int8 Kind = iota + 1
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Bitfield
	Float
	Double
	Time8
	String
)

// Format is the on-wire encoding family of a primitive.
type Format int

const (
	FormatSigned Format = iota + 1
	FormatUnsigned
	FormatFloat
	FormatString
	FormatUnsupported
)

func (f Format) String() string {
	switch f {
	case FormatSigned:
		return "signed"
	case FormatUnsigned:
		return "unsigned"
	case FormatFloat:
		return "float"
	case FormatString:
		return "string"
	case FormatUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Primitive describes one primitive type.
type Primitive struct {
	Name   string
	Kind   Kind
	Size   int
	Format Format
	// GoType is the name of the in-memory type the primitive decodes into.
	GoType string
}

// Supported reports whether the decoder can read this primitive.
// BITFIELD has no byte width and is rejected at definition time.
func (p Primitive) Supported() bool {
	return p.Size > 0 && p.Format != FormatUnsupported
}

var primitives = map[string]Primitive{
	"INT8":     {Name: "INT8", Kind: Int8, Size: 1, Format: FormatSigned, GoType: "int8"},
	"INT16":    {Name: "INT16", Kind: Int16, Size: 2, Format: FormatSigned, GoType: "int16"},
	"INT32":    {Name: "INT32", Kind: Int32, Size: 4, Format: FormatSigned, GoType: "int32"},
	"INT64":    {Name: "INT64", Kind: Int64, Size: 8, Format: FormatSigned, GoType: "int64"},
	"UINT8":    {Name: "UINT8", Kind: Uint8, Size: 1, Format: FormatUnsigned, GoType: "uint8"},
	"UINT16":   {Name: "UINT16", Kind: Uint16, Size: 2, Format: FormatUnsigned, GoType: "uint16"},
	"UINT32":   {Name: "UINT32", Kind: Uint32, Size: 4, Format: FormatUnsigned, GoType: "uint32"},
	"UINT64":   {Name: "UINT64", Kind: Uint64, Size: 8, Format: FormatUnsigned, GoType: "uint64"},
	"BITFIELD": {Name: "BITFIELD", Kind: Bitfield, Size: 0, Format: FormatUnsupported, GoType: "byte"},
	"FLOAT":    {Name: "FLOAT", Kind: Float, Size: 4, Format: FormatFloat, GoType: "float32"},
	"DOUBLE":   {Name: "DOUBLE", Kind: Double, Size: 8, Format: FormatFloat, GoType: "float64"},
	"TIME8":    {Name: "TIME8", Kind: Time8, Size: 8, Format: FormatUnsigned, GoType: "uint64"},
	"STRING":   {Name: "STRING", Kind: String, Size: 1, Format: FormatString, GoType: "string"},
}

// codes maps the server's numeric type codes to primitive names.
var codes = []string{
	"INT8", "INT16", "INT32", "INT64",
	"UINT8", "UINT16", "UINT32", "UINT64",
	"BITFIELD", "FLOAT", "DOUBLE", "TIME8", "STRING",
}

// Lookup returns the primitive with the given wire name.
// ok is false for nested record type names.
func Lookup(name string) (Primitive, bool) {
	p, ok := primitives[name]
	return p, ok
}

// IsPrimitive reports whether name is a primitive type name.
func IsPrimitive(name string) bool {
	_, ok := primitives[name]
	return ok
}

// ByCode returns the primitive name for a numeric type code.
func ByCode(code int) (string, bool) {
	if code < 0 || code >= len(codes) {
		return "", false
	}
	return codes[code], true
}

// Names returns all primitive names in type-code order.
func Names() []string {
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}
