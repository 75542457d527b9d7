package recdef

import (
	"errors"
	"testing"
)

const atl03Def = `{
	"__datasize": 24,
	"track":   {"type": "UINT8",  "offset": 0,   "elements": 1,  "flags": ""},
	"pair":    {"type": "UINT8",  "offset": 8,   "elements": 1,  "flags": "LE"},
	"cycle":   {"type": "UINT16", "offset": 16,  "elements": 1,  "flags": "LE"},
	"next":    {"type": "atl03rec", "offset": 32, "elements": 1, "flags": "PTR"},
	"photons": {"type": "atl03rec.photons", "offset": 64, "elements": 0, "flags": ["LE"]}
}`

func TestParse_FieldOrderAndClasses(t *testing.T) {
	def, err := Parse("atl03rec", []byte(atl03Def))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if def.Size != 24 {
		t.Errorf("Size = %d, want 24", def.Size)
	}

	wantOrder := []string{"track", "pair", "cycle", "next", "photons"}
	if len(def.Fields) != len(wantOrder) {
		t.Fatalf("got %d fields, want %d", len(def.Fields), len(wantOrder))
	}
	for i, name := range wantOrder {
		if def.Fields[i].Name != name {
			t.Errorf("Fields[%d] = %q, want %q", i, def.Fields[i].Name, name)
		}
	}

	cycle, _ := def.Field("cycle")
	if cycle.Class != ClassPrimitive || cycle.Primitive.Size != 2 {
		t.Errorf("cycle: class=%d size=%d, want primitive of size 2", cycle.Class, cycle.Primitive.Size)
	}
	if cycle.ByteOffset() != 2 {
		t.Errorf("cycle.ByteOffset() = %d, want 2", cycle.ByteOffset())
	}
	if !cycle.Scalar() {
		t.Error("cycle should be scalar")
	}

	next, _ := def.Field("next")
	if next.Class != ClassPointer {
		t.Errorf("next.Class = %d, want ClassPointer", next.Class)
	}

	photons, _ := def.Field("photons")
	if photons.Class != ClassNested || !photons.Computed() {
		t.Errorf("photons: class=%d computed=%v", photons.Class, photons.Computed())
	}
	if !photons.HasFlag(FlagLittleEndian) {
		t.Error("photons should carry LE flag from list form")
	}

	nested := def.NestedTypes()
	if len(nested) != 1 || nested[0] != "atl03rec.photons" {
		t.Errorf("NestedTypes() = %v, want [atl03rec.photons]", nested)
	}
}

func TestParse_ScalarVersusSingletonArray(t *testing.T) {
	def, err := Parse("pair", []byte(`{
		"__datasize": 16,
		"scalar":    {"type": "INT64", "offset": 0,  "elements": 1},
		"singleton": {"type": "INT64", "offset": 64, "elements": 0}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	s, _ := def.Field("scalar")
	a, _ := def.Field("singleton")
	if !s.Scalar() || s.Computed() {
		t.Error("elements=1 must be a declared scalar")
	}
	if a.Scalar() || !a.Computed() {
		t.Error("elements=0 must be a computed array")
	}
}

func TestParse_FlagStringForms(t *testing.T) {
	tests := []struct {
		flags string
		want  []string
	}{
		{`""`, nil},
		{`"LE"`, []string{"LE"}},
		{`"PTR|LE"`, []string{"PTR", "LE"}},
		{`"NATIVE, LE"`, []string{"NATIVE", "LE"}},
		{`null`, nil},
	}
	for _, tt := range tests {
		got, err := parseFlags([]byte(tt.flags))
		if err != nil {
			t.Fatalf("parseFlags(%s) failed: %v", tt.flags, err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseFlags(%s) = %v, want %v", tt.flags, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseFlags(%s) = %v, want %v", tt.flags, got, tt.want)
			}
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"not object", `[1,2]`},
		{"missing size", `{"a": {"type": "INT8", "offset": 0, "elements": 1}}`},
		{"negative size", `{"__datasize": -1}`},
		{"unaligned offset", `{"__datasize": 1, "a": {"type": "INT8", "offset": 3, "elements": 1}}`},
		{"bitfield", `{"__datasize": 1, "a": {"type": "BITFIELD", "offset": 0, "elements": 1}}`},
		{"missing type", `{"__datasize": 1, "a": {"offset": 0, "elements": 1}}`},
		{"missing offset", `{"__datasize": 1, "a": {"type": "INT8", "elements": 1}}`},
		{"bad flags", `{"__datasize": 1, "a": {"type": "INT8", "offset": 0, "flags": 7}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad", []byte(tt.json))
			if err == nil {
				t.Fatal("expected error")
			}
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected *SchemaError, got %T", err)
			}
			if schemaErr.Type != "bad" {
				t.Errorf("Type = %q, want bad", schemaErr.Type)
			}
		})
	}
}

func TestParse_PointerSkipsValidation(t *testing.T) {
	def, err := Parse("p", []byte(`{"__datasize": 8, "ptr": {"type": "BITFIELD", "offset": 3, "elements": 1, "flags": "PTR"}}`))
	if err != nil {
		t.Fatalf("pointer fields are never decoded and must not be validated: %v", err)
	}
	if def.Fields[0].Class != ClassPointer {
		t.Error("expected pointer class")
	}
}

func TestParse_MissingElementsDefaultsToScalar(t *testing.T) {
	def, err := Parse("d", []byte(`{"__datasize": 1, "a": {"type": "INT8", "offset": 0}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !def.Fields[0].Scalar() {
		t.Error("missing elements should default to scalar")
	}
}
