package decode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/pithecene-io/sliderule/recdef"
	"github.com/pithecene-io/sliderule/types"
)

// newTestDecoder builds a decoder over a cache serving the given JSON
// definitions.
func newTestDecoder(defs map[string]string) *Decoder {
	fetch := recdef.FetcherFunc(func(_ context.Context, recordType string) ([]byte, error) {
		def, ok := defs[recordType]
		if !ok {
			return nil, fmt.Errorf("no definition for %s", recordType)
		}
		return []byte(def), nil
	})
	return NewDecoder(recdef.NewCache(fetch, nil))
}

func mustGet(t *testing.T, rec *types.Record, name string) types.Value {
	t.Helper()
	v, ok := rec.Get(name)
	if !ok {
		t.Fatalf("record %s has no field %q", rec.Type, name)
	}
	return v
}

func TestDecode_WireExample(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"atl03r": `{"__datasize": 8, "field0": {"type": "INT64", "offset": 0, "elements": 1, "flags": ""}}`,
	})

	rec, err := d.Decode(t.Context(), "atl03r", []byte{0, 0, 0, 0, 0, 0, 0, 1})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := map[string]any{types.RecordTypeKey: "atl03r", "field0": int64(1)}
	if got := rec.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("Map() = %v, want %v", got, want)
	}
}

func TestDecode_RoundTripPrimitives(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"mixed": `{
			"__datasize": 64,
			"i8":   {"type": "INT8",   "offset": 0,   "elements": 1},
			"u8":   {"type": "UINT8",  "offset": 8,   "elements": 1},
			"i16":  {"type": "INT16",  "offset": 16,  "elements": 1, "flags": "LE"},
			"u32":  {"type": "UINT32", "offset": 32,  "elements": 1},
			"f32":  {"type": "FLOAT",  "offset": 64,  "elements": 1, "flags": "LE"},
			"f64":  {"type": "DOUBLE", "offset": 96,  "elements": 1},
			"t8":   {"type": "TIME8",  "offset": 160, "elements": 1, "flags": "LE"},
			"name": {"type": "STRING", "offset": 224, "elements": 8},
			"vec":  {"type": "INT16",  "offset": 288, "elements": 3}
		}`,
	})

	raw := make([]byte, 42)
	raw[0] = 0xfe // -2
	raw[1] = 200
	binary.LittleEndian.PutUint16(raw[2:], uint16(0xfff6)) // -10
	binary.BigEndian.PutUint32(raw[4:], 123456)
	binary.LittleEndian.PutUint32(raw[8:], math.Float32bits(3.5))
	binary.BigEndian.PutUint64(raw[12:], math.Float64bits(-1.25))
	binary.LittleEndian.PutUint64(raw[20:], 1300556199523)
	copy(raw[28:], "gt1l\x00\xaa\xbb\xcc") // padding after the NUL
	binary.BigEndian.PutUint16(raw[36:], 1)
	binary.BigEndian.PutUint16(raw[38:], 2)
	binary.BigEndian.PutUint16(raw[40:], 0xffff)

	rec, err := d.Decode(t.Context(), "mixed", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	scalars := map[string]any{
		"i8":   int8(-2),
		"u8":   uint8(200),
		"i16":  int16(-10),
		"u32":  uint32(123456),
		"f32":  float32(3.5),
		"f64":  float64(-1.25),
		"t8":   uint64(1300556199523),
		"name": "gt1l",
	}
	for name, want := range scalars {
		v := mustGet(t, rec, name)
		if v.Kind != types.KindScalar {
			t.Errorf("%s.Kind = %v, want scalar", name, v.Kind)
			continue
		}
		if v.Scalar != want {
			t.Errorf("%s = %v (%T), want %v (%T)", name, v.Scalar, v.Scalar, want, want)
		}
	}

	vec := mustGet(t, rec, "vec")
	if vec.Kind != types.KindArray || !reflect.DeepEqual(vec.Array, []int16{1, 2, -1}) {
		t.Errorf("vec = %+v, want array [1 2 -1]", vec)
	}

	wantOrder := []string{"i8", "u8", "i16", "u32", "f32", "f64", "t8", "name", "vec"}
	for i, f := range rec.Fields {
		if f.Name != wantOrder[i] {
			t.Errorf("Fields[%d] = %q, want %q", i, f.Name, wantOrder[i])
		}
	}
}

func TestDecode_ScalarVersusComputedSingleton(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"pair": `{
			"__datasize": 16,
			"scalar": {"type": "INT64", "offset": 0,  "elements": 1},
			"rest":   {"type": "INT64", "offset": 64, "elements": 0}
		}`,
	})

	raw := make([]byte, 16)
	binary.BigEndian.PutUint64(raw[0:], 7)
	binary.BigEndian.PutUint64(raw[8:], 9)

	rec, err := d.Decode(t.Context(), "pair", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	s := mustGet(t, rec, "scalar")
	if s.Kind != types.KindScalar || s.Scalar != int64(7) {
		t.Errorf("scalar = %+v, want scalar 7", s)
	}

	// A computed count of 1 still yields an array.
	a := mustGet(t, rec, "rest")
	if a.Kind != types.KindArray || !reflect.DeepEqual(a.Array, []int64{9}) {
		t.Errorf("rest = %+v, want array [9]", a)
	}
}

func TestDecode_ComputedArrayConsumesRest(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"samples": `{"__datasize": 2, "n": {"type": "UINT16", "offset": 0, "elements": 1}, "v": {"type": "UINT16", "offset": 16, "elements": -1, "flags": "LE"}}`,
	})

	// Three full elements and one trailing odd byte that is ignored.
	raw := []byte{0, 3, 1, 0, 2, 0, 3, 0, 0xff}
	rec, err := d.Decode(t.Context(), "samples", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v := mustGet(t, rec, "v")
	if !reflect.DeepEqual(v.Array, []uint16{1, 2, 3}) {
		t.Errorf("v = %v, want [1 2 3]", v.Array)
	}
}

func TestDecode_ComputedArrayEmpty(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"r": `{"__datasize": 1, "a": {"type": "UINT8", "offset": 0, "elements": 1}, "rest": {"type": "INT32", "offset": 8, "elements": 0}}`,
	})

	rec, err := d.Decode(t.Context(), "r", []byte{5})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	rest := mustGet(t, rec, "rest")
	if rest.Kind != types.KindArray || len(rest.Array.([]int32)) != 0 {
		t.Errorf("rest = %+v, want empty array", rest)
	}
}

func TestDecode_StringConsumesRest(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"eventrec": `{"__datasize": 2, "level": {"type": "UINT16", "offset": 0, "elements": 1}, "attribute": {"type": "STRING", "offset": 16, "elements": 0}}`,
	})

	raw := append([]byte{0, 2}, "processing granule\x00\x00\x00"...)
	rec, err := d.Decode(t.Context(), "eventrec", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	attr, _ := mustGet(t, rec, "attribute").Str()
	if attr != "processing granule" {
		t.Errorf("attribute = %q, want %q", attr, "processing granule")
	}
}

func TestDecode_PointerSkipped(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"r": `{"__datasize": 16, "ptr": {"type": "r", "offset": 0, "elements": 1, "flags": "PTR"}, "v": {"type": "INT64", "offset": 64, "elements": 1}}`,
	})

	raw := make([]byte, 16)
	binary.BigEndian.PutUint64(raw[8:], 42)
	rec, err := d.Decode(t.Context(), "r", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := rec.Get("ptr"); ok {
		t.Error("pointer field must not be decoded")
	}
	if v := mustGet(t, rec, "v"); v.Scalar != int64(42) {
		t.Errorf("v = %v, want 42", v.Scalar)
	}
}

func TestDecode_NestedArrayRelativeOffsets(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"atl03rec": `{
			"__datasize": 4,
			"cycle":   {"type": "UINT16", "offset": 0,  "elements": 1},
			"count":   {"type": "UINT16", "offset": 16, "elements": 1},
			"photons": {"type": "atl03rec.photons", "offset": 32, "elements": 0}
		}`,
		"atl03rec.photons": `{
			"__datasize": 6,
			"id":     {"type": "UINT16", "offset": 0,  "elements": 1},
			"height": {"type": "INT32",  "offset": 16, "elements": 1, "flags": "LE"}
		}`,
	})

	const n = 4
	raw := make([]byte, 4+n*6)
	binary.BigEndian.PutUint16(raw[0:], 11)
	binary.BigEndian.PutUint16(raw[2:], n)
	for i := range n {
		base := 4 + i*6
		binary.BigEndian.PutUint16(raw[base:], uint16(100+i))
		binary.LittleEndian.PutUint32(raw[base+2:], uint32(int32(-1000*i)))
	}

	rec, err := d.Decode(t.Context(), "atl03rec", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	photons := mustGet(t, rec, "photons")
	if photons.Kind != types.KindRecordArray {
		t.Fatalf("photons.Kind = %v, want record_array", photons.Kind)
	}
	if len(photons.Records) != n {
		t.Fatalf("got %d photons, want %d", len(photons.Records), n)
	}
	for i, p := range photons.Records {
		if p.Type != "atl03rec.photons" {
			t.Errorf("photons[%d].Type = %q", i, p.Type)
		}
		if id := mustGet(t, p, "id").Scalar; id != uint16(100+i) {
			t.Errorf("photons[%d].id = %v, want %d", i, id, 100+i)
		}
		if h := mustGet(t, p, "height").Scalar; h != int32(-1000*i) {
			t.Errorf("photons[%d].height = %v, want %d", i, h, -1000*i)
		}
	}
}

func TestDecode_NestedScalarAndFixedArray(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"outer": `{
			"__datasize": 7,
			"head": {"type": "point", "offset": 0,  "elements": 1},
			"pair": {"type": "point", "offset": 16, "elements": 2},
			"tail": {"type": "UINT8", "offset": 48, "elements": 1}
		}`,
		"point": `{"__datasize": 2, "x": {"type": "INT8", "offset": 0, "elements": 1}, "y": {"type": "INT8", "offset": 8, "elements": 1}}`,
	})

	raw := []byte{1, 2, 3, 4, 5, 6, 9}
	rec, err := d.Decode(t.Context(), "outer", raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	head := mustGet(t, rec, "head")
	if head.Kind != types.KindRecord {
		t.Fatalf("head.Kind = %v, want record", head.Kind)
	}
	if x := mustGet(t, head.Record, "x").Scalar; x != int8(1) {
		t.Errorf("head.x = %v, want 1", x)
	}

	pair := mustGet(t, rec, "pair")
	if pair.Kind != types.KindRecordArray || len(pair.Records) != 2 {
		t.Fatalf("pair = %+v, want 2 records", pair)
	}
	if y := mustGet(t, pair.Records[1], "y").Scalar; y != int8(6) {
		t.Errorf("pair[1].y = %v, want 6", y)
	}
	if tail := mustGet(t, rec, "tail").Scalar; tail != uint8(9) {
		t.Errorf("tail = %v, want 9", tail)
	}
}

func TestDecode_OffsetBeyondPayload(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"r": `{"__datasize": 8, "v": {"type": "INT64", "offset": 0, "elements": 1}}`,
	})

	_, err := d.Decode(t.Context(), "r", []byte{1, 2, 3})
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecordError, got %v", err)
	}
	if recErr.Type != "r" || recErr.Field != "v" || recErr.Span != 8 || recErr.Len != 3 {
		t.Errorf("unexpected error detail: %+v", recErr)
	}
}

func TestDecode_FixedArrayOverrun(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"r": `{"__datasize": 8, "v": {"type": "UINT32", "offset": 32, "elements": 2}}`,
	})

	_, err := d.Decode(t.Context(), "r", make([]byte, 8))
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecordError, got %v", err)
	}
	if recErr.Offset != 4 {
		t.Errorf("Offset = %d, want 4", recErr.Offset)
	}
}

func TestDecode_NestedOverrun(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"outer": `{"__datasize": 8, "pts": {"type": "point", "offset": 0, "elements": 3}}`,
		"point": `{"__datasize": 2, "x": {"type": "INT16", "offset": 0, "elements": 1}}`,
	})

	_, err := d.Decode(t.Context(), "outer", make([]byte, 4))
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecordError, got %v", err)
	}
	if recErr.Field != "pts" {
		t.Errorf("Field = %q, want pts", recErr.Field)
	}
}

func TestDecode_HugeElementCountIsRecordError(t *testing.T) {
	// 2^61 x 8 bytes wraps to 0 when multiplied in int.
	d := newTestDecoder(map[string]string{
		"r": `{"__datasize": 8, "v": {"type": "INT64", "offset": 0, "elements": 2305843009213693952}}`,
	})

	_, err := d.Decode(t.Context(), "r", make([]byte, 8))
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecordError, got %v", err)
	}
	if recErr.Field != "v" || recErr.Span != 0 || recErr.Len != 8 {
		t.Errorf("unexpected error detail: %+v", recErr)
	}
}

func TestDecode_HugeNestedCountIsRecordError(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"outer": `{"__datasize": 8, "pts": {"type": "point", "offset": 0, "elements": 4611686018427387904}}`,
		"point": `{"__datasize": 4, "x": {"type": "INT32", "offset": 0, "elements": 1}}`,
	})

	_, err := d.Decode(t.Context(), "outer", make([]byte, 8))
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecordError, got %v", err)
	}
	if recErr.Field != "pts" {
		t.Errorf("Field = %q, want pts", recErr.Field)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	d := newTestDecoder(map[string]string{})

	_, err := d.Decode(t.Context(), "nope", []byte{1})
	var schemaErr *recdef.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *recdef.SchemaError, got %v", err)
	}
	if schemaErr.Type != "nope" {
		t.Errorf("Type = %q, want nope", schemaErr.Type)
	}
}

func TestDecode_ErrorDoesNotAffectNextRecord(t *testing.T) {
	d := newTestDecoder(map[string]string{
		"r": `{"__datasize": 2, "v": {"type": "UINT16", "offset": 0, "elements": 1}}`,
	})

	if _, err := d.Decode(t.Context(), "r", []byte{1}); err == nil {
		t.Fatal("expected error for short payload")
	}
	rec, err := d.Decode(t.Context(), "r", []byte{1, 2})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v := mustGet(t, rec, "v").Scalar; v != uint16(0x0102) {
		t.Errorf("v = %v, want 0x0102", v)
	}
}
