package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Span returns the number of bytes count elements of p occupy.
func (p Primitive) Span(count int) int {
	return p.Size * count
}

// ReadScalar decodes one element of p from the start of b.
// b must hold at least p.Size bytes.
func (p Primitive) ReadScalar(b []byte, order binary.ByteOrder) (any, error) {
	if p.Kind == String {
		return ReadString(b), nil
	}
	if !p.Supported() {
		return nil, fmt.Errorf("unsupported primitive %s", p.Name)
	}
	if len(b) < p.Size {
		return nil, fmt.Errorf("%s needs %d bytes, have %d", p.Name, p.Size, len(b))
	}
	switch p.Kind {
	case Int8:
		return int8(b[0]), nil
	case Int16:
		return int16(order.Uint16(b)), nil
	case Int32:
		return int32(order.Uint32(b)), nil
	case Int64:
		return int64(order.Uint64(b)), nil
	case Uint8:
		return b[0], nil
	case Uint16:
		return order.Uint16(b), nil
	case Uint32:
		return order.Uint32(b), nil
	case Uint64, Time8:
		return order.Uint64(b), nil
	case Float:
		return math.Float32frombits(order.Uint32(b)), nil
	case Double:
		return math.Float64frombits(order.Uint64(b)), nil
	}
	return nil, fmt.Errorf("unsupported primitive %s", p.Name)
}

// ReadArray decodes count consecutive elements of p into a typed slice
// ([]int8 ... []float64). STRING is not an array type; use ReadString.
func (p Primitive) ReadArray(b []byte, count int, order binary.ByteOrder) (any, error) {
	if count < 0 {
		return nil, fmt.Errorf("negative element count %d", count)
	}
	if !p.Supported() || p.Kind == String {
		return nil, fmt.Errorf("unsupported array primitive %s", p.Name)
	}
	if need := p.Span(count); len(b) < need {
		return nil, fmt.Errorf("%d x %s needs %d bytes, have %d", count, p.Name, need, len(b))
	}
	w := p.Size
	switch p.Kind {
	case Int8:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out, nil
	case Int16:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(order.Uint16(b[i*w:]))
		}
		return out, nil
	case Int32:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(order.Uint32(b[i*w:]))
		}
		return out, nil
	case Int64:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(order.Uint64(b[i*w:]))
		}
		return out, nil
	case Uint8:
		out := make([]uint8, count)
		copy(out, b[:count])
		return out, nil
	case Uint16:
		out := make([]uint16, count)
		for i := range out {
			out[i] = order.Uint16(b[i*w:])
		}
		return out, nil
	case Uint32:
		out := make([]uint32, count)
		for i := range out {
			out[i] = order.Uint32(b[i*w:])
		}
		return out, nil
	case Uint64, Time8:
		out := make([]uint64, count)
		for i := range out {
			out[i] = order.Uint64(b[i*w:])
		}
		return out, nil
	case Float:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(b[i*w:]))
		}
		return out, nil
	case Double:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(b[i*w:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported array primitive %s", p.Name)
}

// ReadString treats b as a NUL-terminated ASCII run and returns the text
// before the first NUL (all of b when there is none).
func ReadString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
