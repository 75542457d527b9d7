package recdef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pithecene-io/sliderule/catalog"
)

// wireField is the JSON shape of one field entry.
type wireField struct {
	Type     string          `json:"type"`
	Offset   *int            `json:"offset"`
	Elements *int            `json:"elements"`
	Flags    json.RawMessage `json:"flags"`
}

// Parse decodes a definition response. Field order follows the order of
// keys in the JSON object.
//
// Errors are *SchemaError: malformed JSON, a missing or negative size
// entry, a field offset that is negative or not byte aligned, or a field of
// an unsupported primitive type.
func Parse(recordType string, data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, schemaErr(recordType, "", "invalid definition JSON", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, schemaErr(recordType, "", fmt.Sprintf("definition must be a JSON object, got %v", tok), nil)
	}

	def := &Definition{Type: recordType, Size: -1}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, schemaErr(recordType, "", "invalid definition JSON", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, schemaErr(recordType, key, "invalid definition JSON", err)
		}

		if strings.HasPrefix(key, MetaPrefix) {
			if key == SizeKey {
				size, err := parseSize(raw)
				if err != nil {
					return nil, schemaErr(recordType, key, "invalid size entry", err)
				}
				def.Size = size
			}
			continue
		}

		field, err := parseField(recordType, key, raw)
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, field)
	}

	if def.Size < 0 {
		return nil, schemaErr(recordType, "", "missing "+SizeKey+" entry", nil)
	}
	return def, nil
}

func parseSize(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	size, err := n.Int64()
	if err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, fmt.Errorf("negative size %d", size)
	}
	return int(size), nil
}

func parseField(recordType, name string, raw json.RawMessage) (Field, error) {
	var wf wireField
	if err := json.Unmarshal(raw, &wf); err != nil {
		return Field{}, schemaErr(recordType, name, "invalid field entry", err)
	}
	if wf.Type == "" {
		return Field{}, schemaErr(recordType, name, "field has no type", nil)
	}
	if wf.Offset == nil {
		return Field{}, schemaErr(recordType, name, "field has no offset", nil)
	}

	flags, err := parseFlags(wf.Flags)
	if err != nil {
		return Field{}, schemaErr(recordType, name, "invalid flags", err)
	}

	elements := 1
	if wf.Elements != nil {
		elements = *wf.Elements
	}

	f := Field{FieldLayout: FieldLayout{
		Name:     name,
		Type:     wf.Type,
		Offset:   *wf.Offset,
		Elements: elements,
		Flags:    flags,
	}}

	if f.HasFlag(FlagPointer) {
		f.Class = ClassPointer
		return f, nil
	}

	if f.Offset < 0 || f.Offset%8 != 0 {
		return Field{}, schemaErr(recordType, name, fmt.Sprintf("bit offset %d is not byte aligned", f.Offset), nil)
	}

	if p, ok := catalog.Lookup(f.Type); ok {
		if !p.Supported() {
			return Field{}, schemaErr(recordType, name, "unsupported primitive "+p.Name, nil)
		}
		f.Class = ClassPrimitive
		f.Primitive = p
		return f, nil
	}

	f.Class = ClassNested
	return f, nil
}

// parseFlags accepts either a list of strings or a single string with flags
// separated by '|', ',' or whitespace.
func parseFlags(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' ' || r == '\t'
	}), nil
}
