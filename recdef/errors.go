package recdef

import "fmt"

// SchemaError reports a definition that could not be fetched or is
// malformed. It is fatal for every record that depends on the type.
type SchemaError struct {
	// Type is the record type whose definition failed.
	Type string
	// Field is the offending field, if any.
	Field string
	Msg   string
	Err   error
}

func (e *SchemaError) Error() string {
	loc := e.Type
	if e.Field != "" {
		loc += "." + e.Field
	}
	if e.Err != nil {
		return fmt.Sprintf("definition %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("definition %s: %s", loc, e.Msg)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func schemaErr(recordType, field, msg string, err error) *SchemaError {
	return &SchemaError{Type: recordType, Field: field, Msg: msg, Err: err}
}
