package types

import (
	"errors"

	"github.com/google/uuid"
)

// RequestMeta identifies one client request across its attempts.
type RequestMeta struct {
	// RequestID is unique per Source call and stable across retries.
	RequestID string
	// API is the service endpoint name (e.g. "atl06", "definition").
	API string
	// Attempt starts at 1 and increments on every retry.
	Attempt int
}

// NewRequestMeta creates request metadata with a fresh request ID.
func NewRequestMeta(api string) *RequestMeta {
	return &RequestMeta{
		RequestID: uuid.NewString(),
		API:       api,
		Attempt:   1,
	}
}

// Validate checks required fields.
func (m *RequestMeta) Validate() error {
	if m.RequestID == "" {
		return errors.New("request_id is required")
	}
	if m.API == "" {
		return errors.New("api is required")
	}
	if m.Attempt < 1 {
		return errors.New("attempt must be >= 1")
	}
	return nil
}
