// Package webhook notifies an HTTP endpoint when a sliderule request
// finishes. The request_completed event is POSTed as JSON, and the request
// id and API name are repeated in headers so a receiver can route or dedupe
// without decoding the body.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/sliderule/adapter"
	"github.com/pithecene-io/sliderule/iox"
	"github.com/pithecene-io/sliderule/types"
)

const (
	// DefaultTimeout bounds one POST, not the whole publish.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries applies when the config file does not set retries.
	DefaultRetries = 3
)

// Routing headers set on every POST.
const (
	HeaderEvent     = "X-Sliderule-Event"
	HeaderRequestID = "X-Sliderule-Request-Id"
	HeaderAPI       = "X-Sliderule-Api"
)

// Config configures the webhook adapter. It is filled from the adapter
// section of sliderule.yaml, where header values usually come from
// ${VAR} expansion.
type Config struct {
	URL string
	// Headers are added after the routing headers and may override them.
	// Typical use is an Authorization header for the receiving service.
	Headers map[string]string
	Timeout time.Duration
	// Retries counts re-sends after the first POST. A receiver sees the
	// same request id on each one.
	Retries int
}

// Adapter POSTs request_completed events.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and applies DefaultTimeout.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish POSTs the event. Network errors, 5xx, 408 and 429 are retried;
// any other 4xx means the receiver rejected the event and is final.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RequestCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	return adapter.Retry(ctx, "webhook", a.config.Retries, isRejected, func(ctx context.Context) error {
		return a.post(ctx, event, body)
	})
}

// isRejected reports a status the receiver will answer the same way on
// every attempt.
func isRejected(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return statusErr.Code >= 400 && statusErr.Code < 500
}

// StatusError is a non-2xx answer from the receiver.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func (a *Adapter) post(ctx context.Context, event *adapter.RequestCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sliderule/"+types.Version)
	req.Header.Set(HeaderEvent, event.EventType)
	req.Header.Set(HeaderRequestID, event.RequestID)
	req.Header.Set(HeaderAPI, event.API)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle keep-alive connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
