// Package transport issues service requests over HTTP and hands back the
// response body for JSON parsing or stream decoding.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/sliderule/iox"
)

// Default timeouts.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
)

// Response content types.
const (
	ContentTypeJSON   = "text/plain"
	ContentTypeStream = "application/octet-stream"
)

// Config configures a Transport.
type Config struct {
	// URL is the service host, e.g. "slideruleearth.io". A value with a
	// scheme ("http://127.0.0.1:9081") is used as the base URL unchanged.
	URL string
	// Organization selects https://<organization>.<URL> with bearer auth.
	Organization string
	// Token is the bearer token sent when Organization is set.
	Token string
	// ConnectTimeout bounds connection setup (default 10s).
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers and for each
	// subsequent body read (default 60s).
	ReadTimeout time.Duration
	// Client overrides the HTTP client. Timeouts are then the client's.
	Client *http.Client
}

// Transport performs requests against one service.
type Transport struct {
	config Config
	client *http.Client
}

// New creates a transport from the given config.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport requires a URL")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ConnectTimeout < 0 || cfg.ReadTimeout < 0 {
		return nil, fmt.Errorf("timeouts must be positive, got connect=%s read=%s", cfg.ConnectTimeout, cfg.ReadTimeout)
	}

	client := cfg.Client
	if client == nil {
		dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ReadTimeout,
		}}
	}
	return &Transport{config: cfg, client: client}, nil
}

// Endpoint returns the request URL for api.
func (t *Transport) Endpoint(api string) string {
	if strings.Contains(t.config.URL, "://") {
		return strings.TrimRight(t.config.URL, "/") + "/source/" + api
	}
	if t.config.Organization != "" {
		return fmt.Sprintf("https://%s.%s/source/%s", t.config.Organization, t.config.URL, api)
	}
	return fmt.Sprintf("http://%s/source/%s", t.config.URL, api)
}

// Response is a successful (2xx) response. The caller must Close it.
type Response struct {
	StatusCode  int
	ContentType string
	URL         string
	// Body reads the response. Read failures other than io.EOF are
	// *Error values of kind KindTimeout or KindTruncated, or the caller's
	// context error.
	Body io.Reader

	closer io.Closer
	stop   func()
}

// Close releases the response.
func (r *Response) Close() error {
	r.stop()
	return r.closer.Close()
}

// Do sends params as a JSON body to api. Streaming requests use POST,
// others GET. Non-2xx responses are *Error values of kind KindStatus.
func (t *Transport) Do(ctx context.Context, api string, params any, stream bool) (*Response, error) {
	url := t.Endpoint(api)
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal params: %w", err)
	}

	method := http.MethodGet
	if stream {
		method = http.MethodPost
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.config.Organization != "" && t.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		iox.DiscardClose(resp.Body)
		cancel()
		return nil, &Error{Kind: KindStatus, URL: url, Status: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	w := newWatchdog(ctx, cancel, t.config.ReadTimeout, url, resp.Body)
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: ct,
		URL:         url,
		Body:        w,
		closer:      resp.Body,
		stop:        w.stop,
	}, nil
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// watchdog cancels the request when no body read completes within the
// read timeout, and maps read failures to transport errors.
type watchdog struct {
	parent  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	url     string
	r       io.Reader

	mu      sync.Mutex
	timer   *time.Timer
	expired bool
}

func newWatchdog(parent context.Context, cancel context.CancelFunc, timeout time.Duration, url string, r io.Reader) *watchdog {
	w := &watchdog{parent: parent, cancel: cancel, timeout: timeout, url: url, r: r}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, w.expire)
	}
	return w
}

func (w *watchdog) expire() {
	w.mu.Lock()
	w.expired = true
	w.mu.Unlock()
	w.cancel()
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.cancel()
}

func (w *watchdog) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if w.timer != nil && err == nil {
		w.timer.Reset(w.timeout)
	}
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	if ctxErr := w.parent.Err(); ctxErr != nil {
		return n, ctxErr
	}
	w.mu.Lock()
	expired := w.expired
	w.mu.Unlock()
	if expired {
		return n, &Error{Kind: KindTimeout, URL: w.url, Err: err}
	}
	return n, &Error{Kind: KindTruncated, URL: w.url, Err: err}
}
