// Package client issues service requests and returns their results. JSON
// responses are parsed; binary responses are decoded into records through
// a stream session. Failed attempts are retried according to Classify.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/sliderule/adapter"
	"github.com/pithecene-io/sliderule/catalog"
	"github.com/pithecene-io/sliderule/decode"
	"github.com/pithecene-io/sliderule/dispatch"
	"github.com/pithecene-io/sliderule/iox"
	"github.com/pithecene-io/sliderule/log"
	"github.com/pithecene-io/sliderule/metrics"
	"github.com/pithecene-io/sliderule/recdef"
	"github.com/pithecene-io/sliderule/session"
	"github.com/pithecene-io/sliderule/transport"
	"github.com/pithecene-io/sliderule/types"
)

// DefaultRetries is the default number of attempts per request.
const DefaultRetries = 5

// DefinitionAPI is the endpoint that publishes record definitions, and
// DefinitionParam its single parameter.
const (
	DefinitionAPI   = "definition"
	DefinitionParam = "recordType"
)

// RecordSink persists the records of a successful request.
type RecordSink interface {
	WriteRecords(ctx context.Context, meta *types.RequestMeta, completedAt time.Time, recs []*types.Record) (string, error)
	Close() error
}

// Config configures a Client.
type Config struct {
	Transport transport.Config
	// Retries is the maximum number of attempts per request (default 5).
	Retries int
	// ChunkSize is the body read size for streams (default 64 KiB).
	ChunkSize int
	// Verbose forwards server log events and exception details to the
	// logger.
	Verbose bool
}

// Options carries optional collaborators. Nil fields are disabled.
type Options struct {
	Logger    *log.Logger
	Collector *metrics.Collector
	// Registry replaces the default event/exception handlers.
	Registry *dispatch.Registry
	Sink     RecordSink
	Adapter  adapter.Adapter
}

// Client talks to one service. It is safe for concurrent use; record
// definitions are shared across all of its requests.
type Client struct {
	transport *transport.Transport
	defs      *recdef.Cache
	decoder   *decode.Decoder
	registry  *dispatch.Registry

	logger    *log.Logger
	collector *metrics.Collector
	sink      RecordSink
	adapter   adapter.Adapter

	retries   int
	chunkSize int
}

// New creates a client.
func New(cfg Config, opts Options) (*Client, error) {
	tr, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 1, got %d", cfg.Retries)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = dispatch.Defaults(logger, cfg.Verbose)
	}

	c := &Client{
		transport: tr,
		registry:  registry,
		logger:    logger,
		collector: opts.Collector,
		sink:      opts.Sink,
		adapter:   opts.Adapter,
		retries:   cfg.Retries,
		chunkSize: cfg.ChunkSize,
	}
	c.defs = recdef.NewCache(c, opts.Collector)
	c.decoder = decode.NewDecoder(c.defs)
	return c, nil
}

// Request describes one service call.
type Request struct {
	API    string
	Params any
	Stream bool
	// Handlers are added to the client's registry for this request only.
	Handlers map[string]dispatch.Handler
	// Observer sees every decoded record of a stream.
	Observer session.Observer
}

// Result is the outcome of a successful request.
type Result struct {
	Meta *types.RequestMeta
	// ContentType is the content type of the final response.
	ContentType string
	// Raw and JSON are set for JSON responses.
	Raw  json.RawMessage
	JSON any
	// Records are set for stream responses: every record no handler
	// consumed, in arrival order.
	Records     []*types.Record
	StoragePath string
}

// Source calls api with params and returns its result.
func (c *Client) Source(ctx context.Context, api string, params any, stream bool) (*Result, error) {
	return c.Do(ctx, Request{API: api, Params: params, Stream: stream})
}

// Do performs req, retrying retryable failures up to the configured
// number of attempts.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	return c.do(ctx, req, true)
}

func (c *Client) do(ctx context.Context, req Request, notify bool) (*Result, error) {
	meta := types.NewRequestMeta(req.API)
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	registry := c.registry
	if len(req.Handlers) > 0 {
		registry = c.registry.Clone()
		for name, h := range req.Handlers {
			registry.Register(name, h)
		}
	}

	start := time.Now()
	c.collector.IncRequestStarted()

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		meta.Attempt = attempt
		logger := c.logger.ForRequest(meta)

		res, err := c.attempt(ctx, meta, req, registry, logger)
		if err == nil {
			c.collector.IncRequestCompleted()
			if notify {
				c.complete(ctx, res, req.Stream, start, logger)
			}
			return res, nil
		}
		lastErr = err

		if Classify(err) != ClassRetryable {
			break
		}
		c.logRetry(logger, err)
		if attempt < c.retries {
			c.collector.IncRequestRetry()
		}
	}

	c.collector.IncRequestFailed()
	return nil, &RequestError{API: req.API, RequestID: meta.RequestID, Attempts: meta.Attempt, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, meta *types.RequestMeta, req Request, registry *dispatch.Registry, logger *log.Logger) (*Result, error) {
	resp, err := c.transport.Do(ctx, req.API, req.Params, req.Stream)
	if err != nil {
		if transport.IsTransportError(err) {
			c.collector.IncTransportError()
		}
		return nil, err
	}
	defer iox.DiscardClose(resp)

	res := &Result{Meta: meta, ContentType: resp.ContentType}
	switch resp.ContentType {
	case transport.ContentTypeJSON:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("parse %s response: %w", req.API, err)
		}
		res.Raw = raw
		res.JSON = v

	case transport.ContentTypeStream:
		s := session.New(c.decoder, session.Options{
			Registry:  registry,
			Collector: c.collector,
			Logger:    logger,
			Observer:  req.Observer,
		})
		recs, err := s.Run(ctx, resp.Body, c.chunkSize)
		if err != nil {
			return nil, err
		}
		res.Records = recs

	default:
		return nil, &ContentTypeError{ContentType: resp.ContentType}
	}
	return res, nil
}

func (c *Client) logRetry(logger *log.Logger, err error) {
	var tErr *transport.Error
	switch {
	case errors.As(err, &tErr) && tErr.Overloaded():
		logger.Error("server experiencing heavy load, will retry", map[string]any{"url": tErr.URL})
	case errors.As(err, &tErr):
		logger.Error("transport failure, retrying request", map[string]any{"url": tErr.URL, "kind": tErr.Kind.String(), "error": err.Error()})
	case dispatch.IsRetryable(err):
		logger.Warn("recoverable server error, retrying request", map[string]any{"error": err.Error()})
	default:
		logger.Warn("retrying request", map[string]any{"error": err.Error()})
	}
}

// complete persists and announces a successful request. Failures are
// logged and do not fail the request.
func (c *Client) complete(ctx context.Context, res *Result, stream bool, start time.Time, logger *log.Logger) {
	completedAt := time.Now()

	if c.sink != nil && len(res.Records) > 0 {
		path, err := c.sink.WriteRecords(ctx, res.Meta, completedAt, res.Records)
		if err != nil {
			c.collector.IncSinkWriteFailure()
			logger.Error("failed to persist records", map[string]any{"error": err.Error()})
		} else {
			c.collector.IncSinkWriteSuccess()
			res.StoragePath = path
		}
	}

	if c.adapter != nil {
		event := adapter.NewRequestCompletedEvent(res.Meta, stream, res.Records, res.StoragePath, completedAt, completedAt.Sub(start))
		if err := c.adapter.Publish(ctx, event); err != nil {
			logger.Error("failed to publish completion event", map[string]any{"error": err.Error()})
		}
	}
}

// FetchDefinition queries the definition endpoint. It implements
// recdef.Fetcher for the client's own definition cache.
func (c *Client) FetchDefinition(ctx context.Context, recordType string) ([]byte, error) {
	res, err := c.do(ctx, Request{API: DefinitionAPI, Params: map[string]any{DefinitionParam: recordType}}, false)
	if err != nil {
		return nil, err
	}
	if res.Raw == nil {
		return nil, &ContentTypeError{ContentType: res.ContentType}
	}
	return res.Raw, nil
}

// Definition returns the definition of recordType, fetching it and its
// nested types on first use.
func (c *Client) Definition(ctx context.Context, recordType string) (*recdef.Definition, error) {
	return c.defs.Resolve(ctx, recordType)
}

// FieldPrimitive returns the primitive type of one field of recordType.
func (c *Client) FieldPrimitive(ctx context.Context, recordType, field string) (p catalog.Primitive, ok bool, err error) {
	return c.defs.FieldPrimitive(ctx, recordType, field)
}

// NewSession creates a stream session that decodes with the client's
// definitions and default handlers, for input that did not come from a
// request (such as a captured stream file).
func (c *Client) NewSession(observer session.Observer) *session.Session {
	return session.New(c.decoder, session.Options{
		Registry:  c.registry,
		Collector: c.collector,
		Logger:    c.logger,
		Observer:  observer,
	})
}

// ChunkSize is the configured stream read size.
func (c *Client) ChunkSize() int {
	return c.chunkSize
}

// Close releases the transport, sink and adapter.
func (c *Client) Close() error {
	var errs []error
	errs = append(errs, c.transport.Close())
	if c.sink != nil {
		errs = append(errs, c.sink.Close())
	}
	if c.adapter != nil {
		errs = append(errs, c.adapter.Close())
	}
	return errors.Join(errs...)
}
