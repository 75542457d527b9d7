// Package redis announces finished sliderule requests on a Redis pub/sub
// channel. Subscribers receive the request_completed event as JSON and can
// pick up the stored records from its storage_path.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/sliderule/adapter"
)

const (
	// DefaultChannel is shared by every API unless PerAPI is set.
	DefaultChannel = "sliderule:" + adapter.EventTypeRequestCompleted
	// DefaultTimeout bounds one PUBLISH.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries applies when the config file does not set retries.
	DefaultRetries = 3
)

// Config configures the Redis adapter from the adapter section of
// sliderule.yaml.
type Config struct {
	// URL is redis://[:password@]host:port[/db].
	URL     string
	Channel string
	// PerAPI appends ":<api>" to Channel, so a consumer that only cares
	// about atl06 results subscribes to "sliderule:request_completed:atl06"
	// and one that wants everything uses PSUBSCRIBE with a trailing "*".
	PerAPI  bool
	Timeout time.Duration
	Retries int
}

// Adapter PUBLISHes request_completed events.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New parses the URL and applies defaults. It does not dial; the first
// Publish does.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// ChannelFor returns the channel an event for api is published on.
func (a *Adapter) ChannelFor(api string) string {
	if a.config.PerAPI && api != "" {
		return a.config.Channel + ":" + api
	}
	return a.config.Channel
}

// Publish sends the event. Zero subscribers is not an error: the
// announcement is fire-and-forget and the records are already stored.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RequestCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.ChannelFor(event.API)
	return adapter.Retry(ctx, "redis", a.config.Retries, nil, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, channel, body).Err()
	})
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
