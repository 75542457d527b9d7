package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sliderule/adapter"
	"github.com/pithecene-io/sliderule/adapter/redis"
	"github.com/pithecene-io/sliderule/adapter/webhook"
	"github.com/pithecene-io/sliderule/cli/config"
	"github.com/pithecene-io/sliderule/client"
	"github.com/pithecene-io/sliderule/log"
	sinklode "github.com/pithecene-io/sliderule/lode"
	"github.com/pithecene-io/sliderule/metrics"
)

// DefaultURL is the service host used when neither config nor flags set one.
const DefaultURL = "localhost"

// Exit codes:
//   - 0: success
//   - 1: fatal error (protocol, schema, malformed record, fatal exception)
//   - 2: retryable error still failing after the last attempt
//   - 3: usage or configuration error
const (
	exitSuccess     = 0
	exitFatal       = 1
	exitRetryable   = 2
	exitConfigError = 3
)

// loadSettings loads the config file and applies command flags over it.
func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadDefault(c.String("config"))
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overwrites config values with flags that were set explicitly.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("url") {
		cfg.URL = c.String("url")
	}
	if c.IsSet("org") {
		cfg.Organization = c.String("org")
	}
	if c.IsSet("token") {
		cfg.Token = c.String("token")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("retries") {
		n := c.Int("retries")
		cfg.Retries = &n
	}
	if c.IsSet("connect-timeout") {
		cfg.Timeout.Connect.Duration = c.Duration("connect-timeout")
	}
	if c.IsSet("read-timeout") {
		cfg.Timeout.Read.Duration = c.Duration("read-timeout")
	}
	if c.IsSet("chunk-size") {
		cfg.ChunkSize = c.Int("chunk-size")
	}

	if c.IsSet("storage-backend") {
		cfg.Storage.Backend = c.String("storage-backend")
	}
	if c.IsSet("storage-path") {
		cfg.Storage.Path = c.String("storage-path")
	}
	if c.IsSet("storage-dataset") {
		cfg.Storage.Dataset = c.String("storage-dataset")
	}
	if c.IsSet("storage-region") {
		cfg.Storage.Region = c.String("storage-region")
	}
	if c.IsSet("storage-endpoint") {
		cfg.Storage.Endpoint = c.String("storage-endpoint")
	}
	if c.IsSet("storage-s3-path-style") {
		cfg.Storage.S3PathStyle = c.Bool("storage-s3-path-style")
	}

	if c.IsSet("adapter") {
		cfg.Adapter.Type = c.String("adapter")
	}
	if c.IsSet("adapter-url") {
		cfg.Adapter.URL = c.String("adapter-url")
	}
	if c.IsSet("adapter-channel") {
		cfg.Adapter.Channel = c.String("adapter-channel")
	}
	if c.IsSet("adapter-timeout") {
		cfg.Adapter.Timeout.Duration = c.Duration("adapter-timeout")
	}
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		cfg.Adapter.Retries = &n
	}
}

// clientConfig converts settings to a client configuration.
func clientConfig(cfg *config.Config) client.Config {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	cc := client.Config{
		ChunkSize: cfg.ChunkSize,
		Verbose:   cfg.Verbose,
	}
	cc.Transport.URL = url
	cc.Transport.Organization = cfg.Organization
	cc.Transport.Token = cfg.Token
	cc.Transport.ConnectTimeout = cfg.Timeout.Connect.Duration
	cc.Transport.ReadTimeout = cfg.Timeout.Read.Duration
	if cfg.Retries != nil {
		cc.Retries = *cfg.Retries
	}
	return cc
}

// environment bundles a client with the collaborators it was built from.
type environment struct {
	client    *client.Client
	collector *metrics.Collector
	logger    *log.Logger
}

// Close releases the client, its sink and adapter, and flushes the logger.
func (e *environment) Close() error {
	err := e.client.Close()
	_ = e.logger.Sync()
	return err
}

// newEnvironment builds a client from settings. Persistence and
// notification are wired only when withOutputs is set.
func newEnvironment(ctx context.Context, cfg *config.Config, withOutputs bool) (*environment, error) {
	logger := log.NewLoggerWithOutput(nil, os.Stderr)
	cc := clientConfig(cfg)
	collector := metrics.NewCollector(cc.Transport.URL)

	opts := client.Options{
		Logger:    logger,
		Collector: collector,
	}
	if withOutputs {
		sink, err := buildSink(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if sink != nil {
			opts.Sink = sink
		}
		pub, err := buildAdapter(cfg.Adapter)
		if err != nil {
			if sink != nil {
				_ = sink.Close()
			}
			return nil, fmt.Errorf("adapter: %w", err)
		}
		if pub != nil {
			opts.Adapter = pub
		}
	}

	cl, err := client.New(cc, opts)
	if err != nil {
		return nil, err
	}
	return &environment{client: cl, collector: collector, logger: logger}, nil
}

// buildSink returns nil when no backend is configured.
func buildSink(ctx context.Context, sc config.StorageConfig) (*sinklode.Sink, error) {
	cfg := sinklode.Config{Dataset: sc.Dataset, Backend: sc.Backend}
	switch sc.Backend {
	case "":
		return nil, nil
	case "fs":
		return sinklode.NewFSSink(cfg, sc.Path)
	case "s3":
		return sinklode.NewS3Sink(ctx, cfg, s3Config(sc))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

func s3Config(sc config.StorageConfig) sinklode.S3Config {
	bucket, prefix := sinklode.ParseS3Path(sc.Path)
	return sinklode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       sc.Region,
		Endpoint:     sc.Endpoint,
		UsePathStyle: sc.S3PathStyle,
	}
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	retries := 0
	if ac.Retries != nil {
		retries = *ac.Retries
	}
	switch ac.Type {
	case "":
		return nil, nil
	case "webhook":
		cfg := webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if ac.Retries != nil {
			cfg.Retries = retries
		}
		return webhook.New(cfg)
	case "redis":
		cfg := redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			PerAPI:  ac.PerAPI,
			Timeout: ac.Timeout.Duration,
			Retries: redis.DefaultRetries,
		}
		if ac.Retries != nil {
			cfg.Retries = retries
		}
		return redis.New(cfg)
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// exitCodeFor maps a request error to a process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case client.Classify(err) == client.ClassRetryable:
		return exitRetryable
	default:
		return exitFatal
	}
}

// requestExit wraps a request error for the exit handler.
func requestExit(err error) error {
	var reqErr *client.RequestError
	if errors.As(err, &reqErr) {
		return cli.Exit(reqErr.Error(), exitCodeFor(reqErr.Err))
	}
	return cli.Exit(err.Error(), exitCodeFor(err))
}

// printSummary writes request metrics to stderr.
func printSummary(snap Summary) {
	fmt.Fprintf(os.Stderr, "\n=== Request Summary ===\n")
	fmt.Fprintf(os.Stderr, "Request ID:   %s\n", snap.RequestID)
	fmt.Fprintf(os.Stderr, "API:          %s\n", snap.API)
	fmt.Fprintf(os.Stderr, "Attempts:     %d\n", snap.Attempts)
	fmt.Fprintf(os.Stderr, "Records:      %d\n", snap.Records)
	fmt.Fprintf(os.Stderr, "Bytes:        %d\n", snap.Metrics.BytesReceived)
	fmt.Fprintf(os.Stderr, "Frames:       %d decoded, %d skipped\n", snap.Metrics.FramesDecoded, snap.Metrics.FramesSkipped)
	fmt.Fprintf(os.Stderr, "Dispatched:   %d\n", snap.Metrics.RecordsDispatched)
	fmt.Fprintf(os.Stderr, "Definitions:  %d fetched\n", snap.Metrics.DefinitionFetches)
	if snap.StoragePath != "" {
		fmt.Fprintf(os.Stderr, "Stored:       %s\n", snap.StoragePath)
	}
	fmt.Fprintf(os.Stderr, "Duration:     %s\n", snap.Duration.Round(time.Millisecond))
}

// Summary is the end-of-request report printed with --stats.
type Summary struct {
	RequestID   string
	API         string
	Attempts    int
	Records     int
	StoragePath string
	Duration    time.Duration
	Metrics     metrics.Snapshot
}
