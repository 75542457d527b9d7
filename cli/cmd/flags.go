// Package cmd provides CLI commands for the sliderule binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml, msgpack.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml, msgpack",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag selects the config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to sliderule.yaml (default: ./sliderule.yaml when present)",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (source --stream, decode, definition)",
	}
)

// OutputFlags returns the shared output flags. Commands without a TUI
// still accept --tui so they can reject it with an explicit message.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// ConnectionFlags returns the flags that configure the service client.
// Each overrides the matching sliderule.yaml key when set.
func ConnectionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:    "url",
			Usage:   "Service host, or a full base URL including scheme",
			EnvVars: []string{"SLIDERULE_URL"},
		},
		&cli.StringFlag{
			Name:    "org",
			Usage:   "Organization (selects https://<org>.<url>)",
			EnvVars: []string{"SLIDERULE_ORG"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token for organization access",
			EnvVars: []string{"SLIDERULE_TOKEN"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Forward server log events and exception details",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Maximum attempts per request (default 5)",
		},
		&cli.DurationFlag{
			Name:  "connect-timeout",
			Usage: "Connection timeout (default 10s)",
		},
		&cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "Read timeout between response bytes (default 60s)",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Stream read size in bytes (default 64 KiB)",
		},
	}
}

// StorageFlags returns the record persistence flags.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Persist records to a Lode dataset: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID (default sliderule)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Force S3 path-style addressing",
		},
	}
}

// AdapterFlags returns the completion notification flags.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Publish a request_completed event: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or redis URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel (default sliderule:request_completed)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
		},
	}
}

func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
