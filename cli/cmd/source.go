package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sliderule/cli/render"
	"github.com/pithecene-io/sliderule/cli/tui"
	"github.com/pithecene-io/sliderule/iox"
	"github.com/pithecene-io/sliderule/client"
	"github.com/pithecene-io/sliderule/session"
)

// SourceCommand returns the source command, which calls one service API.
func SourceCommand() *cli.Command {
	return &cli.Command{
		Name:      "source",
		Usage:     "Call a service API and render its result",
		ArgsUsage: "<api>",
		Flags: joinFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "params",
					Aliases: []string{"p"},
					Usage:   "Request parameters as JSON",
				},
				&cli.StringFlag{
					Name:  "params-file",
					Usage: "Path to a JSON file holding request parameters",
				},
				&cli.BoolFlag{
					Name:  "stream",
					Usage: "Issue a streaming request and decode the record stream",
				},
				&cli.BoolFlag{
					Name:  "quiet",
					Usage: "Suppress result output",
				},
				&cli.BoolFlag{
					Name:  "stats",
					Usage: "Print a request summary to stderr",
				},
			},
			OutputFlags(),
			ConnectionFlags(),
			StorageFlags(),
			AdapterFlags(),
		),
		Action: sourceAction,
	}
}

func sourceAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("source requires exactly one <api> argument", exitConfigError)
	}
	api := c.Args().First()
	stream := c.Bool("stream")

	if c.Bool("tui") && !stream {
		return cli.Exit("--tui is only supported for source with --stream", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	params, err := parseParams(c.String("params"), c.String("params-file"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	env, err := newEnvironment(ctx, cfg, true)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardErr(env.Close)

	start := time.Now()
	var res *client.Result
	call := func(ctx context.Context, observer session.Observer) error {
		var err error
		res, err = env.client.Do(ctx, client.Request{
			API:      api,
			Params:   params,
			Stream:   stream,
			Observer: observer,
		})
		return err
	}

	if c.Bool("tui") {
		err = tui.RunStream(ctx, "sliderule "+api, call)
	} else {
		err = call(ctx, nil)
	}
	if err != nil {
		return requestExit(err)
	}

	if c.Bool("stats") {
		printSummary(Summary{
			RequestID:   res.Meta.RequestID,
			API:         api,
			Attempts:    res.Meta.Attempt,
			Records:     len(res.Records),
			StoragePath: res.StoragePath,
			Duration:    time.Since(start),
			Metrics:     env.collector.Snapshot(),
		})
	}

	if c.Bool("quiet") {
		return nil
	}
	if stream {
		return r.RenderRecords(res.Records)
	}
	return r.Render(res.JSON)
}

// parseParams reads request parameters from inline JSON or a file. With
// neither it returns an empty object.
func parseParams(inline, path string) (json.RawMessage, error) {
	if inline != "" && path != "" {
		return nil, errors.New("--params and --params-file are mutually exclusive")
	}

	data := []byte(inline)
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read params file: %w", err)
		}
	}
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("params must be valid JSON")
	}
	return json.RawMessage(data), nil
}
