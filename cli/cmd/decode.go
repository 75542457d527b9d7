package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sliderule/cli/render"
	"github.com/pithecene-io/sliderule/cli/tui"
	"github.com/pithecene-io/sliderule/iox"
	"github.com/pithecene-io/sliderule/session"
	"github.com/pithecene-io/sliderule/types"
)

// DecodeCommand returns the decode command, which decodes a captured
// record stream offline. Definitions are still fetched from the service.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "Decode a captured record stream file",
		Flags: joinFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:     "file",
					Usage:    "Path to the captured stream",
					Required: true,
				},
			},
			OutputFlags(),
			ConnectionFlags(),
		),
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	f, err := os.Open(c.String("file"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open capture: %v", err), exitConfigError)
	}
	defer iox.DiscardClose(f)

	ctx, cancel := signalContext()
	defer cancel()

	env, err := newEnvironment(ctx, cfg, false)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardErr(env.Close)

	var recs []*types.Record
	run := func(ctx context.Context, observer session.Observer) error {
		var err error
		recs, err = env.client.NewSession(observer).Run(ctx, f, env.client.ChunkSize())
		return err
	}

	if c.Bool("tui") {
		err = tui.RunStream(ctx, "decode "+c.String("file"), run)
	} else {
		err = run(ctx, nil)
	}
	if err != nil {
		return requestExit(err)
	}
	return r.RenderRecords(recs)
}
