package cmd

import (
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sliderule/cli/render"
	sinklode "github.com/pithecene-io/sliderule/lode"
)

// RecordsCommand returns the records command, which reads records
// persisted by earlier source requests. It never contacts the service.
func RecordsCommand() *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "List records stored by earlier requests",
		Flags: joinFlags(
			[]cli.Flag{
				ConfigFlag,
				&cli.StringFlag{
					Name:  "request-id",
					Usage: "Only records of this request",
				},
				&cli.StringFlag{
					Name:  "api",
					Usage: "Only records of this API",
				},
				&cli.StringFlag{
					Name:  "type",
					Usage: "Only records of this record type",
				},
			},
			OutputFlags(),
			StorageFlags(),
		),
		Action: recordsAction,
	}
}

func recordsAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for records command", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if cfg.Storage.Backend == "" {
		return cli.Exit("records requires a storage backend (--storage-backend or storage.backend)", exitConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var factory lode.StoreFactory
	switch cfg.Storage.Backend {
	case "fs":
		factory = lode.NewFSFactory(cfg.Storage.Path)
	case "s3":
		factory, err = sinklode.NewS3Factory(ctx, s3Config(cfg.Storage))
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
	}

	ds, err := sinklode.NewReadDataset(cfg.Storage.Dataset, factory)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open dataset: %v", err), exitFatal)
	}

	rows, err := sinklode.ReadRecords(ctx, ds, sinklode.Query{
		RequestID:  c.String("request-id"),
		API:        c.String("api"),
		RecordType: c.String("type"),
	})
	if errors.Is(err, sinklode.ErrNoRecordsFound) {
		return r.Render([]sinklode.RecordRow{})
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	return r.Render(rows)
}
