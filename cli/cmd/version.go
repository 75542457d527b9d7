package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sliderule/cli/render"
	"github.com/pithecene-io/sliderule/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	FrameVersion int    `json:"frame_version"`
}

// VersionCommand returns the version command.
// It must not contact the service.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitConfigError)
		}

		return r.Render(VersionResponse{
			Version:      types.Version,
			Commit:       commit,
			FrameVersion: types.FrameVersion,
		})
	}
}
