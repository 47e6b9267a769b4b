package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/cli/render"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It makes no network calls.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
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
			return cli.Exit("--tui is not supported for version command", exitError)
		}
		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
