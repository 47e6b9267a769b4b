package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// App builds the dfx command tree.
func App(commit string) *cli.App {
	return &cli.App{
		Name:    "dfx",
		Usage:   "DFX API measurement client",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			MeasureCommand(),
			StudyCommand(),
			StatusCommand(),
			CaptureCommand(),
			VersionCommand(commit),
		},
	}
}
