package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/capture"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/render"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/tui"
	"github.com/nuralogix/dfx-apiv2-client-go/iox"
)

// CaptureCommand returns the capture command. Capture files are read
// offline; no network calls are made.
func CaptureCommand() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Inspect frame capture files",
		Subcommands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "Describe every frame in a capture file",
				ArgsUsage: "<capture-file>",
				Flags: append(ReadOnlyFlags(),
					&cli.BoolFlag{
						Name:  "summary",
						Usage: "Only print the per-file summary",
					},
				),
				Action: captureInspectAction,
			},
		},
	}
}

func captureInspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	path := c.Args().First()
	if path == "" {
		return cli.Exit("capture inspect requires a capture file", exitError)
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open capture file: %v", err), exitError)
	}
	defer iox.DiscardClose(f)

	frames, summary, err := capture.Inspect(f)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read capture file: %v", err), exitError)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewCapture, summary)
	}
	if c.Bool("summary") {
		return r.Render(summary)
	}
	if frames == nil {
		frames = []capture.Frame{}
	}
	return r.Render(frames)
}
