// Package main provides the dfx CLI entrypoint.
//
// Usage:
//
//	dfx [--config config.json] [--settings dfx.yaml] <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: usage or local error
//   - 2: precondition failure (no study selected, bad payload folder)
//   - 3: transport or protocol failure
//   - 4: API error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.App(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(handleExit(os.Stderr, err))
}

// handleExit prints err to w and returns the exit code it carries.
func handleExit(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is empty; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
