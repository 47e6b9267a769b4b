// Package cmd provides CLI commands for the dfx binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/cli/config"
)

// Shared flags for commands that print output.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}
)

// ReadOnlyFlags returns the shared output flags. --tui is always present so
// that commands without a view can reject it explicitly.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// GlobalFlags returns the flags accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the JSON credentials file",
			Value:   config.DefaultCredentialsFile,
			EnvVars: []string{"DFX_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "settings",
			Usage:   "Path to a YAML settings file",
			EnvVars: []string{"DFX_SETTINGS"},
		},
		&cli.StringFlag{
			Name:    "rest-url",
			Usage:   "Override the REST API base URL",
			EnvVars: []string{"DFX_REST_URL"},
		},
		&cli.StringFlag{
			Name:    "ws-url",
			Usage:   "Override the WebSocket URL",
			EnvVars: []string{"DFX_WS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn, error",
			EnvVars: []string{"DFX_LOG_LEVEL"},
		},
	}
}
