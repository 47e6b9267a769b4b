package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/render"
)

// StatusResponse is the response for the status command.
type StatusResponse struct {
	RestURL string         `json:"rest_url" yaml:"rest_url"`
	API     *api.Status    `json:"api" yaml:"api"`
	Token   *api.TokenInfo `json:"token,omitempty" yaml:"token,omitempty"`
}

// StatusCommand returns the status command. It reports the API status and,
// when a token is stored, verifies it.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Check the API status and the stored token",
		Flags:  ReadOnlyFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for status command", exitError)
	}

	e, err := loadEnv(c)
	if err != nil {
		return exit(err)
	}
	client, err := e.client(false)
	if err != nil {
		return exit(err)
	}

	status, err := client.Status(c.Context)
	if err != nil {
		return exit(err)
	}
	resp := StatusResponse{RestURL: client.BaseURL(), API: status}

	if client.Token() != "" {
		info, err := client.VerifyToken(c.Context)
		if err != nil {
			return exit(err)
		}
		resp.Token = info
	}
	return r.Render(resp)
}
