package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/session"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitError        = 1
	exitPrecondition = 2
	exitTransport    = 3
	exitAPI          = 4
)

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var se *session.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case session.KindPrecondition:
			return exitPrecondition
		case session.KindTransport, session.KindProtocol:
			return exitTransport
		case session.KindAPI:
			return exitAPI
		}
	}
	var status *api.StatusError
	if errors.As(err, &status) {
		if status.Structured() {
			return exitAPI
		}
		return exitTransport
	}
	return exitError
}

// exit wraps err with its exit code. A nil error passes through.
func exit(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(err.Error(), exitCode(err))
}
