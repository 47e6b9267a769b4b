package session

import (
	"errors"
	"fmt"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/chunk"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// ErrorKind classifies session failures.
type ErrorKind int

const (
	// KindPrecondition is a local check that failed before any network call:
	// no study, missing or inconsistent payload files, duration ceiling.
	KindPrecondition ErrorKind = iota + 1
	// KindTransport is a connection failure, a non-success HTTP status
	// without a structured body, or a stream that ended early.
	KindTransport
	// KindProtocol is a malformed frame, unexpected message type or
	// undecodable body.
	KindProtocol
	// KindAPI is an error reported by the server with a structured body.
	KindAPI
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Error is returned by Execute. The cause stays reachable through
// errors.As (*wire.APIError, *api.StatusError, *wire.FramingError,
// *chunk.PreconditionError).
type Error struct {
	Kind ErrorKind
	// Op is the phase that failed: "preflight", "create", "dial", "login",
	// "subscribe", "send" or "receive".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsPrecondition reports whether err is a precondition failure.
func IsPrecondition(err error) bool { return kindOf(err) == KindPrecondition }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return kindOf(err) == KindTransport }

// IsProtocol reports whether err is a protocol or decode failure.
func IsProtocol(err error) bool { return kindOf(err) == KindProtocol }

// IsAPI reports whether err is a server-reported API error.
func IsAPI(err error) bool { return kindOf(err) == KindAPI }

// classify maps a cause onto the session error taxonomy.
func classify(err error) ErrorKind {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, types.ErrNoStudy), chunk.IsPreconditionError(err):
		return KindPrecondition
	case wire.IsAPIError(err):
		return KindAPI
	case errors.As(err, &statusErr):
		if statusErr.Structured() {
			return KindAPI
		}
		return KindTransport
	case wire.IsFramingError(err):
		return KindProtocol
	default:
		return KindTransport
	}
}

func wrap(op string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}
