// Package wire implements the DFX WebSocket frame format.
//
// Outbound (client to server) frames carry a fixed-width header followed by a
// protobuf body:
//
//	offset 0..3   action id, ASCII digits, left-justified, space padded
//	offset 4..13  request id, ASCII, left-justified, space padded
//	offset 14..   body
//
// Inbound (server to client) frames carry the request id and a status code:
//
//	offset 0..9   request id, ASCII
//	offset 10..12 status code, ASCII digits
//	offset 13..   payload (error body if status >= 400)
//
// Fixed-width fields let the receiver route a frame without scanning for a
// delimiter or reading a length prefix.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Header field sizes in bytes.
const (
	ActionIDSize       = 4
	RequestIDSize      = 10
	StatusSize         = 3
	RequestHeaderSize  = ActionIDSize + RequestIDSize
	ResponseHeaderSize = RequestIDSize + StatusSize
)

// ErrorStatusThreshold is the first status code treated as an error.
const ErrorStatusThreshold = 400

// Action is the numeric operation code carried by an outbound frame.
type Action string

// Action ids used by the measurement protocol.
const (
	// ActionMeasurementData submits one chunk (DataRequest body).
	ActionMeasurementData Action = "0506"
	// ActionSubscribeResults subscribes to measurement results
	// (SubscribeResultsRequest body).
	ActionSubscribeResults Action = "0510"
	// ActionLoginWithToken authenticates the socket (LoginWithTokenRequest body).
	ActionLoginWithToken Action = "0718"
)

// String returns the action id.
func (a Action) String() string { return string(a) }

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorShort indicates a frame shorter than its fixed header.
	FrameErrorShort FrameErrorKind = iota
	// FrameErrorHeader indicates a malformed header field.
	FrameErrorHeader
	// FrameErrorMessageType indicates a WebSocket message of the wrong type.
	FrameErrorMessageType
	// FrameErrorBody indicates a body that could not be decoded.
	FrameErrorBody
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorShort:
		return "short"
	case FrameErrorHeader:
		return "header"
	case FrameErrorMessageType:
		return "message_type"
	case FrameErrorBody:
		return "body"
	default:
		return "unknown"
	}
}

// FramingError is a protocol violation detected while encoding or decoding
// a frame.
type FramingError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing: %s: %v", e.Msg, e.Err)
	}
	return "framing: " + e.Msg
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// IsFramingError reports whether err is or wraps a *FramingError.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// EncodeRequest builds an outbound frame from an action id, a request id and
// a serialized body.
func EncodeRequest(action Action, requestID string, body []byte) ([]byte, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}
	if err := validateRequestID(requestID); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, RequestHeaderSize+len(body))
	frame = appendPadded(frame, string(action), ActionIDSize)
	frame = appendPadded(frame, requestID, RequestIDSize)
	frame = append(frame, body...)
	return frame, nil
}

// DecodeRequest splits an outbound frame into its action id, request id and
// body. Padding is stripped from both header fields.
func DecodeRequest(frame []byte) (Action, string, []byte, error) {
	if len(frame) < RequestHeaderSize {
		return "", "", nil, &FramingError{
			Kind: FrameErrorShort,
			Msg:  fmt.Sprintf("request frame is %d bytes, header needs %d", len(frame), RequestHeaderSize),
		}
	}

	action := Action(strings.TrimRight(string(frame[:ActionIDSize]), " "))
	if err := validateAction(action); err != nil {
		return "", "", nil, err
	}
	requestID := strings.TrimRight(string(frame[ActionIDSize:RequestHeaderSize]), " ")

	return action, requestID, frame[RequestHeaderSize:], nil
}

// EncodeResponse builds an inbound frame. Used by test servers and tooling.
func EncodeResponse(requestID string, status int, payload []byte) ([]byte, error) {
	if err := validateRequestID(requestID); err != nil {
		return nil, err
	}
	if status < 0 || status > 999 {
		return nil, &FramingError{
			Kind: FrameErrorHeader,
			Msg:  fmt.Sprintf("status %d does not fit in %d digits", status, StatusSize),
		}
	}

	frame := make([]byte, 0, ResponseHeaderSize+len(payload))
	frame = appendPadded(frame, requestID, RequestIDSize)
	frame = append(frame, fmt.Sprintf("%03d", status)...)
	frame = append(frame, payload...)
	return frame, nil
}

// DecodeResponse splits an inbound frame into status, request id and payload.
//
// Errors:
//   - *FramingError: the frame is too short or the status is not numeric
//   - *APIError: status >= 400; the payload was parsed as an error body
func DecodeResponse(frame []byte) (int, string, []byte, error) {
	if len(frame) < ResponseHeaderSize {
		return 0, "", nil, &FramingError{
			Kind: FrameErrorShort,
			Msg:  fmt.Sprintf("response frame is %d bytes, header needs %d", len(frame), ResponseHeaderSize),
		}
	}

	requestID := strings.TrimRight(string(frame[:RequestIDSize]), " ")
	statusField := string(frame[RequestIDSize:ResponseHeaderSize])
	status, err := strconv.Atoi(strings.TrimSpace(statusField))
	if err != nil {
		return 0, requestID, nil, &FramingError{
			Kind: FrameErrorHeader,
			Msg:  fmt.Sprintf("status field %q is not numeric", statusField),
			Err:  err,
		}
	}
	payload := frame[ResponseHeaderSize:]

	if status >= ErrorStatusThreshold {
		return status, requestID, payload, newAPIError(status, requestID, payload)
	}
	return status, requestID, payload, nil
}

func validateAction(action Action) error {
	s := string(action)
	if s == "" || len(s) > ActionIDSize {
		return &FramingError{
			Kind: FrameErrorHeader,
			Msg:  fmt.Sprintf("action id %q must be 1-%d digits", s, ActionIDSize),
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return &FramingError{
				Kind: FrameErrorHeader,
				Msg:  fmt.Sprintf("action id %q is not numeric", s),
			}
		}
	}
	return nil
}

func validateRequestID(id string) error {
	if len(id) > RequestIDSize {
		return &FramingError{
			Kind: FrameErrorHeader,
			Msg:  fmt.Sprintf("request id %q exceeds %d bytes", id, RequestIDSize),
		}
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return &FramingError{
				Kind: FrameErrorHeader,
				Msg:  fmt.Sprintf("request id %q must be printable ASCII without spaces", id),
			}
		}
	}
	return nil
}

// appendPadded appends s left-justified in a field of width bytes.
func appendPadded(dst []byte, s string, width int) []byte {
	dst = append(dst, s...)
	for i := len(s); i < width; i++ {
		dst = append(dst, ' ')
	}
	return dst
}

// WebSocket message types this package cares about. Values are the RFC 6455
// opcodes, which gorilla/websocket uses as its message type constants.
const (
	TextMessage   = 1
	BinaryMessage = 2
)

// CheckMessageType returns a FramingError unless msgType is a binary message.
func CheckMessageType(msgType int) error {
	if msgType == BinaryMessage {
		return nil
	}
	return &FramingError{
		Kind: FrameErrorMessageType,
		Msg:  fmt.Sprintf("expected binary message, got type %d", msgType),
	}
}
