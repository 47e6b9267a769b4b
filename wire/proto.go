package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the request and error messages. Zero values are omitted
// on encode, matching proto3 semantics.
const (
	paramsIDField = 1

	dataParamsField     = 1
	dataChunkOrderField = 2
	dataActionField     = 3
	dataStartTimeField  = 4
	dataEndTimeField    = 5
	dataDurationField   = 6
	dataMetaField       = 7
	dataPayloadField    = 8

	subscribeParamsField    = 1
	subscribeRequestIDField = 2

	loginTokenField = 1

	errorCodeField    = 1
	errorMessageField = 2
	errorErrorsField  = 3
)

// DataRequest is the body of an ActionMeasurementData frame.
type DataRequest struct {
	MeasurementID string
	ChunkOrder    int32
	Action        string
	StartTime     string
	EndTime       string
	Duration      int64
	Meta          []byte
	Payload       []byte
}

// Marshal encodes r in protobuf wire format.
func (r *DataRequest) Marshal() []byte {
	var b []byte
	b = appendParams(b, dataParamsField, r.MeasurementID)
	b = appendVarint(b, dataChunkOrderField, uint64(int64(r.ChunkOrder)))
	b = appendString(b, dataActionField, r.Action)
	b = appendString(b, dataStartTimeField, r.StartTime)
	b = appendString(b, dataEndTimeField, r.EndTime)
	b = appendVarint(b, dataDurationField, uint64(r.Duration))
	b = appendBytes(b, dataMetaField, r.Meta)
	b = appendBytes(b, dataPayloadField, r.Payload)
	return b
}

// UnmarshalDataRequest decodes a DataRequest body.
func UnmarshalDataRequest(b []byte) (*DataRequest, error) {
	r := &DataRequest{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == dataParamsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			id, err := unmarshalParams(v)
			if err != nil {
				return 0, err
			}
			r.MeasurementID = id
			return n, nil
		case num == dataChunkOrderField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.ChunkOrder = int32(v)
			return n, nil
		case num == dataActionField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Action = v
			return n, nil
		case num == dataStartTimeField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.StartTime = v
			return n, nil
		case num == dataEndTimeField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.EndTime = v
			return n, nil
		case num == dataDurationField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Duration = int64(v)
			return n, nil
		case num == dataMetaField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			r.Meta = clone(v)
			return n, nil
		case num == dataPayloadField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			r.Payload = clone(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, bodyError("DataRequest", err)
	}
	return r, nil
}

// SubscribeResultsRequest is the body of an ActionSubscribeResults frame.
type SubscribeResultsRequest struct {
	MeasurementID string
	// RequestID is the id results will be tagged with. It is the same id as
	// the subscribe frame's header.
	RequestID string
}

// Marshal encodes r in protobuf wire format.
func (r *SubscribeResultsRequest) Marshal() []byte {
	var b []byte
	b = appendParams(b, subscribeParamsField, r.MeasurementID)
	b = appendString(b, subscribeRequestIDField, r.RequestID)
	return b
}

// UnmarshalSubscribeResultsRequest decodes a SubscribeResultsRequest body.
func UnmarshalSubscribeResultsRequest(b []byte) (*SubscribeResultsRequest, error) {
	r := &SubscribeResultsRequest{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == subscribeParamsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			id, err := unmarshalParams(v)
			if err != nil {
				return 0, err
			}
			r.MeasurementID = id
			return n, nil
		case num == subscribeRequestIDField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.RequestID = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, bodyError("SubscribeResultsRequest", err)
	}
	return r, nil
}

// LoginWithTokenRequest is the body of an ActionLoginWithToken frame.
type LoginWithTokenRequest struct {
	Token string
}

// Marshal encodes r in protobuf wire format.
func (r *LoginWithTokenRequest) Marshal() []byte {
	return appendString(nil, loginTokenField, r.Token)
}

// UnmarshalLoginWithTokenRequest decodes a LoginWithTokenRequest body.
func UnmarshalLoginWithTokenRequest(b []byte) (*LoginWithTokenRequest, error) {
	r := &LoginWithTokenRequest{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == loginTokenField && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			r.Token = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, bodyError("LoginWithTokenRequest", err)
	}
	return r, nil
}

// Error is the body of an inbound frame with status >= 400.
type Error struct {
	Code    string
	Message string
	Errors  []string
}

// Marshal encodes e in protobuf wire format.
func (e *Error) Marshal() []byte {
	var b []byte
	b = appendString(b, errorCodeField, e.Code)
	b = appendString(b, errorMessageField, e.Message)
	for _, s := range e.Errors {
		b = protowire.AppendTag(b, errorErrorsField, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

// UnmarshalError decodes an Error body. An empty body is a valid, empty Error.
func UnmarshalError(b []byte) (*Error, error) {
	e := &Error{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == errorCodeField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			e.Code = v
			return n, nil
		case num == errorMessageField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			e.Message = v
			return n, nil
		case num == errorErrorsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				e.Errors = append(e.Errors, v)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// consumeFields walks every field in b. fn returns the number of bytes it
// consumed from the field value, or a negative protowire error code.
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func unmarshalParams(b []byte) (string, error) {
	var id string
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == paramsIDField && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			id = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return id, err
}

func appendParams(b []byte, num protowire.Number, id string) []byte {
	if id == "" {
		return b
	}
	params := appendString(nil, paramsIDField, id)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, params)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func bodyError(message string, err error) error {
	return &FramingError{
		Kind: FrameErrorBody,
		Msg:  fmt.Sprintf("failed to decode %s", message),
		Err:  err,
	}
}
