package capture

import (
	"context"

	"github.com/nuralogix/dfx-apiv2-client-go/transport"
	"github.com/nuralogix/dfx-apiv2-client-go/wire"
)

// Socket wraps a transport.Socket and records every frame written and
// received. Capture write failures are reported to OnError and never fail
// the socket operation.
type Socket struct {
	transport.Socket
	W       *Writer
	OnError func(err error)
}

// Wrap returns sock recording to w.
func Wrap(sock transport.Socket, w *Writer, onError func(error)) *Socket {
	return &Socket{Socket: sock, W: w, OnError: onError}
}

// WriteBinary implements transport.Socket.
func (s *Socket) WriteBinary(ctx context.Context, data []byte) error {
	if err := s.Socket.WriteBinary(ctx, data); err != nil {
		return err
	}
	s.record(Outbound, wire.BinaryMessage, data)
	return nil
}

// Receive implements transport.Socket.
func (s *Socket) Receive(ctx context.Context) (int, []byte, error) {
	msgType, data, err := s.Socket.Receive(ctx)
	if err != nil {
		return msgType, data, err
	}
	s.record(Inbound, msgType, data)
	return msgType, data, nil
}

func (s *Socket) record(dir Direction, msgType int, frame []byte) {
	if err := s.W.Append(dir, msgType, frame); err != nil && s.OnError != nil {
		s.OnError(err)
	}
}
