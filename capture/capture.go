// Package capture records WebSocket frames to a file for offline inspection.
//
// A capture file is a sequence of records, each a 4-byte big-endian length
// prefix followed by a msgpack-encoded Record.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxRecordSize bounds a single encoded record (32 MiB).
	MaxRecordSize = 32 * 1024 * 1024
)

// Direction of a captured frame.
type Direction string

const (
	// Outbound frames were written by the client.
	Outbound Direction = "out"
	// Inbound frames were received from the server.
	Inbound Direction = "in"
)

// Record is one captured frame.
type Record struct {
	Seq         int64     `msgpack:"seq"`
	Direction   Direction `msgpack:"dir"`
	At          time.Time `msgpack:"at"`
	MessageType int       `msgpack:"msg_type"`
	Frame       []byte    `msgpack:"frame"`
}

// ErrorKind classifies capture read errors.
type ErrorKind int

const (
	// ErrorPartial indicates a truncated record.
	ErrorPartial ErrorKind = iota
	// ErrorTooLarge indicates a record exceeding MaxRecordSize.
	ErrorTooLarge
	// ErrorDecode indicates a msgpack decoding error.
	ErrorDecode
)

// Error is a capture file read error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: %s: %v", e.Msg, e.Err)
	}
	return "capture: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTruncated reports whether err marks a capture file that ends mid-record,
// as left behind by a process killed while writing.
func IsTruncated(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == ErrorPartial
}

// Writer appends records to a stream. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	seq int64
	now func() time.Time
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// Append records one frame. The frame is copied.
func (w *Writer) Append(dir Direction, msgType int, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := Record{
		Seq:         w.seq,
		Direction:   dir,
		At:          w.now().UTC(),
		MessageType: msgType,
		Frame:       frame,
	}
	payload, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("capture: encode record: %w", err)
	}
	if len(payload) > MaxRecordSize {
		return &Error{Kind: ErrorTooLarge, Msg: fmt.Sprintf("record size %d exceeds maximum %d", len(payload), MaxRecordSize)}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	w.seq++
	return nil
}

// Count returns how many records have been written.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Reader reads records from a stream.
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads one record.
//
// Errors:
//   - io.EOF: the stream ended cleanly
//   - *Error with Kind ErrorPartial: the stream ended mid-record
//   - *Error with Kind ErrorTooLarge: the length prefix exceeds MaxRecordSize
//   - *Error with Kind ErrorDecode: the record is not valid msgpack
func (r *Reader) Next() (*Record, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size > MaxRecordSize {
		return nil, &Error{Kind: ErrorTooLarge, Msg: fmt.Sprintf("record size %d exceeds maximum %d", size, MaxRecordSize)}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read record", Err: err}
	}

	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, &Error{Kind: ErrorDecode, Msg: "failed to decode record", Err: err}
	}
	return &rec, nil
}
