// Package chunk discovers measurement payload files on disk and turns them
// into an ordered sequence of chunks.
//
// A payload directory holds payload*.bin files and, optionally, matching
// metadata*.bin and properties*.json files. Each kind is sorted
// lexicographically and the kinds are zipped by position.
package chunk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// File name patterns, relative to the payload directory.
const (
	PayloadPattern    = "payload*.bin"
	MetadataPattern   = "metadata*.bin"
	PropertiesPattern = "properties*.json"
)

// DefaultChunkDuration is the per-chunk duration in seconds applied when no
// properties files are present.
const DefaultChunkDuration = 5.0

// Options configures discovery.
type Options struct {
	// DefaultDuration overrides DefaultChunkDuration. Zero means default.
	DefaultDuration float64
}

// PreconditionError reports a payload set that cannot be measured.
// It is always raised before any network activity.
type PreconditionError struct {
	Msg  string
	Path string
	Err  error
}

func (e *PreconditionError) Error() string {
	msg := "precondition failed: " + e.Msg
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// IsPreconditionError reports whether err is or wraps a *PreconditionError.
func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// Set is a validated collection of chunk files.
type Set struct {
	Dir string
	// Count is the number of chunks that will be produced.
	Count int
	// Duration is the per-chunk duration of the first chunk, in seconds.
	Duration float64

	payloads   []string
	metadata   []string
	properties []string
	records    []*types.PropertyRecord
}

// Discover enumerates the chunk files in dir and validates them.
//
// The chunk count is the minimum over the file kinds present. When
// properties files exist, every record is parsed: the first record's
// number_chunks must equal the count and its total declared duration must
// not exceed types.MaxTotalDurationSeconds. Later records must agree with
// the first on number_chunks and declare contiguous chunk numbers.
func Discover(dir string, opts Options) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &PreconditionError{Msg: "payload directory not readable", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &PreconditionError{Msg: "payload path is not a directory", Path: dir}
	}

	payloads, err := glob(dir, PayloadPattern)
	if err != nil {
		return nil, err
	}
	metadata, err := glob(dir, MetadataPattern)
	if err != nil {
		return nil, err
	}
	properties, err := glob(dir, PropertiesPattern)
	if err != nil {
		return nil, err
	}

	count := len(payloads)
	if len(metadata) > 0 && len(metadata) < count {
		count = len(metadata)
	}
	if len(properties) > 0 && len(properties) < count {
		count = len(properties)
	}
	if count == 0 {
		return nil, &PreconditionError{Msg: "no payload files found", Path: dir}
	}

	duration := opts.DefaultDuration
	if duration <= 0 {
		duration = DefaultChunkDuration
	}

	set := &Set{
		Dir:      dir,
		Count:    count,
		Duration: duration,
		payloads: payloads[:count],
	}
	if len(metadata) > 0 {
		set.metadata = metadata[:count]
	}
	if len(properties) > 0 {
		set.properties = properties[:count]
		if err := set.loadRecords(); err != nil {
			return nil, err
		}
		set.Duration = set.records[0].Duration()
	}

	return set, nil
}

// HasProperties reports whether chunk timing comes from properties files.
func (s *Set) HasProperties() bool {
	return len(s.records) > 0
}

// HasMetadata reports whether metadata files accompany the payloads.
func (s *Set) HasMetadata() bool {
	return len(s.metadata) > 0
}

// TotalDuration returns the declared duration of the whole measurement.
func (s *Set) TotalDuration() float64 {
	if s.HasProperties() {
		return s.records[0].TotalDuration()
	}
	return s.Duration * float64(s.Count)
}

// Payloads returns the payload file paths in chunk order.
func (s *Set) Payloads() []string {
	return append([]string(nil), s.payloads...)
}

// Sequence returns a fresh sequencer over the set.
func (s *Set) Sequence() *Sequencer {
	return &Sequencer{set: s}
}

func (s *Set) loadRecords() error {
	records := make([]*types.PropertyRecord, len(s.properties))
	for i, path := range s.properties {
		rec, err := readRecord(path)
		if err != nil {
			return err
		}
		records[i] = rec
	}

	first := records[0]
	if first.NumberChunks != s.Count {
		return &PreconditionError{
			Msg:  fmt.Sprintf("number_chunks %d in properties does not match %d payload files", first.NumberChunks, s.Count),
			Path: s.properties[0],
		}
	}
	if total := first.TotalDuration(); total > types.MaxTotalDurationSeconds {
		return &PreconditionError{
			Msg:  fmt.Sprintf("total payload duration %g seconds exceeds %g seconds", total, types.MaxTotalDurationSeconds),
			Path: s.properties[0],
		}
	}
	for i, rec := range records {
		if rec.NumberChunks != first.NumberChunks {
			return &PreconditionError{
				Msg:  fmt.Sprintf("number_chunks %d disagrees with first record (%d)", rec.NumberChunks, first.NumberChunks),
				Path: s.properties[i],
			}
		}
		if rec.ChunkNumber != i {
			return &PreconditionError{
				Msg:  fmt.Sprintf("chunk_number %d at position %d; chunk numbers must be contiguous from 0", rec.ChunkNumber, i),
				Path: s.properties[i],
			}
		}
	}

	s.records = records
	return nil
}

func readRecord(path string) (*types.PropertyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PreconditionError{Msg: "properties file not readable", Path: path, Err: err}
	}
	rec, err := types.ParsePropertyRecord(data)
	if err != nil {
		return nil, &PreconditionError{Msg: "invalid properties file", Path: path, Err: err}
	}
	return rec, nil
}

func glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, &PreconditionError{Msg: "bad file pattern " + pattern, Path: dir, Err: err}
	}
	sort.Strings(matches)
	return matches, nil
}
