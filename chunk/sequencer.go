package chunk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// Source yields chunks in ascending ordinal order. Next returns io.EOF after
// the last chunk.
type Source interface {
	Next() (*types.Chunk, error)
}

// Sequencer is a lazy, single-pass Source over a Set. Payload and metadata
// files are read when their chunk is produced.
type Sequencer struct {
	set *Set

	mu   sync.Mutex
	next int
	done bool
}

// Next returns the next chunk. Once it has returned io.EOF or an error, every
// later call returns io.EOF.
func (s *Sequencer) Next() (*types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.next >= s.set.Count {
		s.done = true
		return nil, io.EOF
	}

	c, err := s.set.chunkAt(s.next)
	if err != nil {
		s.done = true
		return nil, err
	}
	s.next++
	return c, nil
}

// Remaining returns how many chunks have not been produced yet.
func (s *Sequencer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0
	}
	return s.set.Count - s.next
}

func (s *Set) chunkAt(i int) (*types.Chunk, error) {
	payload, err := os.ReadFile(s.payloads[i])
	if err != nil {
		return nil, fmt.Errorf("read payload %s: %w", s.payloads[i], err)
	}

	var metadata []byte
	if s.HasMetadata() {
		metadata, err = os.ReadFile(s.metadata[i])
		if err != nil {
			return nil, fmt.Errorf("read metadata %s: %w", s.metadata[i], err)
		}
	}

	c := &types.Chunk{
		Order:       i,
		Total:       s.Count,
		Payload:     payload,
		Metadata:    metadata,
		PayloadPath: s.payloads[i],
	}

	if s.HasProperties() {
		rec := s.records[i]
		c.Order = rec.ChunkNumber
		c.Total = rec.NumberChunks
		c.Duration = rec.Duration()
		c.StartTime, c.EndTime = rec.Times()
	} else {
		c.Duration = s.Duration
		c.StartTime = float64(i) * s.Duration
		c.EndTime = c.StartTime + s.Duration
	}
	c.Action = types.DetermineAction(c.Order, c.Total)

	return c, nil
}
