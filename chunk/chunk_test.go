package chunk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// writeSet writes n payload files and, when props is non-nil, one properties
// file per payload built by props(i).
func writeSet(t *testing.T, n int, props func(i int) string) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, fmt.Sprintf("payload%03d.bin", i))
		if err := os.WriteFile(name, []byte(fmt.Sprintf("payload-%d", i)), 0o644); err != nil {
			t.Fatalf("write payload: %v", err)
		}
		if props != nil {
			name := filepath.Join(dir, fmt.Sprintf("properties%03d.json", i))
			if err := os.WriteFile(name, []byte(props(i)), 0o644); err != nil {
				t.Fatalf("write properties: %v", err)
			}
		}
	}
	return dir
}

func drain(t *testing.T, src Source) []*types.Chunk {
	t.Helper()
	var chunks []*types.Chunk
	for {
		c, err := src.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		chunks = append(chunks, c)
	}
}

func TestSequencer_ThreeChunksWithProperties(t *testing.T) {
	dir := writeSet(t, 3, func(i int) string {
		return fmt.Sprintf(`{"number_chunks": 3, "chunk_number": %d, "duration_s": 1}`, i)
	})

	set, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if set.Count != 3 {
		t.Fatalf("Count = %d, want 3", set.Count)
	}

	chunks := drain(t, set.Sequence())
	wantActions := []types.ChunkAction{types.ActionFirst, types.ActionChunk, types.ActionLast}
	if len(chunks) != len(wantActions) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantActions))
	}
	for i, c := range chunks {
		if c.Order != i {
			t.Errorf("chunk %d: Order = %d", i, c.Order)
		}
		if c.Action != wantActions[i] {
			t.Errorf("chunk %d: Action = %s, want %s", i, c.Action, wantActions[i])
		}
		if c.Duration != 1 {
			t.Errorf("chunk %d: Duration = %g, want 1", i, c.Duration)
		}
		if c.StartTime != float64(i) || c.EndTime != float64(i+1) {
			t.Errorf("chunk %d: times = [%g, %g]", i, c.StartTime, c.EndTime)
		}
		if string(c.Payload) != fmt.Sprintf("payload-%d", i) {
			t.Errorf("chunk %d: Payload = %q", i, c.Payload)
		}
	}
}

func TestSequencer_NonRestartable(t *testing.T) {
	dir := writeSet(t, 2, nil)
	set, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	seq := set.Sequence()
	if got := len(drain(t, seq)); got != 2 {
		t.Fatalf("first pass produced %d chunks, want 2", got)
	}
	for i := 0; i < 3; i++ {
		if _, err := seq.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("Next after EOF = %v, want io.EOF", err)
		}
	}
	if seq.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", seq.Remaining())
	}
}

func TestDiscover_NoProperties_DefaultDuration(t *testing.T) {
	dir := writeSet(t, 3, nil)

	set, err := Discover(dir, Options{DefaultDuration: 2})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if set.HasProperties() {
		t.Error("HasProperties() = true, want false")
	}

	chunks := drain(t, set.Sequence())
	for i, c := range chunks {
		if c.Duration != 2 {
			t.Errorf("chunk %d: Duration = %g, want 2", i, c.Duration)
		}
		if c.StartTime != float64(2*i) || c.EndTime != float64(2*i+2) {
			t.Errorf("chunk %d: times = [%g, %g]", i, c.StartTime, c.EndTime)
		}
	}
	if chunks[0].Action != types.ActionFirst || chunks[2].Action != types.ActionLast {
		t.Errorf("actions = %s..%s", chunks[0].Action, chunks[2].Action)
	}
}

func TestDiscover_DefaultDurationFallback(t *testing.T) {
	set, err := Discover(writeSet(t, 1, nil), Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if set.Duration != DefaultChunkDuration {
		t.Errorf("Duration = %g, want %g", set.Duration, DefaultChunkDuration)
	}
	chunks := drain(t, set.Sequence())
	if len(chunks) != 1 || chunks[0].Action != types.ActionLast {
		t.Errorf("single chunk should be LAST, got %+v", chunks)
	}
}

func TestDiscover_Metadata(t *testing.T) {
	dir := writeSet(t, 2, nil)
	for i := 0; i < 2; i++ {
		name := filepath.Join(dir, fmt.Sprintf("metadata%03d.bin", i))
		if err := os.WriteFile(name, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	set, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	chunks := drain(t, set.Sequence())
	for i, c := range chunks {
		if len(c.Metadata) != 1 || c.Metadata[0] != byte(i) {
			t.Errorf("chunk %d: Metadata = %v", i, c.Metadata)
		}
	}
}

func TestDiscover_CountIsMinimumOverKinds(t *testing.T) {
	dir := writeSet(t, 3, func(i int) string {
		return fmt.Sprintf(`{"number_chunks": 2, "chunk_number": %d, "duration_s": 1}`, i)
	})
	if err := os.Remove(filepath.Join(dir, "properties002.json")); err != nil {
		t.Fatal(err)
	}

	set, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if set.Count != 2 {
		t.Errorf("Count = %d, want 2", set.Count)
	}
}

func TestDiscover_Preconditions(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{
			name: "number_chunks mismatch",
			dir: func(t *testing.T) string {
				return writeSet(t, 2, func(i int) string {
					return fmt.Sprintf(`{"number_chunks": 3, "chunk_number": %d, "duration_s": 1}`, i)
				})
			},
		},
		{
			name: "total duration over ceiling",
			dir: func(t *testing.T) string {
				return writeSet(t, 2, func(i int) string {
					return fmt.Sprintf(`{"number_chunks": 2, "chunk_number": %d, "duration_s": 65}`, i)
				})
			},
		},
		{
			name: "no payload files",
			dir: func(t *testing.T) string {
				return t.TempDir()
			},
		},
		{
			name: "missing directory",
			dir: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope")
			},
		},
		{
			name: "invalid json",
			dir: func(t *testing.T) string {
				return writeSet(t, 1, func(int) string { return "{" })
			},
		},
		{
			name: "non-contiguous chunk numbers",
			dir: func(t *testing.T) string {
				return writeSet(t, 2, func(i int) string {
					return fmt.Sprintf(`{"number_chunks": 2, "chunk_number": %d, "duration_s": 1}`, 1-i)
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discover(tt.dir(t), Options{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsPreconditionError(err) {
				t.Errorf("expected PreconditionError, got %T: %v", err, err)
			}
		})
	}
}

func TestDiscover_DerivedDurationFromTimes(t *testing.T) {
	dir := writeSet(t, 2, func(i int) string {
		return fmt.Sprintf(`{"number_chunks": 2, "chunk_number": %d, "start_time_s": %d, "end_time_s": %d}`, i, 5*i, 5*i+5)
	})

	set, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if set.TotalDuration() != 10 {
		t.Errorf("TotalDuration() = %g, want 10", set.TotalDuration())
	}
	chunks := drain(t, set.Sequence())
	if chunks[1].StartTime != 5 || chunks[1].EndTime != 10 || chunks[1].Duration != 5 {
		t.Errorf("chunk 1 = %+v", chunks[1])
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	dir := writeSet(t, 3, func(i int) string {
		return fmt.Sprintf(`{"number_chunks": 3, "chunk_number": %d, "start_time_s": %d, "end_time_s": %d}`, i, 3*i, 3*i+3)
	})

	first, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	second, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	a, b := drain(t, first.Sequence()), drain(t, second.Sequence())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("re-parsing produced different chunks:\n%+v\n%+v", a, b)
	}
}
