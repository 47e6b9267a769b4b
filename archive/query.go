package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecords is returned when no archived records match a query.
var ErrNoRecords = errors.New("no archived records found")

// ReadMeasurement returns every archived record of the given kind for a
// measurement. An empty kind matches all kinds. Result records are ordered by
// index.
func ReadMeasurement(ctx context.Context, ds lode.Dataset, measurementID, kind string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotMatches(snap, "measurement_id", measurementID) {
			continue
		}
		if kind != "" && !snapshotMatches(snap, "record_kind", kind) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		// Manifest paths are a coarse filter; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["measurement_id"] != measurementID {
				continue
			}
			if kind != "" && record["record_kind"] != kind {
				continue
			}
			out = append(out, record)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	sort.SliceStable(out, func(i, j int) bool {
		return toInt(out[i]["index"]) < toInt(out[j]["index"])
	})
	return out, nil
}

func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

// toInt accepts the numeric shapes a JSONL decode can produce.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
