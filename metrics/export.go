package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dfx"

// counterDesc binds a metric description to a snapshot field.
type counterDesc struct {
	desc  *prometheus.Desc
	value func(s Snapshot) int64
}

var labelNames = []string{"mode", "storage_backend"}

func newDesc(subsystem, name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labelNames, nil)
}

var counters = []counterDesc{
	{newDesc("session", "started_total", "Sessions started."), func(s Snapshot) int64 { return s.SessionsStarted }},
	{newDesc("session", "completed_total", "Sessions that reached Completed."), func(s Snapshot) int64 { return s.SessionsCompleted }},
	{newDesc("session", "failed_total", "Sessions aborted by an error."), func(s Snapshot) int64 { return s.SessionsFailed }},
	{newDesc("chunks", "sent_total", "Chunks handed to the transport."), func(s Snapshot) int64 { return s.ChunksSent }},
	{newDesc("chunks", "sent_bytes_total", "Payload bytes handed to the transport."), func(s Snapshot) int64 { return s.BytesSent }},
	{newDesc("chunks", "send_failures_total", "Chunk sends that failed."), func(s Snapshot) int64 { return s.SendFailures }},
	{newDesc("results", "received_total", "Matched, decoded results."), func(s Snapshot) int64 { return s.ResultsReceived }},
	{newDesc("frames", "ignored_total", "Inbound frames for other request ids."), func(s Snapshot) int64 { return s.FramesIgnored }},
	{newDesc("frames", "decode_errors_total", "Inbound frames or results that failed to decode."), func(s Snapshot) int64 { return s.DecodeErrors }},
	{newDesc("frames", "api_errors_total", "Inbound error frames."), func(s Snapshot) int64 { return s.APIErrors }},
	{newDesc("poll", "attempts_total", "Result polling requests."), func(s Snapshot) int64 { return s.PollAttempts }},
	{newDesc("poll", "not_ready_total", "Polling requests answered with an empty result."), func(s Snapshot) int64 { return s.PollNotReady }},
	{newDesc("archive", "write_success_total", "Successful archive writes."), func(s Snapshot) int64 { return s.ArchiveWriteSuccess }},
	{newDesc("archive", "write_failure_total", "Failed archive writes."), func(s Snapshot) int64 { return s.ArchiveWriteFailure }},
	{newDesc("notify", "success_total", "Delivered completion notifications."), func(s Snapshot) int64 { return s.NotifySuccess }},
	{newDesc("notify", "failure_total", "Failed completion notifications."), func(s Snapshot) int64 { return s.NotifyFailure }},
}

// snapshotCollector exposes a fixed Snapshot as Prometheus counters.
type snapshotCollector struct {
	snap Snapshot
}

func (c snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range counters {
		ch <- d.desc
	}
}

func (c snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	for _, d := range counters {
		ch <- prometheus.MustNewConstMetric(
			d.desc, prometheus.CounterValue, float64(d.value(c.snap)),
			c.snap.Mode, c.snap.StorageBackend,
		)
	}
}

// Registry returns a private registry exposing snap.
func Registry(snap Snapshot) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(snapshotCollector{snap: snap}); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return reg, nil
}

// WriteTextfile writes snap in the Prometheus text format to path, suitable
// for the node_exporter textfile collector. The write is atomic.
func WriteTextfile(path string, snap Snapshot) error {
	reg, err := Registry(snap)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
