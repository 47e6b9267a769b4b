// Package archive persists measurement results to a Lode dataset.
//
// Records are JSONL, Hive-partitioned by study_id, day, measurement_id
// and record_kind. Storage is the local filesystem or S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/nuralogix/dfx-apiv2-client-go/metrics"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "dfx-results"

// Record kinds.
const (
	RecordKindResult  = "result"
	RecordKindSummary = "summary"
)

// PartitionKeys is the Hive layout of the dataset. Every record carries these fields.
var PartitionKeys = []string{"study_id", "day", "measurement_id", "record_kind"}

// Config identifies the session whose results are archived.
type Config struct {
	// Dataset is the Lode dataset id. Defaults to DefaultDataset.
	Dataset string
	// StudyID partitions records by study.
	StudyID string
	// SessionID is copied into every record.
	SessionID string
	// Mode is the transport mode ("websocket" or "rest").
	Mode string
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	return c
}

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket.
	Prefix string
	// Region is the AWS region. Empty uses the default chain.
	Region string
	// Endpoint overrides the S3 endpoint for compatible providers (MinIO, R2).
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" into its parts.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// Archive writes result records to a Lode dataset.
// It implements results.Sink.
type Archive struct {
	dataset   lode.Dataset
	config    Config
	collector *metrics.Collector

	mu      sync.Mutex // guards written
	written int
}

// New creates an archive on the local filesystem under root.
func New(cfg Config, root string) (*Archive, error) {
	return NewWithFactory(cfg, lode.NewFSFactory(root))
}

// NewWithFactory creates an archive over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	cfg = cfg.withDefaults()
	ds, err := OpenDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Archive{dataset: ds, config: cfg}, nil
}

// NewS3 creates an archive backed by S3.
// Credentials come from the AWS SDK default chain.
func NewS3(ctx context.Context, cfg Config, s3cfg S3Config) (*Archive, error) {
	factory, err := S3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewWithFactory(cfg, factory)
}

// S3Factory builds a Lode store factory for the given bucket.
func S3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}

// OpenDataset opens the result dataset with the archive's layout and codec.
// Reads and writes must use the same layout.
func OpenDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WithCollector attaches a metrics collector for write accounting.
func (a *Archive) WithCollector(c *metrics.Collector) *Archive {
	a.collector = c
	return a
}

// WriteResult stores one result record.
func (a *Archive) WriteResult(ctx context.Context, r *types.Result) error {
	body, err := r.Fields()
	if err != nil {
		// Non-object bodies are kept verbatim.
		body = map[string]any{"raw": string(r.Body)}
	}

	record := a.base(r.MeasurementID, RecordKindResult, r.ReceivedAt)
	record["request_id"] = r.RequestID
	record["index"] = r.Index
	record["status"] = r.Status
	record["received_at"] = r.ReceivedAt.UTC().Format(time.RFC3339Nano)
	record["body"] = body

	err = a.write(ctx, record)
	if err == nil {
		a.mu.Lock()
		a.written++
		a.mu.Unlock()
	}
	return err
}

// Summary describes a finished session.
type Summary struct {
	MeasurementID   string
	ChunksSent      int
	ResultsReceived int
	Duration        time.Duration
	State           string
	CompletedAt     time.Time
}

// WriteSummary stores the end-of-session record.
func (a *Archive) WriteSummary(ctx context.Context, s Summary) error {
	record := a.base(s.MeasurementID, RecordKindSummary, s.CompletedAt)
	record["chunks_sent"] = s.ChunksSent
	record["results_received"] = s.ResultsReceived
	record["duration_ms"] = s.Duration.Milliseconds()
	record["state"] = s.State
	record["completed_at"] = s.CompletedAt.UTC().Format(time.RFC3339Nano)
	return a.write(ctx, record)
}

// Dataset returns the underlying Lode dataset for reads.
func (a *Archive) Dataset() lode.Dataset {
	return a.dataset
}

// Written returns the number of result records stored so far.
func (a *Archive) Written() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

// Close releases archive resources.
func (a *Archive) Close() error {
	return nil
}

func (a *Archive) base(measurementID, kind string, at time.Time) map[string]any {
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]any{
		"study_id":       a.config.StudyID,
		"day":            at.UTC().Format("2006-01-02"),
		"measurement_id": measurementID,
		"record_kind":    kind,
		"session_id":     a.config.SessionID,
		"mode":           a.config.Mode,
	}
}

func (a *Archive) write(ctx context.Context, record map[string]any) error {
	_, err := a.dataset.Write(ctx, []any{record}, lode.Metadata{})
	a.collector.IncArchiveWrite(err)
	if err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/%s", a.config.Dataset, record["measurement_id"]))
	}
	return nil
}
