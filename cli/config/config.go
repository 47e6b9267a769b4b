package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultCredentialsFile is the credential store path when none is configured.
const DefaultCredentialsFile = "config.json"

// Settings is the content of a dfx.yaml file. Every value is optional and
// acts as a default for command flags; flags always win.
type Settings struct {
	// CredentialsFile is the JSON credential store path.
	CredentialsFile string `yaml:"credentials_file"`
	// RestURL and WSURL override the API endpoints. The credential store's
	// rest_url and ws_url take precedence when set.
	RestURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
	// Timeout is the per-request HTTP timeout.
	Timeout Duration `yaml:"timeout"`

	Measure MeasureConfig `yaml:"measure"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Capture CaptureConfig `yaml:"capture"`
	Metrics MetricsConfig `yaml:"metrics"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// MeasureConfig holds measure make defaults.
type MeasureConfig struct {
	// Mode is "websocket" or "rest".
	Mode string `yaml:"mode"`
	// ChunkDuration is the per-chunk duration in seconds when no properties
	// files exist.
	ChunkDuration float64 `yaml:"chunk_duration_s"`
	// PollResults polls for results in rest mode.
	PollResults bool `yaml:"poll_results"`
	// PollInterval is the delay between polls.
	PollInterval Duration `yaml:"poll_interval"`
	// SocketLogin authenticates over the socket instead of the upgrade header.
	SocketLogin bool `yaml:"socket_login"`
	Resolution  int  `yaml:"resolution"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig configures the result archive.
type StorageConfig struct {
	Dataset string `yaml:"dataset"`
	// Backend is "fs" or "s3". Empty disables archiving.
	Backend string `yaml:"backend"`
	// Path is a directory (fs) or "bucket/prefix" (s3).
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// CaptureConfig enables frame capture to a file.
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig enables a Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// AdapterConfig configures the completion notifier.
type AdapterConfig struct {
	// Type is "webhook" or "redis". Empty disables notification.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Mode    string            `yaml:"mode,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML strings such as "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string. An empty string leaves zero.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// Validate checks enumerated values.
func (s *Settings) Validate() error {
	var errs []error
	switch s.Measure.Mode {
	case "", "websocket", "rest":
	default:
		errs = append(errs, fmt.Errorf("measure.mode must be websocket or rest, got %q", s.Measure.Mode))
	}
	if s.Measure.ChunkDuration < 0 {
		errs = append(errs, fmt.Errorf("measure.chunk_duration_s must be >= 0, got %g", s.Measure.ChunkDuration))
	}
	switch s.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs or s3, got %q", s.Storage.Backend))
	}
	if s.Storage.Backend != "" && s.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage.backend is set"))
	}
	switch s.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be webhook or redis, got %q", s.Adapter.Type))
	}
	if s.Adapter.Type != "" && s.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url is required when adapter.type is set"))
	}
	return errors.Join(errs...)
}
