package cmd

import (
	"context"
	"fmt"

	"github.com/nuralogix/dfx-apiv2-client-go/adapter"
	"github.com/nuralogix/dfx-apiv2-client-go/adapter/redis"
	"github.com/nuralogix/dfx-apiv2-client-go/adapter/webhook"
	"github.com/nuralogix/dfx-apiv2-client-go/archive"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/config"
)

// storageChoice holds the archive backend selection.
type storageChoice struct {
	backend     string // "fs", "s3" or "" for none
	path        string // fs: directory, s3: bucket/prefix
	dataset     string
	region      string
	endpoint    string
	s3PathStyle bool
}

func storageFromSettings(s config.StorageConfig) storageChoice {
	return storageChoice{
		backend:     s.Backend,
		path:        s.Path,
		dataset:     s.Dataset,
		region:      s.Region,
		endpoint:    s.Endpoint,
		s3PathStyle: s.S3PathStyle,
	}
}

// buildArchive opens the result archive. It returns nil when no backend is set.
func buildArchive(ctx context.Context, choice storageChoice, cfg archive.Config) (*archive.Archive, error) {
	cfg.Dataset = choice.dataset
	switch choice.backend {
	case "":
		return nil, nil
	case "fs":
		return archive.New(cfg, choice.path)
	case "s3":
		bucket, prefix := archive.ParseS3Path(choice.path)
		return archive.NewS3(ctx, cfg, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.s3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs or s3)", choice.backend)
	}
}

// buildAdapter creates the completion notifier. It returns nil when none is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Mode:    cfg.Mode,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", cfg.Type)
	}
}
