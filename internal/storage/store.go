// Package storage persists downloaded chips. Chips are opaque byte blobs
// written exactly as received; the store never inspects raster content.
package storage

import (
	"context"
	"fmt"
)

// ChipStore abstracts the output location for chip files.
type ChipStore interface {
	// Write persists a chip under the given file name.
	Write(ctx context.Context, name string, data []byte) error

	// List returns the file names currently present in the store.
	List(ctx context.Context) ([]string, error)

	// Exists reports whether a chip with the given name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// URI returns the canonical URI for the given name.
	// Local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path.
	URI(name string) string

	// Close releases any resources.
	Close() error
}

// Config selects and configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// Common: path prefix within the bucket. Unused for local.
	Prefix string
}

// NewChipStore creates a storage backend based on configuration.
func NewChipStore(cfg Config) (ChipStore, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
