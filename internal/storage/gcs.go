package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// GCSStore writes chips to Google Cloud Storage.
type GCSStore struct {
	bucket     *blob.Bucket
	bucketName string
	prefix     string
}

// NewGCSStore creates a new GCS store.
func NewGCSStore(bucketName, prefix string) (*GCSStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return &GCSStore{
		bucket:     bucket,
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Write persists a chip to GCS.
func (s *GCSStore) Write(ctx context.Context, name string, data []byte) error {
	return writeBlob(ctx, s.bucket, s.prefix+name, data)
}

// List returns the chip names under the configured prefix.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	return listBlobs(ctx, s.bucket, s.prefix)
}

// Exists reports whether the named chip is present.
func (s *GCSStore) Exists(ctx context.Context, name string) (bool, error) {
	return s.bucket.Exists(ctx, s.prefix+name)
}

// URI returns the canonical gs:// URI for the given name.
func (s *GCSStore) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s%s", s.bucketName, s.prefix, name)
}

// Close releases the bucket handle.
func (s *GCSStore) Close() error {
	return s.bucket.Close()
}

// writeBlob writes data to a bucket key, closing the writer on every path.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// listBlobs returns object names under prefix with the prefix stripped.
func listBlobs(ctx context.Context, bucket *blob.Bucket, prefix string) ([]string, error) {
	var names []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	return names, nil
}
