package storage

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// S3Store writes chips to S3-compatible storage.
type S3Store struct {
	bucket     *blob.Bucket
	bucketName string
	prefix     string
}

// NewS3Store creates a new S3-compatible store.
// Works with AWS S3, Backblaze B2, Cloudflare R2, and MinIO.
func NewS3Store(bucketName, prefix, endpoint, region string) (*S3Store, error) {
	ctx := context.Background()

	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return &S3Store{
		bucket:     bucket,
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Write persists a chip to S3.
func (s *S3Store) Write(ctx context.Context, name string, data []byte) error {
	return writeBlob(ctx, s.bucket, s.prefix+name, data)
}

// List returns the chip names under the configured prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	return listBlobs(ctx, s.bucket, s.prefix)
}

// Exists reports whether the named chip is present.
func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	return s.bucket.Exists(ctx, s.prefix+name)
}

// URI returns the canonical s3:// URI for the given name.
func (s *S3Store) URI(name string) string {
	return fmt.Sprintf("s3://%s/%s%s", s.bucketName, s.prefix, name)
}

// Close releases the bucket handle.
func (s *S3Store) Close() error {
	return s.bucket.Close()
}
