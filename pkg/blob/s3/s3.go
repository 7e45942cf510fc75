// Package s3 provides an S3-compatible implementation of blob.Store using
// the MinIO client.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/papercomputeco/mnemo/pkg/blob"
)

// Config holds configuration for the S3 store.
type Config struct {
	// Endpoint is the host[:port] of the S3 API, e.g. "s3.amazonaws.com"
	// or "localhost:9000".
	Endpoint string

	// Bucket receives every object. It is created if it doesn't exist.
	Bucket string

	// Region is passed to the client and to bucket creation.
	Region string

	AccessKey string
	SecretKey string

	// Secure selects https.
	Secure bool

	// PublicURL, when set, is the base the returned URLs are built from
	// (for example a CDN). Defaults to the endpoint plus bucket.
	PublicURL string
}

// Store uploads objects to a single bucket.
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewStore creates the client and makes sure the bucket exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", cfg.Bucket, err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		u := *client.EndpointURL()
		u.Path = "/" + cfg.Bucket
		publicURL = u.String()
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", blob.ErrInvalidKey)
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %q: %w", key, err)
	}

	return s.publicURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
}

// Close is a no-op; the MinIO client holds no resources that need release.
func (s *Store) Close() error {
	return nil
}

var _ blob.Store = (*Store)(nil)
