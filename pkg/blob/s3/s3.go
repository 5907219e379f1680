// Package s3 implements an S3-backed blob store.
//
// It works with Amazon S3 and S3-compatible services (MinIO, localstack)
// via an endpoint override with path-style addressing.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/pkg/blob"
)

// Config contains configuration for the S3 blob store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "uploads/" results in keys like "uploads/abc123".
	KeyPrefix string
}

// BlobStore implements blob.Store on top of S3.
//
// Object keys are "<KeyPrefix><blob ID>". The blob ID is opaque to this
// package; uploaders mint it.
type BlobStore struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	keyPrefix string
}

// NewClient creates an S3 client from flat configuration parameters.
// An empty endpoint uses the default AWS resolution chain; a non-empty
// endpoint (MinIO, localstack) switches to path-style addressing as most
// S3-compatible services require it.
func NewClient(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, forcePathStyle bool) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})
	return client, nil
}

// New creates an S3 blob store and verifies bucket access.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 blob store requires a client")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store requires a bucket")
	}

	s := &BlobStore{
		client:    cfg.Client,
		presigner: s3.NewPresignClient(cfg.Client),
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := s.Healthcheck(ctx); err != nil {
		return nil, fmt.Errorf("bucket %q not accessible: %w", cfg.Bucket, err)
	}

	logger.Info("s3 blob store initialized", "bucket", cfg.Bucket, "prefix", cfg.KeyPrefix)
	return s, nil
}

func (s *BlobStore) key(id string) string {
	return s.keyPrefix + id
}

// Put uploads the content via PutObject.
func (s *BlobStore) Put(ctx context.Context, id string, r io.Reader) (int64, error) {
	// PutObject needs a seekable or fully-buffered body for signing.
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob content: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 put failed for %q: %w", id, err)
	}

	logger.Debug("blob stored", "id", id, "bytes", len(data), "store", "s3")
	return int64(len(data)), nil
}

// Open fetches the object via GetObject.
func (s *BlobStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, id)
		}
		return nil, fmt.Errorf("s3 get failed for %q: %w", id, err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 DeleteObject is a no-op for missing keys,
// matching the Store contract.
func (s *BlobStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %q: %w", id, err)
	}
	return nil
}

// Exists checks object presence via HeadObject.
func (s *BlobStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head failed for %q: %w", id, err)
	}
	return true, nil
}

// Size returns the object size via HeadObject.
func (s *BlobStore) Size(ctx context.Context, id string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", blob.ErrNotFound, id)
		}
		return 0, fmt.Errorf("s3 head failed for %q: %w", id, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// URL returns a presigned GET URL for the blob.
func (s *BlobStore) URL(ctx context.Context, id string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 presign failed for %q: %w", id, err)
	}
	return req.URL, nil
}

// Healthcheck verifies bucket access via HeadBucket.
func (s *BlobStore) Healthcheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 healthcheck failed: %w", err)
	}
	return nil
}

// isNotFound reports whether an S3 error means the object or key is missing.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

var (
	_ blob.Store    = (*BlobStore)(nil)
	_ blob.URLStore = (*BlobStore)(nil)
)
