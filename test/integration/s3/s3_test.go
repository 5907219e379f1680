//go:build integration

package s3_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/filemount/filemount/pkg/blob"
	s3blob "github.com/filemount/filemount/pkg/blob/s3"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/staging"
	"github.com/filemount/filemount/pkg/uploader"
)

// localstackHelper manages the Localstack container for S3 integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

// newLocalstackHelper starts a Localstack container or connects to an existing one.
func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	// Check if external Localstack is configured via environment
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &localstackHelper{endpoint: endpoint}
		helper.createClient(t)
		return helper
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	helper.createClient(t)

	return helper
}

// createClient creates an S3 client configured for Localstack.
func (lh *localstackHelper) createClient(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	lh.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.endpoint
		o.UsePathStyle = true
	})
}

// createBucket creates a new S3 bucket.
func (lh *localstackHelper) createBucket(t *testing.T, bucketName string) {
	t.Helper()
	ctx := context.Background()

	_, err := lh.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
}

// cleanupBucket removes a bucket and all its contents.
func (lh *localstackHelper) cleanupBucket(bucketName string) {
	ctx := context.Background()

	listResp, _ := lh.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	if listResp != nil {
		for _, obj := range listResp.Contents {
			_, _ = lh.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucketName),
				Key:    obj.Key,
			})
		}
	}

	_, _ = lh.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucketName),
	})
}

// cleanup terminates the container if we started one.
func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		ctx := context.Background()
		_ = lh.container.Terminate(ctx)
	}
}

// TestS3BlobStore_Integration exercises the blob store contract against a
// real S3-compatible service (Localstack via testcontainers).
func TestS3BlobStore_Integration(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	bucketName := "filemount-test-bucket"
	helper.createBucket(t, bucketName)
	defer helper.cleanupBucket(bucketName)

	store, err := s3blob.New(ctx, s3blob.Config{
		Client:    helper.client,
		Bucket:    bucketName,
		KeyPrefix: "blobs/",
	})
	if err != nil {
		t.Fatalf("failed to create s3 blob store: %v", err)
	}

	t.Run("PutOpenRoundTrip", func(t *testing.T) {
		content := []byte("s3 round trip content")
		n, err := store.Put(ctx, "roundtrip", bytes.NewReader(content))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if n != int64(len(content)) {
			t.Errorf("Put returned %d bytes, want %d", n, len(content))
		}

		rc, err := store.Open(ctx, "roundtrip")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer func() { _ = rc.Close() }()
		got, _ := io.ReadAll(rc)
		if !bytes.Equal(got, content) {
			t.Errorf("Open returned %q, want %q", got, content)
		}

		size, err := store.Size(ctx, "roundtrip")
		if err != nil {
			t.Fatalf("Size failed: %v", err)
		}
		if size != int64(len(content)) {
			t.Errorf("Size = %d, want %d", size, len(content))
		}
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		if _, err := store.Put(ctx, "victim", bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		exists, err := store.Exists(ctx, "victim")
		if err != nil || !exists {
			t.Fatalf("Exists = %v, %v; want true", exists, err)
		}

		if err := store.Delete(ctx, "victim"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		exists, err = store.Exists(ctx, "victim")
		if err != nil || exists {
			t.Fatalf("Exists after delete = %v, %v; want false", exists, err)
		}

		// Deleting a missing object is a no-op.
		if err := store.Delete(ctx, "victim"); err != nil {
			t.Errorf("Delete of missing object failed: %v", err)
		}
	})

	t.Run("OpenMissingIsNotFound", func(t *testing.T) {
		_, err := store.Open(ctx, "no-such-blob")
		if !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("Open missing = %v, want ErrNotFound", err)
		}
	})

	t.Run("PresignedURL", func(t *testing.T) {
		content := []byte("presigned content")
		if _, err := store.Put(ctx, "presigned", bytes.NewReader(content)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		url, err := store.URL(ctx, "presigned")
		if err != nil {
			t.Fatalf("URL failed: %v", err)
		}

		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("GET presigned URL failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("presigned GET status %d", resp.StatusCode)
		}
		got, _ := io.ReadAll(resp.Body)
		if !bytes.Equal(got, content) {
			t.Errorf("presigned body = %q, want %q", got, content)
		}
	})
}

// TestMountLifecycleOnS3 runs the cache/store/remove flow with S3 as the
// durable tier.
func TestMountLifecycleOnS3(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	bucketName := "filemount-mount-bucket"
	helper.createBucket(t, bucketName)
	defer helper.cleanupBucket(bucketName)

	blobs, err := s3blob.New(ctx, s3blob.Config{
		Client: helper.client,
		Bucket: bucketName,
	})
	if err != nil {
		t.Fatalf("failed to create s3 blob store: %v", err)
	}

	area, err := staging.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("staging.New failed: %v", err)
	}
	factory := uploader.NewFactory(area, blobs)

	registry := mount.NewRegistry()
	if err := registry.Mount("avatar", mount.Options{Uploader: factory}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	backend := record.NewMemoryBackend()
	rec := backend.NewRecord("asset-1")

	m, err := registry.Mounter(rec, "avatar")
	if err != nil {
		t.Fatalf("Mounter failed: %v", err)
	}

	if err := m.Cache(ctx, uploader.Payload{
		Filename: "face.png",
		Content:  bytes.NewReader([]byte("pixels")),
	}); err != nil {
		t.Fatalf("Cache failed: %v", err)
	}
	if err := m.Store(ctx); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	ids := m.Identifiers()
	if len(ids) != 1 {
		t.Fatalf("identifiers = %v", ids)
	}

	exists, err := blobs.Exists(ctx, ids[0])
	if err != nil || !exists {
		t.Fatalf("stored blob missing from s3: %v, %v", exists, err)
	}

	if err := m.Remove(ctx); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	exists, err = blobs.Exists(ctx, ids[0])
	if err != nil || exists {
		t.Fatalf("blob survived remove: %v, %v", exists, err)
	}
}
