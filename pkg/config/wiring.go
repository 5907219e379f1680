package config

import (
	"context"
	"fmt"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/pkg/blob"
	s3blob "github.com/filemount/filemount/pkg/blob/s3"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/staging"
	"github.com/filemount/filemount/pkg/uploader"
)

// BuildStagingArea creates the staging area described by the configuration,
// including the Badger token index when enabled. The returned close function
// releases the index (a no-op without one).
func BuildStagingArea(cfg StagingConfig) (*staging.Area, func() error, error) {
	var idx *staging.Index
	if cfg.Index.Enabled {
		var err error
		idx, err = staging.OpenIndex(cfg.Index.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open staging index: %w", err)
		}
	}

	area, err := staging.New(cfg.Dir, idx)
	if err != nil {
		if idx != nil {
			_ = idx.Close()
		}
		return nil, nil, err
	}

	closeFn := func() error {
		if idx != nil {
			return idx.Close()
		}
		return nil
	}

	logger.Debug("staging area ready", "dir", cfg.Dir, "indexed", idx != nil)
	return area, closeFn, nil
}

// BuildBlobStore creates the durable blob store selected by the
// configuration.
func BuildBlobStore(ctx context.Context, cfg BlobConfig) (blob.Store, error) {
	switch cfg.Type {
	case BlobStoreFilesystem, "":
		return blob.NewFilesystemStore(cfg.Filesystem.Root)

	case BlobStoreS3:
		client, err := s3blob.NewClient(ctx,
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.ForcePathStyle,
		)
		if err != nil {
			return nil, err
		}
		return s3blob.New(ctx, s3blob.Config{
			Client:    client,
			Bucket:    cfg.S3.Bucket,
			KeyPrefix: cfg.S3.KeyPrefix,
		})

	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}

// MountOptions builds mount options from the configured default policies and
// the given uploader factory. Metrics wiring is left to the caller.
func (c *MountConfig) MountOptions(factory uploader.Factory) mount.Options {
	return mount.Options{
		Uploader:               factory,
		IgnoreIntegrityErrors:  c.IgnoreIntegrityErrors,
		IgnoreProcessingErrors: c.IgnoreProcessingErrors,
		IgnoreDownloadErrors:   c.IgnoreDownloadErrors,
		RemovePreviousOnUpdate: c.RemovePreviousOnUpdate,
	}
}

// UploaderOptions builds uploader options from the configured policies.
func (c *MountConfig) UploaderOptions() []uploader.Option {
	var opts []uploader.Option
	if c.MaxDownloadSize > 0 {
		opts = append(opts, uploader.WithMaxDownloadSize(c.MaxDownloadSize))
	}
	return opts
}
