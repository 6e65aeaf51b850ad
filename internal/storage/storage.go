package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/kinohall/vodpipe/internal/config"
	"github.com/kinohall/vodpipe/internal/metrics"
)

const deletePageSize = 1000

// Storage provides object storage operations
type Storage struct {
	client     *minio.Client
	bucketName string
}

// New creates a new storage client
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// Upload uploads one object.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	metrics.ArtifactUploadBytes.Observe(float64(len(data)))
	return nil
}

// UploadDirectory drains every file currently in localDir to
// remotePrefix/filename. Each file is read into memory and the local copy
// removed as soon as the read is queued, which bounds local disk usage
// during a long transcode; a late local-delete failure is only logged.
// Per-file uploads run concurrently and an individual failure does not
// stop the siblings. Safe to call repeatedly against an empty or
// partially-drained directory.
func (s *Storage) UploadDirectory(ctx context.Context, localDir, remotePrefix string) ([]string, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", localDir, err)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		uploaded []string
		errs     []error
	)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		// Files still being written land under a .tmp name and are
		// renamed when complete; draining one mid-write would break the
		// rename and lose the file.
		if filepath.Ext(name) == ".tmp" {
			continue
		}
		localPath := filepath.Join(localDir, name)

		data, err := os.ReadFile(localPath)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("read %s: %w", name, err))
			mu.Unlock()
			continue
		}

		if err := os.Remove(localPath); err != nil {
			log.Warn().Err(err).Str("file", localPath).Msg("failed to remove drained file")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			key := remotePrefix + "/" + name
			if err := s.Upload(ctx, key, data, ContentType(name)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			mu.Lock()
			uploaded = append(uploaded, name)
			mu.Unlock()
		}()
	}

	wg.Wait()

	return uploaded, errors.Join(errs...)
}

// DeleteObject removes one object. The error is returned rather than
// swallowed here so the caller can decide between logging a stale-object
// leftover and queueing a retry.
func (s *Storage) DeleteObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
}

// DeleteFolder removes every object under prefix, page by page, looping
// until a page comes back empty. A failure aborts the loop rather than
// retrying indefinitely; the caller's outbox retries later.
func (s *Storage) DeleteFolder(ctx context.Context, prefix string) error {
	for {
		keys, err := s.listPage(ctx, prefix, deletePageSize)
		if err != nil {
			log.Warn().Err(err).Str("prefix", prefix).Msg("failed to list folder page")
			return err
		}
		if len(keys) == 0 {
			return nil
		}

		for _, key := range keys {
			err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to delete object in folder")
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
	}
}

// listPage returns up to limit keys under prefix.
func (s *Storage) listPage(ctx context.Context, prefix string, limit int) ([]string, error) {
	var keys []string

	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   limit,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		keys = append(keys, object.Key)
		if len(keys) >= limit {
			break
		}
	}

	return keys, nil
}
