// Package storage provides object storage backends for snapshot
// archives. It supports S3-compatible object stores for production and
// local filesystem storage for development and testing.
package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/tesseradb/tessera/internal/config"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the archive object store.
type ObjectStorage interface {
	// Upload writes the object at objectPath from r, replacing any
	// existing object.
	Upload(ctx context.Context, objectPath string, r io.Reader) error

	// Download streams the object at objectPath into w.
	// Returns ErrObjectNotFound if the object does not exist.
	Download(ctx context.Context, objectPath string, w io.Writer) error

	// Delete removes an object. Deleting a missing object is not an
	// error, matching S3 delete semantics.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// New constructs the storage backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStorage(cfg.Path)
	case "s3":
		s3cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3cfg.Region = cfg.S3.Region
		}
		s3cfg.Endpoint = cfg.S3.Endpoint
		// S3-compatible endpoints (MinIO, localstack) resolve buckets
		// by path, not by virtual host.
		s3cfg.UsePathStyle = cfg.S3.Endpoint != ""
		return NewS3Storage(ctx, cfg.S3.Bucket, s3cfg)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", cfg.Type)
	}
}

// PutBytes uploads an in-memory object.
func PutBytes(ctx context.Context, s ObjectStorage, objectPath string, data []byte) error {
	return s.Upload(ctx, objectPath, bytes.NewReader(data))
}

// GetBytes downloads a whole object into memory.
func GetBytes(ctx context.Context, s ObjectStorage, objectPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Download(ctx, objectPath, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadFile downloads an object to a local file, creating parent
// directories as needed.
func DownloadFile(ctx context.Context, s ObjectStorage, objectPath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer f.Close()
	if err := s.Download(ctx, objectPath, f); err != nil {
		return err
	}
	return f.Sync()
}

// PutContentAddressed uploads data under prefix/<md5 hex> and returns
// the object path. Identical payloads map to the same object.
func PutContentAddressed(ctx context.Context, s ObjectStorage, prefix string, data []byte) (string, error) {
	sum := md5.Sum(data)
	objectPath := path.Join(prefix, hex.EncodeToString(sum[:]))
	if err := PutBytes(ctx, s, objectPath, data); err != nil {
		return "", err
	}
	return objectPath, nil
}
