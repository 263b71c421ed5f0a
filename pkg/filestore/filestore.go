// Package filestore provides content storage for template and attachment
// bytes, keyed by bucket and object name.
package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/email"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the file storage collaborator consumed by the template
// subsystem.
type Store interface {
	Upload(ctx context.Context, bucket, name string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, name string) ([]byte, error)
	Remove(ctx context.Context, bucket, name string) error
}

// FS is a filesystem-backed Store: each bucket is a directory under the
// base directory. Object names are sanitized against path traversal.
type FS struct {
	baseDir string
	log     *zap.SugaredLogger
}

// NewFS creates a filesystem store rooted at baseDir.
func NewFS(baseDir string, log *zap.SugaredLogger) *FS {
	return &FS{baseDir: baseDir, log: log.Named("filestore")}
}

func (f *FS) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	path, err := f.objectPath(bucket, name)
	if err != nil {
		return &email.StorageError{Op: "upload", Name: name, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &email.StorageError{Op: "upload", Name: name, Err: err}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return &email.StorageError{Op: "upload", Name: name, Err: err}
	}
	f.log.Infow("Stored object", "bucket", bucket, "name", name, "bytes", len(data))
	return nil
}

func (f *FS) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	path, err := f.objectPath(bucket, name)
	if err != nil {
		return nil, &email.StorageError{Op: "download", Name: name, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &email.StorageError{Op: "download", Name: name, Err: ErrNotFound}
		}
		return nil, &email.StorageError{Op: "download", Name: name, Err: err}
	}
	return data, nil
}

func (f *FS) Remove(ctx context.Context, bucket, name string) error {
	path, err := f.objectPath(bucket, name)
	if err != nil {
		return &email.StorageError{Op: "remove", Name: name, Err: err}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &email.StorageError{Op: "remove", Name: name, Err: err}
	}
	f.log.Infow("Removed object", "bucket", bucket, "name", name)
	return nil
}

func (f *FS) objectPath(bucket, name string) (string, error) {
	b, err := sanitizeComponent(bucket)
	if err != nil {
		return "", err
	}
	n, err := sanitizeComponent(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.baseDir, b, n), nil
}

func sanitizeComponent(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("empty identifier")
	}
	if strings.ContainsAny(v, "/\\") || strings.Contains(v, "..") {
		return "", errors.New("invalid identifier")
	}
	return v, nil
}
