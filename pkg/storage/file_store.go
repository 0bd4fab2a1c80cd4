package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore saves uploaded images to a local directory served under URLPrefix.
type FileStore struct {
	basePath  string
	urlPrefix string
	now       func() time.Time
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath, urlPrefix string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("%w: upload dir is required", ErrConfig)
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &FileStore{
		basePath:  basePath,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		now:       time.Now,
	}, nil
}

// Dir returns the directory uploads are written to.
func (f *FileStore) Dir() string {
	return f.basePath
}

// Upload writes r to disk and returns its URL path.
func (f *FileStore) Upload(_ context.Context, filename string, r io.Reader, _ int64, _ string) (string, error) {
	name := objectKey(f.now(), uuid.NewString()[:8], SanitizeName(filename))
	target := filepath.Join(f.basePath, name)

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("close file: %w", err)
	}
	return f.urlPrefix + "/" + name, nil
}
