// Package blob exposes the attachment download contract used by the export
// pipeline. The backing store is the local upload directory.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go-comply/internal/config"
)

// Store downloads stored attachments by path.
type Store interface {
	Download(ctx context.Context, path string) (name string, data []byte, err error)
}

type DiskStore struct {
	root string
}

func NewDiskStore(cfg *config.Config) Store {
	return &DiskStore{root: cfg.FSPath}
}

// Download reads one attachment. The handle is always released, and paths
// escaping the upload root are rejected.
func (s *DiskStore) Download(ctx context.Context, path string) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	full := filepath.Join(s.root, filepath.Clean("/"+path))
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", nil, fmt.Errorf("resolve upload root: %w", err)
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", nil, fmt.Errorf("resolve attachment path: %w", err)
	}
	if !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", nil, fmt.Errorf("attachment path escapes upload root")
	}

	f, err := os.Open(fullAbs)
	if err != nil {
		return "", nil, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read attachment: %w", err)
	}

	return filepath.Base(fullAbs), data, nil
}
