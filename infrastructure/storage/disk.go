package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes objects under a root directory and resolves public
// references against a base URL (the HTTP server serves the root at
// /files/). O_EXCL create gives the no-overwrite guarantee.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Root returns the directory objects are stored under.
func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("put %s: %w", path, ErrPathExists)
		}
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(clean)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(clean)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return s.PublicURL(path), nil
}

func (s *DiskStore) PublicURL(path string) string {
	return s.baseURL + "/files/" + strings.TrimPrefix(path, "/")
}

// resolve maps an object path onto the root, rejecting traversal out
// of it.
func (s *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	cleanAbs, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	if cleanAbs != rootAbs && !strings.HasPrefix(cleanAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("object path escapes storage root: %s", path)
	}
	return clean, nil
}
