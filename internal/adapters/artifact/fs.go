package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore writes documents under a root directory on the local
// filesystem. Writes go through a temp file and rename so a crash
// mid-write never leaves a half document behind a valid reference.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns a store
// rooted at it.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(_ context.Context, key string, _ string, body []byte) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	dst := filepath.Join(s.root, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return "file://" + dst, nil
}

func (s *FSStore) Get(_ context.Context, ref string) ([]byte, error) {
	path, ok := trimScheme(ref, "file://")
	if !ok {
		return nil, ErrNotFound
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return body, nil
}
