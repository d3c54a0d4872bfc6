package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore writes chips to a local output directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a local filesystem store rooted at dir. If the
// directory already exists the run proceeds against its current contents,
// which the resume filter will then take into account.
func NewLocalStore(dir string) (*LocalStore, error) {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("output path %s is not a directory", dir)
		}
		slog.Warn("output directory already exists, existing chips are kept", "dir", dir)
		return &LocalStore{dir: dir}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	slog.Info("output directory created", "dir", dir)

	return &LocalStore{dir: dir}, nil
}

// Write persists a chip atomically using temp file + rename, so a crashed
// run never leaves a truncated chip that the resume filter would trust.
func (s *LocalStore) Write(ctx context.Context, name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return nil
}

// List returns the file names in the output directory.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Exists reports whether the named chip is present.
func (s *LocalStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns the canonical URI for the given name.
func (s *LocalStore) URI(name string) string {
	absPath, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		absPath = filepath.Join(s.dir, name)
	}
	return "file://" + absPath
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
