package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage implements ports.StorageProvider for the local filesystem
type LocalStorage struct{}

// NewLocalStorage creates a new local storage provider
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Size returns file size in bytes
func (s *LocalStorage) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a file
func (s *LocalStorage) Remove(_ context.Context, path string) error {
	return os.Remove(path)
}

// Rename atomically publishes a temp file at its final path
func (s *LocalStorage) Rename(_ context.Context, oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// TempFile creates a temporary file and returns its path
func (s *LocalStorage) TempFile(_ context.Context, dir, pattern string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return filepath.Abs(f.Name())
}

// ListAudio returns the sorted paths of files directly under dir whose
// extension (case-insensitive) is in exts.
func (s *LocalStorage) ListAudio(_ context.Context, dir string, exts []string) ([]string, error) {
	supported := make(map[string]bool, len(exts))
	for _, ext := range exts {
		supported[strings.ToLower(ext)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if supported[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
