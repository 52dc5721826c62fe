// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a filesystem-backed blob store, creating BaseDir if needed.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base path %q is not a directory", cfg.BaseDir)
	}
	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// PutObject writes the content under BaseDir and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return "file://" + full, nil
}

// GetObject reads the content back.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// resolve keeps object paths inside the base directory.
func (s *BlobStore) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes base directory", path)
	}
	return full, nil
}
