// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject persists the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns the stored content for a path.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("object %q not found", path)
	}
	return append([]byte(nil), data...), nil
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
