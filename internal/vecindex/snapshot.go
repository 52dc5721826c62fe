package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/webintel/webintel/internal/scrape"
)

// SnapshotPath is the default blob path for index snapshots.
const SnapshotPath = "vecindex/segment.json"

const snapshotContentType = "application/json"

type snapshotFile struct {
	Dimension int                  `json:"dimension"`
	Vectors   map[string][]float32 `json:"vectors"`
}

// Snapshot writes the full index contents to the blob store. It is an
// optimization for restart; Rebuild from the page store remains the source
// of truth.
func (ix *Index) Snapshot(ctx context.Context, blob scrape.BlobStore, path string) (string, error) {
	if path == "" {
		path = SnapshotPath
	}
	file := snapshotFile{
		Dimension: ix.dim,
		Vectors:   make(map[string][]float32, ix.Len()),
	}
	for _, s := range ix.shards {
		s.mu.RLock()
		for id, vec := range s.vecs {
			cp := make([]float32, len(vec))
			copy(cp, vec)
			file.Vectors[id] = cp
		}
		s.mu.RUnlock()
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(file); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	uri, err := blob.PutObject(ctx, path, snapshotContentType, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return uri, nil
}

// LoadSnapshot replaces the index contents with a previously written
// snapshot. A dimension mismatch is an error; the caller should fall back to
// Rebuild.
func (ix *Index) LoadSnapshot(ctx context.Context, blob scrape.BlobStore, path string) error {
	if path == "" {
		path = SnapshotPath
	}
	data, err := blob.GetObject(ctx, path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if file.Dimension != ix.dim {
		return fmt.Errorf("snapshot dimension %d, index wants %d", file.Dimension, ix.dim)
	}
	for id, vec := range file.Vectors {
		if err := ix.Upsert(id, vec); err != nil {
			return fmt.Errorf("load vector %s: %w", id, err)
		}
	}
	return nil
}

// Rebuild repopulates the index from the durable per-page vectors.
func (ix *Index) Rebuild(ctx context.Context, pages scrape.PageStore) (int, error) {
	n := 0
	err := pages.EachVector(ctx, "", func(rec scrape.VectorRecord) error {
		if err := ix.Upsert(rec.EmbeddingID, rec.Vector); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("rebuild index: %w", err)
	}
	return n, nil
}
