// Package vecindex provides an in-memory nearest-neighbor index over text
// embeddings. The index is derived data: it can always be rebuilt from the
// vectors persisted alongside pages, so it needs no crash consistency of its
// own. Shards keep upserts from one run's workers and searches from API
// requests out of each other's way.
package vecindex

import (
	"container/heap"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/webintel/webintel/internal/embed"
	"github.com/webintel/webintel/internal/scrape"
)

const defaultShards = 16

// Index is a sharded exhaustive-scan vector index. Scores returned by Search
// are relevance values in [0, 1].
type Index struct {
	dim    int
	shards []*shard
}

type shard struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// New builds an index for vectors of the given dimension.
func New(dim int) *Index {
	if dim <= 0 {
		dim = embed.DefaultDimension
	}
	shards := make([]*shard, defaultShards)
	for i := range shards {
		shards[i] = &shard{vecs: make(map[string][]float32)}
	}
	return &Index{dim: dim, shards: shards}
}

// Dimension returns the vector dimension the index accepts.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Upsert inserts or replaces the vector stored under id.
func (ix *Index) Upsert(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("upsert: empty id")
	}
	if len(vector) != ix.dim {
		return fmt.Errorf("upsert %s: dimension %d, index wants %d", id, len(vector), ix.dim)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)

	s := ix.shardFor(id)
	s.mu.Lock()
	s.vecs[id] = cp
	s.mu.Unlock()
	return nil
}

// Remove deletes the vector stored under id, if any.
func (ix *Index) Remove(id string) {
	s := ix.shardFor(id)
	s.mu.Lock()
	delete(s.vecs, id)
	s.mu.Unlock()
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	n := 0
	for _, s := range ix.shards {
		s.mu.RLock()
		n += len(s.vecs)
		s.mu.RUnlock()
	}
	return n
}

// Search returns up to k matches ordered by descending relevance. Each shard
// is scanned under its own read lock so concurrent upserts only contend on
// one shard at a time.
func (ix *Index) Search(query []float32, k int) ([]scrape.Match, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("search: dimension %d, index wants %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	h := &matchHeap{}
	heap.Init(h)
	for _, s := range ix.shards {
		s.mu.RLock()
		for id, vec := range s.vecs {
			score := embed.Relevance(query, vec)
			if h.Len() < k {
				heap.Push(h, scrape.Match{ID: id, Score: score})
			} else if score > (*h)[0].Score {
				(*h)[0] = scrape.Match{ID: id, Score: score}
				heap.Fix(h, 0)
			}
		}
		s.mu.RUnlock()
	}

	out := make([]scrape.Match, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (ix *Index) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return ix.shards[int(h.Sum32())%len(ix.shards)]
}

// matchHeap is a min-heap on score, keeping the k best candidates.
type matchHeap []scrape.Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)         { *h = append(*h, x.(scrape.Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
