package scrape

import (
	"context"
	"time"
)

// JobStore persists run metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]Job, int, error)
	ListJobsByStatus(ctx context.Context, status JobStatus) ([]Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	DeleteJob(ctx context.Context, jobID string) error
}

// PageListOptions controls pagination and ordering for page listings.
type PageListOptions struct {
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
	Search   string
}

// PageStore persists extracted pages, their links, and their vectors.
type PageStore interface {
	SavePage(ctx context.Context, page Page, links []Link) error
	GetPage(ctx context.Context, pageID string) (Page, []Link, error)
	// GetPageByEmbedding resolves a vector-index hit back to its page.
	GetPageByEmbedding(ctx context.Context, embeddingID string) (Page, error)
	ListPages(ctx context.Context, jobID string, opts PageListOptions) ([]Page, int, error)
	// AttachEmbedding records the embedding id and vector for a page. The
	// vector row is the durable source for index rebuilds. A nil relevance
	// leaves the page unscored.
	AttachEmbedding(ctx context.Context, pageID, embeddingID string, vector []float32, relevance *float64) error
	// EachVector streams every stored (embedding id, page id, vector) triple.
	// An empty jobID means all runs.
	EachVector(ctx context.Context, jobID string, fn func(VectorRecord) error) error
	// DeletePages removes a run's pages and vectors, returning the embedding
	// IDs that were dropped so the caller can prune the index.
	DeletePages(ctx context.Context, jobID string) ([]string, error)
}

// Collector fetches raw content for one URL of its source kind.
type Collector interface {
	Kind() SourceKind
	Collect(ctx context.Context, url string, cfg JobConfig) (RawItem, error)
}

// Extractor turns raw fetched content into clean text and metadata.
type Extractor interface {
	Extract(ctx context.Context, item RawItem) (ExtractedContent, error)
}

// Embedder computes fixed-dimension vectors for text.
type Embedder interface {
	Dimension() int
	Embed(text string) ([]float32, error)
}

// VectorIndex supports concurrent upserts and nearest-neighbor search.
type VectorIndex interface {
	Upsert(id string, vector []float32) error
	Search(query []float32, k int) ([]Match, error)
	Remove(id string)
	Len() int
}

// BlobStore writes raw artifacts and index snapshots, returning a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes run lifecycle events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SeedProvider derives the frontier's start URLs for a query.
type SeedProvider interface {
	Seeds(ctx context.Context, query string, cfg JobConfig) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and page IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
