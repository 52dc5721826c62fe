// Package scrape defines the core types and ports shared across subsystems.
package scrape

import "time"

// JobStatus represents the lifecycle state of a scrape run.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStopped   JobStatus = "stopped"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	default:
		return false
	}
}

// SourceKind identifies the collector family responsible for an item.
type SourceKind string

// Supported source kinds.
const (
	SourceWeb     SourceKind = "web"
	SourcePDF     SourceKind = "pdf"
	SourceSocial  SourceKind = "social"
	SourceVideo   SourceKind = "video"
	SourcePodcast SourceKind = "podcast"
	SourceDataset SourceKind = "dataset"
)

// KnownSourceKinds lists every kind the config layer accepts.
func KnownSourceKinds() []SourceKind {
	return []SourceKind{SourceWeb, SourcePDF, SourceSocial, SourceVideo, SourcePodcast, SourceDataset}
}

// Job represents the metadata persisted for each submitted scrape run.
type Job struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	Status      JobStatus   `json:"status"`
	Config      JobConfig   `json:"config"`
	Counters    JobCounters `json:"counters"`
	ErrorText   string      `json:"error_text,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// JobCounters tracks progress stats per run.
type JobCounters struct {
	PagesCrawled int `json:"pages_crawled"`
	PagesTotal   int `json:"pages_total"`
	PagesFailed  int `json:"pages_failed"`
	Retries      int `json:"retries"`
}

// JobSnapshot is the read-only view returned by the status endpoint.
type JobSnapshot struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	Status      JobStatus   `json:"status"`
	Counters    JobCounters `json:"counters"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Snapshot builds a JobSnapshot from a Job.
func (j Job) Snapshot() JobSnapshot {
	return JobSnapshot{
		ID:          j.ID,
		Query:       j.Query,
		Status:      j.Status,
		Counters:    j.Counters,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
}

// EntryStatus tracks the lifecycle of a frontier entry.
type EntryStatus string

// Frontier entry states.
const (
	EntryQueued   EntryStatus = "queued"
	EntryInFlight EntryStatus = "in-flight"
	EntryDone     EntryStatus = "done"
	EntryFailed   EntryStatus = "failed"
)

// FrontierEntry is one unit of pending crawl work, owned by a single run.
type FrontierEntry struct {
	URL          string      `json:"url"`
	Domain       string      `json:"domain"`
	Depth        int         `json:"depth"`
	Kind         SourceKind  `json:"kind"`
	DiscoveredBy string      `json:"discovered_by,omitempty"`
	Status       EntryStatus `json:"status"`
	Attempts     int         `json:"attempts"`
}

// Link is an outbound reference found on a page.
type Link struct {
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text,omitempty"`
	Internal   bool   `json:"internal"`
}

// Page is persisted once per successfully extracted item. It is immutable
// after creation except for the later-attached embedding and relevance score.
type Page struct {
	ID             string            `json:"id"`
	JobID          string            `json:"job_id"`
	URL            string            `json:"url"`
	Title          string            `json:"title,omitempty"`
	Text           string            `json:"text,omitempty"`
	SourceKind     SourceKind        `json:"source_type"`
	ContentType    string            `json:"content_type,omitempty"`
	Author         string            `json:"author,omitempty"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Depth          int               `json:"crawl_depth"`
	RelevanceScore *float64          `json:"relevance_score,omitempty"`
	EmbeddingID    string            `json:"embedding_id,omitempty"`
	CrawledAt      time.Time         `json:"crawled_at"`
	Links          []Link            `json:"links,omitempty"`
	StructuredData map[string]any    `json:"structured_data,omitempty"`
	ContentHash    string            `json:"content_hash,omitempty"`
	BlobURI        string            `json:"blob_uri,omitempty"`
}

// RawItem carries the unprocessed output of a source collector.
type RawItem struct {
	URL              string
	Kind             SourceKind
	StatusCode       int
	ContentType      string
	Body             []byte
	Metadata         map[string]string
	Duration         time.Duration
	RenderedHeadless bool
}

// ExtractedContent is the normalized result of running an Extractor.
type ExtractedContent struct {
	Title       string
	Text        string
	Author      string
	PublishedAt *time.Time
	Links       []Link
	Metadata    map[string]string
}

// VectorRecord ties an embedding back to its page. It is derived data; the
// vector index can always be rebuilt from the page store.
type VectorRecord struct {
	EmbeddingID string    `json:"embedding_id"`
	PageID      string    `json:"page_id"`
	JobID       string    `json:"job_id"`
	Vector      []float32 `json:"vector"`
}

// Match is a single nearest-neighbor hit from the vector index.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SearchResult is one ranked hit returned by the semantic search endpoint.
type SearchResult struct {
	PageID string  `json:"page_id"`
	Score  float64 `json:"score"`
	Title  string  `json:"title,omitempty"`
	URL    string  `json:"url"`
}
