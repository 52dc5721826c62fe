package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/webintel/webintel/internal/scrape"
)

// PageStore keeps crawled pages and their vectors in process memory.
type PageStore struct {
	mu      sync.RWMutex
	pages   map[string]scrape.Page       // page ID -> page
	byJob   map[string][]string          // job ID -> page IDs in crawl order
	links   map[string][]scrape.Link     // page ID -> outbound links
	vectors map[string]scrape.VectorRecord // embedding ID -> vector
}

// NewPageStore constructs a PageStore.
func NewPageStore() *PageStore {
	return &PageStore{
		pages:   make(map[string]scrape.Page),
		byJob:   make(map[string][]string),
		links:   make(map[string][]scrape.Link),
		vectors: make(map[string]scrape.VectorRecord),
	}
}

// SavePage stores a page and its outbound links.
func (s *PageStore) SavePage(_ context.Context, page scrape.Page, links []scrape.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pages[page.ID]; !exists {
		s.byJob[page.JobID] = append(s.byJob[page.JobID], page.ID)
	}
	s.pages[page.ID] = page
	s.links[page.ID] = append([]scrape.Link(nil), links...)
	return nil
}

// GetPage fetches a page and its outbound links by ID.
func (s *PageStore) GetPage(_ context.Context, pageID string) (scrape.Page, []scrape.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[pageID]
	if !ok {
		return scrape.Page{}, nil, fmt.Errorf("page %s: %w", pageID, scrape.ErrNotFound)
	}
	return page, append([]scrape.Link(nil), s.links[pageID]...), nil
}

// GetPageByEmbedding resolves a vector-index hit back to its page.
func (s *PageStore) GetPageByEmbedding(_ context.Context, embeddingID string) (scrape.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.vectors[embeddingID]
	if !ok {
		return scrape.Page{}, fmt.Errorf("embedding %s: %w", embeddingID, scrape.ErrNotFound)
	}
	page, ok := s.pages[rec.PageID]
	if !ok {
		return scrape.Page{}, fmt.Errorf("page %s: %w", rec.PageID, scrape.ErrNotFound)
	}
	return page, nil
}

// ListPages returns pages for a run with filtering, ordering and pagination,
// plus the total count after filtering.
func (s *PageStore) ListPages(_ context.Context, jobID string, opts scrape.PageListOptions) ([]scrape.Page, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byJob[jobID]
	pages := make([]scrape.Page, 0, len(ids))
	needle := strings.ToLower(strings.TrimSpace(opts.Search))
	for _, id := range ids {
		p := s.pages[id]
		if needle != "" && !pageMatches(p, needle) {
			continue
		}
		pages = append(pages, p)
	}

	if err := sortPages(pages, opts.OrderBy, opts.OrderDir); err != nil {
		return nil, 0, err
	}

	total := len(pages)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	pages = pages[offset:]
	if opts.Limit > 0 && opts.Limit < len(pages) {
		pages = pages[:opts.Limit]
	}
	return pages, total, nil
}

func pageMatches(p scrape.Page, needle string) bool {
	return strings.Contains(strings.ToLower(p.URL), needle) ||
		strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Text), needle)
}

func sortPages(pages []scrape.Page, orderBy, orderDir string) error {
	if orderBy == "" {
		orderBy = "crawled_at"
	}
	desc := false
	switch strings.ToLower(orderDir) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return fmt.Errorf("order_dir %q: %w", orderDir, scrape.ErrInvalidConfig)
	}

	var less func(a, b scrape.Page) bool
	switch orderBy {
	case "crawled_at":
		less = func(a, b scrape.Page) bool { return a.CrawledAt.Before(b.CrawledAt) }
	case "url":
		less = func(a, b scrape.Page) bool { return a.URL < b.URL }
	case "title":
		less = func(a, b scrape.Page) bool { return a.Title < b.Title }
	case "depth", "crawl_depth":
		less = func(a, b scrape.Page) bool { return a.Depth < b.Depth }
	case "relevance_score":
		// Pages without a score always sort after scored ones.
		sort.SliceStable(pages, func(i, j int) bool {
			a, b := pages[i].RelevanceScore, pages[j].RelevanceScore
			switch {
			case a == nil && b == nil:
				return false
			case a == nil:
				return false
			case b == nil:
				return true
			case desc:
				return *a > *b
			default:
				return *a < *b
			}
		})
		return nil
	default:
		return fmt.Errorf("order_by %q: %w", orderBy, scrape.ErrInvalidConfig)
	}

	sort.SliceStable(pages, func(i, j int) bool {
		if desc {
			return less(pages[j], pages[i])
		}
		return less(pages[i], pages[j])
	})
	return nil
}

// AttachEmbedding records the vector and relevance score for a page. A nil
// relevance clears any previous score.
func (s *PageStore) AttachEmbedding(
	_ context.Context,
	pageID, embeddingID string,
	vector []float32,
	relevance *float64,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return fmt.Errorf("page %s: %w", pageID, scrape.ErrNotFound)
	}
	page.EmbeddingID = embeddingID
	if relevance != nil {
		score := *relevance
		page.RelevanceScore = &score
	} else {
		page.RelevanceScore = nil
	}
	s.pages[pageID] = page
	s.vectors[embeddingID] = scrape.VectorRecord{
		EmbeddingID: embeddingID,
		PageID:      pageID,
		JobID:       page.JobID,
		Vector:      append([]float32(nil), vector...),
	}
	return nil
}

// EachVector streams stored vectors, optionally filtered by run.
func (s *PageStore) EachVector(_ context.Context, jobID string, fn func(scrape.VectorRecord) error) error {
	s.mu.RLock()
	records := make([]scrape.VectorRecord, 0, len(s.vectors))
	for _, rec := range s.vectors {
		if jobID != "" && rec.JobID != jobID {
			continue
		}
		records = append(records, rec)
	}
	s.mu.RUnlock()

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// DeletePages removes all pages, links and vectors for a run. It returns
// the embedding IDs that were removed so callers can prune the index.
func (s *PageStore) DeletePages(_ context.Context, jobID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, id := range s.byJob[jobID] {
		page, ok := s.pages[id]
		if !ok {
			continue
		}
		if page.EmbeddingID != "" {
			removed = append(removed, page.EmbeddingID)
			delete(s.vectors, page.EmbeddingID)
		}
		delete(s.pages, id)
		delete(s.links, id)
	}
	delete(s.byJob, jobID)
	return removed, nil
}
