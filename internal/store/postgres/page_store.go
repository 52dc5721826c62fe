package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/internal/scrape"
)

const pageColumns = `id, job_id, url, title, author, published_at, text, depth, source_kind, content_type, content_hash, blob_uri, metadata, structured_data, embedding_id, relevance_score, crawled_at`

// pageOrderColumns whitelists the sortable columns for page listings.
var pageOrderColumns = map[string]string{
	"crawled_at":      "crawled_at",
	"url":             "url",
	"title":           "title",
	"depth":           "depth",
	"crawl_depth":     "depth",
	"relevance_score": "relevance_score",
}

// PageStore persists crawled pages, links and vectors in Postgres.
type PageStore struct {
	pool querier
}

// NewPageStore creates a PageStore backed by the given pool.
func NewPageStore(pool querier) *PageStore {
	return &PageStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SavePage upserts a page row and replaces its outbound links.
func (s *PageStore) SavePage(ctx context.Context, page scrape.Page, links []scrape.Link) error {
	structured, err := json.Marshal(page.StructuredData)
	if err != nil {
		return fmt.Errorf("marshal structured data: %w", err)
	}
	if page.StructuredData == nil {
		structured = []byte(`{}`)
	}
	metadata, err := json.Marshal(page.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if page.Metadata == nil {
		metadata = []byte(`{}`)
	}
	query := `
		INSERT INTO scrape_pages (` + pageColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			published_at = EXCLUDED.published_at,
			text = EXCLUDED.text,
			content_type = EXCLUDED.content_type,
			content_hash = EXCLUDED.content_hash,
			blob_uri = EXCLUDED.blob_uri,
			metadata = EXCLUDED.metadata,
			structured_data = EXCLUDED.structured_data;
	`
	_, err = s.pool.Exec(ctx, query,
		page.ID,
		page.JobID,
		page.URL,
		page.Title,
		page.Author,
		page.PublishedAt,
		page.Text,
		page.Depth,
		page.SourceKind,
		page.ContentType,
		page.ContentHash,
		page.BlobURI,
		metadata,
		structured,
		nullable(page.EmbeddingID),
		page.RelevanceScore,
		page.CrawledAt,
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM page_links WHERE page_id = $1;`, page.ID); err != nil {
		return fmt.Errorf("clear page links: %w", err)
	}
	for i, link := range links {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO page_links (page_id, position, url, text, internal) VALUES ($1,$2,$3,$4,$5);`,
			page.ID, i, link.URL, link.AnchorText, link.Internal,
		)
		if err != nil {
			return fmt.Errorf("insert page link: %w", err)
		}
	}
	return nil
}

// GetPage fetches a page and its outbound links by ID.
func (s *PageStore) GetPage(ctx context.Context, pageID string) (scrape.Page, []scrape.Link, error) {
	query := `SELECT ` + pageColumns + ` FROM scrape_pages WHERE id = $1;`
	page, err := scanPage(s.pool.QueryRow(ctx, query, pageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Page{}, nil, fmt.Errorf("page %s: %w", pageID, scrape.ErrNotFound)
		}
		return scrape.Page{}, nil, fmt.Errorf("get page: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT url, text, internal FROM page_links WHERE page_id = $1 ORDER BY position;`, pageID)
	if err != nil {
		return scrape.Page{}, nil, fmt.Errorf("list page links: %w", err)
	}
	defer rows.Close()

	var links []scrape.Link
	for rows.Next() {
		var link scrape.Link
		if err := rows.Scan(&link.URL, &link.AnchorText, &link.Internal); err != nil {
			return scrape.Page{}, nil, fmt.Errorf("scan link row: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return scrape.Page{}, nil, fmt.Errorf("iterate link rows: %w", err)
	}
	return page, links, nil
}

// GetPageByEmbedding resolves a vector-index hit back to its page.
func (s *PageStore) GetPageByEmbedding(ctx context.Context, embeddingID string) (scrape.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM scrape_pages WHERE embedding_id = $1;`
	page, err := scanPage(s.pool.QueryRow(ctx, query, embeddingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Page{}, fmt.Errorf("embedding %s: %w", embeddingID, scrape.ErrNotFound)
		}
		return scrape.Page{}, fmt.Errorf("get page by embedding: %w", err)
	}
	return page, nil
}

// ListPages returns pages for a run with filtering, ordering and pagination,
// plus the total count after filtering.
func (s *PageStore) ListPages(ctx context.Context, jobID string, opts scrape.PageListOptions) ([]scrape.Page, int, error) {
	col, ok := pageOrderColumns[defaultStr(opts.OrderBy, "crawled_at")]
	if !ok {
		return nil, 0, fmt.Errorf("order_by %q: %w", opts.OrderBy, scrape.ErrInvalidConfig)
	}
	dir := "ASC"
	switch strings.ToLower(opts.OrderDir) {
	case "", "asc":
	case "desc":
		dir = "DESC"
	default:
		return nil, 0, fmt.Errorf("order_dir %q: %w", opts.OrderDir, scrape.ErrInvalidConfig)
	}

	search := strings.TrimSpace(opts.Search)
	filter := `
		WHERE job_id = $1
		  AND ($2 = ''
			OR url ILIKE '%' || $2 || '%'
			OR title ILIKE '%' || $2 || '%'
			OR text ILIKE '%' || $2 || '%')
	`

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scrape_pages`+filter+`;`, jobID, search).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count pages: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT `+pageColumns+`
		FROM scrape_pages
		%s
		ORDER BY %s %s NULLS LAST, id ASC
		LIMIT $3 OFFSET $4;
	`, filter, col, dir)

	rows, err := s.pool.Query(ctx, query, jobID, search, limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []scrape.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate page rows: %w", err)
	}
	return pages, total, nil
}

// AttachEmbedding records the vector and relevance score for a page. A nil
// relevance is stored as NULL.
func (s *PageStore) AttachEmbedding(
	ctx context.Context,
	pageID, embeddingID string,
	vector []float32,
	relevance *float64,
) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_pages SET embedding_id = $1, relevance_score = $2 WHERE id = $3;`,
		embeddingID, relevance, pageID,
	)
	if err != nil {
		return fmt.Errorf("attach embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("page %s: %w", pageID, scrape.ErrNotFound)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO page_vectors (id, page_id, job_id, vector)
		SELECT $1, $2, job_id, $3 FROM scrape_pages WHERE id = $2
		ON CONFLICT (id) DO UPDATE SET vector = EXCLUDED.vector;
	`, embeddingID, pageID, vector)
	if err != nil {
		return fmt.Errorf("insert page vector: %w", err)
	}
	return nil
}

// EachVector streams stored vectors, optionally filtered by run.
func (s *PageStore) EachVector(ctx context.Context, jobID string, fn func(scrape.VectorRecord) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, page_id, job_id, vector
		FROM page_vectors
		WHERE $1 = '' OR job_id = $1;
	`, jobID)
	if err != nil {
		return fmt.Errorf("list vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec scrape.VectorRecord
		if err := rows.Scan(&rec.EmbeddingID, &rec.PageID, &rec.JobID, &rec.Vector); err != nil {
			return fmt.Errorf("scan vector row: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate vector rows: %w", err)
	}
	return nil
}

// DeletePages removes a run's pages, links and vectors. It returns the
// embedding IDs that were dropped so callers can prune the index.
func (s *PageStore) DeletePages(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM page_vectors WHERE job_id = $1 RETURNING id;`, jobID)
	if err != nil {
		return nil, fmt.Errorf("delete vectors: %w", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted vector id: %w", err)
		}
		removed = append(removed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted vector ids: %w", err)
	}

	// Links cascade from the page rows.
	if _, err := s.pool.Exec(ctx, `DELETE FROM scrape_pages WHERE job_id = $1;`, jobID); err != nil {
		return nil, fmt.Errorf("delete pages: %w", err)
	}
	return removed, nil
}

func scanPage(row pgx.Row) (scrape.Page, error) {
	var (
		page        scrape.Page
		metadata    []byte
		structured  []byte
		embeddingID *string
	)
	err := row.Scan(
		&page.ID,
		&page.JobID,
		&page.URL,
		&page.Title,
		&page.Author,
		&page.PublishedAt,
		&page.Text,
		&page.Depth,
		&page.SourceKind,
		&page.ContentType,
		&page.ContentHash,
		&page.BlobURI,
		&metadata,
		&structured,
		&embeddingID,
		&page.RelevanceScore,
		&page.CrawledAt,
	)
	if err != nil {
		return scrape.Page{}, err
	}
	if embeddingID != nil {
		page.EmbeddingID = *embeddingID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &page.Metadata); err != nil {
			return scrape.Page{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &page.StructuredData); err != nil {
			return scrape.Page{}, fmt.Errorf("unmarshal structured data: %w", err)
		}
	}
	return page, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
