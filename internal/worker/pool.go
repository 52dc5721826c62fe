package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webintel/webintel/internal/embed"
	"github.com/webintel/webintel/internal/frontier"
	"github.com/webintel/webintel/internal/metrics"
	"github.com/webintel/webintel/internal/progress"
	"github.com/webintel/webintel/internal/scrape"
)

// Collectors dispatches a fetch to the collector for a source kind.
type Collectors interface {
	Collect(ctx context.Context, kind scrape.SourceKind, url string, cfg scrape.JobConfig) (scrape.RawItem, error)
}

// Hasher produces content digests for dedupe and blob naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config controls Pool behavior.
type Config struct {
	// Workers is the default concurrency when the run config does not set one.
	Workers int
	// BlobPrefix is the object path prefix for archived raw bodies.
	BlobPrefix string
}

// Pool executes one run's crawl pipeline with bounded concurrency. Workers
// pull frontier leases, fetch, extract, persist, embed, and grow the frontier
// from discovered links.
type Pool struct {
	frontier   *frontier.Frontier
	gate       *Gate
	collectors Collectors
	extractor  scrape.Extractor
	embedder   scrape.Embedder
	index      scrape.VectorIndex
	pages      scrape.PageStore
	blob       scrape.BlobStore
	hasher     Hasher
	clock      scrape.Clock
	ids        scrape.IDGenerator
	retry      scrape.RetryPolicy
	emitter    progress.Emitter
	cfg        Config
	logger     *zap.Logger

	retries atomic.Int64
}

// New constructs a Pool. blob and emitter may be nil.
func New(
	fr *frontier.Frontier,
	gate *Gate,
	collectors Collectors,
	extractor scrape.Extractor,
	embedder scrape.Embedder,
	index scrape.VectorIndex,
	pages scrape.PageStore,
	blob scrape.BlobStore,
	hasher Hasher,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	retry scrape.RetryPolicy,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "raw"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Pool{
		frontier:   fr,
		gate:       gate,
		collectors: collectors,
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
		pages:      pages,
		blob:       blob,
		hasher:     hasher,
		clock:      clock,
		ids:        ids,
		retry:      retry,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Counters returns a point-in-time progress snapshot for the run.
func (p *Pool) Counters() scrape.JobCounters {
	st := p.frontier.Snapshot()
	return scrape.JobCounters{
		PagesCrawled: st.Crawled,
		PagesTotal:   st.Crawled + st.Queued + st.InFlight,
		PagesFailed:  st.Failed,
		Retries:      int(p.retries.Load()),
	}
}

// Run blocks until the frontier is exhausted, the context ends, or a fatal
// pipeline error occurs. Per-page fetch and extraction failures are recorded
// and never fail the run; storage failures do.
func (p *Pool) Run(ctx context.Context, job scrape.Job, queryVec []float32) error {
	workers := job.Config.Concurrency
	if workers <= 0 {
		workers = p.cfg.Workers
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return p.runWorker(ctx, job, queryVec)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, job scrape.Job, queryVec []float32) error {
	for {
		if err := p.gate.Wait(ctx); err != nil {
			return nil
		}
		lease, err := p.frontier.Next(ctx)
		if err != nil {
			if errors.Is(err, frontier.ErrExhausted) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		// A pause can land while this worker is parked inside Next; re-check
		// before touching the network so paused runs stay quiet.
		if p.gate.Paused() {
			lease.Release()
			if err := p.gate.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		if err := p.process(ctx, job, lease, queryVec); err != nil {
			return err
		}
	}
}

func (p *Pool) process(ctx context.Context, job scrape.Job, lease *frontier.Lease, queryVec []float32) error {
	entry := lease.Entry

	if wait := job.Config.Wait(); wait > 0 {
		select {
		case <-ctx.Done():
			lease.Fail(false)
			return nil
		case <-time.After(wait):
		}
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := p.clock.Now()
	item, err := p.fetchWithRetry(ctx, job, entry)
	if err != nil {
		p.failEntry(job, lease, err)
		return nil
	}

	content, err := p.extractor.Extract(ctx, item)
	if err != nil {
		p.failEntry(job, lease, err)
		return nil
	}

	pageID, err := p.ids.NewID()
	if err != nil {
		lease.Fail(false)
		return fmt.Errorf("new page id: %w", err)
	}

	page := scrape.Page{
		ID:          pageID,
		JobID:       job.ID,
		URL:         entry.URL,
		Title:       content.Title,
		Text:        content.Text,
		SourceKind:  entry.Kind,
		ContentType: item.ContentType,
		Author:      content.Author,
		PublishedAt: content.PublishedAt,
		Metadata:    content.Metadata,
		Depth:       entry.Depth,
		CrawledAt:   p.clock.Now().UTC(),
	}

	if p.hasher != nil {
		if hash, hashErr := p.hasher.Hash(item.Body); hashErr == nil {
			page.ContentHash = hash
		}
	}
	if p.blob != nil && page.ContentHash != "" {
		path := fmt.Sprintf("%s/%s/%s", p.cfg.BlobPrefix, job.ID, page.ContentHash)
		uri, blobErr := p.blob.PutObject(ctx, path, item.ContentType, item.Body)
		if blobErr != nil {
			p.logger.Warn("raw body archive failed",
				zap.String("url", entry.URL),
				zap.Error(blobErr),
			)
		} else {
			page.BlobURI = uri
		}
	}

	if err := p.pages.SavePage(ctx, page, content.Links); err != nil {
		lease.Fail(false)
		return fmt.Errorf("%w: save page %s: %v", scrape.ErrStorageUnavailable, entry.URL, err)
	}

	score, err := p.embedPage(ctx, page, content.Text, queryVec)
	if err != nil {
		lease.Fail(false)
		return err
	}

	p.enqueueLinks(job, entry, content.Links)
	lease.Complete()

	metrics.ObservePageCrawled(entry.URL)
	evt := progress.Event{
		JobID:       job.ID,
		TS:          p.clock.Now().UTC(),
		Stage:       progress.StagePageFetched,
		Site:        entry.Domain,
		URL:         entry.URL,
		Depth:       entry.Depth,
		StatusClass: progress.ClassifyStatus(item.StatusCode),
		Dur:         p.clock.Now().Sub(start),
	}
	if score != nil {
		evt.Score = *score
	}
	p.emit(evt)
	return nil
}

// embedPage attaches an embedding and relevance score to the saved page.
// Embedding failures are recorded but leave the page unscored; storage
// failures are fatal. Without a query vector the page keeps its embedding
// but no score.
func (p *Pool) embedPage(ctx context.Context, page scrape.Page, text string, queryVec []float32) (*float64, error) {
	vec, err := p.embedder.Embed(text)
	if err != nil {
		metrics.ObserveEmbeddingFailure()
		p.logger.Debug("page not embeddable",
			zap.String("page_id", page.ID),
			zap.Error(err),
		)
		return nil, nil
	}

	embeddingID, err := p.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("new embedding id: %w", err)
	}
	var score *float64
	if queryVec != nil {
		s := embed.Relevance(queryVec, vec)
		score = &s
	}
	if err := p.pages.AttachEmbedding(ctx, page.ID, embeddingID, vec, score); err != nil {
		return nil, fmt.Errorf("%w: attach embedding for page %s: %v", scrape.ErrStorageUnavailable, page.ID, err)
	}
	if err := p.index.Upsert(embeddingID, vec); err != nil {
		return nil, fmt.Errorf("index upsert: %w", err)
	}
	metrics.SetVectorIndexSize(p.index.Len())
	return score, nil
}

func (p *Pool) enqueueLinks(job scrape.Job, entry scrape.FrontierEntry, links []scrape.Link) {
	if entry.Depth >= job.Config.MaxDepth {
		return
	}
	for _, link := range links {
		p.frontier.Enqueue(link.URL, entry.Depth+1, entry.Kind, entry.URL)
	}
}

func (p *Pool) fetchWithRetry(ctx context.Context, job scrape.Job, entry scrape.FrontierEntry) (scrape.RawItem, error) {
	attempt := 1
	for {
		item, err := p.collectors.Collect(ctx, entry.Kind, entry.URL, job.Config)
		if err == nil {
			return item, nil
		}
		if !p.retry.ShouldRetry(err, attempt) {
			return scrape.RawItem{}, err
		}
		backoff := p.retry.Backoff(err, attempt)
		metrics.ObserveRetryDelay(entry.Domain, backoff)
		p.retries.Add(1)
		p.logger.Debug("retrying fetch",
			zap.String("url", entry.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return scrape.RawItem{}, fmt.Errorf("fetch retry wait: %w", ctx.Err())
		case <-time.After(backoff):
		}
		attempt++
	}
}

func (p *Pool) failEntry(job scrape.Job, lease *frontier.Lease, cause error) {
	lease.Fail(false)
	metrics.ObservePageFailed(lease.Entry.URL)
	p.logger.Info("frontier entry failed",
		zap.String("job_id", job.ID),
		zap.String("url", lease.Entry.URL),
		zap.Error(cause),
	)
	p.emit(progress.Event{
		JobID: job.ID,
		TS:    p.clock.Now().UTC(),
		Stage: progress.StagePageFailed,
		Site:  lease.Entry.Domain,
		URL:   lease.Entry.URL,
		Depth: lease.Entry.Depth,
		Note:  trimNote(cause.Error()),
	})
}

func (p *Pool) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(evt)
}

func trimNote(s string) string {
	const max = 200
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}
