// Package controller owns the run lifecycle: it creates jobs, drives their
// state machines, supervises per-run worker pools, and serves semantic search
// over the shared vector index.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/webintel/webintel/internal/embed"
	"github.com/webintel/webintel/internal/frontier"
	"github.com/webintel/webintel/internal/metrics"
	"github.com/webintel/webintel/internal/progress"
	"github.com/webintel/webintel/internal/scrape"
	"github.com/webintel/webintel/internal/worker"
)

// Deps bundles the ports the controller wires into each run.
type Deps struct {
	Jobs       scrape.JobStore
	Pages      scrape.PageStore
	Collectors worker.Collectors
	Extractor  scrape.Extractor
	Embedder   scrape.Embedder
	Index      scrape.VectorIndex
	Blob       scrape.BlobStore
	Hasher     worker.Hasher
	Clock      scrape.Clock
	IDs        scrape.IDGenerator
	Retry      scrape.RetryPolicy
	Seeds      scrape.SeedProvider
	Emitter    progress.Emitter
	Logger     *zap.Logger
}

// Config tunes controller-wide behavior.
type Config struct {
	// Workers is the per-run worker count when the run config does not set one.
	Workers int
	// StopGrace bounds how long Stop waits for in-flight fetches to drain.
	StopGrace time.Duration
	// SearchLimit is the default k for semantic search.
	SearchLimit int
	// MaxSearchLimit caps the requested k.
	MaxSearchLimit int
}

// handle is the live state of one running or paused job. Its mutex is the
// per-job linearization point: API transitions and the worker-driven
// completion both take it, so a pause can never race a completion.
type handle struct {
	mu        sync.Mutex
	gate      *worker.Gate
	pool      *worker.Pool
	frontier  *frontier.Frontier
	cancel    context.CancelFunc
	done      chan struct{}
	stopAsked bool
}

// Controller is the single owner of job state. All transitions go through it.
type Controller struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	live map[string]*handle
	wg   sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New builds a Controller. Logger may be nil.
func New(deps Deps, cfg Config) *Controller {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.MaxSearchLimit <= 0 {
		cfg.MaxSearchLimit = 100
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:       deps,
		cfg:        cfg,
		logger:     deps.Logger,
		live:       make(map[string]*handle),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// CreateJob validates the configuration and persists a pending run.
func (c *Controller) CreateJob(ctx context.Context, query string, cfg scrape.JobConfig) (scrape.Job, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return scrape.Job{}, fmt.Errorf("%w: query must not be empty", scrape.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return scrape.Job{}, err
	}

	id, err := c.deps.IDs.NewID()
	if err != nil {
		return scrape.Job{}, fmt.Errorf("new job id: %w", err)
	}
	now := c.deps.Clock.Now().UTC()
	job := scrape.Job{
		ID:        id,
		Query:     query,
		Status:    scrape.JobStatusPending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.deps.Jobs.CreateJob(ctx, job); err != nil {
		return scrape.Job{}, fmt.Errorf("%w: create job: %v", scrape.ErrStorageUnavailable, err)
	}

	c.emit(progress.Event{JobID: id, TS: now, Stage: progress.StageJobCreated})
	c.logger.Info("job created",
		zap.String("job_id", id),
		zap.String("query", query),
		zap.Int("max_depth", cfg.MaxDepth),
	)
	return job, nil
}

// Start transitions a pending job to running and spawns its worker pool.
func (c *Controller) Start(ctx context.Context, jobID string) error {
	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.live[jobID]; exists {
		return fmt.Errorf("%w: job %s already started", scrape.ErrInvalidState, jobID)
	}
	if job.Status != scrape.JobStatusPending {
		return fmt.Errorf("%w: cannot start job in state %s", scrape.ErrInvalidState, job.Status)
	}

	seeds, err := c.seedURLs(ctx, job)
	if err != nil {
		return err
	}

	fr := frontier.New(frontier.Config{
		MaxDepth:          job.Config.MaxDepth,
		MaxPages:          job.Config.MaxPages,
		AllowedDomains:    scopeDomains(job.Config, seeds),
		FollowExternal:    job.Config.FollowExternalLinks,
		Policy:            job.Config.DepthPolicy,
		MaxItemsPerSource: job.Config.MaxItemsPerSource,
	})
	if fr.Seed(seeds, scrape.SourceWeb) == 0 {
		return fmt.Errorf("%w: no usable start urls", scrape.ErrInvalidConfig)
	}

	queryVec, err := c.deps.Embedder.Embed(job.Query)
	if err != nil {
		// Pages still get crawled and stored, just without query-anchored
		// relevance ranking.
		c.logger.Warn("query not embeddable", zap.String("job_id", jobID), zap.Error(err))
		queryVec = nil
	}

	gate := worker.NewGate()
	pool := worker.New(
		fr,
		gate,
		c.deps.Collectors,
		c.deps.Extractor,
		c.deps.Embedder,
		c.deps.Index,
		c.deps.Pages,
		c.deps.Blob,
		c.deps.Hasher,
		c.deps.Clock,
		c.deps.IDs,
		c.deps.Retry,
		c.deps.Emitter,
		worker.Config{Workers: c.cfg.Workers},
		c.logger.With(zap.String("job_id", jobID)),
	)

	if err := c.persistStatus(ctx, job.ID, scrape.JobStatusRunning, "", scrape.JobCounters{}); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(c.baseCtx)
	h := &handle{
		gate:     gate,
		pool:     pool,
		frontier: fr,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.live[jobID] = h

	c.emit(progress.Event{JobID: jobID, TS: c.deps.Clock.Now().UTC(), Stage: progress.StageJobStarted})
	c.logger.Info("job started",
		zap.String("job_id", jobID),
		zap.Int("seeds", len(seeds)),
	)

	c.wg.Add(1)
	go c.runJob(runCtx, h, job, queryVec)
	return nil
}

// runJob drives the pool to completion and performs the worker-side terminal
// transition under the job's handle lock.
func (c *Controller) runJob(ctx context.Context, h *handle, job scrape.Job, queryVec []float32) {
	defer c.wg.Done()
	defer close(h.done)

	runErr := h.pool.Run(ctx, job, queryVec)
	counters := h.pool.Counters()

	h.mu.Lock()
	stopped := h.stopAsked || ctx.Err() != nil

	var (
		status  scrape.JobStatus
		stage   progress.Stage
		errText string
	)
	switch {
	case stopped:
		status, stage = scrape.JobStatusStopped, progress.StageJobStopped
		h.frontier.Close()
	case runErr != nil:
		status, stage = scrape.JobStatusFailed, progress.StageJobFailed
		errText = runErr.Error()
	default:
		status, stage = scrape.JobStatusCompleted, progress.StageJobCompleted
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := c.persistStatus(persistCtx, job.ID, status, errText, counters); err != nil {
		c.logger.Error("terminal transition not persisted",
			zap.String("job_id", job.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	cancel()
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.live, job.ID)
	c.mu.Unlock()

	metrics.ObserveJob(string(status))
	c.emit(progress.Event{
		JobID: job.ID,
		TS:    c.deps.Clock.Now().UTC(),
		Stage: stage,
		Note:  errText,
	})
	c.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("pages_crawled", counters.PagesCrawled),
		zap.Int("pages_failed", counters.PagesFailed),
		zap.Error(runErr),
	)
}

// Pause suspends dispatch for a running job. In-flight fetches finish.
func (c *Controller) Pause(ctx context.Context, jobID string) (scrape.JobSnapshot, error) {
	h, ok := c.liveHandle(jobID)
	if !ok {
		return c.rejectTransition(ctx, jobID, "pause")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return scrape.JobSnapshot{}, err
	}
	if job.Status != scrape.JobStatusRunning {
		return scrape.JobSnapshot{}, fmt.Errorf("%w: cannot pause job in state %s", scrape.ErrInvalidState, job.Status)
	}

	h.gate.Pause()
	counters := h.pool.Counters()
	if err := c.persistStatus(ctx, jobID, scrape.JobStatusPaused, "", counters); err != nil {
		return scrape.JobSnapshot{}, err
	}
	c.emit(progress.Event{JobID: jobID, TS: c.deps.Clock.Now().UTC(), Stage: progress.StageJobPaused})
	c.logger.Info("job paused", zap.String("job_id", jobID))

	job.Status = scrape.JobStatusPaused
	job.Counters = counters
	return job.Snapshot(), nil
}

// Resume reopens dispatch for a paused job. Resuming an already-running job
// is a no-op that returns the current snapshot.
func (c *Controller) Resume(ctx context.Context, jobID string) (scrape.JobSnapshot, error) {
	h, ok := c.liveHandle(jobID)
	if !ok {
		return c.rejectTransition(ctx, jobID, "resume")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return scrape.JobSnapshot{}, err
	}
	switch job.Status {
	case scrape.JobStatusRunning:
		job.Counters = h.pool.Counters()
		return job.Snapshot(), nil
	case scrape.JobStatusPaused:
	default:
		return scrape.JobSnapshot{}, fmt.Errorf("%w: cannot resume job in state %s", scrape.ErrInvalidState, job.Status)
	}

	counters := h.pool.Counters()
	if err := c.persistStatus(ctx, jobID, scrape.JobStatusRunning, "", counters); err != nil {
		return scrape.JobSnapshot{}, err
	}
	h.gate.Resume()
	c.emit(progress.Event{JobID: jobID, TS: c.deps.Clock.Now().UTC(), Stage: progress.StageJobResumed})
	c.logger.Info("job resumed", zap.String("job_id", jobID))

	job.Status = scrape.JobStatusRunning
	job.Counters = counters
	return job.Snapshot(), nil
}

// Stop terminates a job from any non-terminal state. In-flight fetches get
// StopGrace to drain before the call returns without waiting further.
func (c *Controller) Stop(ctx context.Context, jobID string) (scrape.JobSnapshot, error) {
	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return scrape.JobSnapshot{}, err
	}
	if job.Status.Terminal() {
		return scrape.JobSnapshot{}, fmt.Errorf("%w: cannot stop job in state %s", scrape.ErrInvalidState, job.Status)
	}

	h, ok := c.liveHandle(jobID)
	if !ok {
		// Never started; no pool to wind down.
		if err := c.persistStatus(ctx, jobID, scrape.JobStatusStopped, "", job.Counters); err != nil {
			return scrape.JobSnapshot{}, err
		}
		c.emit(progress.Event{JobID: jobID, TS: c.deps.Clock.Now().UTC(), Stage: progress.StageJobStopped})
		job.Status = scrape.JobStatusStopped
		return job.Snapshot(), nil
	}

	h.mu.Lock()
	h.stopAsked = true
	// A paused pool would never observe cancellation while blocked on the
	// gate; reopen it so workers can exit.
	h.gate.Resume()
	h.cancel()
	h.mu.Unlock()

	select {
	case <-h.done:
	case <-time.After(c.cfg.StopGrace):
		c.logger.Warn("stop grace elapsed with fetches still in flight", zap.String("job_id", jobID))
	case <-ctx.Done():
	}

	job, err = c.getJob(ctx, jobID)
	if err != nil {
		return scrape.JobSnapshot{}, err
	}
	return job.Snapshot(), nil
}

// Status returns the current snapshot, overlaying live counters for active runs.
func (c *Controller) Status(ctx context.Context, jobID string) (scrape.JobSnapshot, error) {
	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return scrape.JobSnapshot{}, err
	}
	if h, ok := c.liveHandle(jobID); ok {
		job.Counters = h.pool.Counters()
	}
	return job.Snapshot(), nil
}

// GetJob returns the full stored job, with live counters for active runs.
func (c *Controller) GetJob(ctx context.Context, jobID string) (scrape.Job, error) {
	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return scrape.Job{}, err
	}
	if h, ok := c.liveHandle(jobID); ok {
		job.Counters = h.pool.Counters()
	}
	return job, nil
}

// ListJobs pages through stored jobs, newest first.
func (c *Controller) ListJobs(ctx context.Context, limit, offset int) ([]scrape.Job, int, error) {
	jobs, total, err := c.deps.Jobs.ListJobs(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list jobs: %v", scrape.ErrStorageUnavailable, err)
	}
	for i := range jobs {
		if h, ok := c.liveHandle(jobs[i].ID); ok {
			jobs[i].Counters = h.pool.Counters()
		}
	}
	return jobs, total, nil
}

// Delete removes a terminal run with its pages, links and vectors, and prunes
// the vector index.
func (c *Controller) Delete(ctx context.Context, jobID string) error {
	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: cannot delete job in state %s", scrape.ErrInvalidState, job.Status)
	}

	removed, err := c.deps.Pages.DeletePages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: delete pages: %v", scrape.ErrStorageUnavailable, err)
	}
	for _, embeddingID := range removed {
		c.deps.Index.Remove(embeddingID)
	}
	metrics.SetVectorIndexSize(c.deps.Index.Len())

	if err := c.deps.Jobs.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("%w: delete job: %v", scrape.ErrStorageUnavailable, err)
	}
	c.logger.Info("job deleted",
		zap.String("job_id", jobID),
		zap.Int("vectors_pruned", len(removed)),
	)
	return nil
}

// Search embeds the query and returns the top-k pages by relevance. A run id
// scopes the search to that run's vectors; otherwise the shared index serves it.
func (c *Controller) Search(ctx context.Context, query, jobID string, limit int) ([]scrape.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query must not be empty", scrape.ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = c.cfg.SearchLimit
	}
	if limit > c.cfg.MaxSearchLimit {
		limit = c.cfg.MaxSearchLimit
	}

	queryVec, err := c.deps.Embedder.Embed(query)
	if err != nil {
		// An unembeddable query is bad input, not an internal failure.
		return nil, fmt.Errorf("%w: query not embeddable: %v", scrape.ErrInvalidConfig, err)
	}

	if jobID == "" {
		return c.searchIndex(ctx, queryVec, limit)
	}
	if _, err := c.getJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.searchRun(ctx, queryVec, jobID, limit)
}

func (c *Controller) searchIndex(ctx context.Context, queryVec []float32, limit int) ([]scrape.SearchResult, error) {
	matches, err := c.deps.Index.Search(queryVec, limit)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	ranked := make([]embed.Scored, 0, len(matches))
	byID := make(map[string]scrape.SearchResult, len(matches))
	for _, m := range matches {
		page, err := c.deps.Pages.GetPageByEmbedding(ctx, m.ID)
		if err != nil {
			if errors.Is(err, scrape.ErrNotFound) {
				// Index still holds entries for pages deleted since the last
				// rebuild; skip them.
				continue
			}
			return nil, fmt.Errorf("%w: resolve search hit: %v", scrape.ErrStorageUnavailable, err)
		}
		ranked = append(ranked, embed.Scored{ID: page.ID, Score: m.Score, CrawledAt: page.CrawledAt})
		byID[page.ID] = scrape.SearchResult{
			PageID: page.ID,
			Score:  m.Score,
			Title:  page.Title,
			URL:    page.URL,
		}
	}
	embed.Rank(ranked)
	results := make([]scrape.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, byID[r.ID])
	}
	return results, nil
}

// searchRun scores a single run's stored vectors directly; the store, not the
// index, is the source of truth for run-scoped results.
func (c *Controller) searchRun(ctx context.Context, queryVec []float32, jobID string, limit int) ([]scrape.SearchResult, error) {
	var hits []embed.Scored
	err := c.deps.Pages.EachVector(ctx, jobID, func(rec scrape.VectorRecord) error {
		hits = append(hits, embed.Scored{ID: rec.PageID, Score: embed.Relevance(queryVec, rec.Vector)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan run vectors: %v", scrape.ErrStorageUnavailable, err)
	}

	embed.Rank(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ranked := make([]embed.Scored, 0, len(hits))
	byID := make(map[string]scrape.SearchResult, len(hits))
	for _, h := range hits {
		page, _, err := c.deps.Pages.GetPage(ctx, h.ID)
		if err != nil {
			if errors.Is(err, scrape.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: resolve search hit: %v", scrape.ErrStorageUnavailable, err)
		}
		ranked = append(ranked, embed.Scored{ID: page.ID, Score: h.Score, CrawledAt: page.CrawledAt})
		byID[page.ID] = scrape.SearchResult{
			PageID: page.ID,
			Score:  h.Score,
			Title:  page.Title,
			URL:    page.URL,
		}
	}
	// Rank again now crawl times are known: equal scores put the earlier
	// crawl first.
	embed.Rank(ranked)
	results := make([]scrape.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, byID[r.ID])
	}
	return results, nil
}

// RebuildIndex reloads every stored vector into the index. The index is a
// cache of derived data, so this fully restores search after a restart.
func (c *Controller) RebuildIndex(ctx context.Context) error {
	count := 0
	err := c.deps.Pages.EachVector(ctx, "", func(rec scrape.VectorRecord) error {
		if err := c.deps.Index.Upsert(rec.EmbeddingID, rec.Vector); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.EmbeddingID, err)
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	metrics.SetVectorIndexSize(c.deps.Index.Len())
	c.logger.Info("vector index rebuilt", zap.Int("vectors", count))
	return nil
}

// Recover restores scheduler state after a restart: pending runs are started,
// and runs that were live when the process died are marked failed.
func (c *Controller) Recover(ctx context.Context) error {
	for _, status := range []scrape.JobStatus{scrape.JobStatusRunning, scrape.JobStatusPaused} {
		stale, err := c.deps.Jobs.ListJobsByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("%w: list %s jobs: %v", scrape.ErrStorageUnavailable, status, err)
		}
		for _, job := range stale {
			if _, ok := c.liveHandle(job.ID); ok {
				continue
			}
			err := c.persistStatus(ctx, job.ID, scrape.JobStatusFailed, "interrupted by restart", job.Counters)
			if err != nil {
				c.logger.Error("stale job not failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			c.logger.Warn("stale job marked failed", zap.String("job_id", job.ID))
		}
	}

	pending, err := c.deps.Jobs.ListJobsByStatus(ctx, scrape.JobStatusPending)
	if err != nil {
		return fmt.Errorf("%w: list pending jobs: %v", scrape.ErrStorageUnavailable, err)
	}
	for _, job := range pending {
		if err := c.Start(ctx, job.ID); err != nil {
			c.logger.Error("pending job not restarted", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		c.logger.Info("pending jobs rescheduled", zap.Int("count", len(pending)))
	}
	return nil
}

// Close stops every live run and waits for their pools to drain.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	for _, h := range c.live {
		h.mu.Lock()
		h.stopAsked = true
		h.gate.Resume()
		h.cancel()
		h.mu.Unlock()
	}
	c.mu.Unlock()
	c.baseCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("controller shutdown: %w", ctx.Err())
	}
}

func (c *Controller) liveHandle(jobID string) (*handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.live[jobID]
	return h, ok
}

// rejectTransition reports why a pause or resume without a live pool failed:
// the job either does not exist or is not in a transitionable state.
func (c *Controller) rejectTransition(ctx context.Context, jobID, verb string) (scrape.JobSnapshot, error) {
	job, err := c.getJob(ctx, jobID)
	if err != nil {
		return scrape.JobSnapshot{}, err
	}
	return scrape.JobSnapshot{}, fmt.Errorf("%w: cannot %s job in state %s", scrape.ErrInvalidState, verb, job.Status)
}

func (c *Controller) getJob(ctx context.Context, jobID string) (scrape.Job, error) {
	job, err := c.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			return scrape.Job{}, err
		}
		return scrape.Job{}, fmt.Errorf("%w: get job: %v", scrape.ErrStorageUnavailable, err)
	}
	return job, nil
}

func (c *Controller) persistStatus(ctx context.Context, jobID string, status scrape.JobStatus, errText string, counters scrape.JobCounters) error {
	if err := c.deps.Jobs.UpdateJobStatus(ctx, jobID, status, errText, counters); err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: update job status: %v", scrape.ErrStorageUnavailable, err)
	}
	return nil
}

func (c *Controller) seedURLs(ctx context.Context, job scrape.Job) ([]string, error) {
	if len(job.Config.StartURLs) > 0 {
		return job.Config.StartURLs, nil
	}
	if c.deps.Seeds == nil {
		return nil, fmt.Errorf("%w: no start urls and no seed provider", scrape.ErrInvalidConfig)
	}
	seeds, err := c.deps.Seeds.Seeds(ctx, job.Query, job.Config)
	if err != nil {
		return nil, fmt.Errorf("derive seeds: %w", err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: seed provider returned no urls", scrape.ErrInvalidConfig)
	}
	return seeds, nil
}

func (c *Controller) emit(evt progress.Event) {
	if c.deps.Emitter == nil {
		return
	}
	c.deps.Emitter.Emit(evt)
}

// scopeDomains restricts the crawl to the seeds' hosts when the config names
// no allowed domains and external links are off.
func scopeDomains(cfg scrape.JobConfig, seeds []string) []string {
	if len(cfg.AllowedDomains) > 0 || cfg.FollowExternalLinks {
		return cfg.AllowedDomains
	}
	seen := make(map[string]struct{}, len(seeds))
	var domains []string
	for _, u := range seeds {
		host := scrape.URLHost(u)
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		domains = append(domains, host)
	}
	return domains
}
