package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmemory "github.com/webintel/webintel/internal/blob/memory"
	"github.com/webintel/webintel/internal/clock/system"
	"github.com/webintel/webintel/internal/embed"
	"github.com/webintel/webintel/internal/extractor"
	"github.com/webintel/webintel/internal/hash/sha256"
	"github.com/webintel/webintel/internal/id/uuid"
	"github.com/webintel/webintel/internal/scrape"
	storememory "github.com/webintel/webintel/internal/store/memory"
	"github.com/webintel/webintel/internal/vecindex"
)

type stubCollector struct {
	mu    sync.Mutex
	pages map[string]string
	delay time.Duration
}

func (s *stubCollector) Collect(ctx context.Context, kind scrape.SourceKind, url string, _ scrape.JobConfig) (scrape.RawItem, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return scrape.RawItem{}, fmt.Errorf("fetch: %w", scrape.ErrTimeout)
		case <-time.After(s.delay):
		}
	}
	s.mu.Lock()
	body, ok := s.pages[url]
	s.mu.Unlock()
	if !ok {
		return scrape.RawItem{}, fmt.Errorf("fetch %s: %w", url, scrape.ErrUnreachable)
	}
	return scrape.RawItem{
		URL:         url,
		Kind:        kind,
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(body),
	}, nil
}

type staticSeeds struct {
	urls []string
}

func (s staticSeeds) Seeds(context.Context, string, scrape.JobConfig) ([]string, error) {
	return s.urls, nil
}

func page(title, text string) string {
	return fmt.Sprintf(
		`<html><head><title>%s</title></head><body><article><p>%s</p></article></body></html>`,
		title, text,
	)
}

type fixture struct {
	ctrl  *Controller
	jobs  *storememory.JobStore
	pages *storememory.PageStore
	index *vecindex.Index
}

func newFixture(t *testing.T, col *stubCollector, seeds []string) *fixture {
	t.Helper()
	e := embed.NewHashingEmbedder(64)
	idx := vecindex.New(e.Dimension())
	jobs := storememory.NewJobStore()
	pages := storememory.NewPageStore()
	ctrl := New(Deps{
		Jobs:       jobs,
		Pages:      pages,
		Collectors: col,
		Extractor:  extractor.New(zap.NewNop()),
		Embedder:   e,
		Index:      idx,
		Blob:       blobmemory.NewBlobStore(),
		Hasher:     sha256.New(),
		Clock:      system.New(),
		IDs:        uuid.New(),
		Retry:      scrape.NewExponentialRetryPolicy(),
		Seeds:      staticSeeds{urls: seeds},
	}, Config{Workers: 2, StopGrace: 2 * time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ctrl.Close(ctx)
	})
	return &fixture{ctrl: ctrl, jobs: jobs, pages: pages, index: idx}
}

func (f *fixture) waitTerminal(t *testing.T, jobID string) scrape.JobSnapshot {
	t.Helper()
	var snap scrape.JobSnapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = f.ctrl.Status(context.Background(), jobID)
		require.NoError(t, err)
		return snap.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return snap
}

func TestController_CreateValidates(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, &stubCollector{}, nil)

	_, err := fx.ctrl.CreateJob(context.Background(), "  ", scrape.JobConfig{})
	require.ErrorIs(t, err, scrape.ErrInvalidConfig)

	_, err = fx.ctrl.CreateJob(context.Background(), "battery storage", scrape.JobConfig{MaxDepth: -1})
	require.ErrorIs(t, err, scrape.ErrInvalidConfig)

	job, err := fx.ctrl.CreateJob(context.Background(), "battery storage", scrape.JobConfig{MaxDepth: 1})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, scrape.JobStatusPending, job.Status)
}

func TestController_RunToCompletion(t *testing.T) {
	t.Parallel()
	col := &stubCollector{pages: map[string]string{
		"https://example.com/a": page("Grid storage", "grid scale battery storage capacity is growing fast"),
		"https://example.com/b": page("Pumped hydro", "pumped hydro remains the largest storage technology"),
	}}
	fx := newFixture(t, col, []string{"https://example.com/a", "https://example.com/b"})

	job, err := fx.ctrl.CreateJob(context.Background(), "battery storage capacity", scrape.JobConfig{MaxDepth: 0})
	require.NoError(t, err)
	require.NoError(t, fx.ctrl.Start(context.Background(), job.ID))

	snap := fx.waitTerminal(t, job.ID)
	require.Equal(t, scrape.JobStatusCompleted, snap.Status)
	require.Equal(t, 2, snap.Counters.PagesCrawled)

	_, total, err := fx.pages.ListPages(context.Background(), job.ID, scrape.PageListOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, 2, fx.index.Len())
}

func TestController_StartRequiresPending(t *testing.T) {
	t.Parallel()
	col := &stubCollector{pages: map[string]string{
		"https://example.com/a": page("A", "short but extractable body text here"),
	}}
	fx := newFixture(t, col, []string{"https://example.com/a"})

	job, err := fx.ctrl.CreateJob(context.Background(), "anything at all", scrape.JobConfig{})
	require.NoError(t, err)
	require.NoError(t, fx.ctrl.Start(context.Background(), job.ID))
	fx.waitTerminal(t, job.ID)

	err = fx.ctrl.Start(context.Background(), job.ID)
	require.ErrorIs(t, err, scrape.ErrInvalidState)

	err = fx.ctrl.Start(context.Background(), "no-such-job")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestController_PauseResume(t *testing.T) {
	t.Parallel()
	pages := make(map[string]string, 20)
	seeds := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://example.com/p%d", i)
		pages[u] = page(fmt.Sprintf("P%d", i), "body text long enough to embed and store")
		seeds = append(seeds, u)
	}
	col := &stubCollector{pages: pages, delay: 20 * time.Millisecond}
	fx := newFixture(t, col, seeds)

	job, err := fx.ctrl.CreateJob(context.Background(), "steady crawl", scrape.JobConfig{Concurrency: 1})
	require.NoError(t, err)
	require.NoError(t, fx.ctrl.Start(context.Background(), job.ID))

	snap, err := fx.ctrl.Pause(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusPaused, snap.Status)

	// Pausing a paused job is an illegal transition.
	_, err = fx.ctrl.Pause(context.Background(), job.ID)
	require.ErrorIs(t, err, scrape.ErrInvalidState)

	snap, err = fx.ctrl.Resume(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusRunning, snap.Status)

	// Resuming a running job is a no-op, not an error.
	snap, err = fx.ctrl.Resume(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusRunning, snap.Status)

	snap = fx.waitTerminal(t, job.ID)
	require.Equal(t, scrape.JobStatusCompleted, snap.Status)
	require.Equal(t, 20, snap.Counters.PagesCrawled)
}

func TestController_StopIsTerminal(t *testing.T) {
	t.Parallel()
	pages := make(map[string]string, 50)
	seeds := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		u := fmt.Sprintf("https://example.com/s%d", i)
		pages[u] = page(fmt.Sprintf("S%d", i), "body text long enough to embed and store")
		seeds = append(seeds, u)
	}
	col := &stubCollector{pages: pages, delay: 20 * time.Millisecond}
	fx := newFixture(t, col, seeds)

	job, err := fx.ctrl.CreateJob(context.Background(), "stoppable crawl", scrape.JobConfig{Concurrency: 1})
	require.NoError(t, err)
	require.NoError(t, fx.ctrl.Start(context.Background(), job.ID))

	snap, err := fx.ctrl.Stop(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusStopped, snap.Status)

	_, err = fx.ctrl.Pause(context.Background(), job.ID)
	require.ErrorIs(t, err, scrape.ErrInvalidState)
	_, err = fx.ctrl.Resume(context.Background(), job.ID)
	require.ErrorIs(t, err, scrape.ErrInvalidState)
	_, err = fx.ctrl.Stop(context.Background(), job.ID)
	require.ErrorIs(t, err, scrape.ErrInvalidState)
}

func TestController_StopPendingJob(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, &stubCollector{}, []string{"https://example.com/a"})

	job, err := fx.ctrl.CreateJob(context.Background(), "never started", scrape.JobConfig{})
	require.NoError(t, err)

	snap, err := fx.ctrl.Stop(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusStopped, snap.Status)
}

func TestController_DeleteRequiresTerminal(t *testing.T) {
	t.Parallel()
	col := &stubCollector{pages: map[string]string{
		"https://example.com/a": page("A", "page body text that embeds cleanly enough"),
	}}
	fx := newFixture(t, col, []string{"https://example.com/a"})

	job, err := fx.ctrl.CreateJob(context.Background(), "delete me later", scrape.JobConfig{})
	require.NoError(t, err)
	require.ErrorIs(t, fx.ctrl.Delete(context.Background(), job.ID), scrape.ErrInvalidState)

	require.NoError(t, fx.ctrl.Start(context.Background(), job.ID))
	fx.waitTerminal(t, job.ID)
	require.Equal(t, 1, fx.index.Len())

	require.NoError(t, fx.ctrl.Delete(context.Background(), job.ID))
	require.Zero(t, fx.index.Len(), "deleting a run prunes its vectors from the index")

	_, err = fx.ctrl.Status(context.Background(), job.ID)
	require.ErrorIs(t, err, scrape.ErrNotFound)
	_, total, err := fx.pages.ListPages(context.Background(), job.ID, scrape.PageListOptions{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestController_Search(t *testing.T) {
	t.Parallel()
	col := &stubCollector{pages: map[string]string{
		"https://example.com/solar": page("Solar", "solar photovoltaic panels convert sunlight into electricity"),
		"https://example.com/wind":  page("Wind", "wind turbines generate electricity from moving air"),
		"https://example.com/bread": page("Bread", "sourdough bread baking requires patience and flour"),
	}}
	fx := newFixture(t, col, []string{
		"https://example.com/solar",
		"https://example.com/wind",
		"https://example.com/bread",
	})

	job, err := fx.ctrl.CreateJob(context.Background(), "renewable electricity", scrape.JobConfig{})
	require.NoError(t, err)
	require.NoError(t, fx.ctrl.Start(context.Background(), job.ID))
	fx.waitTerminal(t, job.ID)

	_, err = fx.ctrl.Search(context.Background(), "", "", 5)
	require.ErrorIs(t, err, scrape.ErrInvalidConfig)

	results, err := fx.ctrl.Search(context.Background(), "solar panels sunlight electricity", "", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "https://example.com/solar", results[0].URL)
	for i, r := range results {
		require.GreaterOrEqual(t, r.Score, 0.0)
		require.LessOrEqual(t, r.Score, 1.0)
		if i > 0 {
			require.GreaterOrEqual(t, results[i-1].Score, r.Score, "results sorted by descending score")
		}
	}

	scoped, err := fx.ctrl.Search(context.Background(), "wind turbines electricity", job.ID, 10)
	require.NoError(t, err)
	require.Len(t, scoped, 3)
	require.Equal(t, "https://example.com/wind", scoped[0].URL)

	_, err = fx.ctrl.Search(context.Background(), "anything", "no-such-run", 5)
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestController_SearchSingleTermQuery(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, &stubCollector{}, nil)
	ctx := context.Background()

	e := embed.NewHashingEmbedder(64)
	vec, err := e.Embed("golang concurrency patterns and goroutine scheduling")
	require.NoError(t, err)
	saved := scrape.Page{
		ID: "p1", JobID: "job-1", URL: "https://example.com/go",
		Title: "Go", Text: "golang concurrency", CrawledAt: time.Now().UTC(),
	}
	require.NoError(t, fx.pages.SavePage(ctx, saved, nil))
	require.NoError(t, fx.pages.AttachEmbedding(ctx, "p1", "e1", vec, nil))
	require.NoError(t, fx.index.Upsert("e1", vec))

	results, err := fx.ctrl.Search(ctx, "golang", "", 5)
	require.NoError(t, err, "a one-word query is valid input")
	require.Len(t, results, 1)

	_, err = fx.ctrl.Search(ctx, "!!! ...", "", 5)
	require.ErrorIs(t, err, scrape.ErrInvalidConfig, "token-less query is a client error")
}

func TestController_SearchTieBreaksOnEarlierCrawl(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, &stubCollector{}, nil)
	ctx := context.Background()

	e := embed.NewHashingEmbedder(64)
	vec, err := e.Embed("identical body text shared by both pages")
	require.NoError(t, err)

	base := time.Now().UTC()
	// The earlier crawl carries the lexically larger IDs, so any ID-ordered
	// ranking would put it last.
	earlier := scrape.Page{
		ID: "p-z", JobID: "job-1", URL: "https://example.com/first",
		Title: "First", Text: "identical body text", CrawledAt: base,
	}
	later := scrape.Page{
		ID: "p-a", JobID: "job-1", URL: "https://example.com/second",
		Title: "Second", Text: "identical body text", CrawledAt: base.Add(time.Minute),
	}
	require.NoError(t, fx.pages.SavePage(ctx, earlier, nil))
	require.NoError(t, fx.pages.SavePage(ctx, later, nil))
	require.NoError(t, fx.pages.AttachEmbedding(ctx, earlier.ID, "e-z", vec, nil))
	require.NoError(t, fx.pages.AttachEmbedding(ctx, later.ID, "e-a", vec, nil))
	require.NoError(t, fx.index.Upsert("e-z", vec))
	require.NoError(t, fx.index.Upsert("e-a", vec))

	now := time.Now().UTC()
	job := scrape.Job{ID: "job-1", Query: "shared text", Status: scrape.JobStatusCompleted, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, fx.jobs.CreateJob(ctx, job))

	results, err := fx.ctrl.Search(ctx, "identical body text shared", "", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, earlier.ID, results[0].PageID, "equal scores rank the earlier crawl first")

	scoped, err := fx.ctrl.Search(ctx, "identical body text shared", "job-1", 5)
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	require.Equal(t, earlier.ID, scoped[0].PageID)
}

func TestController_RecoverReschedulesPendingAndFailsStale(t *testing.T) {
	t.Parallel()
	col := &stubCollector{pages: map[string]string{
		"https://example.com/a": page("A", "recovered crawl page body text here"),
	}}
	fx := newFixture(t, col, []string{"https://example.com/a"})

	now := time.Now().UTC()
	pending := scrape.Job{
		ID: "pending-1", Query: "left behind", Status: scrape.JobStatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	stale := scrape.Job{
		ID: "stale-1", Query: "was running", Status: scrape.JobStatusRunning,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, fx.jobs.CreateJob(context.Background(), pending))
	require.NoError(t, fx.jobs.CreateJob(context.Background(), stale))

	require.NoError(t, fx.ctrl.Recover(context.Background()))

	snap := fx.waitTerminal(t, "pending-1")
	require.Equal(t, scrape.JobStatusCompleted, snap.Status)

	staleSnap, err := fx.ctrl.Status(context.Background(), "stale-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFailed, staleSnap.Status)
}
