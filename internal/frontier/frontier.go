// Package frontier implements the depth-bucketed pending-work queue for one run.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/webintel/webintel/internal/scrape"
)

// ErrExhausted signals that no work remains: every bucket is empty, nothing
// is in flight, or the page budget is spent.
var ErrExhausted = errors.New("frontier exhausted")

// Config controls admission and ordering.
type Config struct {
	MaxDepth          int
	MaxPages          int // 0 means unlimited
	AllowedDomains    []string
	FollowExternal    bool
	Policy            scrape.DepthPolicy
	MaxAttempts       int // retry bound per entry, default 3
	MaxItemsPerSource int // 0 means unlimited
}

// Frontier owns the queued/in-flight bookkeeping for a single run. All
// methods are safe for concurrent use by the run's workers.
type Frontier struct {
	mu      sync.Mutex
	wake    chan struct{}
	cfg     Config
	buckets [][]scrape.FrontierEntry
	visited map[string]struct{}

	inflight      []int
	inflightTotal int
	queuedTotal   int
	crawled       int
	failed        int
	reserved      int
	perKind       map[scrape.SourceKind]int
	failedEntries []scrape.FrontierEntry
	closed        bool
}

// New builds an empty Frontier.
func New(cfg Config) *Frontier {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Policy == "" {
		cfg.Policy = scrape.DepthStrict
	}
	return &Frontier{
		wake:     make(chan struct{}),
		cfg:      cfg,
		buckets:  make([][]scrape.FrontierEntry, cfg.MaxDepth+1),
		visited:  make(map[string]struct{}),
		inflight: make([]int, cfg.MaxDepth+1),
		perKind:  make(map[scrape.SourceKind]int),
	}
}

// Seed enqueues the start URLs at depth zero and returns how many were
// accepted after normalization and deduplication.
func (f *Frontier) Seed(urls []string, kind scrape.SourceKind) int {
	added := 0
	for _, u := range urls {
		if f.Enqueue(u, 0, kind, "") {
			added++
		}
	}
	return added
}

// Enqueue admits a discovered URL at the given depth. The URL is normalized
// and silently dropped when already seen, out of scope, or too deep.
func (f *Frontier) Enqueue(rawURL string, depth int, kind scrape.SourceKind, discoveredBy string) bool {
	norm, err := scrape.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if depth < 0 || depth > f.cfg.MaxDepth {
		return false
	}
	host := scrape.URLHost(norm)
	if !f.cfg.FollowExternal && !scrape.DomainAllowed(host, f.cfg.AllowedDomains) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, seen := f.visited[norm]; seen {
		return false
	}
	f.visited[norm] = struct{}{}
	f.buckets[depth] = append(f.buckets[depth], scrape.FrontierEntry{
		URL:          norm,
		Domain:       host,
		Depth:        depth,
		Kind:         kind,
		DiscoveredBy: discoveredBy,
		Status:       scrape.EntryQueued,
	})
	f.queuedTotal++
	f.wakeAllLocked()
	return true
}

// Next blocks until an entry is eligible for dispatch, the frontier is
// exhausted (ErrExhausted), or the context ends. The returned lease holds a
// page-budget reservation until Complete or Fail is called.
func (f *Frontier) Next(ctx context.Context) (*Lease, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, ErrExhausted
		}
		if f.cfg.MaxPages > 0 && f.crawled >= f.cfg.MaxPages {
			f.mu.Unlock()
			return nil, ErrExhausted
		}

		if f.cfg.MaxPages > 0 && f.crawled+f.reserved >= f.cfg.MaxPages {
			// Budget committed to in-flight work; a failure may free a slot.
			if f.inflightTotal == 0 {
				f.mu.Unlock()
				return nil, ErrExhausted
			}
			ch := f.wake
			f.mu.Unlock()
			if err := waitWake(ctx, ch); err != nil {
				return nil, err
			}
			continue
		}

		depth, ok, blocked := f.pickDepthLocked()
		if ok {
			entry := f.buckets[depth][0]
			f.buckets[depth] = f.buckets[depth][1:]
			f.queuedTotal--

			if cap := f.cfg.MaxItemsPerSource; cap > 0 && f.perKind[entry.Kind] >= cap {
				// Per-source budget spent; drop and keep scanning.
				f.wakeAllLocked()
				f.mu.Unlock()
				continue
			}

			entry.Status = scrape.EntryInFlight
			f.inflight[depth]++
			f.inflightTotal++
			f.reserved++
			f.perKind[entry.Kind]++
			f.mu.Unlock()
			return &Lease{Entry: entry, f: f}, nil
		}
		if !blocked && f.inflightTotal == 0 {
			f.mu.Unlock()
			return nil, ErrExhausted
		}
		ch := f.wake
		f.mu.Unlock()
		if err := waitWake(ctx, ch); err != nil {
			return nil, err
		}
	}
}

// pickDepthLocked finds the next dispatchable bucket. blocked reports that a
// shallower depth still has in-flight work under the strict policy, so deeper
// buckets must wait.
func (f *Frontier) pickDepthLocked() (depth int, ok, blocked bool) {
	for d := 0; d <= f.cfg.MaxDepth; d++ {
		if len(f.buckets[d]) > 0 {
			return d, true, false
		}
		if f.cfg.Policy == scrape.DepthStrict && f.inflight[d] > 0 {
			return 0, false, true
		}
	}
	return 0, false, false
}

// Close discards all pending work. Subsequent Next calls return ErrExhausted.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for d := range f.buckets {
		f.buckets[d] = nil
	}
	f.queuedTotal = 0
	f.wakeAllLocked()
}

// Stats is a point-in-time snapshot of frontier progress.
type Stats struct {
	Queued   int
	InFlight int
	Crawled  int
	Failed   int
	Visited  int
}

// Snapshot returns current progress numbers.
func (f *Frontier) Snapshot() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Queued:   f.queuedTotal,
		InFlight: f.inflightTotal,
		Crawled:  f.crawled,
		Failed:   f.failed,
		Visited:  len(f.visited),
	}
}

// FailedEntries returns the entries that exhausted their retry budget.
func (f *Frontier) FailedEntries() []scrape.FrontierEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scrape.FrontierEntry, len(f.failedEntries))
	copy(out, f.failedEntries)
	return out
}

func (f *Frontier) wakeAllLocked() {
	close(f.wake)
	f.wake = make(chan struct{})
}

func waitWake(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("frontier wait: %w", ctx.Err())
	case <-ch:
		return nil
	}
}

// Lease is one dispatched entry plus its page-budget reservation.
type Lease struct {
	Entry scrape.FrontierEntry

	f    *Frontier
	once sync.Once
}

// Complete marks the entry done and consumes one page-budget slot.
func (l *Lease) Complete() {
	l.once.Do(func() {
		f := l.f
		f.mu.Lock()
		defer f.mu.Unlock()
		f.inflight[l.Entry.Depth]--
		f.inflightTotal--
		f.reserved--
		f.crawled++
		f.wakeAllLocked()
	})
}

// Release returns the entry to its depth bucket untouched, without charging
// an attempt. Workers use it to hand back work they never started.
func (l *Lease) Release() {
	l.once.Do(func() {
		f := l.f
		f.mu.Lock()
		defer f.mu.Unlock()
		f.inflight[l.Entry.Depth]--
		f.inflightTotal--
		f.reserved--
		f.perKind[l.Entry.Kind]--

		entry := l.Entry
		if !f.closed {
			entry.Status = scrape.EntryQueued
			f.buckets[entry.Depth] = append(f.buckets[entry.Depth], entry)
			f.queuedTotal++
		} else {
			entry.Status = scrape.EntryFailed
			f.failed++
			f.failedEntries = append(f.failedEntries, entry)
		}
		f.wakeAllLocked()
	})
}

// Fail releases the budget slot. When retry is true and attempts remain the
// entry is requeued at its depth; otherwise it is recorded as failed. The
// return value reports whether the entry was requeued.
func (l *Lease) Fail(retry bool) bool {
	requeued := false
	l.once.Do(func() {
		f := l.f
		f.mu.Lock()
		defer f.mu.Unlock()
		f.inflight[l.Entry.Depth]--
		f.inflightTotal--
		f.reserved--
		f.perKind[l.Entry.Kind]--

		entry := l.Entry
		entry.Attempts++
		if retry && entry.Attempts < f.cfg.MaxAttempts && !f.closed {
			entry.Status = scrape.EntryQueued
			f.buckets[entry.Depth] = append(f.buckets[entry.Depth], entry)
			f.queuedTotal++
			requeued = true
		} else {
			entry.Status = scrape.EntryFailed
			f.failed++
			f.failedEntries = append(f.failedEntries, entry)
		}
		f.wakeAllLocked()
	})
	return requeued
}
