package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/webintel/webintel/internal/progress"
)

// PrometheusSink exports run progress metrics via Prometheus. It owns all
// collectors for runs started/completed/active and per-site page counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pageFetches   *prometheus.CounterVec
	pageFailures  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrape_runs_started_total",
			Help: "Total runs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_runs_completed_total",
			Help: "Total runs finished partitioned by outcome.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrape_runs_active",
			Help: "Current number of active runs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrape_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"outcome"}),
		pageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_page_fetches_total",
			Help: "Page fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		pageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_page_failures_total",
			Help: "Pages that failed after retries, partitioned by site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrape_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "status_class"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.pageFetches,
		s.pageFailures,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStarted:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobCompleted, progress.StageJobFailed, progress.StageJobStopped:
		s.handleTerminal(evt)
	case progress.StagePageFetched:
		s.handlePageFetched(evt)
	case progress.StagePageFailed:
		s.pageFailures.WithLabelValues(siteLabel(evt.Site)).Inc()
	}
}

func (s *PrometheusSink) handleTerminal(evt progress.Event) {
	outcome := map[progress.Stage]string{
		progress.StageJobCompleted: "completed",
		progress.StageJobFailed:    "failed",
		progress.StageJobStopped:   "stopped",
	}[evt.Stage]
	s.jobsCompleted.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) handlePageFetched(evt progress.Event) {
	site := siteLabel(evt.Site)
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.pageFetches.WithLabelValues(site, statusClass).Inc()
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
