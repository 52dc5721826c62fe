// Package collector implements source-kind dispatch and the fetch strategies
// behind it.
package collector

import (
	"context"
	"fmt"

	"github.com/webintel/webintel/internal/scrape"
)

// Registry routes collect calls to the collector registered for a source kind.
type Registry struct {
	collectors map[scrape.SourceKind]scrape.Collector
}

// NewRegistry builds a registry from the given collectors. Later entries
// with the same kind win.
func NewRegistry(collectors ...scrape.Collector) *Registry {
	m := make(map[scrape.SourceKind]scrape.Collector, len(collectors))
	for _, c := range collectors {
		m[c.Kind()] = c
	}
	return &Registry{collectors: m}
}

// Collect dispatches to the collector for the entry's kind. Kinds the run's
// config leaves disabled never reach a collector.
func (r *Registry) Collect(ctx context.Context, kind scrape.SourceKind, url string, cfg scrape.JobConfig) (scrape.RawItem, error) {
	if !cfg.SourceEnabled(kind) {
		return scrape.RawItem{}, fmt.Errorf("source kind %q disabled for this run: %w", kind, scrape.ErrUnsupported)
	}
	c, ok := r.collectors[kind]
	if !ok {
		return scrape.RawItem{}, fmt.Errorf("source kind %q: %w", kind, scrape.ErrUnsupported)
	}
	return c.Collect(ctx, url, cfg)
}

// Kinds lists the registered source kinds.
func (r *Registry) Kinds() []scrape.SourceKind {
	kinds := make([]scrape.SourceKind, 0, len(r.collectors))
	for k := range r.collectors {
		kinds = append(kinds, k)
	}
	return kinds
}
