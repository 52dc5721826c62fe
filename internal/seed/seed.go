// Package seed derives frontier start URLs for a run's query.
package seed

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/webintel/webintel/internal/scrape"
)

// Static always returns the same configured start URLs.
type Static struct {
	urls []string
}

// NewStatic builds a provider over a fixed URL list.
func NewStatic(urls []string) *Static {
	return &Static{urls: append([]string(nil), urls...)}
}

// Seeds implements scrape.SeedProvider.
func (s *Static) Seeds(_ context.Context, _ string, _ scrape.JobConfig) ([]string, error) {
	if len(s.urls) == 0 {
		return nil, fmt.Errorf("%w: no seed urls configured", scrape.ErrInvalidConfig)
	}
	return append([]string(nil), s.urls...), nil
}

// Template expands URL patterns with the escaped query text, so a run whose
// config names no start URLs still gets query-derived entry points. Patterns
// use %s as the query placeholder.
type Template struct {
	patterns []string
}

// NewTemplate builds a provider over the given patterns.
func NewTemplate(patterns []string) *Template {
	return &Template{patterns: append([]string(nil), patterns...)}
}

// Seeds implements scrape.SeedProvider.
func (t *Template) Seeds(_ context.Context, query string, _ scrape.JobConfig) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", scrape.ErrInvalidConfig)
	}
	if len(t.patterns) == 0 {
		return nil, fmt.Errorf("%w: no seed url patterns configured", scrape.ErrInvalidConfig)
	}
	escaped := url.QueryEscape(query)
	urls := make([]string, 0, len(t.patterns))
	for _, p := range t.patterns {
		if strings.Contains(p, "%s") {
			urls = append(urls, fmt.Sprintf(p, escaped))
			continue
		}
		urls = append(urls, p)
	}
	return urls, nil
}
