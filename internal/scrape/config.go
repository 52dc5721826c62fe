package scrape

import (
	"fmt"
	"strings"
	"time"
)

// DepthPolicy selects how strictly the frontier orders depth levels.
type DepthPolicy string

// Depth ordering policies.
const (
	// DepthStrict fully drains depth d, including in-flight work, before
	// any depth d+1 entry is dispatched.
	DepthStrict DepthPolicy = "strict"
	// DepthRelaxed dispatches from the lowest non-empty bucket and allows
	// in-flight overlap across adjacent depths.
	DepthRelaxed DepthPolicy = "relaxed"
)

// Upper bounds on caller-supplied knobs. The frontier allocates one bucket
// per depth level and the pool one goroutine per concurrency slot, so both
// need a ceiling.
const (
	MaxDepthLimit       = 100
	MaxConcurrencyLimit = 64
)

// JobConfig is the typed per-run configuration consumed by the core. It is
// validated once at job creation; unknown fields are rejected at the API
// boundary before this struct is populated.
type JobConfig struct {
	StartURLs           []string     `json:"start_urls,omitempty"`
	MaxDepth            int          `json:"max_depth"`
	MaxPages            int          `json:"max_pages,omitempty"`
	AllowedDomains      []string     `json:"allowed_domains,omitempty"`
	FollowExternalLinks bool         `json:"follow_external_links,omitempty"`
	WaitTime            float64      `json:"wait_time,omitempty"` // seconds between fetches
	Sources             []SourceKind `json:"sources,omitempty"`
	MaxItemsPerSource   int          `json:"max_items_per_source,omitempty"`
	Concurrency         int          `json:"concurrency,omitempty"`
	DepthPolicy         DepthPolicy  `json:"depth_policy,omitempty"`
	UserAgent           string       `json:"user_agent,omitempty"`
}

// Wait returns the per-fetch politeness delay.
func (c JobConfig) Wait() time.Duration {
	if c.WaitTime <= 0 {
		return 0
	}
	return time.Duration(c.WaitTime * float64(time.Second))
}

// SourceEnabled reports whether a kind is in the enabled set. An empty set
// enables web only.
func (c JobConfig) SourceEnabled(kind SourceKind) bool {
	if len(c.Sources) == 0 {
		return kind == SourceWeb
	}
	for _, s := range c.Sources {
		if s == kind {
			return true
		}
	}
	return false
}

// Validate rejects out-of-range values and unrecognized enumerations with a
// descriptive ErrInvalidConfig.
func (c JobConfig) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must be >= 0, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.MaxDepth > MaxDepthLimit {
		return fmt.Errorf("%w: max_depth must be <= %d, got %d", ErrInvalidConfig, MaxDepthLimit, c.MaxDepth)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max_pages must be >= 0, got %d", ErrInvalidConfig, c.MaxPages)
	}
	if c.MaxItemsPerSource < 0 {
		return fmt.Errorf("%w: max_items_per_source must be >= 0, got %d", ErrInvalidConfig, c.MaxItemsPerSource)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must be >= 0, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.Concurrency > MaxConcurrencyLimit {
		return fmt.Errorf("%w: concurrency must be <= %d, got %d", ErrInvalidConfig, MaxConcurrencyLimit, c.Concurrency)
	}
	if c.WaitTime < 0 {
		return fmt.Errorf("%w: wait_time must be >= 0, got %f", ErrInvalidConfig, c.WaitTime)
	}
	switch c.DepthPolicy {
	case "", DepthStrict, DepthRelaxed:
	default:
		return fmt.Errorf("%w: unknown depth_policy %q", ErrInvalidConfig, c.DepthPolicy)
	}
	known := KnownSourceKinds()
	for _, s := range c.Sources {
		found := false
		for _, k := range known {
			if s == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown source kind %q", ErrInvalidConfig, s)
		}
	}
	for _, raw := range c.StartURLs {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("%w: empty start url", ErrInvalidConfig)
		}
		if _, err := NormalizeURL(raw); err != nil {
			return fmt.Errorf("%w: start url %q: %v", ErrInvalidConfig, raw, err)
		}
	}
	for _, d := range c.AllowedDomains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("%w: empty allowed domain", ErrInvalidConfig)
		}
	}
	return nil
}
