package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/webintel/webintel/internal/scrape"
)

// RenderedPage is the result of a headless render.
type RenderedPage struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Renderer executes a page with JavaScript enabled.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderedPage, error)
}

// RenderDetector decides whether a probe fetch needs a headless render.
type RenderDetector interface {
	NeedsRender(body []byte) bool
}

// WebConfig controls the web collector.
type WebConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Web fetches web pages. It probes with a plain HTTP GET first and promotes
// to a headless render when the probe result looks JS-rendered.
type Web struct {
	cfg           WebConfig
	baseCollector *colly.Collector
	renderer      Renderer
	detector      RenderDetector
	logger        *zap.Logger
}

// NewWeb builds a web collector. renderer and detector may be nil, in which
// case every page is served from the probe fetch.
func NewWeb(cfg WebConfig, renderer Renderer, detector RenderDetector, logger *zap.Logger) *Web {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	c.WithTransport(newHTTPTransport())
	return &Web{
		cfg:           cfg,
		baseCollector: c,
		renderer:      renderer,
		detector:      detector,
		logger:        logger,
	}
}

// Kind reports the source kind this collector serves.
func (w *Web) Kind() scrape.SourceKind { return scrape.SourceWeb }

// Collect executes a single fetch for the URL.
func (w *Web) Collect(ctx context.Context, url string, cfg scrape.JobConfig) (scrape.RawItem, error) {
	start := time.Now()
	item, err := w.probe(ctx, url, cfg)
	if err != nil {
		return scrape.RawItem{}, err
	}
	item.Duration = time.Since(start)

	if w.shouldRender(item) {
		rendered, renderErr := w.renderer.Render(ctx, url)
		if renderErr != nil {
			w.logger.Warn("headless render failed, keeping probe result",
				zap.String("url", url),
				zap.Error(renderErr),
			)
			return item, nil
		}
		item.Body = rendered.Body
		if rendered.StatusCode != 0 {
			item.StatusCode = rendered.StatusCode
		}
		item.RenderedHeadless = true
		item.Duration = time.Since(start)
	}
	return item, nil
}

func (w *Web) probe(ctx context.Context, url string, cfg scrape.JobConfig) (scrape.RawItem, error) {
	collector := w.baseCollector.Clone()
	if ua := firstNonEmpty(cfg.UserAgent, w.cfg.UserAgent); ua != "" {
		collector.UserAgent = ua
	}
	timeout := w.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		item     scrape.RawItem
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		item = scrape.RawItem{
			URL:         r.Request.URL.String(),
			Kind:        scrape.SourceWeb,
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return scrape.RawItem{}, fmt.Errorf("fetch %s: %w", url, mapFetchError(0, ctx.Err()))
	case visitErr := <-done:
		if fetchErr != nil {
			return scrape.RawItem{}, fmt.Errorf("fetch %s: %w", url, mapFetchError(status, fetchErr))
		}
		if visitErr != nil {
			return scrape.RawItem{}, fmt.Errorf("fetch %s: %w", url, mapFetchError(status, visitErr))
		}
		return item, nil
	}
}

func (w *Web) shouldRender(item scrape.RawItem) bool {
	if w.renderer == nil || w.detector == nil {
		return false
	}
	if !strings.Contains(strings.ToLower(item.ContentType), "html") {
		return false
	}
	return w.detector.NeedsRender(item.Body)
}

// mapFetchError folds transport failures into the collector error taxonomy.
// Rate limiting is kept distinct so callers can back off longer.
func mapFetchError(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %w", status, scrape.ErrRateLimited)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("status %d: %w", status, scrape.ErrTimeout)
	case status != 0:
		return fmt.Errorf("status %d: %w", status, scrape.ErrUnreachable)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, scrape.ErrTimeout)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%v: %w", err, scrape.ErrTimeout)
	default:
		return fmt.Errorf("%v: %w", err, scrape.ErrUnreachable)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
