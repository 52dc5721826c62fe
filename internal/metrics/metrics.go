// Package metrics exposes Prometheus collectors for the scrape service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesCrawledTotal          *prometheus.CounterVec
	pagesFailedTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	vectorIndexSize            prometheus.Gauge
	embeddingFailuresTotal     prometheus.Counter
	fetchRetryDelaysSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_pages_crawled_total",
				Help: "Total number of pages crawled and persisted, labeled by site.",
			},
			[]string{"site"},
		)

		pagesFailedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_pages_failed_total",
				Help: "Total number of frontier entries that failed permanently, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_jobs_total",
				Help: "Total number of runs finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_active_workers",
				Help: "Number of workers currently processing a frontier entry.",
			},
		)

		vectorIndexSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_vector_index_size",
				Help: "Number of vectors currently held by the index.",
			},
		)

		embeddingFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrape_embedding_failures_total",
				Help: "Total pages whose text could not be embedded.",
			},
		)

		fetchRetryDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_fetch_retry_delays_seconds",
				Help:    "Histogram of backoff waits before fetch retries.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageCrawled increments the crawled-pages counter.
func ObservePageCrawled(site string) {
	pagesCrawledTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObservePageFailed increments the failed-pages counter.
func ObservePageFailed(site string) {
	pagesFailedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the run counter for the given outcome.
func ObserveJob(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// SetVectorIndexSize records the current vector count.
func SetVectorIndexSize(n int) {
	vectorIndexSize.Set(float64(n))
}

// ObserveEmbeddingFailure increments the embedding failure counter.
func ObserveEmbeddingFailure() {
	embeddingFailuresTotal.Inc()
}

// ObserveRetryDelay records the duration of a backoff wait.
func ObserveRetryDelay(domain string, duration time.Duration) {
	fetchRetryDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
