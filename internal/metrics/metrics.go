// Package metrics exposes Prometheus collectors for the ebook service.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	articlesTotal              *prometheus.CounterVec
	ebookBuildsTotal           *prometheus.CounterVec
	ebookBuildDurationSeconds  prometheus.Histogram
	ebookBytes                 prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors.
// It is safe to call this function multiple times; every observer calls it.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepub_fetch_attempts_total",
				Help: "Total number of GET attempts against the source site, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepub_articles_total",
				Help: "Articles processed by the crawl loop, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ebookBuildsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepub_ebook_builds_total",
				Help: "Ebook requests, labeled by how they were served.",
			},
			[]string{"result"},
		)

		ebookBuildDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "articlepub_ebook_build_duration_seconds",
				Help:    "Time spent crawling and assembling a fresh ebook.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		ebookBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "articlepub_ebook_bytes",
				Help: "Size of the most recently built ebook.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "articlepub_rate_limit_delay_seconds",
				Help:    "Time spent waiting for the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
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
	Init()
	return promhttp.Handler()
}

// ObserveFetch counts one fetch attempt.
func ObserveFetch(rawURL, result string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(rawURL), result).Inc()
}

// ObserveArticle counts one article outcome ("added" or "failed").
func ObserveArticle(outcome string) {
	Init()
	articlesTotal.WithLabelValues(outcome).Inc()
}

// ObserveEbookServed counts an ebook request served from cache ("cached"),
// after a rebuild ("rebuilt"), or failed ("failed").
func ObserveEbookServed(result string) {
	Init()
	ebookBuildsTotal.WithLabelValues(result).Inc()
}

// ObserveEbookBuild records the duration and size of a rebuild.
func ObserveEbookBuild(duration time.Duration, size int) {
	Init()
	ebookBuildDurationSeconds.Observe(duration.Seconds())
	ebookBytes.Set(float64(size))
}

// ObserveRateLimitDelay records a wait imposed by the rate limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
