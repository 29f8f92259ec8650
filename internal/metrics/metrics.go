// Package metrics exposes Prometheus collectors for the ingestion and query
// service.
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
	documentsIngestedTotal     *prometheus.CounterVec
	chunksStoredTotal          prometheus.Counter
	downloadsTotal             *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	queriesTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpRequestsInFlight       prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siepe_documents_ingested_total",
				Help: "Documents processed by the ingestor, labeled by status.",
			},
			[]string{"status"},
		)

		chunksStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "siepe_chunks_stored_total",
				Help: "Chunks embedded and written to the vector store.",
			},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siepe_downloads_total",
				Help: "Source document downloads, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siepe_download_bytes_total",
				Help: "Bytes written to disk by source downloads, labeled by site.",
			},
			[]string{"site"},
		)

		queriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siepe_queries_total",
				Help: "Questions answered, labeled by outcome.",
			},
			[]string{"outcome"},
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

		httpRequestsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served. Uploads and queries can hold for minutes.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siepe_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
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

// ObserveIngest records one document outcome and the chunks it stored.
func ObserveIngest(status string, chunks int) {
	Init()
	documentsIngestedTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		chunksStoredTotal.Add(float64(chunks))
	}
}

// ObserveDownload records one source download.
func ObserveDownload(rawURL string, status string, bytesWritten int64) {
	Init()
	site := SanitizeSite(rawURL)
	downloadsTotal.WithLabelValues(site, status).Inc()
	if bytesWritten > 0 {
		downloadBytesTotal.WithLabelValues(site).Add(float64(bytesWritten))
	}
}

// ObserveQuery records how a question was resolved.
func ObserveQuery(outcome string) {
	Init()
	queriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
