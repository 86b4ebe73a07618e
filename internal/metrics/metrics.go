// Package metrics exposes Prometheus collectors for the directory crawler.
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

// Fetch kinds used as label values.
const (
	KindListing = "listing"
	KindDetail  = "detail"
)

// Listing page results used as label values.
const (
	PageResultEntities  = "entities"
	PageResultEmpty     = "empty"
	PageResultAbandoned = "abandoned"
)

var (
	crawlerFetchAttemptsTotal   *prometheus.CounterVec
	crawlerFetchDurationSeconds *prometheus.HistogramVec
	crawlerBytesTotal           *prometheus.CounterVec
	crawlerListingPagesTotal    *prometheus.CounterVec
	crawlerEntitiesTotal        *prometheus.CounterVec
	crawlerInflightFetches      prometheus.Gauge
	crawlerBatchesTotal         prometheus.Counter
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by kind, site and status code (0 for transport errors).",
			},
			[]string{"kind", "site", "code"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerListingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_listing_pages_total",
				Help: "Total number of listing pages processed, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_entities_total",
				Help: "Total number of entity fetches finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerInflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_inflight_entity_fetches",
				Help: "Number of entity fetches currently in flight.",
			},
		)

		crawlerBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_batches_total",
				Help: "Total number of entity batches dispatched.",
			},
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

// ObserveFetch records one fetch attempt. Use code 0 for transport failures.
func ObserveFetch(kind, rawURL string, code, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	crawlerFetchAttemptsTotal.WithLabelValues(kind, site, strconv.Itoa(code)).Inc()
	crawlerFetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveListingPage counts a processed listing page.
func ObserveListingPage(result string) {
	Init()
	crawlerListingPagesTotal.WithLabelValues(result).Inc()
}

// ObserveEntity counts a finished entity fetch.
func ObserveEntity(outcome string) {
	Init()
	crawlerEntitiesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBatch counts a dispatched entity batch.
func ObserveBatch() {
	Init()
	crawlerBatchesTotal.Inc()
}

// IncInflight increments the in-flight entity fetch gauge.
func IncInflight() {
	Init()
	crawlerInflightFetches.Inc()
}

// DecInflight decrements the in-flight entity fetch gauge.
func DecInflight() {
	Init()
	crawlerInflightFetches.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
