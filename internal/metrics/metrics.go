package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbvision_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbvision_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbvision_catalog_fetches_total",
			Help: "Upstream catalog fetches by outcome.",
		},
		[]string{"outcome"},
	)

	catalogFetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbvision_catalog_fetch_duration_seconds",
			Help:    "Upstream catalog fetch duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	decodedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbvision_decoded_records_total",
			Help: "Element sets decoded from catalog responses.",
		},
	)

	skippedGroupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbvision_skipped_groups_total",
			Help: "Three-line groups dropped as malformed during decoding.",
		},
	)

	catalogCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbvision_catalog_cache_hits_total",
			Help: "Catalog response cache hits.",
		},
	)

	catalogCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbvision_catalog_cache_misses_total",
			Help: "Catalog response cache misses.",
		},
	)

	catalogCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbvision_catalog_cache_entries",
			Help: "Catalog responses currently cached.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogFetchesTotal,
		catalogFetchDurationSeconds,
		decodedRecordsTotal,
		skippedGroupsTotal,
		catalogCacheHitsTotal,
		catalogCacheMissesTotal,
		catalogCacheEntries,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncCatalogFetch counts one upstream fetch with the given outcome
// ("ok", "status_error", "timeout", "invalid", "error").
func IncCatalogFetch(outcome string) {
	catalogFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCatalogFetchDuration records how long an upstream fetch took.
func ObserveCatalogFetchDuration(d time.Duration) {
	catalogFetchDurationSeconds.Observe(d.Seconds())
}

// AddDecodedRecords adds n decoded element sets.
func AddDecodedRecords(n int) {
	decodedRecordsTotal.Add(float64(n))
}

// AddSkippedGroups adds n groups dropped by the decoder.
func AddSkippedGroups(n int) {
	skippedGroupsTotal.Add(float64(n))
}

func IncCatalogCacheHits()   { catalogCacheHitsTotal.Inc() }
func IncCatalogCacheMisses() { catalogCacheMissesTotal.Inc() }

// SetCatalogCacheEntries publishes the current cache size.
func SetCatalogCacheEntries(n int) {
	catalogCacheEntries.Set(float64(n))
}

// knownRoutes are exact paths reported as their own label.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/gp":            true,
	"/api/v1/gp/elements":   true,
	"/api/v1/gp/iss":        true,
	"/api/v1/gp/active":     true,
	"/api/v1/gp/vocabulary": true,
}

const catnrPrefix = "/api/v1/gp/catnr/"

// normalizeRoute maps a request path to a bounded label set so arbitrary
// paths cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, catnrPrefix); ok && rest != "" && !strings.Contains(rest, "/") {
		return catnrPrefix + ":catalog_number"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
