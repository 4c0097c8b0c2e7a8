package prometheus

import (
	"strconv"
	"time"
)

// Route cache lookup outcomes.
const (
	RouteCacheHit    = "hit"
	RouteCacheMiss   = "miss"
	RouteCacheShared = "shared"
	RouteCacheStale  = "stale"
	RouteCacheFailed = "failed"
)

// Search outcomes.
const (
	SearchOK            = "ok"
	SearchInvalidInput  = "invalid_input"
	SearchNoCommuteArea = "no_commute_area"
	SearchUpstreamError = "upstream_error"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Upstream collaborators
	UpstreamRequestsTotal   CounterVec
	UpstreamRequestDuration HistogramVec

	// Route enrichment
	RouteCacheRequestsTotal      CounterVec
	RouteCacheInvalidationsTotal CounterVec
	RouteStoreAccessTotal        CounterVec

	// Sessions
	SessionsActive       GaugeVec
	SessionsCreatedTotal CounterVec
	SessionsEvictedTotal CounterVec

	// Overlay
	SearchesTotal        CounterVec
	SearchDuration       HistogramVec
	ReachabilityFeatures HistogramVec
	ListingsReturned     HistogramVec
	ListingsDisplaced    CounterVec
	PickOutcomesTotal    CounterVec

	// System Health
	ErrorsTotal CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultUpstreamDurationBuckets = []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20}
	DefaultSizeBuckets             = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	DefaultCountBuckets            = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// Upstream
	m.UpstreamRequestsTotal = collector.RegisterCounter("upstream_requests_total", "Requests sent to collaborator services", "endpoint", "status_code")
	m.UpstreamRequestDuration = collector.RegisterHistogram("upstream_request_duration_seconds", "Collaborator request duration", DefaultUpstreamDurationBuckets, "endpoint")

	// Routes
	m.RouteCacheRequestsTotal = collector.RegisterCounter("route_cache_requests_total", "Route cache lookups by outcome", "result")
	m.RouteCacheInvalidationsTotal = collector.RegisterCounter("route_cache_invalidations_total", "Route cache invalidations")
	m.RouteStoreAccessTotal = collector.RegisterCounter("route_store_access_total", "Shared route store lookups by outcome", "result")

	// Sessions
	m.SessionsActive = collector.RegisterGauge("sessions_active", "Live map sessions")
	m.SessionsCreatedTotal = collector.RegisterCounter("sessions_created_total", "Map sessions created")
	m.SessionsEvictedTotal = collector.RegisterCounter("sessions_evicted_total", "Map sessions evicted after idling", "reason")

	// Overlay
	m.SearchesTotal = collector.RegisterCounter("searches_total", "Searches by outcome", "outcome")
	m.SearchDuration = collector.RegisterHistogram("search_duration_seconds", "End-to-end search duration", DefaultUpstreamDurationBuckets, "outcome")
	m.ReachabilityFeatures = collector.RegisterHistogram("reachability_features", "Features per isoline response", DefaultCountBuckets)
	m.ListingsReturned = collector.RegisterHistogram("listings_returned", "Listings with coordinates per search", DefaultCountBuckets)
	m.ListingsDisplaced = collector.RegisterCounter("listings_displaced_total", "Listings moved off a shared coordinate")
	m.PickOutcomesTotal = collector.RegisterCounter("pick_outcomes_total", "Map picks by outcome", "outcome")

	// System Health
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// NewNoopAppMetrics returns AppMetrics backed by a no-op collector.
func NewNoopAppMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

// Helpers. All of them tolerate a nil *AppMetrics.

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, respSize int64) {
	if metrics == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if respSize >= 0 {
		metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
	}
}

// RecordUpstreamCall records one collaborator round trip. A zero status
// means the request never got a response.
func RecordUpstreamCall(metrics *AppMetrics, endpoint string, statusCode int, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	if statusCode == 0 {
		status = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("upstream", endpoint).Inc()
	}
}

func RecordRouteCache(metrics *AppMetrics, result string) {
	if metrics == nil {
		return
	}
	metrics.RouteCacheRequestsTotal.WithLabelValues(result).Inc()
}

func RecordRouteCacheInvalidation(metrics *AppMetrics) {
	if metrics == nil {
		return
	}
	metrics.RouteCacheInvalidationsTotal.WithLabelValues().Inc()
}

func RecordRouteStoreAccess(metrics *AppMetrics, hit bool, err error) {
	if metrics == nil {
		return
	}
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	metrics.RouteStoreAccessTotal.WithLabelValues(result).Inc()
}

func RecordSessionCreated(metrics *AppMetrics) {
	if metrics == nil {
		return
	}
	metrics.SessionsCreatedTotal.WithLabelValues().Inc()
	metrics.SessionsActive.WithLabelValues().Inc()
}

// RecordSessionRemoved decrements the live gauge. reason is "idle" for sweeps
// and "deleted" for explicit deletes; only sweeps count as evictions.
func RecordSessionRemoved(metrics *AppMetrics, reason string) {
	if metrics == nil {
		return
	}
	metrics.SessionsActive.WithLabelValues().Dec()
	if reason != "deleted" {
		metrics.SessionsEvictedTotal.WithLabelValues(reason).Inc()
	}
}

func RecordSearch(metrics *AppMetrics, outcome string, duration time.Duration, features, listings int) {
	if metrics == nil {
		return
	}
	metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	metrics.SearchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == SearchOK {
		metrics.ReachabilityFeatures.WithLabelValues().Observe(float64(features))
		metrics.ListingsReturned.WithLabelValues().Observe(float64(listings))
	}
}

func RecordListingsDisplaced(metrics *AppMetrics, n int) {
	if metrics == nil || n <= 0 {
		return
	}
	metrics.ListingsDisplaced.WithLabelValues().Add(float64(n))
}

func RecordPick(metrics *AppMetrics, outcome string) {
	if metrics == nil {
		return
	}
	metrics.PickOutcomesTotal.WithLabelValues(outcome).Inc()
}

func RecordError(metrics *AppMetrics, component, errorType string) {
	if metrics == nil {
		return
	}
	metrics.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
