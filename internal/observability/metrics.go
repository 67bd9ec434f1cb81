package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Open-Meteo call rate by outcome (success, timeout, transport, malformed).
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency. p99 near the client timeout means calls are being cut off.
	WeatherAPIDuration *prometheus.HistogramVec

	// Upstream failures by taxonomy kind.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Cache lookups by result: hit, miss, expired. Hit rate = hit/(hit+miss+expired).
	CacheLookupsTotal *prometheus.CounterVec

	// Entries currently held; stale entries count until a Get removes them.
	CacheEntries prometheus.Gauge

	// Lookup terminal states: served_cache, served_upstream, not_found, upstream_unavailable.
	LookupsTotal *prometheus.CounterVec

	// Lookups per registered location. Unknown keys are labeled "unknown".
	LookupsByLocationTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of Open-Meteo forecast calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Open-Meteo latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Open-Meteo failures by kind (timeout, transport, malformed)",
		},
		[]string{"kind"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Weather cache lookups by result (hit, miss, expired)",
		},
		[]string{"result"},
	)
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cacheEntries",
			Help: "Number of entries in the weather cache",
		},
	)
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherLookupsTotal",
			Help: "Weather lookups by terminal state",
		},
		[]string{"outcome"},
	)
	LookupsByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherLookupsByLocationTotal",
			Help: "Weather lookups by location key (unregistered keys use location=unknown)",
		},
		[]string{"location"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Upstream circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheLookupsTotal, CacheEntries,
		LookupsTotal, LookupsByLocationTotal,
		RateLimitDeniedTotal, CircuitBreakerState,
	)
}

// RecordLookup records a lookup's terminal state. location should be a registered key
// or "unknown" so label cardinality stays bounded by the registry size.
func RecordLookup(location, outcome string) {
	LookupsTotal.WithLabelValues(outcome).Inc()
	LookupsByLocationTotal.WithLabelValues(location).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
