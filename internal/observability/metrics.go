package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/city-weather-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the dashboard surface.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// WeatherAPI call rate by endpoint (current, forecast, search) and status class.
	WeatherAPICallsTotal *prometheus.CounterVec

	// WeatherAPI latency. Watch for: p95 > 2s, which stretches every roster batch.
	WeatherAPIDuration *prometheus.HistogramVec

	// WeatherAPI failures by endpoint and error category.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Roster refresh runs by result (completed, skipped, failed).
	RosterRefreshesTotal *prometheus.CounterVec

	// Wall time of a full roster refresh including inter-batch delays.
	RosterRefreshDuration prometheus.Histogram

	// Batches processed during roster refreshes.
	RosterBatchesTotal prometheus.Counter

	// Per-city fetch outcomes (roster cities only; others go to "other").
	CityFetchesTotal *prometheus.CounterVec

	// CityCache backend errors by backend and operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Dashboard intents dispatched, by intent name.
	IntentsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// WeatherAPI lookups that joined an identical in-flight request instead of calling upstream.
	CoalescedRequestsTotal *prometheus.CounterVec

	rosterMu sync.RWMutex
	roster   map[string]struct{}

	gaugesOnce sync.Once
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
			Help: "Total number of WeatherAPI calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "WeatherAPI latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "WeatherAPI failures by endpoint and error category",
		},
		[]string{"endpoint", "category"},
	)
	RosterRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterRefreshesTotal",
			Help: "Roster refresh runs by result",
		},
		[]string{"result"},
	)
	RosterRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rosterRefreshDurationSeconds",
			Help:    "Roster refresh wall time in seconds, including inter-batch delays",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	RosterBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rosterBatchesTotal",
			Help: "Total number of roster batches processed",
		},
	)
	CityFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityFetchesTotal",
			Help: "Roster city fetches by city and result (non-roster cities use city=other)",
		},
		[]string{"city", "result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "City cache backend errors by backend and operation",
		},
		[]string{"backend", "operation"},
	)
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intentsTotal",
			Help: "Dashboard intents dispatched",
		},
		[]string{"intent"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CoalescedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "WeatherAPI lookups served by an identical in-flight request",
		},
		[]string{"endpoint"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		RosterRefreshesTotal, RosterRefreshDuration, RosterBatchesTotal, CityFetchesTotal,
		CacheErrorsTotal, IntentsTotal, RateLimitDeniedTotal, CoalescedRequestsTotal,
	)
}

// RegisterGauges registers window gauges backed by the traffic tracker and a
// cache size callback. Only the first call registers.
func RegisterGauges(tracker *traffic.Tracker, window time.Duration, cacheEntries func() float64) {
	gaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "upstreamFailuresInWindow",
					Help: "Failed WeatherAPI calls in sliding window",
				},
				func() float64 { return float64(tracker.Count(traffic.UpstreamFailed, window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window",
				},
				func() float64 { return float64(tracker.Count(traffic.Denied, window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "cityCacheEntries",
					Help: "Records currently held in the city cache",
				},
				cacheEntries,
			),
		)
	})
}

// SetRoster sets the allow-list for per-city labels.
func SetRoster(cities []string) {
	rosterMu.Lock()
	defer rosterMu.Unlock()
	roster = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		roster[normalizeCity(c)] = struct{}{}
	}
}

// RecordCityFetch records one roster fetch outcome.
func RecordCityFetch(city string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	CityFetchesTotal.WithLabelValues(CityLabel(city), result).Inc()
}

// CityLabel returns the normalized city if it is on the roster, otherwise "other".
func CityLabel(city string) string {
	c := normalizeCity(city)
	rosterMu.RLock()
	_, ok := roster[c]
	rosterMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
