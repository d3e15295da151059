// Package metrics exposes Prometheus collectors for the lead enrichment service.
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
	fetchRequestsTotal         *prometheus.CounterVec
	fetchRateLimitDelaySeconds *prometheus.HistogramVec
	robotsBlockedTotal         *prometheus.CounterVec
	providerCallsTotal         *prometheus.CounterVec
	providerCircuitTripsTotal  *prometheus.CounterVec
	budgetSpentMicros          *prometheus.CounterVec
	leadsAcceptedTotal         *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_fetch_requests_total",
				Help: "Outbound HTTP requests, labeled by host and status class.",
			},
			[]string{"host", "status_class"},
		)

		fetchRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_fetch_rate_limit_delay_seconds",
				Help:    "Time spent waiting for per-host spacing or Retry-After.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host", "reason"},
		)

		robotsBlockedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_robots_blocked_total",
				Help: "Requests refused because robots.txt disallows the path.",
			},
			[]string{"host"},
		)

		providerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_provider_calls_total",
				Help: "Provider searches, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		providerCircuitTripsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_provider_circuit_trips_total",
				Help: "Times a provider disabled itself after a plan or authorization error.",
			},
			[]string{"provider"},
		)

		budgetSpentMicros = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_budget_spent_micros_total",
				Help: "Budget spent in micro-units, labeled by operation.",
			},
			[]string{"operation"},
		)

		leadsAcceptedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_accepted_total",
				Help: "Leads that passed filtering, labeled by source.",
			},
			[]string{"source"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_runs_total",
				Help: "Enrichment runs, labeled by stop reason.",
			},
			[]string{"stop_reason"},
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

// StatusClass buckets a status code into "2xx", "4xx", ...; 0 maps to "error".
func StatusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one outbound request.
func ObserveFetch(host string, code int) {
	Init()
	fetchRequestsTotal.WithLabelValues(SanitizeSite(host), StatusClass(code)).Inc()
}

// ObserveRateLimitDelay records time spent waiting before a request.
func ObserveRateLimitDelay(host, reason string, d time.Duration) {
	Init()
	fetchRateLimitDelaySeconds.WithLabelValues(SanitizeSite(host), reason).Observe(d.Seconds())
}

// ObserveRobotsBlocked counts a request refused by robots policy.
func ObserveRobotsBlocked(host string) {
	Init()
	robotsBlockedTotal.WithLabelValues(SanitizeSite(host)).Inc()
}

// ObserveProviderCall counts a provider search outcome ("ok", "empty", "error", "disabled").
func ObserveProviderCall(provider, outcome string) {
	Init()
	providerCallsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveCircuitTrip counts a provider circuit breaker trip.
func ObserveCircuitTrip(provider string) {
	Init()
	providerCircuitTripsTotal.WithLabelValues(provider).Inc()
}

// ObserveSpend records budget consumption in micro-units.
func ObserveSpend(operation string, micros int64) {
	Init()
	if micros <= 0 {
		return
	}
	budgetSpentMicros.WithLabelValues(operation).Add(float64(micros))
}

// ObserveLeadAccepted counts a lead that survived filtering.
func ObserveLeadAccepted(source string) {
	Init()
	leadsAcceptedTotal.WithLabelValues(source).Inc()
}

// ObserveRun counts a finished run.
func ObserveRun(stopReason string) {
	Init()
	runsTotal.WithLabelValues(stopReason).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
