// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for HTTP latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// delayBuckets cover the dispatch delay window with some headroom.
var delayBuckets = []float64{0, .05, .1, .15, .2, .25, .3, .5, 1}

// Relay outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeUpstream  = "upstream_error"
	OutcomeInvalid   = "invalid_request"
	OutcomeForbidden = "forbidden_target"
	OutcomeFailed    = "fetch_failed"
)

// Metrics holds all Prometheus metric collectors for the relay.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RelayOutcomes  *prometheus.CounterVec
	DispatchDelay  prometheus.Histogram
	UserAgentsUsed *prometheus.CounterVec

	CORSResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_relay_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cors_relay_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cors_relay_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cors_relay_upstream_request_duration_seconds",
			Help:    "Target call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_relay_upstream_responses_total",
			Help: "Total target responses by method and status code.",
		}, []string{"method", "status_code"}),

		RelayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_relay_outcomes_total",
			Help: "Relay results by outcome.",
		}, []string{"outcome"}),

		DispatchDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cors_relay_dispatch_delay_seconds",
			Help:    "Randomized delay applied before each outbound dispatch.",
			Buckets: delayBuckets,
		}),

		UserAgentsUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_relay_user_agent_selections_total",
			Help: "Outbound user-agent selections by pool index.",
		}, []string{"index"}),

		CORSResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_relay_cors_responses_total",
			Help: "Responses by Access-Control-Allow-Origin mode (echoed or wildcard) and whether they answered a preflight.",
		}, []string{"allow_origin", "preflight"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RelayOutcomes,
		m.DispatchDelay,
		m.UserAgentsUsed,
		m.CORSResponses,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPaths lists the allowed path label values (bounded cardinality).
var knownPaths = map[string]bool{
	"/":             true,
	"/healthz":      true,
	"/relay/status": true,
}

// NormalizePath returns a bounded path label for Prometheus metrics.
// metricsPath is the configured exposition path, which is also labelled as itself.
func NormalizePath(path, metricsPath string) string {
	if knownPaths[path] || (metricsPath != "" && path == metricsPath) {
		return path
	}
	return "other"
}
