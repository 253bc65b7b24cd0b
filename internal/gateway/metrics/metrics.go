// Package metrics records request volume, latency, upstream call outcomes
// and token usage as Prometheus collectors.
//
// A Recorder owns its own registry so that tests and multiple gateways in
// one process never collide on global registration.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Recorder is safe for concurrent use; every method only touches
// Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	active         prometheus.Gauge
	upstreamCalls  *prometheus.CounterVec
	tokens         *prometheus.CounterVec
	upstreamUp     prometheus.Gauge
	rateLimited    *prometheus.CounterVec
	streamedChunks *prometheus.CounterVec
}

// New creates a recorder registered on registry. A nil registry gets a fresh
// one with the Go runtime and process collectors attached.
func New(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Recorder{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration",
			// LLM latencies run from sub-second to tens of seconds.
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"method", "endpoint"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_active",
			Help: "Active HTTP requests",
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_api_calls_total",
			Help: "Total upstream completion calls by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_tokens_total",
			Help: "Total tokens reported by the upstream provider",
		}, []string{"type"}),
		upstreamUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upstream_up",
			Help: "1 if the last health probe reached the upstream provider",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"endpoint"}),
		streamedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamed_fragments_total",
			Help: "Text fragments received from upstream streams",
		}, []string{"endpoint"}),
	}

	registry.MustRegister(
		r.requests,
		r.duration,
		r.active,
		r.upstreamCalls,
		r.tokens,
		r.upstreamUp,
		r.rateLimited,
		r.streamedChunks,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RequestStarted and RequestFinished bracket an in-flight HTTP request.
func (r *Recorder) RequestStarted()  { r.active.Inc() }
func (r *Recorder) RequestFinished() { r.active.Dec() }

// ObserveRequest records one completed HTTP request.
func (r *Recorder) ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	r.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	r.duration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// UpstreamCall records the outcome of one upstream invocation.
func (r *Recorder) UpstreamCall(endpoint, outcome string) {
	r.upstreamCalls.WithLabelValues(endpoint, outcome).Inc()
}

// Tokens adds reported token usage.
func (r *Recorder) Tokens(input, output int) {
	if input > 0 {
		r.tokens.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		r.tokens.WithLabelValues("output").Add(float64(output))
	}
}

// UpstreamHealth sets the upstream reachability gauge.
func (r *Recorder) UpstreamHealth(up bool) {
	if up {
		r.upstreamUp.Set(1)
		return
	}
	r.upstreamUp.Set(0)
}

// RateLimited counts a throttled request.
func (r *Recorder) RateLimited(endpoint string) {
	r.rateLimited.WithLabelValues(endpoint).Inc()
}

// StreamFragment counts one text fragment received from an upstream stream.
func (r *Recorder) StreamFragment(endpoint string) {
	r.streamedChunks.WithLabelValues(endpoint).Inc()
}

// UpstreamCallCount returns the current value of the upstream outcome
// counter. Intended for tests and diagnostics.
func (r *Recorder) UpstreamCallCount(endpoint, outcome string) float64 {
	return counterValue(r.upstreamCalls.WithLabelValues(endpoint, outcome))
}

// TokenCount returns the current token counter for kind "input" or "output".
func (r *Recorder) TokenCount(kind string) float64 {
	return counterValue(r.tokens.WithLabelValues(kind))
}
