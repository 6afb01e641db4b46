package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
)

// Collector tracks request and upstream metrics for the chat proxy. A nil
// *Collector is valid and records nothing, so tests and the Lambda entry
// point can run without a registry.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	activeRequests  prometheus.Gauge
	fetches         *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	fallbackReplies *prometheus.CounterVec
	tokens          *prometheus.CounterVec
	costUSD         *prometheus.CounterVec
	flagged         *prometheus.CounterVec
}

// NewCollector creates and registers all metrics on the given registry. If
// registry is nil a fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatproxy",
				Name:      "requests_total",
				Help:      "Inbound requests by method and response status.",
			},
			[]string{"method", "status"},
		),
		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "chatproxy",
				Name:      "active_requests",
				Help:      "Requests currently being handled.",
			},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatproxy",
				Name:      "upstream_fetches_total",
				Help:      "Outbound calls by operation and outcome (success, fallback, skipped).",
			},
			[]string{"operation", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chatproxy",
				Name:      "upstream_fetch_duration_seconds",
				Help:      "Outbound call latency in seconds.",
				// Commerce lookups are sub-second, completions take several seconds.
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		fallbackReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatproxy",
				Name:      "fallback_replies_total",
				Help:      "Chat turns answered with the fallback reply, by reason.",
			},
			[]string{"reason"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatproxy",
				Name:      "completion_tokens_total",
				Help:      "Tokens reported by the completion API, by model and kind (prompt, completion).",
			},
			[]string{"model", "kind"},
		),
		costUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatproxy",
				Name:      "completion_cost_usd_total",
				Help:      "Estimated completion spend in USD, by model.",
			},
			[]string{"model"},
		),
		flagged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatproxy",
				Name:      "flagged_messages_total",
				Help:      "Screening findings on customer messages, by category.",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(c.requests, c.activeRequests, c.fetches, c.fetchDuration, c.fallbackReplies, c.tokens, c.costUSD, c.flagged)
	return c
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordRequest counts a completed inbound request.
func (c *Collector) RecordRequest(method string, status int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// IncrementActive marks a request as in flight.
func (c *Collector) IncrementActive() {
	if c == nil {
		return
	}
	c.activeRequests.Inc()
}

// DecrementActive marks a request as finished, regardless of outcome.
func (c *Collector) DecrementActive() {
	if c == nil {
		return
	}
	c.activeRequests.Dec()
}

// RecordFetch records one outbound call. Skipped calls carry no latency.
func (c *Collector) RecordFetch(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.fetches.WithLabelValues(operation, outcome).Inc()
	if outcome != OutcomeSkipped {
		c.fetchDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// RecordFallbackReply counts a chat turn answered with the fallback text.
func (c *Collector) RecordFallbackReply(reason string) {
	if c == nil {
		return
	}
	c.fallbackReplies.WithLabelValues(reason).Inc()
}

// RecordCompletionUsage adds the token usage and estimated cost of one
// completion call.
func (c *Collector) RecordCompletionUsage(model string, promptTokens, completionTokens int, cost float64) {
	if c == nil {
		return
	}
	c.tokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.tokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	if cost > 0 {
		c.costUSD.WithLabelValues(model).Add(cost)
	}
}

// RecordFlaggedMessage counts one screening finding on a customer message.
func (c *Collector) RecordFlaggedMessage(category string) {
	if c == nil {
		return
	}
	c.flagged.WithLabelValues(category).Inc()
}
