package observability

import (
	"context"

	"github.com/aretw0/headless/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Responses *prometheus.HistogramVec
	Tokens    *prometheus.CounterVec
	Handoffs  *prometheus.CounterVec
	Errors    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_requests_total",
				Help: "Total number of messages handed to a chat client",
			},
			[]string{"client", "streaming"},
		),
		Responses: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headless_response_duration_seconds",
				Help:    "Duration from request to applied response",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"client", "streaming"},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_stream_tokens_total",
				Help: "Total number of streamed tokens received",
			},
			[]string{"client"},
		),
		Handoffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_handoffs_total",
				Help: "Total number of handoff attempts",
			},
			[]string{"to", "outcome"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_errors_total",
				Help: "Total number of pipeline failures",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Responses, m.Tokens, m.Handoffs, m.Errors)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRequest: func(_ context.Context, e *domain.RequestEvent) {
			m.Requests.WithLabelValues(string(e.Client), boolLabel(e.Streaming)).Inc()
		},
		OnResponse: func(_ context.Context, e *domain.ResponseEvent) {
			m.Responses.WithLabelValues(string(e.Client), boolLabel(e.Streaming)).Observe(e.Duration.Seconds())
			if e.Tokens > 0 {
				m.Tokens.WithLabelValues(string(e.Client)).Add(float64(e.Tokens))
			}
		},
		OnHandoff: func(_ context.Context, e *domain.HandoffEvent) {
			outcome := "ok"
			switch {
			case e.Err != nil:
				outcome = "error"
			case e.Resumed:
				outcome = "resumed"
			}
			m.Handoffs.WithLabelValues(string(e.To), outcome).Inc()
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			m.Errors.WithLabelValues(string(e.Kind)).Inc()
		},
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
