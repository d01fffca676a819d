// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewlens_cache_hits_total",
		Help: "Cache hits by entry family.",
	}, []string{"family"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewlens_cache_misses_total",
		Help: "Cache misses by entry family.",
	}, []string{"family"})

	EngineRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reviewlens_engine_request_duration_seconds",
		Help:    "Duration of outbound analysis engine calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	EngineRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewlens_engine_retries_total",
		Help: "Retried attempts against the analysis engine.",
	})

	// BreakerState is 0 for closed, 1 for half-open, 2 for open.
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewlens_engine_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewlens_events_consumed_total",
		Help: "Bus events consumed by outcome.",
	}, []string{"outcome"})
)
