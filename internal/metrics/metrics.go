// Package metrics registers the Prometheus collectors for ingestion and
// feed serving.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the application's Prometheus collectors.
type Metrics struct {
	SignalsIn    *prometheus.CounterVec
	SignalsOut   *prometheus.CounterVec
	IngestLagMS  *prometheus.HistogramVec
	FeedRequests *prometheus.CounterVec
	FeedLatency  prometheus.Histogram
}

// Option allows customizing the metrics registry.
type Option func(*metricsConfig)

type metricsConfig struct {
	registerer prometheus.Registerer
	buckets    []float64
}

// WithRegisterer overrides the default Prometheus registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *metricsConfig) {
		cfg.registerer = r
	}
}

// WithLatencyBuckets overrides the default latency histogram buckets (in ms).
func WithLatencyBuckets(buckets []float64) Option {
	return func(cfg *metricsConfig) {
		cfg.buckets = buckets
	}
}

// New constructs Metrics and registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := metricsConfig{
		registerer: prometheus.DefaultRegisterer,
		buckets: []float64{
			5, 10, 20, 50, 100, 200, 500, 1000, 2000,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	signalsIn := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalefeed_signals_in_total",
		Help: "Raw signals received from providers, per chain.",
	}, []string{"chain"})

	signalsOut := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalefeed_signals_out_total",
		Help: "Unique signals persisted after deduplication, per chain.",
	}, []string{"chain"})

	ingestLag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whalefeed_ingest_lag_ms",
		Help:    "Delay in milliseconds between event time and ingestion.",
		Buckets: []float64{100, 500, 1000, 5000, 15000, 60000, 300000},
	}, []string{"chain"})

	feedRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalefeed_feed_requests_total",
		Help: "Feed page requests, per outcome.",
	}, []string{"outcome"})

	feedLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalefeed_feed_latency_ms",
		Help:    "Latency in milliseconds for feed page assembly.",
		Buckets: cfg.buckets,
	})

	cfg.registerer.MustRegister(signalsIn, signalsOut, ingestLag, feedRequests, feedLatency)

	return &Metrics{
		SignalsIn:    signalsIn,
		SignalsOut:   signalsOut,
		IngestLagMS:  ingestLag,
		FeedRequests: feedRequests,
		FeedLatency:  feedLatency,
	}
}
