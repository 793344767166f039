package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the uplink ingestion pipeline.
type IngestMetrics struct {
	UplinksTotal      *prometheus.CounterVec
	IngestDuration    *prometheus.HistogramVec
	CacheOffersFailed prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
}

// NewIngestMetrics creates and registers ingestion metrics on reg
// (the global registry when reg is nil).
func NewIngestMetrics(reg prometheus.Registerer, namespace string) *IngestMetrics {
	m := &IngestMetrics{
		UplinksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "uplinks_total",
				Help:      "Total number of uplinks received, by source and outcome",
			},
			[]string{"source", "outcome"}, // outcome: stored, empty, missing_identity, malformed, store_error
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Duration of uplink ingestion including the store append",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		CacheOffersFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "latest_cache",
				Name:      "offer_failures_total",
				Help:      "Total number of failed latest-cache updates (each resets the cache)",
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "latest_cache",
				Name:      "hits_total",
				Help:      "Latest-reading queries served from the cache",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "latest_cache",
				Name:      "misses_total",
				Help:      "Latest-reading queries that fell through to the store",
			},
		),
	}

	registerer(reg).MustRegister(
		m.UplinksTotal,
		m.IngestDuration,
		m.CacheOffersFailed,
		m.CacheHits,
		m.CacheMisses,
	)

	return m
}
