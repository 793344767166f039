package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains Prometheus metrics for the database pool and queries.
type StoreMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PoolState         *prometheus.GaugeVec
	ReconnectAttempts prometheus.Counter
}

// NewStoreMetrics creates and registers store metrics.
func NewStoreMetrics(reg prometheus.Registerer, namespace string) *StoreMetrics {
	m := &StoreMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"}, // status: success, error, unavailable
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "operation_duration_seconds",
				Help:      "Duration of database operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		PoolState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "pool_state",
				Help:      "Current pool lifecycle state (1 for the active state)",
			},
			[]string{"state"},
		),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of database reconnection attempts",
			},
		),
	}

	registerer(reg).MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.PoolState,
		m.ReconnectAttempts,
	)

	return m
}
