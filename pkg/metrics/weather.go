package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WeatherMetrics contains Prometheus metrics for the wind lookup adapter.
type WeatherMetrics struct {
	LookupsTotal   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
}

// NewWeatherMetrics creates and registers wind lookup metrics.
func NewWeatherMetrics(reg prometheus.Registerer, namespace string) *WeatherMetrics {
	m := &WeatherMetrics{
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "weather",
				Name:      "lookups_total",
				Help:      "Total number of wind lookups",
			},
			[]string{"provider", "status"}, // status: success, location_unknown, upstream_error
		),
		LookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "weather",
				Name:      "lookup_duration_seconds",
				Help:      "Duration of upstream wind lookups",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}

	registerer(reg).MustRegister(
		m.LookupsTotal,
		m.LookupDuration,
	)

	return m
}
