package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the uplink simulator.
type SimulatorMetrics struct {
	UplinksSent  *prometheus.CounterVec
	SendDuration prometheus.Histogram
	Devices      prometheus.Gauge
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(reg prometheus.Registerer, namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		UplinksSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "uplinks_sent_total",
				Help:      "Total number of simulated uplinks sent, by response status",
			},
			[]string{"status_code"},
		),
		SendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "send_duration_seconds",
				Help:      "Duration of simulated uplink deliveries",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Devices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "devices",
				Help:      "Number of simulated devices",
			},
		),
	}

	registerer(reg).MustRegister(
		m.UplinksSent,
		m.SendDuration,
		m.Devices,
	)

	return m
}
