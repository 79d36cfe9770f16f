package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	cycleTotal    *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	itemsTotal    *prometheus.CounterVec
	cycleInFlight prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	cycleTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailtriage",
			Subsystem: "pipeline",
			Name:      "cycle_total",
			Help:      "Total batch cycles by outcome.",
		},
		[]string{"service", "outcome"},
	)
	cycleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailtriage",
			Subsystem: "pipeline",
			Name:      "cycle_duration_seconds",
			Help:      "Batch cycle duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailtriage",
			Subsystem: "pipeline",
			Name:      "items_total",
			Help:      "Per-item outcomes (processed, skipped, failed) per cycle.",
		},
		[]string{"service", "outcome"},
	)
	cycleInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mailtriage",
			Subsystem: "pipeline",
			Name:      "cycle_in_flight",
			Help:      "Whether a batch cycle is currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(cycleTotal, cycleDuration, itemsTotal, cycleInFlight)

	return &PipelineMetrics{
		registry:      registry,
		cycleTotal:    cycleTotal,
		cycleDuration: cycleDuration,
		itemsTotal:    itemsTotal,
		cycleInFlight: cycleInFlight,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartCycle() {
	m.cycleInFlight.Inc()
}

func (m *PipelineMetrics) FinishCycle(service string, duration time.Duration, report domain.CycleReport, err error) {
	m.cycleInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.cycleTotal.WithLabelValues(service, outcome).Inc()
	m.cycleDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())

	m.itemsTotal.WithLabelValues(service, "processed").Add(float64(report.Processed))
	m.itemsTotal.WithLabelValues(service, "skipped").Add(float64(report.Skipped))
	m.itemsTotal.WithLabelValues(service, "failed").Add(float64(report.Failed))
}
