package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_risk"

// Metrics holds the Prometheus collectors for the engine.
type Metrics struct {
	Predictions  *prometheus.CounterVec // labels: source={model,fallback}, level
	ModelUp      prometheus.Gauge
	ModelLatency prometheus.Histogram

	AlertOutcomes  *prometheus.CounterVec // labels: outcome={created,updated,suppressed,throttled,rejected}
	AlertsResolved prometheus.Counter
	ActiveAlerts   prometheus.Gauge

	Broadcasts          *prometheus.CounterVec // labels: status={dispatched,delivered,failed,cancelled}
	BroadcastRecipients prometheus.Counter
	DeliveryDuration    prometheus.Histogram

	RefreshRuns *prometheus.CounterVec // labels: outcome={ok,error,skipped}

	ReadingsIngested *prometheus.CounterVec // labels: source={api,csv,weather}, outcome={accepted,rejected,failed}

	HTTPRequests *prometheus.CounterVec // labels: method, route, status
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Risk assessments produced, by source and risk level.",
		}, []string{"source", "level"}),
		ModelUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_up",
			Help:      "1 when the last model health probe succeeded.",
		}),
		ModelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_probe_latency_seconds",
			Help:      "Model backend health probe latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		AlertOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_outcomes_total",
			Help:      "Alert raise attempts by outcome.",
		}, []string{"outcome"}),
		AlertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alerts moved to resolved.",
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Active alerts seen by the last refresh.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcasts by lifecycle status.",
		}, []string{"status"}),
		BroadcastRecipients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_recipients_total",
			Help:      "Estimated recipients across dispatched broadcasts.",
		}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_delivery_duration_seconds",
			Help:      "Time from dispatch to delivery.",
			Buckets:   []float64{.1, .5, 1, 2, 5, 10, 30},
		}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Periodic refresh runs by outcome.",
		}, []string{"outcome"}),
		ReadingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Sensor readings taken in, by source and outcome.",
		}, []string{"source", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting returns unregistered collectors so tests can create as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Predictions,
		m.ModelUp,
		m.ModelLatency,
		m.AlertOutcomes,
		m.AlertsResolved,
		m.ActiveAlerts,
		m.Broadcasts,
		m.BroadcastRecipients,
		m.DeliveryDuration,
		m.RefreshRuns,
		m.ReadingsIngested,
		m.HTTPRequests,
	}
}
