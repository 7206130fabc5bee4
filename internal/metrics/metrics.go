// Package metrics manages Prometheus instrumentation for the alert pipeline,
// scan orchestrator and event bus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide instruments.
type Metrics struct {
	alertsCreated    *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	scansCompleted   *prometheus.CounterVec
	scanDuration     prometheus.Histogram
	eventsDropped    *prometheus.CounterVec
	wsClients        prometheus.Gauge
	toolStatus       *prometheus.GaugeVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics set, registering it on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
		instance.register(prometheus.DefaultRegisterer)
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		alertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netsentry",
				Subsystem: "alerts",
				Name:      "created_total",
				Help:      "Alerts created, by severity and source tool.",
			},
			[]string{"severity", "source_tool"},
		),
		alertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netsentry",
				Subsystem: "alerts",
				Name:      "suppressed_total",
				Help:      "Duplicate alerts folded into an existing record.",
			},
			[]string{"source_tool"},
		),
		scansCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netsentry",
				Subsystem: "scans",
				Name:      "finished_total",
				Help:      "Scans reaching a terminal state, by tool and status.",
			},
			[]string{"tool", "status"},
		),
		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "netsentry",
				Subsystem: "scans",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of completed scans.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netsentry",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events dropped on bus queue overflow, by type.",
			},
			[]string{"type"},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netsentry",
				Subsystem: "websocket",
				Name:      "clients",
				Help:      "Currently connected push clients.",
			},
		),
		toolStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "netsentry",
				Subsystem: "tools",
				Name:      "healthy",
				Help:      "1 when the tool is available or running, 0 otherwise.",
			},
			[]string{"tool"},
		),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.alertsCreated,
		m.alertsSuppressed,
		m.scansCompleted,
		m.scanDuration,
		m.eventsDropped,
		m.wsClients,
		m.toolStatus,
	)
}

// RecordAlertCreated counts one new alert.
func (m *Metrics) RecordAlertCreated(severity, sourceTool string) {
	m.alertsCreated.WithLabelValues(severity, sourceTool).Inc()
}

// RecordAlertSuppressed counts one deduplicated alert.
func (m *Metrics) RecordAlertSuppressed(sourceTool string) {
	m.alertsSuppressed.WithLabelValues(sourceTool).Inc()
}

// RecordScanFinished counts one terminal scan and its duration.
func (m *Metrics) RecordScanFinished(tool, status string, seconds float64) {
	m.scansCompleted.WithLabelValues(tool, status).Inc()
	if seconds > 0 {
		m.scanDuration.Observe(seconds)
	}
}

// RecordEventDropped counts one dropped bus event. Shaped to slot into
// events.DroppedHook.
func (m *Metrics) RecordEventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// SetWebSocketClients tracks the connected push-client count.
func (m *Metrics) SetWebSocketClients(n int) {
	m.wsClients.Set(float64(n))
}

// SetToolHealthy tracks per-tool health as a 0/1 gauge.
func (m *Metrics) SetToolHealthy(tool string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.toolStatus.WithLabelValues(tool).Set(v)
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
