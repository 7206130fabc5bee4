package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	m := newMetrics()
	m.register(prometheus.NewRegistry())
	return m
}

func TestRecordAlertCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordAlertCreated("high", "suricata")
	m.RecordAlertCreated("high", "suricata")
	m.RecordAlertSuppressed("suricata")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsCreated.WithLabelValues("high", "suricata")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsSuppressed.WithLabelValues("suricata")))
}

func TestRecordScanFinished(t *testing.T) {
	m := newTestMetrics()

	m.RecordScanFinished("nmap", "completed", 12.5)
	m.RecordScanFinished("nmap", "failed", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scansCompleted.WithLabelValues("nmap", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scansCompleted.WithLabelValues("nmap", "failed")))
}

func TestToolHealthGauge(t *testing.T) {
	m := newTestMetrics()

	m.SetToolHealthy("nmap", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolStatus.WithLabelValues("nmap")))

	m.SetToolHealthy("nmap", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.toolStatus.WithLabelValues("nmap")))
}

func TestEventDroppedCounterShape(t *testing.T) {
	m := newTestMetrics()

	// Matches the events.DroppedHook signature.
	var hook func(string) = m.RecordEventDropped
	hook("alert.created")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("alert.created")))
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
