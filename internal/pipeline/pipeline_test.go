package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/config"
	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

// memStore is an in-memory AlertStore for pipeline tests.
type memStore struct {
	mu         sync.Mutex
	alerts     map[string]*models.Alert
	increments map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		alerts:     make(map[string]*models.Alert),
		increments: make(map[string]int),
	}
}

func (m *memStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *alert
	m.alerts[alert.ID] = &copied
	return nil
}

func (m *memStore) GetOpenAlertByFingerprint(_ context.Context, fingerprint string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, alert := range m.alerts {
		if alert.Fingerprint == fingerprint && alert.Status == models.AlertStatusOpen {
			copied := *alert
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) IncrementAlert(_ context.Context, id string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return store.ErrNotFound
	}
	alert.Count++
	alert.LastSeen = lastSeen
	m.increments[id]++
	return nil
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("suricata", "intrusion", "ET SCAN Nmap", "192.168.1.50")
	b := Fingerprint("suricata", "intrusion", "ET SCAN Nmap", "192.168.1.50")
	c := Fingerprint("suricata", "intrusion", "ET SCAN Nmap", "192.168.1.51")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestNormalizeSuricata(t *testing.T) {
	n := NewNormalizer()
	alert := n.Normalize("suricata", map[string]interface{}{
		"alert": map[string]interface{}{
			"signature":    "ET SCAN Nmap Scripting Engine",
			"category":     "Attempted Information Leak",
			"severity":     float64(2),
			"signature_id": float64(2009582),
		},
		"src_ip": "192.168.1.50",
	})

	assert.Equal(t, "ET SCAN Nmap Scripting Engine", alert.Title)
	assert.Equal(t, "Category: Attempted Information Leak", alert.Description)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, "2009582", alert.SourceEventID)
	assert.Equal(t, models.AlertCategoryIntrusion, alert.Category)
	assert.Equal(t, "192.168.1.50", alert.DeviceIP)
	assert.Equal(t, "suricata", alert.SourceTool)
	assert.NotEmpty(t, alert.Fingerprint)
	assert.False(t, alert.Timestamp.IsZero())
}

func TestNormalizeSuricataSeverityLevels(t *testing.T) {
	tests := []struct {
		level int
		want  models.Severity
	}{
		{1, models.SeverityCritical},
		{2, models.SeverityHigh},
		{3, models.SeverityMedium},
		{4, models.SeverityLow},
		{0, models.SeverityLow},
	}
	n := NewNormalizer()
	for _, tc := range tests {
		alert := n.Normalize("suricata", map[string]interface{}{
			"alert": map[string]interface{}{"signature": "x", "severity": tc.level},
		})
		assert.Equal(t, tc.want, alert.Severity, "level %d", tc.level)
	}
}

func TestNormalizeClamAV(t *testing.T) {
	n := NewNormalizer()
	alert := n.Normalize("clamav", map[string]interface{}{
		"signature": "Eicar-Test-Signature",
		"file":      "/tmp/eicar.txt",
	})

	assert.Equal(t, "Malware detected: Eicar-Test-Signature", alert.Title)
	assert.Equal(t, "File: /tmp/eicar.txt", alert.Description)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, models.AlertCategoryMalware, alert.Category)
}

func TestNormalizeFail2Ban(t *testing.T) {
	n := NewNormalizer()
	alert := n.Normalize("fail2ban", map[string]interface{}{
		"ip":       "203.0.113.9",
		"jail":     "sshd",
		"failures": 5,
	})

	assert.Equal(t, "IP banned: 203.0.113.9 in jail sshd", alert.Title)
	assert.Equal(t, "Failures: 5", alert.Description)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	assert.Equal(t, models.AlertCategoryPolicy, alert.Category)
	assert.Equal(t, "203.0.113.9", alert.DeviceIP)
}

func TestNormalizeZeekSeverityFromNote(t *testing.T) {
	n := NewNormalizer()

	attack := n.Normalize("zeek", map[string]interface{}{"note": "Exploit::Attempt"})
	scan := n.Normalize("zeek", map[string]interface{}{"note": "Scan::Port_Scan"})
	other := n.Normalize("zeek", map[string]interface{}{"note": "Weird::Activity"})

	assert.Equal(t, models.SeverityCritical, attack.Severity)
	assert.Equal(t, models.SeverityMedium, scan.Severity)
	assert.Equal(t, models.SeverityInfo, other.Severity)
}

func TestNormalizeOpenVASCVSS(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Severity
	}{
		{9.8, models.SeverityCritical},
		{7.5, models.SeverityHigh},
		{5.0, models.SeverityMedium},
		{1.2, models.SeverityLow},
		{0, models.SeverityInfo},
	}
	n := NewNormalizer()
	for _, tc := range tests {
		alert := n.Normalize("openvas", map[string]interface{}{
			"name":       "CVE test",
			"cvss_score": tc.score,
		})
		assert.Equal(t, tc.want, alert.Severity, "cvss %.1f", tc.score)
	}
}

func TestNormalizeOSSECLevels(t *testing.T) {
	tests := []struct {
		level int
		want  models.Severity
	}{
		{13, models.SeverityCritical},
		{8, models.SeverityHigh},
		{5, models.SeverityMedium},
		{2, models.SeverityLow},
		{0, models.SeverityInfo},
	}
	n := NewNormalizer()
	for _, tc := range tests {
		alert := n.Normalize("ossec", map[string]interface{}{
			"description": "test rule",
			"level":       tc.level,
		})
		assert.Equal(t, tc.want, alert.Severity, "level %d", tc.level)
	}
}

func TestNormalizeUnknownToolFallsBackToGeneric(t *testing.T) {
	n := NewNormalizer()
	alert := n.Normalize("customtool", map[string]interface{}{
		"message":  "something happened",
		"severity": "high",
		"host":     "10.0.0.5",
	})

	assert.Equal(t, "something happened", alert.Title)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, models.AlertCategoryUnknown, alert.Category)
	assert.Equal(t, "10.0.0.5", alert.DeviceIP)
}

func TestDedupWithinWindow(t *testing.T) {
	base := time.Now()
	clock := base
	d := NewDeduplicator(60 * time.Second)
	d.now = func() time.Time { return clock }

	isNew, count := d.Check("fp1")
	assert.True(t, isNew)
	assert.Equal(t, 1, count)

	clock = base.Add(10 * time.Second)
	isNew, count = d.Check("fp1")
	assert.False(t, isNew)
	assert.Equal(t, 2, count)
}

func TestDedupExpiredWindowResets(t *testing.T) {
	base := time.Now()
	clock := base
	d := NewDeduplicator(60 * time.Second)
	d.now = func() time.Time { return clock }

	d.Check("fp1")
	clock = base.Add(61 * time.Second)
	isNew, count := d.Check("fp1")
	assert.True(t, isNew)
	assert.Equal(t, 1, count)
}

func TestDedupDropReleasesFingerprint(t *testing.T) {
	d := NewDeduplicator(60 * time.Second)
	d.Check("fp1")
	d.Check("fp1")
	d.Drop("fp1")

	isNew, count := d.Check("fp1")
	assert.True(t, isNew)
	assert.Equal(t, 1, count)
}

func TestDedupEvictionAtCapacity(t *testing.T) {
	base := time.Now()
	clock := base
	d := NewDeduplicator(time.Hour)
	d.now = func() time.Time { return clock }

	for i := 0; i < maxDedupEntries; i++ {
		clock = base.Add(time.Duration(i) * time.Millisecond)
		d.Check(fmt.Sprintf("fp-%d", i))
	}
	require.Equal(t, maxDedupEntries, d.Len())

	clock = base.Add(time.Hour / 2)
	isNew, _ := d.Check("fp-overflow")
	assert.True(t, isNew)
	assert.Equal(t, maxDedupEntries-maxDedupEntries/4+1, d.Len())

	// Oldest quarter is gone, so the first fingerprint reads as new again.
	isNew, _ = d.Check("fp-0")
	assert.True(t, isNew)
}

func TestDedupCleanup(t *testing.T) {
	base := time.Now()
	clock := base
	d := NewDeduplicator(60 * time.Second)
	d.now = func() time.Time { return clock }

	d.Check("old")
	clock = base.Add(121 * time.Second)
	d.Check("fresh")

	removed := d.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, d.Len())

	// A second pass finds nothing left to remove.
	assert.Equal(t, 0, d.Cleanup())
}

func TestCorrelateCrossToolSameDevice(t *testing.T) {
	c := NewCorrelator(10 * time.Minute)

	idA := c.Correlate(NormalizedAlert{SourceTool: "suricata", Title: "A", DeviceIP: "192.168.1.50"})
	require.Len(t, idA, 12)

	idB := c.Correlate(NormalizedAlert{SourceTool: "zeek", Title: "B", DeviceIP: "192.168.1.50"})
	assert.Equal(t, idA, idB)

	idC := c.Correlate(NormalizedAlert{SourceTool: "suricata", Title: "C", DeviceIP: "192.168.1.50"})
	assert.Equal(t, idA, idC)
}

func TestCorrelateSameToolGetsFreshID(t *testing.T) {
	c := NewCorrelator(10 * time.Minute)

	idA := c.Correlate(NormalizedAlert{SourceTool: "suricata", Title: "A", DeviceIP: "192.168.1.50"})
	idB := c.Correlate(NormalizedAlert{SourceTool: "suricata", Title: "B", DeviceIP: "192.168.1.50"})
	assert.NotEqual(t, idA, idB)
}

func TestCorrelateDifferentDevicesIndependent(t *testing.T) {
	c := NewCorrelator(10 * time.Minute)

	idA := c.Correlate(NormalizedAlert{SourceTool: "suricata", Title: "A", DeviceIP: "192.168.1.50"})
	idB := c.Correlate(NormalizedAlert{SourceTool: "zeek", Title: "B", DeviceIP: "192.168.1.51"})
	assert.NotEqual(t, idA, idB)
}

func TestCorrelateNoDeviceIP(t *testing.T) {
	c := NewCorrelator(10 * time.Minute)
	assert.Empty(t, c.Correlate(NormalizedAlert{SourceTool: "ossec", Title: "A"}))
}

func TestCorrelateExpiredWindow(t *testing.T) {
	base := time.Now()
	clock := base
	c := NewCorrelator(10 * time.Minute)
	c.now = func() time.Time { return clock }

	idA := c.Correlate(NormalizedAlert{SourceTool: "suricata", Title: "A", DeviceIP: "192.168.1.50"})
	clock = base.Add(11 * time.Minute)
	idB := c.Correlate(NormalizedAlert{SourceTool: "zeek", Title: "B", DeviceIP: "192.168.1.50"})
	assert.NotEqual(t, idA, idB)
}

func TestClassifyMalwareEscalatesToHigh(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(NormalizedAlert{
		Category: models.AlertCategoryMalware,
		Severity: models.SeverityMedium,
	}, 1)
	assert.Equal(t, models.SeverityHigh, got)
}

func TestClassifyEscalateOnlyNeverLowers(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(NormalizedAlert{
		Category: models.AlertCategoryMalware,
		Severity: models.SeverityCritical,
	}, 1)
	assert.Equal(t, models.SeverityCritical, got)
}

func TestClassifyRepeatedAlertsGoCritical(t *testing.T) {
	c := NewClassifier(nil)

	got := c.Classify(NormalizedAlert{Severity: models.SeverityLow}, 11)
	assert.Equal(t, models.SeverityCritical, got)

	got = c.Classify(NormalizedAlert{Severity: models.SeverityLow}, 10)
	assert.Equal(t, models.SeverityLow, got)
}

func TestClassifyKeywordRule(t *testing.T) {
	c := NewClassifier([]Rule{
		{Name: "ssh", Condition: CondKeyword, Value: "brute force", Target: models.SeverityHigh},
	})
	got := c.Classify(NormalizedAlert{Title: "SSH Brute Force attempt", Severity: models.SeverityLow}, 1)
	assert.Equal(t, models.SeverityHigh, got)
}

func TestDispatcherWebhook(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(config.DispatchConfig{WebhookURL: srv.URL})
	results := d.Dispatch(context.Background(), NormalizedAlert{
		Title:      "Test alert",
		Severity:   models.SeverityHigh,
		SourceTool: "suricata",
		Category:   models.AlertCategoryIntrusion,
		DeviceIP:   "192.168.1.50",
		Timestamp:  time.Now(),
	}, "abc123def456")

	assert.True(t, results["webhook"])
	assert.Equal(t, "Test alert", received["title"])
	assert.Equal(t, "high", received["severity"])
	assert.Equal(t, "suricata", received["source_tool"])
	assert.Equal(t, "abc123def456", received["correlation_id"])
}

func TestDispatcherWebhookServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(config.DispatchConfig{WebhookURL: srv.URL})
	results := d.Dispatch(context.Background(), NormalizedAlert{Title: "x", Timestamp: time.Now()}, "")
	assert.False(t, results["webhook"])
}

func TestDispatcherEmail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	orig := sendMail
	sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotFrom = from
		gotTo = to
		gotMsg = msg
		return nil
	}
	defer func() { sendMail = orig }()

	d := NewDispatcher(config.DispatchConfig{
		EmailEnabled:  true,
		EmailSMTPHost: "mail.example.com",
		EmailSMTPPort: 587,
		EmailFrom:     "netsentry@example.com",
		EmailTo:       "ops@example.com",
	})
	results := d.Dispatch(context.Background(), NormalizedAlert{
		Title:     "Port scan detected",
		Severity:  models.SeverityCritical,
		Timestamp: time.Now(),
	}, "")

	assert.True(t, results["email"])
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "netsentry@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: [NetSentry CRITICAL] Port scan detected")
	assert.Contains(t, string(gotMsg), "Correlation: N/A")
}

func TestSendMailTimeoutUnresponsiveServer(t *testing.T) {
	// A listener that accepts and then says nothing simulates a hung SMTP
	// server. The send must give up at the deadline instead of blocking.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Read(make([]byte, 1))
	}()

	origTimeout := smtpTimeout
	smtpTimeout = 200 * time.Millisecond
	defer func() { smtpTimeout = origTimeout }()

	start := time.Now()
	err = sendMailTimeout(ln.Addr().String(), nil, "netsentry@example.com",
		[]string{"ops@example.com"}, []byte("test"))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatcherNoChannelsConfigured(t *testing.T) {
	d := NewDispatcher(config.DispatchConfig{})
	results := d.Dispatch(context.Background(), NormalizedAlert{Title: "x", Timestamp: time.Now()}, "")
	assert.Empty(t, results)
}

func TestPipelineCreatesAlert(t *testing.T) {
	st := newMemStore()
	p := New(st, nil, nil, 60*time.Second)

	alert, err := p.Process(context.Background(), "clamav", map[string]interface{}{
		"signature": "Eicar-Test-Signature",
		"file":      "/tmp/eicar.txt",
		"host":      "192.168.1.20",
	})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Len(t, alert.ID, 32)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, 1, alert.Count)
	assert.Len(t, st.alerts, 1)
}

func TestPipelineDuplicateIncrementsExisting(t *testing.T) {
	st := newMemStore()
	p := New(st, nil, nil, 60*time.Second)
	raw := map[string]interface{}{
		"signature": "Eicar-Test-Signature",
		"file":      "/tmp/eicar.txt",
		"host":      "192.168.1.20",
	}

	first, err := p.Process(context.Background(), "clamav", raw)
	require.NoError(t, err)
	require.NotNil(t, first)

	dup, err := p.Process(context.Background(), "clamav", raw)
	require.NoError(t, err)
	assert.Nil(t, dup)
	assert.Len(t, st.alerts, 1)
	assert.Equal(t, 1, st.increments[first.ID])
	assert.Equal(t, 2, st.alerts[first.ID].Count)
}

func TestPipelinePublishesAlertCreated(t *testing.T) {
	st := newMemStore()
	bus := events.NewBus(16)
	got := make(chan events.Event, 1)
	bus.Subscribe(events.AlertCreated, func(_ context.Context, e events.Event) error {
		got <- e
		return nil
	})
	bus.Start()
	defer bus.Stop()

	p := New(st, bus, nil, 60*time.Second)
	alert, err := p.Process(context.Background(), "fail2ban", map[string]interface{}{
		"ip":   "203.0.113.9",
		"jail": "sshd",
	})
	require.NoError(t, err)
	require.NotNil(t, alert)

	select {
	case e := <-got:
		assert.Equal(t, events.AlertCreated, e.Type)
		assert.Equal(t, alert.ID, e.Data["alert_id"])
		assert.Equal(t, "medium", e.Data["severity"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert.created event")
	}
}

func TestPipelineBatchSkipsDuplicates(t *testing.T) {
	st := newMemStore()
	p := New(st, nil, nil, 60*time.Second)

	created := p.ProcessBatch(context.Background(), "fail2ban", []map[string]interface{}{
		{"ip": "203.0.113.9", "jail": "sshd"},
		{"ip": "203.0.113.9", "jail": "sshd"},
		{"ip": "203.0.113.10", "jail": "sshd"},
	})
	assert.Len(t, created, 2)
}
