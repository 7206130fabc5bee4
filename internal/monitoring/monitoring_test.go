package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/adapters"
	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/models"
)

// memDeviceStore is an in-memory DeviceStore for monitor tests.
type memDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*models.Device
}

func newMemDeviceStore(devices ...*models.Device) *memDeviceStore {
	m := &memDeviceStore{devices: make(map[string]*models.Device)}
	for _, d := range devices {
		copied := *d
		m.devices[d.ID] = &copied
	}
	return m
}

func (m *memDeviceStore) ListOnlineDevicesSeenBefore(_ context.Context, cutoff time.Time) ([]*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*models.Device
	for _, d := range m.devices {
		if d.Status == models.DeviceStatusOnline && d.LastSeen.Before(cutoff) {
			copied := *d
			stale = append(stale, &copied)
		}
	}
	return stale, nil
}

func (m *memDeviceStore) SetDeviceStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id].Status = status
	return nil
}

// stubAdapter has a settable health status.
type stubAdapter struct {
	name   string
	health models.ToolStatus
}

func (a *stubAdapter) Info() *models.ToolInfo {
	return &models.ToolInfo{Name: a.name, Status: a.health}
}
func (a *stubAdapter) Detect(context.Context) bool                   { return true }
func (a *stubAdapter) HealthCheck(context.Context) models.ToolStatus { return a.health }
func (a *stubAdapter) Execute(context.Context, string, map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}
func (a *stubAdapter) ParseOutput(string, string) map[string]interface{} { return nil }
func (a *stubAdapter) Start(context.Context) error                       { return nil }
func (a *stubAdapter) Stop(context.Context) error                        { return nil }

func collectEvents(bus *events.Bus, eventType events.Type) *[]events.Event {
	var mu sync.Mutex
	collected := &[]events.Event{}
	bus.Subscribe(eventType, func(_ context.Context, e events.Event) error {
		mu.Lock()
		*collected = append(*collected, e)
		mu.Unlock()
		return nil
	})
	return collected
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCheckDeviceAvailabilityMarksStaleOffline(t *testing.T) {
	now := time.Now().UTC()
	st := newMemDeviceStore(
		&models.Device{ID: "stale", IPAddress: "192.168.1.10", Status: models.DeviceStatusOnline, LastSeen: now.Add(-30 * time.Minute)},
		&models.Device{ID: "fresh", IPAddress: "192.168.1.11", Status: models.DeviceStatusOnline, LastSeen: now.Add(-1 * time.Minute)},
		&models.Device{ID: "down", IPAddress: "192.168.1.12", Status: models.DeviceStatusOffline, LastSeen: now.Add(-2 * time.Hour)},
	)
	bus := events.NewBus(16)
	offline := collectEvents(bus, events.DeviceOffline)
	bus.Start()
	defer bus.Stop()

	m := New(st, adapters.NewRegistry(), bus, 15*time.Minute)
	marked, err := m.CheckDeviceAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, models.DeviceStatusOffline, st.devices["stale"].Status)
	assert.Equal(t, models.DeviceStatusOnline, st.devices["fresh"].Status)

	waitFor(t, func() bool { return len(*offline) == 1 })
	assert.Equal(t, "stale", (*offline)[0].Data["device_id"])
}

func TestCheckDeviceAvailabilityIdempotent(t *testing.T) {
	now := time.Now().UTC()
	st := newMemDeviceStore(
		&models.Device{ID: "stale", Status: models.DeviceStatusOnline, LastSeen: now.Add(-time.Hour)},
	)
	m := New(st, adapters.NewRegistry(), nil, 15*time.Minute)

	marked, err := m.CheckDeviceAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	// Already offline, so a second sweep finds nothing.
	marked, err = m.CheckDeviceAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestCheckToolHealthFirstSweepIsSilent(t *testing.T) {
	registry := adapters.NewRegistry()
	registry.Register(&stubAdapter{name: "suricata", health: models.StatusRunning})

	bus := events.NewBus(16)
	online := collectEvents(bus, events.ToolOnline)
	bus.Start()
	defer bus.Stop()

	m := New(newMemDeviceStore(), registry, bus, time.Minute)
	statuses := m.CheckToolHealth(context.Background())

	assert.Equal(t, models.StatusRunning, statuses["suricata"])
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, *online, "no prior state, no transition events")
}

func TestCheckToolHealthTransitions(t *testing.T) {
	suricata := &stubAdapter{name: "suricata", health: models.StatusError}
	nmap := &stubAdapter{name: "nmap", health: models.StatusAvailable}
	registry := adapters.NewRegistry()
	registry.Register(suricata)
	registry.Register(nmap)

	bus := events.NewBus(16)
	online := collectEvents(bus, events.ToolOnline)
	offline := collectEvents(bus, events.ToolOffline)
	bus.Start()
	defer bus.Stop()

	m := New(newMemDeviceStore(), registry, bus, time.Minute)
	m.CheckToolHealth(context.Background())

	// Recovery fires tool.online, failure fires tool.offline.
	suricata.health = models.StatusRunning
	nmap.health = models.StatusError
	m.CheckToolHealth(context.Background())

	waitFor(t, func() bool { return len(*online) == 1 && len(*offline) == 1 })
	assert.Equal(t, "suricata", (*online)[0].Data["tool"])
	assert.Equal(t, "error", (*online)[0].Data["previous_status"])
	assert.Equal(t, "nmap", (*offline)[0].Data["tool"])

	// Steady state fires nothing further.
	m.CheckToolHealth(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, *online, 1)
	assert.Len(t, *offline, 1)
}

func TestCheckToolHealthEmitsOnEveryChange(t *testing.T) {
	ossec := &stubAdapter{name: "ossec", health: models.StatusUnavailable}
	fail2ban := &stubAdapter{name: "fail2ban", health: models.StatusRunning}
	registry := adapters.NewRegistry()
	registry.Register(ossec)
	registry.Register(fail2ban)

	bus := events.NewBus(16)
	online := collectEvents(bus, events.ToolOnline)
	offline := collectEvents(bus, events.ToolOffline)
	bus.Start()
	defer bus.Stop()

	m := New(newMemDeviceStore(), registry, bus, time.Minute)
	m.CheckToolHealth(context.Background())

	// Any change publishes a transition, even when both sides of it are
	// unhealthy (unavailable to error) or both healthy (running to available).
	ossec.health = models.StatusError
	fail2ban.health = models.StatusAvailable
	m.CheckToolHealth(context.Background())

	waitFor(t, func() bool { return len(*online) == 1 && len(*offline) == 1 })
	assert.Equal(t, "ossec", (*offline)[0].Data["tool"])
	assert.Equal(t, "unavailable", (*offline)[0].Data["previous_status"])
	assert.Equal(t, "error", (*offline)[0].Data["status"])
	assert.Equal(t, "fail2ban", (*online)[0].Data["tool"])
	assert.Equal(t, "running", (*online)[0].Data["previous_status"])
	assert.Equal(t, "available", (*online)[0].Data["status"])
}
