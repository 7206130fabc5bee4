package devices

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

// memDeviceStore is an in-memory DeviceStore for service tests.
type memDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*models.Device
	ports   map[string][]*models.Port
}

func newMemDeviceStore() *memDeviceStore {
	return &memDeviceStore{
		devices: make(map[string]*models.Device),
		ports:   make(map[string][]*models.Port),
	}
}

func (m *memDeviceStore) CreateDevice(_ context.Context, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *d
	m.devices[d.ID] = &copied
	return nil
}

func (m *memDeviceStore) UpdateDevice(_ context.Context, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return store.ErrNotFound
	}
	copied := *d
	m.devices[d.ID] = &copied
	return nil
}

func (m *memDeviceStore) FindDeviceByIPOrMAC(_ context.Context, ip, mac string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if ip != "" && d.IPAddress == ip {
			copied := *d
			return &copied, nil
		}
	}
	for _, d := range m.devices {
		if mac != "" && d.MACAddress == mac {
			copied := *d
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memDeviceStore) UpsertPort(_ context.Context, p *models.Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ports[p.DeviceID] {
		if existing.PortNumber == p.PortNumber && existing.Protocol == p.Protocol {
			existing.State = p.State
			existing.ServiceName = p.ServiceName
			existing.ServiceVersion = p.ServiceVersion
			return nil
		}
	}
	copied := *p
	m.ports[p.DeviceID] = append(m.ports[p.DeviceID], &copied)
	return nil
}

func scanHost(ip, mac, hostname, status string) map[string]interface{} {
	addresses := map[string]interface{}{}
	if ip != "" {
		addresses["ipv4"] = ip
	}
	if mac != "" {
		addresses["mac"] = mac
		addresses["vendor"] = "TestVendor"
	}
	host := map[string]interface{}{
		"status":    status,
		"addresses": addresses,
		"hostnames": []map[string]interface{}{},
		"ports":     []map[string]interface{}{},
		"os":        map[string]interface{}{},
	}
	if hostname != "" {
		host["hostnames"] = []map[string]interface{}{{"name": hostname, "type": "PTR"}}
	}
	return host
}

func TestUpsertFromScanHostCreatesDevice(t *testing.T) {
	st := newMemDeviceStore()
	svc := NewService(st, nil)

	device, created, err := svc.UpsertFromScanHost(context.Background(),
		scanHost("192.168.1.50", "AA:BB:CC:DD:EE:FF", "router.local", "up"))
	require.NoError(t, err)

	assert.True(t, created)
	assert.Len(t, device.ID, 32)
	assert.Equal(t, "192.168.1.50", device.IPAddress)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", device.MACAddress)
	assert.Equal(t, "router.local", device.Hostname)
	assert.Equal(t, "TestVendor", device.Vendor)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	assert.False(t, device.FirstSeen.IsZero())
}

func TestUpsertFromScanHostMergeKeepsKnownFields(t *testing.T) {
	st := newMemDeviceStore()
	svc := NewService(st, nil)
	ctx := context.Background()

	first, created, err := svc.UpsertFromScanHost(ctx,
		scanHost("192.168.1.50", "AA:BB:CC:DD:EE:FF", "router.local", "up"))
	require.NoError(t, err)
	require.True(t, created)

	// A later quick scan reports no MAC and no hostname.
	second, created, err := svc.UpsertFromScanHost(ctx,
		scanHost("192.168.1.50", "", "", "up"))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", second.MACAddress)
	assert.Equal(t, "router.local", second.Hostname)
	assert.True(t, second.LastSeen.After(first.LastSeen) || second.LastSeen.Equal(first.LastSeen))
}

func TestUpsertFromScanHostAdoptsReportedStatus(t *testing.T) {
	st := newMemDeviceStore()
	svc := NewService(st, nil)
	ctx := context.Background()

	device, _, err := svc.UpsertFromScanHost(ctx, scanHost("192.168.1.50", "", "", "up"))
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)

	device, _, err = svc.UpsertFromScanHost(ctx, scanHost("192.168.1.50", "", "", "down"))
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, device.Status)
}

func TestUpsertFromScanHostMatchesByMAC(t *testing.T) {
	st := newMemDeviceStore()
	svc := NewService(st, nil)
	ctx := context.Background()

	first, _, err := svc.UpsertFromScanHost(ctx,
		scanHost("192.168.1.50", "AA:BB:CC:DD:EE:FF", "", "up"))
	require.NoError(t, err)

	// DHCP moved the device to a new IP; the MAC keeps its identity.
	second, created, err := svc.UpsertFromScanHost(ctx,
		scanHost("192.168.1.77", "AA:BB:CC:DD:EE:FF", "", "up"))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "192.168.1.77", second.IPAddress)
}

func TestUpsertFromScanHostRejectsAddressless(t *testing.T) {
	svc := NewService(newMemDeviceStore(), nil)
	_, _, err := svc.UpsertFromScanHost(context.Background(), map[string]interface{}{
		"status":    "up",
		"addresses": map[string]interface{}{},
	})
	assert.Error(t, err)
}

func TestUpsertFromScanHostPorts(t *testing.T) {
	st := newMemDeviceStore()
	svc := NewService(st, nil)

	host := scanHost("192.168.1.50", "", "", "up")
	host["ports"] = []map[string]interface{}{
		{"port": 22, "protocol": "tcp", "state": "open", "service": "ssh", "product": "OpenSSH", "version": "8.9"},
		{"port": 80, "protocol": "tcp", "state": "open", "service": "http"},
	}

	device, _, err := svc.UpsertFromScanHost(context.Background(), host)
	require.NoError(t, err)

	ports := st.ports[device.ID]
	require.Len(t, ports, 2)
	assert.Equal(t, 22, ports[0].PortNumber)
	assert.Equal(t, "ssh", ports[0].ServiceName)
	assert.Equal(t, "OpenSSH 8.9", ports[0].ServiceVersion)
	assert.Empty(t, ports[1].ServiceVersion)
}

func TestUpsertScanHostsCountsTouched(t *testing.T) {
	st := newMemDeviceStore()
	svc := NewService(st, nil)

	touched := svc.UpsertScanHosts(context.Background(), map[string]interface{}{
		"hosts": []map[string]interface{}{
			scanHost("192.168.1.50", "", "", "up"),
			scanHost("192.168.1.51", "", "", "down"),
			{"status": "up", "addresses": map[string]interface{}{}},
		},
	})
	assert.Equal(t, 2, touched)
	assert.Len(t, st.devices, 2)
}
