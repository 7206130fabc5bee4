// Package monitoring runs the background sweeps: marking quiet devices
// offline and tracking tool health transitions.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/adapters"
	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

// Sweep intervals.
const (
	deviceSweepInterval = 60 * time.Second
	toolHealthInterval  = 30 * time.Second
)

// DeviceStore is the slice of the store the monitor reads and updates.
type DeviceStore interface {
	ListOnlineDevicesSeenBefore(ctx context.Context, cutoff time.Time) ([]*models.Device, error)
	SetDeviceStatus(ctx context.Context, id, status string) error
}

// Monitor owns the periodic availability and health sweeps.
type Monitor struct {
	store    DeviceStore
	registry *adapters.Registry
	bus      *events.Bus

	offlineThreshold time.Duration

	// previous tool statuses; transitions are only reported against a
	// known prior state, so the first sweep after start never fires events.
	mu         sync.Mutex
	toolStatus map[string]models.ToolStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. The offline threshold is how long a device may stay
// silent before it is marked offline.
func New(st DeviceStore, registry *adapters.Registry, bus *events.Bus, offlineThreshold time.Duration) *Monitor {
	return &Monitor{
		store:            st,
		registry:         registry,
		bus:              bus,
		offlineThreshold: offlineThreshold,
		toolStatus:       make(map[string]models.ToolStatus),
	}
}

// Start launches the sweep loops.
func (m *Monitor) Start(ctx context.Context) {
	if m.done != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		deviceTicker := time.NewTicker(deviceSweepInterval)
		healthTicker := time.NewTicker(toolHealthInterval)
		defer deviceTicker.Stop()
		defer healthTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-deviceTicker.C:
				if _, err := m.CheckDeviceAvailability(ctx); err != nil {
					log.Error().Err(err).Msg("Device availability sweep failed")
				}
			case <-healthTicker.C:
				m.CheckToolHealth(ctx)
			}
		}
	}()
	log.Info().Dur("offlineThreshold", m.offlineThreshold).Msg("Monitoring started")
}

// Stop halts the sweep loops and waits for them to exit.
func (m *Monitor) Stop() {
	if m.done == nil {
		return
	}
	m.cancel()
	<-m.done
	m.done = nil
	log.Info().Msg("Monitoring stopped")
}

// CheckDeviceAvailability marks online devices silent past the threshold as
// offline and returns how many were transitioned.
func (m *Monitor) CheckDeviceAvailability(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-m.offlineThreshold)
	stale, err := m.store.ListOnlineDevicesSeenBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, device := range stale {
		if err := m.store.SetDeviceStatus(ctx, device.ID, models.DeviceStatusOffline); err != nil {
			log.Error().Err(err).Str("deviceId", device.ID).Msg("Failed to mark device offline")
			continue
		}
		marked++
		log.Info().Str("deviceId", device.ID).Str("ip", device.IPAddress).
			Time("lastSeen", device.LastSeen).Msg("Device marked offline")
		if m.bus != nil {
			m.bus.PublishNowait(events.New(events.DeviceOffline, "monitoring", map[string]interface{}{
				"device_id": device.ID,
				"ip":        device.IPAddress,
				"hostname":  device.Hostname,
				"last_seen": device.LastSeen.Format(time.RFC3339),
			}))
		}
	}
	return marked, nil
}

// CheckToolHealth polls every adapter and publishes a transition event on
// every status change: tool.online when the new status is available or
// running, tool.offline otherwise.
func (m *Monitor) CheckToolHealth(ctx context.Context) map[string]models.ToolStatus {
	current := m.registry.HealthCheckAll(ctx)

	m.mu.Lock()
	previous := m.toolStatus
	m.toolStatus = current
	m.mu.Unlock()

	for tool, status := range current {
		prev, known := previous[tool]
		if !known || prev == status {
			continue
		}
		if healthy(status) {
			m.publishTransition(events.ToolOnline, tool, prev, status)
		} else {
			m.publishTransition(events.ToolOffline, tool, prev, status)
		}
	}
	return current
}

func (m *Monitor) publishTransition(eventType events.Type, tool string, prev, status models.ToolStatus) {
	log.Info().Str("tool", tool).Str("from", string(prev)).Str("to", string(status)).
		Msg("Tool status changed")
	if m.bus == nil {
		return
	}
	m.bus.PublishNowait(events.New(eventType, "monitoring", map[string]interface{}{
		"tool":            tool,
		"previous_status": string(prev),
		"status":          string(status),
	}))
}

func healthy(status models.ToolStatus) bool {
	switch status {
	case models.StatusAvailable, models.StatusRunning:
		return true
	}
	return false
}

var _ DeviceStore = (*store.Store)(nil)
