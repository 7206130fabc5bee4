// Package devices maintains the device inventory from scan results.
package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

// DeviceStore is the slice of the store the service persists through.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d *models.Device) error
	UpdateDevice(ctx context.Context, d *models.Device) error
	FindDeviceByIPOrMAC(ctx context.Context, ip, mac string) (*models.Device, error)
	UpsertPort(ctx context.Context, p *models.Port) error
}

// Service upserts devices from scan host records and announces inventory
// changes on the bus.
type Service struct {
	store DeviceStore
	bus   *events.Bus
}

// NewService creates a device service. The bus may be nil.
func NewService(st DeviceStore, bus *events.Bus) *Service {
	return &Service{store: st, bus: bus}
}

// UpsertFromScanHost creates or updates one device from a scan host record.
// Known field values are never overwritten by empty ones; last-seen always
// advances and the reported status is adopted. Returns the device and whether
// it was newly discovered.
func (s *Service) UpsertFromScanHost(ctx context.Context, host map[string]interface{}) (*models.Device, bool, error) {
	ip, mac, vendor := hostAddresses(host)
	if ip == "" && mac == "" {
		return nil, false, fmt.Errorf("scan host has no address")
	}

	now := time.Now().UTC()
	status := models.DeviceStatusOffline
	if hostString(host, "status") == "up" {
		status = models.DeviceStatusOnline
	}
	hostname := firstHostname(host)
	osName := hostOS(host)

	existing, err := s.store.FindDeviceByIPOrMAC(ctx, ip, mac)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	if existing == nil {
		device := &models.Device{
			ID:         strings.ReplaceAll(uuid.NewString(), "-", ""),
			IPAddress:  ip,
			MACAddress: mac,
			Hostname:   hostname,
			Vendor:     vendor,
			OSFamily:   osName,
			Status:     status,
			FirstSeen:  now,
			LastSeen:   now,
		}
		if err := s.store.CreateDevice(ctx, device); err != nil {
			return nil, false, err
		}
		if err := s.upsertPorts(ctx, device.ID, host); err != nil {
			return nil, false, err
		}
		log.Info().Str("deviceId", device.ID).Str("ip", ip).Str("mac", mac).
			Msg("Device discovered")
		s.publish(events.DeviceDiscovered, device)
		return device, true, nil
	}

	mergeField(&existing.IPAddress, ip)
	mergeField(&existing.MACAddress, mac)
	mergeField(&existing.Hostname, hostname)
	mergeField(&existing.Vendor, vendor)
	mergeField(&existing.OSFamily, osName)
	existing.Status = status
	existing.LastSeen = now

	if err := s.store.UpdateDevice(ctx, existing); err != nil {
		return nil, false, err
	}
	if err := s.upsertPorts(ctx, existing.ID, host); err != nil {
		return nil, false, err
	}
	s.publish(events.DeviceUpdated, existing)
	return existing, false, nil
}

// UpsertScanHosts processes every host in a scan result and returns how many
// devices were touched.
func (s *Service) UpsertScanHosts(ctx context.Context, results map[string]interface{}) int {
	hosts, _ := results["hosts"].([]map[string]interface{})
	if hosts == nil {
		if generic, ok := results["hosts"].([]interface{}); ok {
			for _, h := range generic {
				if m, ok := h.(map[string]interface{}); ok {
					hosts = append(hosts, m)
				}
			}
		}
	}

	touched := 0
	for _, host := range hosts {
		if _, _, err := s.UpsertFromScanHost(ctx, host); err != nil {
			log.Warn().Err(err).Msg("Failed to upsert device from scan host")
			continue
		}
		touched++
	}
	return touched
}

func (s *Service) upsertPorts(ctx context.Context, deviceID string, host map[string]interface{}) error {
	ports, _ := host["ports"].([]map[string]interface{})
	for _, p := range ports {
		port := &models.Port{
			ID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
			DeviceID:    deviceID,
			PortNumber:  hostInt(p, "port"),
			Protocol:    hostString(p, "protocol"),
			State:       hostString(p, "state"),
			ServiceName: hostString(p, "service"),
		}
		if product := hostString(p, "product"); product != "" {
			port.ServiceVersion = strings.TrimSpace(product + " " + hostString(p, "version"))
		}
		if err := s.store.UpsertPort(ctx, port); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(eventType events.Type, device *models.Device) {
	if s.bus == nil {
		return
	}
	s.bus.PublishNowait(events.New(eventType, "devices", map[string]interface{}{
		"device_id": device.ID,
		"ip":        device.IPAddress,
		"mac":       device.MACAddress,
		"hostname":  device.Hostname,
		"status":    device.Status,
	}))
}

// mergeField keeps the existing value when the incoming one is empty.
func mergeField(dst *string, incoming string) {
	if incoming != "" {
		*dst = incoming
	}
}

func hostAddresses(host map[string]interface{}) (ip, mac, vendor string) {
	addresses, _ := host["addresses"].(map[string]interface{})
	ip = hostString(addresses, "ipv4")
	if ip == "" {
		ip = hostString(addresses, "ipv6")
	}
	mac = hostString(addresses, "mac")
	vendor = hostString(addresses, "vendor")
	return ip, mac, vendor
}

func firstHostname(host map[string]interface{}) string {
	if names, ok := host["hostnames"].([]map[string]interface{}); ok && len(names) > 0 {
		return hostString(names[0], "name")
	}
	return ""
}

func hostOS(host map[string]interface{}) string {
	os, _ := host["os"].(map[string]interface{})
	return hostString(os, "name")
}

func hostString(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func hostInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
