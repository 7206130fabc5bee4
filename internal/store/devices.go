package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

const deviceColumns = `id, ip_address, mac_address, hostname, vendor, os_family, os_version,
	device_type, status, first_seen, last_seen, notes`

// CreateDevice inserts a new device row.
func (s *Store) CreateDevice(ctx context.Context, d *models.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.IPAddress, d.MACAddress, d.Hostname, d.Vendor, d.OSFamily, d.OSVersion,
		d.DeviceType, d.Status, d.FirstSeen.Unix(), d.LastSeen.Unix(), d.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// UpdateDevice rewrites all mutable fields of a device.
func (s *Store) UpdateDevice(ctx context.Context, d *models.Device) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET ip_address = ?, mac_address = ?, hostname = ?, vendor = ?,
			os_family = ?, os_version = ?, device_type = ?, status = ?,
			first_seen = ?, last_seen = ?, notes = ?
		WHERE id = ?`,
		d.IPAddress, d.MACAddress, d.Hostname, d.Vendor, d.OSFamily, d.OSVersion,
		d.DeviceType, d.Status, d.FirstSeen.Unix(), d.LastSeen.Unix(), d.Notes, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDevice fetches one device with its ports.
func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachPorts(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// FindDeviceByIPOrMAC locates a device by IP address first, MAC second.
// Returns ErrNotFound when neither matches.
func (s *Store) FindDeviceByIPOrMAC(ctx context.Context, ip, mac string) (*models.Device, error) {
	if ip != "" {
		row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE ip_address = ? LIMIT 1`, ip)
		device, err := scanDevice(row)
		if err == nil {
			return device, s.attachPorts(ctx, device)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if mac != "" {
		row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE mac_address = ? LIMIT 1`, mac)
		device, err := scanDevice(row)
		if err == nil {
			return device, s.attachPorts(ctx, device)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// ListDevices returns devices, optionally filtered by status, ordered by IP.
func (s *Store) ListDevices(ctx context.Context, status string) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY ip_address"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, device := range devices {
		if err := s.attachPorts(ctx, device); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// ListOnlineDevicesSeenBefore returns online devices whose last_seen is
// older than the cutoff. Used by the availability sweep.
func (s *Store) ListOnlineDevicesSeenBefore(ctx context.Context, cutoff time.Time) ([]*models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE status = ? AND last_seen < ?`,
		models.DeviceStatusOnline, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// SetDeviceStatus updates only the status column.
func (s *Store) SetDeviceStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set device status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice removes a device; its ports cascade.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPort inserts or updates one port keyed by (device, number, protocol).
func (s *Store) UpsertPort(ctx context.Context, p *models.Port) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ports (id, device_id, port_number, protocol, state, service_name, service_version, banner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, port_number, protocol) DO UPDATE SET
			state = excluded.state,
			service_name = excluded.service_name,
			service_version = excluded.service_version,
			banner = excluded.banner`,
		p.ID, p.DeviceID, p.PortNumber, p.Protocol, p.State, p.ServiceName, p.ServiceVersion, p.Banner)
	if err != nil {
		return fmt.Errorf("failed to upsert port: %w", err)
	}
	return nil
}

func (s *Store) attachPorts(ctx context.Context, device *models.Device) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, port_number, protocol, state, service_name, service_version, banner
		FROM ports WHERE device_id = ? ORDER BY port_number, protocol`, device.ID)
	if err != nil {
		return fmt.Errorf("failed to query ports: %w", err)
	}
	defer rows.Close()

	device.Ports = []models.Port{}
	for rows.Next() {
		var p models.Port
		var serviceName, serviceVersion, banner sql.NullString
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.PortNumber, &p.Protocol, &p.State,
			&serviceName, &serviceVersion, &banner); err != nil {
			return err
		}
		p.ServiceName = serviceName.String
		p.ServiceVersion = serviceVersion.String
		p.Banner = banner.String
		device.Ports = append(device.Ports, p)
	}
	return rows.Err()
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var mac, hostname, vendor, osFamily, osVersion, deviceType, notes sql.NullString
	var firstSeen, lastSeen int64

	err := row.Scan(&d.ID, &d.IPAddress, &mac, &hostname, &vendor, &osFamily, &osVersion,
		&deviceType, &d.Status, &firstSeen, &lastSeen, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}

	d.MACAddress = mac.String
	d.Hostname = hostname.String
	d.Vendor = vendor.String
	d.OSFamily = osFamily.String
	d.OSVersion = osVersion.String
	d.DeviceType = deviceType.String
	d.Notes = notes.String
	d.FirstSeen = time.Unix(firstSeen, 0).UTC()
	d.LastSeen = time.Unix(lastSeen, 0).UTC()
	return &d, nil
}
