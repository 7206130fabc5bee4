package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

// AlertFilter narrows ListAlerts. Zero values mean "any".
type AlertFilter struct {
	Severity   models.Severity
	Status     string
	SourceTool string
	DeviceIP   string
	Limit      int
	Offset     int
}

// AlertStats aggregates alert counts.
type AlertStats struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	BySeverity map[string]int `json:"bySeverity"`
	ByStatus   map[string]int `json:"byStatus"`
	BySource   map[string]int `json:"bySource"`
}

const alertColumns = `id, title, description, severity, status, source_tool, source_event_id,
	category, device_ip, fingerprint, count, first_seen, last_seen, raw_data,
	correlation_id, notes, created_at, updated_at`

// CreateAlert inserts a new alert row.
func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	rawData, err := marshalJSON(alert.RawData)
	if err != nil {
		return fmt.Errorf("failed to encode raw data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.Title, alert.Description, string(alert.Severity), alert.Status,
		alert.SourceTool, alert.SourceEventID, alert.Category, alert.DeviceIP,
		alert.Fingerprint, alert.Count, alert.FirstSeen.Unix(), alert.LastSeen.Unix(),
		rawData, alert.CorrelationID, alert.Notes,
		alert.CreatedAt.Unix(), alert.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert fetches one alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

// GetOpenAlertByFingerprint returns the most recent open alert with the given
// fingerprint, or ErrNotFound.
func (s *Store) GetOpenAlertByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE fingerprint = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`,
		fingerprint, models.AlertStatusOpen)
	return scanAlert(row)
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	var conds []string
	var args []interface{}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SourceTool != "" {
		conds = append(conds, "source_tool = ?")
		args = append(args, filter.SourceTool)
	}
	if filter.DeviceIP != "" {
		conds = append(conds, "device_ip = ?")
		args = append(args, filter.DeviceIP)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// IncrementAlert bumps the dedup counter and advances last_seen on an
// existing alert.
func (s *Store) IncrementAlert(ctx context.Context, id string, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET count = count + 1, last_seen = ?, updated_at = ?
		WHERE id = ?`,
		lastSeen.Unix(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to increment alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAlertStatus transitions an alert's triage status, optionally
// replacing its notes.
func (s *Store) UpdateAlertStatus(ctx context.Context, id, status, notes string) (*models.Alert, error) {
	query := `UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?`
	args := []interface{}{status, time.Now().Unix(), id}
	if notes != "" {
		query = `UPDATE alerts SET status = ?, notes = ?, updated_at = ? WHERE id = ?`
		args = []interface{}{status, notes, time.Now().Unix(), id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAlert(ctx, id)
}

// GetAlertStats aggregates counts over all alerts.
func (s *Store) GetAlertStats(ctx context.Context) (*AlertStats, error) {
	stats := &AlertStats{
		BySeverity: make(map[string]int),
		ByStatus:   make(map[string]int),
		BySource:   make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT severity, status, source_tool, COUNT(*) FROM alerts GROUP BY severity, status, source_tool`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity, status, source string
		var count int
		if err := rows.Scan(&severity, &status, &source, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.BySeverity[severity] += count
		stats.ByStatus[status] += count
		stats.BySource[source] += count
		if status == models.AlertStatusOpen {
			stats.Open += count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var severity string
	var description, sourceEventID, category, deviceIP, fingerprint, rawData, correlationID, notes sql.NullString
	var firstSeen, lastSeen, createdAt, updatedAt int64

	err := row.Scan(&a.ID, &a.Title, &description, &severity, &a.Status, &a.SourceTool,
		&sourceEventID, &category, &deviceIP, &fingerprint, &a.Count,
		&firstSeen, &lastSeen, &rawData, &correlationID, &notes, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	a.Severity = models.Severity(severity)
	a.Description = description.String
	a.SourceEventID = sourceEventID.String
	a.Category = category.String
	a.DeviceIP = deviceIP.String
	a.Fingerprint = fingerprint.String
	a.CorrelationID = correlationID.String
	a.Notes = notes.String
	a.RawData = unmarshalJSON(rawData)
	a.FirstSeen = time.Unix(firstSeen, 0).UTC()
	a.LastSeen = time.Unix(lastSeen, 0).UTC()
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}
