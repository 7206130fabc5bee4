package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

const scanColumns = `id, scan_type, tool, target, status, progress, started_at, completed_at,
	result_summary, error_message, parameters, results, devices_found, alerts_generated,
	created_at, updated_at`

// CreateScan inserts a new scan row.
func (s *Store) CreateScan(ctx context.Context, scan *models.Scan) error {
	params, err := marshalJSON(scan.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode scan parameters: %w", err)
	}
	results, err := marshalJSON(scan.Results)
	if err != nil {
		return fmt.Errorf("failed to encode scan results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.ScanType, scan.Tool, scan.Target, scan.Status, scan.Progress,
		nullTime(scan.StartedAt), nullTime(scan.CompletedAt),
		scan.ResultSummary, scan.ErrorMessage, params, results,
		scan.DevicesFound, scan.AlertsGenerated,
		scan.CreatedAt.Unix(), scan.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// UpdateScan rewrites all mutable fields of a scan.
func (s *Store) UpdateScan(ctx context.Context, scan *models.Scan) error {
	results, err := marshalJSON(scan.Results)
	if err != nil {
		return fmt.Errorf("failed to encode scan results: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scans SET status = ?, progress = ?, started_at = ?, completed_at = ?,
			result_summary = ?, error_message = ?, results = ?,
			devices_found = ?, alerts_generated = ?, updated_at = ?
		WHERE id = ?`,
		scan.Status, scan.Progress, nullTime(scan.StartedAt), nullTime(scan.CompletedAt),
		scan.ResultSummary, scan.ErrorMessage, results,
		scan.DevicesFound, scan.AlertsGenerated, time.Now().Unix(), scan.ID)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetScan fetches one scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	return scanScan(row)
}

// ListScans returns scans newest first, optionally filtered by status.
func (s *Store) ListScans(ctx context.Context, status string, limit, offset int) ([]*models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans`
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

func scanScan(row rowScanner) (*models.Scan, error) {
	var sc models.Scan
	var startedAt, completedAt sql.NullInt64
	var resultSummary, errorMessage, params, results sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&sc.ID, &sc.ScanType, &sc.Tool, &sc.Target, &sc.Status, &sc.Progress,
		&startedAt, &completedAt, &resultSummary, &errorMessage, &params, &results,
		&sc.DevicesFound, &sc.AlertsGenerated, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scan row: %w", err)
	}

	sc.StartedAt = timePtr(startedAt)
	sc.CompletedAt = timePtr(completedAt)
	sc.ResultSummary = resultSummary.String
	sc.ErrorMessage = errorMessage.String
	sc.Parameters = unmarshalJSON(params)
	sc.Results = unmarshalJSON(results)
	sc.CreatedAt = time.Unix(createdAt, 0).UTC()
	sc.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sc, nil
}
