package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

const jobColumns = `id, name, trigger_kind, cron_expr, interval_seconds, task_type, task_params,
	enabled, last_run, next_run, created_at`

// CreateJob inserts a scheduled job definition.
func (s *Store) CreateJob(ctx context.Context, job *models.ScheduledJob) error {
	params, err := marshalJSON(job.TaskParams)
	if err != nil {
		return fmt.Errorf("failed to encode task params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.TriggerKind, job.CronExpr, job.IntervalSeconds,
		job.TaskType, params, boolToInt(job.Enabled),
		nullTime(job.LastRun), nullTime(job.NextRun), job.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert scheduled job: %w", err)
	}
	return nil
}

// UpdateJob rewrites a job's mutable fields.
func (s *Store) UpdateJob(ctx context.Context, job *models.ScheduledJob) error {
	params, err := marshalJSON(job.TaskParams)
	if err != nil {
		return fmt.Errorf("failed to encode task params: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET name = ?, trigger_kind = ?, cron_expr = ?,
			interval_seconds = ?, task_type = ?, task_params = ?, enabled = ?,
			last_run = ?, next_run = ?
		WHERE id = ?`,
		job.Name, job.TriggerKind, job.CronExpr, job.IntervalSeconds,
		job.TaskType, params, boolToInt(job.Enabled),
		nullTime(job.LastRun), nullTime(job.NextRun), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update scheduled job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob fetches one scheduled job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns all scheduled jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a scheduled job.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row rowScanner) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var cronExpr, params sql.NullString
	var enabled int
	var lastRun, nextRun sql.NullInt64
	var createdAt int64

	err := row.Scan(&j.ID, &j.Name, &j.TriggerKind, &cronExpr, &j.IntervalSeconds,
		&j.TaskType, &params, &enabled, &lastRun, &nextRun, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scheduled job: %w", err)
	}

	j.CronExpr = cronExpr.String
	j.TaskParams = unmarshalJSON(params)
	j.Enabled = enabled != 0
	j.LastRun = timePtr(lastRun)
	j.NextRun = timePtr(nextRun)
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
