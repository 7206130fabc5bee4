// Package scheduler runs recurring tasks on cron or fixed-interval triggers.
// Job definitions persist across restarts; the runtime schedule is rebuilt
// from the store on start.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/models"
)

// TaskFunc executes one scheduled task invocation.
type TaskFunc func(ctx context.Context, taskType string, params map[string]interface{})

// JobStore is the slice of the store the scheduler persists through.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ScheduledJob) error
	UpdateJob(ctx context.Context, job *models.ScheduledJob) error
	GetJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	ListJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	DeleteJob(ctx context.Context, id string) error
}

// Scheduler owns the cron runtime and the persisted job definitions.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	store   JobStore
	task    TaskFunc
	entries map[string]cron.EntryID
	started bool
}

// New creates a scheduler in the given timezone. An unknown timezone falls
// back to UTC.
func New(st JobStore, task TaskFunc, timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn().Str("timezone", timezone).Msg("Unknown timezone, using UTC")
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		store:   st,
		task:    task,
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads persisted jobs, schedules the enabled ones and starts the cron
// runtime.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if err := s.scheduleLocked(job); err != nil {
			log.Error().Err(err).Str("jobId", job.ID).Str("name", job.Name).
				Msg("Failed to schedule persisted job")
		}
	}

	s.cron.Start()
	s.started = true
	log.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron runtime without waiting for running invocations.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cron.Stop()
	s.started = false
	log.Info().Msg("Scheduler stopped")
}

// AddJob persists and schedules a new job. Cron jobs take a five-field cron
// expression, interval jobs a period in seconds.
func (s *Scheduler) AddJob(ctx context.Context, name, triggerKind, cronExpr string, intervalSeconds int, taskType string, taskParams map[string]interface{}) (*models.ScheduledJob, error) {
	job := &models.ScheduledJob{
		ID:              newJobID(),
		Name:            name,
		TriggerKind:     triggerKind,
		CronExpr:        cronExpr,
		IntervalSeconds: intervalSeconds,
		TaskType:        taskType,
		TaskParams:      taskParams,
		Enabled:         true,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := cronSpec(job); err != nil {
		return nil, err
	}
	if taskType == "" {
		return nil, fmt.Errorf("task type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scheduleLocked(job); err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		s.unscheduleLocked(job.ID)
		return nil, err
	}

	log.Info().Str("jobId", job.ID).Str("name", name).Str("trigger", triggerKind).
		Str("task", taskType).Msg("Scheduled job added")
	return job, nil
}

// Get returns one job with its next-run time refreshed from the runtime.
func (s *Scheduler) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshNextRun(job)
	return job, nil
}

// List returns all jobs with next-run times refreshed from the runtime.
func (s *Scheduler) List(ctx context.Context) ([]*models.ScheduledJob, error) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		s.refreshNextRun(job)
	}
	return jobs, nil
}

// Pause disables a job and removes it from the runtime. The definition stays
// persisted.
func (s *Scheduler) Pause(ctx context.Context, id string) (*models.ScheduledJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.unscheduleLocked(id)
	s.mu.Unlock()

	job.Enabled = false
	job.NextRun = nil
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	log.Info().Str("jobId", id).Msg("Scheduled job paused")
	return job, nil
}

// Resume re-enables a paused job and puts it back on the runtime.
func (s *Scheduler) Resume(ctx context.Context, id string) (*models.ScheduledJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	job.Enabled = true
	s.mu.Lock()
	scheduleErr := s.scheduleLocked(job)
	s.mu.Unlock()
	if scheduleErr != nil {
		return nil, scheduleErr
	}

	s.refreshNextRun(job)
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	log.Info().Str("jobId", id).Msg("Scheduled job resumed")
	return job, nil
}

// Remove unschedules and deletes a job.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	s.unscheduleLocked(id)
	s.mu.Unlock()

	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	log.Info().Str("jobId", id).Msg("Scheduled job removed")
	return nil
}

// scheduleLocked registers the job with the cron runtime. Caller holds mu.
func (s *Scheduler) scheduleLocked(job *models.ScheduledJob) error {
	spec, err := cronSpec(job)
	if err != nil {
		return err
	}
	if _, ok := s.entries[job.ID]; ok {
		return nil
	}

	id := job.ID
	taskType := job.TaskType
	params := job.TaskParams
	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(id, taskType, params)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entries[job.ID] = entryID
	return nil
}

func (s *Scheduler) unscheduleLocked(id string) {
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// fire runs one invocation and records last-run and next-run times.
func (s *Scheduler) fire(id, taskType string, params map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("jobId", id).
				Msg("Scheduled task panicked")
		}
	}()

	log.Debug().Str("jobId", id).Str("task", taskType).Msg("Scheduled task firing")
	s.task(context.Background(), taskType, params)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	job.LastRun = &now
	s.refreshNextRun(job)
	if err := s.store.UpdateJob(ctx, job); err != nil {
		log.Warn().Err(err).Str("jobId", id).Msg("Failed to record job run")
	}
}

// refreshNextRun copies the runtime's next fire time onto the job.
func (s *Scheduler) refreshNextRun(job *models.ScheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entries[job.ID]
	if !ok {
		return
	}
	next := s.cron.Entry(entryID).Next
	if next.IsZero() {
		job.NextRun = nil
		return
	}
	next = next.UTC()
	job.NextRun = &next
}

// cronSpec translates a job definition into a cron spec string.
func cronSpec(job *models.ScheduledJob) (string, error) {
	switch job.TriggerKind {
	case models.TriggerCron:
		if strings.TrimSpace(job.CronExpr) == "" {
			return "", fmt.Errorf("cron trigger requires an expression")
		}
		return job.CronExpr, nil
	case models.TriggerInterval:
		if job.IntervalSeconds <= 0 {
			return "", fmt.Errorf("interval trigger requires a positive period, got %d", job.IntervalSeconds)
		}
		return fmt.Sprintf("@every %ds", job.IntervalSeconds), nil
	}
	return "", fmt.Errorf("unknown trigger kind: %q", job.TriggerKind)
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
