// Package scans orchestrates scan execution: record lifecycle, adapter
// invocation and device inventory updates.
package scans

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/netsentry/netsentry/internal/adapters"
	"github.com/netsentry/netsentry/internal/devices"
	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

// Scan types.
const (
	TypeNetwork       = "network"
	TypeVulnerability = "vulnerability"
	TypeTraffic       = "traffic"
	TypeMalware       = "malware"
)

// FinishedHook is called when a scan reaches a terminal state. Wired to a
// metrics counter and histogram from main.
var FinishedHook func(tool, status string, seconds float64)

// ErrUnknownTool is returned when no adapter is registered under the
// requested name.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// ErrToolNotAvailable is returned when the adapter exists but its tool is not
// usable right now.
var ErrToolNotAvailable = fmt.Errorf("tool not available")

// taskFor maps (scan type, tool) to the adapter task to run.
var taskFor = map[[2]string]string{
	{TypeNetwork, "nmap"}:          "quick_scan",
	{TypeVulnerability, "nmap"}:    "vuln_scan",
	{TypeVulnerability, "openvas"}: "full_scan",
	{TypeTraffic, "tshark"}:        "capture",
	{TypeMalware, "clamav"}:        "scan",
}

const defaultTask = "quick_scan"

// ScanStore is the slice of the store the orchestrator persists through.
type ScanStore interface {
	CreateScan(ctx context.Context, scan *models.Scan) error
	UpdateScan(ctx context.Context, scan *models.Scan) error
	GetScan(ctx context.Context, id string) (*models.Scan, error)
	ListScans(ctx context.Context, status string, limit, offset int) ([]*models.Scan, error)
}

// Orchestrator runs scans through tool adapters with bounded concurrency.
type Orchestrator struct {
	store    ScanStore
	registry *adapters.Registry
	devices  *devices.Service
	bus      *events.Bus
	sem      *semaphore.Weighted
	timeout  time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates an orchestrator. maxConcurrent bounds simultaneous scans;
// timeout bounds each scan's wall clock.
func New(st ScanStore, registry *adapters.Registry, deviceSvc *devices.Service, bus *events.Bus, maxConcurrent int, timeout time.Duration) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		store:    st,
		registry: registry,
		devices:  deviceSvc,
		bus:      bus,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Create validates the request, persists a pending scan and runs it to a
// terminal state before returning. Callers wanting fire-and-forget run it on
// their own goroutine; Cancel works from any other goroutine meanwhile.
func (o *Orchestrator) Create(ctx context.Context, scanType, tool, target string, params map[string]interface{}) (*models.Scan, error) {
	adapter := o.registry.Get(tool)
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	switch adapter.Info().Status {
	case models.StatusAvailable, models.StatusRunning:
	default:
		return nil, fmt.Errorf("%w: %s", ErrToolNotAvailable, tool)
	}

	now := time.Now().UTC()
	scan := &models.Scan{
		ID:         strings.ReplaceAll(uuid.NewString(), "-", ""),
		ScanType:   scanType,
		Tool:       tool,
		Target:     target,
		Status:     models.ScanStatusPending,
		Parameters: params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.CreateScan(ctx, scan); err != nil {
		return nil, err
	}
	o.publish(events.ScanStarted, scan)
	log.Info().Str("scanId", scan.ID).Str("type", scanType).Str("tool", tool).
		Str("target", target).Msg("Scan created")

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[scan.ID] = cancel
	o.mu.Unlock()

	o.run(runCtx, scan.ID, adapter)
	return o.store.GetScan(ctx, scan.ID)
}

// Get returns one scan record.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Scan, error) {
	return o.store.GetScan(ctx, id)
}

// List returns scan records, optionally filtered by status.
func (o *Orchestrator) List(ctx context.Context, status string, limit, offset int) ([]*models.Scan, error) {
	return o.store.ListScans(ctx, status, limit, offset)
}

// Cancel transitions a pending or running scan to cancelled. Terminal scans
// are left untouched and reported as an error.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*models.Scan, error) {
	scan, err := o.store.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan.Terminal() {
		return nil, fmt.Errorf("scan %s is already %s", id, scan.Status)
	}

	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
	}
	o.mu.Unlock()

	now := time.Now().UTC()
	scan.Status = models.ScanStatusCancelled
	scan.CompletedAt = &now
	if err := o.store.UpdateScan(ctx, scan); err != nil {
		return nil, err
	}
	if FinishedHook != nil {
		seconds := 0.0
		if scan.StartedAt != nil {
			seconds = now.Sub(*scan.StartedAt).Seconds()
		}
		FinishedHook(scan.Tool, scan.Status, seconds)
	}
	log.Info().Str("scanId", id).Msg("Scan cancelled")
	o.publish(events.ScanFailed, scan)
	return scan, nil
}

// run executes one scan to a terminal state.
func (o *Orchestrator) run(ctx context.Context, scanID string, adapter adapters.Adapter) {
	defer func() {
		o.mu.Lock()
		delete(o.cancels, scanID)
		o.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("scanId", scanID).Msg("Scan panicked")
			o.finalize(scanID, func(scan *models.Scan) {
				scan.Status = models.ScanStatusFailed
				scan.ErrorMessage = fmt.Sprintf("internal error: %v", r)
			})
		}
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.finalize(scanID, func(scan *models.Scan) {
			scan.Status = models.ScanStatusCancelled
		})
		return
	}
	defer o.sem.Release(1)

	scan, err := o.store.GetScan(context.Background(), scanID)
	if err != nil {
		log.Error().Err(err).Str("scanId", scanID).Msg("Scan record vanished")
		return
	}
	if scan.Terminal() {
		// Cancelled while waiting for a slot.
		return
	}

	now := time.Now().UTC()
	scan.Status = models.ScanStatusRunning
	scan.Progress = 0
	scan.StartedAt = &now
	if err := o.store.UpdateScan(context.Background(), scan); err != nil {
		log.Error().Err(err).Str("scanId", scanID).Msg("Failed to mark scan running")
		return
	}
	o.publish(events.ScanProgress, scan)

	task := taskFor[[2]string{scan.ScanType, scan.Tool}]
	if task == "" {
		task = defaultTask
	}
	params := map[string]interface{}{"target": scan.Target}
	for k, v := range scan.Parameters {
		params[k] = v
	}

	execCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	results, err := adapter.Execute(execCtx, task, params)

	o.finalize(scanID, func(scan *models.Scan) {
		if err != nil {
			scan.Status = models.ScanStatusFailed
			scan.ErrorMessage = err.Error()
			return
		}
		if msg, ok := results["error"].(string); ok && msg != "" {
			scan.Status = models.ScanStatusFailed
			scan.ErrorMessage = msg
			scan.Results = results
			return
		}

		scan.Status = models.ScanStatusCompleted
		scan.Results = results
		scan.ResultSummary = summarize(results)
		if o.devices != nil {
			scan.DevicesFound = o.devices.UpsertScanHosts(context.Background(), results)
		}
	})
}

// finalize applies mutate to the scan and guarantees a terminal record with
// progress 100. Cancelled scans are left alone.
func (o *Orchestrator) finalize(scanID string, mutate func(*models.Scan)) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scan, err := o.store.GetScan(ctx, scanID)
	if err != nil {
		log.Error().Err(err).Str("scanId", scanID).Msg("Failed to load scan for finalize")
		return
	}
	if scan.Terminal() {
		return
	}

	mutate(scan)
	if !scan.Terminal() {
		scan.Status = models.ScanStatusFailed
		if scan.ErrorMessage == "" {
			scan.ErrorMessage = "scan ended in a non-terminal state"
		}
	}
	now := time.Now().UTC()
	scan.CompletedAt = &now
	scan.Progress = 100

	if err := o.store.UpdateScan(ctx, scan); err != nil {
		log.Error().Err(err).Str("scanId", scanID).Msg("Failed to finalize scan")
		return
	}

	if FinishedHook != nil {
		seconds := 0.0
		if scan.StartedAt != nil {
			seconds = now.Sub(*scan.StartedAt).Seconds()
		}
		FinishedHook(scan.Tool, scan.Status, seconds)
	}

	if scan.Status == models.ScanStatusCompleted {
		log.Info().Str("scanId", scanID).Str("summary", scan.ResultSummary).
			Int("devicesFound", scan.DevicesFound).Msg("Scan completed")
		o.publish(events.ScanCompleted, scan)
	} else {
		log.Warn().Str("scanId", scanID).Str("error", scan.ErrorMessage).Msg("Scan failed")
		o.publish(events.ScanFailed, scan)
	}
}

func (o *Orchestrator) publish(eventType events.Type, scan *models.Scan) {
	if o.bus == nil {
		return
	}
	o.bus.PublishNowait(events.New(eventType, "scans", map[string]interface{}{
		"scan_id":   scan.ID,
		"scan_type": scan.ScanType,
		"tool":      scan.Tool,
		"target":    scan.Target,
		"status":    scan.Status,
		"progress":  scan.Progress,
	}))
}

// summarize derives a human summary from scan results.
func summarize(results map[string]interface{}) string {
	if stats, ok := results["stats"].(map[string]interface{}); ok {
		up, upOK := intValue(stats["hosts_up"])
		down, downOK := intValue(stats["hosts_down"])
		if upOK || downOK {
			return fmt.Sprintf("%d hosts up, %d down", up, down)
		}
	}
	if hosts, ok := results["hosts"].([]map[string]interface{}); ok {
		return fmt.Sprintf("%d hosts found", len(hosts))
	}
	if hosts, ok := results["hosts"].([]interface{}); ok {
		return fmt.Sprintf("%d hosts found", len(hosts))
	}
	return "completed"
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

var _ ScanStore = (*store.Store)(nil)
