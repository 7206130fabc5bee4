package pipeline

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

// SuppressedHook is called once per suppressed duplicate. Wired to a metrics
// counter from main.
var SuppressedHook func(sourceTool string)

// AlertStore is the slice of the store the pipeline persists through.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetOpenAlertByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error)
	IncrementAlert(ctx context.Context, id string, lastSeen time.Time) error
}

// Pipeline runs raw tool records through normalize, dedup, correlate,
// classify, persist and dispatch.
type Pipeline struct {
	normalizer   *Normalizer
	deduplicator *Deduplicator
	correlator   *Correlator
	classifier   *Classifier
	dispatcher   *Dispatcher
	store        AlertStore
	bus          *events.Bus
}

// New assembles a pipeline. Dispatcher and bus may be nil; those stages are
// then skipped.
func New(st AlertStore, bus *events.Bus, dispatcher *Dispatcher, dedupWindow time.Duration) *Pipeline {
	return &Pipeline{
		normalizer:   NewNormalizer(),
		deduplicator: NewDeduplicator(dedupWindow),
		correlator:   NewCorrelator(0),
		classifier:   NewClassifier(nil),
		dispatcher:   dispatcher,
		store:        st,
		bus:          bus,
	}
}

// Deduplicator exposes the dedup table so resolved alerts can release their
// fingerprints.
func (p *Pipeline) Deduplicator() *Deduplicator {
	return p.deduplicator
}

// Process ingests one raw record from a tool. Duplicates update the existing
// open alert and return nil; new occurrences produce a persisted alert,
// dispatched and announced on the bus.
func (p *Pipeline) Process(ctx context.Context, sourceTool string, raw map[string]interface{}) (*models.Alert, error) {
	normalized := p.normalizer.Normalize(sourceTool, raw)

	isNew, count := p.deduplicator.Check(normalized.Fingerprint)
	if !isNew {
		if SuppressedHook != nil {
			SuppressedHook(normalized.SourceTool)
		}
		existing, err := p.store.GetOpenAlertByFingerprint(ctx, normalized.Fingerprint)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Debug().Str("fingerprint", normalized.Fingerprint).
					Msg("Duplicate with no open alert, suppressed")
				return nil, nil
			}
			return nil, fmt.Errorf("failed to look up duplicate alert: %w", err)
		}
		if err := p.store.IncrementAlert(ctx, existing.ID, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("failed to update duplicate alert: %w", err)
		}
		log.Debug().Str("alertId", existing.ID).Int("count", count).
			Msg("Duplicate alert suppressed")
		return nil, nil
	}

	correlationID := p.correlator.Correlate(normalized)
	severity := p.classifier.Classify(normalized, count)

	now := time.Now().UTC()
	alert := &models.Alert{
		ID:            strings.ReplaceAll(uuid.NewString(), "-", ""),
		Title:         normalized.Title,
		Description:   normalized.Description,
		Severity:      severity,
		Status:        models.AlertStatusOpen,
		SourceTool:    normalized.SourceTool,
		SourceEventID: normalized.SourceEventID,
		Category:      normalized.Category,
		DeviceIP:      normalized.DeviceIP,
		Fingerprint:   normalized.Fingerprint,
		Count:         count,
		FirstSeen:     normalized.Timestamp,
		LastSeen:      now,
		RawData:       normalized.RawData,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.store.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to persist alert: %w", err)
	}

	if p.dispatcher != nil {
		normalized.Severity = severity
		p.dispatcher.Dispatch(ctx, normalized, correlationID)
	}

	if p.bus != nil {
		p.bus.PublishNowait(events.New(events.AlertCreated, "pipeline", map[string]interface{}{
			"alert_id":       alert.ID,
			"title":          alert.Title,
			"severity":       string(alert.Severity),
			"source_tool":    alert.SourceTool,
			"device_ip":      alert.DeviceIP,
			"correlation_id": alert.CorrelationID,
		}))
	}

	log.Info().Str("alertId", alert.ID).Str("title", alert.Title).
		Str("severity", string(alert.Severity)).Str("tool", alert.SourceTool).
		Msg("Alert created")
	return alert, nil
}

// ProcessBatch ingests many raw records and returns the alerts created.
// Per-record failures are logged and skipped.
func (p *Pipeline) ProcessBatch(ctx context.Context, sourceTool string, raws []map[string]interface{}) []*models.Alert {
	var created []*models.Alert
	for _, raw := range raws {
		alert, err := p.Process(ctx, sourceTool, raw)
		if err != nil {
			log.Error().Err(err).Str("tool", sourceTool).Msg("Alert processing failed")
			continue
		}
		if alert != nil {
			created = append(created, alert)
		}
	}
	return created
}

// Cleanup prunes expired dedup and correlation state. Run periodically.
func (p *Pipeline) Cleanup() {
	removed := p.deduplicator.Cleanup()
	p.correlator.Cleanup()
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Dedup table pruned")
	}
}
