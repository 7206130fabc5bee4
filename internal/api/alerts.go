package api

import (
	"net/http"

	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/store"
)

func (r *Router) handleAlerts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := store.AlertFilter{
		Severity:   models.Severity(req.URL.Query().Get("severity")),
		Status:     req.URL.Query().Get("status"),
		SourceTool: req.URL.Query().Get("sourceTool"),
		DeviceIP:   req.URL.Query().Get("deviceIp"),
		Limit:      queryInt(req, "limit"),
		Offset:     queryInt(req, "offset"),
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		writeError(w, http.StatusBadRequest, "invalid severity: "+string(filter.Severity))
		return
	}

	alerts, err := r.store.ListAlerts(req.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (r *Router) handleAlertStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := r.store.GetAlertStats(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (r *Router) handleAlertByID(w http.ResponseWriter, req *http.Request) {
	id := pathTail(req.URL.Path, "/api/alerts/")
	if id == "" {
		writeError(w, http.StatusNotFound, "alert id required")
		return
	}

	switch req.Method {
	case http.MethodGet:
		alert, err := r.store.GetAlert(req.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, alert)

	case http.MethodPatch:
		r.patchAlert(w, req, id)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

var validAlertStatuses = map[string]bool{
	models.AlertStatusOpen:          true,
	models.AlertStatusAcknowledged:  true,
	models.AlertStatusResolved:      true,
	models.AlertStatusFalsePositive: true,
}

// patchAlert transitions triage status. Resolving an alert releases its
// fingerprint so the next identical record opens a fresh alert.
func (r *Router) patchAlert(w http.ResponseWriter, req *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validAlertStatuses[body.Status] {
		writeError(w, http.StatusBadRequest, "invalid status: "+body.Status)
		return
	}

	alert, err := r.store.UpdateAlertStatus(req.Context(), id, body.Status, body.Notes)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	eventType := events.AlertUpdated
	if body.Status == models.AlertStatusResolved || body.Status == models.AlertStatusFalsePositive {
		eventType = events.AlertResolved
		if r.pipeline != nil && alert.Fingerprint != "" {
			r.pipeline.Deduplicator().Drop(alert.Fingerprint)
		}
	}
	if r.bus != nil {
		r.bus.PublishNowait(events.New(eventType, "api", map[string]interface{}{
			"alert_id": alert.ID,
			"status":   alert.Status,
		}))
	}
	writeJSON(w, http.StatusOK, alert)
}
