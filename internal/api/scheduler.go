package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/netsentry/netsentry/internal/store"
)

func (r *Router) handleJobs(w http.ResponseWriter, req *http.Request) {
	if r.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	switch req.Method {
	case http.MethodGet:
		jobs, err := r.scheduler.List(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, jobs)

	case http.MethodPost:
		r.createJob(w, req)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (r *Router) createJob(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name            string                 `json:"name"`
		TriggerKind     string                 `json:"triggerKind"`
		CronExpr        string                 `json:"cronExpr"`
		IntervalSeconds int                    `json:"intervalSeconds"`
		TaskType        string                 `json:"taskType"`
		TaskParams      map[string]interface{} `json:"taskParams"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	job, err := r.scheduler.AddJob(req.Context(), body.Name, body.TriggerKind,
		body.CronExpr, body.IntervalSeconds, body.TaskType, body.TaskParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (r *Router) handleJobByID(w http.ResponseWriter, req *http.Request) {
	if r.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	tail := pathTail(req.URL.Path, "/api/scheduler/jobs/")
	id, action, _ := strings.Cut(tail, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "job id required")
		return
	}

	switch {
	case action == "" && req.Method == http.MethodGet:
		job, err := r.scheduler.Get(req.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)

	case action == "" && req.Method == http.MethodDelete:
		if err := r.scheduler.Remove(req.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "pause" && req.Method == http.MethodPost:
		job, err := r.scheduler.Pause(req.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)

	case action == "resume" && req.Method == http.MethodPost:
		job, err := r.scheduler.Resume(req.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
