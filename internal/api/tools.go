package api

import (
	"net/http"
	"strings"

	"github.com/netsentry/netsentry/internal/models"
)

func (r *Router) handleTools(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, r.registry.ListTools())
}

// handleToolByName routes /api/tools/{name}, /{name}/health and
// /{name}/execute.
func (r *Router) handleToolByName(w http.ResponseWriter, req *http.Request) {
	tail := pathTail(req.URL.Path, "/api/tools/")
	name, action, _ := strings.Cut(tail, "/")
	if name == "" {
		writeError(w, http.StatusNotFound, "tool name required")
		return
	}

	adapter := r.registry.Get(name)
	if adapter == nil {
		writeError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}

	switch action {
	case "":
		if req.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, adapter.Info())

	case "health":
		if req.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		status := adapter.HealthCheck(req.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tool":   name,
			"status": status,
		})

	case "execute":
		if req.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		r.executeTool(w, req, name)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (r *Router) executeTool(w http.ResponseWriter, req *http.Request, name string) {
	var body struct {
		Task   string                 `json:"task"`
		Params map[string]interface{} `json:"params"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	adapter := r.registry.Get(name)
	switch adapter.Info().Status {
	case models.StatusAvailable, models.StatusRunning:
	default:
		writeError(w, http.StatusServiceUnavailable, "tool not available: "+name)
		return
	}

	results, err := adapter.Execute(req.Context(), body.Task, body.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tool":    name,
		"task":    body.Task,
		"results": results,
	})
}
