package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/netsentry/netsentry/internal/scans"
	"github.com/netsentry/netsentry/internal/store"
)

func (r *Router) handleScans(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		list, err := r.scans.List(req.Context(), req.URL.Query().Get("status"),
			queryInt(req, "limit"), queryInt(req, "offset"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		r.createScan(w, req)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (r *Router) createScan(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ScanType string                 `json:"scanType"`
		Tool     string                 `json:"tool"`
		Target   string                 `json:"target"`
		Params   map[string]interface{} `json:"params"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ScanType == "" || body.Tool == "" || body.Target == "" {
		writeError(w, http.StatusBadRequest, "scanType, tool and target are required")
		return
	}

	scan, err := r.scans.Create(req.Context(), body.ScanType, body.Tool, body.Target, body.Params)
	if err != nil {
		switch {
		case errors.Is(err, scans.ErrUnknownTool):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scans.ErrToolNotAvailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, scan)
}

func (r *Router) handleScanByID(w http.ResponseWriter, req *http.Request) {
	tail := pathTail(req.URL.Path, "/api/scans/")
	id, action, _ := strings.Cut(tail, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "scan id required")
		return
	}

	switch {
	case action == "" && req.Method == http.MethodGet:
		scan, err := r.scans.Get(req.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, scan)

	case action == "cancel" && req.Method == http.MethodPost:
		scan, err := r.scans.Cancel(req.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "scan not found")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, scan)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
