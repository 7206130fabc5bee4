// Package api exposes the HTTP surface: tools, scans, devices, alerts,
// scheduler jobs, the push websocket and health.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/adapters"
	"github.com/netsentry/netsentry/internal/config"
	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/metrics"
	"github.com/netsentry/netsentry/internal/pipeline"
	"github.com/netsentry/netsentry/internal/scans"
	"github.com/netsentry/netsentry/internal/scheduler"
	"github.com/netsentry/netsentry/internal/store"
	"github.com/netsentry/netsentry/internal/websocket"
)

// Router handles HTTP routing.
type Router struct {
	mux       *http.ServeMux
	config    *config.Config
	store     *store.Store
	registry  *adapters.Registry
	scans     *scans.Orchestrator
	scheduler *scheduler.Scheduler
	pipeline  *pipeline.Pipeline
	bus       *events.Bus
	wsHub     *websocket.Hub
	startTime time.Time
}

// NewRouter creates the router with all endpoints registered.
func NewRouter(cfg *config.Config, st *store.Store, registry *adapters.Registry, orchestrator *scans.Orchestrator, sched *scheduler.Scheduler, pipe *pipeline.Pipeline, bus *events.Bus, wsHub *websocket.Hub) http.Handler {
	r := &Router{
		mux:       http.NewServeMux(),
		config:    cfg,
		store:     st,
		registry:  registry,
		scans:     orchestrator,
		scheduler: sched,
		pipeline:  pipe,
		bus:       bus,
		wsHub:     wsHub,
		startTime: time.Now(),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/healthz", r.handleHealth)
	r.mux.Handle("/metrics", metrics.Handler())

	r.mux.HandleFunc("/api/tools", r.handleTools)
	r.mux.HandleFunc("/api/tools/", r.handleToolByName)

	r.mux.HandleFunc("/api/scans", r.handleScans)
	r.mux.HandleFunc("/api/scans/", r.handleScanByID)

	r.mux.HandleFunc("/api/devices", r.handleDevices)
	r.mux.HandleFunc("/api/devices/", r.handleDeviceByID)

	r.mux.HandleFunc("/api/alerts", r.handleAlerts)
	r.mux.HandleFunc("/api/alerts/stats", r.handleAlertStats)
	r.mux.HandleFunc("/api/alerts/", r.handleAlertByID)

	r.mux.HandleFunc("/api/scheduler/jobs", r.handleJobs)
	r.mux.HandleFunc("/api/scheduler/jobs/", r.handleJobByID)

	if r.wsHub != nil {
		r.mux.HandleFunc("/ws", r.wsHub.HandleWebSocket)
	}
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasPrefix(req.URL.Path, "/api/") && !r.authorized(req) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	start := time.Now()
	r.mux.ServeHTTP(w, req)
	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("Request handled")
}

func (r *Router) authorized(req *http.Request) bool {
	if !r.config.AuthEnabled {
		return true
	}
	key := req.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(key), []byte(r.config.APIKey)) == 1
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  time.Since(r.startTime).Seconds(),
		"clients": r.wsClientCount(),
	})
}

func (r *Router) wsClientCount() int {
	if r.wsHub == nil {
		return 0
	}
	return r.wsHub.ClientCount()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON request body into v.
func decodeBody(req *http.Request, v interface{}) error {
	defer req.Body.Close()
	return json.NewDecoder(req.Body).Decode(v)
}

// pathTail returns what follows the prefix, with any trailing slash removed.
func pathTail(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}
