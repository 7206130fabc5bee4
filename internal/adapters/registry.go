package adapters

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/models"
)

// Registry holds one adapter instance per tool. The map is written during
// registration and read-only afterwards.
type Registry struct {
	mu          sync.Mutex
	adapters    map[string]Adapter
	order       []string
	initialized bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// NewDefaultRegistry creates a registry with every built-in adapter.
// Adding a new tool means adding one constructor here.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, adapter := range []Adapter{
		NewNmap(),
		NewSuricata(),
		NewZeek(),
		NewClamAV(),
		NewFail2Ban(),
		NewOSSEC(),
		NewOpenVAS(),
		NewTShark(),
		NewNtopng(),
		NewPiAlert(),
	} {
		r.Register(adapter)
	}
	return r
}

// Register adds an adapter under its declared tool name.
func (r *Registry) Register(adapter Adapter) {
	name := adapter.Info().Name
	r.mu.Lock()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = adapter
	r.mu.Unlock()
	log.Info().Str("tool", name).Msg("Registered adapter")
}

// Get returns the adapter for a tool name, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adapters[name]
}

// ListTools returns descriptors for every registered tool in registration
// order.
func (r *Registry) ListTools() []*models.ToolInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]*models.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.adapters[name].Info())
	}
	return infos
}

// InitAll runs Detect on every adapter concurrently and calls Start on the
// ones that reported available. Returns tool name to availability. Repeat
// calls return the current availability without re-detecting.
func (r *Registry) InitAll(ctx context.Context) map[string]bool {
	r.mu.Lock()
	if r.initialized {
		results := make(map[string]bool, len(r.adapters))
		for name, adapter := range r.adapters {
			results[name] = adapter.Info().Status == models.StatusAvailable
		}
		r.mu.Unlock()
		return results
	}
	r.initialized = true
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	var wg sync.WaitGroup
	var resMu sync.Mutex
	results := make(map[string]bool, len(snapshot))

	for name, adapter := range snapshot {
		wg.Add(1)
		go func(name string, adapter Adapter) {
			defer wg.Done()
			available := adapter.Detect(ctx)
			if available {
				if err := adapter.Start(ctx); err != nil {
					log.Error().Err(err).Str("tool", name).Msg("Adapter start failed")
				}
				log.Info().Str("tool", name).Msg("Tool available")
			} else {
				log.Info().Str("tool", name).Msg("Tool not found")
			}
			resMu.Lock()
			results[name] = available
			resMu.Unlock()
		}(name, adapter)
	}
	wg.Wait()
	return results
}

// HealthCheckAll runs health checks on every adapter concurrently. A failing
// adapter never prevents the others from reporting.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]models.ToolStatus {
	r.mu.Lock()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	var wg sync.WaitGroup
	var resMu sync.Mutex
	results := make(map[string]models.ToolStatus, len(snapshot))

	for name, adapter := range snapshot {
		wg.Add(1)
		go func(name string, adapter Adapter) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Str("tool", name).Msg("Health check panicked")
					resMu.Lock()
					results[name] = models.StatusError
					resMu.Unlock()
				}
			}()
			status := adapter.HealthCheck(ctx)
			resMu.Lock()
			results[name] = status
			resMu.Unlock()
		}(name, adapter)
	}
	wg.Wait()
	return results
}

// ShutdownAll stops every adapter, ignoring errors.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	for name, adapter := range snapshot {
		if err := adapter.Stop(ctx); err != nil {
			log.Error().Err(err).Str("tool", name).Msg("Error stopping adapter")
		}
	}
}

func (r *Registry) snapshotLocked() map[string]Adapter {
	snapshot := make(map[string]Adapter, len(r.adapters))
	for name, adapter := range r.adapters {
		snapshot[name] = adapter
	}
	return snapshot
}
