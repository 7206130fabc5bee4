package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/models"
)

// fakeAdapter records lifecycle calls for registry tests.
type fakeAdapter struct {
	noLifecycle
	name       string
	available  bool
	health     models.ToolStatus
	healthBoom bool
	started    bool
	stopped    bool
}

func (f *fakeAdapter) Info() *models.ToolInfo {
	status := models.StatusUnavailable
	if f.available {
		status = models.StatusAvailable
	}
	return &models.ToolInfo{Name: f.name, Status: status, Category: models.CategoryNetworkScanner}
}

func (f *fakeAdapter) Detect(ctx context.Context) bool { return f.available }

func (f *fakeAdapter) HealthCheck(ctx context.Context) models.ToolStatus {
	if f.healthBoom {
		panic("health check blew up")
	}
	return f.health
}

func (f *fakeAdapter) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"task": task}, nil
}

func (f *fakeAdapter) ParseOutput(raw, format string) map[string]interface{} {
	return map[string]interface{}{"raw": raw}
}

func (f *fakeAdapter) Start(ctx context.Context) error { f.started = true; return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error  { f.stopped = true; return nil }

func TestInitAllStartsOnlyDetected(t *testing.T) {
	r := NewRegistry()
	found := &fakeAdapter{name: "found", available: true}
	missing := &fakeAdapter{name: "missing", available: false}
	r.Register(found)
	r.Register(missing)

	results := r.InitAll(context.Background())
	assert.True(t, results["found"])
	assert.False(t, results["missing"])
	assert.True(t, found.started)
	assert.False(t, missing.started)
}

func TestInitAllIdempotent(t *testing.T) {
	r := NewRegistry()
	a := &fakeAdapter{name: "tool", available: true}
	r.Register(a)

	first := r.InitAll(context.Background())
	a.started = false
	second := r.InitAll(context.Background())

	assert.Equal(t, first, second)
	assert.False(t, a.started, "second InitAll must not re-run start")
}

func TestHealthCheckAllIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "ok", available: true, health: models.StatusAvailable})
	r.Register(&fakeAdapter{name: "boom", available: true, healthBoom: true})

	results := r.HealthCheckAll(context.Background())
	assert.Equal(t, models.StatusAvailable, results["ok"])
	assert.Equal(t, models.StatusError, results["boom"])
}

func TestShutdownAllStopsEverything(t *testing.T) {
	r := NewRegistry()
	a := &fakeAdapter{name: "a", available: true}
	b := &fakeAdapter{name: "b", available: false}
	r.Register(a)
	r.Register(b)

	r.ShutdownAll(context.Background())
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
}

func TestListToolsPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "zeta"})
	r.Register(&fakeAdapter{name: "alpha"})

	infos := r.ListTools()
	require.Len(t, infos, 2)
	assert.Equal(t, "zeta", infos[0].Name)
	assert.Equal(t, "alpha", infos[1].Name)
}

func TestDefaultRegistryHasAllTools(t *testing.T) {
	r := NewDefaultRegistry()
	for _, name := range []string{
		"nmap", "suricata", "zeek", "clamav", "fail2ban",
		"ossec", "openvas", "tshark", "ntopng", "pialert",
	} {
		assert.NotNil(t, r.Get(name), "missing adapter %s", name)
	}
	assert.Nil(t, r.Get("nonexistent"))
}
