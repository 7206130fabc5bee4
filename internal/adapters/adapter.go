// Package adapters wraps each external security tool behind a common
// capability set: detect, health, execute, parse.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/platform"
)

// ErrNotAvailable is returned by Execute when the tool was never detected.
var ErrNotAvailable = errors.New("tool not available")

// versionProbeTimeout bounds cheap self-test invocations.
const versionProbeTimeout = 10 * time.Second

// Adapter is the contract every tool adapter implements. A single instance
// per tool lives in the registry; adapters never share mutable state.
type Adapter interface {
	// Info returns the tool descriptor. Status reflects the latest
	// detect/health result.
	Info() *models.ToolInfo

	// Detect locates the tool and populates version and status. Idempotent.
	Detect(ctx context.Context) bool

	// HealthCheck returns a fresh status, possibly probing the tool.
	HealthCheck(ctx context.Context) models.ToolStatus

	// Execute dispatches a supported task. Failures surface either as an
	// error (tool not available, bad arguments) or as a result map with an
	// "error" key (tool ran but reported a problem).
	Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error)

	// ParseOutput turns raw tool output into the same shape Execute returns.
	// Parse failures yield {"error": ..., "raw": <truncated>}, never an error.
	ParseOutput(raw string, format string) map[string]interface{}

	// Start and Stop are lifecycle hooks, no-ops for most adapters.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Swappable tool-probing functions, overridden in tests.
var (
	runCommand    command.Runner = command.Run
	findBinary                   = platform.FindToolBinary
	lookPath                     = command.LookPath
	binaryVersion                = command.BinaryVersion
	statFile                     = os.Stat
)

// toolState holds the mutable probe results every adapter embeds. The health
// sweep goroutine writes status while API handlers read it through Info, so
// all access goes through the locked accessors.
type toolState struct {
	mu      sync.Mutex
	binary  string
	version string
	status  models.ToolStatus
}

func newToolState() toolState {
	return toolState{status: models.StatusUnknown}
}

// snapshot returns a consistent view of binary, version and status.
func (t *toolState) snapshot() (string, string, models.ToolStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.binary, t.version, t.status
}

// setDetected records a full detect result.
func (t *toolState) setDetected(binary, version string, status models.ToolStatus) {
	t.mu.Lock()
	t.binary = binary
	t.version = version
	t.status = status
	t.mu.Unlock()
}

func (t *toolState) setStatus(status models.ToolStatus) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

func (t *toolState) binaryPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.binary
}

// noLifecycle provides the default no-op Start/Stop hooks.
type noLifecycle struct{}

func (noLifecycle) Start(ctx context.Context) error { return nil }
func (noLifecycle) Stop(ctx context.Context) error  { return nil }

func errUnknownTask(tool, task string) error {
	return fmt.Errorf("%s: unknown task %q", tool, task)
}

// paramString reads a string parameter with a default.
func paramString(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// paramInt reads a numeric parameter with a default; JSON decoding yields
// float64 so both forms are accepted.
func paramInt(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func truncateRaw(raw string) string {
	const max = 2000
	if len(raw) > max {
		return raw[:max]
	}
	return raw
}

// credential reads an adapter credential from the environment, following the
// NETSEC__<TOOL>__<KEY> convention.
func credential(tool, key string) string {
	name := "NETSEC__" + strings.ToUpper(tool) + "__" + strings.ToUpper(key)
	return os.Getenv(name)
}
