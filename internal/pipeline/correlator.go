package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultCorrelationWindow groups cross-tool alerts on one device.
const DefaultCorrelationWindow = 600 * time.Second

type correlationEntry struct {
	sourceTool string
	title      string
	id         string
	seenAt     time.Time
}

// Correlator groups alerts from different tools on the same device IP
// within a time window. Safe for concurrent use.
type Correlator struct {
	mu     sync.Mutex
	window time.Duration
	recent map[string][]correlationEntry

	now func() time.Time
}

// NewCorrelator creates a correlator; window <= 0 uses the default.
func NewCorrelator(window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	return &Correlator{
		window: window,
		recent: make(map[string][]correlationEntry),
		now:    time.Now,
	}
}

// Correlate returns the correlation id for an alert: the id of the oldest
// live entry from a different tool on the same device, or a fresh 12-hex id.
// Alerts without a device IP are not correlated and get "".
func (c *Correlator) Correlate(alert NormalizedAlert) string {
	if alert.DeviceIP == "" {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	live := c.recent[alert.DeviceIP][:0]
	for _, entry := range c.recent[alert.DeviceIP] {
		if now.Sub(entry.seenAt) <= c.window {
			live = append(live, entry)
		}
	}

	for _, entry := range live {
		if entry.sourceTool != alert.SourceTool {
			log.Info().
				Str("title", alert.Title).
				Str("tool", alert.SourceTool).
				Str("matchedTitle", entry.title).
				Str("matchedTool", entry.sourceTool).
				Str("deviceIp", alert.DeviceIP).
				Msg("Correlated alerts")
			live = append(live, correlationEntry{alert.SourceTool, alert.Title, entry.id, now})
			c.recent[alert.DeviceIP] = live
			return entry.id
		}
	}

	id := newCorrelationID()
	live = append(live, correlationEntry{alert.SourceTool, alert.Title, id, now})
	c.recent[alert.DeviceIP] = live
	return id
}

// Cleanup drops device lists whose entries are all older than twice the
// window.
func (c *Correlator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for ip, entries := range c.recent {
		live := entries[:0]
		for _, entry := range entries {
			if now.Sub(entry.seenAt) <= 2*c.window {
				live = append(live, entry)
			}
		}
		if len(live) == 0 {
			delete(c.recent, ip)
		} else {
			c.recent[ip] = live
		}
	}
}

func newCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
