package pipeline

import (
	"sort"
	"sync"
	"time"
)

// DefaultDedupWindow defines "the same event" for deduplication.
const DefaultDedupWindow = 300 * time.Second

// maxDedupEntries bounds the table; hitting it evicts the oldest quarter.
const maxDedupEntries = 10000

type dedupEntry struct {
	firstSeen time.Time
	lastSeen  time.Time
	count     int
}

// Deduplicator tracks fingerprint occurrence windows. Safe for concurrent
// use.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]*dedupEntry

	now func() time.Time
}

// NewDeduplicator creates a deduplicator; window <= 0 uses the default.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{
		window: window,
		seen:   make(map[string]*dedupEntry),
		now:    time.Now,
	}
}

// Check reports whether a fingerprint is new. Duplicates within the window
// bump the counter and advance last-seen; expired entries reset to a fresh
// occurrence. The returned count includes this occurrence.
func (d *Deduplicator) Check(fingerprint string) (isNew bool, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if entry, ok := d.seen[fingerprint]; ok {
		if now.Sub(entry.lastSeen) <= d.window {
			entry.lastSeen = now
			entry.count++
			return false, entry.count
		}
		entry.firstSeen = now
		entry.lastSeen = now
		entry.count = 1
		return true, 1
	}

	if len(d.seen) >= maxDedupEntries {
		d.evictOldestLocked()
	}
	d.seen[fingerprint] = &dedupEntry{firstSeen: now, lastSeen: now, count: 1}
	return true, 1
}

// Drop removes a fingerprint so the next occurrence is treated as new.
// Called when its alert is resolved.
func (d *Deduplicator) Drop(fingerprint string) {
	d.mu.Lock()
	delete(d.seen, fingerprint)
	d.mu.Unlock()
}

// Cleanup removes entries idle for more than twice the window. Returns the
// number removed.
func (d *Deduplicator) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for fp, entry := range d.seen {
		if now.Sub(entry.lastSeen) > 2*d.window {
			delete(d.seen, fp)
			removed++
		}
	}
	return removed
}

// Len returns the current table size.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictOldestLocked drops the quarter of entries with the oldest last-seen.
func (d *Deduplicator) evictOldestLocked() {
	type aged struct {
		fp       string
		lastSeen time.Time
	}
	entries := make([]aged, 0, len(d.seen))
	for fp, entry := range d.seen {
		entries = append(entries, aged{fp, entry.lastSeen})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastSeen.Before(entries[j].lastSeen)
	})

	evict := len(entries) / 4
	if evict < 1 {
		evict = 1
	}
	for _, entry := range entries[:evict] {
		delete(d.seen, entry.fp)
	}
}
