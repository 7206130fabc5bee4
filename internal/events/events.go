// Package events provides the in-process event bus: a bounded queue with
// typed and wildcard subscribers, drained by a single dispatch goroutine.
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type enumerates the stable event type strings.
type Type string

const (
	ScanStarted   Type = "scan.started"
	ScanProgress  Type = "scan.progress"
	ScanCompleted Type = "scan.completed"
	ScanFailed    Type = "scan.failed"

	DeviceDiscovered Type = "device.discovered"
	DeviceUpdated    Type = "device.updated"
	DeviceOffline    Type = "device.offline"

	AlertCreated  Type = "alert.created"
	AlertUpdated  Type = "alert.updated"
	AlertResolved Type = "alert.resolved"

	ToolOnline  Type = "tool.online"
	ToolOffline Type = "tool.offline"

	SystemStartup  Type = "system.startup"
	SystemShutdown Type = "system.shutdown"
)

// Event is an immutable record published on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

// New constructs an event with a fresh id and UTC timestamp.
func New(eventType Type, source string, data map[string]interface{}) Event {
	return Event{
		ID:        newID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      data,
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Handler consumes one event. Handler errors are logged and never propagate
// to the publisher.
type Handler func(ctx context.Context, event Event) error

// DefaultQueueSize bounds the bus queue.
const DefaultQueueSize = 10000

// DroppedHook is called when PublishNowait drops an event on overflow.
// Wired to a metrics counter from main.
var DroppedHook func(eventType string)

// Bus is a single-process publish/subscribe bus. Events delivered to a given
// subscriber preserve publish order.
type Bus struct {
	queue chan Event

	mu          sync.RWMutex
	subscribers map[Type][]Handler
	wildcards   []Handler

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBus creates a bus with the given queue capacity; <=0 uses the default.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queue:       make(chan Event, queueSize),
		subscribers: make(map[Type][]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a wildcard handler that receives every event.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcards = append(b.wildcards, handler)
}

// Publish enqueues an event, waiting for queue space. Returns the context's
// error if it is cancelled while waiting.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	select {
	case b.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishNowait enqueues an event without blocking, dropping it when the
// queue is full.
func (b *Bus) PublishNowait(event Event) {
	select {
	case b.queue <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("Event queue full, dropping event")
		if DroppedHook != nil {
			DroppedHook(string(event.Type))
		}
	}
}

// Start launches the dispatch goroutine. Idempotent.
func (b *Bus) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.dispatchLoop(ctx)
	log.Info().Int("queueSize", cap(b.queue)).Msg("Event bus started")
}

// Stop cancels dispatch and drains everything already queued before
// returning. Idempotent.
func (b *Bus) Stop() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return
	}
	b.cancel()
	<-b.done
	b.running = false
	log.Info().Msg("Event bus stopped")
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case event := <-b.queue:
			b.dispatch(ctx, event)
		case <-ctx.Done():
			// Drain what was queued before stop.
			for {
				select {
				case event := <-b.queue:
					b.dispatch(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// dispatch invokes subscribers in registration order; each invocation is
// isolated so one failing subscriber cannot block the rest.
func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	typed := append([]Handler(nil), b.subscribers[event.Type]...)
	wildcards := append([]Handler(nil), b.wildcards...)
	b.mu.RUnlock()

	for _, handler := range typed {
		b.invoke(ctx, handler, event)
	}
	for _, handler := range wildcards {
		b.invoke(ctx, handler, event)
	}
}

func (b *Bus) invoke(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("type", string(event.Type)).Msg("Event handler panicked")
		}
	}()
	if err := handler(ctx, event); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Event handler failed")
	}
}
