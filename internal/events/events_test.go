package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventHasIDAndTimestamp(t *testing.T) {
	evt := New(AlertCreated, "pipeline", map[string]interface{}{"id": "abc"})
	assert.Len(t, evt.ID, 32)
	assert.Equal(t, AlertCreated, evt.Type)
	assert.Equal(t, "pipeline", evt.Source)
	assert.WithinDuration(t, time.Now().UTC(), evt.Timestamp, 5*time.Second)
}

func TestTypedAndWildcardDelivery(t *testing.T) {
	bus := NewBus(16)

	var mu sync.Mutex
	var typed, all []Type
	bus.Subscribe(ScanStarted, func(ctx context.Context, e Event) error {
		mu.Lock()
		typed = append(typed, e.Type)
		mu.Unlock()
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		mu.Lock()
		all = append(all, e.Type)
		mu.Unlock()
		return nil
	})

	bus.Start()
	require.NoError(t, bus.Publish(context.Background(), New(ScanStarted, "test", nil)))
	require.NoError(t, bus.Publish(context.Background(), New(ScanCompleted, "test", nil)))
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Type{ScanStarted}, typed)
	assert.Equal(t, []Type{ScanStarted, ScanCompleted}, all)
}

func TestOrderingPreservedPerSubscriber(t *testing.T) {
	bus := NewBus(128)

	var mu sync.Mutex
	var got []string
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		mu.Lock()
		got = append(got, e.Data["seq"].(string))
		mu.Unlock()
		return nil
	})

	bus.Start()
	want := []string{"a", "b", "c", "d", "e"}
	for _, seq := range want {
		require.NoError(t, bus.Publish(context.Background(), New(ScanProgress, "test", map[string]interface{}{"seq": seq})))
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus(16)

	var mu sync.Mutex
	delivered := 0
	bus.Subscribe(AlertCreated, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(AlertCreated, func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe(AlertCreated, func(ctx context.Context, e Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	bus.Start()
	require.NoError(t, bus.Publish(context.Background(), New(AlertCreated, "test", nil)))
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}

func TestPublishNowaitDropsOnFullQueue(t *testing.T) {
	bus := NewBus(1)
	// Bus not started, so the queue fills up.
	bus.PublishNowait(New(ScanProgress, "test", nil))
	bus.PublishNowait(New(ScanProgress, "test", nil))
	assert.Len(t, bus.queue, 1)
}

func TestPublishHonorsContextCancel(t *testing.T) {
	bus := NewBus(1)
	require.NoError(t, bus.Publish(context.Background(), New(ScanProgress, "test", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, New(ScanProgress, "test", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	bus := NewBus(64)

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	// Queue before starting so everything is pending when Stop runs.
	for i := 0; i < 10; i++ {
		bus.PublishNowait(New(DeviceUpdated, "test", nil))
	}
	bus.Start()
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestStartStopIdempotent(t *testing.T) {
	bus := NewBus(4)
	bus.Start()
	bus.Start()
	bus.Stop()
	bus.Stop()
	assert.NotPanics(t, func() { bus.Stop() })
}
