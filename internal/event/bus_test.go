package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus(16, zap.NewNop())

	var mu sync.Mutex
	var got []int
	bus.Subscribe("order.updated", func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Data.(int))
		return nil
	})

	for i := 0; i < 10; i++ {
		require.True(t, bus.Publish(Event{Type: "order.updated", Data: i}))
	}
	bus.Shutdown()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.False(t, bus.Publish(Event{Type: "order.updated", Data: 10}))
}

func TestPublishSyncRunsAllHandlers(t *testing.T) {
	bus := NewBus(1, zap.NewNop())
	defer bus.Shutdown()

	var mu sync.Mutex
	calls := 0
	handler := func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.False(t, e.Timestamp.IsZero())
		return nil
	}
	bus.Subscribe("route.updated", handler)
	bus.Subscribe("route.updated", func(context.Context, Event) error { return errors.New("boom") })
	bus.Subscribe("route.updated", handler)

	require.NoError(t, bus.PublishSync(context.Background(), Event{Type: "route.updated"}))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, bus.SubscriberCount("route.updated"))
	assert.Equal(t, 0, bus.SubscriberCount("fills.synced"))
}

func TestPublishWaitNeverDrops(t *testing.T) {
	bus := NewBus(4, zap.NewNop())

	var mu sync.Mutex
	var got []int
	bus.Subscribe("order.updated", func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Data.(int))
		return nil
	})

	want := make([]int, 200)
	for i := range want {
		want[i] = i
		require.NoError(t, bus.PublishWait(context.Background(), Event{Type: "order.updated", Data: i}))
	}
	bus.Shutdown()

	assert.Equal(t, want, got)
	assert.ErrorIs(t, bus.PublishWait(context.Background(), Event{Type: "order.updated"}), ErrBusClosed)
}

func TestPublishWaitHonoursContext(t *testing.T) {
	bus := NewBus(1, zap.NewNop())
	defer bus.Shutdown()

	block := make(chan struct{})
	bus.Subscribe("order.updated", func(context.Context, Event) error {
		<-block
		return nil
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	// one event in the handler, one in the buffer
	require.NoError(t, bus.PublishWait(ctx, Event{Type: "order.updated"}))
	require.NoError(t, bus.PublishWait(ctx, Event{Type: "order.updated"}))
	cancel()
	assert.ErrorIs(t, bus.PublishWait(ctx, Event{Type: "order.updated"}), context.Canceled)
}

func TestShutdownDispatchesQueuedEventsWithLiveContext(t *testing.T) {
	bus := NewBus(4096, zap.NewNop())

	var mu sync.Mutex
	handled := 0
	bus.Subscribe("route.updated", func(ctx context.Context, _ Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		handled++
		return nil
	})

	for i := 0; i < 200; i++ {
		require.True(t, bus.Publish(Event{Type: "route.updated"}))
	}
	bus.Shutdown()
	bus.Shutdown()

	assert.Equal(t, 200, handled)
}
