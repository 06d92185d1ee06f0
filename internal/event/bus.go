package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one blotter occurrence passed between components.
type Event struct {
	Type      string
	Source    string
	Data      any
	Metadata  map[string]any
	Timestamp time.Time
}

// ErrBusClosed is returned when publishing on a bus that is shutting down.
var ErrBusClosed = errors.New("event bus closed")

// Handler processes one event.
type Handler func(ctx context.Context, event Event) error

// Bus decouples the subscription feed from the components that consume it.
// Events published asynchronously are dispatched one at a time in
// publication order.
type Bus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	log      *zap.Logger

	eventChan chan Event
	ctx       context.Context // cancelled by Shutdown; refuses new events
	cancel    context.CancelFunc
	stop      chan struct{}
	pubMu     sync.RWMutex // held by publishers while they enqueue
	wg        sync.WaitGroup
}

func NewBus(bufferSize int, log *zap.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())

	bus := &Bus{
		handlers:  make(map[string][]Handler),
		log:       log,
		eventChan: make(chan Event, bufferSize),
		ctx:       ctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.log.Debug("EventBus: subscribed", zap.String("type", eventType))
}

// Publish queues event for asynchronous dispatch. It never blocks; when the
// buffer is full the event is dropped and false is returned.
func (b *Bus) Publish(event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.pubMu.RLock()
	defer b.pubMu.RUnlock()
	if b.ctx.Err() != nil {
		return false
	}

	select {
	case b.eventChan <- event:
		return true
	default:
		b.log.Warn("EventBus: channel full, dropping event", zap.String("type", event.Type))
		return false
	}
}

// PublishWait queues event for asynchronous dispatch, waiting for buffer
// space. It fails only when ctx is done or the bus is shutting down.
func (b *Bus) PublishWait(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.pubMu.RLock()
	defer b.pubMu.RUnlock()
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}

	select {
	case b.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return ErrBusClosed
	}
}

// PublishSync dispatches event on the caller's goroutine.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return b.dispatch(ctx, event)
}

func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.eventChan:
			if err := b.dispatch(context.Background(), event); err != nil {
				b.log.Error("EventBus: dispatch failed", zap.String("type", event.Type), zap.Error(err))
			}
		case <-b.stop:
			b.drain()
			return
		}
	}
}

// drain dispatches what is still buffered at shutdown.
func (b *Bus) drain() {
	for {
		select {
		case event := <-b.eventChan:
			b.dispatch(context.Background(), event)
		default:
			return
		}
	}
}

// dispatch runs every handler of the event type concurrently and waits for
// all of them. Handler errors are logged, not returned.
func (b *Bus) dispatch(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		b.log.Warn("EventBus: handler error", zap.String("type", event.Type), zap.Error(err))
	}
	return nil
}

// Shutdown refuses new events, waits for publishers already enqueueing and
// stops the processor once everything buffered has been dispatched. Handlers
// run with a context that Shutdown does not cancel. Calling it twice is safe.
func (b *Bus) Shutdown() {
	b.log.Info("EventBus: shutting down")
	b.cancel()
	b.pubMu.Lock()
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	b.pubMu.Unlock()
	b.wg.Wait()
}

func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
