package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"emsxbridge.com/internal/constants"
	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/event"
)

// FillCounter is told how many new fills each synchronisation stored.
type FillCounter interface {
	AddFillsStored(n int)
}

// Engine is the blotter coordinator:
//  1. receives updates from the subscription workflow on the session goroutine
//  2. hands them to the event bus so the session is never blocked on storage
//  3. persists each update and then pushes it to websocket clients
type Engine struct {
	bus      *event.Bus
	blotter  domain.BlotterService
	notifier domain.Notifier
	fills    FillCounter
	state    *SubscriptionState
	log      *zap.Logger

	stopped atomic.Bool
}

func NewEngine(
	bus *event.Bus,
	blotter domain.BlotterService,
	notifier domain.Notifier,
	fills FillCounter,
	log *zap.Logger,
) *Engine {
	return &Engine{
		bus:      bus,
		blotter:  blotter,
		notifier: notifier,
		fills:    fills,
		state:    NewSubscriptionState(),
		log:      log,
	}
}

// Start registers the engine's bus handlers.
func (e *Engine) Start() {
	e.log.Info("Engine: starting")

	e.bus.Subscribe(constants.EventOrderUpdated, e.onUpdate)
	e.bus.Subscribe(constants.EventRouteUpdated, e.onUpdate)
	e.bus.Subscribe(constants.EventHeartbeat, func(_ context.Context, ev event.Event) error {
		e.state.RecordHeartbeat(ev.Data.(emsx.TopicKind))
		return nil
	})
	e.bus.Subscribe(constants.EventPainted, func(_ context.Context, ev event.Event) error {
		kind := ev.Data.(emsx.TopicKind)
		e.state.RecordEndOfPaint(kind)
		e.log.Info("Engine: initial paint stored", zap.String("topic", string(kind)))
		return nil
	})
	e.bus.Subscribe(constants.EventFillsSynced, func(_ context.Context, ev event.Event) error {
		if n, ok := ev.Metadata["stored"].(int); ok && e.fills != nil {
			e.fills.AddFillsStored(n)
		}
		return nil
	})

	e.log.Info("Engine: started")
}

func (e *Engine) onUpdate(ctx context.Context, ev event.Event) error {
	u := ev.Data.(emsx.Update)
	e.state.RecordUpdate(u.Kind)

	if err := e.blotter.ApplyUpdate(ctx, u); err != nil {
		if errors.Is(err, domain.ErrNoData) {
			return nil
		}
		return err
	}
	if e.notifier != nil {
		e.notifier.PushUpdate(u)
	}
	return nil
}

// HandleUpdate implements workflow.Sink. It runs on the session goroutine
// and only queues the update, waiting for room on the bus when it is full.
func (e *Engine) HandleUpdate(u emsx.Update) {
	if e.stopped.Load() {
		return
	}
	typ := constants.EventOrderUpdated
	if u.Kind == emsx.RouteTopic {
		typ = constants.EventRouteUpdated
	}
	if err := e.bus.PublishWait(context.Background(), event.Event{Type: typ, Source: "Subscription", Data: u}); err != nil {
		e.log.Error("Engine: update not queued",
			zap.String("topic", string(u.Kind)), zap.Int64("sequence", u.Sequence()), zap.Int64("route", u.RouteID()),
			zap.Error(err))
	}
}

// HandleHeartbeat queues a heartbeat if there is room; a lost heartbeat is
// made up by the next one.
func (e *Engine) HandleHeartbeat(kind emsx.TopicKind) {
	e.bus.Publish(event.Event{Type: constants.EventHeartbeat, Source: "Subscription", Data: kind})
}

func (e *Engine) HandleEndOfPaint(kind emsx.TopicKind) {
	if err := e.bus.PublishWait(context.Background(), event.Event{Type: constants.EventPainted, Source: "Subscription", Data: kind}); err != nil {
		e.log.Error("Engine: end of paint not queued", zap.String("topic", string(kind)), zap.Error(err))
	}
}

// State returns the subscription liveness tracked so far.
func (e *Engine) State() *SubscriptionState {
	return e.state
}

// Stop makes the engine ignore further updates. Updates already queued are
// still stored when the bus shuts down.
func (e *Engine) Stop() {
	e.log.Info("Engine: stopping")
	e.stopped.Store(true)
}
