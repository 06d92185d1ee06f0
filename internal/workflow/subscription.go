package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/session"
)

var ErrSubscription = errors.New("workflow: subscription ended")

// Sink receives every order or route update that carries data.
type Sink interface {
	HandleUpdate(u emsx.Update)
}

type SinkFunc func(u emsx.Update)

func (f SinkFunc) HandleUpdate(u emsx.Update) { f(u) }

// HeartbeatSink is implemented by sinks that also want heartbeats.
type HeartbeatSink interface {
	HandleHeartbeat(kind emsx.TopicKind)
}

// PaintSink is implemented by sinks that want to know when the initial
// paint of a topic is complete.
type PaintSink interface {
	HandleEndOfPaint(kind emsx.TopicKind)
}

// SubscriptionAction subscribes to the order blotter and, once that
// subscription has started, to the route blotter. It runs until a
// subscription fails or the run is cancelled.
type SubscriptionAction struct {
	orderFields []emsx.Field
	routeFields []emsx.Field
	sinks       []Sink
	quiet       bool

	mu       sync.Mutex // guards the subscriptions, read by End off the event goroutine
	orderSub *session.Subscription
	routeSub *session.Subscription
}

func NewSubscriptionAction(sinks ...Sink) *SubscriptionAction {
	return &SubscriptionAction{
		orderFields: emsx.OrderFields,
		routeFields: emsx.RouteFields,
		sinks:       sinks,
	}
}

// WithFields narrows the fields requested on each topic.
func (a *SubscriptionAction) WithFields(order, route []emsx.Field) *SubscriptionAction {
	a.orderFields, a.routeFields = order, route
	return a
}

// Quiet stops updates from being printed; sinks still receive them.
func (a *SubscriptionAction) Quiet() *SubscriptionAction {
	a.quiet = true
	return a
}

func (a *SubscriptionAction) OrderSubscription() *session.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orderSub
}

func (a *SubscriptionAction) RouteSubscription() *session.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.routeSub
}

func (a *SubscriptionAction) Begin(ctx context.Context, s *session.Session, r *Runner) error {
	topic := emsx.Topic(r.Service(), emsx.OrderTopic, a.orderFields)
	sub := session.NewSubscription(topic, session.NewCorrelationID())
	a.mu.Lock()
	a.orderSub = sub
	a.mu.Unlock()
	r.Printer().Printf("Order Topic: %s\n", topic)
	return s.Subscribe(ctx, []*session.Subscription{sub})
}

func (a *SubscriptionAction) subscribeRoutes(s *session.Session, r *Runner) error {
	topic := emsx.Topic(r.Service(), emsx.RouteTopic, a.routeFields)
	sub := session.NewSubscription(topic, session.NewCorrelationID())
	a.mu.Lock()
	a.routeSub = sub
	a.mu.Unlock()
	r.Printer().Printf("Route Topic: %s\n", topic)
	return s.Subscribe(r.Context(), []*session.Subscription{sub})
}

// End unsubscribes the route topic and then the order topic.
func (a *SubscriptionAction) End(ctx context.Context, s *session.Session) error {
	a.mu.Lock()
	var subs []*session.Subscription
	if a.routeSub != nil {
		subs = append(subs, a.routeSub)
	}
	if a.orderSub != nil {
		subs = append(subs, a.orderSub)
	}
	a.mu.Unlock()
	if len(subs) == 0 {
		return nil
	}
	return s.Unsubscribe(ctx, subs)
}

func (a *SubscriptionAction) kindOf(cid session.CorrelationID) (emsx.TopicKind, bool) {
	switch {
	case a.orderSub != nil && cid == a.orderSub.CorrelationID:
		return emsx.OrderTopic, true
	case a.routeSub != nil && cid == a.routeSub.CorrelationID:
		return emsx.RouteTopic, true
	}
	return "", false
}

func (a *SubscriptionAction) Handle(ev *session.Event, s *session.Session, r *Runner) {
	switch ev.Type {
	case session.EventSubscriptionStatus:
		a.processStatus(ev, s, r)
	case session.EventSubscriptionData:
		a.processData(ev, r)
	default:
		r.Printer().EventHeader(ev.Type)
		for _, msg := range ev.Messages {
			r.Printer().Message(msg)
		}
	}
}

func (a *SubscriptionAction) processStatus(ev *session.Event, s *session.Session, r *Runner) {
	out := r.Printer()
	out.EventHeader(ev.Type)
	for _, msg := range ev.Messages {
		kind, ok := a.kindOf(msg.CorrelationID())
		if !ok {
			out.Message(msg)
			continue
		}
		switch msg.Type {
		case session.SubscriptionStarted:
			if kind == emsx.OrderTopic {
				out.Println("Order subscription started successfully")
				if err := a.subscribeRoutes(s, r); err != nil {
					r.Logger().Error("SubscriptionAction: route subscribe failed", zap.Error(err))
					r.Finish(err)
					return
				}
			} else {
				out.Println("Route subscription started successfully")
			}
		case session.SubscriptionFailure:
			out.Printf("Error: %s subscription failed\n", label(kind))
			out.Message(msg)
			r.Finish(fmt.Errorf("%w: %s subscription failed", ErrSubscription, kind))
		case session.SubscriptionTerminated:
			out.Printf("Error: %s subscription terminated\n", label(kind))
			out.Message(msg)
			r.Finish(fmt.Errorf("%w: %s subscription terminated", ErrSubscription, kind))
		default:
			out.Message(msg)
		}
	}
}

func (a *SubscriptionAction) processData(ev *session.Event, r *Runner) {
	out := r.Printer()
	for _, msg := range ev.Messages {
		kind, ok := a.kindOf(msg.CorrelationID())
		if !ok || msg.Type != emsx.MsgOrderRouteFields {
			continue
		}
		fields := a.orderFields
		if kind == emsx.RouteTopic {
			fields = a.routeFields
		}
		u, err := emsx.ExtractUpdate(msg, kind, fields)
		if err != nil {
			r.Logger().Warn("SubscriptionAction: dropping message", zap.Error(err))
			continue
		}

		switch u.Status {
		case emsx.StatusHeartbeat:
			if !a.quiet {
				out.Heartbeat(kind)
			}
			for _, sink := range a.sinks {
				if hb, ok := sink.(HeartbeatSink); ok {
					hb.HandleHeartbeat(kind)
				}
			}
		case emsx.StatusEndOfInitialPaint:
			if !a.quiet {
				out.EndOfInitialPaint(kind)
			}
			for _, sink := range a.sinks {
				if ps, ok := sink.(PaintSink); ok {
					ps.HandleEndOfPaint(kind)
				}
			}
		default:
			if !a.quiet {
				out.Update(u)
			}
			for _, sink := range a.sinks {
				sink.HandleUpdate(u)
			}
		}
	}
}

func label(kind emsx.TopicKind) string {
	if kind == emsx.RouteTopic {
		return "Route"
	}
	return "Order"
}
