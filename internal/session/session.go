// Package session drives a vendor session through a gateway.Transport:
// starting it, opening services, subscribing and sending requests, and
// delivering the resulting events to an EventHandler one at a time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/gateway"
)

var (
	ErrAlreadyStarted = errors.New("session: already started")
	ErrNotStarted     = errors.New("session: not started")
	ErrServiceNotOpen = errors.New("session: service not open")
	ErrRequestFailed  = errors.New("session: request failed")
	ErrStopped        = errors.New("session: stopped")
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// EventHandler receives every event not consumed by a synchronous call.
// Calls are serialised. The handler may use the async methods and Stop,
// but not OpenService or Do, whose answers it would be blocking.
type EventHandler interface {
	ProcessEvent(ev *Event, s *Session)
}

type EventHandlerFunc func(ev *Event, s *Session)

func (f EventHandlerFunc) ProcessEvent(ev *Event, s *Session) { f(ev, s) }

type Options struct {
	Host string
	Port int
}

// waiter collects the events addressed to a synchronous call.
type waiter struct {
	events chan *Event
	gone   chan struct{}
}

type Session struct {
	transport gateway.Transport
	handler   EventHandler
	opts      Options
	log       *zap.Logger

	mu              sync.Mutex
	state           State
	services        map[string]*Service
	pendingServices map[CorrelationID]string
	subscriptions   map[CorrelationID]*Subscription
	subStatus       map[CorrelationID]SubscriptionStatus
	waiters         map[CorrelationID]*waiter
	err             error

	handlerMu sync.Mutex

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func New(transport gateway.Transport, handler EventHandler, opts Options, log *zap.Logger) *Session {
	if handler == nil {
		handler = EventHandlerFunc(func(*Event, *Session) {})
	}
	return &Session{
		transport:       transport,
		handler:         handler,
		opts:            opts,
		log:             log,
		services:        make(map[string]*Service),
		pendingServices: make(map[CorrelationID]string),
		subscriptions:   make(map[CorrelationID]*Subscription),
		subStatus:       make(map[CorrelationID]SubscriptionStatus),
		waiters:         make(map[CorrelationID]*waiter),
		done:            make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err reports why the session ended, if it ended abnormally.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the event loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// StartAsync asks the bridge to start the session. SessionStarted or
// SessionStartupFailure arrives later as a SESSION_STATUS event.
func (s *Session) StartAsync(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.readLoop(loopCtx)

	payload, err := json.Marshal(s.opts)
	if err != nil {
		return fmt.Errorf("session: marshal options: %w", err)
	}
	cmd := gateway.NewCommand(gateway.CmdStartSession)
	cmd.Payload = payload

	if err := s.transport.Send(ctx, cmd); err != nil {
		s.fail(fmt.Errorf("session: start: %w", err))
		return err
	}
	s.log.Info("Session: starting", zap.String("host", s.opts.Host), zap.Int("port", s.opts.Port))
	return nil
}

func (s *Session) requireStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarted {
		return fmt.Errorf("%w (state %s)", ErrNotStarted, s.state)
	}
	return nil
}

// OpenServiceAsync requests a service. ServiceOpened or ServiceOpenFailure
// arrives later as a SERVICE_STATUS event carrying the returned id.
func (s *Session) OpenServiceAsync(ctx context.Context, name string) (CorrelationID, error) {
	if err := s.requireStarted(); err != nil {
		return 0, err
	}
	cid := NewCorrelationID()
	s.mu.Lock()
	s.pendingServices[cid] = name
	s.mu.Unlock()

	if err := s.sendOpenService(ctx, name, cid); err != nil {
		s.mu.Lock()
		delete(s.pendingServices, cid)
		s.mu.Unlock()
		return 0, err
	}
	return cid, nil
}

func (s *Session) sendOpenService(ctx context.Context, name string, cid CorrelationID) error {
	cmd := gateway.NewCommand(gateway.CmdOpenService)
	cmd.Service = name
	cmd.CorrelationID = int64(cid)
	if err := s.transport.Send(ctx, cmd); err != nil {
		return fmt.Errorf("session: open service %s: %w", name, err)
	}
	return nil
}

// OpenService opens name and waits for the outcome.
func (s *Session) OpenService(ctx context.Context, name string) (*Service, error) {
	if err := s.requireStarted(); err != nil {
		return nil, err
	}
	cid := NewCorrelationID()
	w := s.addWaiter(cid)
	defer s.removeWaiter(cid, w)

	s.mu.Lock()
	s.pendingServices[cid] = name
	s.mu.Unlock()

	if err := s.sendOpenService(ctx, name, cid); err != nil {
		return nil, err
	}

	for {
		select {
		case ev := <-w.events:
			for _, msg := range ev.Messages {
				switch msg.Type {
				case ServiceOpened:
					return s.GetService(name)
				case ServiceOpenFailure:
					return nil, fmt.Errorf("%w: %s: %s", ErrServiceNotOpen, name, describeFailure(msg))
				}
			}
		case <-s.done:
			return nil, ErrStopped
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetService returns an opened service.
func (s *Session) GetService(name string) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotOpen, name)
	}
	return svc, nil
}

// Subscribe registers and sends each subscription. Zero correlation ids
// are filled in.
func (s *Session) Subscribe(ctx context.Context, subs []*Subscription) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.CorrelationID == 0 {
			sub.CorrelationID = NewCorrelationID()
		}
		s.mu.Lock()
		s.subscriptions[sub.CorrelationID] = sub
		s.subStatus[sub.CorrelationID] = SubscriptionPending
		s.mu.Unlock()

		cmd := gateway.NewCommand(gateway.CmdSubscribe)
		cmd.Topic = sub.Topic
		cmd.CorrelationID = int64(sub.CorrelationID)
		if err := s.transport.Send(ctx, cmd); err != nil {
			return fmt.Errorf("session: subscribe %s: %w", sub.Topic, err)
		}
		s.log.Debug("Session: subscribing", zap.String("topic", sub.Topic), zap.Int64("cid", int64(sub.CorrelationID)))
	}
	return nil
}

func (s *Session) Unsubscribe(ctx context.Context, subs []*Subscription) error {
	for _, sub := range subs {
		s.mu.Lock()
		delete(s.subscriptions, sub.CorrelationID)
		delete(s.subStatus, sub.CorrelationID)
		s.mu.Unlock()

		cmd := gateway.NewCommand(gateway.CmdUnsubscribe)
		cmd.Topic = sub.Topic
		cmd.CorrelationID = int64(sub.CorrelationID)
		if err := s.transport.Send(ctx, cmd); err != nil {
			return fmt.Errorf("session: unsubscribe %s: %w", sub.Topic, err)
		}
	}
	return nil
}

// SubscriptionStatus reports the last known state of a subscription.
func (s *Session) SubscriptionStatus(cid CorrelationID) (SubscriptionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subStatus[cid]
	return st, ok
}

// SendRequest sends req; answers arrive as PARTIAL_RESPONSE and RESPONSE
// events carrying the returned id. A zero cid allocates a new one.
func (s *Session) SendRequest(ctx context.Context, req *Request, cid CorrelationID) (CorrelationID, error) {
	if err := s.requireStarted(); err != nil {
		return 0, err
	}
	if _, err := s.GetService(req.Service().Name()); err != nil {
		return 0, err
	}
	if cid == 0 {
		cid = NewCorrelationID()
	}

	payload, err := req.Elements().MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("session: marshal %s: %w", req.Operation(), err)
	}
	cmd := gateway.NewCommand(gateway.CmdSendRequest)
	cmd.Service = req.Service().Name()
	cmd.Operation = req.Operation()
	cmd.CorrelationID = int64(cid)
	cmd.Payload = payload

	if err := s.transport.Send(ctx, cmd); err != nil {
		return 0, fmt.Errorf("session: send %s: %w", req.Operation(), err)
	}
	s.log.Debug("Session: request sent", zap.String("operation", req.Operation()), zap.Int64("cid", int64(cid)))
	return cid, nil
}

// Do sends req and waits for its final RESPONSE. Partial responses are
// returned ahead of the final one. Events it consumes are not passed to
// the handler.
func (s *Session) Do(ctx context.Context, req *Request) ([]*Message, error) {
	cid := NewCorrelationID()
	w := s.addWaiter(cid)
	defer s.removeWaiter(cid, w)

	if _, err := s.SendRequest(ctx, req, cid); err != nil {
		return nil, err
	}

	var msgs []*Message
	for {
		select {
		case ev := <-w.events:
			switch ev.Type {
			case EventPartialResponse:
				msgs = append(msgs, ev.Messages...)
			case EventResponse:
				return append(msgs, ev.Messages...), nil
			case EventRequestStatus:
				for _, msg := range ev.Messages {
					if msg.Type == RequestFailure {
						return msgs, fmt.Errorf("%w: %s: %s", ErrRequestFailed, req.Operation(), describeFailure(msg))
					}
				}
			}
		case <-s.done:
			return msgs, ErrStopped
		case <-ctx.Done():
			return msgs, ctx.Err()
		}
	}
}

func (s *Session) addWaiter(cid CorrelationID) *waiter {
	w := &waiter{events: make(chan *Event, 16), gone: make(chan struct{})}
	s.mu.Lock()
	s.waiters[cid] = w
	s.mu.Unlock()
	return w
}

func (s *Session) removeWaiter(cid CorrelationID, w *waiter) {
	s.mu.Lock()
	delete(s.waiters, cid)
	s.mu.Unlock()
	close(w.gone)
}

// Stop sends STOP_SESSION and shuts the event loop down. It does not wait;
// use Done for that. Safe to call more than once and from the handler.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.state != StateIdle
		if s.state != StateFailed {
			s.state = StateStopping
		}
		s.mu.Unlock()

		if !started {
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			close(s.done)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.transport.Send(ctx, gateway.NewCommand(gateway.CmdStopSession)); err != nil {
			s.log.Debug("Session: stop command not delivered", zap.Error(err))
		}
		s.cancel()
		s.transport.Close()
		s.log.Info("Session: stopped")
	})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Session) readLoop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		if s.state != StateFailed {
			s.state = StateStopped
		}
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		env, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || s.State() == StateStopping {
				return
			}
			s.log.Error("Session: transport failed", zap.Error(err))
			s.fail(fmt.Errorf("session: receive: %w", err))
			s.dispatch(&Event{Type: EventSessionStatus, Messages: []*Message{
				NewMessage(SessionConnectionDown),
				NewMessage(SessionTerminated),
			}})
			return
		}

		ev, err := decodeEnvelope(env)
		if err != nil {
			s.log.Warn("Session: dropping undecodable event", zap.String("type", env.EventType), zap.Error(err))
			continue
		}

		terminated := s.track(ev)
		if !s.route(ev) {
			s.dispatch(ev)
		}
		if terminated {
			return
		}
	}
}

// track applies an event to the session's own state and reports whether
// the session has ended.
func (s *Session) track(ev *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminated := false
	for _, msg := range ev.Messages {
		cid := msg.CorrelationID()
		switch msg.Type {
		case SessionStarted:
			if s.state == StateStarting {
				s.state = StateStarted
			}
		case SessionStartupFailure:
			s.state = StateFailed
			s.err = fmt.Errorf("session: startup failure: %s", describeFailure(msg))
			terminated = true
		case SessionTerminated:
			if s.state != StateFailed {
				s.state = StateStopped
			}
			terminated = true
		case ServiceOpened:
			name, ok := s.pendingServices[cid]
			if !ok {
				name, _ = msg.Elements.GetElementAsString("serviceName")
			}
			delete(s.pendingServices, cid)
			if name != "" {
				s.services[name] = newService(name, operationsOf(msg))
			}
		case ServiceOpenFailure:
			delete(s.pendingServices, cid)
		case SubscriptionStarted:
			if _, ok := s.subscriptions[cid]; ok {
				s.subStatus[cid] = SubscriptionActive
			}
		case SubscriptionFailure:
			if _, ok := s.subscriptions[cid]; ok {
				s.subStatus[cid] = SubscriptionFailed
			}
		case SubscriptionTerminated:
			if _, ok := s.subscriptions[cid]; ok {
				s.subStatus[cid] = SubscriptionEnded
			}
		}
	}
	return terminated
}

// route hands an event to a synchronous caller waiting on its correlation
// id. It reports whether the event was consumed.
func (s *Session) route(ev *Event) bool {
	if len(ev.Messages) == 0 {
		return false
	}
	switch ev.Type {
	case EventServiceStatus, EventResponse, EventPartialResponse, EventRequestStatus:
	default:
		return false
	}

	s.mu.Lock()
	w, ok := s.waiters[ev.Messages[0].CorrelationID()]
	s.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case w.events <- ev:
	case <-w.gone:
	}
	return true
}

func (s *Session) dispatch(ev *Event) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler.ProcessEvent(ev, s)
}

func decodeEnvelope(env gateway.Envelope) (*Event, error) {
	ev := &Event{Type: ParseEventType(env.EventType)}
	for _, wm := range env.Messages {
		msg := &Message{Type: wm.MessageType, Elements: NewElement(wm.MessageType)}
		for _, id := range wm.CorrelationIDs {
			msg.CorrelationIDs = append(msg.CorrelationIDs, CorrelationID(id))
		}
		if len(wm.Fields) > 0 {
			if err := msg.Elements.UnmarshalJSON(wm.Fields); err != nil {
				return nil, fmt.Errorf("decode %s: %w", wm.MessageType, err)
			}
		}
		ev.Messages = append(ev.Messages, msg)
	}
	return ev, nil
}

func operationsOf(msg *Message) []string {
	ops, err := msg.Elements.GetElement("operations")
	if err != nil {
		return nil
	}
	names := make([]string, 0, ops.NumValues())
	for i := 0; i < ops.NumValues(); i++ {
		if name, err := ops.ValueAsString(i); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// describeFailure pulls a readable reason out of a failure message.
func describeFailure(msg *Message) string {
	reason, err := msg.Elements.GetElement("reason")
	if err != nil {
		return msg.Type
	}
	if desc, err := reason.GetElementAsString("description"); err == nil {
		return desc
	}
	if desc, err := reason.ValueAsString(0); err == nil {
		return desc
	}
	return msg.Type
}
