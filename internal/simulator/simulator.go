// Package simulator plays the vendor side of the gateway: it answers the
// session lifecycle, serves order and route subscriptions from an in-memory
// blotter and executes every EMSX request operation.
package simulator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/gateway"
	"emsxbridge.com/internal/session"
)

type Options struct {
	// HeartbeatInterval between heartbeats on each subscription. Zero
	// disables heartbeats.
	HeartbeatInterval time.Duration
	// FillsPerMessage splits GetFills answers into partial responses.
	FillsPerMessage int
	// Seed preloads a few orders, routes and fills.
	Seed bool
	Now  func() time.Time
}

type Simulator struct {
	opts Options
	log  *zap.Logger

	mu    sync.Mutex
	book  *book
	conns map[*conn]struct{}
}

func New(opts Options, log *zap.Logger) *Simulator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FillsPerMessage <= 0 {
		opts.FillsPerMessage = 50
	}
	s := &Simulator{
		opts:  opts,
		log:   log,
		book:  newBook(opts.Now),
		conns: make(map[*conn]struct{}),
	}
	if opts.Seed {
		s.book.seed()
	}
	return s
}

type subscription struct {
	cid    int64
	kind   emsx.TopicKind
	fields []string
}

// conn is one client session served on an endpoint.
type conn struct {
	sim *Simulator
	ep  gateway.Endpoint

	outMu     sync.Mutex // guards outbox, outErr and outClosed
	outbox    []gateway.Envelope
	outErr    error
	outClosed bool
	wake      chan struct{}
	flushed   chan struct{}

	mu       sync.Mutex
	subs     map[int64]subscription
	services map[string]bool
}

// Serve answers commands from ep until the client stops its session, the
// endpoint closes or ctx is cancelled.
func (s *Simulator) Serve(ctx context.Context, ep gateway.Endpoint) error {
	c := &conn{
		sim:      s,
		ep:       ep,
		subs:     make(map[int64]subscription),
		services: make(map[string]bool),
		wake:     make(chan struct{}, 1),
		flushed:  make(chan struct{}),
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.write(ctx, cancel)
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.closeOutbox()
		<-c.flushed
	}()

	if s.opts.HeartbeatInterval > 0 {
		go c.heartbeats(loopCtx, s.opts.HeartbeatInterval)
	}

	for {
		cmd, err := ep.Recv(loopCtx)
		if err != nil {
			if errors.Is(err, gateway.ErrClosed) || loopCtx.Err() != nil {
				return nil
			}
			return err
		}
		stop, err := c.handle(cmd)
		if err != nil {
			if errors.Is(err, gateway.ErrClosed) || loopCtx.Err() != nil {
				return nil
			}
			s.log.Error("Simulator: command failed", zap.String("type", cmd.Type), zap.Error(err))
			return err
		}
		if stop {
			return nil
		}
	}
}

// emit queues envs for the connection's writer. Envelopes leave in the
// order they were queued, so whatever is queued under s.mu is ordered with
// the book.
func (c *conn) emit(envs ...gateway.Envelope) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.outErr != nil {
		return c.outErr
	}
	if c.outClosed {
		return gateway.ErrClosed
	}
	c.outbox = append(c.outbox, envs...)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *conn) closeOutbox() {
	c.outMu.Lock()
	c.outClosed = true
	c.outMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// write sends queued envelopes until the outbox is closed and empty. A
// failed send ends the connection through fail.
func (c *conn) write(ctx context.Context, fail context.CancelFunc) {
	defer close(c.flushed)
	for {
		c.outMu.Lock()
		envs, closed := c.outbox, c.outClosed
		c.outbox = nil
		c.outMu.Unlock()

		if len(envs) == 0 {
			if closed {
				return
			}
			select {
			case <-c.wake:
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, env := range envs {
			if err := c.ep.Emit(ctx, env); err != nil {
				c.outMu.Lock()
				c.outErr = err
				c.outbox = nil
				c.outMu.Unlock()
				fail()
				return
			}
		}
	}
}

func (c *conn) handle(cmd gateway.Command) (bool, error) {
	log := c.sim.log
	switch cmd.Type {
	case gateway.CmdStartSession:
		log.Info("Simulator: session started", zap.String("request_id", cmd.RequestID))
		return false, c.emit(envelope(session.EventSessionStatus,
			message(session.SessionConnectionUp, 0, nil),
			message(session.SessionStarted, 0, nil)))

	case gateway.CmdOpenService:
		return false, c.openService(cmd)

	case gateway.CmdSubscribe:
		return false, c.subscribe(cmd)

	case gateway.CmdUnsubscribe:
		c.mu.Lock()
		delete(c.subs, cmd.CorrelationID)
		c.mu.Unlock()
		return false, nil

	case gateway.CmdSendRequest:
		return false, c.request(cmd)

	case gateway.CmdStopSession:
		log.Info("Simulator: session stopped")
		return true, c.emit(envelope(session.EventSessionStatus, message(session.SessionTerminated, 0, nil)))
	}

	log.Warn("Simulator: unknown command", zap.String("type", cmd.Type))
	return false, nil
}

func (c *conn) openService(cmd gateway.Command) error {
	ops, ok := emsx.Operations[cmd.Service]
	if !ok {
		reason := session.NewElement(session.ServiceOpenFailure)
		r := reason.Sub("reason")
		r.Set("source", "simulator")
		r.Set("errorCode", int64(-1))
		r.Set("category", "NOT_FOUND")
		r.Set("description", "Service not found: "+cmd.Service)
		return c.emit(envelope(session.EventServiceStatus, message(session.ServiceOpenFailure, cmd.CorrelationID, reason)))
	}

	c.mu.Lock()
	c.services[cmd.Service] = true
	c.mu.Unlock()

	e := session.NewElement(session.ServiceOpened)
	e.Set("serviceName", cmd.Service)
	for _, op := range ops {
		e.Append("operations", op)
	}
	return c.emit(envelope(session.EventServiceStatus, message(session.ServiceOpened, cmd.CorrelationID, e)))
}

func subscriptionFailure(cid int64, description string) gateway.Envelope {
	e := session.NewElement(session.SubscriptionFailure)
	r := e.Sub("reason")
	r.Set("source", "simulator")
	r.Set("errorCode", int64(-1))
	r.Set("category", "BAD_TOPIC")
	r.Set("description", description)
	return envelope(session.EventSubscriptionStatus, message(session.SubscriptionFailure, cid, e))
}

func (c *conn) subscribe(cmd gateway.Command) error {
	service, kind, fields, err := emsx.ParseTopic(cmd.Topic)
	if err != nil {
		return c.emit(subscriptionFailure(cmd.CorrelationID, err.Error()))
	}
	if service != emsx.ServiceProduction && service != emsx.ServiceBeta {
		return c.emit(subscriptionFailure(cmd.CorrelationID, "Topic service does not publish order data: "+service))
	}
	if len(fields) == 0 {
		fields = emsx.Names(emsx.FieldsFor(kind))
	}
	sub := subscription{cid: cmd.CorrelationID, kind: kind, fields: fields}

	// Paint, registration and queueing happen under the book lock so a
	// change published by another client lands after the paint.
	started := envelope(session.EventSubscriptionStatus, message(session.SubscriptionStarted, cmd.CorrelationID, nil))
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	paint := c.sim.paint(sub)
	c.mu.Lock()
	c.subs[sub.cid] = sub
	c.mu.Unlock()

	c.sim.log.Debug("Simulator: subscription started", zap.String("topic", cmd.Topic), zap.Int64("cid", cmd.CorrelationID))
	return c.emit(append([]gateway.Envelope{started}, paint...)...)
}

// paint renders the current blotter for a new subscription, closed by an
// end-of-initial-paint message. Callers hold s.mu.
func (s *Simulator) paint(sub subscription) []gateway.Envelope {
	var out []gateway.Envelope
	for _, o := range s.book.sorted() {
		if sub.kind == emsx.OrderTopic {
			out = append(out, dataEnvelope(sub, emsx.StatusInitialPaint, o.fields))
			continue
		}
		for _, r := range o.routes {
			out = append(out, dataEnvelope(sub, emsx.StatusInitialPaint, r.fields))
		}
	}
	return append(out, dataEnvelope(sub, emsx.StatusEndOfInitialPaint, nil))
}

// publish renders changes for every matching subscription. Callers hold s.mu.
func (s *Simulator) publish(changes []change) map[*conn][]gateway.Envelope {
	out := make(map[*conn][]gateway.Envelope)
	for c := range s.conns {
		c.mu.Lock()
		for _, ch := range changes {
			for _, sub := range c.subs {
				if sub.kind == ch.kind {
					out[c] = append(out[c], dataEnvelope(sub, ch.status, ch.fields))
				}
			}
		}
		c.mu.Unlock()
	}
	return out
}

// deliver queues published changes on each client. Callers hold s.mu.
func (s *Simulator) deliver(batches map[*conn][]gateway.Envelope) {
	for c, envs := range batches {
		if err := c.emit(envs...); err != nil {
			s.log.Debug("Simulator: dropping updates for closed client", zap.Error(err))
		}
	}
}

func (c *conn) heartbeats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			envs := make([]gateway.Envelope, 0, len(c.subs))
			for _, sub := range c.subs {
				envs = append(envs, dataEnvelope(sub, emsx.StatusHeartbeat, nil))
			}
			c.mu.Unlock()
			if err := c.emit(envs...); err != nil {
				return
			}
		}
	}
}

func dataEnvelope(sub subscription, status emsx.EventStatus, fields record) gateway.Envelope {
	e := session.NewElement(emsx.MsgOrderRouteFields)
	e.Set("EVENT_STATUS", int64(status))
	if status.CarriesData() {
		for _, name := range sub.fields {
			if v, ok := fields[name]; ok {
				e.Set(name, v)
			}
		}
	}
	return envelope(session.EventSubscriptionData, message(emsx.MsgOrderRouteFields, sub.cid, e))
}

func message(typ string, cid int64, fields *session.Element) gateway.WireMessage {
	wm := gateway.WireMessage{MessageType: typ}
	if cid != 0 {
		wm.CorrelationIDs = []int64{cid}
	}
	if fields != nil {
		if data, err := fields.MarshalJSON(); err == nil {
			wm.Fields = data
		}
	}
	return wm
}

func envelope(t session.EventType, msgs ...gateway.WireMessage) gateway.Envelope {
	return gateway.Envelope{EventType: t.String(), Messages: msgs}
}
