package engine

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emsxbridge.com/internal/config"
	"emsxbridge.com/internal/constants"
	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/event"
	"emsxbridge.com/internal/gateway"
	"emsxbridge.com/internal/infra"
	"emsxbridge.com/internal/printer"
	"emsxbridge.com/internal/service"
	"emsxbridge.com/internal/session"
	"emsxbridge.com/internal/simulator"
	"emsxbridge.com/internal/workflow"
)

type recordingNotifier struct {
	mu      sync.Mutex
	updates []emsx.Update
}

func (n *recordingNotifier) PushUpdate(u emsx.Update) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *recordingNotifier) ClientCount() int { return 0 }

type fillCount struct{ n int }

func (c *fillCount) AddFillsStored(n int) { c.n += n }

func newBlotter(t *testing.T) *service.BlotterServiceImpl {
	t.Helper()
	db, err := infra.NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "blotter.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	return service.NewBlotterService(db, zap.NewNop())
}

func update(kind emsx.TopicKind, status emsx.EventStatus, seq, routeID int) emsx.Update {
	u := emsx.Update{Kind: kind, Status: status}
	u.Values = append(u.Values, emsx.FieldValue{Field: emsx.Field{Name: "EMSX_SEQUENCE", Kind: emsx.KindInt}, Value: seq})
	if routeID != 0 {
		u.Values = append(u.Values, emsx.FieldValue{Field: emsx.Field{Name: "EMSX_ROUTE_ID", Kind: emsx.KindInt}, Value: routeID})
	}
	return u
}

func TestEngineStoresThenPushes(t *testing.T) {
	bus := event.NewBus(64, zap.NewNop())
	blotter := newBlotter(t)
	notifier := &recordingNotifier{}
	fills := &fillCount{}
	e := NewEngine(bus, blotter, notifier, fills, zap.NewNop())
	e.Start()

	e.HandleUpdate(update(emsx.OrderTopic, emsx.StatusInitialPaint, 1001, 0))
	e.HandleUpdate(update(emsx.RouteTopic, emsx.StatusInitialPaint, 1001, 1))
	e.HandleUpdate(update(emsx.RouteTopic, emsx.StatusNew, 0, 2))
	e.HandleHeartbeat(emsx.OrderTopic)
	e.HandleEndOfPaint(emsx.RouteTopic)
	bus.Publish(event.Event{Type: constants.EventFillsSynced, Metadata: map[string]any{"stored": 2}})

	e.Stop()
	e.HandleUpdate(update(emsx.OrderTopic, emsx.StatusNew, 1002, 0))
	bus.Shutdown()

	ctx := context.Background()
	order, err := blotter.GetOrder(ctx, 1001)
	require.NoError(t, err)
	assert.Len(t, order.Routes, 1)
	_, err = blotter.GetOrder(ctx, 1002)
	assert.Error(t, err)

	// the update without a sequence is rejected and not pushed
	assert.Len(t, notifier.updates, 2)
	assert.Equal(t, 2, fills.n)

	snap := e.State().Snapshot()
	assert.Equal(t, int64(1), snap[emsx.OrderTopic].Updates)
	assert.Equal(t, int64(1), snap[emsx.OrderTopic].Heartbeats)
	assert.False(t, snap[emsx.OrderTopic].Painted)
	assert.Equal(t, int64(2), snap[emsx.RouteTopic].Updates)
	assert.True(t, snap[emsx.RouteTopic].Painted)
}

func TestPaintLargerThanBusIsStored(t *testing.T) {
	bus := event.NewBus(16, zap.NewNop())
	blotter := newBlotter(t)
	notifier := &recordingNotifier{}
	e := NewEngine(bus, blotter, notifier, nil, zap.NewNop())
	e.Start()

	const painted = 500
	for i := 0; i < painted; i++ {
		e.HandleUpdate(update(emsx.OrderTopic, emsx.StatusInitialPaint, 2000+i, 0))
	}
	e.HandleEndOfPaint(emsx.OrderTopic)
	bus.Shutdown()

	_, total, err := blotter.GetOrders(context.Background(), "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(painted), total)
	assert.Len(t, notifier.updates, painted)

	snap := e.State().Snapshot()
	assert.Equal(t, int64(painted), snap[emsx.OrderTopic].Updates)
	assert.True(t, snap[emsx.OrderTopic].Painted)
}

func TestShutdownStoresQueuedBurst(t *testing.T) {
	bus := event.NewBus(4096, zap.NewNop())
	blotter := newBlotter(t)
	e := NewEngine(bus, blotter, nil, nil, zap.NewNop())
	e.Start()

	for i := 0; i < 200; i++ {
		e.HandleUpdate(update(emsx.OrderTopic, emsx.StatusNew, 3000+i, 0))
	}
	bus.Shutdown()

	_, total, err := blotter.GetOrders(context.Background(), "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), total)
}

func TestSubscriptionStateStale(t *testing.T) {
	s := NewSubscriptionState()
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.True(t, s.Stale(emsx.OrderTopic, time.Minute))
	s.RecordUpdate(emsx.OrderTopic)
	now = now.Add(50 * time.Second)
	s.RecordHeartbeat(emsx.OrderTopic)
	now = now.Add(50 * time.Second)
	assert.False(t, s.Stale(emsx.OrderTopic, time.Minute))
	now = now.Add(20 * time.Second)
	assert.True(t, s.Stale(emsx.OrderTopic, time.Minute))
}

// cancelOnPaint stops the run once the route paint is complete.
type cancelOnPaint struct{ cancel context.CancelFunc }

func (c cancelOnPaint) HandleUpdate(emsx.Update) {}

func (c cancelOnPaint) HandleEndOfPaint(kind emsx.TopicKind) {
	if kind == emsx.RouteTopic {
		c.cancel()
	}
}

func TestBlotterFedBySubscription(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := event.NewBus(256, zap.NewNop())
	blotter := newBlotter(t)
	e := NewEngine(bus, blotter, &recordingNotifier{}, nil, zap.NewNop())
	e.Start()

	sim := simulator.New(simulator.Options{Seed: true}, zap.NewNop())
	tr, ep := gateway.NewPipe(64)
	served := make(chan struct{})
	go func() {
		defer close(served)
		sim.Serve(ctx, ep)
	}()

	var out bytes.Buffer
	action := workflow.NewSubscriptionAction(e, cancelOnPaint{cancel}).Quiet()
	r := workflow.NewRunner(emsx.ServiceBeta, action, printer.New(&out), zap.NewNop())
	sess := session.New(tr, r, session.Options{Host: "localhost", Port: 8194}, zap.NewNop())
	err := r.Run(ctx, sess)
	require.ErrorIs(t, err, context.Canceled)
	<-served
	bus.Shutdown()

	orders, total, err := blotter.GetOrders(context.Background(), "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1003), orders[0].Sequence)

	order, err := blotter.GetOrder(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, "IBM US Equity", order.Ticker)
	require.Len(t, order.Routes, 1)
	assert.Equal(t, "BB", order.Routes[0].Broker)

	snap := e.State().Snapshot()
	assert.True(t, snap[emsx.OrderTopic].Painted)
	assert.True(t, snap[emsx.RouteTopic].Painted)
	assert.Equal(t, int64(3), snap[emsx.OrderTopic].Updates)
}
