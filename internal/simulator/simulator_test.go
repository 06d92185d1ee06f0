package simulator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/gateway"
	"emsxbridge.com/internal/session"
)

var testNow = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func newTestSimulator(seed bool) *Simulator {
	return New(Options{Seed: seed, Now: func() time.Time { return testNow }}, zap.NewNop())
}

func TestSeededBook(t *testing.T) {
	s := newTestSimulator(true)
	orders := s.book.sorted()
	require.Len(t, orders, 3)

	ibm := orders[0]
	assert.Equal(t, int64(1001), ibm.seq)
	assert.Equal(t, "PARTFILLED", ibm.fields.str("EMSX_STATUS"))
	assert.Equal(t, int64(400), ibm.fields.int("EMSX_FILLED"))
	assert.Equal(t, int64(600), ibm.fields.int("EMSX_IDLE_AMOUNT"))
	assert.InDelta(t, referencePrice("IBM US Equity"), ibm.fields.float("EMSX_AVG_PRICE"), 1e-9)

	vod := orders[1]
	assert.Equal(t, "WORKING", vod.fields.str("EMSX_STATUS"))
	assert.Equal(t, int64(2500), vod.fields.int("EMSX_WORKING"))

	require.Len(t, s.book.fills, 1)
	assert.Equal(t, "2026-03-02T14:30:00.000+00:00", s.book.fills[0].fill.DateTimeOfFill)
}

func TestRouteCannotExceedIdle(t *testing.T) {
	s := newTestSimulator(true)
	o, err := s.book.order(1003)
	require.NoError(t, err)

	_, _, err = s.book.routeOrder(o, routeSpec{amount: 11, broker: "EFIX"})
	require.Error(t, err)
	assert.Equal(t, int64(4), errorCode(err))

	_, _, err = s.book.routeOrder(o, routeSpec{amount: 0, broker: "EFIX"})
	assert.Error(t, err)
}

func TestModifyRoute(t *testing.T) {
	s := newTestSimulator(true)
	vod, _ := s.book.order(1002)

	changes, err := s.book.modifyRoute(vod, 1, modifySpec{amount: 3000, limitPrice: -99999, orderType: "LMT"})
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	r := vod.route(1)
	assert.Equal(t, int64(3000), r.fields.int("EMSX_AMOUNT"))
	assert.NotContains(t, r.fields, "EMSX_LIMIT_PRICE")

	changes, err = s.book.modifyRoute(vod, 1, modifySpec{amount: 3000, orderType: "MKT"})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", r.fields.str("EMSX_STATUS"))
	assert.Equal(t, emsx.OrderTopic, changes[len(changes)-1].kind)

	_, err = s.book.modifyRoute(vod, 1, modifySpec{amount: 3000})
	assert.Error(t, err)
	_, err = s.book.modifyRoute(vod, 9, modifySpec{amount: 1})
	assert.Error(t, err)
}

func TestGroupRoutePartialFailure(t *testing.T) {
	s := newTestSimulator(true)
	req := session.NewElement(emsx.OpGroupRouteEx)
	req.Append("EMSX_SEQUENCE", int64(1001))
	req.Append("EMSX_SEQUENCE", int64(4242))
	req.Set("EMSX_AMOUNT_PERCENT", 50.0)
	req.Set("EMSX_BROKER", "BB")
	req.Set("EMSX_ORDER_TYPE", "LMT")

	res, err := s.execute(emsx.OpGroupRouteEx, req)
	require.NoError(t, err)

	out, err := emsx.DecodeGroupRouteResult(&session.Message{Type: res.final.Name(), Elements: res.final})
	require.NoError(t, err)
	assert.Equal(t, []emsx.RouteSuccess{{Sequence: 1001, RouteID: 2}}, out.Success)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, int64(4242), out.Failed[0].Sequence)
	assert.Equal(t, "1 of 2 orders routed", out.Message)

	o, _ := s.book.order(1001)
	assert.Equal(t, int64(300), o.route(2).fields.int("EMSX_AMOUNT"))
}

func TestAssignTraderReportsFailures(t *testing.T) {
	s := newTestSimulator(true)
	req := session.NewElement(emsx.OpAssignTrader)
	req.Append("EMSX_SEQUENCE", int64(1001))
	req.Append("EMSX_SEQUENCE", int64(7))
	req.Set("EMSX_ASSIGNEE_TRADER_UUID", int64(12109783))

	res, err := s.execute(emsx.OpAssignTrader, req)
	require.NoError(t, err)
	out, err := emsx.DecodeAssignTraderResult(&session.Message{Type: res.final.Name(), Elements: res.final})
	require.NoError(t, err)
	assert.False(t, out.AllSuccess)
	assert.Equal(t, []int64{1001}, out.Successful)
	assert.Equal(t, []int64{7}, out.Failed)
	require.Len(t, res.changes, 1)
}

func TestGetFillsFiltersAndSplits(t *testing.T) {
	s := New(Options{Seed: true, FillsPerMessage: 1, Now: func() time.Time { return testNow }}, zap.NewNop())
	o, _ := s.book.order(1003)
	_, _, err := s.book.routeOrder(o, routeSpec{amount: 10, broker: "EFIX", orderType: "MKT"})
	require.NoError(t, err)

	req := session.NewElement(emsx.OpGetFills)
	req.Set("FromDateTime", testNow.Add(-time.Hour).Format(emsx.FillTimeLayout))
	req.Set("ToDateTime", testNow.Add(time.Hour).Format(emsx.FillTimeLayout))
	req.Sub("Scope").SetChoice("Team").SetValue("EMSX")

	res, err := s.execute(emsx.OpGetFills, req)
	require.NoError(t, err)
	assert.Len(t, res.partials, 1)
	fills, err := emsx.DecodeFills(&session.Message{Type: res.final.Name(), Elements: res.final})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(1003), fills[0].OrderID)

	req.Sub("FilterBy").SetChoice("OrdersAndRoutes")
	item := req.Sub("FilterBy").AppendElement("OrdersAndRoutes")
	item.Set("OrderId", int64(1001))
	res, err = s.execute(emsx.OpGetFills, req)
	require.NoError(t, err)
	assert.Empty(t, res.partials)
	fills, err = emsx.DecodeFills(&session.Message{Type: res.final.Name(), Elements: res.final})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(1001), fills[0].OrderID)

	bad := session.NewElement(emsx.OpGetFills)
	_, err = s.execute(emsx.OpGetFills, bad)
	assert.Error(t, err)
}

func TestBrokerCatalogue(t *testing.T) {
	s := newTestSimulator(false)

	req := session.NewElement(emsx.OpGetBrokerStrategiesWithAssetClass)
	req.Set("EMSX_BROKER", "BB")
	req.Set("EMSX_ASSET_CLASS", "EQTY")
	res, err := s.execute(emsx.OpGetBrokerStrategiesWithAssetClass, req)
	require.NoError(t, err)
	names, err := emsx.DecodeStrategies(&session.Message{Elements: res.final})
	require.NoError(t, err)
	assert.Equal(t, []string{"DMA", "VWAP"}, names)

	spec := session.NewElement(emsx.OpGetBrokerSpecForUuid)
	spec.Set("uuid", int64(8049857))
	res, err = s.execute(emsx.OpGetBrokerSpecForUuid, spec)
	require.NoError(t, err)
	decoded, err := emsx.DecodeBrokerSpec(&session.Message{Elements: res.final})
	require.NoError(t, err)
	assert.Equal(t, brokers, decoded)
}

// pipeClient drives the simulator through the in-memory gateway.
type pipeClient struct {
	t  *testing.T
	tr gateway.Transport
}

func startPipe(t *testing.T, s *Simulator) *pipeClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tr, ep := gateway.NewPipe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ep)
	}()
	t.Cleanup(func() {
		cancel()
		tr.Close()
		<-done
	})
	return &pipeClient{t: t, tr: tr}
}

func (c *pipeClient) send(cmd gateway.Command) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(c.t, c.tr.Send(ctx, cmd))
}

func (c *pipeClient) next() gateway.Envelope {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := c.tr.Receive(ctx)
	require.NoError(c.t, err)
	return env
}

func TestServeLifecycle(t *testing.T) {
	c := startPipe(t, newTestSimulator(true))

	c.send(gateway.NewCommand(gateway.CmdStartSession))
	env := c.next()
	assert.Equal(t, "SESSION_STATUS", env.EventType)
	require.Len(t, env.Messages, 2)
	assert.Equal(t, session.SessionStarted, env.Messages[1].MessageType)

	open := gateway.NewCommand(gateway.CmdOpenService)
	open.Service = "//blp/nothing"
	open.CorrelationID = 5
	c.send(open)
	env = c.next()
	assert.Equal(t, session.ServiceOpenFailure, env.Messages[0].MessageType)
	assert.Equal(t, []int64{5}, env.Messages[0].CorrelationIDs)

	req := gateway.NewCommand(gateway.CmdSendRequest)
	req.Service = emsx.ServiceBeta
	req.Operation = emsx.OpCreateOrder
	req.CorrelationID = 6
	c.send(req)
	env = c.next()
	assert.Equal(t, "REQUEST_STATUS", env.EventType)
	assert.Equal(t, session.RequestFailure, env.Messages[0].MessageType)

	open.Service = emsx.ServiceBeta
	open.CorrelationID = 7
	c.send(open)
	env = c.next()
	assert.Equal(t, session.ServiceOpened, env.Messages[0].MessageType)

	sub := gateway.NewCommand(gateway.CmdSubscribe)
	sub.Topic = emsx.Topic(emsx.ServiceBeta, emsx.RouteTopic, []emsx.Field{{Name: "EMSX_SEQUENCE", Kind: emsx.KindInt}, {Name: "EMSX_ROUTE_ID", Kind: emsx.KindInt}})
	sub.CorrelationID = 8
	c.send(sub)
	env = c.next()
	assert.Equal(t, session.SubscriptionStarted, env.Messages[0].MessageType)

	// two seeded routes, then end of paint
	for i := 0; i < 2; i++ {
		env = c.next()
		assert.Equal(t, "SUBSCRIPTION_DATA", env.EventType)
		assert.JSONEq(t, `{"EVENT_STATUS":4,"EMSX_SEQUENCE":`+[]string{"1001", "1002"}[i]+`,"EMSX_ROUTE_ID":1}`, string(env.Messages[0].Fields))
	}
	env = c.next()
	assert.JSONEq(t, `{"EVENT_STATUS":11}`, string(env.Messages[0].Fields))

	stop := gateway.NewCommand(gateway.CmdStopSession)
	c.send(stop)
	env = c.next()
	assert.Equal(t, session.SessionTerminated, env.Messages[0].MessageType)
}

func TestServeRejectsBadTopic(t *testing.T) {
	c := startPipe(t, newTestSimulator(false))

	sub := gateway.NewCommand(gateway.CmdSubscribe)
	sub.Topic = emsx.ServiceHistory + "/order?fields=EMSX_SEQUENCE"
	sub.CorrelationID = 3
	c.send(sub)
	env := c.next()
	assert.Equal(t, session.SubscriptionFailure, env.Messages[0].MessageType)
}

func TestNewSubscriberGetsPaintBeforeLiveChanges(t *testing.T) {
	s := newTestSimulator(true)
	trader := startPipe(t, s)
	watcher := startPipe(t, s)

	open := gateway.NewCommand(gateway.CmdOpenService)
	open.Service = emsx.ServiceBeta
	open.CorrelationID = 1
	trader.send(open)
	require.Equal(t, session.ServiceOpened, trader.next().Messages[0].MessageType)

	order := session.NewElement(emsx.OpCreateOrder)
	order.Set("EMSX_TICKER", "IBM US Equity")
	order.Set("EMSX_AMOUNT", int64(100))
	order.Set("EMSX_ORDER_TYPE", "MKT")
	order.Set("EMSX_SIDE", "BUY")
	payload, err := json.Marshal(order)
	require.NoError(t, err)

	// the trader keeps creating orders while the watcher subscribes
	const created = 30
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < created; i++ {
			req := gateway.NewCommand(gateway.CmdSendRequest)
			req.Service = emsx.ServiceBeta
			req.Operation = emsx.OpCreateOrder
			req.CorrelationID = int64(100 + i)
			req.Payload = payload
			if err := trader.tr.Send(context.Background(), req); err != nil {
				return
			}
		}
	}()

	sub := gateway.NewCommand(gateway.CmdSubscribe)
	sub.Topic = emsx.Topic(emsx.ServiceBeta, emsx.OrderTopic, []emsx.Field{{Name: "EMSX_SEQUENCE", Kind: emsx.KindInt}})
	sub.CorrelationID = 9
	watcher.send(sub)

	env := watcher.next()
	require.Equal(t, session.SubscriptionStarted, env.Messages[0].MessageType)

	seen := make(map[int64]bool)
	painted := false
	for len(seen) < 3+created {
		var fields struct {
			Status   int64 `json:"EVENT_STATUS"`
			Sequence int64 `json:"EMSX_SEQUENCE"`
		}
		env = watcher.next()
		require.Equal(t, "SUBSCRIPTION_DATA", env.EventType)
		require.NoError(t, json.Unmarshal(env.Messages[0].Fields, &fields))

		switch emsx.EventStatus(fields.Status) {
		case emsx.StatusInitialPaint:
			require.False(t, painted, "paint after end of paint")
		case emsx.StatusEndOfInitialPaint:
			painted = true
			continue
		case emsx.StatusNew:
			require.True(t, painted, "live order %d before end of paint", fields.Sequence)
		}
		require.False(t, seen[fields.Sequence], "order %d delivered twice", fields.Sequence)
		seen[fields.Sequence] = true
	}
	<-sent
	assert.True(t, painted)
}
