package emsx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emsxbridge.com/internal/session"
)

func decode(t *testing.T, typ string, cid session.CorrelationID, fields string) *session.Message {
	t.Helper()
	msg := session.NewMessage(typ, cid)
	require.NoError(t, msg.Elements.UnmarshalJSON([]byte(fields)))
	return msg
}

func buildJSON(t *testing.T, r Request) map[string]any {
	t.Helper()
	e := session.NewElement(r.Operation())
	require.NoError(t, r.fill(e))
	data, err := e.MarshalJSON()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestTopic(t *testing.T) {
	topic := Topic(ServiceBeta, OrderTopic, []Field{{"EMSX_SEQUENCE", KindInt}, {"EMSX_TICKER", KindString}})
	assert.Equal(t, "//blp/emapisvc_beta/order?fields=EMSX_SEQUENCE,EMSX_TICKER", topic)

	svc, kind, fields, err := ParseTopic(topic)
	require.NoError(t, err)
	assert.Equal(t, ServiceBeta, svc)
	assert.Equal(t, OrderTopic, kind)
	assert.Equal(t, []string{"EMSX_SEQUENCE", "EMSX_TICKER"}, fields)

	_, _, _, err = ParseTopic("//blp/emapisvc_beta/basket?fields=A")
	assert.Error(t, err)
	_, _, _, err = ParseTopic("nothing")
	assert.Error(t, err)
}

func TestFieldsFor(t *testing.T) {
	assert.Equal(t, OrderFields, FieldsFor(OrderTopic))
	assert.Equal(t, RouteFields, FieldsFor(RouteTopic))
	assert.Contains(t, Names(RouteFields), "EMSX_ROUTE_ID")
}

func TestEventStatus(t *testing.T) {
	assert.False(t, StatusHeartbeat.CarriesData())
	assert.False(t, StatusEndOfInitialPaint.CarriesData())
	assert.True(t, StatusInitialPaint.CarriesData())
	assert.True(t, StatusUpdate.CarriesData())
	assert.Equal(t, "END_PAINT", StatusEndOfInitialPaint.String())
	assert.Equal(t, "42", EventStatus(42).String())
}

func TestExtractUpdateSkipsAbsentFields(t *testing.T) {
	msg := decode(t, MsgOrderRouteFields, 7,
		`{"EVENT_STATUS":4,"EMSX_SEQUENCE":1234,"EMSX_TICKER":"IBM US Equity","EMSX_AVG_PRICE":101.5}`)

	u, err := ExtractUpdate(msg, OrderTopic, OrderFields)
	require.NoError(t, err)
	assert.Equal(t, StatusInitialPaint, u.Status)
	assert.Equal(t, session.CorrelationID(7), u.CorrelationID)
	assert.Equal(t, int64(1234), u.Sequence())
	assert.Equal(t, int64(0), u.RouteID())

	ticker, ok := u.Text("EMSX_TICKER")
	require.True(t, ok)
	assert.Equal(t, "IBM US Equity", ticker)

	avg, ok := u.Float("EMSX_AVG_PRICE")
	require.True(t, ok)
	assert.InDelta(t, 101.5, avg, 1e-9)

	_, ok = u.Get("EMSX_BROKER")
	assert.False(t, ok)
	assert.Len(t, u.Map(), 3)
}

func TestExtractUpdateHeartbeatHasNoValues(t *testing.T) {
	msg := decode(t, MsgOrderRouteFields, 7, `{"EVENT_STATUS":1,"EMSX_SEQUENCE":1}`)
	u, err := ExtractUpdate(msg, OrderTopic, OrderFields)
	require.NoError(t, err)
	assert.Equal(t, StatusHeartbeat, u.Status)
	assert.Empty(t, u.Values)
}

func TestExtractUpdateRequiresStatus(t *testing.T) {
	msg := decode(t, MsgOrderRouteFields, 7, `{"EMSX_SEQUENCE":1}`)
	_, err := ExtractUpdate(msg, OrderTopic, OrderFields)
	assert.Error(t, err)
}

func TestCreateOrderAndRouteRequest(t *testing.T) {
	r := CreateOrderAndRoute{
		CreateOrder: CreateOrder{Ticker: "IBM US Equity", Amount: 1000, OrderType: "MKT", TIF: "DAY", HandInstruction: "ANY", Side: "BUY"},
		Broker:      "BB",
		Strategy: &StrategyParams{Name: "VWAP", Fields: []StrategyField{
			{Value: "09:30:00"}, {Ignore: true},
		}},
	}
	out := buildJSON(t, r)
	assert.Equal(t, "IBM US Equity", out["EMSX_TICKER"])
	assert.EqualValues(t, 1000, out["EMSX_AMOUNT"])
	assert.Equal(t, "BB", out["EMSX_BROKER"])
	assert.NotContains(t, out, "EMSX_LIMIT_PRICE")

	strat := out["EMSX_STRATEGY_PARAMS"].(map[string]any)
	assert.Equal(t, "VWAP", strat["EMSX_STRATEGY_NAME"])
	fields := strat["EMSX_STRATEGY_FIELDS"].([]any)
	indicators := strat["EMSX_STRATEGY_FIELD_INDICATORS"].([]any)
	require.Len(t, fields, 2)
	require.Len(t, indicators, 2)
	assert.Equal(t, "09:30:00", fields[0].(map[string]any)["EMSX_FIELD_DATA"])
	assert.EqualValues(t, 1, indicators[1].(map[string]any)["EMSX_FIELD_INDICATOR"])
}

func TestRequestValidation(t *testing.T) {
	cases := []Request{
		CreateOrder{Amount: 1, OrderType: "MKT", Side: "BUY"},
		CreateOrderAndRoute{CreateOrder: CreateOrder{Ticker: "X", Amount: 1, OrderType: "MKT", Side: "BUY"}},
		Route{Sequence: 1, Amount: 100},
		ModifyRoute{Sequence: 1, Amount: 100},
		GroupRoute{Sequences: []int64{1}, AmountPercent: 150, Broker: "BB"},
		CreateBasket{Sequences: []int64{1}},
		AssignTrader{Sequences: []int64{1}},
		BrokerStrategies{Broker: "BB"},
		BrokerSpecRequest{},
		GetFills{},
	}
	for _, r := range cases {
		e := session.NewElement(r.Operation())
		assert.ErrorIs(t, r.fill(e), ErrInvalidRequest, r.Operation())
	}
}

func TestGroupRouteRequest(t *testing.T) {
	out := buildJSON(t, GroupRoute{
		Sequences:     []int64{11, 12},
		AmountPercent: 50,
		Broker:        "BMTB",
		RouteRefIDs:   []RouteRefIDPair{{RouteRefID: "r1", Sequence: 11}},
	})
	assert.Equal(t, []any{float64(11), float64(12)}, out["EMSX_SEQUENCE"])
	assert.EqualValues(t, 50, out["EMSX_AMOUNT_PERCENT"])
	pairs := out["EMSX_ROUTE_REF_ID_PAIRS"].([]any)
	require.Len(t, pairs, 1)
	assert.Equal(t, "r1", pairs[0].(map[string]any)["EMSX_ROUTE_REF_ID"])
}

func TestAssignTraderRequest(t *testing.T) {
	out := buildJSON(t, AssignTrader{Sequences: []int64{3734664, 3734665}, TraderUUID: 12109783})
	assert.Equal(t, []any{float64(3734664), float64(3734665)}, out["EMSX_SEQUENCE"])
	assert.EqualValues(t, 12109783, out["EMSX_ASSIGNEE_TRADER_UUID"])
}

func TestGetFillsRequest(t *testing.T) {
	from := time.Date(2017, 11, 3, 0, 0, 0, 0, time.FixedZone("", 0))
	to := from.Add(24 * time.Hour)

	out := buildJSON(t, GetFills{
		From:   from,
		To:     to,
		Scope:  FillScope{UUIDs: []int64{8049857}},
		Filter: &FillFilter{OrdersAndRoutes: []OrderRoute{{OrderID: 4292580, RouteID: 1}}},
	})
	assert.Equal(t, "2017-11-03T00:00:00.000+00:00", out["FromDateTime"])
	assert.Equal(t, "2017-11-04T00:00:00.000+00:00", out["ToDateTime"])
	assert.Equal(t, map[string]any{"Uuids": []any{float64(8049857)}}, out["Scope"])

	filter := out["FilterBy"].(map[string]any)
	items := filter["OrdersAndRoutes"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"OrderId": float64(4292580), "RouteId": float64(1)}, items[0])
}

func TestGetFillsScopeMustBeSingle(t *testing.T) {
	from := time.Now()
	r := GetFills{From: from, To: from.Add(time.Hour), Scope: FillScope{Team: "T", TradingSystem: true}}
	assert.ErrorIs(t, r.fill(session.NewElement(OpGetFills)), ErrInvalidRequest)

	r.To = from.Add(-time.Hour)
	assert.ErrorIs(t, r.fill(session.NewElement(OpGetFills)), ErrInvalidRequest)
}

func TestAsRequestErrorBothSpellings(t *testing.T) {
	re, ok := AsRequestError(decode(t, MsgErrorInfo, 1, `{"ERROR_CODE":22,"ERROR_MESSAGE":"Invalid broker"}`))
	require.True(t, ok)
	assert.Equal(t, int64(22), re.Code)
	assert.Equal(t, "ERROR CODE: 22\tERROR MESSAGE: Invalid broker", re.Error())

	re, ok = AsRequestError(decode(t, MsgErrorInfo, 1, `{"ErrorCode":5,"ErrorMsg":"No fills"}`))
	require.True(t, ok)
	assert.Equal(t, int64(5), re.Code)
	assert.Equal(t, "No fills", re.Message)

	_, ok = AsRequestError(decode(t, MsgRoute, 1, `{"EMSX_SEQUENCE":1}`))
	assert.False(t, ok)
}

func TestDecodeOrderRouteResult(t *testing.T) {
	r := DecodeOrderRouteResult(decode(t, MsgCreateOrderAndRouteEx, 1,
		`{"EMSX_SEQUENCE":5,"EMSX_ROUTE_ID":1,"MESSAGE":"Order created and routed"}`))
	assert.Equal(t, OrderRouteResult{Sequence: 5, RouteID: 1, Message: "Order created and routed"}, r)
}

func TestDecodeGroupRouteResult(t *testing.T) {
	r, err := DecodeGroupRouteResult(decode(t, MsgGroupRouteEx, 1, `{
		"EMSX_SUCCESS_ROUTES":[{"EMSX_SEQUENCE":11,"EMSX_ROUTE_ID":2}],
		"EMSX_FAILED_ROUTES":[{"EMSX_SEQUENCE":12,"ERROR_CODE":3,"ERROR_MESSAGE":"Order is filled"}],
		"MESSAGE":"1 of 2 routed"}`))
	require.NoError(t, err)
	assert.Equal(t, []RouteSuccess{{Sequence: 11, RouteID: 2}}, r.Success)
	assert.Equal(t, []RouteFailure{{Sequence: 12, ErrorCode: 3, ErrorMessage: "Order is filled"}}, r.Failed)
	assert.Equal(t, "1 of 2 routed", r.Message)
}

func TestDecodeAssignTraderResult(t *testing.T) {
	r, err := DecodeAssignTraderResult(decode(t, MsgAssignTrader, 1, `{
		"EMSX_ALL_SUCCESS":false,
		"EMSX_ASSIGN_TRADER_SUCCESSFUL_ORDERS":[{"EMSX_SEQUENCE":1}],
		"EMSX_ASSIGN_TRADER_FAILED_ORDERS":[{"EMSX_SEQUENCE":2},{"EMSX_SEQUENCE":3}]}`))
	require.NoError(t, err)
	assert.False(t, r.AllSuccess)
	assert.Equal(t, []int64{1}, r.Successful)
	assert.Equal(t, []int64{2, 3}, r.Failed)

	_, err = DecodeAssignTraderResult(decode(t, MsgAssignTrader, 1, `{}`))
	assert.Error(t, err)
}

func TestDecodeStrategies(t *testing.T) {
	s, err := DecodeStrategies(decode(t, MsgBrokerStrategies, 1, `{"EMSX_STRATEGIES":["DMA","VWAP"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"DMA", "VWAP"}, s)
}

func TestDecodeFills(t *testing.T) {
	fills, err := DecodeFills(decode(t, MsgGetFillsResponse, 1, `{"Fills":[
		{"OrderId":4292580,"FillId":1,"DateTimeOfFill":"2017-11-03T11:42:34.000+00:00","FillShares":100,"FillPrice":10.25,"Ticker":"IBM"},
		{"OrderId":4292580,"FillId":2,"DateTimeOfFill":"2017-11-03T11:43:34.000+00:00","FillShares":50.5,"FillPrice":10.5}]}`))
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, int64(4292580), fills[0].OrderID)
	assert.Equal(t, "IBM", fills[0].Ticker)
	assert.InDelta(t, 100.0, fills[0].FillShares, 1e-9)
	assert.Equal(t, "", fills[1].Ticker)
	assert.InDelta(t, 50.5, fills[1].FillShares, 1e-9)

	_, err = DecodeFills(decode(t, MsgGetFillsResponse, 1, `{"Fills":[{"OrderId":1}]}`))
	assert.Error(t, err)
}

func TestDecodeBrokerSpec(t *testing.T) {
	brokers, err := DecodeBrokerSpec(decode(t, MsgBrokerSpec, 1, `{"brokers":[
		{"code":"BB","assetClass":"EQTY","strategyFixTag":6000,
		 "strategies":[{"name":"VWAP","fixValue":"V","parameters":[
			{"name":"StartTime","fixTag":6001,"isRequired":true,"isReplaceable":false,"type":{"string":{"possibleValues":[]}}},
			{"name":"Urgency","fixTag":6002,"isRequired":false,"isReplaceable":true,"type":{"enumeration":{"enumerators":[{"name":"Low","fixValue":"1"},{"name":"High","fixValue":"3"}]}}},
			{"name":"Volume","fixTag":6003,"isRequired":false,"isReplaceable":true,"type":{"range":{"min":1,"max":50,"step":1}}}]}],
		 "timesInForce":[{"name":"DAY","fixValue":"0"}],
		 "orderTypes":[{"name":"MKT","fixValue":"1"}],
		 "handlingInstructions":[{"name":"ANY","fixValue":"1"}]},
		{"code":"DMA","assetClass":"FUT","timesInForce":[],"orderTypes":[],"handlingInstructions":[]}]}`))
	require.NoError(t, err)
	require.Len(t, brokers, 2)

	bb := brokers[0]
	assert.True(t, bb.HasStrategyFixTag)
	assert.Equal(t, int64(6000), bb.StrategyFixTag)
	require.Len(t, bb.Strategies, 1)
	params := bb.Strategies[0].Parameters
	require.Len(t, params, 3)
	assert.Equal(t, "string", params[0].Type.Kind)
	assert.True(t, params[0].Required)
	assert.Equal(t, "enumeration", params[1].Type.Kind)
	assert.Equal(t, []NamedFixValue{{"Low", "1"}, {"High", "3"}}, params[1].Type.Enumerators)
	assert.Equal(t, ParameterType{Kind: "range", Min: 1, Max: 50, Step: 1}, params[2].Type)
	assert.Equal(t, []NamedFixValue{{"DAY", "0"}}, bb.TimesInForce)

	dma := brokers[1]
	assert.False(t, dma.HasStrategyFixTag)
	assert.Empty(t, dma.Strategies)
	assert.Empty(t, dma.OrderTypes)
}
