package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"emsxbridge.com/internal/config"
	"emsxbridge.com/internal/emsx"
)

func TestInt64List(t *testing.T) {
	var l int64List
	require.NoError(t, l.Set("1001, 1002,,1003"))
	assert.Equal(t, int64List{1001, 1002, 1003}, l)
	assert.Equal(t, "1001,1002,1003", l.String())

	assert.Error(t, l.Set("12x"))
}

func TestStrategyParams(t *testing.T) {
	var s strategyFlags
	assert.Nil(t, s.params())

	s = strategyFlags{name: "VWAP", fields: "09:30:00,,50"}
	p := s.params()
	require.NotNil(t, p)
	assert.Equal(t, "VWAP", p.Name)
	assert.Equal(t, []emsx.StrategyField{
		{Value: "09:30:00"},
		{Value: "", Ignore: true},
		{Value: "50"},
	}, p.Fields)
}

func TestParseOrdersAndRoutes(t *testing.T) {
	pairs, err := parseOrdersAndRoutes("1001:1, 1002")
	require.NoError(t, err)
	assert.Equal(t, []emsx.OrderRoute{{OrderID: 1001, RouteID: 1}, {OrderID: 1002}}, pairs)

	_, err = parseOrdersAndRoutes("1001:x")
	assert.Error(t, err)
}

func TestParseFillTime(t *testing.T) {
	want := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

	got, err := parseFillTime("2026-10-01T09:30:00Z")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = parseFillTime(want.Format(emsx.FillTimeLayout))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func testApp(t *testing.T) *app {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Simulator.HeartbeatInterval = 0
	return &app{cfg: cfg, log: zaptest.NewLogger(t), simulate: true}
}

func TestCommandsAgainstSimulator(t *testing.T) {
	a := testApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, runBrokerSpec(ctx, a, nil))
	require.NoError(t, runStrategies(ctx, a, []string{"-broker", "BB"}))
	require.NoError(t, runAssignTrader(ctx, a, []string{"-seq", "1001", "-trader", "12109783"}))
	require.NoError(t, runCreateOrderAndRoute(ctx, a, []string{"-ticker", "IBM US Equity", "-amount", "100"}))
	require.NoError(t, runHistory(ctx, a, []string{"-team", "DESK"}))
}

func TestHistoryRejectsTwoFilters(t *testing.T) {
	a := testApp(t)
	err := runHistory(context.Background(), a, []string{"-baskets", "B1", "-orders", "1001"})
	assert.ErrorContains(t, err, "exclusive")
}
