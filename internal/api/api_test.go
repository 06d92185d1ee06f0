package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emsxbridge.com/internal/config"
	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/engine"
	"emsxbridge.com/internal/infra"
	"emsxbridge.com/internal/metrics"
	"emsxbridge.com/internal/service"
)

type stubRequests struct {
	scope  emsx.FillScope
	from   time.Time
	assign func(seqs []int64, trader int64) (emsx.AssignTraderResult, error)
}

func (s *stubRequests) AssignTrader(_ context.Context, seqs []int64, trader int64) (emsx.AssignTraderResult, error) {
	return s.assign(seqs, trader)
}

func (s *stubRequests) BrokerStrategies(_ context.Context, assetClass, broker string) ([]string, error) {
	if broker != "BB" {
		return nil, domain.NewRejectedError(errors.New("ERROR CODE: 61\tERROR MESSAGE: Unknown broker"))
	}
	return []string{"DMA", "VWAP"}, nil
}

func (s *stubRequests) SyncFills(_ context.Context, from, to time.Time, scope emsx.FillScope) (int, int, error) {
	s.scope, s.from = scope, from
	return 4, 3, nil
}

func newTestApp(t *testing.T) (*fiber.App, *service.BlotterServiceImpl, *stubRequests) {
	t.Helper()
	db, err := infra.NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "blotter.db"),
	}, zap.NewNop())
	require.NoError(t, err)

	blotter := service.NewBlotterService(db, zap.NewNop())
	requests := &stubRequests{
		assign: func(seqs []int64, trader int64) (emsx.AssignTraderResult, error) {
			return emsx.AssignTraderResult{AllSuccess: true, Successful: seqs}, nil
		},
	}
	feed := engine.NewSubscriptionState()
	feed.RecordHeartbeat(emsx.OrderTopic)

	cfg := &config.Config{Server: config.ServerConfig{AppName: "test", RequestTimeout: time.Second}}
	app := NewServer(cfg, Deps{
		Blotter:  blotter,
		Requests: requests,
		Metrics:  metrics.New().Handler(),
		Feed:     feed,
		Log:      zap.NewNop(),
	})
	return app, blotter, requests
}

func seed(t *testing.T, blotter *service.BlotterServiceImpl) {
	t.Helper()
	ctx := context.Background()
	fv := func(name string, kind emsx.FieldKind, v any) emsx.FieldValue {
		return emsx.FieldValue{Field: emsx.Field{Name: name, Kind: kind}, Value: v}
	}
	for _, seq := range []int{1001, 1002} {
		require.NoError(t, blotter.ApplyUpdate(ctx, emsx.Update{Kind: emsx.OrderTopic, Status: emsx.StatusInitialPaint, Values: []emsx.FieldValue{
			fv("EMSX_SEQUENCE", emsx.KindInt, seq),
			fv("EMSX_STATUS", emsx.KindString, "WORKING"),
		}}))
	}
	require.NoError(t, blotter.ApplyUpdate(ctx, emsx.Update{Kind: emsx.RouteTopic, Status: emsx.StatusNew, Values: []emsx.FieldValue{
		fv("EMSX_SEQUENCE", emsx.KindInt, 1001),
		fv("EMSX_ROUTE_ID", emsx.KindInt, 1),
		fv("EMSX_BROKER", emsx.KindString, "BB"),
	}}))
	_, err := blotter.RecordFills(ctx, []emsx.Fill{
		{OrderID: 1001, FillID: 1, DateTimeOfFill: "2026-03-02T14:30:00.000+00:00", FillShares: 100, FillPrice: 10},
	})
	require.NoError(t, err)
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else {
		out["raw"] = string(raw)
	}
	return resp.StatusCode, out
}

func TestHealthReportsFeed(t *testing.T) {
	app, _, _ := newTestApp(t)
	code, body := do(t, app, "GET", "/health", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "ok", body["status"])
	subs := body["subscriptions"].(map[string]any)
	assert.Contains(t, subs, "order")
}

func TestMetricsEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)
	code, body := do(t, app, "GET", "/metrics", "")
	assert.Equal(t, 200, code)
	assert.Contains(t, body["raw"], "go_goroutines")
}

func TestOrderRoutes(t *testing.T) {
	app, blotter, _ := newTestApp(t)
	seed(t, blotter)

	code, body := do(t, app, "GET", "/api/orders?status=WORKING&page=1&pageSize=1", "")
	require.Equal(t, 200, code)
	pagination := body["Pagination"].(map[string]any)
	assert.Equal(t, 2.0, pagination["Total"])
	assert.Equal(t, 2.0, pagination["TotalPage"])
	data := body["Data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, 1002.0, data[0].(map[string]any)["Sequence"])

	code, body = do(t, app, "GET", "/api/orders/1001", "")
	require.Equal(t, 200, code)
	assert.Len(t, body["Routes"], 1)

	code, _ = do(t, app, "GET", "/api/orders/4242", "")
	assert.Equal(t, 404, code)
	code, _ = do(t, app, "GET", "/api/orders/abc", "")
	assert.Equal(t, 400, code)
	code, _ = do(t, app, "GET", "/api/orders?pageSize=0", "")
	assert.Equal(t, 400, code)

	code, body = do(t, app, "GET", "/api/orders/1001/fills", "")
	require.Equal(t, 200, code)
	assert.Len(t, body["Fills"], 1)
	assert.Equal(t, "10", body["Summary"].(map[string]any)["VWAP"])

	code, body = do(t, app, "GET", "/api/orders/1001/routes", "")
	require.Equal(t, 200, code)
	assert.Contains(t, body["raw"], `"Broker":"BB"`)

	code, body = do(t, app, "GET", "/api/orders/1001/updates?limit=1", "")
	require.Equal(t, 200, code)
	assert.Contains(t, body["raw"], `"Kind":"route"`)
}

func TestRequestRoutes(t *testing.T) {
	app, _, requests := newTestApp(t)

	code, body := do(t, app, "POST", "/api/orders/assign-trader", `{"Sequences":[1001,1002],"TraderUUID":12109783}`)
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["AllSuccess"])
	assert.Len(t, body["Successful"], 2)

	code, body = do(t, app, "GET", "/api/brokers/strategies?assetClass=EQTY&broker=BB", "")
	require.Equal(t, 200, code)
	assert.Equal(t, []any{"DMA", "VWAP"}, body["Strategies"])

	code, body = do(t, app, "GET", "/api/brokers/strategies?assetClass=EQTY&broker=XX", "")
	assert.Equal(t, 422, code)
	assert.Contains(t, body["Error"], "Unknown broker")

	code, _ = do(t, app, "GET", "/api/brokers/strategies", "")
	assert.Equal(t, 400, code)

	code, body = do(t, app, "POST", "/api/fills/sync", `{"Team":"EMSX_API","To":"2026-03-02T15:00:00Z"}`)
	require.Equal(t, 200, code)
	assert.Equal(t, 4.0, body["Fetched"])
	assert.Equal(t, 3.0, body["Stored"])
	assert.Equal(t, "EMSX_API", requests.scope.Team)
	assert.True(t, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC).Equal(requests.from), requests.from)

	code, _ = do(t, app, "POST", "/api/fills/sync", `not json`)
	assert.Equal(t, 400, code)
}

func TestRequestRoutesAbsentWithoutSession(t *testing.T) {
	db, err := infra.NewDatabase(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "b.db")}, zap.NewNop())
	require.NoError(t, err)
	app := NewServer(&config.Config{}, Deps{Blotter: service.NewBlotterService(db, zap.NewNop()), Log: zap.NewNop()})

	code, _ := do(t, app, "POST", "/api/fills/sync", `{}`)
	assert.Equal(t, 404, code)
	code, _ = do(t, app, "GET", "/ws", "")
	assert.Equal(t, 404, code)
}
