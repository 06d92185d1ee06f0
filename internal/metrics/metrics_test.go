package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
)

func TestCountsUpdatesAndHeartbeats(t *testing.T) {
	m := New()

	m.HandleUpdate(emsx.Update{Kind: emsx.OrderTopic, Status: emsx.StatusInitialPaint})
	m.HandleUpdate(emsx.Update{Kind: emsx.OrderTopic, Status: emsx.StatusInitialPaint})
	m.HandleUpdate(emsx.Update{Kind: emsx.RouteTopic, Status: emsx.StatusUpdate})
	m.HandleHeartbeat(emsx.RouteTopic)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Updates.WithLabelValues("order", "INIT_PAINT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Updates.WithLabelValues("route", "UPD_ORDER_ROUTE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Heartbeats.WithLabelValues("route")))
}

func TestObserveRequestOutcomes(t *testing.T) {
	m := New()

	m.ObserveRequest("AssignTrader", time.Millisecond, nil)
	m.ObserveRequest("AssignTrader", time.Millisecond, domain.NewRejectedError(errors.New("ERROR CODE: 1")))
	m.ObserveRequest("GetFills", time.Millisecond, domain.NewBadRequestError("bad scope"))
	m.ObserveRequest("GetFills", time.Millisecond, domain.NewUnavailableError("not started", nil))
	m.ObserveRequest("GetFills", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("AssignTrader", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("AssignTrader", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GetFills", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GetFills", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GetFills", "error")))
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.AddFillsStored(3)
	m.AddFillsStored(0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "emsx_fills_stored_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}
