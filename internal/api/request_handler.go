package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
)

// RequestHandler issues EMSX requests over the live session.
type RequestHandler struct {
	requests domain.RequestService
	timeout  time.Duration
}

func NewRequestHandler(requests domain.RequestService, timeout time.Duration) *RequestHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RequestHandler{requests: requests, timeout: timeout}
}

func (h *RequestHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// SyncFillsRequest selects the fills to fetch. Exactly one of Team,
// TradingSystem and Uuids must be set.
type SyncFillsRequest struct {
	From          time.Time `json:"From"`
	To            time.Time `json:"To"`
	Team          string    `json:"Team"`
	TradingSystem bool      `json:"TradingSystem"`
	Uuids         []int64   `json:"Uuids"`
}

// SyncFills fetches fills from the history service into the blotter.
// POST /api/fills/sync
func (h *RequestHandler) SyncFills(c *fiber.Ctx) error {
	var req SyncFillsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.To.IsZero() {
		req.To = time.Now()
	}
	if req.From.IsZero() {
		req.From = req.To.Add(-24 * time.Hour)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	scope := emsx.FillScope{Team: req.Team, TradingSystem: req.TradingSystem, UUIDs: req.Uuids}
	fetched, stored, err := h.requests.SyncFills(ctx, req.From, req.To, scope)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"Fetched": fetched,
		"Stored":  stored,
	})
}

type AssignTraderRequest struct {
	Sequences  []int64 `json:"Sequences"`
	TraderUUID int64   `json:"TraderUUID"`
}

// AssignTrader
// POST /api/orders/assign-trader
func (h *RequestHandler) AssignTrader(c *fiber.Ctx) error {
	var req AssignTraderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := h.context(c)
	defer cancel()

	res, err := h.requests.AssignTrader(ctx, req.Sequences, req.TraderUUID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"AllSuccess": res.AllSuccess,
		"Successful": res.Successful,
		"Failed":     res.Failed,
	})
}

// BrokerStrategies
// GET /api/brokers/strategies?assetClass=EQTY&broker=BB
func (h *RequestHandler) BrokerStrategies(c *fiber.Ctx) error {
	assetClass, broker := c.Query("assetClass"), c.Query("broker")
	if assetClass == "" || broker == "" {
		return badRequest(c, "assetClass and broker are required")
	}

	ctx, cancel := h.context(c)
	defer cancel()

	strategies, err := h.requests.BrokerStrategies(ctx, assetClass, broker)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"Broker":     broker,
		"AssetClass": assetClass,
		"Strategies": strategies,
	})
}
