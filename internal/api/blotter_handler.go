package api

import (
	"github.com/gofiber/fiber/v2"

	"emsxbridge.com/internal/domain"
)

// BlotterHandler serves the persisted order and route blotter.
type BlotterHandler struct {
	blotter domain.BlotterService
}

func NewBlotterHandler(blotter domain.BlotterService) *BlotterHandler {
	return &BlotterHandler{blotter: blotter}
}

// GetOrders
// GET /api/orders?status=WORKING&page=1&pageSize=50
func (h *BlotterHandler) GetOrders(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("pageSize", 50)
	if page < 1 || pageSize < 1 || pageSize > 500 {
		return badRequest(c, "page must be >= 1 and pageSize between 1 and 500")
	}

	orders, total, err := h.blotter.GetOrders(c.UserContext(), c.Query("status"), page, pageSize)
	if err != nil {
		return handleError(c, err)
	}
	return SendPaginatedResponse(c, orders, page, pageSize, total)
}

// GetOrder returns one order with its routes.
// GET /api/orders/:sequence
func (h *BlotterHandler) GetOrder(c *fiber.Ctx) error {
	seq, ok := sequenceParam(c)
	if !ok {
		return badRequest(c, "Invalid sequence")
	}
	order, err := h.blotter.GetOrder(c.UserContext(), seq)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(order)
}

// GET /api/orders/:sequence/routes
func (h *BlotterHandler) GetRoutes(c *fiber.Ctx) error {
	seq, ok := sequenceParam(c)
	if !ok {
		return badRequest(c, "Invalid sequence")
	}
	routes, err := h.blotter.GetRoutes(c.UserContext(), seq)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(routes)
}

// GET /api/orders/:sequence/fills
func (h *BlotterHandler) GetFills(c *fiber.Ctx) error {
	seq, ok := sequenceParam(c)
	if !ok {
		return badRequest(c, "Invalid sequence")
	}
	fills, summary, err := h.blotter.GetFills(c.UserContext(), seq)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"Fills":   fills,
		"Summary": summary,
	})
}

// GET /api/orders/:sequence/updates?limit=100
func (h *BlotterHandler) GetUpdates(c *fiber.Ctx) error {
	seq, ok := sequenceParam(c)
	if !ok {
		return badRequest(c, "Invalid sequence")
	}
	logs, err := h.blotter.GetUpdates(c.UserContext(), seq, c.QueryInt("limit", 100))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(logs)
}
