package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"emsxbridge.com/internal/config"
)

// Router registers every route.
type Router struct {
	app    *fiber.App
	cfg    *config.Config
	deps   Deps
	router fiber.Router // /api group
}

func NewRouter(app *fiber.App, cfg *config.Config, deps Deps) *Router {
	return &Router{
		app:  app,
		cfg:  cfg,
		deps: deps,
	}
}

func (r *Router) RegisterRoutes() {
	r.app.Get("/health", r.health)

	if r.deps.Metrics != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(r.deps.Metrics))
	}
	if r.deps.WsManager != nil {
		InitWebsocket(r.app, r.deps.WsManager, r.deps.Log)
	}

	r.router = r.app.Group("/api")
	r.registerBlotterRoutes(NewBlotterHandler(r.deps.Blotter))
	if r.deps.Requests != nil {
		r.registerRequestRoutes(NewRequestHandler(r.deps.Requests, r.cfg.Server.RequestTimeout))
	}
}

func (r *Router) health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":  "ok",
		"message": "Service is healthy",
	}
	if r.deps.Feed != nil {
		body["subscriptions"] = r.deps.Feed.Snapshot()
	}
	if r.deps.WsManager != nil {
		body["clients"] = r.deps.WsManager.ClientCount()
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

func (r *Router) registerBlotterRoutes(h *BlotterHandler) {
	orders := r.router.Group("/orders")
	orders.Get("/", h.GetOrders)
	orders.Get("/:sequence", h.GetOrder)
	orders.Get("/:sequence/routes", h.GetRoutes)
	orders.Get("/:sequence/fills", h.GetFills)
	orders.Get("/:sequence/updates", h.GetUpdates)
}

func (r *Router) registerRequestRoutes(h *RequestHandler) {
	r.router.Post("/orders/assign-trader", h.AssignTrader)
	r.router.Post("/fills/sync", h.SyncFills)
	r.router.Get("/brokers/strategies", h.BrokerStrategies)
}
