package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"emsxbridge.com/internal/config"
	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/engine"
	"emsxbridge.com/internal/infra"
)

// Deps are the services behind the HTTP API. Requests, WsManager, Metrics
// and Feed may be nil; their routes are then not mounted.
type Deps struct {
	Blotter   domain.BlotterService
	Requests  domain.RequestService
	WsManager *infra.WsManager
	Metrics   http.Handler
	Feed      *engine.SubscriptionState
	Log       *zap.Logger
}

func NewServer(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Server.AppName,
		DisableStartupMessage: true,
	})

	app.Use(logger.New())
	app.Use(cors.New())

	NewRouter(app, cfg, deps).RegisterRoutes()
	return app
}
