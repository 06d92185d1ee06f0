package simulator

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"emsxbridge.com/internal/gateway"
)

// App mounts the simulator on /ws; every websocket connection is one
// client session.
func (s *Simulator) App(pingInterval time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "emsx-simulator",
		DisableStartupMessage: true,
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Use("/ws", gateway.UpgradeRequired)
	app.Get("/ws", gateway.WebsocketHandler(pingInterval, s.Serve))
	return app
}

// ServeRedis serves sessions from the Redis command queue one after another
// until ctx is cancelled.
func (s *Simulator) ServeRedis(ctx context.Context, ep *gateway.RedisEndpoint) error {
	for {
		if err := s.Serve(ctx, ep); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.log.Info("Simulator: waiting for next session")
	}
}

// Run serves a single in-process endpoint and logs how it ended.
func (s *Simulator) Run(ctx context.Context, ep gateway.Endpoint) {
	if err := s.Serve(ctx, ep); err != nil {
		s.log.Error("Simulator: stopped with error", zap.Error(err))
	}
}
