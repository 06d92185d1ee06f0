package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/gateway"
	"emsxbridge.com/internal/infra"
	"emsxbridge.com/internal/simulator"
)

// runSimulator serves a simulated bridge to other processes, either on a
// websocket endpoint or on the configured Redis queues.
func runSimulator(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("simulator")
	listen := fs.String("listen", a.cfg.Simulator.Listen, "websocket listen address")
	useRedis := fs.Bool("redis", false, "serve on the Redis queues instead of websocket")
	seed := fs.Bool("seed", true, "start with a few orders in the book")
	heartbeat := fs.Duration("heartbeat", a.cfg.Simulator.HeartbeatInterval, "subscription heartbeat interval, 0 disables")
	ping := fs.Duration("ping", 10*time.Second, "websocket ping interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sim := simulator.New(simulator.Options{
		HeartbeatInterval: *heartbeat,
		Seed:              *seed,
	}, a.log.Named("simulator"))

	if *useRedis {
		rdb, err := infra.ConnectRedis(ctx, a.cfg.Gateway.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		a.log.Info("Simulator: serving on redis",
			zap.String("commands", a.cfg.Gateway.CommandQueue), zap.String("events", a.cfg.Gateway.EventQueue))
		return sim.ServeRedis(ctx, gateway.NewRedisEndpoint(rdb, a.redisOptions()))
	}

	app := sim.App(*ping)
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			a.log.Warn("Simulator: shutdown", zap.Error(err))
		}
	}()
	a.log.Info("Simulator: listening", zap.String("addr", *listen))
	return app.Listen(*listen)
}
