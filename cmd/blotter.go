package main

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/api"
	"emsxbridge.com/internal/engine"
	"emsxbridge.com/internal/event"
	"emsxbridge.com/internal/infra"
	"emsxbridge.com/internal/metrics"
	"emsxbridge.com/internal/printer"
	"emsxbridge.com/internal/service"
	"emsxbridge.com/internal/session"
	"emsxbridge.com/internal/workflow"
)

// runBlotter keeps the order and route subscriptions open, stores every
// update and serves the stored blotter over HTTP and websocket.
func runBlotter(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("blotter")
	verbose := fs.Bool("print", false, "also print every update to stdout")
	listen := fs.String("listen", a.cfg.Server.Port, "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log := a.log

	// 1. Storage
	db, err := infra.NewDatabase(a.cfg.Database, log)
	if err != nil {
		return err
	}

	// 2. Bus, metrics and websocket fan-out
	bus := event.NewBus(a.cfg.Server.EventBuffer, log)
	defer bus.Shutdown()

	m := metrics.New()
	wsManager := infra.NewWsManager(log)
	go wsManager.Start(ctx)

	// 3. Engine
	blotter := service.NewBlotterService(db, log)
	eng := engine.NewEngine(bus, blotter, wsManager, m, log)
	eng.Start()
	defer eng.Stop()

	// 4. Session
	tr, cleanup, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	action := workflow.NewSubscriptionAction(eng, m)
	if !*verbose {
		action = action.Quiet()
	}
	r := workflow.NewRunner(a.cfg.Session.Service, action, printer.New(os.Stdout), log)
	sess := session.New(tr, r, a.sessionOptions(), log)

	requests := service.NewRequestService(sess, blotter, bus,
		a.cfg.Session.Service, a.cfg.Session.HistoryService, log).WithObserver(m)

	// 5. HTTP
	app := api.NewServer(a.cfg, api.Deps{
		Blotter:   blotter,
		Requests:  requests,
		WsManager: wsManager,
		Metrics:   m.Handler(),
		Feed:      eng.State(),
		Log:       log,
	})
	go func() {
		log.Info("Main: HTTP server listening", zap.String("addr", *listen))
		if err := app.Listen(*listen); err != nil {
			log.Error("Main: HTTP server stopped", zap.Error(err))
		}
	}()

	err = r.Run(ctx, sess)

	if shutdownErr := app.ShutdownWithTimeout(5 * time.Second); shutdownErr != nil {
		log.Warn("Main: HTTP shutdown", zap.Error(shutdownErr))
	}
	if errors.Is(err, context.Canceled) {
		log.Info("Main: blotter stopped")
		return nil
	}
	return err
}
