package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"emsxbridge.com/internal/config"
	"emsxbridge.com/internal/gateway"
	"emsxbridge.com/internal/infra"
	"emsxbridge.com/internal/logger"
	"emsxbridge.com/internal/printer"
	"emsxbridge.com/internal/session"
	"emsxbridge.com/internal/simulator"
	"emsxbridge.com/internal/workflow"
)

// app is what every command gets: the loaded config, the logger and the
// global flags.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	simulate bool
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"brokerspec":          {"print the broker specification for a user", runBrokerSpec},
	"assigntrader":        {"assign orders to another trader", runAssignTrader},
	"history":             {"print fills from the history service", runHistory},
	"subscriptions":       {"stream the order and route blotter", runSubscriptions},
	"createorderandroute": {"create an order and route it", runCreateOrderAndRoute},
	"route":               {"route an existing order", runRoute},
	"modifyroute":         {"modify a working route", runModifyRoute},
	"grouproute":          {"route several orders at once", runGroupRoute},
	"createbasket":        {"create a basket from orders", runCreateBasket},
	"strategies":          {"list a broker's strategies", runStrategies},
	"blotter":             {"persist the blotter and serve it over HTTP", runBlotter},
	"simulator":           {"serve a simulated EMSX bridge", runSimulator},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: emsx [global flags] <command> [flags]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(out, "\nglobal flags:\n")
	flag.PrintDefaults()
}

func main() {
	configDir := flag.String("config", "", "directory holding config.yaml")
	simulate := flag.Bool("simulate", false, "run against an in-process simulator")
	transport := flag.String("transport", "", "bridge transport: memory, redis or websocket (overrides gateway.transport)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Gateway.Transport = *transport
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log, simulate: *simulate}
	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil && !errors.Is(err, context.Canceled) {
		if !errors.Is(err, flag.ErrHelp) {
			log.Error("Main: command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		}
		log.Sync()
		os.Exit(1)
	}
}

// connect opens the configured bridge transport. The returned cleanup
// releases whatever connect started besides the transport itself, which the
// session closes.
func (a *app) connect(ctx context.Context) (gateway.Transport, func(), error) {
	mode := a.cfg.Gateway.Transport
	if a.simulate {
		mode = "memory"
	}

	switch mode {
	case "memory", "":
		sim := simulator.New(simulator.Options{
			HeartbeatInterval: a.cfg.Simulator.HeartbeatInterval,
			Seed:              true,
		}, a.log.Named("simulator"))
		tr, ep := gateway.NewPipe(256)
		simCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			sim.Run(simCtx, ep)
		}()
		a.log.Info("Main: using in-process simulator")
		return tr, func() { cancel(); <-done }, nil

	case "redis":
		rdb, err := infra.ConnectRedis(ctx, a.cfg.Gateway.Redis)
		if err != nil {
			return nil, nil, err
		}
		tr, err := gateway.NewRedisTransport(ctx, rdb, a.redisOptions(), a.log)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return tr, func() { rdb.Close() }, nil

	case "websocket":
		tr, err := gateway.DialWebsocket(ctx, a.cfg.Gateway.WebsocketURL, a.cfg.Gateway.ReadTimeout, a.log)
		if err != nil {
			return nil, nil, err
		}
		return tr, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown gateway transport %q", mode)
}

func (a *app) redisOptions() gateway.RedisOptions {
	return gateway.RedisOptions{
		CommandQueue:        a.cfg.Gateway.CommandQueue,
		EventQueue:          a.cfg.Gateway.EventQueue,
		SubscriptionChannel: a.cfg.Gateway.SubscriptionChannel,
	}
}

func (a *app) sessionOptions() session.Options {
	return session.Options{Host: a.cfg.Session.Host, Port: a.cfg.Session.Port}
}

// runAction runs one program: start the session, open service, hand
// control to action and wait for it to finish.
func (a *app) runAction(ctx context.Context, service string, action workflow.Action) error {
	tr, cleanup, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	r := workflow.NewRunner(service, action, printer.New(os.Stdout), a.log)
	sess := session.New(tr, r, a.sessionOptions(), a.log)
	return r.Run(ctx, sess)
}
