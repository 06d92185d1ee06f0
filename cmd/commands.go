package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/workflow"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// int64List is a comma separated list of integers, e.g. "1001,1002".
type int64List []int64

func (l *int64List) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func (l *int64List) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", part)
		}
		*l = append(*l, v)
	}
	return nil
}

// strategyFlags are shared by every command that can route with a broker
// strategy.
type strategyFlags struct {
	name   string
	fields string
}

func (s *strategyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.name, "strategy", "", "broker strategy name")
	fs.StringVar(&s.fields, "strategy-fields", "", "comma separated strategy field values in broker order; empty values are sent as ignored")
}

func (s *strategyFlags) params() *emsx.StrategyParams {
	if s.name == "" {
		return nil
	}
	p := &emsx.StrategyParams{Name: s.name}
	if s.fields == "" {
		return p
	}
	for _, v := range strings.Split(s.fields, ",") {
		v = strings.TrimSpace(v)
		p.Fields = append(p.Fields, emsx.StrategyField{Value: v, Ignore: v == ""})
	}
	return p
}

func runBrokerSpec(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("brokerspec")
	uuid := fs.Int64("uuid", 8049857, "user uuid whose broker specification is printed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.runAction(ctx, a.cfg.Session.BrokerSpecService, workflow.BrokerSpec(*uuid))
}

func runAssignTrader(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("assigntrader")
	var seqs int64List
	fs.Var(&seqs, "seq", "order sequence numbers, e.g. 3744303,3744341")
	trader := fs.Int64("trader", 0, "uuid of the trader receiving the orders")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.AssignTrader(seqs, *trader))
}

// parseFillTime accepts RFC 3339 or the GetFills layout.
func parseFillTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(emsx.FillTimeLayout, s)
}

// parseOrdersAndRoutes reads "1001:1,1002" into order/route pairs. A
// missing route means every route of the order.
func parseOrdersAndRoutes(s string) ([]emsx.OrderRoute, error) {
	var out []emsx.OrderRoute
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		order, route, hasRoute := strings.Cut(item, ":")
		var or emsx.OrderRoute
		var err error
		if or.OrderID, err = strconv.ParseInt(order, 10, 64); err != nil {
			return nil, fmt.Errorf("bad order id %q", order)
		}
		if hasRoute {
			if or.RouteID, err = strconv.ParseInt(route, 10, 64); err != nil {
				return nil, fmt.Errorf("bad route id %q", route)
			}
		}
		out = append(out, or)
	}
	return out, nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("history")
	from := fs.String("from", "", "start of the window (RFC 3339), default 24h before -to")
	to := fs.String("to", "", "end of the window (RFC 3339), default now")
	team := fs.String("team", "", "scope: team name")
	tradingSystem := fs.Bool("tradingsystem", false, "scope: the trading system")
	var uuids int64List
	fs.Var(&uuids, "uuids", "scope: trader uuids")
	baskets := fs.String("baskets", "", "filter: comma separated basket names")
	orders := fs.String("orders", "", "filter: order[:route] list, e.g. 1001:1,1002")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := emsx.GetFills{
		To:    time.Now(),
		Scope: emsx.FillScope{Team: *team, TradingSystem: *tradingSystem, UUIDs: uuids},
	}
	var err error
	if *to != "" {
		if req.To, err = parseFillTime(*to); err != nil {
			return fmt.Errorf("-to: %w", err)
		}
	}
	req.From = req.To.Add(-24 * time.Hour)
	if *from != "" {
		if req.From, err = parseFillTime(*from); err != nil {
			return fmt.Errorf("-from: %w", err)
		}
	}

	switch {
	case *baskets != "" && *orders != "":
		return fmt.Errorf("-baskets and -orders are exclusive")
	case *baskets != "":
		req.Filter = &emsx.FillFilter{Baskets: strings.Split(*baskets, ",")}
	case *orders != "":
		pairs, err := parseOrdersAndRoutes(*orders)
		if err != nil {
			return err
		}
		req.Filter = &emsx.FillFilter{OrdersAndRoutes: pairs}
	}

	return a.runAction(ctx, a.cfg.Session.HistoryService, workflow.History(req))
}

func runSubscriptions(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("subscriptions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.NewSubscriptionAction())
}

// orderFlags are the order fields shared by order creating commands.
type orderFlags struct {
	ticker, orderType, tif, hand, side, account string
	amount                                      int64
	limit                                       float64
}

func (o *orderFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&o.ticker, "ticker", "IBM US Equity", "security")
	fs.Int64Var(&o.amount, "amount", 1000, "order quantity")
	fs.StringVar(&o.orderType, "type", "MKT", "order type")
	fs.StringVar(&o.tif, "tif", "DAY", "time in force")
	fs.StringVar(&o.hand, "hand", "ANY", "hand instruction")
	fs.StringVar(&o.side, "side", "BUY", "side")
	fs.StringVar(&o.account, "account", "", "account")
	fs.Float64Var(&o.limit, "limit", 0, "limit price")
}

func runCreateOrderAndRoute(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("createorderandroute")
	var o orderFlags
	var st strategyFlags
	o.register(fs)
	st.register(fs)
	broker := fs.String("broker", "BB", "broker code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := emsx.CreateOrderAndRoute{
		CreateOrder: emsx.CreateOrder{
			Ticker:          o.ticker,
			Amount:          o.amount,
			OrderType:       o.orderType,
			TIF:             o.tif,
			HandInstruction: o.hand,
			Side:            o.side,
			LimitPrice:      o.limit,
			Account:         o.account,
		},
		Broker:   *broker,
		Strategy: st.params(),
	}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.CreateOrderAndRoute(req))
}

func runRoute(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("route")
	var st strategyFlags
	st.register(fs)
	seq := fs.Int64("seq", 0, "order sequence number")
	amount := fs.Int64("amount", 0, "amount to route")
	broker := fs.String("broker", "BB", "broker code")
	orderType := fs.String("type", "MKT", "order type")
	tif := fs.String("tif", "DAY", "time in force")
	hand := fs.String("hand", "ANY", "hand instruction")
	ticker := fs.String("ticker", "", "security, checked against the order")
	limit := fs.Float64("limit", 0, "limit price")
	ref := fs.String("ref", "", "route reference id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := emsx.Route{
		Sequence:        *seq,
		Amount:          *amount,
		Broker:          *broker,
		HandInstruction: *hand,
		OrderType:       *orderType,
		Ticker:          *ticker,
		TIF:             *tif,
		LimitPrice:      *limit,
		RouteRefID:      *ref,
		Strategy:        st.params(),
	}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.RouteEx(req))
}

func runModifyRoute(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("modifyroute")
	var st strategyFlags
	st.register(fs)
	seq := fs.Int64("seq", 0, "order sequence number")
	route := fs.Int64("route", 1, "route id")
	amount := fs.Int64("amount", 0, "new route amount")
	orderType := fs.String("type", "", "new order type")
	tif := fs.String("tif", "", "new time in force")
	limit := fs.Float64("limit", 0, "new limit price, -99999 clears it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := emsx.ModifyRoute{
		Sequence:   *seq,
		RouteID:    *route,
		Amount:     *amount,
		OrderType:  *orderType,
		TIF:        *tif,
		LimitPrice: *limit,
		Strategy:   st.params(),
	}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.ModifyRouteEx(req))
}

func runGroupRoute(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("grouproute")
	var st strategyFlags
	st.register(fs)
	var seqs int64List
	fs.Var(&seqs, "seqs", "order sequence numbers")
	percent := fs.Float64("percent", 100, "share of each order's amount to route")
	broker := fs.String("broker", "BB", "broker code")
	orderType := fs.String("type", "MKT", "order type")
	tif := fs.String("tif", "DAY", "time in force")
	hand := fs.String("hand", "ANY", "hand instruction")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := emsx.GroupRoute{
		Sequences:       seqs,
		AmountPercent:   *percent,
		Broker:          *broker,
		HandInstruction: *hand,
		OrderType:       *orderType,
		TIF:             *tif,
		Strategy:        st.params(),
	}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.GroupRouteEx(req))
}

func runCreateBasket(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("createbasket")
	name := fs.String("name", "", "basket name")
	var seqs int64List
	fs.Var(&seqs, "seqs", "order sequence numbers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := emsx.CreateBasket{Name: *name, Sequences: seqs}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.CreateBasket(req))
}

func runStrategies(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("strategies")
	assetClass := fs.String("asset", "EQTY", "asset class: EQTY, OPT, FUT or MULTILEG_OPT")
	broker := fs.String("broker", "BB", "broker code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := emsx.BrokerStrategies{AssetClass: *assetClass, Broker: *broker}
	return a.runAction(ctx, a.cfg.Session.Service, workflow.BrokerStrategies(req))
}
