package simulator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"emsxbridge.com/internal/emsx"
)

// Book errors carry the codes reported in ErrorInfo.
type bookError struct {
	code int64
	msg  string
}

func (e *bookError) Error() string { return e.msg }

func newBookError(code int64, format string, args ...any) error {
	return &bookError{code: code, msg: fmt.Sprintf(format, args...)}
}

func errorCode(err error) int64 {
	var be *bookError
	if errors.As(err, &be) {
		return be.code
	}
	return 1
}

// record is the field map of one order or route, keyed by field name.
type record map[string]any

func (r record) int(name string) int64 {
	switch v := r[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func (r record) float(name string) float64 {
	v, _ := r[name].(float64)
	return v
}

func (r record) str(name string) string {
	v, _ := r[name].(string)
	return v
}

type simRoute struct {
	id     int64
	fields record
}

type simOrder struct {
	seq    int64
	fields record
	routes []*simRoute
}

func (o *simOrder) route(id int64) *simRoute {
	for _, r := range o.routes {
		if r.id == id {
			return r
		}
	}
	return nil
}

// idle is the part of the order not yet routed.
func (o *simOrder) idle() int64 {
	working := int64(0)
	for _, r := range o.routes {
		working += r.fields.int("EMSX_AMOUNT")
	}
	return o.fields.int("EMSX_AMOUNT") - working
}

type simFill struct {
	fill emsx.Fill
	at   time.Time
}

// change is one order or route state change to publish to subscribers.
type change struct {
	kind   emsx.TopicKind
	status emsx.EventStatus
	fields record
}

// book is the simulated order blotter. It is not safe for concurrent use;
// the Simulator serialises access.
type book struct {
	now     func() time.Time
	orders  map[int64]*simOrder
	nextSeq int64
	nextFID int64
	fills   []simFill
}

func newBook(now func() time.Time) *book {
	return &book{now: now, orders: make(map[int64]*simOrder), nextSeq: 1000, nextFID: 1}
}

func (b *book) order(seq int64) (*simOrder, error) {
	o, ok := b.orders[seq]
	if !ok {
		return nil, newBookError(2, "Order %d not found", seq)
	}
	return o, nil
}

// sorted returns the orders by sequence.
func (b *book) sorted() []*simOrder {
	out := make([]*simOrder, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func dateTime(t time.Time) (date, clock int64) {
	date = int64(t.Year()*10000 + int(t.Month())*100 + t.Day())
	clock = int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	return date, clock
}

// referencePrice is a stable per-ticker price used for market fills.
func referencePrice(ticker string) float64 {
	sum := 0
	for _, c := range ticker {
		sum += int(c)
	}
	return float64(50+sum%100) + 0.25
}

type orderSpec struct {
	ticker     string
	amount     int64
	orderType  string
	tif        string
	handInstr  string
	side       string
	limitPrice float64
	stopPrice  float64
	account    string
	basket     string
	notes      string
}

func (b *book) createOrder(spec orderSpec) (*simOrder, []change) {
	b.nextSeq++
	date, clock := dateTime(b.now())
	o := &simOrder{seq: b.nextSeq, fields: record{
		"EMSX_SEQUENCE":         b.nextSeq,
		"EMSX_TICKER":           spec.ticker,
		"EMSX_AMOUNT":           spec.amount,
		"EMSX_ORDER_TYPE":       spec.orderType,
		"EMSX_TIF":              spec.tif,
		"EMSX_HAND_INSTRUCTION": spec.handInstr,
		"EMSX_SIDE":             spec.side,
		"EMSX_STATUS":           "NEW",
		"EMSX_FILLED":           int64(0),
		"EMSX_WORKING":          int64(0),
		"EMSX_IDLE_AMOUNT":      spec.amount,
		"EMSX_AVG_PRICE":        0.0,
		"EMSX_DATE":             date,
		"EMSX_TIME_STAMP":       clock,
	}}
	optional := map[string]any{
		"EMSX_LIMIT_PRICE": spec.limitPrice,
		"EMSX_STOP_PRICE":  spec.stopPrice,
		"EMSX_ACCOUNT":     spec.account,
		"EMSX_BASKET_NAME": spec.basket,
		"EMSX_NOTES":       spec.notes,
	}
	for k, v := range optional {
		if v != "" && v != 0.0 {
			o.fields[k] = v
		}
	}
	b.orders[o.seq] = o
	return o, []change{{kind: emsx.OrderTopic, status: emsx.StatusNew, fields: o.fields}}
}

type routeSpec struct {
	amount     int64
	broker     string
	orderType  string
	tif        string
	handInstr  string
	limitPrice float64
	refID      string
	strategy   string
}

func (b *book) routeOrder(o *simOrder, spec routeSpec) (*simRoute, []change, error) {
	if spec.amount <= 0 {
		return nil, nil, newBookError(3, "Invalid route amount %d", spec.amount)
	}
	if idle := o.idle(); spec.amount > idle {
		return nil, nil, newBookError(4, "Route amount %d exceeds idle amount %d", spec.amount, idle)
	}
	if spec.orderType == "" {
		spec.orderType = o.fields.str("EMSX_ORDER_TYPE")
	}
	if spec.tif == "" {
		spec.tif = o.fields.str("EMSX_TIF")
	}
	if spec.handInstr == "" {
		spec.handInstr = o.fields.str("EMSX_HAND_INSTRUCTION")
	}

	date, clock := dateTime(b.now())
	r := &simRoute{id: int64(len(o.routes) + 1), fields: record{
		"EMSX_SEQUENCE":          o.seq,
		"EMSX_ROUTE_ID":          int64(len(o.routes) + 1),
		"EMSX_AMOUNT":            spec.amount,
		"EMSX_BROKER":            spec.broker,
		"EMSX_ORDER_TYPE":        spec.orderType,
		"EMSX_TIF":               spec.tif,
		"EMSX_HAND_INSTRUCTION":  spec.handInstr,
		"EMSX_STATUS":            "WORKING",
		"EMSX_FILLED":            int64(0),
		"EMSX_WORKING":           spec.amount,
		"EMSX_AVG_PRICE":         0.0,
		"EMSX_ROUTE_CREATE_DATE": date,
		"EMSX_ROUTE_CREATE_TIME": clock,
		"EMSX_TIME_STAMP":        clock,
		"EMSX_IS_MANUAL_ROUTE":   int64(0),
	}}
	if spec.limitPrice != 0 {
		r.fields["EMSX_LIMIT_PRICE"] = spec.limitPrice
	}
	if spec.refID != "" {
		r.fields["EMSX_ROUTE_REF_ID"] = spec.refID
	}
	if spec.strategy != "" {
		r.fields["EMSX_STRATEGY_TYPE"] = spec.strategy
	}
	if acct := o.fields.str("EMSX_ACCOUNT"); acct != "" {
		r.fields["EMSX_ACCOUNT"] = acct
	}
	o.routes = append(o.routes, r)
	o.fields["EMSX_BROKER"] = spec.broker

	changes := []change{{kind: emsx.RouteTopic, status: emsx.StatusNew, fields: r.fields}}
	if spec.orderType == "MKT" {
		changes = append(changes, b.fillRoute(o, r)...)
	} else {
		b.refreshOrder(o)
	}
	changes = append(changes, change{kind: emsx.OrderTopic, status: emsx.StatusUpdate, fields: o.fields})
	return r, changes, nil
}

// fillRoute executes the working part of a route at the reference price.
func (b *book) fillRoute(o *simOrder, r *simRoute) []change {
	shares := r.fields.int("EMSX_WORKING")
	if shares <= 0 {
		return nil
	}
	price := referencePrice(o.fields.str("EMSX_TICKER"))
	now := b.now()
	date, clock := dateTime(now)

	filled := r.fields.int("EMSX_FILLED")
	avg := r.fields.float("EMSX_AVG_PRICE")
	total := filled + shares
	avg = (avg*float64(filled) + price*float64(shares)) / float64(total)

	r.fields["EMSX_FILLED"] = total
	r.fields["EMSX_WORKING"] = int64(0)
	r.fields["EMSX_AVG_PRICE"] = avg
	r.fields["EMSX_LAST_PRICE"] = price
	r.fields["EMSX_LAST_SHARES"] = shares
	r.fields["EMSX_LAST_FILL_DATE"] = date
	r.fields["EMSX_LAST_FILL_TIME"] = clock
	r.fields["EMSX_DAY_FILL"] = total
	r.fields["EMSX_STATUS"] = "FILLED"
	r.fields["EMSX_TIME_STAMP"] = clock

	b.fills = append(b.fills, simFill{at: now, fill: emsx.Fill{
		OrderID:        o.seq,
		FillID:         b.nextFID,
		DateTimeOfFill: now.Format(emsx.FillTimeLayout),
		FillShares:     float64(shares),
		FillPrice:      price,
		RouteID:        r.id,
		Ticker:         o.fields.str("EMSX_TICKER"),
		Side:           o.fields.str("EMSX_SIDE"),
		Broker:         r.fields.str("EMSX_BROKER"),
		Account:        o.fields.str("EMSX_ACCOUNT"),
		Currency:       "USD",
	}})
	b.nextFID++

	b.refreshOrder(o)
	return []change{{kind: emsx.RouteTopic, status: emsx.StatusUpdate, fields: r.fields}}
}

// refreshOrder recomputes the order totals from its routes.
func (b *book) refreshOrder(o *simOrder) {
	var filled, working int64
	var notional float64
	for _, r := range o.routes {
		f := r.fields.int("EMSX_FILLED")
		filled += f
		working += r.fields.int("EMSX_WORKING")
		notional += r.fields.float("EMSX_AVG_PRICE") * float64(f)
	}
	o.fields["EMSX_FILLED"] = filled
	o.fields["EMSX_WORKING"] = working
	o.fields["EMSX_IDLE_AMOUNT"] = o.idle()
	if filled > 0 {
		o.fields["EMSX_AVG_PRICE"] = notional / float64(filled)
	}
	_, clock := dateTime(b.now())
	o.fields["EMSX_TIME_STAMP"] = clock

	switch {
	case filled == o.fields.int("EMSX_AMOUNT"):
		o.fields["EMSX_STATUS"] = "FILLED"
	case filled > 0:
		o.fields["EMSX_STATUS"] = "PARTFILLED"
	case working > 0:
		o.fields["EMSX_STATUS"] = "WORKING"
	default:
		o.fields["EMSX_STATUS"] = "NEW"
	}
}

type modifySpec struct {
	amount     int64
	orderType  string
	tif        string
	limitPrice float64
	stopPrice  float64
	notes      string
	strategy   string
}

func (b *book) modifyRoute(o *simOrder, routeID int64, spec modifySpec) ([]change, error) {
	r := o.route(routeID)
	if r == nil {
		return nil, newBookError(5, "Route %d not found on order %d", routeID, o.seq)
	}
	if r.fields.str("EMSX_STATUS") == "FILLED" {
		return nil, newBookError(6, "Route %d on order %d is filled", routeID, o.seq)
	}
	filled := r.fields.int("EMSX_FILLED")
	extra := spec.amount - r.fields.int("EMSX_AMOUNT")
	if spec.amount < filled || extra > o.idle() {
		return nil, newBookError(4, "Invalid route amount %d", spec.amount)
	}

	r.fields["EMSX_AMOUNT"] = spec.amount
	r.fields["EMSX_WORKING"] = spec.amount - filled
	if spec.orderType != "" {
		r.fields["EMSX_ORDER_TYPE"] = spec.orderType
	}
	if spec.tif != "" {
		r.fields["EMSX_TIF"] = spec.tif
	}
	switch {
	case spec.limitPrice == -99999:
		delete(r.fields, "EMSX_LIMIT_PRICE")
	case spec.limitPrice != 0:
		r.fields["EMSX_LIMIT_PRICE"] = spec.limitPrice
	}
	if spec.stopPrice != 0 {
		r.fields["EMSX_STOP_PRICE"] = spec.stopPrice
	}
	if spec.notes != "" {
		r.fields["EMSX_NOTES"] = spec.notes
	}
	if spec.strategy != "" {
		r.fields["EMSX_STRATEGY_TYPE"] = spec.strategy
	}

	changes := []change{{kind: emsx.RouteTopic, status: emsx.StatusUpdate, fields: r.fields}}
	if r.fields.str("EMSX_ORDER_TYPE") == "MKT" {
		changes = append(changes, b.fillRoute(o, r)...)
	} else {
		b.refreshOrder(o)
	}
	changes = append(changes, change{kind: emsx.OrderTopic, status: emsx.StatusUpdate, fields: o.fields})
	return changes, nil
}

func (b *book) assignTrader(seq, trader int64) ([]change, bool) {
	o, ok := b.orders[seq]
	if !ok {
		return nil, false
	}
	o.fields["EMSX_ASSIGNED_TRADER"] = fmt.Sprintf("%d", trader)
	return []change{{kind: emsx.OrderTopic, status: emsx.StatusUpdate, fields: o.fields}}, true
}

func (b *book) setBasket(seq int64, name string) ([]change, error) {
	o, err := b.order(seq)
	if err != nil {
		return nil, err
	}
	o.fields["EMSX_BASKET_NAME"] = name
	return []change{{kind: emsx.OrderTopic, status: emsx.StatusUpdate, fields: o.fields}}, nil
}

type fillQuery struct {
	from, to time.Time
	baskets  []string
	routes   map[int64][]int64
}

func (b *book) queryFills(q fillQuery) []emsx.Fill {
	var out []emsx.Fill
	for _, f := range b.fills {
		if f.at.Before(q.from) || f.at.After(q.to) {
			continue
		}
		if len(q.baskets) > 0 {
			o := b.orders[f.fill.OrderID]
			if o == nil || !contains(q.baskets, o.fields.str("EMSX_BASKET_NAME")) {
				continue
			}
		}
		if q.routes != nil {
			ids, ok := q.routes[f.fill.OrderID]
			if !ok {
				continue
			}
			if len(ids) > 0 && !containsInt(ids, f.fill.RouteID) {
				continue
			}
		}
		out = append(out, f.fill)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int64, n int64) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

// seed fills the book with a few orders so a fresh subscription has an
// initial paint.
func (b *book) seed() {
	o, _ := b.createOrder(orderSpec{ticker: "IBM US Equity", amount: 1000, orderType: "MKT", tif: "DAY", handInstr: "ANY", side: "BUY", account: "TESTACC"})
	b.routeOrder(o, routeSpec{amount: 400, broker: "BB"})

	o, _ = b.createOrder(orderSpec{ticker: "VOD LN Equity", amount: 5000, orderType: "LMT", tif: "DAY", handInstr: "ANY", side: "SELL", limitPrice: 210.5})
	b.routeOrder(o, routeSpec{amount: 2500, broker: "BMTB", limitPrice: 210.5})

	b.createOrder(orderSpec{ticker: "ESZ6 Index", amount: 10, orderType: "MKT", tif: "DAY", handInstr: "DMA", side: "BUY"})
}
