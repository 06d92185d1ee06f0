package emsx

import (
	"errors"
	"fmt"
	"time"

	"emsxbridge.com/internal/session"
)

var ErrInvalidRequest = errors.New("emsx: invalid request")

// FillTimeLayout is the timestamp format GetFills expects.
const FillTimeLayout = "2006-01-02T15:04:05.000-07:00"

// Request is a typed EMSX request that knows how to write itself into a
// session request.
type Request interface {
	Operation() string
	fill(e *session.Element) error
}

// Build creates a session request on svc and fills it from r.
func Build(svc *session.Service, r Request) (*session.Request, error) {
	req, err := svc.CreateRequest(r.Operation())
	if err != nil {
		return nil, err
	}
	if err := r.fill(req.Elements()); err != nil {
		return nil, err
	}
	return req, nil
}

func setString(e *session.Element, name, v string) {
	if v != "" {
		e.Set(name, v)
	}
}

func setFloat(e *session.Element, name string, v float64) {
	if v != 0 {
		e.Set(name, v)
	}
}

func invalid(op, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRequest, op, reason)
}

// StrategyField is one positional broker strategy parameter. Ignored
// fields are sent empty with indicator 1.
type StrategyField struct {
	Value  string
	Ignore bool
}

// StrategyParams selects a broker strategy. Fields must follow the order
// given by the broker specification.
type StrategyParams struct {
	Name   string
	Fields []StrategyField
}

func (s *StrategyParams) fill(e *session.Element) {
	if s == nil || s.Name == "" {
		return
	}
	strat := e.Sub("EMSX_STRATEGY_PARAMS")
	strat.Set("EMSX_STRATEGY_NAME", s.Name)
	for _, f := range s.Fields {
		data := strat.AppendElement("EMSX_STRATEGY_FIELDS")
		indicator := strat.AppendElement("EMSX_STRATEGY_FIELD_INDICATORS")
		if f.Ignore {
			data.Set("EMSX_FIELD_DATA", "")
			indicator.Set("EMSX_FIELD_INDICATOR", 1)
		} else {
			data.Set("EMSX_FIELD_DATA", f.Value)
			indicator.Set("EMSX_FIELD_INDICATOR", 0)
		}
	}
}

// CreateOrder creates an order without routing it.
type CreateOrder struct {
	Ticker          string
	Amount          int64
	OrderType       string
	TIF             string
	HandInstruction string
	Side            string
	LimitPrice      float64
	StopPrice       float64
	Account         string
	BasketName      string
	Notes           string
	OrderRefID      string
}

func (CreateOrder) Operation() string { return OpCreateOrder }

func (r CreateOrder) validate(op string) error {
	switch {
	case r.Ticker == "":
		return invalid(op, "EMSX_TICKER is required")
	case r.Amount <= 0:
		return invalid(op, "EMSX_AMOUNT must be positive")
	case r.OrderType == "":
		return invalid(op, "EMSX_ORDER_TYPE is required")
	case r.Side == "":
		return invalid(op, "EMSX_SIDE is required")
	}
	return nil
}

func (r CreateOrder) fill(e *session.Element) error {
	if err := r.validate(OpCreateOrder); err != nil {
		return err
	}
	r.write(e)
	return nil
}

func (r CreateOrder) write(e *session.Element) {
	e.Set("EMSX_TICKER", r.Ticker)
	e.Set("EMSX_AMOUNT", r.Amount)
	e.Set("EMSX_ORDER_TYPE", r.OrderType)
	setString(e, "EMSX_TIF", r.TIF)
	setString(e, "EMSX_HAND_INSTRUCTION", r.HandInstruction)
	e.Set("EMSX_SIDE", r.Side)
	setFloat(e, "EMSX_LIMIT_PRICE", r.LimitPrice)
	setFloat(e, "EMSX_STOP_PRICE", r.StopPrice)
	setString(e, "EMSX_ACCOUNT", r.Account)
	setString(e, "EMSX_BASKET_NAME", r.BasketName)
	setString(e, "EMSX_NOTES", r.Notes)
	setString(e, "EMSX_ORDER_REF_ID", r.OrderRefID)
}

// CreateOrderAndRoute creates an order and routes all of it to Broker.
type CreateOrderAndRoute struct {
	CreateOrder
	Broker     string
	RouteRefID string
	Strategy   *StrategyParams
}

func (CreateOrderAndRoute) Operation() string { return OpCreateOrderAndRouteEx }

func (r CreateOrderAndRoute) fill(e *session.Element) error {
	if err := r.CreateOrder.validate(OpCreateOrderAndRouteEx); err != nil {
		return err
	}
	if r.Broker == "" {
		return invalid(OpCreateOrderAndRouteEx, "EMSX_BROKER is required")
	}
	r.CreateOrder.write(e)
	e.Set("EMSX_BROKER", r.Broker)
	setString(e, "EMSX_ROUTE_REF_ID", r.RouteRefID)
	r.Strategy.fill(e)
	return nil
}

// Route routes part of an existing order.
type Route struct {
	Sequence        int64
	Amount          int64
	Broker          string
	HandInstruction string
	OrderType       string
	Ticker          string
	TIF             string
	LimitPrice      float64
	RouteRefID      string
	Strategy        *StrategyParams
}

func (Route) Operation() string { return OpRouteEx }

func (r Route) fill(e *session.Element) error {
	switch {
	case r.Sequence <= 0:
		return invalid(OpRouteEx, "EMSX_SEQUENCE is required")
	case r.Amount <= 0:
		return invalid(OpRouteEx, "EMSX_AMOUNT must be positive")
	case r.Broker == "":
		return invalid(OpRouteEx, "EMSX_BROKER is required")
	}
	e.Set("EMSX_SEQUENCE", r.Sequence)
	e.Set("EMSX_AMOUNT", r.Amount)
	e.Set("EMSX_BROKER", r.Broker)
	setString(e, "EMSX_HAND_INSTRUCTION", r.HandInstruction)
	setString(e, "EMSX_ORDER_TYPE", r.OrderType)
	setString(e, "EMSX_TICKER", r.Ticker)
	setString(e, "EMSX_TIF", r.TIF)
	setFloat(e, "EMSX_LIMIT_PRICE", r.LimitPrice)
	setString(e, "EMSX_ROUTE_REF_ID", r.RouteRefID)
	r.Strategy.fill(e)
	return nil
}

// ModifyRoute changes an existing route. A LimitPrice of -99999 clears the
// limit when moving away from LMT.
type ModifyRoute struct {
	Sequence   int64
	RouteID    int64
	Amount     int64
	OrderType  string
	TIF        string
	LimitPrice float64
	StopPrice  float64
	Notes      string
	Strategy   *StrategyParams
}

func (ModifyRoute) Operation() string { return OpModifyRouteEx }

func (r ModifyRoute) fill(e *session.Element) error {
	switch {
	case r.Sequence <= 0:
		return invalid(OpModifyRouteEx, "EMSX_SEQUENCE is required")
	case r.RouteID <= 0:
		return invalid(OpModifyRouteEx, "EMSX_ROUTE_ID is required")
	case r.Amount <= 0:
		return invalid(OpModifyRouteEx, "EMSX_AMOUNT must be positive")
	}
	e.Set("EMSX_SEQUENCE", r.Sequence)
	e.Set("EMSX_ROUTE_ID", r.RouteID)
	e.Set("EMSX_AMOUNT", r.Amount)
	setString(e, "EMSX_ORDER_TYPE", r.OrderType)
	setString(e, "EMSX_TIF", r.TIF)
	setFloat(e, "EMSX_LIMIT_PRICE", r.LimitPrice)
	setFloat(e, "EMSX_STOP_PRICE", r.StopPrice)
	setString(e, "EMSX_NOTES", r.Notes)
	r.Strategy.fill(e)
	return nil
}

type RouteRefIDPair struct {
	RouteRefID string
	Sequence   int64
}

// GroupRoute routes several orders at once. AmountPercent is the share of
// each order's amount to route.
type GroupRoute struct {
	Sequences       []int64
	AmountPercent   float64
	Broker          string
	HandInstruction string
	OrderType       string
	Ticker          string
	TIF             string
	RouteRefIDs     []RouteRefIDPair
	Strategy        *StrategyParams
}

func (GroupRoute) Operation() string { return OpGroupRouteEx }

func (r GroupRoute) fill(e *session.Element) error {
	switch {
	case len(r.Sequences) == 0:
		return invalid(OpGroupRouteEx, "at least one EMSX_SEQUENCE is required")
	case r.AmountPercent <= 0 || r.AmountPercent > 100:
		return invalid(OpGroupRouteEx, "EMSX_AMOUNT_PERCENT must be in (0, 100]")
	case r.Broker == "":
		return invalid(OpGroupRouteEx, "EMSX_BROKER is required")
	}
	for _, seq := range r.Sequences {
		e.Append("EMSX_SEQUENCE", seq)
	}
	e.Set("EMSX_AMOUNT_PERCENT", r.AmountPercent)
	e.Set("EMSX_BROKER", r.Broker)
	setString(e, "EMSX_HAND_INSTRUCTION", r.HandInstruction)
	setString(e, "EMSX_ORDER_TYPE", r.OrderType)
	setString(e, "EMSX_TICKER", r.Ticker)
	setString(e, "EMSX_TIF", r.TIF)
	for _, p := range r.RouteRefIDs {
		pair := e.AppendElement("EMSX_ROUTE_REF_ID_PAIRS")
		pair.Set("EMSX_ROUTE_REF_ID", p.RouteRefID)
		pair.Set("EMSX_SEQUENCE", p.Sequence)
	}
	r.Strategy.fill(e)
	return nil
}

// CreateBasket groups existing orders under a basket name.
type CreateBasket struct {
	Name      string
	Sequences []int64
}

func (CreateBasket) Operation() string { return OpCreateBasket }

func (r CreateBasket) fill(e *session.Element) error {
	if r.Name == "" {
		return invalid(OpCreateBasket, "EMSX_BASKET_NAME is required")
	}
	if len(r.Sequences) == 0 {
		return invalid(OpCreateBasket, "at least one EMSX_SEQUENCE is required")
	}
	e.Set("EMSX_BASKET_NAME", r.Name)
	for _, seq := range r.Sequences {
		e.Append("EMSX_SEQUENCE", seq)
	}
	return nil
}

// AssignTrader hands orders to another trader.
type AssignTrader struct {
	Sequences  []int64
	TraderUUID int64
}

func (AssignTrader) Operation() string { return OpAssignTrader }

func (r AssignTrader) fill(e *session.Element) error {
	if len(r.Sequences) == 0 {
		return invalid(OpAssignTrader, "at least one EMSX_SEQUENCE is required")
	}
	if r.TraderUUID <= 0 {
		return invalid(OpAssignTrader, "EMSX_ASSIGNEE_TRADER_UUID is required")
	}
	for _, seq := range r.Sequences {
		e.Append("EMSX_SEQUENCE", seq)
	}
	e.Set("EMSX_ASSIGNEE_TRADER_UUID", r.TraderUUID)
	return nil
}

// BrokerStrategies lists the strategies a broker offers for an asset class
// (EQTY, OPT, FUT or MULTILEG_OPT).
type BrokerStrategies struct {
	AssetClass string
	Broker     string
}

func (BrokerStrategies) Operation() string { return OpGetBrokerStrategiesWithAssetClass }

func (r BrokerStrategies) fill(e *session.Element) error {
	if r.AssetClass == "" || r.Broker == "" {
		return invalid(OpGetBrokerStrategiesWithAssetClass, "EMSX_ASSET_CLASS and EMSX_BROKER are required")
	}
	e.Set("EMSX_ASSET_CLASS", r.AssetClass)
	e.Set("EMSX_BROKER", r.Broker)
	return nil
}

// BrokerSpecRequest asks for the broker specification visible to a user.
type BrokerSpecRequest struct {
	UUID int64
}

func (BrokerSpecRequest) Operation() string { return OpGetBrokerSpecForUuid }

func (r BrokerSpecRequest) fill(e *session.Element) error {
	if r.UUID <= 0 {
		return invalid(OpGetBrokerSpecForUuid, "uuid is required")
	}
	e.Set("uuid", r.UUID)
	return nil
}

// FillScope selects whose fills are returned. Exactly one of the fields
// must be set.
type FillScope struct {
	Team          string
	TradingSystem bool
	UUIDs         []int64
}

type OrderRoute struct {
	OrderID int64
	RouteID int64
}

// FillFilter narrows a GetFills request. At most one field may be set.
type FillFilter struct {
	Baskets         []string
	Multilegs       []string
	OrdersAndRoutes []OrderRoute
}

// GetFills asks the history service for fills between From and To.
type GetFills struct {
	From   time.Time
	To     time.Time
	Scope  FillScope
	Filter *FillFilter
}

func (GetFills) Operation() string { return OpGetFills }

func (r GetFills) fill(e *session.Element) error {
	if r.From.IsZero() || r.To.IsZero() {
		return invalid(OpGetFills, "FromDateTime and ToDateTime are required")
	}
	if r.To.Before(r.From) {
		return invalid(OpGetFills, "ToDateTime is before FromDateTime")
	}
	e.Set("FromDateTime", r.From.Format(FillTimeLayout))
	e.Set("ToDateTime", r.To.Format(FillTimeLayout))

	scope := e.Sub("Scope")
	set := 0
	if r.Scope.Team != "" {
		set++
	}
	if r.Scope.TradingSystem {
		set++
	}
	if len(r.Scope.UUIDs) > 0 {
		set++
	}
	if set != 1 {
		return invalid(OpGetFills, "exactly one of Team, TradingSystem or Uuids must be set in Scope")
	}
	switch {
	case r.Scope.Team != "":
		scope.SetChoice("Team").SetValue(r.Scope.Team)
	case r.Scope.TradingSystem:
		scope.SetChoice("TradingSystem").SetValue(true)
	default:
		uuids := scope.SetChoice("Uuids")
		for _, id := range r.Scope.UUIDs {
			uuids.AppendValue(id)
		}
	}

	if r.Filter == nil {
		return nil
	}
	filter := e.Sub("FilterBy")
	switch {
	case len(r.Filter.Baskets) > 0:
		baskets := filter.SetChoice("Basket")
		for _, b := range r.Filter.Baskets {
			baskets.AppendValue(b)
		}
	case len(r.Filter.Multilegs) > 0:
		legs := filter.SetChoice("Multileg")
		for _, m := range r.Filter.Multilegs {
			legs.AppendValue(m)
		}
	case len(r.Filter.OrdersAndRoutes) > 0:
		filter.SetChoice("OrdersAndRoutes")
		for _, o := range r.Filter.OrdersAndRoutes {
			item := filter.AppendElement("OrdersAndRoutes")
			item.Set("OrderId", o.OrderID)
			if o.RouteID != 0 {
				item.Set("RouteId", o.RouteID)
			}
		}
	}
	return nil
}
