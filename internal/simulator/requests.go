package simulator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/gateway"
	"emsxbridge.com/internal/session"
)

// result is the answer to one request.
type result struct {
	partials []*session.Element
	final    *session.Element
	changes  []change
}

func requestFailure(cid int64, description string) gateway.Envelope {
	e := session.NewElement(session.RequestFailure)
	r := e.Sub("reason")
	r.Set("source", "simulator")
	r.Set("errorCode", int64(-1))
	r.Set("category", "BAD_ARGS")
	r.Set("description", description)
	return envelope(session.EventRequestStatus, message(session.RequestFailure, cid, e))
}

func isHistory(service string) bool {
	return service == emsx.ServiceHistory || service == emsx.ServiceHistoryUAT
}

func (c *conn) request(cmd gateway.Command) error {
	c.mu.Lock()
	opened := c.services[cmd.Service]
	c.mu.Unlock()
	if !opened {
		return c.emit(requestFailure(cmd.CorrelationID, "Service not opened: "+cmd.Service))
	}
	known := false
	for _, op := range emsx.Operations[cmd.Service] {
		known = known || op == cmd.Operation
	}
	if !known {
		return c.emit(requestFailure(cmd.CorrelationID, fmt.Sprintf("Operation %s not supported by %s", cmd.Operation, cmd.Service)))
	}

	req := session.NewElement(cmd.Operation)
	if len(cmd.Payload) > 0 {
		if err := req.UnmarshalJSON(cmd.Payload); err != nil {
			return c.emit(requestFailure(cmd.CorrelationID, "Malformed request: "+err.Error()))
		}
	}

	// The answer and the changes it caused are queued under the book lock,
	// answer first.
	s := c.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.execute(cmd.Operation, req)
	if err != nil {
		s.log.Debug("Simulator: request rejected", zap.String("operation", cmd.Operation), zap.Error(err))
		return c.emit(envelope(session.EventResponse,
			message(emsx.MsgErrorInfo, cmd.CorrelationID, errorInfo(err, isHistory(cmd.Service)))))
	}

	var envs []gateway.Envelope
	for _, p := range res.partials {
		envs = append(envs, envelope(session.EventPartialResponse, message(p.Name(), cmd.CorrelationID, p)))
	}
	envs = append(envs, envelope(session.EventResponse, message(res.final.Name(), cmd.CorrelationID, res.final)))
	if err := c.emit(envs...); err != nil {
		return err
	}
	s.deliver(s.publish(res.changes))
	return nil
}

func errorInfo(err error, history bool) *session.Element {
	e := session.NewElement(emsx.MsgErrorInfo)
	if history {
		e.Set("ErrorCode", errorCode(err))
		e.Set("ErrorMsg", err.Error())
	} else {
		e.Set("ERROR_CODE", errorCode(err))
		e.Set("ERROR_MESSAGE", err.Error())
	}
	return e
}

func str(e *session.Element, name string) string {
	v, _ := e.GetElementAsString(name)
	return v
}

func num(e *session.Element, name string) int64 {
	v, _ := e.GetElementAsInt64(name)
	return v
}

func flt(e *session.Element, name string) float64 {
	v, _ := e.GetElementAsFloat64(name)
	return v
}

// ints reads a scalar or an array of integers.
func ints(e *session.Element, name string) []int64 {
	list, err := e.GetElement(name)
	if err != nil {
		return nil
	}
	out := make([]int64, 0, list.NumValues())
	for i := 0; i < list.NumValues(); i++ {
		if v, err := list.ValueAsInt64(i); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func strategyName(e *session.Element) string {
	strat, err := e.GetElement("EMSX_STRATEGY_PARAMS")
	if err != nil {
		return ""
	}
	return str(strat, "EMSX_STRATEGY_NAME")
}

func newResponse(op string) *session.Element {
	return session.NewElement(emsx.ResponseNames[op])
}

// execute runs one operation against the book. Callers hold s.mu.
func (s *Simulator) execute(op string, req *session.Element) (result, error) {
	switch op {
	case emsx.OpCreateOrder:
		return s.createOrder(req)
	case emsx.OpCreateOrderAndRouteEx:
		return s.createOrderAndRoute(req)
	case emsx.OpRouteEx:
		return s.routeEx(req)
	case emsx.OpModifyRouteEx:
		return s.modifyRouteEx(req)
	case emsx.OpGroupRouteEx:
		return s.groupRouteEx(req)
	case emsx.OpCreateBasket:
		return s.createBasket(req)
	case emsx.OpAssignTrader:
		return s.assignTrader(req)
	case emsx.OpGetBrokerStrategiesWithAssetClass:
		return s.brokerStrategies(req)
	case emsx.OpGetBrokerSpecForUuid:
		return s.brokerSpec(req)
	case emsx.OpGetFills:
		return s.getFills(req)
	}
	return result{}, newBookError(99, "Unsupported operation %s", op)
}

func orderSpecFrom(req *session.Element) (orderSpec, error) {
	spec := orderSpec{
		ticker:     str(req, "EMSX_TICKER"),
		amount:     num(req, "EMSX_AMOUNT"),
		orderType:  str(req, "EMSX_ORDER_TYPE"),
		tif:        str(req, "EMSX_TIF"),
		handInstr:  str(req, "EMSX_HAND_INSTRUCTION"),
		side:       str(req, "EMSX_SIDE"),
		limitPrice: flt(req, "EMSX_LIMIT_PRICE"),
		stopPrice:  flt(req, "EMSX_STOP_PRICE"),
		account:    str(req, "EMSX_ACCOUNT"),
		basket:     str(req, "EMSX_BASKET_NAME"),
		notes:      str(req, "EMSX_NOTES"),
	}
	switch {
	case spec.ticker == "":
		return spec, newBookError(11, "Invalid ticker")
	case spec.amount <= 0:
		return spec, newBookError(12, "Invalid amount")
	case spec.side == "":
		return spec, newBookError(13, "Invalid side")
	case spec.orderType == "":
		return spec, newBookError(14, "Invalid order type")
	case spec.orderType == "LMT" && spec.limitPrice <= 0:
		return spec, newBookError(15, "Limit price required for LMT orders")
	}
	return spec, nil
}

func checkBroker(code string) error {
	if _, ok := findBroker(code, ""); !ok {
		return newBookError(21, "Invalid broker %q", code)
	}
	return nil
}

func (s *Simulator) createOrder(req *session.Element) (result, error) {
	spec, err := orderSpecFrom(req)
	if err != nil {
		return result{}, err
	}
	o, changes := s.book.createOrder(spec)

	resp := newResponse(emsx.OpCreateOrder)
	resp.Set("EMSX_SEQUENCE", o.seq)
	resp.Set("MESSAGE", "Order created")
	return result{final: resp, changes: changes}, nil
}

func (s *Simulator) createOrderAndRoute(req *session.Element) (result, error) {
	spec, err := orderSpecFrom(req)
	if err != nil {
		return result{}, err
	}
	broker := str(req, "EMSX_BROKER")
	if err := checkBroker(broker); err != nil {
		return result{}, err
	}

	o, changes := s.book.createOrder(spec)
	r, more, err := s.book.routeOrder(o, routeSpec{
		amount:     spec.amount,
		broker:     broker,
		limitPrice: spec.limitPrice,
		refID:      str(req, "EMSX_ROUTE_REF_ID"),
		strategy:   strategyName(req),
	})
	if err != nil {
		return result{}, err
	}

	resp := newResponse(emsx.OpCreateOrderAndRouteEx)
	resp.Set("EMSX_SEQUENCE", o.seq)
	resp.Set("EMSX_ROUTE_ID", r.id)
	resp.Set("MESSAGE", "Order created and routed")
	return result{final: resp, changes: append(changes, more...)}, nil
}

func (s *Simulator) routeEx(req *session.Element) (result, error) {
	o, err := s.book.order(num(req, "EMSX_SEQUENCE"))
	if err != nil {
		return result{}, err
	}
	broker := str(req, "EMSX_BROKER")
	if err := checkBroker(broker); err != nil {
		return result{}, err
	}
	r, changes, err := s.book.routeOrder(o, routeSpec{
		amount:     num(req, "EMSX_AMOUNT"),
		broker:     broker,
		orderType:  str(req, "EMSX_ORDER_TYPE"),
		tif:        str(req, "EMSX_TIF"),
		handInstr:  str(req, "EMSX_HAND_INSTRUCTION"),
		limitPrice: flt(req, "EMSX_LIMIT_PRICE"),
		refID:      str(req, "EMSX_ROUTE_REF_ID"),
		strategy:   strategyName(req),
	})
	if err != nil {
		return result{}, err
	}

	resp := newResponse(emsx.OpRouteEx)
	resp.Set("EMSX_SEQUENCE", o.seq)
	resp.Set("EMSX_ROUTE_ID", r.id)
	resp.Set("MESSAGE", "Order Routed")
	return result{final: resp, changes: changes}, nil
}

func (s *Simulator) modifyRouteEx(req *session.Element) (result, error) {
	o, err := s.book.order(num(req, "EMSX_SEQUENCE"))
	if err != nil {
		return result{}, err
	}
	routeID := num(req, "EMSX_ROUTE_ID")
	changes, err := s.book.modifyRoute(o, routeID, modifySpec{
		amount:     num(req, "EMSX_AMOUNT"),
		orderType:  str(req, "EMSX_ORDER_TYPE"),
		tif:        str(req, "EMSX_TIF"),
		limitPrice: flt(req, "EMSX_LIMIT_PRICE"),
		stopPrice:  flt(req, "EMSX_STOP_PRICE"),
		notes:      str(req, "EMSX_NOTES"),
		strategy:   strategyName(req),
	})
	if err != nil {
		return result{}, err
	}

	resp := newResponse(emsx.OpModifyRouteEx)
	resp.Set("EMSX_SEQUENCE", o.seq)
	resp.Set("EMSX_ROUTE_ID", routeID)
	resp.Set("MESSAGE", "Route modified")
	return result{final: resp, changes: changes}, nil
}

func (s *Simulator) groupRouteEx(req *session.Element) (result, error) {
	seqs := ints(req, "EMSX_SEQUENCE")
	percent := flt(req, "EMSX_AMOUNT_PERCENT")
	broker := str(req, "EMSX_BROKER")
	if len(seqs) == 0 {
		return result{}, newBookError(31, "No orders to route")
	}
	if percent <= 0 || percent > 100 {
		return result{}, newBookError(32, "Invalid amount percent %g", percent)
	}
	if err := checkBroker(broker); err != nil {
		return result{}, err
	}

	refs := make(map[int64]string)
	if pairs, err := req.GetElement("EMSX_ROUTE_REF_ID_PAIRS"); err == nil {
		for _, p := range pairs.Values() {
			refs[num(p, "EMSX_SEQUENCE")] = str(p, "EMSX_ROUTE_REF_ID")
		}
	}

	resp := newResponse(emsx.OpGroupRouteEx)
	var changes []change
	routed := 0
	for _, seq := range seqs {
		var r *simRoute
		o, err := s.book.order(seq)
		if err == nil {
			amount := int64(float64(o.idle()) * percent / 100)
			var more []change
			r, more, err = s.book.routeOrder(o, routeSpec{
				amount:    amount,
				broker:    broker,
				orderType: str(req, "EMSX_ORDER_TYPE"),
				tif:       str(req, "EMSX_TIF"),
				handInstr: str(req, "EMSX_HAND_INSTRUCTION"),
				refID:     refs[seq],
				strategy:  strategyName(req),
			})
			changes = append(changes, more...)
		}
		if err != nil {
			failed := resp.AppendElement("EMSX_FAILED_ROUTES")
			failed.Set("EMSX_SEQUENCE", seq)
			failed.Set("ERROR_CODE", errorCode(err))
			failed.Set("ERROR_MESSAGE", err.Error())
			continue
		}
		ok := resp.AppendElement("EMSX_SUCCESS_ROUTES")
		ok.Set("EMSX_SEQUENCE", seq)
		ok.Set("EMSX_ROUTE_ID", r.id)
		routed++
	}
	resp.Set("MESSAGE", fmt.Sprintf("%d of %d orders routed", routed, len(seqs)))
	return result{final: resp, changes: changes}, nil
}

func (s *Simulator) createBasket(req *session.Element) (result, error) {
	name := str(req, "EMSX_BASKET_NAME")
	seqs := ints(req, "EMSX_SEQUENCE")
	if name == "" || len(seqs) == 0 {
		return result{}, newBookError(41, "Basket name and orders are required")
	}
	for _, seq := range seqs {
		if _, err := s.book.order(seq); err != nil {
			return result{}, err
		}
	}
	var changes []change
	for _, seq := range seqs {
		more, _ := s.book.setBasket(seq, name)
		changes = append(changes, more...)
	}

	resp := newResponse(emsx.OpCreateBasket)
	resp.Set("EMSX_SEQUENCE", seqs[0])
	resp.Set("MESSAGE", fmt.Sprintf("Basket %s created with %d orders", name, len(seqs)))
	return result{final: resp, changes: changes}, nil
}

func (s *Simulator) assignTrader(req *session.Element) (result, error) {
	seqs := ints(req, "EMSX_SEQUENCE")
	trader := num(req, "EMSX_ASSIGNEE_TRADER_UUID")
	if trader <= 0 {
		return result{}, newBookError(51, "Invalid trader uuid")
	}

	resp := newResponse(emsx.OpAssignTrader)
	var changes []change
	var ok, failed []int64
	for _, seq := range seqs {
		more, assigned := s.book.assignTrader(seq, trader)
		if assigned {
			ok = append(ok, seq)
			changes = append(changes, more...)
		} else {
			failed = append(failed, seq)
		}
	}
	resp.Set("EMSX_ALL_SUCCESS", len(failed) == 0)
	for _, seq := range ok {
		resp.AppendElement("EMSX_ASSIGN_TRADER_SUCCESSFUL_ORDERS").Set("EMSX_SEQUENCE", seq)
	}
	for _, seq := range failed {
		resp.AppendElement("EMSX_ASSIGN_TRADER_FAILED_ORDERS").Set("EMSX_SEQUENCE", seq)
	}
	return result{final: resp, changes: changes}, nil
}

func (s *Simulator) brokerStrategies(req *session.Element) (result, error) {
	b, ok := findBroker(str(req, "EMSX_BROKER"), str(req, "EMSX_ASSET_CLASS"))
	if !ok {
		return result{}, newBookError(61, "Unknown broker %s for asset class %s", str(req, "EMSX_BROKER"), str(req, "EMSX_ASSET_CLASS"))
	}
	resp := newResponse(emsx.OpGetBrokerStrategiesWithAssetClass)
	list := resp.Sub("EMSX_STRATEGIES")
	for _, st := range b.Strategies {
		list.AppendValue(st.Name)
	}
	return result{final: resp}, nil
}

func (s *Simulator) brokerSpec(req *session.Element) (result, error) {
	if num(req, "uuid") <= 0 {
		return result{}, newBookError(71, "Invalid uuid")
	}
	resp := newResponse(emsx.OpGetBrokerSpecForUuid)
	writeBrokerSpec(resp)
	return result{final: resp}, nil
}

func (s *Simulator) getFills(req *session.Element) (result, error) {
	from, err := time.Parse(emsx.FillTimeLayout, str(req, "FromDateTime"))
	if err != nil {
		return result{}, newBookError(81, "Invalid FromDateTime")
	}
	to, err := time.Parse(emsx.FillTimeLayout, str(req, "ToDateTime"))
	if err != nil {
		return result{}, newBookError(82, "Invalid ToDateTime")
	}
	if !req.HasElement("Scope") {
		return result{}, newBookError(83, "Scope is required")
	}

	q := fillQuery{from: from, to: to}
	if filter, err := req.GetElement("FilterBy"); err == nil {
		choice, err := filter.Choice()
		if err != nil {
			return result{}, newBookError(84, "Invalid FilterBy")
		}
		switch choice.Name() {
		case "Basket":
			for i := 0; i < choice.NumValues(); i++ {
				v, _ := choice.ValueAsString(i)
				q.baskets = append(q.baskets, v)
			}
		case "OrdersAndRoutes":
			q.routes = make(map[int64][]int64)
			for _, item := range choice.Values() {
				id := num(item, "OrderId")
				if item.HasElement("RouteId") {
					q.routes[id] = append(q.routes[id], num(item, "RouteId"))
				} else if _, ok := q.routes[id]; !ok {
					q.routes[id] = nil
				}
			}
		}
	}

	fills := s.book.queryFills(q)
	chunks := [][]emsx.Fill{}
	for len(fills) > s.opts.FillsPerMessage {
		chunks = append(chunks, fills[:s.opts.FillsPerMessage])
		fills = fills[s.opts.FillsPerMessage:]
	}
	chunks = append(chunks, fills)

	var res result
	for i, chunk := range chunks {
		e := newResponse(emsx.OpGetFills)
		writeFills(e, chunk)
		if i == len(chunks)-1 {
			res.final = e
		} else {
			res.partials = append(res.partials, e)
		}
	}
	return res, nil
}

func writeFills(e *session.Element, fills []emsx.Fill) {
	e.Sub("Fills")
	for _, f := range fills {
		item := e.AppendElement("Fills")
		item.Set("OrderId", f.OrderID)
		item.Set("FillId", f.FillID)
		item.Set("DateTimeOfFill", f.DateTimeOfFill)
		item.Set("FillShares", f.FillShares)
		item.Set("FillPrice", f.FillPrice)
		item.Set("RouteId", f.RouteID)
		setString(item, "Ticker", f.Ticker)
		setString(item, "Side", f.Side)
		setString(item, "Broker", f.Broker)
		setString(item, "Exchange", f.Exchange)
		setString(item, "Currency", f.Currency)
		setString(item, "Account", f.Account)
	}
}

func setString(e *session.Element, name, v string) {
	if v != "" {
		e.Set(name, v)
	}
}
