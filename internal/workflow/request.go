package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/printer"
	"emsxbridge.com/internal/session"
)

// ResponseHandler handles one response message addressed to the request.
type ResponseHandler func(msg *session.Message, out *printer.Printer) error

// RequestAction sends one request once the service is open and finishes
// on its final RESPONSE.
type RequestAction struct {
	req    emsx.Request
	handle ResponseHandler

	cid      session.CorrelationID
	reqErr   error
	messages []*session.Message
}

func NewRequestAction(req emsx.Request, handle ResponseHandler) *RequestAction {
	return &RequestAction{req: req, handle: handle}
}

// Messages returns every response message received for the request.
func (a *RequestAction) Messages() []*session.Message { return a.messages }

func (a *RequestAction) Begin(ctx context.Context, s *session.Session, r *Runner) error {
	svc, err := s.GetService(r.Service())
	if err != nil {
		return err
	}
	req, err := emsx.Build(svc, a.req)
	if err != nil {
		return err
	}
	r.Printer().Printf("Request: %s", req)

	a.cid = session.NewCorrelationID()
	if _, err := s.SendRequest(ctx, req, a.cid); err != nil {
		return err
	}
	r.Logger().Debug("RequestAction: sent", zap.String("operation", a.req.Operation()), zap.Int64("cid", int64(a.cid)))
	return nil
}

func (a *RequestAction) Handle(ev *session.Event, _ *session.Session, r *Runner) {
	out := r.Printer()
	switch ev.Type {
	case session.EventResponse, session.EventPartialResponse:
		out.EventHeader(ev.Type)
		own := false
		for _, msg := range ev.Messages {
			if msg.CorrelationID() != a.cid {
				r.Logger().Debug("RequestAction: ignoring foreign message",
					zap.String("type", msg.Type), zap.Int64("cid", int64(msg.CorrelationID())))
				continue
			}
			own = true
			a.messages = append(a.messages, msg)
			out.MessageType(msg)

			if re, ok := emsx.AsRequestError(msg); ok {
				out.RequestError(re)
				a.reqErr = re
				continue
			}
			if a.handle == nil {
				out.Message(msg)
				continue
			}
			if err := a.handle(msg, out); err != nil {
				r.Logger().Error("RequestAction: bad response", zap.String("type", msg.Type), zap.Error(err))
				a.reqErr = err
			}
		}
		if own && ev.Type == session.EventResponse {
			r.Finish(a.reqErr)
		}
	case session.EventRequestStatus:
		out.EventHeader(ev.Type)
		for _, msg := range ev.Messages {
			out.Message(msg)
			if msg.CorrelationID() == a.cid && msg.Type == session.RequestFailure {
				r.Finish(fmt.Errorf("%w: %s", session.ErrRequestFailed, a.req.Operation()))
			}
		}
	default:
		out.EventHeader(ev.Type)
		for _, msg := range ev.Messages {
			out.Message(msg)
		}
	}
}

func printOrderRouteResult(msg *session.Message, out *printer.Printer) error {
	out.OrderRouteResult(emsx.DecodeOrderRouteResult(msg))
	return nil
}

func BrokerSpec(uuid int64) *RequestAction {
	return NewRequestAction(emsx.BrokerSpecRequest{UUID: uuid}, func(msg *session.Message, out *printer.Printer) error {
		brokers, err := emsx.DecodeBrokerSpec(msg)
		if err != nil {
			return err
		}
		out.BrokerSpec(brokers)
		return nil
	})
}

func AssignTrader(sequences []int64, traderUUID int64) *RequestAction {
	req := emsx.AssignTrader{Sequences: sequences, TraderUUID: traderUUID}
	return NewRequestAction(req, func(msg *session.Message, out *printer.Printer) error {
		res, err := emsx.DecodeAssignTraderResult(msg)
		if err != nil {
			return err
		}
		out.AssignTraderResult(res)
		return nil
	})
}

func History(req emsx.GetFills) *RequestAction {
	return NewRequestAction(req, func(msg *session.Message, out *printer.Printer) error {
		fills, err := emsx.DecodeFills(msg)
		if err != nil {
			return err
		}
		out.Fills(fills)
		return nil
	})
}

func CreateOrderAndRoute(req emsx.CreateOrderAndRoute) *RequestAction {
	return NewRequestAction(req, printOrderRouteResult)
}

func RouteEx(req emsx.Route) *RequestAction {
	return NewRequestAction(req, printOrderRouteResult)
}

func ModifyRouteEx(req emsx.ModifyRoute) *RequestAction {
	return NewRequestAction(req, printOrderRouteResult)
}

func CreateBasket(req emsx.CreateBasket) *RequestAction {
	return NewRequestAction(req, printOrderRouteResult)
}

func GroupRouteEx(req emsx.GroupRoute) *RequestAction {
	return NewRequestAction(req, func(msg *session.Message, out *printer.Printer) error {
		res, err := emsx.DecodeGroupRouteResult(msg)
		if err != nil {
			return err
		}
		out.GroupRouteResult(res)
		return nil
	})
}

func BrokerStrategies(req emsx.BrokerStrategies) *RequestAction {
	return NewRequestAction(req, func(msg *session.Message, out *printer.Printer) error {
		names, err := emsx.DecodeStrategies(msg)
		if err != nil {
			return err
		}
		out.Strategies(names)
		return nil
	})
}
