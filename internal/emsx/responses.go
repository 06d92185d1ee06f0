package emsx

import (
	"fmt"

	"emsxbridge.com/internal/session"
)

// RequestError is the content of an ErrorInfo response.
type RequestError struct {
	Code    int64
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("ERROR CODE: %d\tERROR MESSAGE: %s", e.Code, e.Message)
}

// AsRequestError decodes an ErrorInfo message. The order services use
// ERROR_CODE/ERROR_MESSAGE; the history service uses ErrorCode/ErrorMsg.
func AsRequestError(msg *session.Message) (*RequestError, bool) {
	if msg.Type != MsgErrorInfo {
		return nil, false
	}
	e := msg.Elements
	re := &RequestError{}
	if e.HasElement("ERROR_CODE") {
		re.Code, _ = e.GetElementAsInt64("ERROR_CODE")
		re.Message, _ = e.GetElementAsString("ERROR_MESSAGE")
	} else {
		re.Code, _ = e.GetElementAsInt64("ErrorCode")
		re.Message, _ = e.GetElementAsString("ErrorMsg")
	}
	return re, true
}

// OrderRouteResult answers CreateOrder, CreateOrderAndRouteEx, RouteEx,
// ModifyRouteEx and CreateBasket. Absent numbers are zero.
type OrderRouteResult struct {
	Sequence int64
	RouteID  int64
	Message  string
}

func DecodeOrderRouteResult(msg *session.Message) OrderRouteResult {
	e := msg.Elements
	var r OrderRouteResult
	r.Sequence, _ = e.GetElementAsInt64("EMSX_SEQUENCE")
	r.RouteID, _ = e.GetElementAsInt64("EMSX_ROUTE_ID")
	r.Message, _ = e.GetElementAsString("MESSAGE")
	return r
}

type RouteSuccess struct {
	Sequence int64
	RouteID  int64
}

type RouteFailure struct {
	Sequence     int64
	ErrorCode    int64
	ErrorMessage string
}

type GroupRouteResult struct {
	Success []RouteSuccess
	Failed  []RouteFailure
	Message string
}

func DecodeGroupRouteResult(msg *session.Message) (GroupRouteResult, error) {
	e := msg.Elements
	var r GroupRouteResult

	if success, err := e.GetElement("EMSX_SUCCESS_ROUTES"); err == nil {
		for _, item := range success.Values() {
			var s RouteSuccess
			if s.Sequence, err = item.GetElementAsInt64("EMSX_SEQUENCE"); err != nil {
				return r, err
			}
			if s.RouteID, err = item.GetElementAsInt64("EMSX_ROUTE_ID"); err != nil {
				return r, err
			}
			r.Success = append(r.Success, s)
		}
	}
	if failed, err := e.GetElement("EMSX_FAILED_ROUTES"); err == nil {
		for _, item := range failed.Values() {
			var f RouteFailure
			if f.Sequence, err = item.GetElementAsInt64("EMSX_SEQUENCE"); err != nil {
				return r, err
			}
			f.ErrorCode, _ = item.GetElementAsInt64("ERROR_CODE")
			f.ErrorMessage, _ = item.GetElementAsString("ERROR_MESSAGE")
			r.Failed = append(r.Failed, f)
		}
	}
	r.Message, _ = e.GetElementAsString("MESSAGE")
	return r, nil
}

type AssignTraderResult struct {
	AllSuccess bool
	Successful []int64
	Failed     []int64
}

func DecodeAssignTraderResult(msg *session.Message) (AssignTraderResult, error) {
	e := msg.Elements
	var r AssignTraderResult

	all, err := e.GetElementAsBool("EMSX_ALL_SUCCESS")
	if err != nil {
		return r, err
	}
	r.AllSuccess = all

	if r.Successful, err = sequences(e, "EMSX_ASSIGN_TRADER_SUCCESSFUL_ORDERS"); err != nil {
		return r, err
	}
	if r.Failed, err = sequences(e, "EMSX_ASSIGN_TRADER_FAILED_ORDERS"); err != nil {
		return r, err
	}
	return r, nil
}

func sequences(e *session.Element, name string) ([]int64, error) {
	list, err := e.GetElement(name)
	if err != nil {
		return nil, nil
	}
	var out []int64
	for _, item := range list.Values() {
		seq, err := item.GetElementAsInt64("EMSX_SEQUENCE")
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, nil
}

// DecodeStrategies reads the EMSX_STRATEGIES list.
func DecodeStrategies(msg *session.Message) ([]string, error) {
	list, err := msg.Elements.GetElement("EMSX_STRATEGIES")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, list.NumValues())
	for i := 0; i < list.NumValues(); i++ {
		s, err := list.ValueAsString(i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Fill is one execution from the history service. The first five fields
// are always present; the rest are filled in when the response carries them.
type Fill struct {
	OrderID        int64
	FillID         int64
	DateTimeOfFill string
	FillShares     float64
	FillPrice      float64

	RouteID  int64
	Ticker   string
	Side     string
	Broker   string
	Exchange string
	Currency string
	Account  string
}

func DecodeFills(msg *session.Message) ([]Fill, error) {
	list, err := msg.Elements.GetElement("Fills")
	if err != nil {
		return nil, err
	}

	fills := make([]Fill, 0, list.NumValues())
	for _, item := range list.Values() {
		var f Fill
		if f.OrderID, err = item.GetElementAsInt64("OrderId"); err != nil {
			return nil, err
		}
		if f.FillID, err = item.GetElementAsInt64("FillId"); err != nil {
			return nil, err
		}
		if f.DateTimeOfFill, err = item.GetElementAsString("DateTimeOfFill"); err != nil {
			return nil, err
		}
		if f.FillShares, err = item.GetElementAsFloat64("FillShares"); err != nil {
			return nil, err
		}
		if f.FillPrice, err = item.GetElementAsFloat64("FillPrice"); err != nil {
			return nil, err
		}
		f.RouteID, _ = item.GetElementAsInt64("RouteId")
		f.Ticker, _ = item.GetElementAsString("Ticker")
		f.Side, _ = item.GetElementAsString("Side")
		f.Broker, _ = item.GetElementAsString("Broker")
		f.Exchange, _ = item.GetElementAsString("Exchange")
		f.Currency, _ = item.GetElementAsString("Currency")
		f.Account, _ = item.GetElementAsString("Account")
		fills = append(fills, f)
	}
	return fills, nil
}

type NamedFixValue struct {
	Name     string
	FixValue string
}

// ParameterType describes the values a strategy parameter accepts. Kind
// is "enumeration", "range" or "string".
type ParameterType struct {
	Kind           string
	Enumerators    []NamedFixValue
	Min, Max, Step int64
	PossibleValues []string
}

type StrategyParameter struct {
	Name        string
	FixTag      int64
	Required    bool
	Replaceable bool
	Type        ParameterType
}

type Strategy struct {
	Name       string
	FixValue   string
	Parameters []StrategyParameter
}

type Broker struct {
	Code                 string
	AssetClass           string
	HasStrategyFixTag    bool
	StrategyFixTag       int64
	Strategies           []Strategy
	TimesInForce         []NamedFixValue
	OrderTypes           []NamedFixValue
	HandlingInstructions []NamedFixValue
}

// DecodeBrokerSpec reads the brokers of a BrokerSpec response.
func DecodeBrokerSpec(msg *session.Message) ([]Broker, error) {
	list, err := msg.Elements.GetElement("brokers")
	if err != nil {
		return nil, err
	}

	brokers := make([]Broker, 0, list.NumValues())
	for _, item := range list.Values() {
		var b Broker
		if b.Code, err = item.GetElementAsString("code"); err != nil {
			return nil, err
		}
		if b.AssetClass, err = item.GetElementAsString("assetClass"); err != nil {
			return nil, err
		}
		if item.HasElement("strategyFixTag") {
			b.HasStrategyFixTag = true
			if b.StrategyFixTag, err = item.GetElementAsInt64("strategyFixTag"); err != nil {
				return nil, err
			}
			if b.Strategies, err = decodeStrategies(item); err != nil {
				return nil, err
			}
		}
		if b.TimesInForce, err = namedFixValues(item, "timesInForce"); err != nil {
			return nil, err
		}
		if b.OrderTypes, err = namedFixValues(item, "orderTypes"); err != nil {
			return nil, err
		}
		if b.HandlingInstructions, err = namedFixValues(item, "handlingInstructions"); err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, nil
}

func decodeStrategies(broker *session.Element) ([]Strategy, error) {
	list, err := broker.GetElement("strategies")
	if err != nil {
		return nil, nil
	}
	var out []Strategy
	for _, item := range list.Values() {
		var s Strategy
		if s.Name, err = item.GetElementAsString("name"); err != nil {
			return nil, err
		}
		s.FixValue, _ = item.GetElementAsString("fixValue")

		if params, err := item.GetElement("parameters"); err == nil {
			for _, p := range params.Values() {
				param, err := decodeParameter(p)
				if err != nil {
					return nil, err
				}
				s.Parameters = append(s.Parameters, param)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeParameter(e *session.Element) (StrategyParameter, error) {
	var p StrategyParameter
	var err error
	if p.Name, err = e.GetElementAsString("name"); err != nil {
		return p, err
	}
	p.FixTag, _ = e.GetElementAsInt64("fixTag")
	p.Required, _ = e.GetElementAsBool("isRequired")
	p.Replaceable, _ = e.GetElementAsBool("isReplaceable")

	typ, err := e.GetElement("type")
	if err != nil {
		return p, nil
	}
	choice, err := typ.Choice()
	if err != nil {
		return p, err
	}
	p.Type.Kind = choice.Name()
	switch p.Type.Kind {
	case "enumeration":
		if p.Type.Enumerators, err = namedFixValues(choice, "enumerators"); err != nil {
			return p, err
		}
	case "range":
		p.Type.Min, _ = choice.GetElementAsInt64("min")
		p.Type.Max, _ = choice.GetElementAsInt64("max")
		p.Type.Step, _ = choice.GetElementAsInt64("step")
	case "string":
		if vals, err := choice.GetElement("possibleValues"); err == nil {
			for i := 0; i < vals.NumValues(); i++ {
				v, err := vals.ValueAsString(i)
				if err != nil {
					return p, err
				}
				p.Type.PossibleValues = append(p.Type.PossibleValues, v)
			}
		}
	}
	return p, nil
}

func namedFixValues(e *session.Element, name string) ([]NamedFixValue, error) {
	list, err := e.GetElement(name)
	if err != nil {
		return nil, nil
	}
	var out []NamedFixValue
	for _, item := range list.Values() {
		var v NamedFixValue
		if v.Name, err = item.GetElementAsString("name"); err != nil {
			return nil, err
		}
		v.FixValue, _ = item.GetElementAsString("fixValue")
		out = append(out, v)
	}
	return out, nil
}
