// Package printer renders session events and EMSX results as console text.
package printer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/session"
)

type Printer struct {
	w io.Writer
}

func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) Println(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *Printer) EventHeader(t session.EventType) {
	p.Printf("Processing %s event\n", t)
}

// Message dumps a whole message, correlation ids first.
func (p *Printer) Message(msg *session.Message) {
	if cid := msg.CorrelationID(); cid != 0 {
		p.Printf("CORRELATION ID: %d\n", cid)
	}
	p.Printf("MESSAGE: %s", msg.Elements)
}

func (p *Printer) MessageType(msg *session.Message) {
	p.Printf("MESSAGE TYPE: %s\n", msg.Type)
}

func (p *Printer) RequestError(e *emsx.RequestError) {
	p.Printf("ERROR CODE: %d\tERROR MESSAGE: %s\n", e.Code, e.Message)
}

func (p *Printer) OrderRouteResult(r emsx.OrderRouteResult) {
	p.Printf("EMSX_SEQUENCE: %d\tEMSX_ROUTE_ID: %d\tMESSAGE: %s\n", r.Sequence, r.RouteID, r.Message)
}

func (p *Printer) GroupRouteResult(r emsx.GroupRouteResult) {
	for _, s := range r.Success {
		p.Printf("Success: EMSX_SEQUENCE: %d\tEMSX_ROUTE_ID: %d\n", s.Sequence, s.RouteID)
	}
	for _, f := range r.Failed {
		p.Printf("Failed: EMSX_SEQUENCE: %d\tERROR CODE: %d\tERROR MESSAGE: %s\n", f.Sequence, f.ErrorCode, f.ErrorMessage)
	}
	p.Printf("MESSAGE: %s\n", r.Message)
}

func (p *Printer) AssignTraderResult(r emsx.AssignTraderResult) {
	if r.AllSuccess {
		p.Println("All orders successfully assigned")
		return
	}
	if len(r.Successful) > 0 {
		p.Println("Successful assignments:-")
		for _, seq := range r.Successful {
			p.Printf("EMSX_SEQUENCE: %d\n", seq)
		}
	}
	p.Printf("One or more failed assignments...\n\n")
	p.Println("Failed assignments:-")
	for _, seq := range r.Failed {
		p.Printf("EMSX_SEQUENCE: %d\n", seq)
	}
}

func (p *Printer) Strategies(names []string) {
	p.Printf("Number of Strategies: %d\n", len(names))
	for _, n := range names {
		p.Printf("EMSX_STRATEGIES: %s\n", n)
	}
}

func (p *Printer) Fills(fills []emsx.Fill) {
	for _, f := range fills {
		p.Printf("OrderId: %d\tFill ID: %d\tDate/Time: %s\tShares: %f\tPrice: %f\n",
			f.OrderID, f.FillID, f.DateTimeOfFill, f.FillShares, f.FillPrice)
	}
}

func (p *Printer) BrokerSpec(brokers []emsx.Broker) {
	p.Printf("Number of Brokers: %d\n\n", len(brokers))
	for _, b := range brokers {
		if b.HasStrategyFixTag {
			p.Printf("\nBroker code: %s\tclass: %s\ttag: %d\n", b.Code, b.AssetClass, b.StrategyFixTag)
			p.Printf("\tNo. of Strategies: %d\n", len(b.Strategies))
			for _, s := range b.Strategies {
				p.Printf("\n\tStrategy Name: %s\tFix Value: %s\n", s.Name, s.FixValue)
				p.Printf("\t\tNo. of Parameters: %d\n\n", len(s.Parameters))
				for _, param := range s.Parameters {
					p.Printf("\t\tParameter: %s\tTag: %d\tRequired: %t\tReplaceable: %t\n",
						param.Name, param.FixTag, param.Required, param.Replaceable)
					if vals := typeValues(param.Type); vals != "" {
						p.Printf("\t\t\tType: %s (%s)\n", param.Type.Kind, vals)
					} else {
						p.Printf("\t\t\tType: %s\n", param.Type.Kind)
					}
				}
			}
		} else {
			p.Printf("\nBroker code: %s\tclass: %s\n", b.Code, b.AssetClass)
			p.Printf("\tNo strategies\n\n")
		}

		p.Println("\tTime In Force:")
		p.namedFixValues(b.TimesInForce)
		p.Println("\n\tOrder Types:")
		p.namedFixValues(b.OrderTypes)
		p.Println("\n\tHandling Instructions:")
		p.namedFixValues(b.HandlingInstructions)
	}
}

func (p *Printer) namedFixValues(vals []emsx.NamedFixValue) {
	for _, v := range vals {
		p.Printf("\t\tName: %s\tFix Value: %s\n", v.Name, v.FixValue)
	}
}

func typeValues(t emsx.ParameterType) string {
	switch t.Kind {
	case "enumeration":
		parts := make([]string, len(t.Enumerators))
		for i, e := range t.Enumerators {
			parts[i] = e.Name + "[" + e.FixValue + "]"
		}
		return strings.Join(parts, ",")
	case "range":
		return fmt.Sprintf("min:%d max:%d step:%d", t.Min, t.Max, t.Step)
	case "string":
		return strings.Join(t.PossibleValues, ",")
	}
	return ""
}

// Heartbeat marks a heartbeat on the current line.
func (p *Printer) Heartbeat(kind emsx.TopicKind) {
	if kind == emsx.RouteTopic {
		p.Printf("R.")
	} else {
		p.Printf("O.")
	}
}

func (p *Printer) EndOfInitialPaint(kind emsx.TopicKind) {
	if kind == emsx.RouteTopic {
		p.Println("Route - End of initial paint")
	} else {
		p.Println("Order - End of initial paint")
	}
}

// Update prints a header line followed by every field the message carried.
func (p *Printer) Update(u emsx.Update) {
	label := "ORDER"
	if u.Kind == emsx.RouteTopic {
		label = "ROUTE"
	}
	p.Printf("%s MESSAGE: CorrelationID(%d)   Status(%d)\n", label, u.CorrelationID, u.Status)
	for _, fv := range u.Values {
		p.Printf("%s: %s\n", fv.Field.Name, formatValue(fv.Value))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
