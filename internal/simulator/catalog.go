package simulator

import (
	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/session"
)

var standardTIFs = []emsx.NamedFixValue{{Name: "DAY", FixValue: "0"}, {Name: "GTC", FixValue: "1"}, {Name: "IOC", FixValue: "3"}}
var standardOrderTypes = []emsx.NamedFixValue{{Name: "MKT", FixValue: "1"}, {Name: "LMT", FixValue: "2"}}
var standardHandInstructions = []emsx.NamedFixValue{{Name: "ANY", FixValue: "1"}, {Name: "DMA", FixValue: "1"}}

// brokers is the fixed broker specification served by the simulator.
var brokers = []emsx.Broker{
	{
		Code: "BB", AssetClass: "EQTY", HasStrategyFixTag: true, StrategyFixTag: 6000,
		Strategies: []emsx.Strategy{
			{Name: "DMA", FixValue: "1"},
			{Name: "VWAP", FixValue: "2", Parameters: []emsx.StrategyParameter{
				{Name: "StartTime", FixTag: 6001, Required: false, Replaceable: true, Type: emsx.ParameterType{Kind: "string"}},
				{Name: "EndTime", FixTag: 6002, Required: false, Replaceable: true, Type: emsx.ParameterType{Kind: "string"}},
				{Name: "Urgency", FixTag: 6003, Required: true, Replaceable: true, Type: emsx.ParameterType{
					Kind: "enumeration", Enumerators: []emsx.NamedFixValue{{Name: "Low", FixValue: "1"}, {Name: "Medium", FixValue: "2"}, {Name: "High", FixValue: "3"}},
				}},
				{Name: "MaxVolume", FixTag: 6004, Replaceable: true, Type: emsx.ParameterType{Kind: "range", Min: 1, Max: 50, Step: 1}},
			}},
		},
		TimesInForce: standardTIFs, OrderTypes: standardOrderTypes, HandlingInstructions: standardHandInstructions,
	},
	{
		Code: "BMTB", AssetClass: "EQTY", HasStrategyFixTag: true, StrategyFixTag: 7000,
		Strategies: []emsx.Strategy{
			{Name: "TWAP", FixValue: "T", Parameters: []emsx.StrategyParameter{
				{Name: "Duration", FixTag: 7001, Required: true, Type: emsx.ParameterType{Kind: "range", Min: 5, Max: 390, Step: 5}},
				{Name: "Style", FixTag: 7002, Type: emsx.ParameterType{Kind: "string", PossibleValues: []string{"Passive", "Neutral", "Aggressive"}}},
			}},
		},
		TimesInForce: standardTIFs, OrderTypes: standardOrderTypes, HandlingInstructions: standardHandInstructions,
	},
	{
		Code: "EFIX", AssetClass: "FUT",
		TimesInForce: standardTIFs[:1], OrderTypes: standardOrderTypes, HandlingInstructions: standardHandInstructions[1:],
	},
}

func findBroker(code, assetClass string) (emsx.Broker, bool) {
	for _, b := range brokers {
		if b.Code == code && (assetClass == "" || b.AssetClass == assetClass) {
			return b, true
		}
	}
	return emsx.Broker{}, false
}

// writeBrokerSpec renders brokers in the BrokerSpec response layout.
func writeBrokerSpec(e *session.Element) {
	for _, b := range brokers {
		item := e.AppendElement("brokers")
		item.Set("code", b.Code)
		item.Set("assetClass", b.AssetClass)
		if b.HasStrategyFixTag {
			item.Set("strategyFixTag", b.StrategyFixTag)
			for _, s := range b.Strategies {
				strat := item.AppendElement("strategies")
				strat.Set("name", s.Name)
				strat.Set("fixValue", s.FixValue)
				for _, p := range s.Parameters {
					param := strat.AppendElement("parameters")
					param.Set("name", p.Name)
					param.Set("fixTag", p.FixTag)
					param.Set("isRequired", p.Required)
					param.Set("isReplaceable", p.Replaceable)
					typ := param.Sub("type").SetChoice(p.Type.Kind)
					switch p.Type.Kind {
					case "enumeration":
						for _, en := range p.Type.Enumerators {
							it := typ.AppendElement("enumerators")
							it.Set("name", en.Name)
							it.Set("fixValue", en.FixValue)
						}
					case "range":
						typ.Set("min", p.Type.Min)
						typ.Set("max", p.Type.Max)
						typ.Set("step", p.Type.Step)
					case "string":
						for _, v := range p.Type.PossibleValues {
							typ.Append("possibleValues", v)
						}
					}
				}
			}
		}
		for _, list := range []struct {
			name string
			vals []emsx.NamedFixValue
		}{
			{"timesInForce", b.TimesInForce},
			{"orderTypes", b.OrderTypes},
			{"handlingInstructions", b.HandlingInstructions},
		} {
			for _, v := range list.vals {
				it := item.AppendElement(list.name)
				it.Set("name", v.Name)
				it.Set("fixValue", v.FixValue)
			}
		}
	}
}
