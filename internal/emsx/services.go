// Package emsx holds the EMSX vocabulary: service names, subscription
// fields, request builders and response decoders.
package emsx

const (
	ServiceProduction = "//blp/emapisvc"
	ServiceBeta       = "//blp/emapisvc_beta"
	ServiceHistory    = "//blp/emsx.history"
	ServiceHistoryUAT = "//blp/emsx.history.uat"
	ServiceBrokerSpec = "//blp/emsx.brokerspec"
)

// Request operations.
const (
	OpCreateOrder                       = "CreateOrder"
	OpCreateOrderAndRouteEx             = "CreateOrderAndRouteEx"
	OpRouteEx                           = "RouteEx"
	OpModifyRouteEx                     = "ModifyRouteEx"
	OpGroupRouteEx                      = "GroupRouteEx"
	OpCreateBasket                      = "CreateBasket"
	OpAssignTrader                      = "AssignTrader"
	OpGetBrokerStrategiesWithAssetClass = "GetBrokerStrategiesWithAssetClass"
	OpGetFills                          = "GetFills"
	OpGetBrokerSpecForUuid              = "GetBrokerSpecForUuid"
)

// Response and data message names.
const (
	MsgErrorInfo             = "ErrorInfo"
	MsgOrderRouteFields      = "OrderRouteFields"
	MsgCreateOrder           = "CreateOrder"
	MsgCreateOrderAndRouteEx = "CreateOrderAndRouteEx"
	MsgRoute                 = "Route"
	MsgModifyRouteEx         = "ModifyRouteEx"
	MsgGroupRouteEx          = "GroupRouteEx"
	MsgCreateBasket          = "CreateBasket"
	MsgAssignTrader          = "AssignTrader"
	MsgBrokerStrategies      = "GetBrokerStrategiesWithAssetClass"
	MsgGetFillsResponse      = "GetFillsResponse"
	MsgBrokerSpec            = "BrokerSpec"
)

// ResponseNames maps each operation to the message type of its answer.
var ResponseNames = map[string]string{
	OpCreateOrder:                       MsgCreateOrder,
	OpCreateOrderAndRouteEx:             MsgCreateOrderAndRouteEx,
	OpRouteEx:                           MsgRoute,
	OpModifyRouteEx:                     MsgModifyRouteEx,
	OpGroupRouteEx:                      MsgGroupRouteEx,
	OpCreateBasket:                      MsgCreateBasket,
	OpAssignTrader:                      MsgAssignTrader,
	OpGetBrokerStrategiesWithAssetClass: MsgBrokerStrategies,
	OpGetFills:                          MsgGetFillsResponse,
	OpGetBrokerSpecForUuid:              MsgBrokerSpec,
}

var orderOperations = []string{
	OpCreateOrder, OpCreateOrderAndRouteEx, OpRouteEx, OpModifyRouteEx,
	OpGroupRouteEx, OpCreateBasket, OpAssignTrader, OpGetBrokerStrategiesWithAssetClass,
}

// Operations lists the request operations each service accepts.
var Operations = map[string][]string{
	ServiceProduction: orderOperations,
	ServiceBeta:       orderOperations,
	ServiceHistory:    {OpGetFills},
	ServiceHistoryUAT: {OpGetFills},
	ServiceBrokerSpec: {OpGetBrokerSpecForUuid},
}
