package emsx

// FieldKind is how a subscription field is read off a message.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindInt64
	KindFloat
)

type Field struct {
	Name string
	Kind FieldKind
}

// Names returns the field names in order.
func Names(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

var OrderFields = []Field{
	{"API_SEQ_NUM", KindInt64},
	{"EMSX_ACCOUNT", KindString},
	{"EMSX_AMOUNT", KindInt},
	{"EMSX_ARRIVAL_PRICE", KindFloat},
	{"EMSX_ASSET_CLASS", KindString},
	{"EMSX_ASSIGNED_TRADER", KindString},
	{"EMSX_AVG_PRICE", KindFloat},
	{"EMSX_BASKET_NAME", KindString},
	{"EMSX_BASKET_NUM", KindInt},
	{"EMSX_BROKER", KindString},
	{"EMSX_BROKER_COMM", KindFloat},
	{"EMSX_BSE_AVG_PRICE", KindFloat},
	{"EMSX_BSE_FILLED", KindInt},
	{"EMSX_CFD_FLAG", KindString},
	{"EMSX_COMM_DIFF_FLAG", KindString},
	{"EMSX_COMM_RATE", KindFloat},
	{"EMSX_CURRENCY_PAIR", KindString},
	{"EMSX_DATE", KindInt},
	{"EMSX_DAY_AVG_PRICE", KindFloat},
	{"EMSX_DAY_FILL", KindInt},
	{"EMSX_DIR_BROKER_FLAG", KindString},
	{"EMSX_EXCHANGE", KindString},
	{"EMSX_EXCHANGE_DESTINATION", KindString},
	{"EMSX_EXEC_INSTRUCTION", KindString},
	{"EMSX_FILL_ID", KindInt},
	{"EMSX_FILLED", KindInt},
	{"EMSX_GTD_DATE", KindInt},
	{"EMSX_HAND_INSTRUCTION", KindString},
	{"EMSX_IDLE_AMOUNT", KindInt},
	{"EMSX_INVESTOR_ID", KindString},
	{"EMSX_ISIN", KindString},
	{"EMSX_LIMIT_PRICE", KindFloat},
	{"EMSX_NOTES", KindString},
	{"EMSX_NSE_AVG_PRICE", KindFloat},
	{"EMSX_NSE_FILLED", KindInt},
	{"EMSX_ORD_REF_ID", KindString},
	{"EMSX_ORDER_TYPE", KindString},
	{"EMSX_ORIGINATE_TRADER", KindString},
	{"EMSX_ORIGINATE_TRADER_FIRM", KindString},
	{"EMSX_PERCENT_REMAIN", KindFloat},
	{"EMSX_PM_UUID", KindInt},
	{"EMSX_PORT_MGR", KindString},
	{"EMSX_PORT_NAME", KindString},
	{"EMSX_PORT_NUM", KindInt},
	{"EMSX_POSITION", KindString},
	{"EMSX_PRINCIPAL", KindFloat},
	{"EMSX_PRODUCT", KindString},
	{"EMSX_QUEUED_DATE", KindInt},
	{"EMSX_QUEUED_TIME", KindInt},
	{"EMSX_REASON_CODE", KindString},
	{"EMSX_REASON_DESC", KindString},
	{"EMSX_REMAIN_BALANCE", KindFloat},
	{"EMSX_ROUTE_ID", KindInt},
	{"EMSX_ROUTE_PRICE", KindFloat},
	{"EMSX_SEC_NAME", KindString},
	{"EMSX_SEDOL", KindString},
	{"EMSX_SEQUENCE", KindInt},
	{"EMSX_SETTLE_AMOUNT", KindFloat},
	{"EMSX_SETTLE_DATE", KindInt},
	{"EMSX_SIDE", KindString},
	{"EMSX_START_AMOUNT", KindInt},
	{"EMSX_STATUS", KindString},
	{"EMSX_STEP_OUT_BROKER", KindString},
	{"EMSX_STOP_PRICE", KindFloat},
	{"EMSX_STRATEGY_END_TIME", KindInt},
	{"EMSX_STRATEGY_PART_RATE1", KindFloat},
	{"EMSX_STRATEGY_PART_RATE2", KindFloat},
	{"EMSX_STRATEGY_START_TIME", KindInt},
	{"EMSX_STRATEGY_STYLE", KindString},
	{"EMSX_STRATEGY_TYPE", KindString},
	{"EMSX_TICKER", KindString},
	{"EMSX_TIF", KindString},
	{"EMSX_TIME_STAMP", KindInt},
	{"EMSX_TRAD_UUID", KindInt},
	{"EMSX_TRADE_DESK", KindString},
	{"EMSX_TRADER", KindString},
	{"EMSX_TRADER_NOTES", KindString},
	{"EMSX_TS_ORDNUM", KindInt},
	{"EMSX_TYPE", KindString},
	{"EMSX_UNDERLYING_TICKER", KindString},
	{"EMSX_USER_COMM_AMOUNT", KindFloat},
	{"EMSX_USER_COMM_RATE", KindFloat},
	{"EMSX_USER_FEES", KindFloat},
	{"EMSX_USER_NET_MONEY", KindFloat},
	{"EMSX_WORK_PRICE", KindFloat},
	{"EMSX_WORKING", KindInt},
	{"EMSX_YELLOW_KEY", KindString},
}

var RouteFields = []Field{
	{"API_SEQ_NUM", KindInt64},
	{"EMSX_ACCOUNT", KindString},
	{"EMSX_AMOUNT", KindInt},
	{"EMSX_AVG_PRICE", KindFloat},
	{"EMSX_BROKER", KindString},
	{"EMSX_BROKER_COMM", KindFloat},
	{"EMSX_BSE_AVG_PRICE", KindFloat},
	{"EMSX_BSE_FILLED", KindInt},
	{"EMSX_CLEARING_ACCOUNT", KindString},
	{"EMSX_CLEARING_FIRM", KindString},
	{"EMSX_COMM_DIFF_FLAG", KindString},
	{"EMSX_COMM_RATE", KindFloat},
	{"EMSX_CURRENCY_PAIR", KindString},
	{"EMSX_CUSTOM_ACCOUNT", KindString},
	{"EMSX_DAY_AVG_PRICE", KindFloat},
	{"EMSX_DAY_FILL", KindInt},
	{"EMSX_EXCHANGE_DESTINATION", KindString},
	{"EMSX_EXEC_INSTRUCTION", KindString},
	{"EMSX_EXECUTE_BROKER", KindString},
	{"EMSX_FILL_ID", KindInt},
	{"EMSX_FILLED", KindInt},
	{"EMSX_GTD_DATE", KindInt},
	{"EMSX_HAND_INSTRUCTION", KindString},
	{"EMSX_IS_MANUAL_ROUTE", KindInt},
	{"EMSX_LAST_FILL_DATE", KindInt},
	{"EMSX_LAST_FILL_TIME", KindInt},
	{"EMSX_LAST_MARKET", KindString},
	{"EMSX_LAST_PRICE", KindFloat},
	{"EMSX_LAST_SHARES", KindInt},
	{"EMSX_LIMIT_PRICE", KindFloat},
	{"EMSX_MISC_FEES", KindFloat},
	{"EMSX_ML_LEG_QUANTITY", KindInt},
	{"EMSX_ML_NUM_LEGS", KindInt},
	{"EMSX_ML_PERCENT_FILLED", KindFloat},
	{"EMSX_ML_RATIO", KindFloat},
	{"EMSX_ML_REMAIN_BALANCE", KindFloat},
	{"EMSX_ML_STRATEGY", KindString},
	{"EMSX_ML_TOTAL_QUANTITY", KindInt},
	{"EMSX_NOTES", KindString},
	{"EMSX_NSE_AVG_PRICE", KindFloat},
	{"EMSX_NSE_FILLED", KindInt},
	{"EMSX_ORDER_TYPE", KindString},
	{"EMSX_P_A", KindString},
	{"EMSX_PERCENT_REMAIN", KindFloat},
	{"EMSX_PRINCIPAL", KindFloat},
	{"EMSX_QUEUED_DATE", KindInt},
	{"EMSX_QUEUED_TIME", KindInt},
	{"EMSX_REASON_CODE", KindString},
	{"EMSX_REASON_DESC", KindString},
	{"EMSX_REMAIN_BALANCE", KindFloat},
	{"EMSX_ROUTE_CREATE_DATE", KindInt},
	{"EMSX_ROUTE_CREATE_TIME", KindInt},
	{"EMSX_ROUTE_ID", KindInt},
	{"EMSX_ROUTE_REF_ID", KindString},
	{"EMSX_ROUTE_LAST_UPDATE_TIME", KindInt},
	{"EMSX_ROUTE_PRICE", KindFloat},
	{"EMSX_SEQUENCE", KindInt},
	{"EMSX_SETTLE_AMOUNT", KindFloat},
	{"EMSX_SETTLE_DATE", KindInt},
	{"EMSX_STATUS", KindString},
	{"EMSX_STOP_PRICE", KindFloat},
	{"EMSX_STRATEGY_END_TIME", KindInt},
	{"EMSX_STRATEGY_PART_RATE1", KindFloat},
	{"EMSX_STRATEGY_PART_RATE2", KindFloat},
	{"EMSX_STRATEGY_START_TIME", KindInt},
	{"EMSX_STRATEGY_STYLE", KindString},
	{"EMSX_STRATEGY_TYPE", KindString},
	{"EMSX_TIF", KindString},
	{"EMSX_TIME_STAMP", KindInt},
	{"EMSX_TYPE", KindString},
	{"EMSX_URGENCY_LEVEL", KindInt},
	{"EMSX_USER_COMM_AMOUNT", KindFloat},
	{"EMSX_USER_COMM_RATE", KindFloat},
	{"EMSX_USER_FEES", KindFloat},
	{"EMSX_USER_NET_MONEY", KindFloat},
	{"EMSX_WORKING", KindInt},
}
