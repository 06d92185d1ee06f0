package emsx

import "strconv"

// EventStatus is the EVENT_STATUS carried by every OrderRouteFields message.
type EventStatus int

const (
	StatusHeartbeat         EventStatus = 1
	StatusInitialPaint      EventStatus = 4
	StatusNew               EventStatus = 6
	StatusUpdate            EventStatus = 7
	StatusDelete            EventStatus = 8
	StatusEndOfInitialPaint EventStatus = 11
)

func (s EventStatus) String() string {
	switch s {
	case StatusHeartbeat:
		return "HEARTBEAT"
	case StatusInitialPaint:
		return "INIT_PAINT"
	case StatusNew:
		return "NEW_ORDER_ROUTE"
	case StatusUpdate:
		return "UPD_ORDER_ROUTE"
	case StatusDelete:
		return "DELETION"
	case StatusEndOfInitialPaint:
		return "END_PAINT"
	}
	return strconv.Itoa(int(s))
}

// CarriesData reports whether a message with this status holds field values.
func (s EventStatus) CarriesData() bool {
	return s != StatusHeartbeat && s != StatusEndOfInitialPaint
}
