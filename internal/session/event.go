package session

import "strings"

type EventType int

const (
	EventUnknown EventType = iota
	EventAdmin
	EventSessionStatus
	EventServiceStatus
	EventSubscriptionStatus
	EventSubscriptionData
	EventResponse
	EventPartialResponse
	EventRequestStatus
	EventTimeout
)

var eventTypeNames = map[EventType]string{
	EventUnknown:            "UNKNOWN",
	EventAdmin:              "ADMIN",
	EventSessionStatus:      "SESSION_STATUS",
	EventServiceStatus:      "SERVICE_STATUS",
	EventSubscriptionStatus: "SUBSCRIPTION_STATUS",
	EventSubscriptionData:   "SUBSCRIPTION_DATA",
	EventResponse:           "RESPONSE",
	EventPartialResponse:    "PARTIAL_RESPONSE",
	EventRequestStatus:      "REQUEST_STATUS",
	EventTimeout:            "TIMEOUT",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseEventType maps a wire name to its EventType. Unrecognised names
// yield EventUnknown.
func ParseEventType(name string) EventType {
	name = strings.ToUpper(strings.TrimSpace(name))
	for t, n := range eventTypeNames {
		if n == name {
			return t
		}
	}
	return EventUnknown
}

// Event is a batch of messages of one type, delivered in arrival order.
type Event struct {
	Type     EventType
	Messages []*Message
}
