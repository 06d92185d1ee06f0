package constants

// Event bus topics.
const (
	// blotter events
	EventOrderUpdated = "order.updated"
	EventRouteUpdated = "route.updated"
	EventHeartbeat    = "subscription.heartbeat"
	EventPainted      = "subscription.painted"

	// history events
	EventFillsSynced = "fills.synced"
)
