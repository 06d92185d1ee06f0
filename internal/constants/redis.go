package constants

// Redis queue names
const (
	// RedisQueueCommand Go -> bridge command queue
	RedisQueueCommand = "emsx_cmd_queue"

	// RedisQueueEvent bridge -> Go status and response queue
	RedisQueueEvent = "emsx_event_queue"
)

// Redis Pub/Sub channels
const (
	// RedisPubSubSubscriptionPrefix is followed by the subscription's
	// correlation id.
	RedisPubSubSubscriptionPrefix = "emsx.sub."
)
