package instance

import "time"

// TopicStatusChange is the EventBus topic carrying StatusChange payloads for
// every observed lifecycle transition.
const TopicStatusChange = "instance.status.change"

// StatusChange describes one lifecycle transition of an instance.
type StatusChange struct {
	InstanceID string
	From       Status
	To         Status
	At         time.Time
}
