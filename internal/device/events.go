package device

import "time"

// Device lifecycle event types.
const (
	EventCreated = "device.created"
	EventUpdated = "device.updated"
	EventDeleted = "device.deleted"
)

// Event describes a change to the device list. Only the safe View is
// carried; secret digests never appear in events.
type Event struct {
	Type      string    `json:"type"`
	Device    View      `json:"device"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event for d stamped with the current time.
func NewEvent(eventType string, d View, actor string) Event {
	return Event{
		Type:      eventType,
		Device:    d,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
	}
}
