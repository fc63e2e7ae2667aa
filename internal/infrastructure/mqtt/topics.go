package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "devconsole"

// Topics builds the console's MQTT topic names under a common prefix.
//
//	topics := mqtt.NewTopics("devconsole")
//	topics.DeviceEvent("device.created")
//	// Returns: "devconsole/event/device.created"
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are
// stripped and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root all topics share.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// DeviceEvent returns the topic for a device lifecycle event.
//
// Example: devconsole/event/device.updated
func (t Topics) DeviceEvent(eventType string) string {
	return t.Prefix() + "/event/" + eventType
}

// AllEvents returns a wildcard matching every event topic.
//
// Example: devconsole/event/#
func (t Topics) AllEvents() string {
	return t.Prefix() + "/event/#"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: devconsole/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}
