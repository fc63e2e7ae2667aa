package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAuthEvents   = "auth_events"
	MeasurementDeviceEvents = "device_events"
)

// RecordAuthEvent counts an authentication event (login, login_failed,
// register, logout). The write is non-blocking and batched.
//
//	client.RecordAuthEvent("login_failed")
//	// auth_events,event=login_failed count=1i
func (c *Client) RecordAuthEvent(event string) {
	c.count(MeasurementAuthEvents, "event", event)
}

// RecordDeviceEvent counts a device write (create, update, delete).
//
//	client.RecordDeviceEvent("create")
//	// device_events,action=create count=1i
func (c *Client) RecordDeviceEvent(action string) {
	c.count(MeasurementDeviceEvents, "action", action)
}

func (c *Client) count(measurement, tag, value string) {
	if c == nil {
		return
	}
	c.WritePoint(measurement,
		map[string]string{tag: value},
		map[string]any{"count": int64(1)},
	)
}

// WritePoint writes a custom point stamped with the current time.
//
// Tags should be low cardinality. Never put usernames, ids or secrets in
// tags.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if c == nil || !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
