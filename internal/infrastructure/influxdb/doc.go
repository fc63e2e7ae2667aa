// Package influxdb records device console activity in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//	auth_events,event=<login|login_failed|register|logout>  count=1i
//	device_events,action=<create|update|delete>             count=1i
//
// Tags are limited to the event or action name. Usernames, device ids and
// secrets are never written.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordAuthEvent("login")
//
// Write errors are delivered asynchronously and logged; they never reach
// the request that caused the point.
package influxdb
