// Package mqtt publishes device console events to an MQTT broker.
//
// The console does not consume MQTT; it announces device lifecycle
// changes so that other systems (dashboards, provisioning agents) can
// follow the device list without polling.
//
// # Topics
//
//	<prefix>/event/device.created
//	<prefix>/event/device.updated
//	<prefix>/event/device.deleted
//	<prefix>/system/status          (retained, with Last Will)
//
// Event payloads are the JSON form of device.Event and never carry
// secret digests. Events are published with the configured QoS and are
// not retained.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishDeviceEvent(ctx, device.NewEvent(device.EventCreated, view, "alice"))
package mqtt
