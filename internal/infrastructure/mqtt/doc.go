// Package mqtt provides the MQTT client for the intercom bridge.
//
// This package wraps paho.mqtt.golang with connection management,
// automatic reconnection, subscription restoration, and the bridge's
// topic scheme.
//
// # Topic Hierarchy
//
//	graylogic/state/intercom/{device_id}            retained device state
//	graylogic/event/intercom/{device_id}/doorbell   doorbell press events
//	graylogic/command/intercom/{device_id}          inbound commands
//	graylogic/ack/intercom/{device_id}              command acknowledgements
//	graylogic/health/intercom                       aggregate bridge health
//	graylogic/system/intercom/status                online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("front-door")
//	err = client.PublishRetained(topic, payload)
//
// # Reliability
//
// The client reconnects automatically with exponential backoff and
// restores all subscriptions on reconnect. A Last Will and Testament on
// the status topic lets consumers detect an unexpected bridge death.
package mqtt
