package mqtt

import "fmt"

// Topic scheme: graylogic/{category}/intercom/{device_id}[/suffix]
//
// The bridge publishes retained state per device, transient doorbell
// events, aggregate health, and consumes commands addressed to a device.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "graylogic"

	// protocol identifies this bridge in the topic hierarchy.
	protocol = "intercom"
)

// Topics provides builders for the bridge's MQTT topics. Using these
// helpers keeps topic naming consistent across publishers and tests.
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: graylogic/state/intercom/front-door
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, deviceID)
}

// DeviceDoorbell returns the doorbell event topic for a device.
// Events are transient and never retained.
//
// Example: graylogic/event/intercom/front-door/doorbell
func (Topics) DeviceDoorbell(deviceID string) string {
	return fmt.Sprintf("%s/event/%s/%s/doorbell", TopicPrefix, protocol, deviceID)
}

// DeviceCommand returns the command topic for a device.
//
// Example: graylogic/command/intercom/front-door
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, deviceID)
}

// DeviceAck returns the command acknowledgement topic for a device.
//
// Example: graylogic/ack/intercom/front-door
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeHealth returns the aggregate bridge health topic.
//
// Example: graylogic/health/intercom
func (Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeStatus returns the bridge online/offline status topic, used for
// the Last Will and Testament and graceful shutdown announcements.
//
// Example: graylogic/system/intercom/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, protocol)
}

// AllDeviceCommands returns a pattern matching commands for every device.
//
// Pattern: graylogic/command/intercom/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: graylogic/state/intercom/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, protocol)
}
