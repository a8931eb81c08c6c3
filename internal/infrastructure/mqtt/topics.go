package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the arena MQTT namespace.
//
// Device topics use the scheme: arena/devices/{device_id}/{channel}
// where the channel is status, heartbeat or hit for device-to-core
// traffic, and control, led or config for core-to-device traffic.
const (
	// TopicPrefixDevices is the base for all device topics.
	TopicPrefixDevices = "arena/devices"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "arena/system"
)

// Topics provides builders for arena MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceControl("target-07")
//	// Returns: "arena/devices/target-07/control"
type Topics struct{}

// DeviceStatus returns the topic a device publishes status payloads on.
//
// Example: arena/devices/target-07/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, deviceID)
}

// DeviceHeartbeat returns the topic a device publishes heartbeats on.
//
// Example: arena/devices/target-07/heartbeat
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", TopicPrefixDevices, deviceID)
}

// DeviceHit returns the topic a device publishes hit events on.
//
// Example: arena/devices/target-07/hit
func (Topics) DeviceHit(deviceID string) string {
	return fmt.Sprintf("%s/%s/hit", TopicPrefixDevices, deviceID)
}

// DeviceControl returns the topic for control commands to a device.
//
// Example: arena/devices/target-07/control
func (Topics) DeviceControl(deviceID string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixDevices, deviceID)
}

// DeviceLED returns the topic for LED commands to a device.
//
// Example: arena/devices/target-07/led
func (Topics) DeviceLED(deviceID string) string {
	return fmt.Sprintf("%s/%s/led", TopicPrefixDevices, deviceID)
}

// DeviceConfig returns the topic for configuration updates to a device.
//
// Example: arena/devices/target-07/config
func (Topics) DeviceConfig(deviceID string) string {
	return fmt.Sprintf("%s/%s/config", TopicPrefixDevices, deviceID)
}

// SystemStatus returns the core's own status topic, also used as LWT.
//
// Example: arena/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStatus returns a pattern matching status from every device.
//
// Pattern: arena/devices/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevices)
}

// AllDeviceHeartbeats returns a pattern matching heartbeats from every device.
//
// Pattern: arena/devices/+/heartbeat
func (Topics) AllDeviceHeartbeats() string {
	return fmt.Sprintf("%s/+/heartbeat", TopicPrefixDevices)
}

// AllDeviceHits returns a pattern matching hit events from every device.
//
// Pattern: arena/devices/+/hit
func (Topics) AllDeviceHits() string {
	return fmt.Sprintf("%s/+/hit", TopicPrefixDevices)
}

// ParseDeviceTopic extracts the device ID and channel from a device topic.
//
// For "arena/devices/target-07/hit" it returns ("target-07", "hit", true).
// Topics outside the device namespace return ok=false.
func ParseDeviceTopic(topic string) (deviceID, channel string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevices+"/")
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
