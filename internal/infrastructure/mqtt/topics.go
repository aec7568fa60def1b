package mqtt

import "strings"

// Default topic roots.
const (
	// DefaultTopicPrefix roots every device status and command topic.
	DefaultTopicPrefix = "eLan"

	// DefaultDiscoveryPrefix is Home Assistant's discovery root.
	DefaultDiscoveryPrefix = "homeassistant"

	statusLevel       = "status"
	commandLevel      = "command"
	configLevel       = "config"
	availabilityLevel = "availability"
	bridgeNode        = "bridge"
)

// Topics builds the bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "eLan", DiscoveryPrefix: "homeassistant"}
//	topics.DeviceStatus("AA:BB")                  // "eLan/AA:BB/status"
//	topics.Discovery("sensor", "AA:BB", "battery") // "homeassistant/sensor/AA:BB/battery/config"
//
// A zero Topics uses the default prefixes.
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

func (t Topics) discoveryPrefix() string {
	if t.DiscoveryPrefix == "" {
		return DefaultDiscoveryPrefix
	}
	return t.DiscoveryPrefix
}

// DeviceStatus returns the retained state topic of a device.
//
// Example: eLan/AA:BB/status
func (t Topics) DeviceStatus(deviceID string) string {
	return t.prefix() + "/" + deviceID + "/" + statusLevel
}

// DeviceCommand returns the command topic of a device.
//
// Example: eLan/AA:BB/command
func (t Topics) DeviceCommand(deviceID string) string {
	return t.prefix() + "/" + deviceID + "/" + commandLevel
}

// Availability returns the bridge availability (LWT) topic.
//
// Example: eLan/bridge/availability
func (t Topics) Availability() string {
	return t.prefix() + "/" + bridgeNode + "/" + availabilityLevel
}

// Discovery returns a Home Assistant discovery config topic. An empty suffix
// yields the device's primary entity topic.
//
// Example: homeassistant/light/AA:BB/config
func (t Topics) Discovery(component, nodeID, suffix string) string {
	parts := []string{t.discoveryPrefix(), component, nodeID}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	parts = append(parts, configLevel)
	return strings.Join(parts, "/")
}

// ParseCommand extracts the device id from a command topic.
//
// The topic must have exactly three levels, the prefix, a non-empty id and
// "command". Anything else reports ok=false.
func (t Topics) ParseCommand(topic string) (deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != t.prefix() || parts[2] != commandLevel || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
