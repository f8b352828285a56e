package mqtt

import "fmt"

// DefaultRootTopic is the zigbee2mqtt base topic used when none is configured.
const DefaultRootTopic = "zigbee2mqtt"

// Topic suffixes appended to a device's friendly name topic.
const (
	// SuffixSet is the command suffix: publishing here changes device state.
	SuffixSet = "set"

	// SuffixGet is the query suffix: publishing here requests a state report.
	SuffixGet = "get"

	// SuffixAvailability carries the "online"/"offline" reachability payloads.
	SuffixAvailability = "availability"
)

// Topics builds zigbee2mqtt topic strings for a single mesh.
//
// Every zigbee2mqtt instance namespaces its traffic under a configurable
// root topic (one topic segment, default "zigbee2mqtt"). Device traffic
// lives at {root}/{friendlyName} with optional /set, /get and /availability
// suffixes; coordinator metadata lives under {root}/bridge.
//
//	topics := mqtt.Topics{Root: "zigbee2mqtt_garage"}
//	topics.DeviceSet("Plug1") // "zigbee2mqtt_garage/Plug1/set"
type Topics struct {
	Root string
}

// base returns the root topic, falling back to the default.
func (t Topics) base() string {
	if t.Root == "" {
		return DefaultRootTopic
	}
	return t.Root
}

// All returns the wildcard pattern matching every topic under the root.
//
// Pattern: zigbee2mqtt/#
func (t Topics) All() string {
	return t.base() + "/#"
}

// Device returns the state-report topic for a device.
//
// Example: zigbee2mqtt/Plug1
func (t Topics) Device(friendlyName string) string {
	return fmt.Sprintf("%s/%s", t.base(), friendlyName)
}

// DeviceSet returns the command topic for a device.
//
// Example: zigbee2mqtt/Plug1/set
func (t Topics) DeviceSet(friendlyName string) string {
	return fmt.Sprintf("%s/%s/%s", t.base(), friendlyName, SuffixSet)
}

// DeviceGet returns the state-query topic for a device.
//
// Example: zigbee2mqtt/Plug1/get
func (t Topics) DeviceGet(friendlyName string) string {
	return fmt.Sprintf("%s/%s/%s", t.base(), friendlyName, SuffixGet)
}

// DeviceAvailability returns the reachability topic for a device.
//
// Example: zigbee2mqtt/Plug1/availability
func (t Topics) DeviceAvailability(friendlyName string) string {
	return fmt.Sprintf("%s/%s/%s", t.base(), friendlyName, SuffixAvailability)
}

// Bridge returns the coordinator's own topic prefix.
//
// Example: zigbee2mqtt/bridge
func (t Topics) Bridge() string {
	return t.base() + "/bridge"
}

// BridgeDevices returns the retained device-inventory snapshot topic.
//
// Example: zigbee2mqtt/bridge/devices
func (t Topics) BridgeDevices() string {
	return t.Bridge() + "/devices"
}

// BridgeGroups returns the retained group-inventory snapshot topic.
//
// Example: zigbee2mqtt/bridge/groups
func (t Topics) BridgeGroups() string {
	return t.Bridge() + "/groups"
}

// BridgeState returns the coordinator online/offline topic.
//
// Example: zigbee2mqtt/bridge/state
func (t Topics) BridgeState() string {
	return t.Bridge() + "/state"
}

// BridgeInfo returns the coordinator metadata topic.
//
// Example: zigbee2mqtt/bridge/info
func (t Topics) BridgeInfo() string {
	return t.Bridge() + "/info"
}

// BridgeLogging returns the coordinator log-stream topic.
//
// Example: zigbee2mqtt/bridge/logging
func (t Topics) BridgeLogging() string {
	return t.Bridge() + "/logging"
}

// ServiceStatus returns the topic carrying this service's own
// online/offline status, outside any zigbee2mqtt root.
//
// Example: zigbeecore/status/zigbeecore-101
func ServiceStatus(clientID string) string {
	return fmt.Sprintf("zigbeecore/status/%s", clientID)
}
