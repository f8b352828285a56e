package zigbee

import "errors"

// Domain errors for the zigbee bridge package.
var (
	// ErrMalformedPayload is returned when a message payload is not
	// valid JSON or lacks a required field.
	ErrMalformedPayload = errors.New("zigbee: malformed payload")

	// ErrUnknownDevice is returned when a friendly name or IEEE address
	// is not present in the mesh topology.
	ErrUnknownDevice = errors.New("zigbee: unknown device")

	// ErrUnknownGroup is returned when a group friendly name is not
	// present in the mesh topology.
	ErrUnknownGroup = errors.New("zigbee: unknown group")

	// ErrUnlinkedDevice is returned when a mesh device has no platform
	// device record.
	ErrUnlinkedDevice = errors.New("zigbee: device not linked")

	// ErrMissingSecondary is returned when a property routes to a
	// secondary device that does not exist.
	ErrMissingSecondary = errors.New("zigbee: missing secondary device")

	// ErrCoercionFailed is returned when a payload value cannot be
	// coerced to the expected numeric type.
	ErrCoercionFailed = errors.New("zigbee: value coercion failed")

	// ErrUnsupportedArchetype is returned when a command does not apply
	// to the target device's archetype.
	ErrUnsupportedArchetype = errors.New("zigbee: unsupported archetype")

	// ErrQueueFull is returned when the dispatch queue cannot accept
	// another message.
	ErrQueueFull = errors.New("zigbee: dispatch queue full")

	// ErrNotRunning is returned when an operation requires a started
	// bridge.
	ErrNotRunning = errors.New("zigbee: bridge not running")
)
