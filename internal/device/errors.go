package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose
	// coordinator and address combination already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidArchetype is returned when a device type is not recognised.
	ErrInvalidArchetype = errors.New("device: invalid archetype")

	// ErrInvalidAddress is returned when an address is empty or malformed.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrNotGroup is returned when a group operation targets a device
	// that is not a group archetype.
	ErrNotGroup = errors.New("device: not a group")
)
