package device

import "fmt"

const maxNameLength = 100

var validArchetypes map[Archetype]struct{}

func init() {
	validArchetypes = make(map[Archetype]struct{}, len(AllArchetypes()))
	for _, a := range AllArchetypes() {
		validArchetypes[a] = struct{}{}
	}
}

// Validate checks that a device record is well formed before it is
// persisted.
func Validate(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if d.Name == "" || len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	if d.Address == "" {
		return ErrInvalidAddress
	}
	if d.CoordinatorID <= 0 {
		return fmt.Errorf("%w: coordinator id %d", ErrInvalidDevice, d.CoordinatorID)
	}
	if _, ok := validArchetypes[d.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidArchetype, d.Type)
	}
	for name, setting := range d.Config.Properties {
		if name == "" {
			return fmt.Errorf("%w: empty property name", ErrInvalidDevice)
		}
		switch setting.Target {
		case "", TargetMain, TargetAdditional, TargetSecondary:
		default:
			return fmt.Errorf("%w: property %q target %q", ErrInvalidDevice, name, setting.Target)
		}
		if setting.Target == TargetSecondary && setting.SecondaryID <= 0 {
			return fmt.Errorf("%w: property %q has secondary target without secondary id", ErrInvalidDevice, name)
		}
	}
	return nil
}
