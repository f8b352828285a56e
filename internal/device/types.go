package device

import "time"

// Archetype classifies a device by the platform behaviour it exposes.
// The archetype selects which property handlers run when a report
// arrives for the device.
type Archetype string

const (
	ArchetypeBlind             Archetype = "blind"
	ArchetypeButton            Archetype = "button"
	ArchetypeContactSensor     Archetype = "contactSensor"
	ArchetypeDimmer            Archetype = "dimmer"
	ArchetypeHumiditySensor    Archetype = "humiditySensor"
	ArchetypeIlluminanceSensor Archetype = "illuminanceSensor"
	ArchetypeMotionSensor      Archetype = "motionSensor"
	ArchetypeMultiOutlet       Archetype = "multiOutlet"
	ArchetypeMultiSensor       Archetype = "multiSensor"
	ArchetypeMultiSocket       Archetype = "multiSocket"
	ArchetypeOutlet            Archetype = "outlet"
	ArchetypePresenceSensor    Archetype = "presenceSensor"
	ArchetypeRadarSensor       Archetype = "radarSensor"
	ArchetypeTemperatureSensor Archetype = "temperatureSensor"
	ArchetypeThermostat        Archetype = "thermostat"
	ArchetypeVibrationSensor   Archetype = "vibrationSensor"

	// Group archetypes represent zigbee2mqtt groups rather than
	// physical devices. They reuse the outlet and dimmer handler sets.
	ArchetypeGroupRelay  Archetype = "groupRelay"
	ArchetypeGroupDimmer Archetype = "groupDimmer"

	// ArchetypeSecondary marks a child device that receives a single
	// routed property (temperature, humidity, voltage and so on) from
	// its parent.
	ArchetypeSecondary Archetype = "secondary"

	// ArchetypeCoordinator is the platform record for the mesh
	// coordinator itself. It carries connection state, never reports.
	ArchetypeCoordinator Archetype = "coordinator"
)

// AllArchetypes returns every recognised archetype.
func AllArchetypes() []Archetype {
	return []Archetype{
		ArchetypeBlind,
		ArchetypeButton,
		ArchetypeContactSensor,
		ArchetypeDimmer,
		ArchetypeHumiditySensor,
		ArchetypeIlluminanceSensor,
		ArchetypeMotionSensor,
		ArchetypeMultiOutlet,
		ArchetypeMultiSensor,
		ArchetypeMultiSocket,
		ArchetypeOutlet,
		ArchetypePresenceSensor,
		ArchetypeRadarSensor,
		ArchetypeTemperatureSensor,
		ArchetypeThermostat,
		ArchetypeVibrationSensor,
		ArchetypeGroupRelay,
		ArchetypeGroupDimmer,
		ArchetypeSecondary,
		ArchetypeCoordinator,
	}
}

// IsGroup reports whether the archetype represents a zigbee2mqtt group.
func (a Archetype) IsGroup() bool {
	return a == ArchetypeGroupRelay || a == ArchetypeGroupDimmer
}

// StateImage selects the icon shown against a device in UIs.
type StateImage string

const (
	StateImageNone       StateImage = ""
	StateImageSensorOn   StateImage = "SensorOn"
	StateImageSensorOff  StateImage = "SensorOff"
	StateImageDimmerOn   StateImage = "DimmerOn"
	StateImageDimmerOff  StateImage = "DimmerOff"
	StateImagePowerOn    StateImage = "PowerOn"
	StateImagePowerOff   StateImage = "PowerOff"
	StateImageTimerOn    StateImage = "TimerOn"
	StateImageMotionOn   StateImage = "MotionSensorTripped"
	StateImageMotionOff  StateImage = "MotionSensor"
	StateImageEnergy     StateImage = "EnergyMeterOn"
	StateImageBatteryLow StateImage = "BatteryLevelLow"
)

// State holds a single stored state value plus an optional
// human-readable rendering of it.
type State struct {
	Value any    `json:"value"`
	UI    string `json:"ui"`
}

// States is the persisted state map of a device, keyed by state name.
type States map[string]State

// StateUpdate is one entry in a batched state write.
type StateUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	UI    string `json:"ui,omitempty"`
}

// PropertyTarget selects where a routed sensor property lands.
type PropertyTarget string

const (
	// TargetMain writes the property to the device's main UI state.
	TargetMain PropertyTarget = "main"
	// TargetAdditional writes the property to a named additional state
	// on the primary device. This is the default for most properties.
	TargetAdditional PropertyTarget = "additional"
	// TargetSecondary routes the property to a linked secondary device.
	TargetSecondary PropertyTarget = "secondary"
)

// PropertySetting configures how one reported property is handled for
// a device. Absent settings mean the property is not enabled.
type PropertySetting struct {
	Enabled       bool           `json:"enabled"`
	Target        PropertyTarget `json:"target,omitempty"`
	SecondaryID   int            `json:"secondary_id,omitempty"`
	DecimalPlaces int            `json:"decimal_places,omitempty"`
	Units         string         `json:"units,omitempty"`
	HideBroadcast bool           `json:"hide_broadcast,omitempty"`

	// Conversion applies to temperature-like properties.
	// Recognised values: "C", "F", "C>F", "F>C".
	Conversion string `json:"conversion,omitempty"`
}

// Config is the per-device runtime configuration. Property settings
// are keyed by the zigbee2mqtt property name ("temperature", "power",
// "state_l2" and so on).
type Config struct {
	Properties map[string]PropertySetting `json:"properties,omitempty"`

	// NumberOfButtons bounds the button index accepted by action
	// reports. Zero means unconfigured.
	NumberOfButtons int `json:"number_of_buttons,omitempty"`

	// SupportsWhite marks a dimmer that mirrors brightness into a
	// white channel level.
	SupportsWhite bool `json:"supports_white,omitempty"`

	// Power reporting hysteresis. Minimum is the floor below which
	// readings are of no interest, Hysteresis the width of the band
	// around the last reported value.
	PowerMinimum    float64 `json:"power_minimum,omitempty"`
	PowerHysteresis float64 `json:"power_hysteresis,omitempty"`

	// Endpoint names the state channel a secondary outlet drives on
	// its parent ("l2" through "l5", "left", "right"). Empty for
	// standalone devices.
	Endpoint string `json:"endpoint,omitempty"`

	// ParentID links a secondary device back to its primary. Commands
	// for an endpoint are published against the parent's friendly name.
	ParentID int `json:"parent_id,omitempty"`
}

// Property looks up the setting for a named property. The second
// return is false when no setting exists.
func (c Config) Property(name string) (PropertySetting, bool) {
	s, ok := c.Properties[name]
	return s, ok
}

// PropertyEnabled reports whether a property is configured and enabled.
func (c Config) PropertyEnabled(name string) bool {
	s, ok := c.Properties[name]
	return ok && s.Enabled
}

// Device is a platform device record. Physical devices are keyed by
// their IEEE address within a coordinator; group devices use the
// zigbee2mqtt group ID rendered as a decimal string.
type Device struct {
	ID            int        `json:"id"`
	CoordinatorID int        `json:"coordinator_id"`
	Address       string     `json:"address"`
	Name          string     `json:"name"`
	Type          Archetype  `json:"type"`
	Model         string     `json:"model,omitempty"`
	Vendor        string     `json:"vendor,omitempty"`
	Config        Config     `json:"config"`
	States        States     `json:"states"`
	Enabled       bool       `json:"enabled"`
	ErrorState    string     `json:"error_state,omitempty"`
	StateImage    StateImage `json:"state_image,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StateValue returns the stored value for a state key, or nil when the
// key has never been written.
func (d *Device) StateValue(key string) any {
	if d.States == nil {
		return nil
	}
	s, ok := d.States[key]
	if !ok {
		return nil
	}
	return s.Value
}

// HasState reports whether a state key exists on the device.
func (d *Device) HasState(key string) bool {
	_, ok := d.States[key]
	return ok
}

// DeepCopy returns an independent copy of the device. Callers can
// mutate the copy without affecting cached instances.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cp := *d

	if d.States != nil {
		cp.States = make(States, len(d.States))
		for k, v := range d.States {
			cp.States[k] = State{Value: deepCopyValue(v.Value), UI: v.UI}
		}
	}

	if d.Config.Properties != nil {
		cp.Config.Properties = make(map[string]PropertySetting, len(d.Config.Properties))
		for k, v := range d.Config.Properties {
			cp.Config.Properties[k] = v
		}
	}

	if d.LastSeen != nil {
		t := *d.LastSeen
		cp.LastSeen = &t
	}

	return &cp
}

// deepCopyValue copies JSON-shaped values. Maps and slices are copied
// recursively; scalars are returned as-is.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, item := range val {
			cp[k] = deepCopyValue(item)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		return v
	}
}
