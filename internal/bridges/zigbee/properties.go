package zigbee

import (
	"context"
	"fmt"
	"time"

	"github.com/graymesh/zigbee-core/internal/device"
)

// propertyHandler processes one reported property for a message.
// Handlers are idempotent and skip silently when the property is
// absent from the payload, disabled in config, or routed nowhere.
type propertyHandler func(*Mapper, *report)

// archetypeHandlers is the static dispatch table, built once. The
// last_seen handler runs before this table for every archetype.
// Handler order within an archetype is fixed and observable through
// the batched write order.
var archetypeHandlers = map[device.Archetype][]propertyHandler{
	device.ArchetypeBlind: {
		(*Mapper).handleLinkQuality,
		(*Mapper).handlePosition,
		(*Mapper).handleState,
		(*Mapper).handleTemperature,
	},
	device.ArchetypeButton: {
		(*Mapper).handleAction,
		(*Mapper).handleBattery,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeContactSensor: {
		(*Mapper).handleBattery,
		(*Mapper).handleContact,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleTamper,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeDimmer: {
		(*Mapper).handleBrightness,
		(*Mapper).handleColorMode,
		(*Mapper).handleColor,
		(*Mapper).handleColorTemp,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleState,
	},
	device.ArchetypeHumiditySensor: {
		(*Mapper).handleBattery,
		(*Mapper).handleHumidity,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleTemperature,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeMotionSensor: {
		(*Mapper).handleBattery,
		(*Mapper).handleHumidity,
		(*Mapper).handleIlluminance,
		(*Mapper).handleOccupancy,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleTemperature,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeMultiOutlet: {
		(*Mapper).handleLinkQuality,
		(*Mapper).handleMultiState,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeMultiSocket: {
		(*Mapper).handleLinkQuality,
		(*Mapper).handleMultiState,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeMultiSensor: {
		(*Mapper).handleBattery,
		(*Mapper).handleHumidity,
		(*Mapper).handleIlluminance,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleOccupancy,
		(*Mapper).handleTemperature,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeOutlet: {
		(*Mapper).handleEnergy,
		(*Mapper).handleLinkQuality,
		(*Mapper).handlePower,
		(*Mapper).handleState,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeRadarSensor: {
		(*Mapper).handleIlluminance,
		(*Mapper).handleRadar,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleTemperature,
	},
	device.ArchetypeTemperatureSensor: {
		(*Mapper).handleBattery,
		(*Mapper).handleHumidity,
		(*Mapper).handleLinkQuality,
		(*Mapper).handlePressure,
		(*Mapper).handleTemperature,
		(*Mapper).handleVoltage,
	},
	device.ArchetypeVibrationSensor: {
		(*Mapper).handleBattery,
		(*Mapper).handleVibration,
		(*Mapper).handleLinkQuality,
		(*Mapper).handleTamper,
	},
	device.ArchetypeGroupRelay: {
		(*Mapper).handleState,
	},
	device.ArchetypeGroupDimmer: {
		(*Mapper).handleBrightness,
		(*Mapper).handleColorMode,
		(*Mapper).handleColor,
		(*Mapper).handleColorTemp,
		(*Mapper).handleState,
	},

	// These archetypes receive reports but map no properties yet.
	device.ArchetypeIlluminanceSensor: nil,
	device.ArchetypePresenceSensor:    nil,
	device.ArchetypeThermostat:        nil,
}

func handlersFor(a device.Archetype) []propertyHandler {
	return archetypeHandlers[a]
}

// handleLastSeen runs before the archetype table for every message.
func (m *Mapper) handleLastSeen(r *report) {
	v, ok := r.value("last_seen")
	if !ok {
		return
	}

	var seen time.Time
	if ms, ok := coerceFloat(v); ok {
		seen = time.UnixMilli(int64(ms)).UTC()
	} else if s, ok := coerceString(v); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			m.log.Warn("invalid last_seen value", "device", r.primary.Name, "value", s)
			return
		}
		seen = t.UTC()
	} else {
		return
	}

	rendered := seen.Format("2006-01-02 15:04:05")
	if changed(r.primary, r.batch, "lastSeen", rendered, rendered) {
		r.batch.add(r.primary.ID, "lastSeen", rendered, rendered)
	}
	r.lastSeen = seen
}

func (m *Mapper) handleBattery(r *report) {
	v, ok := r.value("battery")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("battery")
	if !ok || !setting.Enabled {
		return
	}
	f, ok := coerceFloat(v)
	if !ok {
		m.log.Warn("invalid battery value", "device", r.primary.Name, "value", v)
		return
	}
	level := int(f)
	ui := fmt.Sprintf("%d%%", level)
	if !changed(r.primary, r.batch, "batteryLevel", level, ui) {
		return
	}
	r.batch.add(r.primary.ID, "batteryLevel", level, ui)
	if !setting.HideBroadcast {
		m.log.Info("received battery level", "device", r.primary.Name, "level", ui)
	}
}

func (m *Mapper) handleBrightness(r *report) {
	v, ok := r.value("brightness")
	if !ok {
		return
	}
	raw, ok := coerceFloat(v)
	if !ok {
		m.log.Warn("invalid brightness value", "device", r.primary.Name, "value", v)
		return
	}

	pct := brightness255ToPercent(int(raw))
	if s, ok := coerceString(r.payload["state"]); ok && s == "OFF" {
		pct = 0
	}

	prev, hadPrev := coerceFloat(r.primary.StateValue("brightnessLevel"))
	ui := fmt.Sprintf("%d", pct)
	if changed(r.primary, r.batch, "brightnessLevel", pct, ui) {
		r.batch.add(r.primary.ID, "brightnessLevel", pct, ui)
		if r.primary.Config.SupportsWhite {
			r.batch.add(r.primary.ID, "whiteLevel", pct, ui)
		}

		verb := "set"
		if hadPrev {
			if float64(pct) > prev {
				verb = "brighten"
			} else if float64(pct) < prev {
				verb = "dim"
			}
		}
		m.log.Info("received brightness", "device", r.primary.Name, "action", verb, "level", pct)
	}

	image := device.StateImageDimmerOff
	if pct > 0 {
		image = device.StateImageDimmerOn
	}
	m.setImage(r, r.primary.ID, image)
}

func (m *Mapper) handleColorMode(r *report) {
	v, ok := r.value("color_mode")
	if !ok {
		return
	}
	mode, ok := coerceString(v)
	if !ok {
		return
	}
	switch mode {
	case "xy":
		mode = "color_rgb"
	case "color_temp":
	}
	// Mode transitions are always recorded, even when unchanged.
	r.batch.add(r.primary.ID, "colorMode", mode, mode)
}

func (m *Mapper) handleColor(r *report) {
	if mode, ok := coerceString(r.payload["color_mode"]); !ok || mode == "color_temp" {
		return
	}
	colorObj, ok := r.payload["color"].(map[string]any)
	if !ok {
		return
	}
	hue, okH := coerceFloat(colorObj["hue"])
	sat, okS := coerceFloat(colorObj["saturation"])
	bri, okB := coerceFloat(r.payload["brightness"])
	if !okH || !okS || !okB {
		return
	}

	red, green, blue := hsvToRGB(hue/360, sat/255, bri/255)
	levels := []struct {
		key   string
		value int
	}{
		{"redLevel", int(red * 100)},
		{"greenLevel", int(green * 100)},
		{"blueLevel", int(blue * 100)},
	}
	for _, l := range levels {
		ui := fmt.Sprintf("%d", l.value)
		if changed(r.primary, r.batch, l.key, l.value, ui) {
			r.batch.add(r.primary.ID, l.key, l.value, ui)
		}
	}
}

func (m *Mapper) handleColorTemp(r *report) {
	if mode, ok := coerceString(r.payload["color_mode"]); !ok || mode != "color_temp" {
		return
	}
	mired, ok := coerceFloat(r.payload["color_temp"])
	if !ok || mired <= 0 {
		return
	}
	if !r.has("brightness") {
		return
	}

	kelvin := miredToKelvin(mired)
	ui := fmt.Sprintf("%d°K", kelvin)
	if changed(r.primary, r.batch, "whiteTemperature", kelvin, ui) {
		r.batch.add(r.primary.ID, "whiteTemperature", kelvin, ui)
	}
}

func (m *Mapper) handleContact(r *report) {
	v, ok := r.value("contact")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("contact")
	if !ok || !setting.Enabled {
		return
	}
	contact, ok := coerceBool(v)
	if !ok {
		m.log.Warn("invalid contact value", "device", r.primary.Name, "value", v)
		return
	}

	// Contact closed means the sensed circuit is at rest, reported off.
	open := !contact
	ui := "closed"
	if open {
		ui = "open"
	}
	if !changed(r.primary, r.batch, "onOffState", open, ui) {
		return
	}
	r.batch.add(r.primary.ID, "onOffState", open, ui)

	image := device.StateImageSensorOff
	if open {
		image = device.StateImageSensorOn
	}
	m.setImage(r, r.primary.ID, image)

	if !setting.HideBroadcast {
		m.log.Info("received contact event", "device", r.primary.Name, "state", ui)
	}
}

func (m *Mapper) handleEnergy(r *report) {
	v, ok := r.value("energy")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("energy")
	if !ok || !setting.Enabled {
		return
	}
	energy, ok := coerceFloat(v)
	if !ok {
		m.log.Warn("invalid energy value", "device", r.primary.Name, "value", v)
		return
	}

	units := setting.Units
	if units == "" {
		units = "kWh"
	}
	value, ui := formatValue(energy, setting.DecimalPlaces, units, oneSpaceBeforeUnits)
	if changed(r.primary, r.batch, "accumEnergyTotal", value, ui) {
		r.batch.add(r.primary.ID, "accumEnergyTotal", value, ui)
	}
}

func (m *Mapper) handleHumidity(r *report) {
	v, ok := r.value("humidity")
	if !ok {
		return
	}
	target, stateKey, setting, ok := m.target(r, "humidity", "humidity")
	if !ok {
		return
	}
	humidity, ok := coerceFloat(v)
	if !ok {
		m.log.Warn("invalid humidity value", "device", r.primary.Name, "value", v)
		return
	}

	value, ui := formatValue(humidity, setting.DecimalPlaces, "%", oneSpaceBeforeUnits)
	if !changed(target, r.batch, stateKey, value, ui) {
		return
	}
	r.batch.add(target.ID, stateKey, value, ui)
	if !setting.HideBroadcast {
		m.log.Info("received humidity", "device", target.Name, "value", ui)
	}
}

func (m *Mapper) handleIlluminance(r *report) {
	v, ok := r.value("illuminance_lux")
	if !ok {
		if v, ok = r.value("illuminance"); !ok {
			return
		}
	}
	target, stateKey, setting, ok := m.target(r, "illuminance", "illuminance")
	if !ok {
		return
	}
	lux, ok := coerceFloat(v)
	if !ok {
		m.log.Warn("invalid illuminance value", "device", r.primary.Name, "value", v)
		return
	}

	units := setting.Units
	if units == "" {
		units = "lux"
	}
	value, ui := formatValue(lux, setting.DecimalPlaces, units, oneSpaceBeforeUnits)
	if !changed(target, r.batch, stateKey, value, ui) {
		return
	}
	r.batch.add(target.ID, stateKey, value, ui)
	if !setting.HideBroadcast {
		m.log.Info("received illuminance", "device", target.Name, "value", ui)
	}
}

func (m *Mapper) handleLinkQuality(r *report) {
	v, ok := r.value("linkquality")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("link_quality")
	if !ok || !setting.Enabled {
		return
	}
	lqi, ok := coerceFloat(v)
	if !ok {
		return
	}

	// Link quality is noisy by nature; written on every report.
	value := int(lqi)
	r.batch.add(r.primary.ID, "linkQuality", value, fmt.Sprintf("%d", value))
}

// multiStateEndpoints maps multi-channel archetypes to their
// zigbee2mqtt endpoint suffixes. The first endpoint drives the primary
// device; the rest route to configured secondaries.
var multiStateEndpoints = map[device.Archetype][]string{
	device.ArchetypeMultiOutlet: {"l1", "l2", "l3", "l4", "l5"},
	device.ArchetypeMultiSocket: {"left", "right"},
}

func (m *Mapper) handleMultiState(r *report) {
	endpoints := multiStateEndpoints[r.primary.Type]
	for i, endpoint := range endpoints {
		key := "state_" + endpoint
		v, ok := r.value(key)
		if !ok {
			continue
		}
		s, ok := coerceString(v)
		if !ok {
			continue
		}
		on := s == "ON"
		ui := "off"
		if on {
			ui = "on"
		}

		target := r.primary
		var setting device.PropertySetting
		if i == 0 {
			setting, _ = r.primary.Config.Property(key)
		} else {
			var found bool
			setting, found = r.primary.Config.Property(key)
			if !found || !setting.Enabled || setting.SecondaryID == 0 {
				continue
			}
			sec, found := m.secondary(r, setting.SecondaryID)
			if !found || !sec.Enabled {
				continue
			}
			target = sec
		}

		if !changed(target, r.batch, "onOffState", on, ui) {
			continue
		}
		r.batch.add(target.ID, "onOffState", on, ui)

		image := device.StateImagePowerOff
		if on {
			image = device.StateImagePowerOn
		}
		m.setImage(r, target.ID, image)

		if !setting.HideBroadcast {
			m.log.Info("received outlet state", "device", target.Name, "endpoint", endpoint, "state", ui)
		}
	}
}

func (m *Mapper) handleOccupancy(r *report) {
	v, ok := r.value("occupancy")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("occupancy")
	if !ok || !setting.Enabled {
		return
	}
	occupied, ok := coerceBool(v)
	if !ok {
		m.log.Warn("invalid occupancy value", "device", r.primary.Name, "value", v)
		return
	}

	ui := "off"
	if occupied {
		ui = "on"
	}
	if !changed(r.primary, r.batch, "onOffState", occupied, ui) {
		return
	}
	r.batch.add(r.primary.ID, "onOffState", occupied, ui)

	image := device.StateImageMotionOff
	if occupied {
		image = device.StateImageMotionOn
	}
	m.setImage(r, r.primary.ID, image)

	if !setting.HideBroadcast {
		m.log.Info("received motion event", "device", r.primary.Name, "state", ui)
	}
}

func (m *Mapper) handlePosition(r *report) {
	v, ok := r.value("position")
	if !ok {
		return
	}
	pos, ok := coerceInt(v)
	if !ok {
		f, okF := coerceFloat(v)
		if !okF {
			m.log.Warn("invalid position value", "device", r.primary.Name, "value", v)
			return
		}
		pos = int(f)
	}

	var ui string
	switch {
	case pos <= 0:
		ui = "closed"
	case pos >= 100:
		ui = "open"
	default:
		ui = fmt.Sprintf("%d%%", pos)
	}

	prev, hadPrev := coerceFloat(r.primary.StateValue("brightnessLevel"))
	if changed(r.primary, r.batch, "brightnessLevel", pos, ui) {
		r.batch.add(r.primary.ID, "brightnessLevel", pos, ui)

		switch {
		case pos <= 0:
			m.log.Info("blind moved to closed", "device", r.primary.Name)
		case pos >= 100:
			m.log.Info("blind moved to fully open", "device", r.primary.Name)
		case hadPrev && float64(pos) > prev:
			m.log.Info("blind opening", "device", r.primary.Name, "position", ui)
		default:
			m.log.Info("blind closing", "device", r.primary.Name, "position", ui)
		}
	}

	image := device.StateImageDimmerOff
	if pos > 0 {
		image = device.StateImageDimmerOn
	}
	m.setImage(r, r.primary.ID, image)
}

func (m *Mapper) handlePower(r *report) {
	v, ok := r.value("power")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("power")
	if !ok || !setting.Enabled {
		return
	}
	power, ok := coerceFloat(v)
	if !ok {
		m.log.Warn("invalid power value", "device", r.primary.Name, "value", v)
		return
	}

	min := r.primary.Config.PowerMinimum
	hysteresis := r.primary.Config.PowerHysteresis
	if hysteresis <= 0 {
		hysteresis = 6
	}
	half := hysteresis / 2

	m.powerMu.Lock()
	prev, havePrev := m.powerPrev[r.primary.ID]
	m.powerMu.Unlock()
	if !havePrev {
		if stored, ok := coerceFloat(r.primary.StateValue("curEnergyLevel")); ok {
			prev = stored
		}
	}

	lo := prev - half
	if lo < 0 {
		lo = 0
	}
	hi := prev + half

	outside := power < lo || power > hi
	if !outside {
		return
	}
	// A crossing reports when either side of it clears the floor, so a
	// drop from a reportable level to near zero is still seen.
	if power < min && prev < min {
		return
	}

	units := setting.Units
	if units == "" {
		units = "W"
	}
	value, ui := formatValue(power, setting.DecimalPlaces, units, oneSpaceBeforeUnits)
	r.batch.add(r.primary.ID, "curEnergyLevel", value, ui)

	m.powerMu.Lock()
	if m.powerPrev == nil {
		m.powerPrev = make(map[int]float64)
	}
	m.powerPrev[r.primary.ID] = power
	m.powerMu.Unlock()

	if !setting.HideBroadcast {
		m.log.Info("received power level", "device", r.primary.Name, "value", ui)
	}
}

func (m *Mapper) handlePressure(r *report) {
	v, ok := r.value("pressure")
	if !ok {
		return
	}
	target, stateKey, setting, ok := m.target(r, "pressure", "pressure")
	if !ok {
		return
	}
	pressure, okP := coerceFloat(v)
	if !okP {
		m.log.Warn("invalid pressure value", "device", r.primary.Name, "value", v)
		return
	}

	units := setting.Units
	if units == "" {
		units = "hPa"
	}
	value, ui := formatValue(pressure, setting.DecimalPlaces, units, oneSpaceBeforeUnits)
	if !changed(target, r.batch, stateKey, value, ui) {
		return
	}
	r.batch.add(target.ID, stateKey, value, ui)
	if !setting.HideBroadcast {
		m.log.Info("received pressure", "device", target.Name, "value", ui)
	}
}

func (m *Mapper) handleRadar(r *report) {
	setting, ok := r.primary.Config.Property("radar")
	if !ok || !setting.Enabled {
		return
	}

	presence, hasPresence := coerceBool(r.payload["presence"])
	event, hasEvent := coerceString(r.payload["presence_event"])
	if !hasPresence && !hasEvent {
		return
	}

	on := presence
	switch event {
	case "enter", "left_enter", "right_enter", "approach":
		on = true
	}

	ui := "off"
	if on {
		ui = "on"
	}
	if changed(r.primary, r.batch, "onOffState", on, ui) {
		r.batch.add(r.primary.ID, "onOffState", on, ui)
	}
	if hasPresence && changed(r.primary, r.batch, "presence", presence, ui) {
		r.batch.add(r.primary.ID, "presence", presence, ui)
	}
	if hasEvent && changed(r.primary, r.batch, "presenceEvent", event, event) {
		r.batch.add(r.primary.ID, "presenceEvent", event, event)
	}

	image := device.StateImageMotionOff
	if on {
		image = device.StateImageMotionOn
	}
	m.setImage(r, r.primary.ID, image)
}

func (m *Mapper) handleState(r *report) {
	v, ok := r.value("state")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("state")
	if !ok || !setting.Enabled {
		return
	}
	s, ok := coerceString(v)
	if !ok {
		m.log.Warn("invalid state value", "device", r.primary.Name, "value", v)
		return
	}

	on := s == "ON"
	ui := "off"
	if on {
		ui = "on"
	}
	if !changed(r.primary, r.batch, "onOffState", on, ui) {
		return
	}
	r.batch.add(r.primary.ID, "onOffState", on, ui)

	dimmer := r.primary.Type == device.ArchetypeDimmer || r.primary.Type == device.ArchetypeGroupDimmer
	if dimmer && !on {
		r.batch.add(r.primary.ID, "brightnessLevel", 0, "0")
		if r.primary.Config.SupportsWhite {
			r.batch.add(r.primary.ID, "whiteLevel", 0, "0")
		}
	}

	var image device.StateImage
	switch {
	case dimmer && on:
		image = device.StateImageDimmerOn
	case dimmer:
		image = device.StateImageDimmerOff
	case on:
		image = device.StateImagePowerOn
	default:
		image = device.StateImagePowerOff
	}
	m.setImage(r, r.primary.ID, image)

	if !setting.HideBroadcast {
		m.log.Info("received state", "device", r.primary.Name, "state", ui)
	}
}

func (m *Mapper) handleTamper(r *report) {
	v, ok := r.value("tamper")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("tamper")
	if !ok || !setting.Enabled {
		return
	}
	tampered, ok := coerceBool(v)
	if !ok {
		return
	}

	ui := "off"
	if tampered {
		ui = "on"
	}
	// Tamper alarms are always rewritten, never change-filtered.
	r.batch.add(r.primary.ID, "tamper", tampered, ui)
}

func (m *Mapper) handleTemperature(r *report) {
	v, ok := r.value("device_temperature")
	if !ok {
		if v, ok = r.value("temperature"); !ok {
			return
		}
	}
	target, stateKey, setting, ok := m.target(r, "temperature", "temperature")
	if !ok {
		return
	}
	temperature, okT := coerceFloat(v)
	if !okT {
		m.log.Warn("invalid temperature value", "device", r.primary.Name, "value", v)
		return
	}

	unit := "°C"
	switch setting.Conversion {
	case "C>F":
		temperature = celsiusToFahrenheit(temperature)
		unit = "°F"
	case "F>C":
		temperature = fahrenheitToCelsius(temperature)
	case "F":
		unit = "°F"
	}

	value, ui := formatValue(temperature, setting.DecimalPlaces, unit, oneSpaceBeforeUnits)
	if !changed(target, r.batch, stateKey, value, ui) {
		return
	}
	r.batch.add(target.ID, stateKey, value, ui)
	if !setting.HideBroadcast {
		m.log.Info("received temperature", "device", target.Name, "value", ui)
	}
}

func (m *Mapper) handleVibration(r *report) {
	v, ok := r.value("vibration")
	if !ok {
		return
	}
	setting, ok := r.primary.Config.Property("vibration")
	if !ok || !setting.Enabled {
		return
	}
	vibrating, ok := coerceBool(v)
	if !ok {
		return
	}

	ui := "off"
	if vibrating {
		ui = "on"
	}
	r.batch.add(r.primary.ID, "onOffState", vibrating, ui)
	if !setting.HideBroadcast {
		m.log.Info("received vibration event", "device", r.primary.Name, "state", ui)
	}
}

func (m *Mapper) handleVoltage(r *report) {
	v, ok := r.value("voltage")
	if !ok {
		return
	}
	target, stateKey, setting, ok := m.target(r, "voltage", "voltage")
	if !ok {
		return
	}
	voltage, okV := coerceFloat(v)
	if !okV {
		m.log.Warn("invalid voltage value", "device", r.primary.Name, "value", v)
		return
	}

	units := setting.Units
	if units == "" {
		units = "Volts"
	}
	value, ui := formatValue(voltage, setting.DecimalPlaces, units, oneSpaceBeforeUnits)
	if !changed(target, r.batch, stateKey, value, ui) {
		return
	}
	r.batch.add(target.ID, stateKey, value, ui)
	if !setting.HideBroadcast {
		m.log.Info("received voltage", "device", target.Name, "value", ui)
	}
}

func (m *Mapper) handleAction(r *report) {
	v, ok := r.value("action")
	if !ok {
		return
	}
	action, ok := coerceString(v)
	if !ok || action == "" {
		return
	}

	button, event := parseAction(action)
	if limit := r.primary.Config.NumberOfButtons; limit > 0 && button > limit {
		m.log.Warn("action for unsupported button",
			"device", r.primary.Name, "button", button, "action", action)
		return
	}

	buttonKey := fmt.Sprintf("button_%d", button)
	buttonUI := "Button"
	if button > 1 {
		buttonUI = fmt.Sprintf("Button %d", button)
	}

	// Actions are momentary events and always re-report, so a repeated
	// identical press is still observable.
	r.batch.add(r.primary.ID, buttonKey, event, event)
	r.batch.add(r.primary.ID, "lastButtonPressed", button, buttonUI)
	m.setImage(r, r.primary.ID, device.StateImageSensorOn)

	setting, _ := r.primary.Config.Property("action")
	if !setting.HideBroadcast {
		m.log.Info("received button press",
			"device", r.primary.Name, "button", button, "action", event)
	}

	deviceID := r.primary.ID
	m.timers.schedule(deviceID, actionIdleDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		idle := []device.StateUpdate{{Key: buttonKey, Value: "idle", UI: "idle"}}
		if err := m.dir.BatchUpdateStates(ctx, deviceID, idle); err != nil {
			m.log.Warn("failed to reset button state", "device_id", deviceID, "error", err)
			return
		}
		if err := m.dir.UpdateStateImage(ctx, deviceID, device.StateImageSensorOff); err != nil {
			m.log.Warn("failed to reset state image", "device_id", deviceID, "error", err)
		}
	})
}

// setImage updates a device's UI image, logging failures only.
func (m *Mapper) setImage(r *report, deviceID int, image device.StateImage) {
	if err := m.dir.UpdateStateImage(r.ctx, deviceID, image); err != nil {
		m.log.Warn("failed to update state image", "device_id", deviceID, "error", err)
	}
}
