package zigbee

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/graymesh/zigbee-core/internal/device"
)

func testDimmer(id int, name string) *device.Device {
	return &device.Device{
		ID:            id,
		CoordinatorID: 1,
		Address:       "0xd1",
		Name:          name,
		Type:          device.ArchetypeDimmer,
		Enabled:       true,
		Config: device.Config{
			Properties: map[string]device.PropertySetting{
				"state":        {Enabled: true},
				"link_quality": {Enabled: true},
			},
		},
		States: device.States{},
	}
}

func TestMultiOutletFanOut(t *testing.T) {
	primary := &device.Device{
		ID:            10,
		CoordinatorID: 1,
		Address:       "0xm1",
		Name:          "PowerStrip",
		Type:          device.ArchetypeMultiOutlet,
		Enabled:       true,
		Config: device.Config{
			Properties: map[string]device.PropertySetting{
				"state_l1": {Enabled: true},
				"state_l2": {Enabled: true, SecondaryID: 11},
				// state_l3 deliberately unconfigured
			},
		},
		States: device.States{},
	}
	secondary := &device.Device{
		ID:            11,
		CoordinatorID: 1,
		Address:       "0xm1-l2",
		Name:          "PowerStrip Channel 2",
		Type:          device.ArchetypeSecondary,
		Enabled:       true,
		States:        device.States{},
	}

	dir := newFakeDirectory(primary, secondary)
	topo := linkedTopology("PowerStrip", "0xm1", 10)
	m := NewMapper(1, dir, topo, nil, nil, nil)
	defer m.Close()

	m.HandleDeviceMessage(context.Background(),
		deviceMsg("PowerStrip", `{"state_l1":"ON","state_l2":"OFF","state_l3":"ON"}`))

	first := dir.updatesFor(10, "onOffState")
	if len(first) != 1 || first[0].Value != true {
		t.Errorf("primary onOffState = %v, want one write of true", first)
	}
	second := dir.updatesFor(11, "onOffState")
	if len(second) != 1 || second[0].Value != false {
		t.Errorf("secondary onOffState = %v, want one write of false", second)
	}
	// The unconfigured endpoint lands nowhere.
	if got := dir.updatesFor(10, "onOffState"); len(got) != 1 {
		t.Errorf("unconfigured endpoint produced extra primary writes: %v", got)
	}
}

func TestActionReporting(t *testing.T) {
	button := &device.Device{
		ID:            10,
		CoordinatorID: 1,
		Address:       "0xb1",
		Name:          "WallSwitch",
		Type:          device.ArchetypeButton,
		Enabled:       true,
		Config: device.Config{
			NumberOfButtons: 2,
			Properties: map[string]device.PropertySetting{
				"action": {Enabled: true},
			},
		},
		States: device.States{},
	}
	dir := newFakeDirectory(button)
	topo := linkedTopology("WallSwitch", "0xb1", 10)
	m := NewMapper(1, dir, topo, nil, nil, nil)
	defer m.Close()

	// Identical presses always re-report; actions are momentary events.
	m.HandleDeviceMessage(context.Background(), deviceMsg("WallSwitch", `{"action":"single"}`))
	m.HandleDeviceMessage(context.Background(), deviceMsg("WallSwitch", `{"action":"single"}`))

	presses := dir.updatesFor(10, "button_1")
	if len(presses) != 2 {
		t.Fatalf("button_1 writes = %d, want 2", len(presses))
	}
	if presses[0].Value != "single" {
		t.Errorf("button_1 = %v, want single", presses[0].Value)
	}
	last := dir.updatesFor(10, "lastButtonPressed")
	if len(last) != 2 || last[0].Value != 1 || last[0].UI != "Button" {
		t.Errorf("lastButtonPressed = %v, want writes of 1/Button", last)
	}

	// Button index past the configured count is rejected.
	m.HandleDeviceMessage(context.Background(), deviceMsg("WallSwitch", `{"action":"3_double"}`))
	if got := dir.updatesFor(10, "button_3"); len(got) != 0 {
		t.Errorf("button_3 writes = %v, want none past NumberOfButtons", got)
	}
}

func TestTemperatureConversion(t *testing.T) {
	sensor := &device.Device{
		ID:            10,
		CoordinatorID: 1,
		Address:       "0xt1",
		Name:          "AtticSensor",
		Type:          device.ArchetypeTemperatureSensor,
		Enabled:       true,
		Config: device.Config{
			Properties: map[string]device.PropertySetting{
				"temperature": {Enabled: true, Conversion: "C>F", DecimalPlaces: 1},
			},
		},
		States: device.States{},
	}
	dir := newFakeDirectory(sensor)
	topo := linkedTopology("AtticSensor", "0xt1", 10)
	m := NewMapper(1, dir, topo, nil, nil, nil)
	defer m.Close()

	m.HandleDeviceMessage(context.Background(), deviceMsg("AtticSensor", `{"temperature":20}`))

	writes := dir.updatesFor(10, "temperature")
	if len(writes) != 1 {
		t.Fatalf("temperature writes = %d, want 1", len(writes))
	}
	if writes[0].Value != 68.0 || writes[0].UI != "68.0 °F" {
		t.Errorf("temperature = %v/%q, want 68/68.0 °F", writes[0].Value, writes[0].UI)
	}
}

func TestSecondaryRouting(t *testing.T) {
	makeSensor := func(secondaryID int) *device.Device {
		return &device.Device{
			ID:            10,
			CoordinatorID: 1,
			Address:       "0xt1",
			Name:          "CombiSensor",
			Type:          device.ArchetypeHumiditySensor,
			Enabled:       true,
			Config: device.Config{
				Properties: map[string]device.PropertySetting{
					"temperature": {
						Enabled:     true,
						Target:      device.TargetSecondary,
						SecondaryID: secondaryID,
					},
				},
			},
			States: device.States{},
		}
	}
	makeSecondary := func(enabled bool) *device.Device {
		return &device.Device{
			ID:            12,
			CoordinatorID: 1,
			Address:       "0xt1-temp",
			Name:          "CombiSensor Temperature",
			Type:          device.ArchetypeSecondary,
			Enabled:       enabled,
			States:        device.States{},
		}
	}

	t.Run("routes to enabled secondary", func(t *testing.T) {
		dir := newFakeDirectory(makeSensor(12), makeSecondary(true))
		m := NewMapper(1, dir, linkedTopology("CombiSensor", "0xt1", 10), nil, nil, nil)
		defer m.Close()

		m.HandleDeviceMessage(context.Background(), deviceMsg("CombiSensor", `{"temperature":21}`))

		writes := dir.updatesFor(12, "sensorValue")
		if len(writes) != 1 || writes[0].Value != 21 {
			t.Errorf("secondary sensorValue = %v, want one write of 21", writes)
		}
		if got := dir.updatesFor(10, "temperature"); len(got) != 0 {
			t.Errorf("primary temperature writes = %v, want none", got)
		}
	})

	t.Run("missing secondary discards the property", func(t *testing.T) {
		dir := newFakeDirectory(makeSensor(99))
		m := NewMapper(1, dir, linkedTopology("CombiSensor", "0xt1", 10), nil, nil, nil)
		defer m.Close()

		m.HandleDeviceMessage(context.Background(), deviceMsg("CombiSensor", `{"temperature":21}`))

		if got := dir.batchCount(); got != 0 {
			t.Errorf("batch writes = %d, want 0", got)
		}
	})

	t.Run("disabled secondary skips silently", func(t *testing.T) {
		dir := newFakeDirectory(makeSensor(12), makeSecondary(false))
		m := NewMapper(1, dir, linkedTopology("CombiSensor", "0xt1", 10), nil, nil, nil)
		defer m.Close()

		m.HandleDeviceMessage(context.Background(), deviceMsg("CombiSensor", `{"temperature":21}`))

		if got := dir.batchCount(); got != 0 {
			t.Errorf("batch writes = %d, want 0", got)
		}
	})
}

func TestBrightnessOffStateForcesZero(t *testing.T) {
	dir := newFakeDirectory(testDimmer(10, "Lamp"))
	m := NewMapper(1, dir, linkedTopology("Lamp", "0xd1", 10), nil, nil, nil)
	defer m.Close()

	m.HandleDeviceMessage(context.Background(), deviceMsg("Lamp", `{"brightness":200,"state":"OFF"}`))

	writes := dir.updatesFor(10, "brightnessLevel")
	if len(writes) == 0 {
		t.Fatal("no brightnessLevel writes")
	}
	if writes[0].Value != 0 {
		t.Errorf("brightnessLevel = %v, want 0 when state is OFF", writes[0].Value)
	}
	if dir.image(10) != device.StateImageDimmerOff {
		t.Errorf("state image = %q, want %q", dir.image(10), device.StateImageDimmerOff)
	}
}

func TestBrightnessNearFullSnapsToHundred(t *testing.T) {
	dir := newFakeDirectory(testDimmer(10, "Lamp"))
	m := NewMapper(1, dir, linkedTopology("Lamp", "0xd1", 10), nil, nil, nil)
	defer m.Close()

	m.HandleDeviceMessage(context.Background(), deviceMsg("Lamp", `{"brightness":253,"state":"ON"}`))

	writes := dir.updatesFor(10, "brightnessLevel")
	if len(writes) != 1 || writes[0].Value != 100 {
		t.Errorf("brightnessLevel = %v, want one write of 100", writes)
	}
}

func TestColorTemperatureKelvin(t *testing.T) {
	dir := newFakeDirectory(testDimmer(10, "Lamp"))
	m := NewMapper(1, dir, linkedTopology("Lamp", "0xd1", 10), nil, nil, nil)
	defer m.Close()

	m.HandleDeviceMessage(context.Background(),
		deviceMsg("Lamp", `{"color_mode":"color_temp","color_temp":250,"brightness":128,"state":"ON"}`))

	writes := dir.updatesFor(10, "whiteTemperature")
	if len(writes) != 1 {
		t.Fatalf("whiteTemperature writes = %d, want 1", len(writes))
	}
	if writes[0].Value != 4000 || writes[0].UI != "4000°K" {
		t.Errorf("whiteTemperature = %v/%q, want 4000/4000°K", writes[0].Value, writes[0].UI)
	}

	modes := dir.updatesFor(10, "colorMode")
	if len(modes) != 1 || modes[0].Value != "color_temp" {
		t.Errorf("colorMode = %v, want color_temp", modes)
	}
}

func TestColorModeXYRenamed(t *testing.T) {
	dir := newFakeDirectory(testDimmer(10, "Lamp"))
	m := NewMapper(1, dir, linkedTopology("Lamp", "0xd1", 10), nil, nil, nil)
	defer m.Close()

	m.HandleDeviceMessage(context.Background(),
		deviceMsg("Lamp", `{"color_mode":"xy","state":"ON"}`))

	modes := dir.updatesFor(10, "colorMode")
	if len(modes) != 1 || modes[0].Value != "color_rgb" {
		t.Errorf("colorMode = %v, want color_rgb", modes)
	}
}

func TestContactSensor(t *testing.T) {
	sensor := &device.Device{
		ID:            10,
		CoordinatorID: 1,
		Address:       "0xc1",
		Name:          "FrontDoor",
		Type:          device.ArchetypeContactSensor,
		Enabled:       true,
		Config: device.Config{
			Properties: map[string]device.PropertySetting{
				"contact": {Enabled: true},
			},
		},
		States: device.States{},
	}
	dir := newFakeDirectory(sensor)
	m := NewMapper(1, dir, linkedTopology("FrontDoor", "0xc1", 10), nil, nil, nil)
	defer m.Close()

	// contact=false means the circuit is broken, the door is open.
	m.HandleDeviceMessage(context.Background(), deviceMsg("FrontDoor", `{"contact":false}`))

	writes := dir.updatesFor(10, "onOffState")
	if len(writes) != 1 || writes[0].Value != true || writes[0].UI != "open" {
		t.Errorf("onOffState = %v, want true/open", writes)
	}
	if dir.image(10) != device.StateImageSensorOn {
		t.Errorf("state image = %q, want %q", dir.image(10), device.StateImageSensorOn)
	}
}

func TestLastSeenRecorded(t *testing.T) {
	dir := newFakeDirectory(testOutlet(10, "Plug1"))
	m := NewMapper(1, dir, linkedTopology("Plug1", "0xa10", 10), nil, nil, nil)
	defer m.Close()

	seen := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	msg := deviceMsg("Plug1", fmt.Sprintf(`{"state":"ON","last_seen":%d}`, seen.UnixMilli()))
	m.HandleDeviceMessage(context.Background(), msg)

	dir.mu.Lock()
	got, ok := dir.lastSeen[10]
	dir.mu.Unlock()
	if !ok || !got.Equal(seen) {
		t.Errorf("last seen = %v (%v), want %v", got, ok, seen)
	}

	writes := dir.updatesFor(10, "lastSeen")
	if len(writes) != 1 || writes[0].Value != "2026-03-15 10:30:00" {
		t.Errorf("lastSeen state = %v, want 2026-03-15 10:30:00", writes)
	}
}

func TestRadarPresence(t *testing.T) {
	radar := &device.Device{
		ID:            10,
		CoordinatorID: 1,
		Address:       "0xr1",
		Name:          "HallRadar",
		Type:          device.ArchetypeRadarSensor,
		Enabled:       true,
		Config: device.Config{
			Properties: map[string]device.PropertySetting{
				"radar": {Enabled: true},
			},
		},
		States: device.States{},
	}
	dir := newFakeDirectory(radar)
	m := NewMapper(1, dir, linkedTopology("HallRadar", "0xr1", 10), nil, nil, nil)
	defer m.Close()

	// An enter event forces the sensor on even while presence is false.
	m.HandleDeviceMessage(context.Background(),
		deviceMsg("HallRadar", `{"presence":false,"presence_event":"enter"}`))

	writes := dir.updatesFor(10, "onOffState")
	if len(writes) != 1 || writes[0].Value != true {
		t.Errorf("onOffState = %v, want true for enter event", writes)
	}
	events := dir.updatesFor(10, "presenceEvent")
	if len(events) != 1 || events[0].Value != "enter" {
		t.Errorf("presenceEvent = %v, want enter", events)
	}
}
