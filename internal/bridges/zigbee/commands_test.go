package zigbee

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/graymesh/zigbee-core/internal/device"
	"github.com/graymesh/zigbee-core/internal/infrastructure/mqtt"
)

type pubCall struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []pubCall
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pubCall{topic, payload, qos, retained})
	return nil
}

func (f *fakePublisher) published() []pubCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pubCall(nil), f.calls...)
}

func decodePayload(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("decode payload %q: %v", payload, err)
	}
	return m
}

func newTestCommander(pub *fakePublisher, dir Directory, topo *Topology) *Commander {
	return NewCommander(pub, mqtt.Topics{Root: "zigbee2mqtt"}, 0, dir, topo, nil, nil)
}

func TestCommanderOnOffToggle(t *testing.T) {
	dir := newFakeDirectory(testOutlet(10, "Plug1"))
	topo := linkedTopology("Plug1", "0xa10", 10)
	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)

	tests := []struct {
		name string
		call func(context.Context, int) error
		want map[string]any
	}{
		{"turn on", c.TurnOn, map[string]any{"state": "ON"}},
		{"turn off", c.TurnOff, map[string]any{"state": "OFF"}},
		{"toggle", c.Toggle, map[string]any{"state": "TOGGLE"}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(context.Background(), 10); err != nil {
				t.Fatal(err)
			}

			calls := pub.published()
			if len(calls) != i+1 {
				t.Fatalf("publish count = %d, want %d", len(calls), i+1)
			}
			last := calls[i]
			if last.topic != "zigbee2mqtt/Plug1/set" {
				t.Errorf("topic = %q, want zigbee2mqtt/Plug1/set", last.topic)
			}
			if last.retained {
				t.Error("command published retained")
			}
			if got := decodePayload(t, last.payload); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("payload = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommanderBlindOpenClose(t *testing.T) {
	blind := &device.Device{
		ID: 10, CoordinatorID: 1, Address: "0xb1", Name: "Blind",
		Type: device.ArchetypeBlind, Enabled: true, States: device.States{},
	}
	dir := newFakeDirectory(blind)
	topo := linkedTopology("Blind", "0xb1", 10)

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)

	if err := c.TurnOn(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if err := c.TurnOff(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPosition(context.Background(), 10, 40); err != nil {
		t.Fatal(err)
	}

	calls := pub.published()
	if len(calls) != 3 {
		t.Fatalf("publish count = %d, want 3", len(calls))
	}
	if got := decodePayload(t, calls[0].payload)["state"]; got != "OPEN" {
		t.Errorf("on payload state = %v, want OPEN", got)
	}
	if got := decodePayload(t, calls[1].payload)["state"]; got != "CLOSE" {
		t.Errorf("off payload state = %v, want CLOSE", got)
	}
	if got := decodePayload(t, calls[2].payload)["position"]; got != float64(40) {
		t.Errorf("position payload = %v, want 40", got)
	}
}

func TestCommanderPositionRejectsNonBlind(t *testing.T) {
	dir := newFakeDirectory(testOutlet(10, "Plug1"))
	topo := linkedTopology("Plug1", "0xa10", 10)
	c := newTestCommander(&fakePublisher{}, dir, topo)

	err := c.SetPosition(context.Background(), 10, 50)
	if !errors.Is(err, ErrUnsupportedArchetype) {
		t.Errorf("error = %v, want ErrUnsupportedArchetype", err)
	}
}

func TestCommanderEndpointRouting(t *testing.T) {
	parent := &device.Device{
		ID: 10, CoordinatorID: 1, Address: "0xm1", Name: "PowerStrip",
		Type: device.ArchetypeMultiOutlet, Enabled: true, States: device.States{},
	}
	channel := &device.Device{
		ID: 11, CoordinatorID: 1, Address: "0xm1-l2", Name: "PowerStrip Channel 2",
		Type: device.ArchetypeSecondary, Enabled: true, States: device.States{},
		Config: device.Config{Endpoint: "l2", ParentID: 10},
	}
	dir := newFakeDirectory(parent, channel)
	topo := linkedTopology("PowerStrip", "0xm1", 10)

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)

	if err := c.TurnOn(context.Background(), 11); err != nil {
		t.Fatal(err)
	}

	calls := pub.published()
	if len(calls) != 1 {
		t.Fatalf("publish count = %d, want 1", len(calls))
	}
	// Endpoint commands go to the parent's topic with a suffixed key.
	if calls[0].topic != "zigbee2mqtt/PowerStrip/set" {
		t.Errorf("topic = %q, want parent topic", calls[0].topic)
	}
	want := map[string]any{"state_l2": "ON"}
	if got := decodePayload(t, calls[0].payload); !reflect.DeepEqual(got, want) {
		t.Errorf("payload = %v, want %v", got, want)
	}
}

func TestCommanderSetBrightness(t *testing.T) {
	dir := newFakeDirectory(testDimmer(10, "Lamp"))
	topo := linkedTopology("Lamp", "0xd1", 10)

	t.Run("scales percent to 255", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newTestCommander(pub, dir, topo)
		if err := c.SetBrightness(context.Background(), 10, 50); err != nil {
			t.Fatal(err)
		}
		got := decodePayload(t, pub.published()[0].payload)
		if got["brightness"] != float64(127) {
			t.Errorf("brightness = %v, want 127", got["brightness"])
		}
	})

	t.Run("zero becomes off", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newTestCommander(pub, dir, topo)
		if err := c.SetBrightness(context.Background(), 10, 0); err != nil {
			t.Fatal(err)
		}
		got := decodePayload(t, pub.published()[0].payload)
		if got["state"] != "OFF" {
			t.Errorf("payload = %v, want state OFF", got)
		}
	})
}

func TestCommanderDimByPastZeroTurnsOff(t *testing.T) {
	lamp := testDimmer(10, "Lamp")
	lamp.States["brightnessLevel"] = device.State{Value: 15, UI: "15"}
	dir := newFakeDirectory(lamp)
	topo := linkedTopology("Lamp", "0xd1", 10)

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)
	if err := c.DimBy(context.Background(), 10, 20); err != nil {
		t.Fatal(err)
	}

	calls := pub.published()
	if len(calls) != 2 {
		t.Fatalf("publish count = %d, want step then off", len(calls))
	}
	step := decodePayload(t, calls[0].payload)
	if step["brightness_step"] != float64(-51) {
		t.Errorf("brightness_step = %v, want -51", step["brightness_step"])
	}
	off := decodePayload(t, calls[1].payload)
	if off["state"] != "OFF" {
		t.Errorf("second payload = %v, want state OFF", off)
	}
}

func TestCommanderSetWhiteTemperatureSnaps(t *testing.T) {
	dir := newFakeDirectory(testDimmer(10, "Lamp"))
	topo := linkedTopology("Lamp", "0xd1", 10)

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)
	if err := c.SetWhiteTemperature(context.Background(), 10, 2800); err != nil {
		t.Fatal(err)
	}

	got := decodePayload(t, pub.published()[0].payload)
	// 2800K snaps to 2750K, which is 363 mired.
	if got["color_temp"] != float64(363) {
		t.Errorf("color_temp = %v, want 363", got["color_temp"])
	}
}

func TestCommanderSetWhiteLevelForcesColorTempMode(t *testing.T) {
	lamp := testDimmer(10, "Lamp")
	lamp.Config.SupportsWhite = true
	lamp.States["whiteTemperature"] = device.State{Value: 4000, UI: "4000°K"}
	dir := newFakeDirectory(lamp)
	topo := linkedTopology("Lamp", "0xd1", 10)

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)
	if err := c.SetWhiteLevel(context.Background(), 10, 80); err != nil {
		t.Fatal(err)
	}

	calls := pub.published()
	if len(calls) != 2 {
		t.Fatalf("publish count = %d, want mode force then brightness", len(calls))
	}
	mode := decodePayload(t, calls[0].payload)
	if mode["color_temp"] != float64(250) {
		t.Errorf("forced color_temp = %v, want 250 mired", mode["color_temp"])
	}
	level := decodePayload(t, calls[1].payload)
	if level["brightness"] != float64(204) {
		t.Errorf("brightness = %v, want 204", level["brightness"])
	}
}

func TestCommanderRequestStatus(t *testing.T) {
	dir := newFakeDirectory(testOutlet(10, "Plug1"))
	topo := linkedTopology("Plug1", "0xa10", 10)

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)
	if err := c.RequestStatus(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	calls := pub.published()
	if len(calls) != 1 {
		t.Fatalf("publish count = %d, want 1", len(calls))
	}
	if calls[0].topic != "zigbee2mqtt/Plug1/get" {
		t.Errorf("topic = %q, want zigbee2mqtt/Plug1/get", calls[0].topic)
	}
	want := map[string]any{"state": ""}
	if got := decodePayload(t, calls[0].payload); !reflect.DeepEqual(got, want) {
		t.Errorf("payload = %v, want %v", got, want)
	}
}

func TestCommanderUnknownDevice(t *testing.T) {
	c := newTestCommander(&fakePublisher{}, newFakeDirectory(), NewTopology())

	if err := c.TurnOn(context.Background(), 99); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCommanderGroupTarget(t *testing.T) {
	group := &device.Device{
		ID: 20, CoordinatorID: 1, Address: "5", Name: "LivingRoom",
		Type: device.ArchetypeGroupRelay, Enabled: true, States: device.States{},
	}
	dir := newFakeDirectory(group)
	topo := NewTopology()
	topo.ReplaceGroups([]MeshGroup{{ID: 5, FriendlyName: "LivingRoom", DeviceID: 20}})

	pub := &fakePublisher{}
	c := newTestCommander(pub, dir, topo)
	if err := c.TurnOn(context.Background(), 20); err != nil {
		t.Fatal(err)
	}

	calls := pub.published()
	if len(calls) != 1 || calls[0].topic != "zigbee2mqtt/LivingRoom/set" {
		t.Errorf("calls = %v, want one publish to the group topic", calls)
	}
}
