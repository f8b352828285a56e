package zigbee

import (
	"context"
	"reflect"
	"testing"

	"github.com/graymesh/zigbee-core/internal/device"
)

func testCoordinator(id int, address string) *device.Device {
	return &device.Device{
		ID:            id,
		CoordinatorID: id,
		Address:       address,
		Name:          "Coordinator",
		Type:          device.ArchetypeCoordinator,
		Enabled:       true,
		States:        device.States{},
	}
}

func bridgeMsg(subtopic, payload string) Message {
	return Message{
		CoordinatorID: 1,
		Class:         ClassBridge,
		Topic:         "zigbee2mqtt/bridge/" + subtopic,
		Segments:      []string{"zigbee2mqtt", "bridge", subtopic},
		Payload:       []byte(payload),
		Seq:           1,
	}
}

func TestHandleDevicesSnapshot(t *testing.T) {
	plug := testOutlet(10, "Plug1")
	plug.Address = "0xAAA"
	dir := newFakeDirectory(testCoordinator(1, "0xC0"), plug)

	topo := NewTopology()
	bt := NewBridgeTopics(1, dir, topo, nil)

	payload := `[
		{"ieee_address":"0xC0","friendly_name":"Coordinator","type":"Coordinator"},
		{"ieee_address":"0xAAA","friendly_name":"Plug1","type":"Router",
		 "definition":{"model":"TS011F","vendor":"TuYa",
		  "exposes":[{"type":"switch","features":[{"property":"state"}]}]}},
		{"ieee_address":"0xBBB","friendly_name":"NewPlug","type":"EndDevice",
		 "definition":{"model":"SP220","vendor":"Innr",
		  "exposes":[{"type":"switch","features":[{"property":"state"}]}]}},
		{"ieee_address":"0xEEE","friendly_name":"Ghost","type":"GreenPower"}
	]`
	bt.Handle(context.Background(), bridgeMsg("devices", payload))

	linked, ok := topo.Device("0xAAA")
	if !ok || linked.DeviceID != 10 {
		t.Errorf("linked device = %+v/%v, want platform id 10", linked, ok)
	}

	unlinked, ok := topo.Device("0xBBB")
	if !ok {
		t.Fatal("unlinked device missing from topology")
	}
	if unlinked.DeviceID != 0 {
		t.Errorf("unlinked device id = %d, want 0", unlinked.DeviceID)
	}
	if !reflect.DeepEqual(unlinked.Properties, []string{"state", "onoff"}) {
		t.Errorf("unlinked properties = %v, want [state onoff]", unlinked.Properties)
	}

	if _, ok := topo.Device("0xEEE"); ok {
		t.Error("unknown node type made it into the topology")
	}
	if topo.CoordinatorIEEE() != "0xC0" {
		t.Errorf("coordinator ieee = %q, want 0xC0", topo.CoordinatorIEEE())
	}
}

func TestCoordinatorRekeyOnFirstSnapshot(t *testing.T) {
	// The directory still holds the old dongle's address; the snapshot
	// reports the replacement. The platform id must survive the swap.
	dir := newFakeDirectory(testCoordinator(1, "0xAAA"))
	topo := NewTopology()
	bt := NewBridgeTopics(1, dir, topo, nil)

	payload := `[{"ieee_address":"0xBBB","friendly_name":"Coordinator","type":"Coordinator"}]`
	bt.Handle(context.Background(), bridgeMsg("devices", payload))

	dir.mu.Lock()
	rekeys := append([]rekeyCall(nil), dir.rekeys...)
	address := dir.devices[1].Address
	dir.mu.Unlock()

	want := rekeyCall{coordinatorID: 1, oldAddress: "0xAAA", newAddress: "0xBBB"}
	if len(rekeys) != 1 || rekeys[0] != want {
		t.Errorf("rekeys = %v, want [%v]", rekeys, want)
	}
	if address != "0xBBB" {
		t.Errorf("directory address = %q, want 0xBBB", address)
	}
	if topo.CoordinatorIEEE() != "0xBBB" {
		t.Errorf("topology coordinator = %q, want 0xBBB", topo.CoordinatorIEEE())
	}
}

func TestCoordinatorRekeyStableAddress(t *testing.T) {
	dir := newFakeDirectory(testCoordinator(1, "0xAAA"))
	topo := NewTopology()
	bt := NewBridgeTopics(1, dir, topo, nil)

	payload := `[{"ieee_address":"0xAAA","friendly_name":"Coordinator","type":"Coordinator"}]`
	bt.Handle(context.Background(), bridgeMsg("devices", payload))
	bt.Handle(context.Background(), bridgeMsg("devices", payload))

	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.rekeys) != 0 {
		t.Errorf("rekeys = %v, want none for a stable address", dir.rekeys)
	}
}

func TestHandleGroupsSnapshot(t *testing.T) {
	group := &device.Device{
		ID:            20,
		CoordinatorID: 1,
		Address:       "5",
		Name:          "LivingRoom",
		Type:          device.ArchetypeGroupRelay,
		Enabled:       true,
		States:        device.States{},
	}
	member := testOutlet(10, "Plug1")
	member.Address = "0xAAA"
	dir := newFakeDirectory(group, member)

	topo := NewTopology()
	bt := NewBridgeTopics(1, dir, topo, nil)

	payload := `[
		{"id":5,"friendly_name":"LivingRoom",
		 "members":[{"ieee_address":"0xAAA","endpoint":1},{"ieee_address":"0xZZZ","endpoint":1}]},
		{"id":6,"friendly_name":"Unlinked","members":[]}
	]`
	bt.Handle(context.Background(), bridgeMsg("groups", payload))

	g, ok := topo.Group("LivingRoom")
	if !ok || g.DeviceID != 20 {
		t.Errorf("group = %+v/%v, want platform id 20", g, ok)
	}

	dir.mu.Lock()
	members := append([]int(nil), dir.groupMembers[20]...)
	dir.mu.Unlock()
	if !reflect.DeepEqual(members, []int{10}) {
		t.Errorf("synced members = %v, want [10] (unlinked members dropped)", members)
	}

	unlinked, ok := topo.Group("Unlinked")
	if !ok || unlinked.DeviceID != 0 {
		t.Errorf("unlinked group = %+v/%v, want present with id 0", unlinked, ok)
	}

	// A later snapshot replaces the set wholesale.
	bt.Handle(context.Background(), bridgeMsg("groups", `[]`))
	if topo.HasGroup("LivingRoom") {
		t.Error("group survived an empty snapshot")
	}
}

func TestHandleBridgeState(t *testing.T) {
	dir := newFakeDirectory(testCoordinator(1, "0xC0"))
	bt := NewBridgeTopics(1, dir, NewTopology(), nil)

	bt.Handle(context.Background(), bridgeMsg("state", `{"state":"offline"}`))
	if got := dir.errorState(1); got != "bridge offline" {
		t.Fatalf("error state = %q, want bridge offline", got)
	}

	bt.Handle(context.Background(), bridgeMsg("state", `online`))
	if got := dir.errorState(1); got != "" {
		t.Errorf("error state = %q, want cleared", got)
	}
}

func TestHandleBridgeInfo(t *testing.T) {
	dir := newFakeDirectory(testCoordinator(1, "0xAAA"))
	topo := NewTopology()
	bt := NewBridgeTopics(1, dir, topo, nil)

	payload := `{"version":"1.35.1","coordinator":{"ieee_address":"0xBBB","type":"zStack3x0"}}`
	bt.Handle(context.Background(), bridgeMsg("info", payload))

	versions := dir.updatesFor(1, "bridgeVersion")
	if len(versions) != 1 || versions[0].Value != "1.35.1" {
		t.Errorf("bridgeVersion = %v, want 1.35.1", versions)
	}
	types := dir.updatesFor(1, "coordinatorType")
	if len(types) != 1 || types[0].Value != "zStack3x0" {
		t.Errorf("coordinatorType = %v, want zStack3x0", types)
	}
	if topo.CoordinatorIEEE() != "0xBBB" {
		t.Errorf("coordinator ieee = %q, want rekeyed to 0xBBB", topo.CoordinatorIEEE())
	}
}

func TestHandleMalformedSnapshots(t *testing.T) {
	dir := newFakeDirectory(testCoordinator(1, "0xC0"))
	topo := NewTopology()
	bt := NewBridgeTopics(1, dir, topo, nil)

	bt.Handle(context.Background(), bridgeMsg("devices", `{broken`))
	bt.Handle(context.Background(), bridgeMsg("groups", `{broken`))

	if len(topo.Devices()) != 0 || len(topo.Groups()) != 0 {
		t.Error("malformed snapshots mutated the topology")
	}
}
