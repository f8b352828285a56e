package zigbee

import "sync"

// Mesh node types reported in the bridge devices snapshot.
const (
	NodeTypeCoordinator = "Coordinator"
	NodeTypeRouter      = "Router"
	NodeTypeEndDevice   = "EndDevice"
)

// MeshDevice is one node in a coordinator's mesh as last reported by
// the bridge devices snapshot.
type MeshDevice struct {
	IEEE         string
	FriendlyName string
	Type         string // Coordinator, Router or EndDevice
	Model        string
	Vendor       string
	Disabled     bool
	Properties   []string // flattened exposed property names

	// DeviceID is the linked platform device id, 0 when unlinked.
	DeviceID int
}

func (d MeshDevice) copy() MeshDevice {
	cp := d
	cp.Properties = append([]string(nil), d.Properties...)
	return cp
}

// MeshGroup is one zigbee2mqtt group as last reported by the bridge
// groups snapshot.
type MeshGroup struct {
	ID           int
	FriendlyName string
	Members      []string // member IEEE addresses

	// DeviceID is the linked platform device id, 0 when unlinked.
	DeviceID int
}

func (g MeshGroup) copy() MeshGroup {
	cp := g
	cp.Members = append([]string(nil), g.Members...)
	return cp
}

// Topology holds the live mesh picture for a single coordinator:
// devices keyed by IEEE address with a friendly-name index, and groups
// keyed by friendly name. Each coordinator owns its own Topology, so
// traffic on one mesh never serialises against another.
//
// All accessors return copies.
type Topology struct {
	mu              sync.RWMutex
	devices         map[string]MeshDevice // by IEEE address
	byName          map[string]string     // friendly name -> IEEE address
	groups          map[string]MeshGroup  // by friendly name
	coordinatorIEEE string
}

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{
		devices: make(map[string]MeshDevice),
		byName:  make(map[string]string),
		groups:  make(map[string]MeshGroup),
	}
}

// UpsertDevice adds or updates one mesh device. An existing entry's
// linked platform id is preserved when the incoming record carries none.
func (t *Topology) UpsertDevice(d MeshDevice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsertLocked(d)
}

// UpsertDevices applies a batch of device records under one lock hold.
func (t *Topology) UpsertDevices(devices []MeshDevice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range devices {
		t.upsertLocked(d)
	}
}

func (t *Topology) upsertLocked(d MeshDevice) {
	if existing, ok := t.devices[d.IEEE]; ok {
		if d.DeviceID == 0 {
			d.DeviceID = existing.DeviceID
		}
		if existing.FriendlyName != d.FriendlyName {
			delete(t.byName, existing.FriendlyName)
		}
	}
	t.devices[d.IEEE] = d.copy()
	t.byName[d.FriendlyName] = d.IEEE
	if d.Type == NodeTypeCoordinator {
		t.coordinatorIEEE = d.IEEE
	}
}

// RekeyCoordinator moves the coordinator entry to a new IEEE address
// atomically, keeping its linked platform id. Returns the previous
// address, which is empty when no coordinator was known.
func (t *Topology) RekeyCoordinator(newIEEE string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.coordinatorIEEE
	if old == "" || old == newIEEE {
		t.coordinatorIEEE = newIEEE
		return old
	}

	if entry, ok := t.devices[old]; ok {
		delete(t.devices, old)
		entry.IEEE = newIEEE
		t.devices[newIEEE] = entry
		t.byName[entry.FriendlyName] = newIEEE
	}
	t.coordinatorIEEE = newIEEE
	return old
}

// CoordinatorIEEE returns the coordinator's IEEE address, empty until
// the first devices snapshot arrives.
func (t *Topology) CoordinatorIEEE() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.coordinatorIEEE
}

// Device looks up a mesh device by IEEE address.
func (t *Topology) Device(ieee string) (MeshDevice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devices[ieee]
	if !ok {
		return MeshDevice{}, false
	}
	return d.copy(), true
}

// DeviceByName looks up a mesh device by friendly name.
func (t *Topology) DeviceByName(friendlyName string) (MeshDevice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ieee, ok := t.byName[friendlyName]
	if !ok {
		return MeshDevice{}, false
	}
	d, ok := t.devices[ieee]
	if !ok {
		return MeshDevice{}, false
	}
	return d.copy(), true
}

// SetDeviceLink records the platform device id for a mesh device.
func (t *Topology) SetDeviceLink(ieee string, deviceID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.devices[ieee]; ok {
		d.DeviceID = deviceID
		t.devices[ieee] = d
	}
}

// Devices returns a copy of every known mesh device.
func (t *Topology) Devices() []MeshDevice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]MeshDevice, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d.copy())
	}
	return out
}

// ReplaceGroups swaps the group set wholesale.
func (t *Topology) ReplaceGroups(groups []MeshGroup) {
	next := make(map[string]MeshGroup, len(groups))
	for _, g := range groups {
		next[g.FriendlyName] = g.copy()
	}

	t.mu.Lock()
	t.groups = next
	t.mu.Unlock()
}

// Group looks up a group by friendly name.
func (t *Topology) Group(friendlyName string) (MeshGroup, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[friendlyName]
	if !ok {
		return MeshGroup{}, false
	}
	return g.copy(), true
}

// HasGroup reports whether a friendly name currently names a group.
func (t *Topology) HasGroup(friendlyName string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.groups[friendlyName]
	return ok
}

// Groups returns a copy of every known group.
func (t *Topology) Groups() []MeshGroup {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]MeshGroup, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g.copy())
	}
	return out
}

// Stats returns node counts for diagnostics.
func (t *Topology) Stats() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	linked := 0
	for _, d := range t.devices {
		if d.DeviceID != 0 {
			linked++
		}
	}
	return map[string]int{
		"devices": len(t.devices),
		"linked":  linked,
		"groups":  len(t.groups),
	}
}
