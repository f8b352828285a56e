package zigbee

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/graymesh/zigbee-core/internal/device"
)

// Directory is the slice of the platform device directory the mapper
// needs. Satisfied by *device.Registry.
type Directory interface {
	GetDevice(ctx context.Context, id int) (*device.Device, error)
	GetByAddress(ctx context.Context, coordinatorID int, address string) (*device.Device, error)
	BatchUpdateStates(ctx context.Context, id int, updates []device.StateUpdate) error
	SetErrorState(ctx context.Context, id int, reason string) error
	UpdateStateImage(ctx context.Context, id int, image device.StateImage) error
	SetLastSeen(ctx context.Context, id int, seen time.Time) error
	RekeyAddress(ctx context.Context, coordinatorID int, oldAddress, newAddress string) error
	GetGroupMembers(ctx context.Context, groupID int) ([]int, error)
	ReplaceGroupMembers(ctx context.Context, groupID int, memberIDs []int) error
}

// Telemetry receives numeric property samples. Satisfied by the
// influxdb client; nil disables telemetry.
type Telemetry interface {
	WritePropertyMetric(coordinatorID, deviceID int, property string, value float64)
	WriteLinkQuality(coordinatorID, deviceID int, lqi float64)
	WriteEnergyMetric(coordinatorID, deviceID int, powerWatts, energyKWh float64)
}

// Logger is the minimal logging interface bridge components need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger discards all output.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Mapper translates device report payloads into batched platform state
// writes for one coordinator.
type Mapper struct {
	coordinatorID int
	dir           Directory
	topo          *Topology
	log           Logger
	telemetry     Telemetry
	filter        *TopicFilter
	timers        *actionTimers

	// last reported power per platform device, the hysteresis reference
	powerMu   sync.Mutex
	powerPrev map[int]float64

	// devices reported offline by availability messages, keyed by
	// friendly name; their state reports are held back until an online
	// message clears the flag
	offlineMu sync.Mutex
	offline   map[string]bool
}

// NewMapper creates a mapper for one coordinator.
func NewMapper(coordinatorID int, dir Directory, topo *Topology, filter *TopicFilter, telemetry Telemetry, log Logger) *Mapper {
	if log == nil {
		log = nopLogger{}
	}
	if filter == nil {
		filter = NewTopicFilter(nil)
	}
	return &Mapper{
		coordinatorID: coordinatorID,
		dir:           dir,
		topo:          topo,
		log:           log,
		telemetry:     telemetry,
		filter:        filter,
		timers:        newActionTimers(),
		offline:       make(map[string]bool),
	}
}

// Close cancels pending action timers.
func (m *Mapper) Close() {
	m.timers.stopAll()
}

// report carries the working state for one message through the
// property handlers.
type report struct {
	ctx     context.Context
	msg     Message
	primary *device.Device
	payload map[string]any

	// batched writes per impacted platform device, flushed once
	batch *stateBatch

	// resolved secondary devices, cached per message
	secondaries map[int]*device.Device

	lastSeen time.Time
}

func (r *report) value(key string) (any, bool) {
	v, ok := r.payload[key]
	return v, ok
}

func (r *report) has(key string) bool {
	_, ok := r.payload[key]
	return ok
}

// stateBatch accumulates state writes per platform device in arrival
// order.
type stateBatch struct {
	updates map[int][]device.StateUpdate
	order   []int
}

func newStateBatch() *stateBatch {
	return &stateBatch{updates: make(map[int][]device.StateUpdate)}
}

func (b *stateBatch) add(deviceID int, key string, value any, ui string) {
	if _, ok := b.updates[deviceID]; !ok {
		b.order = append(b.order, deviceID)
	}
	b.updates[deviceID] = append(b.updates[deviceID], device.StateUpdate{Key: key, Value: value, UI: ui})
}

// HandleDeviceMessage processes one report for a physical mesh device.
// Every failure mode is non-fatal: the message is logged and dropped.
func (m *Mapper) HandleDeviceMessage(ctx context.Context, msg Message) {
	if m.filter.ShouldLog(msg.FriendlyName) {
		m.log.Debug("mqtt echo", "topic", msg.Topic, "payload", string(msg.Payload))
	}

	mesh, ok := m.topo.DeviceByName(msg.FriendlyName)
	if !ok {
		m.log.Debug("report for unknown device", "friendly_name", msg.FriendlyName, "seq", msg.Seq)
		return
	}

	payload, ok := m.parsePayload(msg)
	if !ok {
		return
	}

	// Reports carry their own identity block. A payload without it is
	// malformed; one that names a different device than its topic
	// indicates a stale retained message or broker misrouting. Discard
	// both rather than risk misattributing state.
	info, ok := payload["device"].(map[string]any)
	if !ok {
		m.log.Error("report payload missing device block",
			"topic", msg.Topic, "seq", msg.Seq)
		return
	}
	ieee, _ := info["ieeeAddr"].(string)
	fn, _ := info["friendlyName"].(string)
	if ieee == "" || fn == "" {
		m.log.Error("report payload missing device identity keys",
			"topic", msg.Topic, "seq", msg.Seq)
		return
	}
	if fn != msg.FriendlyName {
		m.log.Error("payload friendly name does not match topic",
			"topic", msg.Topic, "payload_name", fn)
		return
	}

	if mesh.DeviceID == 0 {
		return
	}

	// A device reported offline stays in error until availability says
	// otherwise; its state reports are discarded meanwhile.
	if m.isOffline(msg.FriendlyName) {
		if err := m.dir.SetErrorState(ctx, mesh.DeviceID, "offline"); err != nil {
			m.log.Warn("failed to reassert offline state",
				"device_id", mesh.DeviceID, "error", err)
		}
		return
	}

	primary, err := m.dir.GetDevice(ctx, mesh.DeviceID)
	if err != nil {
		m.log.Warn("linked device missing from directory",
			"friendly_name", msg.FriendlyName, "device_id", mesh.DeviceID, "error", err)
		return
	}

	m.process(ctx, msg, primary, payload)
}

// HandleAvailability processes a {root}/{friendlyName}/availability
// message. The offline flag is tracked even for unlinked devices so a
// device linked while unreachable starts gated; the directory error
// state only changes for linked devices.
func (m *Mapper) HandleAvailability(ctx context.Context, msg Message) {
	state := string(msg.Payload)
	var wrapped struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(msg.Payload, &wrapped); err == nil && wrapped.State != "" {
		state = wrapped.State
	}

	switch state {
	case "offline":
		m.setOffline(msg.FriendlyName, true)
	case "online":
		m.setOffline(msg.FriendlyName, false)
	default:
		m.log.Warn("unrecognised availability payload",
			"friendly_name", msg.FriendlyName, "payload", state)
		return
	}

	mesh, ok := m.topo.DeviceByName(msg.FriendlyName)
	if !ok || mesh.DeviceID == 0 {
		return
	}

	if state == "offline" {
		if err := m.dir.SetErrorState(ctx, mesh.DeviceID, "offline"); err != nil {
			m.log.Warn("failed to set offline state", "device_id", mesh.DeviceID, "error", err)
			return
		}
		m.log.Info("device offline", "friendly_name", msg.FriendlyName)
		return
	}

	if err := m.dir.SetErrorState(ctx, mesh.DeviceID, ""); err != nil {
		m.log.Warn("failed to clear offline state", "device_id", mesh.DeviceID, "error", err)
		return
	}
	m.log.Info("device online", "friendly_name", msg.FriendlyName)
}

func (m *Mapper) setOffline(friendlyName string, offline bool) {
	m.offlineMu.Lock()
	defer m.offlineMu.Unlock()
	if offline {
		m.offline[friendlyName] = true
	} else {
		delete(m.offline, friendlyName)
	}
}

func (m *Mapper) isOffline(friendlyName string) bool {
	m.offlineMu.Lock()
	defer m.offlineMu.Unlock()
	return m.offline[friendlyName]
}

func (m *Mapper) parsePayload(msg Message) (map[string]any, bool) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		m.log.Warn("malformed report payload",
			"topic", msg.Topic, "seq", msg.Seq, "error", err)
		return nil, false
	}
	return payload, true
}

// process runs the archetype's handler list and flushes the batch.
func (m *Mapper) process(ctx context.Context, msg Message, primary *device.Device, payload map[string]any) {
	if !primary.Enabled {
		return
	}

	r := &report{
		ctx:         ctx,
		msg:         msg,
		primary:     primary,
		payload:     payload,
		batch:       newStateBatch(),
		secondaries: make(map[int]*device.Device),
	}

	m.handleLastSeen(r)
	for _, h := range handlersFor(primary.Type) {
		h(m, r)
	}
	m.flush(r)
}

// flush writes each impacted device's batch in one directory call and
// forwards numeric samples to telemetry.
func (m *Mapper) flush(r *report) {
	if !r.lastSeen.IsZero() {
		if err := m.dir.SetLastSeen(r.ctx, r.primary.ID, r.lastSeen); err != nil {
			m.log.Warn("failed to record last seen", "device_id", r.primary.ID, "error", err)
		}
	}

	for _, id := range r.batch.order {
		updates := r.batch.updates[id]
		if len(updates) == 0 {
			continue
		}
		if err := m.dir.BatchUpdateStates(r.ctx, id, updates); err != nil {
			m.log.Warn("state write failed", "device_id", id, "error", err)
			continue
		}
		m.writeTelemetry(id, updates)
	}
}

func (m *Mapper) writeTelemetry(deviceID int, updates []device.StateUpdate) {
	if m.telemetry == nil {
		return
	}
	var power, energy float64
	var hasPower, hasEnergy bool
	for _, u := range updates {
		f, ok := coerceFloat(u.Value)
		if !ok {
			continue
		}
		switch u.Key {
		case "linkQuality":
			m.telemetry.WriteLinkQuality(m.coordinatorID, deviceID, f)
		case "curEnergyLevel":
			power, hasPower = f, true
		case "accumEnergyTotal":
			energy, hasEnergy = f, true
		case "temperature", "humidity", "pressure", "illuminance", "batteryLevel", "brightnessLevel":
			m.telemetry.WritePropertyMetric(m.coordinatorID, deviceID, u.Key, f)
		}
	}
	// Power and energy land in one point so queries can correlate them.
	// An energy delta inside the power hysteresis band arrives alone;
	// recording it with a fabricated zero power would be misleading.
	switch {
	case hasPower:
		m.telemetry.WriteEnergyMetric(m.coordinatorID, deviceID, power, energy)
	case hasEnergy:
		m.telemetry.WritePropertyMetric(m.coordinatorID, deviceID, "energy", energy)
	}
}

// secondary resolves and caches a secondary device for routed
// properties. A nil cache entry marks a device that does not exist.
func (m *Mapper) secondary(r *report, id int) (*device.Device, bool) {
	if d, cached := r.secondaries[id]; cached {
		return d, d != nil
	}
	d, err := m.dir.GetDevice(r.ctx, id)
	if err != nil {
		r.secondaries[id] = nil
		return nil, false
	}
	r.secondaries[id] = d
	return d, true
}

// target resolves where a routed sensor property lands. additionalKey
// is the state name used on the primary for the default "additional"
// target. Returns ok=false when the handler should skip the property.
func (m *Mapper) target(r *report, property, additionalKey string) (*device.Device, string, device.PropertySetting, bool) {
	setting, ok := r.primary.Config.Property(property)
	if !ok || !setting.Enabled {
		return nil, "", setting, false
	}

	switch setting.Target {
	case device.TargetMain:
		return r.primary, "sensorValue", setting, true
	case device.TargetSecondary:
		sec, found := m.secondary(r, setting.SecondaryID)
		if !found {
			m.log.Warn("property routed to missing secondary device",
				"device", r.primary.Name, "property", property,
				"secondary_id", setting.SecondaryID)
			return nil, "", setting, false
		}
		if !sec.Enabled {
			return nil, "", setting, false
		}
		return sec, "sensorValue", setting, true
	default:
		return r.primary, additionalKey, setting, true
	}
}

// changed reports whether a state write would alter the stored value
// or its display string. Numeric comparison is type-insensitive since
// stored values round-trip through JSON.
func changed(target *device.Device, pending *stateBatch, key string, value any, ui string) bool {
	// A write already batched for this key this message wins over the
	// stored state.
	for _, u := range pending.updates[target.ID] {
		if u.Key == key {
			return !valuesEqual(u.Value, value) || u.UI != ui
		}
	}

	s, ok := target.States[key]
	if !ok {
		return true
	}
	return !valuesEqual(s.Value, value) || s.UI != ui
}

func valuesEqual(a, b any) bool {
	if af, ok := coerceFloat(a); ok {
		if bf, ok := coerceFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
