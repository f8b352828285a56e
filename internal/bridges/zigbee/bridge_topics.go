package zigbee

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/graymesh/zigbee-core/internal/device"
)

// BridgeTopics handles the coordinator's administrative topics:
// {root}/bridge/devices, groups, state, info and logging.
type BridgeTopics struct {
	coordinatorID int
	dir           Directory
	topo          *Topology
	log           Logger
}

// NewBridgeTopics creates a handler for one coordinator.
func NewBridgeTopics(coordinatorID int, dir Directory, topo *Topology, log Logger) *BridgeTopics {
	if log == nil {
		log = nopLogger{}
	}
	return &BridgeTopics{
		coordinatorID: coordinatorID,
		dir:           dir,
		topo:          topo,
		log:           log,
	}
}

// Handle routes one bridge-classified message.
func (b *BridgeTopics) Handle(ctx context.Context, msg Message) {
	if len(msg.Segments) < 3 {
		return
	}
	switch msg.Segments[2] {
	case "devices":
		b.handleDevices(ctx, msg)
	case "groups":
		b.handleGroups(ctx, msg)
	case "state":
		b.handleState(ctx, msg)
	case "info":
		b.handleInfo(ctx, msg)
	case "logging":
		b.handleLogging(msg)
	default:
		b.log.Debug("unhandled bridge topic", "topic", msg.Topic)
	}
}

// handleDevices ingests a full mesh snapshot. Known node types are
// upserted preserving platform links; an address change of the
// coordinator re-keys its directory row without touching its id.
func (b *BridgeTopics) handleDevices(ctx context.Context, msg Message) {
	records, err := parseBridgeDevices(msg.Payload)
	if err != nil {
		b.log.Warn("invalid bridge devices snapshot", "seq", msg.Seq, "error", err)
		return
	}

	var batch []MeshDevice
	for _, rec := range records {
		switch rec.Type {
		case NodeTypeCoordinator:
			b.rekeyCoordinator(ctx, rec.IEEEAddress)
		case NodeTypeRouter, NodeTypeEndDevice:
		default:
			b.log.Info("skipping unknown mesh node type",
				"type", rec.Type, "ieee", rec.IEEEAddress, "friendly_name", rec.FriendlyName)
			continue
		}

		mesh := meshDeviceFromRecord(rec)
		mesh.DeviceID = b.resolveLink(ctx, mesh.IEEE)
		batch = append(batch, mesh)
	}

	b.topo.UpsertDevices(batch)
	b.log.Debug("mesh snapshot applied",
		"coordinator", b.coordinatorID, "devices", len(batch))
}

// rekeyCoordinator moves the coordinator's directory row and topology
// entry to a new IEEE address when it changes, keeping the platform id.
// On the first snapshot after startup the previous address comes from
// the stored directory row rather than the empty topology.
func (b *BridgeTopics) rekeyCoordinator(ctx context.Context, newIEEE string) {
	old := b.topo.CoordinatorIEEE()
	if old == newIEEE && old != "" {
		return
	}

	if old == "" {
		d, err := b.dir.GetDevice(ctx, b.coordinatorID)
		if err != nil || d.Address == newIEEE {
			b.topo.RekeyCoordinator(newIEEE)
			return
		}
		old = d.Address
	}

	err := b.dir.RekeyAddress(ctx, b.coordinatorID, old, newIEEE)
	if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		b.log.Warn("failed to rekey coordinator address",
			"old", old, "new", newIEEE, "error", err)
		return
	}
	b.topo.RekeyCoordinator(newIEEE)
	b.log.Info("coordinator address changed", "old", old, "new", newIEEE)
}

// resolveLink looks up the platform device id for a mesh address.
// Unlinked addresses resolve to 0.
func (b *BridgeTopics) resolveLink(ctx context.Context, address string) int {
	d, err := b.dir.GetByAddress(ctx, b.coordinatorID, address)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			b.log.Warn("directory lookup failed", "address", address, "error", err)
		}
		return 0
	}
	return d.ID
}

// handleGroups replaces the group set wholesale and syncs directory
// group membership for linked groups.
func (b *BridgeTopics) handleGroups(ctx context.Context, msg Message) {
	records, err := parseBridgeGroups(msg.Payload)
	if err != nil {
		b.log.Warn("invalid bridge groups snapshot", "seq", msg.Seq, "error", err)
		return
	}

	groups := make([]MeshGroup, 0, len(records))
	for _, rec := range records {
		g := MeshGroup{
			ID:           rec.ID,
			FriendlyName: rec.FriendlyName,
		}
		for _, member := range rec.Members {
			g.Members = append(g.Members, member.IEEEAddress)
		}
		g.DeviceID = b.resolveLink(ctx, strconv.Itoa(rec.ID))
		groups = append(groups, g)

		if g.DeviceID != 0 {
			b.syncGroupMembers(ctx, g)
		}
	}

	b.topo.ReplaceGroups(groups)
	b.log.Debug("group snapshot applied",
		"coordinator", b.coordinatorID, "groups", len(groups))
}

// syncGroupMembers rewrites directory membership from the snapshot,
// keeping only members that are themselves linked.
func (b *BridgeTopics) syncGroupMembers(ctx context.Context, g MeshGroup) {
	var memberIDs []int
	for _, ieee := range g.Members {
		if id := b.resolveLink(ctx, ieee); id != 0 {
			memberIDs = append(memberIDs, id)
		}
	}
	if err := b.dir.ReplaceGroupMembers(ctx, g.DeviceID, memberIDs); err != nil {
		b.log.Warn("failed to sync group members",
			"group", g.FriendlyName, "device_id", g.DeviceID, "error", err)
	}
}

// handleState tracks the zigbee2mqtt bridge process itself going
// online or offline, surfaced as the coordinator device's error state.
func (b *BridgeTopics) handleState(ctx context.Context, msg Message) {
	state := string(msg.Payload)
	var wrapped struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(msg.Payload, &wrapped); err == nil && wrapped.State != "" {
		state = wrapped.State
	}

	switch state {
	case "online":
		if err := b.dir.SetErrorState(ctx, b.coordinatorID, ""); err != nil {
			b.log.Warn("failed to clear coordinator error state", "error", err)
			return
		}
		b.log.Info("bridge online", "coordinator", b.coordinatorID)
	case "offline":
		if err := b.dir.SetErrorState(ctx, b.coordinatorID, "bridge offline"); err != nil {
			b.log.Warn("failed to set coordinator error state", "error", err)
			return
		}
		b.log.Warn("bridge offline", "coordinator", b.coordinatorID)
	default:
		b.log.Debug("unrecognised bridge state", "payload", state)
	}
}

// handleInfo records bridge version details on the coordinator device.
func (b *BridgeTopics) handleInfo(ctx context.Context, msg Message) {
	var info struct {
		Version     string `json:"version"`
		Coordinator struct {
			IEEEAddress string `json:"ieee_address"`
			Type        string `json:"type"`
		} `json:"coordinator"`
	}
	if err := json.Unmarshal(msg.Payload, &info); err != nil {
		b.log.Warn("invalid bridge info payload", "seq", msg.Seq, "error", err)
		return
	}

	if info.Coordinator.IEEEAddress != "" {
		b.rekeyCoordinator(ctx, info.Coordinator.IEEEAddress)
	}

	if info.Version != "" {
		updates := []device.StateUpdate{
			{Key: "bridgeVersion", Value: info.Version, UI: info.Version},
		}
		if info.Coordinator.Type != "" {
			updates = append(updates, device.StateUpdate{
				Key: "coordinatorType", Value: info.Coordinator.Type, UI: info.Coordinator.Type,
			})
		}
		if err := b.dir.BatchUpdateStates(ctx, b.coordinatorID, updates); err != nil {
			b.log.Warn("failed to record bridge info", "error", err)
		}
	}
}

// handleLogging echoes zigbee2mqtt's own log stream at debug level.
func (b *BridgeTopics) handleLogging(msg Message) {
	var entry struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		return
	}
	b.log.Debug("zigbee2mqtt log",
		"coordinator", b.coordinatorID, "level", entry.Level, "message", entry.Message)
}
