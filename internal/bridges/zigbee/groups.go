package zigbee

import "context"

// HandleGroupMessage processes a report published on a group's topic.
// The report runs against the synthetic group device only; member
// devices learn their own state from their individual reports.
func (m *Mapper) HandleGroupMessage(ctx context.Context, msg Message) {
	if m.filter.ShouldLog(msg.FriendlyName) {
		m.log.Debug("mqtt echo", "topic", msg.Topic, "payload", string(msg.Payload))
	}

	group, ok := m.topo.Group(msg.FriendlyName)
	if !ok {
		m.log.Debug("report for unknown group", "friendly_name", msg.FriendlyName, "seq", msg.Seq)
		return
	}
	if group.DeviceID == 0 {
		return
	}

	payload, ok := m.parsePayload(msg)
	if !ok {
		return
	}

	groupDev, err := m.dir.GetDevice(ctx, group.DeviceID)
	if err != nil {
		m.log.Warn("linked group missing from directory",
			"friendly_name", msg.FriendlyName, "device_id", group.DeviceID, "error", err)
		return
	}
	if !groupDev.Type.IsGroup() {
		m.log.Warn("group topic linked to non-group device",
			"friendly_name", msg.FriendlyName, "device_id", group.DeviceID, "type", groupDev.Type)
		return
	}

	m.process(ctx, msg, groupDev, payload)
}
