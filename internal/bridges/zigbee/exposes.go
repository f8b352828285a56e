package zigbee

import (
	"encoding/json"
	"fmt"
)

// bridgeDeviceRecord mirrors one entry of the zigbee2mqtt
// {root}/bridge/devices snapshot.
type bridgeDeviceRecord struct {
	IEEEAddress  string `json:"ieee_address"`
	FriendlyName string `json:"friendly_name"`
	Type         string `json:"type"`
	Disabled     bool   `json:"disabled"`
	Definition   *struct {
		Model   string       `json:"model"`
		Vendor  string       `json:"vendor"`
		Exposes []exposeNode `json:"exposes"`
	} `json:"definition"`
}

// exposeNode is one node of a device's exposes tree. Composite exposes
// (switch, light, cover) carry their properties one level down in
// features.
type exposeNode struct {
	Type     string       `json:"type"`
	Property string       `json:"property"`
	Features []exposeNode `json:"features"`
}

// bridgeGroupRecord mirrors one entry of the zigbee2mqtt
// {root}/bridge/groups snapshot.
type bridgeGroupRecord struct {
	ID           int    `json:"id"`
	FriendlyName string `json:"friendly_name"`
	Members      []struct {
		IEEEAddress string `json:"ieee_address"`
		Endpoint    int    `json:"endpoint"`
	} `json:"members"`
}

// parseBridgeDevices decodes a bridge devices snapshot payload.
func parseBridgeDevices(payload []byte) ([]bridgeDeviceRecord, error) {
	var records []bridgeDeviceRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: devices snapshot: %v", ErrMalformedPayload, err)
	}
	return records, nil
}

// parseBridgeGroups decodes a bridge groups snapshot payload.
func parseBridgeGroups(payload []byte) ([]bridgeGroupRecord, error) {
	var records []bridgeGroupRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: groups snapshot: %v", ErrMalformedPayload, err)
	}
	return records, nil
}

// propertiesFromExposes flattens a device's exposes tree into the list
// of reported property names. Composite exposes are flattened exactly
// one level: their direct features contribute, deeper nesting does not.
// A device exposing "state" also reports the synthesised "onoff"
// companion property.
func propertiesFromExposes(exposes []exposeNode) []string {
	var props []string
	seen := make(map[string]bool)

	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		props = append(props, p)
		if p == "state" && !seen["onoff"] {
			seen["onoff"] = true
			props = append(props, "onoff")
		}
	}

	for _, node := range exposes {
		add(node.Property)
		for _, feature := range node.Features {
			add(feature.Property)
		}
	}
	return props
}

// meshDeviceFromRecord maps one snapshot record onto a MeshDevice.
func meshDeviceFromRecord(rec bridgeDeviceRecord) MeshDevice {
	d := MeshDevice{
		IEEE:         rec.IEEEAddress,
		FriendlyName: rec.FriendlyName,
		Type:         rec.Type,
		Disabled:     rec.Disabled,
	}
	if rec.Definition != nil {
		d.Model = rec.Definition.Model
		d.Vendor = rec.Definition.Vendor
		d.Properties = propertiesFromExposes(rec.Definition.Exposes)
	}
	return d
}
