package zigbee

import (
	"errors"
	"reflect"
	"testing"
)

func TestPropertiesFromExposes(t *testing.T) {
	tests := []struct {
		name    string
		exposes []exposeNode
		want    []string
	}{
		{
			name: "switch exposes synthesise onoff",
			exposes: []exposeNode{
				{Type: "switch", Features: []exposeNode{{Property: "state"}}},
				{Property: "linkquality"},
			},
			want: []string{"state", "onoff", "linkquality"},
		},
		{
			name: "flat sensor exposes",
			exposes: []exposeNode{
				{Property: "temperature"},
				{Property: "humidity"},
				{Property: "battery"},
			},
			want: []string{"temperature", "humidity", "battery"},
		},
		{
			name: "one level flattening only",
			exposes: []exposeNode{
				{Type: "light", Features: []exposeNode{
					{Property: "brightness"},
					{Type: "composite", Property: "color", Features: []exposeNode{
						{Property: "hue"},
					}},
				}},
			},
			want: []string{"brightness", "color"},
		},
		{
			name: "duplicates collapse",
			exposes: []exposeNode{
				{Property: "state"},
				{Type: "switch", Features: []exposeNode{{Property: "state"}}},
			},
			want: []string{"state", "onoff"},
		},
		{
			name:    "empty exposes",
			exposes: nil,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := propertiesFromExposes(tt.exposes)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("properties = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseBridgeDevices(t *testing.T) {
	payload := `[
		{"ieee_address":"0xAAA","friendly_name":"Plug1","type":"Router","disabled":false,
		 "definition":{"model":"TS011F","vendor":"TuYa",
		  "exposes":[{"type":"switch","features":[{"property":"state"}]},{"property":"linkquality"}]}},
		{"ieee_address":"0xBBB","friendly_name":"BareSensor","type":"EndDevice","definition":null}
	]`

	records, err := parseBridgeDevices([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}

	d := meshDeviceFromRecord(records[0])
	if d.IEEE != "0xAAA" || d.Model != "TS011F" || d.Vendor != "TuYa" {
		t.Errorf("mesh device = %+v, want 0xAAA/TS011F/TuYa", d)
	}
	if !reflect.DeepEqual(d.Properties, []string{"state", "onoff", "linkquality"}) {
		t.Errorf("properties = %v, want [state onoff linkquality]", d.Properties)
	}
	if d.DeviceID != 0 {
		t.Errorf("device id = %d, want 0 before linking", d.DeviceID)
	}

	bare := meshDeviceFromRecord(records[1])
	if bare.Properties != nil {
		t.Errorf("properties without definition = %v, want nil", bare.Properties)
	}
}

func TestParseBridgeDevicesMalformed(t *testing.T) {
	_, err := parseBridgeDevices([]byte(`{"not":"an array"}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("error = %v, want ErrMalformedPayload", err)
	}
}

func TestParseBridgeGroups(t *testing.T) {
	payload := `[
		{"id":5,"friendly_name":"LivingRoom",
		 "members":[{"ieee_address":"0x1","endpoint":1},{"ieee_address":"0x2","endpoint":1}]}
	]`

	records, err := parseBridgeGroups([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 1 || records[0].ID != 5 || len(records[0].Members) != 2 {
		t.Errorf("records = %+v, want one group of two members", records)
	}

	if _, err := parseBridgeGroups([]byte(`nope`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("malformed error = %v, want ErrMalformedPayload", err)
	}
}
