package zigbee

import "testing"

func TestTopicFilter(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		probe   string
		want    bool
	}{
		{"empty list echoes nothing", nil, "Plug1", false},
		{"NONE echoes nothing", []string{"NONE"}, "Plug1", false},
		{"ALL echoes everything", []string{"ALL"}, "Plug1", true},
		{"lowercase all", []string{"all"}, "Plug1", true},
		{"listed name", []string{"Plug1", "Lamp"}, "Plug1", true},
		{"unlisted name", []string{"Plug1", "Lamp"}, "Heater", false},
		{"ALL wins over names", []string{"Plug1", "ALL"}, "Heater", true},
		{"blank entries ignored", []string{"", "Plug1"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewTopicFilter(tt.entries)
			if got := f.ShouldLog(tt.probe); got != tt.want {
				t.Errorf("ShouldLog(%q) = %v, want %v", tt.probe, got, tt.want)
			}
		})
	}
}

func TestTopicFilterReplace(t *testing.T) {
	f := NewTopicFilter([]string{"Plug1"})
	if !f.ShouldLog("Plug1") {
		t.Fatal("initial entry not honoured")
	}

	f.Replace([]string{"Lamp"})
	if f.ShouldLog("Plug1") {
		t.Error("old entry survived replace")
	}
	if !f.ShouldLog("Lamp") {
		t.Error("new entry not honoured after replace")
	}
}
