package mqtt

import "testing"

func TestTopics_Builders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.DeviceStatus("AA:BB"), "eLan/AA:BB/status"},
		{"command", topics.DeviceCommand("AA:BB"), "eLan/AA:BB/command"},
		{"availability", topics.Availability(), "eLan/bridge/availability"},
		{"discovery primary", topics.Discovery("light", "AA:BB", ""), "homeassistant/light/AA:BB/config"},
		{"discovery suffix", topics.Discovery("sensor", "AA:BB", "battery"), "homeassistant/sensor/AA:BB/battery/config"},
		{"custom prefix", Topics{Prefix: "home", DiscoveryPrefix: "ha"}.Discovery("switch", "x", ""), "ha/switch/x/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_ParseCommand(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"eLan/AA:BB/command", "AA:BB", true},
		{"eLan/12345/command", "12345", true},
		{"eLan/AA:BB/status", "", false},
		{"eLan//command", "", false},
		{"other/AA:BB/command", "", false},
		{"eLan/AA/BB/command", "", false},
		{"eLan/AA:BB", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		id, ok := topics.ParseCommand(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseCommand(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}

	// A round trip through the builder always parses.
	if id, ok := topics.ParseCommand(topics.DeviceCommand("01:02:03")); !ok || id != "01:02:03" {
		t.Errorf("ParseCommand(DeviceCommand) = (%q, %v)", id, ok)
	}
}
