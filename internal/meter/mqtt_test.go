package meter

import "testing"

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"123.4", 123.4, false},
		{" 42 \n", 42, false},
		{"0", 0, false},
		{"-5.5", -5.5, false},
		{"", 0, true},
		{"watts", 0, true},
	}
	for _, tt := range tests {
		got, err := parseNumber([]byte(tt.in))
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseNumber(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseNumber(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in string
		on bool
		ok bool
	}{
		{"ON", true, true},
		{"on", true, true},
		{" On \n", true, true},
		{"1", true, true},
		{"true", true, true},
		{"OFF", false, true},
		{"0", false, true},
		{"false", false, true},
		{"toggle", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		on, ok := parseOnOff([]byte(tt.in))
		if on != tt.on || ok != tt.ok {
			t.Errorf("parseOnOff(%q) = %v,%v want %v,%v", tt.in, on, ok, tt.on, tt.ok)
		}
	}
}

func TestMQTTSourceDefaultPayloads(t *testing.T) {
	s := NewMQTTSource("washer", nil, MQTTConfig{PowerTopic: "washer/power"})
	if s.cfg.PayloadOn != "ON" || s.cfg.PayloadOff != "OFF" {
		t.Errorf("expected ON/OFF payload defaults, got %q/%q", s.cfg.PayloadOn, s.cfg.PayloadOff)
	}
}

func TestCommandWithoutTopicFails(t *testing.T) {
	s := NewMQTTSource("washer", nil, MQTTConfig{PowerTopic: "washer/power"})
	if err := s.TurnOn(); err == nil {
		t.Error("TurnOn without a command topic must fail")
	}
}
