package config

import (
	"testing"
	"time"

	"appliance-monitor/internal/controller"
)

func TestApplyDefaultsSimpleMode(t *testing.T) {
	d := DeviceConfig{Name: "washer", MQTT: DeviceMQTTConfig{PowerTopic: "washer/power"}}
	d.applyDefaults()

	if d.Mode != "simple" || d.Source != "mqtt" {
		t.Errorf("expected simple/mqtt defaults, got %s/%s", d.Mode, d.Source)
	}
	if d.ActiveThresholdW != 50 {
		t.Errorf("expected simple threshold 50W, got %v", d.ActiveThresholdW)
	}
	if d.OnDelayS != 3 || d.OffDelayS != 5 || d.MinDurationS != 10 {
		t.Errorf("expected simple delays 3/5/10, got %d/%d/%d", d.OnDelayS, d.OffDelayS, d.MinDurationS)
	}
	if d.HistorySize != 10 {
		t.Errorf("expected history size 10, got %d", d.HistorySize)
	}
	if d.Schedule.Start != "06:00" || d.Schedule.End != "22:00" || len(d.Schedule.Days) != 7 {
		t.Errorf("unexpected schedule defaults: %+v", d.Schedule)
	}
	if d.AutoOff.Minutes != 60 {
		t.Errorf("expected auto-off default 60min, got %d", d.AutoOff.Minutes)
	}
	if err := d.validate(); err != nil {
		t.Errorf("defaulted config must validate: %v", err)
	}
}

func TestApplyDefaultsStandbyMode(t *testing.T) {
	d := DeviceConfig{Name: "tv", Mode: "standby", MQTT: DeviceMQTTConfig{PowerTopic: "tv/power"}}
	d.applyDefaults()

	if d.StandbyThresholdW != 5 || d.ActiveThresholdW != 1000 {
		t.Errorf("expected standby thresholds 5/1000, got %v/%v", d.StandbyThresholdW, d.ActiveThresholdW)
	}
	if d.SessionEndGraceS != 120 || d.MinDurationS != 60 || d.ActiveStandbyDelayS != 30 {
		t.Errorf("expected standby timings 120/60/30, got %d/%d/%d",
			d.SessionEndGraceS, d.MinDurationS, d.ActiveStandbyDelayS)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		d    DeviceConfig
	}{
		{"missing name", DeviceConfig{MQTT: DeviceMQTTConfig{PowerTopic: "x"}}},
		{"bad mode", DeviceConfig{Name: "x", Mode: "turbo", MQTT: DeviceMQTTConfig{PowerTopic: "x"}}},
		{"standby threshold above active", DeviceConfig{
			Name: "x", Mode: "standby", StandbyThresholdW: 2000,
			MQTT: DeviceMQTTConfig{PowerTopic: "x"},
		}},
		{"mqtt without power topic", DeviceConfig{Name: "x"}},
		{"modbus without ip", DeviceConfig{Name: "x", Source: "modbus"}},
		{"bad source", DeviceConfig{Name: "x", Source: "zigbee"}},
		{"bad schedule start", DeviceConfig{
			Name: "x", MQTT: DeviceMQTTConfig{PowerTopic: "x"},
			Schedule: ScheduleConfig{Enabled: true, Start: "25:00"},
		}},
		{"bad schedule day", DeviceConfig{
			Name: "x", MQTT: DeviceMQTTConfig{PowerTopic: "x"},
			Schedule: ScheduleConfig{Enabled: true, Days: []int{7}},
		}},
	}
	for _, tt := range tests {
		d := tt.d
		d.applyDefaults()
		if err := d.validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestControllerConfigWeekdayMapping(t *testing.T) {
	d := DeviceConfig{
		Name: "washer",
		MQTT: DeviceMQTTConfig{PowerTopic: "washer/power"},
		Schedule: ScheduleConfig{
			Enabled: true,
			Start:   "06:00",
			End:     "22:00",
			// 0=Monday, 5=Saturday, 6=Sunday.
			Days: []int{0, 5, 6},
		},
	}
	d.applyDefaults()

	cfg := d.ControllerConfig()
	want := []time.Weekday{time.Monday, time.Saturday, time.Sunday}
	if len(cfg.Schedule.Days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(cfg.Schedule.Days))
	}
	for i, w := range want {
		if cfg.Schedule.Days[i] != w {
			t.Errorf("day %d: expected %v, got %v", i, w, cfg.Schedule.Days[i])
		}
	}
	if cfg.Schedule.Start != (controller.TimeOfDay{Hour: 6}) {
		t.Errorf("unexpected start: %+v", cfg.Schedule.Start)
	}
}

func TestControllerConfigTimings(t *testing.T) {
	d := DeviceConfig{
		Name:    "tv",
		Mode:    "standby",
		MQTT:    DeviceMQTTConfig{PowerTopic: "tv/power"},
		AutoOff: AutoOffConfig{Enabled: true, Minutes: 90},
	}
	d.applyDefaults()

	cfg := d.ControllerConfig()
	if cfg.Mode != controller.ModeStandby {
		t.Fatalf("expected standby mode, got %s", cfg.Mode)
	}
	if cfg.Standby.SessionEndGrace != 120*time.Second {
		t.Errorf("expected grace 120s, got %v", cfg.Standby.SessionEndGrace)
	}
	if cfg.Standby.MinDuration != 60*time.Second {
		t.Errorf("expected min duration 60s, got %v", cfg.Standby.MinDuration)
	}
	if !cfg.AutoOff.Enabled || cfg.AutoOff.After != 90*time.Minute {
		t.Errorf("unexpected auto-off config: %+v", cfg.AutoOff)
	}
}

func TestModbusTimeout(t *testing.T) {
	d := DeviceConfig{Modbus: DeviceModbusConfig{Timeout: "3s"}}
	if got := d.ModbusTimeout(); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}

	d.Modbus.Timeout = "banana"
	if got := d.ModbusTimeout(); got != 10*time.Second {
		t.Errorf("expected fallback 10s, got %v", got)
	}
}
