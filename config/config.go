package config

import (
	"fmt"
	"time"

	"appliance-monitor/internal/controller"
	"appliance-monitor/internal/meter"

	"github.com/spf13/viper"
)

type Config struct {
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Devices  []DeviceConfig `mapstructure:"devices"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type DeviceConfig struct {
	Name   string `mapstructure:"name"`
	Source string `mapstructure:"source"` // mqtt | modbus
	Mode   string `mapstructure:"mode"`   // simple | standby

	ActiveThresholdW    float64 `mapstructure:"active_threshold_w"`
	StandbyThresholdW   float64 `mapstructure:"standby_threshold_w"`
	OnDelayS            int     `mapstructure:"on_delay_s"`
	OffDelayS           int     `mapstructure:"off_delay_s"`
	ActiveStandbyDelayS int     `mapstructure:"active_standby_delay_s"`
	SessionEndGraceS    int     `mapstructure:"session_end_grace_s"`
	MinDurationS        int     `mapstructure:"min_duration_s"`
	PowerSmoothingS     int     `mapstructure:"power_smoothing_s"`
	HistorySize         int     `mapstructure:"history_size"`

	Schedule ScheduleConfig `mapstructure:"schedule"`
	AutoOff  AutoOffConfig  `mapstructure:"auto_off"`

	MQTT   DeviceMQTTConfig   `mapstructure:"mqtt"`
	Modbus DeviceModbusConfig `mapstructure:"modbus"`
}

type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Start   string `mapstructure:"start"`
	End     string `mapstructure:"end"`
	// Days uses 0=Monday .. 6=Sunday.
	Days []int `mapstructure:"days"`
}

type AutoOffConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Minutes int  `mapstructure:"minutes"`
}

type DeviceMQTTConfig struct {
	PowerTopic       string `mapstructure:"power_topic"`
	EnergyTopic      string `mapstructure:"energy_topic"`
	SwitchStateTopic string `mapstructure:"switch_state_topic"`
	CommandTopic     string `mapstructure:"command_topic"`
	PayloadOn        string `mapstructure:"payload_on"`
	PayloadOff       string `mapstructure:"payload_off"`
}

type DeviceModbusConfig struct {
	IP             string  `mapstructure:"ip"`
	Port           int     `mapstructure:"port"`
	SlaveID        uint8   `mapstructure:"slave_id"`
	Timeout        string  `mapstructure:"timeout"`
	PowerRegister  uint16  `mapstructure:"power_register"`
	PowerScale     float64 `mapstructure:"power_scale"`
	EnergyRegister uint16  `mapstructure:"energy_register"`
	EnergyScale    float64 `mapstructure:"energy_scale"`
	SwitchCoil     uint16  `mapstructure:"switch_coil"`
	HasSwitchCoil  bool    `mapstructure:"has_switch_coil"`
	PollIntervalS  int     `mapstructure:"poll_interval_s"`
}

// Detection defaults, per mode.
const (
	defaultSimpleActiveW     = 50
	defaultSimpleOnDelayS    = 3
	defaultSimpleOffDelayS   = 5
	defaultSimpleMinS        = 10
	defaultStandbyThresholdW = 5
	defaultStandbyActiveW    = 1000
	defaultStandbyGraceS     = 120
	defaultStandbyMinS       = 60
	defaultActiveStandbyS    = 30
	defaultHistorySize       = 10
	defaultAutoOffMinutes    = 60
)

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/appliance-monitor")
	}

	// Set defaults
	viper.SetDefault("mqtt.enabled", true)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "appliance")
	viper.SetDefault("mqtt.client_id", "appliance-monitor")
	viper.SetDefault("api.port", 8046)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("database.path", "./appliance.db")
	viper.SetDefault("database.retention_days", 365)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Devices {
		cfg.Devices[i].applyDefaults()
		if err := cfg.Devices[i].validate(); err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
	}

	return &cfg, nil
}

// applyDefaults fills mode-dependent detection defaults. Viper defaults do
// not reach into list entries, so this runs after unmarshal.
func (d *DeviceConfig) applyDefaults() {
	if d.Mode == "" {
		d.Mode = string(controller.ModeSimple)
	}
	if d.Source == "" {
		d.Source = "mqtt"
	}
	if d.ActiveThresholdW == 0 {
		if d.Mode == string(controller.ModeStandby) {
			d.ActiveThresholdW = defaultStandbyActiveW
		} else {
			d.ActiveThresholdW = defaultSimpleActiveW
		}
	}
	if d.StandbyThresholdW == 0 && d.Mode == string(controller.ModeStandby) {
		d.StandbyThresholdW = defaultStandbyThresholdW
	}
	if d.OnDelayS == 0 {
		d.OnDelayS = defaultSimpleOnDelayS
	}
	if d.OffDelayS == 0 {
		d.OffDelayS = defaultSimpleOffDelayS
	}
	if d.ActiveStandbyDelayS == 0 {
		d.ActiveStandbyDelayS = defaultActiveStandbyS
	}
	if d.SessionEndGraceS == 0 {
		d.SessionEndGraceS = defaultStandbyGraceS
	}
	if d.MinDurationS == 0 {
		if d.Mode == string(controller.ModeStandby) {
			d.MinDurationS = defaultStandbyMinS
		} else {
			d.MinDurationS = defaultSimpleMinS
		}
	}
	if d.HistorySize == 0 {
		d.HistorySize = defaultHistorySize
	}
	if d.Schedule.Start == "" {
		d.Schedule.Start = "06:00"
	}
	if d.Schedule.End == "" {
		d.Schedule.End = "22:00"
	}
	if len(d.Schedule.Days) == 0 {
		d.Schedule.Days = []int{0, 1, 2, 3, 4, 5, 6}
	}
	if d.AutoOff.Minutes == 0 {
		d.AutoOff.Minutes = defaultAutoOffMinutes
	}
	if d.MQTT.PayloadOn == "" {
		d.MQTT.PayloadOn = "ON"
	}
	if d.MQTT.PayloadOff == "" {
		d.MQTT.PayloadOff = "OFF"
	}
	if d.Modbus.Port == 0 {
		d.Modbus.Port = 502
	}
	if d.Modbus.SlaveID == 0 {
		d.Modbus.SlaveID = 1
	}
	if d.Modbus.Timeout == "" {
		d.Modbus.Timeout = "10s"
	}
	if d.Modbus.PowerScale == 0 {
		d.Modbus.PowerScale = 1
	}
	if d.Modbus.EnergyScale == 0 {
		d.Modbus.EnergyScale = 0.001
	}
	if d.Modbus.PollIntervalS == 0 {
		d.Modbus.PollIntervalS = 10
	}
}

func (d *DeviceConfig) validate() error {
	if d.Name == "" {
		return fmt.Errorf("missing device name")
	}
	switch d.Mode {
	case string(controller.ModeSimple), string(controller.ModeStandby):
	default:
		return fmt.Errorf("%s: invalid mode %q", d.Name, d.Mode)
	}
	if d.Mode == string(controller.ModeStandby) && d.StandbyThresholdW >= d.ActiveThresholdW {
		return fmt.Errorf("%s: standby threshold %.1fW must be below active threshold %.1fW",
			d.Name, d.StandbyThresholdW, d.ActiveThresholdW)
	}
	switch d.Source {
	case "mqtt":
		if d.MQTT.PowerTopic == "" {
			return fmt.Errorf("%s: mqtt source needs power_topic", d.Name)
		}
	case "modbus":
		if d.Modbus.IP == "" {
			return fmt.Errorf("%s: modbus source needs ip", d.Name)
		}
	default:
		return fmt.Errorf("%s: invalid source %q", d.Name, d.Source)
	}
	if d.Schedule.Enabled {
		if _, err := controller.ParseTimeOfDay(d.Schedule.Start); err != nil {
			return fmt.Errorf("%s: schedule start: %w", d.Name, err)
		}
		if _, err := controller.ParseTimeOfDay(d.Schedule.End); err != nil {
			return fmt.Errorf("%s: schedule end: %w", d.Name, err)
		}
		for _, day := range d.Schedule.Days {
			if day < 0 || day > 6 {
				return fmt.Errorf("%s: invalid schedule day %d", d.Name, day)
			}
		}
	}
	return nil
}

// ControllerConfig converts the device entry into the controller's config.
func (d DeviceConfig) ControllerConfig() controller.Config {
	cfg := controller.Config{
		Name:           d.Name,
		Mode:           controller.Mode(d.Mode),
		PowerSmoothing: time.Duration(d.PowerSmoothingS) * time.Second,
		HistorySize:    d.HistorySize,
		AutoOff: controller.AutoOffConfig{
			Enabled: d.AutoOff.Enabled,
			After:   time.Duration(d.AutoOff.Minutes) * time.Minute,
		},
	}

	if cfg.Mode == controller.ModeStandby {
		cfg.Standby = controller.StandbyTuning{
			StandbyThresholdW:  d.StandbyThresholdW,
			ActiveThresholdW:   d.ActiveThresholdW,
			OnDelay:            time.Duration(d.OnDelayS) * time.Second,
			OffDelay:           time.Duration(d.OffDelayS) * time.Second,
			ActiveStandbyDelay: time.Duration(d.ActiveStandbyDelayS) * time.Second,
			SessionEndGrace:    time.Duration(d.SessionEndGraceS) * time.Second,
			MinDuration:        time.Duration(d.MinDurationS) * time.Second,
		}
	} else {
		cfg.Simple = controller.SimpleTuning{
			ActiveThresholdW: d.ActiveThresholdW,
			OnDelay:          time.Duration(d.OnDelayS) * time.Second,
			OffDelay:         time.Duration(d.OffDelayS) * time.Second,
			MinDuration:      time.Duration(d.MinDurationS) * time.Second,
		}
	}

	if d.Schedule.Enabled {
		start, _ := controller.ParseTimeOfDay(d.Schedule.Start)
		end, _ := controller.ParseTimeOfDay(d.Schedule.End)
		days := make([]time.Weekday, 0, len(d.Schedule.Days))
		for _, day := range d.Schedule.Days {
			// Config uses 0=Monday; time.Weekday uses 0=Sunday.
			days = append(days, time.Weekday((day+1)%7))
		}
		cfg.Schedule = controller.ScheduleConfig{
			Enabled: true,
			Start:   start,
			End:     end,
			Days:    days,
		}
	}

	return cfg
}

// MeterConfig converts the device entry into its meter source config.
func (d DeviceConfig) MeterMQTTConfig() meter.MQTTConfig {
	return meter.MQTTConfig{
		PowerTopic:       d.MQTT.PowerTopic,
		EnergyTopic:      d.MQTT.EnergyTopic,
		SwitchStateTopic: d.MQTT.SwitchStateTopic,
		CommandTopic:     d.MQTT.CommandTopic,
		PayloadOn:        d.MQTT.PayloadOn,
		PayloadOff:       d.MQTT.PayloadOff,
	}
}

func (d DeviceConfig) MeterModbusConfig() meter.ModbusConfig {
	return meter.ModbusConfig{
		PowerRegister:  d.Modbus.PowerRegister,
		PowerScale:     d.Modbus.PowerScale,
		EnergyRegister: d.Modbus.EnergyRegister,
		EnergyScale:    d.Modbus.EnergyScale,
		SwitchCoil:     d.Modbus.SwitchCoil,
		HasSwitchCoil:  d.Modbus.HasSwitchCoil,
		PollInterval:   time.Duration(d.Modbus.PollIntervalS) * time.Second,
	}
}

// ModbusTimeout parses the device's modbus timeout string.
func (d DeviceConfig) ModbusTimeout() time.Duration {
	timeout, err := time.ParseDuration(d.Modbus.Timeout)
	if err != nil || timeout <= 0 {
		return 10 * time.Second
	}
	return timeout
}
