// Package controller infers appliance activity from power readings and tracks
// usage sessions. The package is pure: no goroutines, no I/O and no calls to
// time.Now. Every entry point takes the current time as a parameter, so a
// single goroutine (the device runner) owns each Controller and tests can
// drive the clock explicitly.
package controller

import "time"

// Mode selects the transition graph of the state machine.
type Mode string

const (
	// ModeSimple uses two states (off/active) and one power threshold.
	ModeSimple Mode = "simple"
	// ModeStandby adds a standby state between two thresholds, for
	// appliances that idle at a few watts between cycles.
	ModeStandby Mode = "standby"
)

// State is the inferred activity state of the appliance.
type State string

const (
	StateOff     State = "off"
	StateStandby State = "standby"
	StateActive  State = "active"
	// StateBlocked is a display-only state: the schedule currently denies
	// operation. The underlying activity state is preserved while blocked.
	StateBlocked State = "blocked"
)

// SimpleTuning holds the detection parameters for ModeSimple.
type SimpleTuning struct {
	ActiveThresholdW float64
	OnDelay          time.Duration
	OffDelay         time.Duration
	MinDuration      time.Duration
}

// StandbyTuning holds the detection parameters for ModeStandby.
// StandbyThresholdW must be below ActiveThresholdW.
type StandbyTuning struct {
	StandbyThresholdW  float64
	ActiveThresholdW   float64
	OnDelay            time.Duration
	OffDelay           time.Duration
	ActiveStandbyDelay time.Duration
	SessionEndGrace    time.Duration
	MinDuration        time.Duration
}

// ScheduleConfig is an allowed-time window. Outside the window the switch is
// forced off and power input is ignored.
type ScheduleConfig struct {
	Enabled bool
	Start   TimeOfDay
	End     TimeOfDay
	Days    []time.Weekday
}

// AutoOffConfig is the inactivity safety timer, tied to the physical switch's
// own reported on state.
type AutoOffConfig struct {
	Enabled bool
	After   time.Duration
}

// Config describes one monitored appliance. Exactly one of Simple or Standby
// is consulted, selected by Mode.
type Config struct {
	Name           string
	Mode           Mode
	Simple         SimpleTuning
	Standby        StandbyTuning
	PowerSmoothing time.Duration
	HistorySize    int
	Schedule       ScheduleConfig
	AutoOff        AutoOffConfig
}

// tuning is the normalized parameter set the state machine runs on.
// In simple mode the standby threshold is pinned to 0 and the grace and
// standby-transition delays alias the off and on delays.
type tuning struct {
	standbyThresholdW  float64
	activeThresholdW   float64
	onDelay            time.Duration
	offDelay           time.Duration
	activeStandbyDelay time.Duration
	sessionEndGrace    time.Duration
	minDuration        time.Duration
}

func (c Config) tuning() tuning {
	if c.Mode == ModeStandby {
		return tuning{
			standbyThresholdW:  c.Standby.StandbyThresholdW,
			activeThresholdW:   c.Standby.ActiveThresholdW,
			onDelay:            c.Standby.OnDelay,
			offDelay:           c.Standby.OffDelay,
			activeStandbyDelay: c.Standby.ActiveStandbyDelay,
			sessionEndGrace:    c.Standby.SessionEndGrace,
			minDuration:        c.Standby.MinDuration,
		}
	}
	return tuning{
		standbyThresholdW:  0,
		activeThresholdW:   c.Simple.ActiveThresholdW,
		onDelay:            c.Simple.OnDelay,
		offDelay:           c.Simple.OffDelay,
		activeStandbyDelay: c.Simple.OnDelay,
		sessionEndGrace:    c.Simple.OffDelay,
		minDuration:        c.Simple.MinDuration,
	}
}

// HistoryEntry is one committed session.
type HistoryEntry struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DurationS  int       `json:"duration_s"`
	EnergyKWh  float64   `json:"energy_kwh"`
	PeakPowerW float64   `json:"peak_power_w"`
}

// Switch commands the physical switch. Commands are not retried on failure;
// the caller surfaces the error to the operator, since a local retry could
// race with the user's own next command.
type Switch interface {
	TurnOn() error
	TurnOff() error
}
