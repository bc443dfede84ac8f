package controller

import (
	"log"
	"math"
	"time"
)

// Controller is the activity-inference state machine for one appliance. It
// consumes smoothed power samples and timer expiries, walks the
// off/standby/active graph for the configured mode, and drives the session
// accountant, the debounce timers and the schedule/auto-off policies.
//
// The caller must serialize all calls onto one goroutine; the controller is
// the sole owner of its state. External readers go through Status and the
// change-notification listeners, which never mutate.
type Controller struct {
	cfg    Config
	tune   tuning
	sw     Switch
	smooth *Smoother
	acct   *Accountant
	timers *TimerSet

	state           State
	blocked         bool
	wasOnBeforeOff  bool // physical switch was on when the block started
	switchOn        bool
	currentPower    float64
	currentEnergy   *float64
	powerAvailable  bool
	energyAvailable bool
	bootstrapped    bool

	listeners    map[int]func()
	nextListener int

	// OnCommit, when set, is invoked for every committed session, after
	// counters and history are updated.
	OnCommit func(HistoryEntry)
}

func New(cfg Config, sw Switch) *Controller {
	tune := cfg.tuning()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	return &Controller{
		cfg:       cfg,
		tune:      tune,
		sw:        sw,
		smooth:    NewSmoother(cfg.PowerSmoothing),
		acct:      NewAccountant(cfg.Name, tune.minDuration, cfg.HistorySize),
		timers:    NewTimerSet(),
		state:     StateOff,
		listeners: make(map[int]func()),
	}
}

func (c *Controller) Name() string { return c.cfg.Name }
func (c *Controller) Mode() Mode   { return c.cfg.Mode }

// DisplayState is the externally visible state: the activity state, or
// blocked while the schedule denies operation.
func (c *Controller) DisplayState() State {
	if c.blocked {
		return StateBlocked
	}
	return c.state
}

// ActivityState is the underlying state, unaffected by schedule blocking.
func (c *Controller) ActivityState() State { return c.state }

// CanTurnOn reports whether a manual turn-on is currently permitted.
func (c *Controller) CanTurnOn() bool { return !c.blocked }

// HandlePower processes a power sensor reading. Raw power feeds peak
// tracking; the smoothed value feeds the state machine. While blocked by the
// schedule the reading is recorded but no transition logic runs.
func (c *Controller) HandlePower(now time.Time, watts float64) {
	c.powerAvailable = true
	c.currentPower = watts
	c.smooth.Record(now, watts)
	c.acct.ObservePeak(watts)

	if c.blocked {
		return
	}
	if c.acct.CheckDayRollover(now) {
		c.notify()
	}

	initial := !c.bootstrapped
	c.bootstrapped = true

	smoothed := c.smooth.Current(now)
	if c.cfg.Mode == ModeStandby {
		c.handleStandby(now, smoothed, initial)
	} else {
		c.handleSimple(now, smoothed, initial)
	}

	// A session restored from a previous run is stale if the appliance is
	// no longer drawing power: close it on the bootstrap reading.
	if initial && c.state == StateOff && c.acct.SessionOpen() {
		log.Printf("%s: restored session is stale, closing it", c.cfg.Name)
		c.endSession(now)
	}
}

// HandleEnergy processes a cumulative energy reading.
func (c *Controller) HandleEnergy(now time.Time, kwh float64) {
	c.energyAvailable = true
	c.currentEnergy = &kwh
}

// HandlePowerUnavailable marks the power sensor unavailable. The update is
// skipped; no transition occurs.
func (c *Controller) HandlePowerUnavailable() {
	c.powerAvailable = false
}

// HandleEnergyUnavailable marks the energy sensor unavailable.
func (c *Controller) HandleEnergyUnavailable() {
	c.energyAvailable = false
}

// HandleSwitchState processes the physical switch's reported position. The
// auto-off timer is armed by the switch turning on and disarmed by it
// turning off, independent of the inferred activity state.
func (c *Controller) HandleSwitchState(now time.Time, on bool) {
	c.switchOn = on
	if on {
		c.armAutoOff(now)
	} else if c.timers.Pending(TimerAutoOff) {
		c.timers.Cancel(TimerAutoOff)
		c.notify()
	}
}

// Tick fires due timers. Timer expiries re-enter the state machine exactly
// as a power update would; the pending slot is cleared before the handler
// runs, so handlers may immediately re-arm a timer of the same kind.
func (c *Controller) Tick(now time.Time) {
	if c.acct.CheckDayRollover(now) {
		c.notify()
	}
	for {
		exp, ok := c.timers.PopDue(now)
		if !ok {
			return
		}
		switch exp.Kind {
		case TimerOn:
			c.transitionTo(now, exp.Target)
		case TimerOff:
			c.endSession(now)
		case TimerAutoOff:
			log.Printf("%s: auto-off timer expired, turning switch off", c.cfg.Name)
			if err := c.sw.TurnOff(); err != nil {
				log.Printf("%s: auto-off switch command failed: %v", c.cfg.Name, err)
			}
			c.endSession(now)
		}
	}
}

// EnforceSchedule evaluates the allowed-time window, forcing the switch off
// when the block starts and restoring it once when the block ends, if it was
// on before. Called once per minute and once at startup.
func (c *Controller) EnforceSchedule(now time.Time) {
	wasBlocked := c.blocked
	c.blocked = !c.cfg.Schedule.Within(now)

	switch {
	case c.blocked && !wasBlocked:
		c.timers.Cancel(TimerOn)
		c.timers.Cancel(TimerOff)
		if c.switchOn {
			c.wasOnBeforeOff = true
			log.Printf("%s: schedule end reached, turning off (will restore later)", c.cfg.Name)
			if err := c.sw.TurnOff(); err != nil {
				log.Printf("%s: schedule switch-off failed: %v", c.cfg.Name, err)
			}
			if c.state != StateOff {
				c.endSession(now)
			}
		} else {
			c.wasOnBeforeOff = false
		}
		c.notify()

	case !c.blocked && wasBlocked:
		if c.wasOnBeforeOff {
			log.Printf("%s: schedule start reached, restoring switch to on", c.cfg.Name)
			if err := c.sw.TurnOn(); err != nil {
				log.Printf("%s: schedule switch-on failed: %v", c.cfg.Name, err)
			}
			c.wasOnBeforeOff = false
		}
		c.notify()
	}
}

func (c *Controller) handleSimple(now time.Time, power float64, initial bool) {
	switch c.state {
	case StateOff:
		if power >= c.tune.activeThresholdW {
			if initial {
				c.transitionTo(now, StateActive)
			} else {
				c.timers.StartOn(now, c.tune.onDelay, StateActive)
			}
		} else {
			c.timers.Cancel(TimerOn)
		}
	case StateActive:
		if power < c.tune.activeThresholdW {
			c.timers.Start(TimerOff, now, c.tune.offDelay)
		} else {
			c.timers.Cancel(TimerOff)
		}
	}
}

func (c *Controller) handleStandby(now time.Time, power float64, initial bool) {
	switch c.state {
	case StateOff:
		switch {
		case power >= c.tune.activeThresholdW:
			if initial {
				c.transitionTo(now, StateActive)
			} else {
				c.timers.StartOn(now, c.tune.onDelay, StateActive)
			}
		case power >= c.tune.standbyThresholdW:
			if initial {
				c.transitionTo(now, StateStandby)
			} else {
				c.timers.StartOn(now, c.tune.onDelay, StateStandby)
			}
		default:
			c.timers.Cancel(TimerOn)
		}

	case StateStandby:
		switch {
		case power >= c.tune.activeThresholdW:
			// Real activity resumed: never debounced.
			c.timers.Cancel(TimerOff)
			c.transitionTo(now, StateActive)
		case power < c.tune.standbyThresholdW:
			if c.timers.Start(TimerOff, now, c.tune.sessionEndGrace) {
				log.Printf("%s: grace timer started (%s)", c.cfg.Name, c.tune.sessionEndGrace)
			}
		case !c.timers.Pending(TimerOff):
			// Power sits in the standby band. A pending grace timer is
			// deliberately left alone so flicker cannot reset it.
			c.timers.Cancel(TimerOff)
		}

	case StateActive:
		switch {
		case power < c.tune.standbyThresholdW:
			if c.timers.Start(TimerOff, now, c.tune.sessionEndGrace) {
				log.Printf("%s: grace timer started (%s)", c.cfg.Name, c.tune.sessionEndGrace)
			}
			c.timers.Cancel(TimerOn)
		case power < c.tune.activeThresholdW:
			// Dropping to standby uses its own shorter debounce. A
			// pending grace timer keeps its original deadline.
			c.timers.StartOn(now, c.tune.activeStandbyDelay, StateStandby)
		default:
			c.timers.Cancel(TimerOff)
			c.timers.Cancel(TimerOn)
		}
	}
}

func (c *Controller) transitionTo(now time.Time, target State) {
	if target == c.state {
		return
	}
	old := c.state
	if old == StateOff && (target == StateStandby || target == StateActive) {
		// A session restored from persistence is resumed, not restarted.
		if !c.acct.SessionOpen() {
			c.acct.Start(now, c.currentEnergy, c.currentPower)
		}
	}
	c.state = target
	log.Printf("%s: state %s -> %s", c.cfg.Name, old, target)
	c.notify()
}

func (c *Controller) endSession(now time.Time) {
	c.timers.Cancel(TimerAutoOff)
	c.timers.Cancel(TimerOn)
	c.timers.Cancel(TimerOff)

	start := c.acct.StartTime()
	res := c.acct.End(now, c.currentEnergy)
	c.state = StateOff
	if res.Committed && c.OnCommit != nil {
		c.OnCommit(HistoryEntry{
			Start:      start,
			End:        now,
			DurationS:  int(res.Duration.Seconds()),
			EnergyKWh:  res.EnergyKWh,
			PeakPowerW: res.PeakPowerW,
		})
	}
	c.notify()
}

func (c *Controller) armAutoOff(now time.Time) {
	if !c.cfg.AutoOff.Enabled {
		return
	}
	if c.timers.Start(TimerAutoOff, now, c.cfg.AutoOff.After) {
		log.Printf("%s: auto-off timer armed for %s", c.cfg.Name, c.cfg.AutoOff.After)
		c.notify()
	}
}

// ResetAllCounters zeroes every durable counter and the history.
func (c *Controller) ResetAllCounters() {
	c.acct.ResetAll()
	c.notify()
}

// ResetTodayCounters zeroes only the daily counters.
func (c *Controller) ResetTodayCounters() {
	c.acct.ResetToday()
	c.notify()
}

// RegisterListener subscribes a change-notification callback and returns its
// remove function. Listener panics are caught and logged per listener; one
// failing listener does not prevent notifying the others.
func (c *Controller) RegisterListener(fn func()) (remove func()) {
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() { delete(c.listeners, id) }
}

func (c *Controller) notify() {
	for id, fn := range c.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("%s: listener %d panicked: %v", c.cfg.Name, id, r)
				}
			}()
			fn()
		}()
	}
}

// Stop cancels all pending timers and detaches every listener. No callback
// fires after Stop returns.
func (c *Controller) Stop() {
	c.timers.CancelAll()
	c.listeners = make(map[int]func())
}

// Status is the full presentation view of a controller, with numeric values
// rounded for display.
type Status struct {
	Name  string `json:"name"`
	Mode  Mode   `json:"mode"`
	State State  `json:"state"`

	PowerW          float64  `json:"power_w"`
	SmoothedPowerW  float64  `json:"smoothed_power_w"`
	PowerAvailable  bool     `json:"power_available"`
	EnergyKWh       *float64 `json:"energy_kwh"`
	EnergyAvailable bool     `json:"energy_available"`
	SwitchOn        bool     `json:"switch_on"`

	SessionActive     bool       `json:"session_active"`
	SessionStart      *time.Time `json:"session_start,omitempty"`
	SessionDurationS  *int       `json:"session_duration_s,omitempty"`
	SessionEnergyKWh  *float64   `json:"session_energy_kwh,omitempty"`
	SessionPeakPowerW float64    `json:"session_peak_power_w"`

	SessionsTotal  int      `json:"sessions_total"`
	SessionsToday  int      `json:"sessions_today"`
	EnergyTodayKWh float64  `json:"energy_today_kwh"`
	EnergyTotalKWh float64  `json:"energy_total_kwh"`
	LastDurationS  *int     `json:"last_session_duration_s"`
	LastEnergyKWh  *float64 `json:"last_session_energy_kwh"`
	LastPeakPowerW *float64 `json:"last_session_peak_power_w"`
	AvgDurationS   *float64 `json:"avg_session_duration_s"`
	AvgEnergyKWh   *float64 `json:"avg_session_energy_kwh"`

	History []HistoryEntry `json:"session_history"`

	ScheduleEnabled bool       `json:"schedule_enabled"`
	ScheduleBlocked bool       `json:"schedule_blocked"`
	ScheduleStart   string     `json:"schedule_start,omitempty"`
	ScheduleEnd     string     `json:"schedule_end,omitempty"`
	ScheduleDays    []int      `json:"schedule_days,omitempty"`
	WillRestore     bool       `json:"schedule_will_restore"`
	AutoOffEnabled  bool       `json:"auto_off_enabled"`
	AutoOffAt       *time.Time `json:"auto_off_at,omitempty"`
}

// Status assembles the presentation view at now.
func (c *Controller) Status(now time.Time) Status {
	st := Status{
		Name:  c.cfg.Name,
		Mode:  c.cfg.Mode,
		State: c.DisplayState(),

		PowerW:          round2(c.currentPower),
		SmoothedPowerW:  round2(c.smooth.Current(now)),
		PowerAvailable:  c.powerAvailable,
		EnergyKWh:       copyFloat(c.currentEnergy),
		EnergyAvailable: c.energyAvailable,
		SwitchOn:        c.switchOn,

		SessionActive:     c.acct.SessionOpen(),
		SessionPeakPowerW: round1(c.acct.PeakPowerW()),

		SessionsTotal:  c.acct.SessionsTotal(),
		SessionsToday:  c.acct.SessionsToday(),
		EnergyTodayKWh: round3(c.acct.EnergyTodayKWh()),
		EnergyTotalKWh: round3(c.acct.EnergyTotalKWh()),
		LastDurationS:  c.acct.LastDurationS(),
		LastEnergyKWh:  roundPtr3(c.acct.LastEnergyKWh()),
		LastPeakPowerW: roundPtr1(c.acct.LastPeakPowerW()),
		AvgDurationS:   roundPtr1(c.acct.AvgDurationS()),
		AvgEnergyKWh:   roundPtr3(c.acct.AvgEnergyKWh()),

		History: c.acct.History(),

		ScheduleEnabled: c.cfg.Schedule.Enabled,
		ScheduleBlocked: c.blocked,
		WillRestore:     c.blocked && c.wasOnBeforeOff,
		AutoOffEnabled:  c.cfg.AutoOff.Enabled,
	}
	if c.cfg.Schedule.Enabled {
		st.ScheduleStart = c.cfg.Schedule.Start.String()
		st.ScheduleEnd = c.cfg.Schedule.End.String()
		for _, d := range c.cfg.Schedule.Days {
			st.ScheduleDays = append(st.ScheduleDays, int(d))
		}
	}
	if c.acct.SessionOpen() {
		start := c.acct.StartTime()
		duration := int(c.acct.CurrentDuration(now).Seconds())
		st.SessionStart = &start
		st.SessionDurationS = &duration
		st.SessionEnergyKWh = roundPtr3(c.acct.CurrentEnergy(c.currentEnergy))
	}
	if at := c.timers.Deadline(TimerAutoOff); !at.IsZero() {
		st.AutoOffAt = &at
	}
	return st
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func roundPtr1(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round1(*v)
	return &r
}

func roundPtr3(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round3(*v)
	return &r
}
