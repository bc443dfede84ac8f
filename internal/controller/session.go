package controller

import (
	"log"
	"time"
)

// CommitResult is the outcome of closing a session.
type CommitResult struct {
	Committed  bool
	Duration   time.Duration
	EnergyKWh  float64
	PeakPowerW float64
}

// Accountant owns session lifecycle and the durable usage counters: per-day
// and lifetime totals, last-session fields, a bounded most-recent-first
// history and its running averages.
type Accountant struct {
	name        string
	minDuration time.Duration
	historySize int

	// open session, valid while open is true
	open        bool
	startTime   time.Time
	startEnergy *float64
	peakPowerW  float64

	// durable counters
	sessionsTotal  int
	sessionsToday  int
	energyTodayKWh float64
	energyTotalKWh float64
	lastDurationS  *int
	lastEnergyKWh  *float64
	lastPeakPowerW *float64
	today          time.Time // date only, in local time
	history        []HistoryEntry
	avgDurationS   *float64
	avgEnergyKWh   *float64
}

func NewAccountant(name string, minDuration time.Duration, historySize int) *Accountant {
	return &Accountant{
		name:        name,
		minDuration: minDuration,
		historySize: historySize,
	}
}

// Start opens a session. Peak is seeded from the raw instantaneous power, not
// the smoothed value, so true peaks are never averaged away.
func (a *Accountant) Start(now time.Time, energy *float64, rawPowerW float64) {
	a.open = true
	a.startTime = now
	a.startEnergy = copyFloat(energy)
	a.peakPowerW = rawPowerW
	log.Printf("%s: session started at %s", a.name, now.Format(time.RFC3339))
}

// ObservePeak records a raw power reading while a session is open.
func (a *Accountant) ObservePeak(rawPowerW float64) {
	if a.open && rawPowerW > a.peakPowerW {
		a.peakPowerW = rawPowerW
	}
}

// End closes the open session. Sessions shorter than the minimum duration are
// discarded without touching any counter. A missing energy reading on either
// end records zero energy rather than failing the commit; duration and peak
// are still meaningful. The energy delta is floored at zero to defend against
// energy-sensor counter resets.
func (a *Accountant) End(now time.Time, energy *float64) CommitResult {
	if !a.open {
		return CommitResult{}
	}
	duration := now.Sub(a.startTime)
	if duration < a.minDuration {
		log.Printf("%s: session discarded (%.1fs < min %s)", a.name, duration.Seconds(), a.minDuration)
		a.clearSession()
		return CommitResult{}
	}

	var energyKWh float64
	if energy != nil && a.startEnergy != nil {
		energyKWh = *energy - *a.startEnergy
		if energyKWh < 0 {
			energyKWh = 0
		}
	} else {
		log.Printf("%s: energy sensor unavailable, session energy recorded as 0", a.name)
	}

	durationS := int(duration.Seconds())
	peak := a.peakPowerW

	a.sessionsTotal++
	a.sessionsToday++
	a.energyTodayKWh += energyKWh
	a.energyTotalKWh += energyKWh
	a.lastDurationS = &durationS
	a.lastEnergyKWh = &energyKWh
	a.lastPeakPowerW = &peak

	a.pushHistory(HistoryEntry{
		Start:      a.startTime,
		End:        now,
		DurationS:  durationS,
		EnergyKWh:  energyKWh,
		PeakPowerW: peak,
	})

	log.Printf("%s: session ended, duration=%ds energy=%.3fkWh peak=%.1fW",
		a.name, durationS, energyKWh, peak)

	a.clearSession()
	return CommitResult{
		Committed:  true,
		Duration:   duration,
		EnergyKWh:  energyKWh,
		PeakPowerW: peak,
	}
}

func (a *Accountant) clearSession() {
	a.open = false
	a.startTime = time.Time{}
	a.startEnergy = nil
	a.peakPowerW = 0
}

func (a *Accountant) pushHistory(e HistoryEntry) {
	a.history = append([]HistoryEntry{e}, a.history...)
	if len(a.history) > a.historySize {
		a.history = a.history[:a.historySize]
	}
	a.recalcAverages()
}

func (a *Accountant) recalcAverages() {
	if len(a.history) == 0 {
		a.avgDurationS = nil
		a.avgEnergyKWh = nil
		return
	}
	var totalDuration, totalEnergy float64
	for _, e := range a.history {
		totalDuration += float64(e.DurationS)
		totalEnergy += e.EnergyKWh
	}
	n := float64(len(a.history))
	avgDuration := totalDuration / n
	avgEnergy := totalEnergy / n
	a.avgDurationS = &avgDuration
	a.avgEnergyKWh = &avgEnergy
}

// CheckDayRollover zeroes the daily counters when the calendar day changed
// since the last processed event. Idempotent within a day. Returns true if a
// rollover happened.
func (a *Accountant) CheckDayRollover(now time.Time) bool {
	today := dateOnly(now)
	if a.today.IsZero() {
		a.today = today
		return false
	}
	if a.today.Equal(today) {
		return false
	}
	log.Printf("%s: day changed, resetting daily counters", a.name)
	a.sessionsToday = 0
	a.energyTodayKWh = 0
	a.today = today
	return true
}

// ResetAll zeroes every durable counter, the history and the averages. An
// open session is left open; its accounting starts fresh on commit.
func (a *Accountant) ResetAll() {
	a.sessionsTotal = 0
	a.sessionsToday = 0
	a.energyTodayKWh = 0
	a.energyTotalKWh = 0
	a.lastDurationS = nil
	a.lastEnergyKWh = nil
	a.lastPeakPowerW = nil
	a.history = nil
	a.recalcAverages()
}

// ResetToday zeroes only the daily counters.
func (a *Accountant) ResetToday() {
	a.sessionsToday = 0
	a.energyTodayKWh = 0
}

// SessionOpen reports whether a session is currently open.
func (a *Accountant) SessionOpen() bool { return a.open }

// StartTime returns the open session's start time, zero if none.
func (a *Accountant) StartTime() time.Time { return a.startTime }

// CurrentDuration returns the open session's elapsed time, zero if none.
func (a *Accountant) CurrentDuration(now time.Time) time.Duration {
	if !a.open {
		return 0
	}
	return now.Sub(a.startTime)
}

// CurrentEnergy returns the open session's energy so far given the latest
// cumulative reading, or nil when either reading is unavailable.
func (a *Accountant) CurrentEnergy(energy *float64) *float64 {
	if !a.open || a.startEnergy == nil || energy == nil {
		return nil
	}
	delta := *energy - *a.startEnergy
	if delta < 0 {
		delta = 0
	}
	return &delta
}

func (a *Accountant) PeakPowerW() float64      { return a.peakPowerW }
func (a *Accountant) SessionsTotal() int       { return a.sessionsTotal }
func (a *Accountant) SessionsToday() int       { return a.sessionsToday }
func (a *Accountant) EnergyTodayKWh() float64  { return a.energyTodayKWh }
func (a *Accountant) EnergyTotalKWh() float64  { return a.energyTotalKWh }
func (a *Accountant) LastDurationS() *int      { return copyInt(a.lastDurationS) }
func (a *Accountant) LastEnergyKWh() *float64  { return copyFloat(a.lastEnergyKWh) }
func (a *Accountant) LastPeakPowerW() *float64 { return copyFloat(a.lastPeakPowerW) }
func (a *Accountant) AvgDurationS() *float64   { return copyFloat(a.avgDurationS) }
func (a *Accountant) AvgEnergyKWh() *float64   { return copyFloat(a.avgEnergyKWh) }
func (a *Accountant) History() []HistoryEntry  { return append([]HistoryEntry(nil), a.history...) }

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
