package controller

import (
	"time"
)

// Persisted record field names. The durable record is a flat map of
// primitive fields plus a bounded history list, so any host storage (a
// key-value row, a JSON blob) can carry it.
const (
	FieldSessionsTotal      = "sessions_total"
	FieldSessionsToday      = "sessions_today"
	FieldEnergyTodayKWh     = "energy_today_kwh"
	FieldEnergyTotalKWh     = "energy_total_kwh"
	FieldLastDurationS      = "last_session_duration_s"
	FieldLastEnergyKWh      = "last_session_energy_kwh"
	FieldLastPeakPowerW     = "last_session_peak_power_w"
	FieldTodayDate          = "today_date"
	FieldSessionActive      = "session_active"
	FieldSessionStartTime   = "session_start_time"
	FieldSessionStartEnergy = "session_start_energy"
	FieldSessionPeakPower   = "session_peak_power"
	FieldSessionHistory     = "session_history"
	FieldAvgDurationS       = "avg_session_duration_s"
	FieldAvgEnergyKWh       = "avg_session_energy_kwh"
)

const dateLayout = "2006-01-02"

// Snapshot is the durable state of a controller: every counter that must
// survive a restart, and the open session's start fields so it can be
// resumed. Live values (current duration, current power) are excluded; they
// are recomputed from the next sensor reading.
type Snapshot struct {
	SessionsTotal  int
	SessionsToday  int
	EnergyTodayKWh float64
	EnergyTotalKWh float64
	LastDurationS  *int
	LastEnergyKWh  *float64
	LastPeakPowerW *float64
	TodayDate      time.Time

	SessionActive      bool
	SessionStart       time.Time
	SessionStartEnergy *float64
	SessionPeakPowerW  float64

	History      []HistoryEntry
	AvgDurationS *float64
	AvgEnergyKWh *float64
}

// Snapshot captures the controller's durable state.
func (c *Controller) Snapshot() Snapshot {
	a := c.acct
	s := Snapshot{
		SessionsTotal:  a.sessionsTotal,
		SessionsToday:  a.sessionsToday,
		EnergyTodayKWh: a.energyTodayKWh,
		EnergyTotalKWh: a.energyTotalKWh,
		LastDurationS:  copyInt(a.lastDurationS),
		LastEnergyKWh:  copyFloat(a.lastEnergyKWh),
		LastPeakPowerW: copyFloat(a.lastPeakPowerW),
		TodayDate:      a.today,
		SessionActive:  a.open,
		History:        a.History(),
		AvgDurationS:   copyFloat(a.avgDurationS),
		AvgEnergyKWh:   copyFloat(a.avgEnergyKWh),
	}
	if a.open {
		s.SessionStart = a.startTime
		s.SessionStartEnergy = copyFloat(a.startEnergy)
		s.SessionPeakPowerW = a.peakPowerW
	}
	return s
}

// Restore loads a snapshot into the controller. An open session is resumed
// with its original start time, start energy and peak; the activity state
// itself is re-derived from the next power reading.
func (c *Controller) Restore(s Snapshot) {
	a := c.acct
	a.sessionsTotal = s.SessionsTotal
	a.sessionsToday = s.SessionsToday
	a.energyTodayKWh = s.EnergyTodayKWh
	a.energyTotalKWh = s.EnergyTotalKWh
	a.lastDurationS = copyInt(s.LastDurationS)
	a.lastEnergyKWh = copyFloat(s.LastEnergyKWh)
	a.lastPeakPowerW = copyFloat(s.LastPeakPowerW)
	a.today = s.TodayDate
	if len(s.History) > a.historySize {
		s.History = s.History[:a.historySize]
	}
	a.history = append([]HistoryEntry(nil), s.History...)
	a.recalcAverages()

	if s.SessionActive && !s.SessionStart.IsZero() {
		a.open = true
		a.startTime = s.SessionStart
		a.startEnergy = copyFloat(s.SessionStartEnergy)
		a.peakPowerW = s.SessionPeakPowerW
	}
}

// Record flattens the snapshot into the persisted field map.
func (s Snapshot) Record() map[string]any {
	rec := map[string]any{
		FieldSessionsTotal:  s.SessionsTotal,
		FieldSessionsToday:  s.SessionsToday,
		FieldEnergyTodayKWh: s.EnergyTodayKWh,
		FieldEnergyTotalKWh: s.EnergyTotalKWh,
		FieldSessionActive:  s.SessionActive,
	}
	if !s.TodayDate.IsZero() {
		rec[FieldTodayDate] = s.TodayDate.Format(dateLayout)
	}
	if s.LastDurationS != nil {
		rec[FieldLastDurationS] = *s.LastDurationS
	}
	if s.LastEnergyKWh != nil {
		rec[FieldLastEnergyKWh] = *s.LastEnergyKWh
	}
	if s.LastPeakPowerW != nil {
		rec[FieldLastPeakPowerW] = *s.LastPeakPowerW
	}
	if s.AvgDurationS != nil {
		rec[FieldAvgDurationS] = *s.AvgDurationS
	}
	if s.AvgEnergyKWh != nil {
		rec[FieldAvgEnergyKWh] = *s.AvgEnergyKWh
	}
	if s.SessionActive {
		rec[FieldSessionStartTime] = s.SessionStart.Format(time.RFC3339Nano)
		if s.SessionStartEnergy != nil {
			rec[FieldSessionStartEnergy] = *s.SessionStartEnergy
		}
		rec[FieldSessionPeakPower] = s.SessionPeakPowerW
	}
	if len(s.History) > 0 {
		history := make([]map[string]any, 0, len(s.History))
		for _, e := range s.History {
			history = append(history, map[string]any{
				"start":        e.Start.Format(time.RFC3339Nano),
				"end":          e.End.Format(time.RFC3339Nano),
				"duration_s":   e.DurationS,
				"energy_kwh":   e.EnergyKWh,
				"peak_power_w": e.PeakPowerW,
			})
		}
		rec[FieldSessionHistory] = history
	}
	return rec
}

// SnapshotFromRecord rebuilds a snapshot from a persisted field map.
// Individual malformed fields default (counters to zero, dates to now's day,
// timestamps to absent) rather than aborting the restore, so partial
// corruption does not lose all history.
func SnapshotFromRecord(rec map[string]any, now time.Time) Snapshot {
	s := Snapshot{
		SessionsTotal:  recInt(rec, FieldSessionsTotal),
		SessionsToday:  recInt(rec, FieldSessionsToday),
		EnergyTodayKWh: recFloat(rec, FieldEnergyTodayKWh),
		EnergyTotalKWh: recFloat(rec, FieldEnergyTotalKWh),
		LastDurationS:  recIntPtr(rec, FieldLastDurationS),
		LastEnergyKWh:  recFloatPtr(rec, FieldLastEnergyKWh),
		LastPeakPowerW: recFloatPtr(rec, FieldLastPeakPowerW),
		AvgDurationS:   recFloatPtr(rec, FieldAvgDurationS),
		AvgEnergyKWh:   recFloatPtr(rec, FieldAvgEnergyKWh),
		TodayDate:      dateOnly(now),
	}
	if raw, ok := rec[FieldTodayDate].(string); ok {
		if d, err := time.ParseInLocation(dateLayout, raw, now.Location()); err == nil {
			s.TodayDate = d
		}
	}
	if active, ok := rec[FieldSessionActive].(bool); ok && active {
		if start, ok := recTime(rec, FieldSessionStartTime); ok {
			s.SessionActive = true
			s.SessionStart = start
			s.SessionStartEnergy = recFloatPtr(rec, FieldSessionStartEnergy)
			s.SessionPeakPowerW = recFloat(rec, FieldSessionPeakPower)
		}
	}
	if rawHistory, ok := rec[FieldSessionHistory].([]map[string]any); ok {
		for _, raw := range rawHistory {
			e, ok := historyEntryFromRecord(raw)
			if !ok {
				continue
			}
			s.History = append(s.History, e)
		}
	} else if rawHistory, ok := rec[FieldSessionHistory].([]any); ok {
		for _, item := range rawHistory {
			raw, ok := item.(map[string]any)
			if !ok {
				continue
			}
			e, ok := historyEntryFromRecord(raw)
			if !ok {
				continue
			}
			s.History = append(s.History, e)
		}
	}
	return s
}

func historyEntryFromRecord(raw map[string]any) (HistoryEntry, bool) {
	start, okStart := recTime(raw, "start")
	end, okEnd := recTime(raw, "end")
	if !okStart || !okEnd {
		return HistoryEntry{}, false
	}
	return HistoryEntry{
		Start:      start,
		End:        end,
		DurationS:  recInt(raw, "duration_s"),
		EnergyKWh:  recFloat(raw, "energy_kwh"),
		PeakPowerW: recFloat(raw, "peak_power_w"),
	}, true
}

func recTime(rec map[string]any, key string) (time.Time, bool) {
	switch v := rec[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

func recFloat(rec map[string]any, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func recInt(rec map[string]any, key string) int {
	switch v := rec[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func recFloatPtr(rec map[string]any, key string) *float64 {
	if _, ok := rec[key]; !ok {
		return nil
	}
	switch rec[key].(type) {
	case float64, float32, int, int64:
		v := recFloat(rec, key)
		return &v
	}
	return nil
}

func recIntPtr(rec map[string]any, key string) *int {
	if _, ok := rec[key]; !ok {
		return nil
	}
	switch rec[key].(type) {
	case int, int64, float64:
		v := recInt(rec, key)
		return &v
	}
	return nil
}
