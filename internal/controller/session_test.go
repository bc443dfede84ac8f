package controller

import (
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestAccountantCommit(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 10*time.Second, 10)

	a.Start(start, floatPtr(100.0), 500)
	a.ObservePeak(1800)
	a.ObservePeak(900)

	res := a.End(start.Add(20*time.Minute), floatPtr(100.75))
	if !res.Committed {
		t.Fatal("expected session to commit")
	}
	if res.Duration != 20*time.Minute {
		t.Errorf("expected duration 20m, got %v", res.Duration)
	}
	if res.EnergyKWh != 0.75 {
		t.Errorf("expected energy 0.75, got %v", res.EnergyKWh)
	}
	if res.PeakPowerW != 1800 {
		t.Errorf("expected peak 1800, got %v", res.PeakPowerW)
	}

	if a.SessionsTotal() != 1 || a.SessionsToday() != 1 {
		t.Errorf("expected counters 1/1, got %d/%d", a.SessionsTotal(), a.SessionsToday())
	}
	if a.EnergyTotalKWh() != 0.75 || a.EnergyTodayKWh() != 0.75 {
		t.Errorf("expected energy totals 0.75, got %v/%v", a.EnergyTotalKWh(), a.EnergyTodayKWh())
	}
	if d := a.LastDurationS(); d == nil || *d != 1200 {
		t.Errorf("expected last duration 1200s, got %v", d)
	}
	if a.SessionOpen() {
		t.Error("session should be closed after End")
	}
}

func TestAccountantDiscardsShortSession(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 60*time.Second, 10)

	a.Start(start, floatPtr(100.0), 500)
	res := a.End(start.Add(30*time.Second), floatPtr(100.1))

	if res.Committed {
		t.Error("session below min duration must not commit")
	}
	if a.SessionsTotal() != 0 {
		t.Errorf("discarded session must not count, got total %d", a.SessionsTotal())
	}
	if a.EnergyTotalKWh() != 0 {
		t.Errorf("discarded session must not add energy, got %v", a.EnergyTotalKWh())
	}
	if a.LastDurationS() != nil {
		t.Error("discarded session must not set last-session fields")
	}
	if a.SessionOpen() {
		t.Error("session state must be cleared even when discarded")
	}
}

func TestAccountantMissingEnergyRecordsZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 10)

	a.Start(start, nil, 500)
	res := a.End(start.Add(5*time.Minute), nil)

	if !res.Committed {
		t.Fatal("session without energy readings must still commit")
	}
	if res.EnergyKWh != 0 {
		t.Errorf("expected zero energy, got %v", res.EnergyKWh)
	}
	if a.SessionsTotal() != 1 {
		t.Errorf("expected total 1, got %d", a.SessionsTotal())
	}
}

func TestAccountantEnergyDeltaFlooredAtZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 10)

	// Energy counter reset mid-session: end reading below start reading.
	a.Start(start, floatPtr(500.0), 500)
	res := a.End(start.Add(5*time.Minute), floatPtr(2.0))

	if res.EnergyKWh != 0 {
		t.Errorf("negative delta must floor to 0, got %v", res.EnergyKWh)
	}
}

func TestAccountantHistoryBoundedMostRecentFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 3)

	for i := 0; i < 5; i++ {
		start := now.Add(time.Duration(i) * time.Hour)
		a.Start(start, floatPtr(float64(i)), 100)
		a.End(start.Add(10*time.Minute), floatPtr(float64(i)+0.5))
	}

	h := a.History()
	if len(h) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(h))
	}
	if !h[0].Start.Equal(now.Add(4 * time.Hour)) {
		t.Errorf("newest entry must be first, got start %v", h[0].Start)
	}
	if !h[2].Start.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("oldest kept entry wrong, got start %v", h[2].Start)
	}
}

func TestAccountantAveragesOverHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 10)

	a.Start(now, floatPtr(0), 100)
	a.End(now.Add(10*time.Minute), floatPtr(1.0))
	a.Start(now.Add(time.Hour), floatPtr(1.0), 100)
	a.End(now.Add(time.Hour+30*time.Minute), floatPtr(1.5))

	if avg := a.AvgDurationS(); avg == nil || *avg != 1200 {
		t.Errorf("expected avg duration 1200s, got %v", avg)
	}
	if avg := a.AvgEnergyKWh(); avg == nil || *avg != 0.75 {
		t.Errorf("expected avg energy 0.75, got %v", avg)
	}
}

func TestAccountantDayRollover(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 10)

	a.Start(day1, floatPtr(0), 100)
	a.End(day1.Add(5*time.Minute), floatPtr(0.5))

	if a.CheckDayRollover(day1.Add(6 * time.Minute)) {
		t.Error("no rollover expected within the same day")
	}

	day2 := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	if !a.CheckDayRollover(day2) {
		t.Fatal("expected rollover at midnight")
	}
	if a.SessionsToday() != 0 || a.EnergyTodayKWh() != 0 {
		t.Errorf("daily counters must reset, got %d/%v", a.SessionsToday(), a.EnergyTodayKWh())
	}
	if a.SessionsTotal() != 1 || a.EnergyTotalKWh() != 0.5 {
		t.Errorf("lifetime counters must survive rollover, got %d/%v", a.SessionsTotal(), a.EnergyTotalKWh())
	}

	if a.CheckDayRollover(day2.Add(time.Minute)) {
		t.Error("rollover must be idempotent within a day")
	}
}

func TestAccountantResetAll(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 10)

	a.Start(now, floatPtr(0), 100)
	a.End(now.Add(10*time.Minute), floatPtr(1.0))
	a.ResetAll()

	if a.SessionsTotal() != 0 || a.EnergyTotalKWh() != 0 {
		t.Error("ResetAll must zero lifetime counters")
	}
	if len(a.History()) != 0 {
		t.Error("ResetAll must clear history")
	}
	if a.AvgDurationS() != nil || a.LastDurationS() != nil {
		t.Error("ResetAll must clear averages and last-session fields")
	}
}

func TestAccountantResetTodayKeepsTotals(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := NewAccountant("washer", 0, 10)

	a.Start(now, floatPtr(0), 100)
	a.End(now.Add(10*time.Minute), floatPtr(1.0))
	a.ResetToday()

	if a.SessionsToday() != 0 || a.EnergyTodayKWh() != 0 {
		t.Error("ResetToday must zero daily counters")
	}
	if a.SessionsTotal() != 1 || a.EnergyTotalKWh() != 1.0 {
		t.Error("ResetToday must keep lifetime counters")
	}
	if len(a.History()) != 1 {
		t.Error("ResetToday must keep history")
	}
}

func TestAccountantPeakIgnoredWhenClosed(t *testing.T) {
	a := NewAccountant("washer", 0, 10)
	a.ObservePeak(2000)
	if a.PeakPowerW() != 0 {
		t.Errorf("peak must not track without an open session, got %v", a.PeakPowerW())
	}
}
