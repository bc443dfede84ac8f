package controller

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func populatedSnapshot() Snapshot {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return Snapshot{
		SessionsTotal:  12,
		SessionsToday:  2,
		EnergyTodayKWh: 1.5,
		EnergyTotalKWh: 20.25,
		LastDurationS:  intPtr(1800),
		LastEnergyKWh:  floatPtr(0.75),
		LastPeakPowerW: floatPtr(2100),
		TodayDate:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),

		SessionActive:      true,
		SessionStart:       start,
		SessionStartEnergy: floatPtr(19.5),
		SessionPeakPowerW:  1900,

		History: []HistoryEntry{
			{
				Start:      start.Add(-2 * time.Hour),
				End:        start.Add(-90 * time.Minute),
				DurationS:  1800,
				EnergyKWh:  0.75,
				PeakPowerW: 2100,
			},
			{
				Start:      start.Add(-5 * time.Hour),
				End:        start.Add(-4 * time.Hour),
				DurationS:  3600,
				EnergyKWh:  1.0,
				PeakPowerW: 1800,
			},
		},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	orig := populatedSnapshot()

	got := SnapshotFromRecord(orig.Record(), now)

	if got.SessionsTotal != orig.SessionsTotal || got.SessionsToday != orig.SessionsToday {
		t.Errorf("counters lost: got %d/%d", got.SessionsTotal, got.SessionsToday)
	}
	if got.EnergyTodayKWh != orig.EnergyTodayKWh || got.EnergyTotalKWh != orig.EnergyTotalKWh {
		t.Errorf("energy totals lost: got %v/%v", got.EnergyTodayKWh, got.EnergyTotalKWh)
	}
	if got.LastDurationS == nil || *got.LastDurationS != 1800 {
		t.Errorf("last duration lost: got %v", got.LastDurationS)
	}
	if got.LastEnergyKWh == nil || *got.LastEnergyKWh != 0.75 {
		t.Errorf("last energy lost: got %v", got.LastEnergyKWh)
	}
	if !got.TodayDate.Equal(orig.TodayDate) {
		t.Errorf("today date lost: got %v", got.TodayDate)
	}
	if !got.SessionActive {
		t.Fatal("open session lost")
	}
	if !got.SessionStart.Equal(orig.SessionStart) {
		t.Errorf("session start lost: got %v", got.SessionStart)
	}
	if got.SessionStartEnergy == nil || *got.SessionStartEnergy != 19.5 {
		t.Errorf("session start energy lost: got %v", got.SessionStartEnergy)
	}
	if got.SessionPeakPowerW != 1900 {
		t.Errorf("session peak lost: got %v", got.SessionPeakPowerW)
	}
	if len(got.History) != 2 {
		t.Fatalf("history lost: got %d entries", len(got.History))
	}
	if !got.History[0].Start.Equal(orig.History[0].Start) || got.History[0].EnergyKWh != 0.75 {
		t.Errorf("history entry mangled: %+v", got.History[0])
	}
}

func TestSnapshotFromEmptyRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	s := SnapshotFromRecord(map[string]any{}, now)

	if s.SessionsTotal != 0 || s.SessionActive {
		t.Error("empty record must yield zero counters and no session")
	}
	if !s.TodayDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("missing date must default to today, got %v", s.TodayDate)
	}
	if s.LastDurationS != nil || s.LastEnergyKWh != nil {
		t.Error("missing last-session fields must stay nil")
	}
}

func TestSnapshotFromRecordToleratesMalformedFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	rec := map[string]any{
		FieldSessionsTotal:    "not a number",
		FieldEnergyTotalKWh:   5.0,
		FieldTodayDate:        "yesterday",
		FieldSessionActive:    true,
		FieldSessionStartTime: "garbage",
		FieldSessionHistory: []any{
			"not a map",
			map[string]any{"start": "garbage", "end": "garbage"},
			map[string]any{
				"start":      "2026-03-01T10:00:00Z",
				"end":        "2026-03-01T11:00:00Z",
				"duration_s": 3600,
				"energy_kwh": 1.0,
			},
		},
	}

	s := SnapshotFromRecord(rec, now)

	if s.SessionsTotal != 0 {
		t.Errorf("malformed counter must default to 0, got %d", s.SessionsTotal)
	}
	if s.EnergyTotalKWh != 5.0 {
		t.Errorf("valid field next to a malformed one must survive, got %v", s.EnergyTotalKWh)
	}
	if !s.TodayDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("malformed date must default to today, got %v", s.TodayDate)
	}
	if s.SessionActive {
		t.Error("session with an unparseable start must not resume")
	}
	if len(s.History) != 1 {
		t.Fatalf("only the parseable history entry must survive, got %d", len(s.History))
	}
	if s.History[0].DurationS != 3600 {
		t.Errorf("surviving entry mangled: %+v", s.History[0])
	}
}

func TestControllerSnapshotRestoreRoundTrip(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	src := New(simpleConfig(), &fakeSwitch{})

	// Commit one session and leave a second one open.
	src.HandleEnergy(t0, 1.0)
	src.HandlePower(t0, 200)
	src.HandleEnergy(t0.Add(10*time.Minute), 1.5)
	src.HandlePower(t0.Add(10*time.Minute), 0)
	src.Tick(t0.Add(10*time.Minute + 5*time.Second))

	src.HandleEnergy(t0.Add(time.Hour), 2.0)
	src.HandlePower(t0.Add(time.Hour), 300)
	src.Tick(t0.Add(time.Hour + 3*time.Second))
	if !src.acct.SessionOpen() {
		t.Fatal("setup: expected an open session")
	}

	dst := New(simpleConfig(), &fakeSwitch{})
	dst.Restore(src.Snapshot())

	if dst.acct.SessionsTotal() != 1 {
		t.Errorf("expected 1 restored session, got %d", dst.acct.SessionsTotal())
	}
	if dst.acct.EnergyTotalKWh() != 0.5 {
		t.Errorf("expected restored energy 0.5, got %v", dst.acct.EnergyTotalKWh())
	}
	if !dst.acct.SessionOpen() {
		t.Fatal("open session must be restored")
	}
	if !dst.acct.StartTime().Equal(t0.Add(time.Hour + 3*time.Second)) {
		t.Errorf("restored session start wrong: %v", dst.acct.StartTime())
	}
	if len(dst.acct.History()) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(dst.acct.History()))
	}
	// Averages are recomputed from the restored history.
	if avg := dst.acct.AvgDurationS(); avg == nil || *avg != 605 {
		t.Errorf("expected recomputed avg duration 605s, got %v", avg)
	}
}

func TestRestoreTruncatesOversizedHistory(t *testing.T) {
	cfg := simpleConfig()
	cfg.HistorySize = 2
	c := New(cfg, &fakeSwitch{})

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var history []HistoryEntry
	for i := 0; i < 5; i++ {
		history = append(history, HistoryEntry{
			Start:     start.Add(time.Duration(i) * time.Hour),
			End:       start.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			DurationS: 1800,
		})
	}
	c.Restore(Snapshot{History: history})

	if got := len(c.acct.History()); got != 2 {
		t.Errorf("restored history must be truncated to the configured size, got %d", got)
	}
}
