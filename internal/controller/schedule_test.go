package controller

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"06:00", TimeOfDay{6, 0}, false},
		{"23:59", TimeOfDay{23, 59}, false},
		{"00:00", TimeOfDay{0, 0}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
		{"12", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func allWeekdays() []time.Weekday {
	return []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}

func TestScheduleDisabledAllowsEverything(t *testing.T) {
	s := ScheduleConfig{Enabled: false}
	at := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	if !s.Within(at) {
		t.Error("disabled schedule must allow any time")
	}
}

func TestScheduleWindowInclusiveBounds(t *testing.T) {
	s := ScheduleConfig{
		Enabled: true,
		Start:   TimeOfDay{6, 0},
		End:     TimeOfDay{22, 0},
		Days:    allWeekdays(),
	}

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

	tests := []struct {
		hour, minute int
		want         bool
	}{
		{5, 59, false},
		{6, 0, true},
		{12, 0, true},
		{22, 0, true},
		{22, 1, false},
	}
	for _, tt := range tests {
		at := day.Add(time.Duration(tt.hour)*time.Hour + time.Duration(tt.minute)*time.Minute)
		if got := s.Within(at); got != tt.want {
			t.Errorf("Within(%02d:%02d) = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestScheduleDayFilter(t *testing.T) {
	s := ScheduleConfig{
		Enabled: true,
		Start:   TimeOfDay{6, 0},
		End:     TimeOfDay{22, 0},
		Days:    []time.Weekday{time.Monday, time.Tuesday},
	}

	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !s.Within(monday) {
		t.Error("Monday noon must be allowed")
	}

	sunday := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if s.Within(sunday) {
		t.Error("Sunday must be denied")
	}
}

func TestScheduleOvernightWrap(t *testing.T) {
	s := ScheduleConfig{
		Enabled: true,
		Start:   TimeOfDay{22, 0},
		End:     TimeOfDay{6, 0},
		Days:    allWeekdays(),
	}

	tests := []struct {
		hour int
		want bool
	}{
		{23, true},
		{2, true},
		{6, true},
		{7, false},
		{21, false},
	}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		at := day.Add(time.Duration(tt.hour) * time.Hour)
		if got := s.Within(at); got != tt.want {
			t.Errorf("Within(%02d:00) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}
