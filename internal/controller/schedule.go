package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// Within reports whether now falls inside the allowed window. Disabled
// schedules allow everything. start <= end is a same-day window, inclusive on
// both ends; start > end wraps overnight.
func (s ScheduleConfig) Within(now time.Time) bool {
	if !s.Enabled {
		return true
	}
	allowedDay := false
	for _, d := range s.Days {
		if d == now.Weekday() {
			allowedDay = true
			break
		}
	}
	if !allowedDay {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	start := s.Start.minutes()
	end := s.End.minutes()
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}
