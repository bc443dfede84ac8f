package storage

import (
	"time"

	"gorm.io/gorm"
)

// DeviceState is the durable counter snapshot for one device, one row per
// device, mirroring the controller's flat persistence record.
type DeviceState struct {
	gorm.Model
	Device string `gorm:"uniqueIndex" json:"device"`

	SessionsTotal  int     `json:"sessions_total"`
	SessionsToday  int     `json:"sessions_today"`
	EnergyTodayKWh float64 `json:"energy_today_kwh"`
	EnergyTotalKWh float64 `json:"energy_total_kwh"`

	LastDurationS  *int     `json:"last_session_duration_s"`
	LastEnergyKWh  *float64 `json:"last_session_energy_kwh"`
	LastPeakPowerW *float64 `json:"last_session_peak_power_w"`

	TodayDate string `json:"today_date"`

	// Open-session resume fields, set only while a session was open at the
	// last save.
	SessionActive      bool     `json:"session_active"`
	SessionStartTime   *string  `json:"session_start_time"`
	SessionStartEnergy *float64 `json:"session_start_energy"`
	SessionPeakPowerW  float64  `json:"session_peak_power"`
}

// SessionRecord is one committed session.
type SessionRecord struct {
	gorm.Model
	Device     string    `gorm:"index" json:"device"`
	Start      time.Time `gorm:"index" json:"start"`
	End        time.Time `json:"end"`
	DurationS  int       `json:"duration_s"`
	EnergyKWh  float64   `json:"energy_kwh"`
	PeakPowerW float64   `json:"peak_power_w"`
}
