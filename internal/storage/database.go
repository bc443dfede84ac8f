package storage

import (
	"errors"
	"fmt"
	"time"

	"appliance-monitor/internal/controller"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database persists device state snapshots and committed sessions. The state
// snapshot travels as the controller's flat record, so this package never
// interprets counters beyond mapping fields to columns.
type Database struct {
	db          *gorm.DB
	historySize int
}

func NewDatabase(path string, historySize int) (*Database, error) {
	if historySize <= 0 {
		historySize = 10
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&DeviceState{}, &SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db, historySize: historySize}, nil
}

// SaveState upserts the device's durable counter row from a flat record.
func (d *Database) SaveState(device string, rec map[string]any) error {
	row := stateRowFromRecord(device, rec)

	var existing DeviceState
	err := d.db.Where("device = ?", device).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return d.db.Create(row).Error
	case err != nil:
		return err
	}
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	return d.db.Save(row).Error
}

// LoadState rebuilds the flat record for a device, merging the counter row
// with the most recent committed sessions as the history list. Returns
// (nil, nil) when the device has no saved state yet.
func (d *Database) LoadState(device string) (map[string]any, error) {
	var row DeviceState
	err := d.db.Where("device = ?", device).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := row.record()

	sessions, err := d.Sessions(device, d.historySize)
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		history := make([]map[string]any, 0, len(sessions))
		for _, s := range sessions {
			history = append(history, map[string]any{
				"start":        s.Start.Format(time.RFC3339Nano),
				"end":          s.End.Format(time.RFC3339Nano),
				"duration_s":   s.DurationS,
				"energy_kwh":   s.EnergyKWh,
				"peak_power_w": s.PeakPowerW,
			})
		}
		rec[controller.FieldSessionHistory] = history
	}

	return rec, nil
}

// AppendSession records a committed session.
func (d *Database) AppendSession(device string, e controller.HistoryEntry) error {
	return d.db.Create(&SessionRecord{
		Device:     device,
		Start:      e.Start,
		End:        e.End,
		DurationS:  e.DurationS,
		EnergyKWh:  e.EnergyKWh,
		PeakPowerW: e.PeakPowerW,
	}).Error
}

// Sessions returns up to limit committed sessions, most recent first.
func (d *Database) Sessions(device string, limit int) ([]SessionRecord, error) {
	var sessions []SessionRecord
	result := d.db.Where("device = ?", device).
		Order("start desc").
		Limit(limit).
		Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

// SessionsByRange returns committed sessions whose start falls in [from, to].
func (d *Database) SessionsByRange(device string, from, to time.Time) ([]SessionRecord, error) {
	var sessions []SessionRecord
	result := d.db.Where("device = ? AND start BETWEEN ? AND ?", device, from, to).
		Order("start desc").
		Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

// DeleteSessions removes all committed sessions for a device. Used by the
// reset-all-counters operation.
func (d *Database) DeleteSessions(device string) error {
	return d.db.Where("device = ?", device).Delete(&SessionRecord{}).Error
}

// CleanOldSessions removes sessions older than the retention window.
func (d *Database) CleanOldSessions(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return d.db.Where("start < ?", cutoff).Delete(&SessionRecord{}).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func stateRowFromRecord(device string, rec map[string]any) *DeviceState {
	row := &DeviceState{Device: device}

	if v, ok := rec[controller.FieldSessionsTotal].(int); ok {
		row.SessionsTotal = v
	}
	if v, ok := rec[controller.FieldSessionsToday].(int); ok {
		row.SessionsToday = v
	}
	if v, ok := rec[controller.FieldEnergyTodayKWh].(float64); ok {
		row.EnergyTodayKWh = v
	}
	if v, ok := rec[controller.FieldEnergyTotalKWh].(float64); ok {
		row.EnergyTotalKWh = v
	}
	if v, ok := rec[controller.FieldLastDurationS].(int); ok {
		row.LastDurationS = &v
	}
	if v, ok := rec[controller.FieldLastEnergyKWh].(float64); ok {
		row.LastEnergyKWh = &v
	}
	if v, ok := rec[controller.FieldLastPeakPowerW].(float64); ok {
		row.LastPeakPowerW = &v
	}
	if v, ok := rec[controller.FieldTodayDate].(string); ok {
		row.TodayDate = v
	}
	if v, ok := rec[controller.FieldSessionActive].(bool); ok {
		row.SessionActive = v
	}
	if v, ok := rec[controller.FieldSessionStartTime].(string); ok {
		row.SessionStartTime = &v
	}
	if v, ok := rec[controller.FieldSessionStartEnergy].(float64); ok {
		row.SessionStartEnergy = &v
	}
	if v, ok := rec[controller.FieldSessionPeakPower].(float64); ok {
		row.SessionPeakPowerW = v
	}

	return row
}

func (row DeviceState) record() map[string]any {
	rec := map[string]any{
		controller.FieldSessionsTotal:  row.SessionsTotal,
		controller.FieldSessionsToday:  row.SessionsToday,
		controller.FieldEnergyTodayKWh: row.EnergyTodayKWh,
		controller.FieldEnergyTotalKWh: row.EnergyTotalKWh,
		controller.FieldSessionActive:  row.SessionActive,
	}
	if row.TodayDate != "" {
		rec[controller.FieldTodayDate] = row.TodayDate
	}
	if row.LastDurationS != nil {
		rec[controller.FieldLastDurationS] = *row.LastDurationS
	}
	if row.LastEnergyKWh != nil {
		rec[controller.FieldLastEnergyKWh] = *row.LastEnergyKWh
	}
	if row.LastPeakPowerW != nil {
		rec[controller.FieldLastPeakPowerW] = *row.LastPeakPowerW
	}
	if row.SessionStartTime != nil {
		rec[controller.FieldSessionStartTime] = *row.SessionStartTime
	}
	if row.SessionStartEnergy != nil {
		rec[controller.FieldSessionStartEnergy] = *row.SessionStartEnergy
	}
	if row.SessionActive {
		rec[controller.FieldSessionPeakPower] = row.SessionPeakPowerW
	}
	return rec
}
