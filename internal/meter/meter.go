// Package meter provides the sensor-side view of a smart switch: a stream of
// power, energy and switch-state readings, plus the command path to turn the
// switch on and off. Two providers exist, MQTT (push) and Modbus TCP (poll).
package meter

import (
	"context"
	"time"
)

// Handlers receives readings from a source. Callbacks fire from the source's
// own goroutine; the device runner serializes them onto its event loop.
type Handlers struct {
	Power             func(watts float64)
	PowerUnavailable  func()
	Energy            func(kwh float64)
	EnergyUnavailable func()
	SwitchState       func(on bool)
}

// Reading is a one-shot snapshot of the meter, used by the CLI.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	PowerW    *float64  `json:"power_w"`
	EnergyKWh *float64  `json:"energy_kwh"`
	SwitchOn  *bool     `json:"switch_on"`
}

// Source streams readings for one device. Implementations also carry the
// switch command path (TurnOn/TurnOff); commands are not retried on failure.
type Source interface {
	// Run delivers readings to h until ctx is cancelled.
	Run(ctx context.Context, h Handlers) error
	// ReadOnce fetches a single snapshot, for the read/test commands.
	ReadOnce(ctx context.Context) (*Reading, error)
	TurnOn() error
	TurnOff() error
}
