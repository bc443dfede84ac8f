package meter

import (
	"context"
	"log"
	"time"

	"appliance-monitor/internal/modbus"
)

// ModbusConfig maps the registers of a Modbus TCP energy meter with a relay.
// Power and energy are read as 32-bit input registers and multiplied by their
// scale factor; the relay is a single coil.
type ModbusConfig struct {
	PowerRegister  uint16
	PowerScale     float64
	EnergyRegister uint16
	EnergyScale    float64
	SwitchCoil     uint16
	HasSwitchCoil  bool
	PollInterval   time.Duration
}

// ModbusSource polls a Modbus meter on a fixed interval.
type ModbusSource struct {
	name   string
	client *modbus.Client
	cfg    ModbusConfig
}

func NewModbusSource(name string, client *modbus.Client, cfg ModbusConfig) *ModbusSource {
	if cfg.PowerScale == 0 {
		cfg.PowerScale = 1
	}
	if cfg.EnergyScale == 0 {
		cfg.EnergyScale = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &ModbusSource{name: name, client: client, cfg: cfg}
}

func (s *ModbusSource) Run(ctx context.Context, h Handlers) error {
	if err := s.client.Connect(); err != nil {
		log.Printf("%s: initial meter connect failed: %v", s.name, err)
	}

	s.poll(h)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.client.Close()
			return nil
		case <-ticker.C:
			s.poll(h)
		}
	}
}

func (s *ModbusSource) poll(h Handlers) {
	reading, err := s.read()
	if err != nil {
		log.Printf("%s: meter read failed: %v", s.name, err)
		// One reconnect attempt, then report unavailable until next poll.
		if reconnErr := s.client.Reconnect(); reconnErr == nil {
			reading, err = s.read()
		}
		if err != nil {
			if h.PowerUnavailable != nil {
				h.PowerUnavailable()
			}
			if h.EnergyUnavailable != nil {
				h.EnergyUnavailable()
			}
			return
		}
	}

	if reading.PowerW != nil {
		h.Power(*reading.PowerW)
	}
	if reading.EnergyKWh != nil && h.Energy != nil {
		h.Energy(*reading.EnergyKWh)
	}
	if reading.SwitchOn != nil && h.SwitchState != nil {
		h.SwitchState(*reading.SwitchOn)
	}
}

func (s *ModbusSource) read() (*Reading, error) {
	if err := s.client.Connect(); err != nil {
		return nil, err
	}

	reading := &Reading{Timestamp: time.Now()}

	raw, err := s.client.ReadUint32(s.cfg.PowerRegister)
	if err != nil {
		return nil, err
	}
	watts := float64(raw) * s.cfg.PowerScale
	reading.PowerW = &watts

	rawEnergy, err := s.client.ReadUint32(s.cfg.EnergyRegister)
	if err != nil {
		return nil, err
	}
	kwh := float64(rawEnergy) * s.cfg.EnergyScale
	reading.EnergyKWh = &kwh

	if s.cfg.HasSwitchCoil {
		on, err := s.client.ReadCoil(s.cfg.SwitchCoil)
		if err != nil {
			return nil, err
		}
		reading.SwitchOn = &on
	}

	return reading, nil
}

func (s *ModbusSource) ReadOnce(_ context.Context) (*Reading, error) {
	return s.read()
}

func (s *ModbusSource) TurnOn() error {
	return s.setCoil(true)
}

func (s *ModbusSource) TurnOff() error {
	return s.setCoil(false)
}

func (s *ModbusSource) setCoil(on bool) error {
	if err := s.client.Connect(); err != nil {
		return err
	}
	return s.client.WriteCoil(s.cfg.SwitchCoil, on)
}
