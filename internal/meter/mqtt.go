package meter

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"appliance-monitor/internal/mqtt"
)

// MQTTConfig names the topics of a smart switch that reports over MQTT
// (Tasmota/Shelly style: plain numeric payloads on the sensor topics, ON/OFF
// on the state and command topics).
type MQTTConfig struct {
	PowerTopic       string
	EnergyTopic      string
	SwitchStateTopic string
	CommandTopic     string
	PayloadOn        string
	PayloadOff       string
}

// MQTTSource receives readings pushed by the switch over a shared broker
// connection.
type MQTTSource struct {
	name   string
	client *mqtt.Client
	cfg    MQTTConfig
}

func NewMQTTSource(name string, client *mqtt.Client, cfg MQTTConfig) *MQTTSource {
	if cfg.PayloadOn == "" {
		cfg.PayloadOn = "ON"
	}
	if cfg.PayloadOff == "" {
		cfg.PayloadOff = "OFF"
	}
	return &MQTTSource{name: name, client: client, cfg: cfg}
}

func (s *MQTTSource) Run(ctx context.Context, h Handlers) error {
	if err := s.subscribe(h); err != nil {
		return err
	}
	<-ctx.Done()
	s.unsubscribe()
	return nil
}

func (s *MQTTSource) subscribe(h Handlers) error {
	err := s.client.Subscribe(s.cfg.PowerTopic, func(_ string, payload []byte) {
		watts, err := parseNumber(payload)
		if err != nil {
			log.Printf("%s: unparsable power payload %q", s.name, payload)
			if h.PowerUnavailable != nil {
				h.PowerUnavailable()
			}
			return
		}
		h.Power(watts)
	})
	if err != nil {
		return err
	}

	if s.cfg.EnergyTopic != "" {
		err = s.client.Subscribe(s.cfg.EnergyTopic, func(_ string, payload []byte) {
			kwh, err := parseNumber(payload)
			if err != nil {
				log.Printf("%s: unparsable energy payload %q", s.name, payload)
				if h.EnergyUnavailable != nil {
					h.EnergyUnavailable()
				}
				return
			}
			h.Energy(kwh)
		})
		if err != nil {
			return err
		}
	}

	if s.cfg.SwitchStateTopic != "" {
		err = s.client.Subscribe(s.cfg.SwitchStateTopic, func(_ string, payload []byte) {
			on, ok := parseOnOff(payload)
			if !ok {
				log.Printf("%s: unparsable switch payload %q", s.name, payload)
				return
			}
			h.SwitchState(on)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *MQTTSource) unsubscribe() {
	topics := []string{s.cfg.PowerTopic}
	if s.cfg.EnergyTopic != "" {
		topics = append(topics, s.cfg.EnergyTopic)
	}
	if s.cfg.SwitchStateTopic != "" {
		topics = append(topics, s.cfg.SwitchStateTopic)
	}
	s.client.Unsubscribe(topics...)
}

// ReadOnce waits for the next (or retained) readings on each topic.
func (s *MQTTSource) ReadOnce(ctx context.Context) (*Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reading := &Reading{Timestamp: time.Now()}
	got := make(chan struct{}, 3)

	err := s.subscribe(Handlers{
		Power: func(watts float64) {
			if reading.PowerW == nil {
				reading.PowerW = &watts
				got <- struct{}{}
			}
		},
		Energy: func(kwh float64) {
			if reading.EnergyKWh == nil {
				reading.EnergyKWh = &kwh
				got <- struct{}{}
			}
		},
		SwitchState: func(on bool) {
			if reading.SwitchOn == nil {
				reading.SwitchOn = &on
				got <- struct{}{}
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer s.unsubscribe()

	want := 1
	if s.cfg.EnergyTopic != "" {
		want++
	}
	if s.cfg.SwitchStateTopic != "" {
		want++
	}
	for i := 0; i < want; i++ {
		select {
		case <-got:
		case <-ctx.Done():
			if reading.PowerW == nil && reading.EnergyKWh == nil && reading.SwitchOn == nil {
				return nil, fmt.Errorf("no readings received: %w", ctx.Err())
			}
			return reading, nil
		}
	}
	return reading, nil
}

func (s *MQTTSource) TurnOn() error {
	return s.command(s.cfg.PayloadOn)
}

func (s *MQTTSource) TurnOff() error {
	return s.command(s.cfg.PayloadOff)
}

func (s *MQTTSource) command(payload string) error {
	if s.cfg.CommandTopic == "" {
		return fmt.Errorf("%s: no command topic configured", s.name)
	}
	return s.client.Publish(s.cfg.CommandTopic, false, []byte(payload))
}

func parseNumber(payload []byte) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
}

func parseOnOff(payload []byte) (on bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON", "1", "TRUE":
		return true, true
	case "OFF", "0", "FALSE":
		return false, true
	}
	return false, false
}
