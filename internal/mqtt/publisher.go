package mqtt

import (
	"encoding/json"
	"fmt"
	"log"

	"appliance-monitor/internal/controller"
)

// Publisher pushes each device's inferred state and session statistics to
// MQTT, plus Home Assistant discovery configs so the virtual appliance shows
// up without manual setup.
type Publisher struct {
	client      *Client
	topicPrefix string
}

func NewPublisher(client *Client, topicPrefix string) *Publisher {
	return &Publisher{client: client, topicPrefix: topicPrefix}
}

// PublishStatus publishes the per-value topics and a retained JSON status.
func (p *Publisher) PublishStatus(st controller.Status) error {
	if !p.client.Enabled() {
		return nil
	}

	device := sanitizeID(st.Name)
	topics := map[string]interface{}{
		"state":            st.State,
		"power":            st.PowerW,
		"smoothed_power":   st.SmoothedPowerW,
		"session_active":   st.SessionActive,
		"sessions_today":   st.SessionsToday,
		"sessions_total":   st.SessionsTotal,
		"energy_today":     st.EnergyTodayKWh,
		"energy_total":     st.EnergyTotalKWh,
		"schedule_blocked": st.ScheduleBlocked,
	}
	if st.SessionDurationS != nil {
		topics["session_duration"] = *st.SessionDurationS
	}
	if st.LastDurationS != nil {
		topics["last_session_duration"] = *st.LastDurationS
	}
	if st.LastEnergyKWh != nil {
		topics["last_session_energy"] = *st.LastEnergyKWh
	}
	if st.LastPeakPowerW != nil {
		topics["last_session_peak_power"] = *st.LastPeakPowerW
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/%s/%s", p.topicPrefix, device, name)
		payload := fmt.Sprintf("%v", value)
		if err := p.client.Publish(topic, false, []byte(payload)); err != nil {
			log.Printf("%v", err)
		}
	}

	statusJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/%s/status", p.topicPrefix, device)
	return p.client.Publish(statusTopic, true, statusJSON)
}

// PublishDiscovery publishes Home Assistant discovery configs for one
// device's sensors.
func (p *Publisher) PublishDiscovery(device string) error {
	if !p.client.Enabled() {
		return nil
	}

	device = sanitizeID(device)
	deviceInfo := map[string]interface{}{
		"identifiers":  []string{fmt.Sprintf("appliance_monitor_%s", device)},
		"name":         device,
		"manufacturer": "appliance-monitor",
	}

	sensors := []struct {
		Name        string
		ID          string
		Unit        string
		DeviceClass string
		StateTopic  string
	}{
		{"State", "state", "", "", "state"},
		{"Power", "power", "W", "power", "power"},
		{"Smoothed Power", "smoothed_power", "W", "power", "smoothed_power"},
		{"Sessions Today", "sessions_today", "", "", "sessions_today"},
		{"Sessions Total", "sessions_total", "", "", "sessions_total"},
		{"Energy Today", "energy_today", "kWh", "energy", "energy_today"},
		{"Energy Total", "energy_total", "kWh", "energy", "energy_total"},
		{"Last Session Duration", "last_session_duration", "s", "duration", "last_session_duration"},
		{"Last Session Energy", "last_session_energy", "kWh", "energy", "last_session_energy"},
		{"Last Session Peak Power", "last_session_peak_power", "W", "power", "last_session_peak_power"},
	}

	for _, sensor := range sensors {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", device, sensor.ID)

		config := map[string]interface{}{
			"name":        sensor.Name,
			"unique_id":   fmt.Sprintf("%s_%s", device, sensor.ID),
			"state_topic": fmt.Sprintf("%s/%s/%s", p.topicPrefix, device, sensor.StateTopic),
			"device":      deviceInfo,
		}
		if sensor.Unit != "" {
			config["unit_of_measurement"] = sensor.Unit
		}
		if sensor.DeviceClass != "" {
			config["device_class"] = sensor.DeviceClass
		}

		payload, _ := json.Marshal(config)
		if err := p.client.Publish(discoveryTopic, true, payload); err != nil {
			return err
		}
	}

	binarySensors := []struct {
		Name       string
		ID         string
		StateTopic string
	}{
		{"Session Active", "session_active", "session_active"},
		{"Schedule Blocked", "schedule_blocked", "schedule_blocked"},
	}

	for _, sensor := range binarySensors {
		discoveryTopic := fmt.Sprintf("homeassistant/binary_sensor/%s/%s/config", device, sensor.ID)

		config := map[string]interface{}{
			"name":        sensor.Name,
			"unique_id":   fmt.Sprintf("%s_%s", device, sensor.ID),
			"state_topic": fmt.Sprintf("%s/%s/%s", p.topicPrefix, device, sensor.StateTopic),
			"payload_on":  "true",
			"payload_off": "false",
			"device":      deviceInfo,
		}

		payload, _ := json.Marshal(config)
		if err := p.client.Publish(discoveryTopic, true, payload); err != nil {
			return err
		}
	}

	return nil
}

func sanitizeID(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-':
			out = append(out, '_')
		}
	}
	return string(out)
}
