package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"appliance-monitor/internal/device"
	"appliance-monitor/internal/mqtt"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	broker, err := mqtt.NewClient(mqtt.ClientConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv := NewServer(ServerConfig{
		Port:    0,
		Devices: device.NewManager(),
		Broker:  broker,
	})
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status        string `json:"status"`
		Devices       int    `json:"devices"`
		MQTTConnected *bool  `json:"mqtt_connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status field: got %q, want healthy", body.Status)
	}
	if body.Devices != 0 {
		t.Errorf("devices: got %d, want 0", body.Devices)
	}
	if body.MQTTConnected == nil {
		t.Fatal("expected mqtt_connected in health payload")
	}
	if *body.MQTTConnected {
		t.Error("disabled broker must report mqtt_connected=false")
	}
}

func TestUnknownDeviceReturns404(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/devices/nope")
	if err != nil {
		t.Fatalf("GET device: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}
