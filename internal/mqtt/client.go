// Package mqtt connects the monitor to an MQTT broker: one shared client
// serves both the meter sources (subscriptions, switch commands) and the
// state publisher.
package mqtt

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	client  mqtt.Client
	enabled bool
}

type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Enabled  bool
}

// NewClient connects to the broker. A disabled config returns a client whose
// operations are all no-ops, so callers need no enabled checks of their own.
func NewClient(cfg ClientConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Client{client: client, enabled: true}, nil
}

func (c *Client) Enabled() bool {
	return c.enabled
}

func (c *Client) Publish(topic string, retain bool, payload []byte) error {
	if !c.enabled {
		return nil
	}
	token := c.client.Publish(topic, 0, retain, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Subscribe registers a handler for a topic. Handlers run on paho's router
// goroutine; they must hand work off rather than block.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if !c.enabled {
		return fmt.Errorf("MQTT is disabled")
	}
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) Unsubscribe(topics ...string) {
	if !c.enabled || len(topics) == 0 {
		return
	}
	c.client.Unsubscribe(topics...).Wait()
}

func (c *Client) IsConnected() bool {
	if !c.enabled {
		return false
	}
	return c.client.IsConnected()
}

func (c *Client) Close() {
	if c.enabled && c.client != nil {
		c.client.Disconnect(1000)
	}
}
