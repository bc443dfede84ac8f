package modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// Client wraps a Modbus TCP connection to an energy meter or smart relay.
type Client struct {
	client  *modbus.ModbusClient
	mu      sync.Mutex
	ip      string
	port    int
	slaveID uint8
	timeout time.Duration
}

func NewClient(ip string, port int, slaveID uint8, timeout time.Duration) *Client {
	return &Client{
		ip:      ip,
		port:    port,
		slaveID: slaveID,
		timeout: timeout,
	}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", c.ip, c.port),
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}

	if err := client.Open(); err != nil {
		return fmt.Errorf("failed to connect to meter: %w", err)
	}

	client.SetUnitId(c.slaveID)
	c.client = client

	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	return err
}

func (c *Client) ReadInputRegisters(address uint16, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	regs, err := c.client.ReadRegisters(address, quantity, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("failed to read input registers at %d: %w", address, err)
	}

	return regs, nil
}

func (c *Client) ReadUint32(address uint16) (uint32, error) {
	regs, err := c.ReadInputRegisters(address, 2)
	if err != nil {
		return 0, err
	}
	// Little-endian word order: low word first, high word second
	return uint32(regs[0]) | uint32(regs[1])<<16, nil
}

// ReadCoil reads a single relay coil.
func (c *Client) ReadCoil(address uint16) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return false, fmt.Errorf("client not connected")
	}

	on, err := c.client.ReadCoil(address)
	if err != nil {
		return false, fmt.Errorf("failed to read coil at %d: %w", address, err)
	}
	return on, nil
}

// WriteCoil sets a single relay coil.
func (c *Client) WriteCoil(address uint16, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return fmt.Errorf("client not connected")
	}

	if err := c.client.WriteCoil(address, on); err != nil {
		return fmt.Errorf("failed to write coil at %d: %w", address, err)
	}
	return nil
}

func (c *Client) Reconnect() error {
	c.Close()
	return c.Connect()
}
