package device

import (
	"context"
	"errors"
	"sync"
)

// ErrScheduleBlocked is returned when a manual turn-on is refused because the
// allowed-time schedule currently blocks the device.
var ErrScheduleBlocked = errors.New("device is blocked by schedule")

// Manager holds the runners for all configured devices, in config order.
type Manager struct {
	runners map[string]*Runner
	order   []string
}

func NewManager() *Manager {
	return &Manager{runners: make(map[string]*Runner)}
}

func (m *Manager) Add(r *Runner) {
	if _, exists := m.runners[r.Name()]; exists {
		return
	}
	m.runners[r.Name()] = r
	m.order = append(m.order, r.Name())
}

func (m *Manager) Get(name string) (*Runner, bool) {
	r, ok := m.runners[name]
	return r, ok
}

func (m *Manager) Names() []string {
	return append([]string(nil), m.order...)
}

// RunAll runs every runner until ctx is cancelled and waits for them to
// finish shutting down.
func (m *Manager) RunAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range m.order {
		r := m.runners[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}
	wg.Wait()
}
