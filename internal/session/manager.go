package session

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("session not found")

// Manager tracks the live Monitor of every session. Monitors remove themselves when they end.
type Manager struct {
	monitors map[string]*Monitor
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		monitors: make(map[string]*Monitor),
	}
}

// Start creates, registers and starts a Monitor. An existing monitor with the same ID is stopped
// and replaced.
func (m *Manager) Start(opts Options) *Monitor {
	var mon *Monitor
	onEnd := opts.OnEnd
	opts.OnEnd = func(id, reason string) {
		m.remove(id, mon)
		if onEnd != nil {
			onEnd(id, reason)
		}
	}
	mon = NewMonitor(opts)

	m.mu.Lock()
	prev := m.monitors[mon.ID()]
	m.monitors[mon.ID()] = mon
	activeSessions.Set(float64(len(m.monitors)))
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	mon.Start()
	return mon
}

func (m *Manager) Get(id string) *Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.monitors[id]
}

// Lookup is Get returning ErrNotFound for an unknown session.
func (m *Manager) Lookup(id string) (*Monitor, error) {
	if mon := m.Get(id); mon != nil {
		return mon, nil
	}
	return nil, ErrNotFound
}

// Remove stops a session's monitor without logging it out.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	mon := m.monitors[id]
	delete(m.monitors, id)
	activeSessions.Set(float64(len(m.monitors)))
	m.mu.Unlock()
	if mon != nil {
		mon.Stop()
	}
}

// remove drops id only while it still maps to mon, so an ended monitor cannot evict its
// replacement.
func (m *Manager) remove(id string, mon *Monitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitors[id] != mon {
		return
	}
	delete(m.monitors, id)
	activeSessions.Set(float64(len(m.monitors)))
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monitors)
}

// StopAll stops every monitor, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	mons := make([]*Monitor, 0, len(m.monitors))
	for id, mon := range m.monitors {
		mons = append(mons, mon)
		delete(m.monitors, id)
	}
	activeSessions.Set(0)
	m.mu.Unlock()
	for _, mon := range mons {
		mon.Stop()
	}
}
