package intercom

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns the sessions for every configured device.
//
// Consumers look sessions up by device ID; the manager never hands out
// its internal map. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   Logger
}

// NewManager creates an empty session manager.
func NewManager(logger Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Add registers a session under its device ID. Adding a second session
// for the same ID replaces the first; the caller owns disconnecting the
// replaced session.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.DeviceID()] = s
	m.mu.Unlock()
}

// Get looks up a session by device ID.
func (m *Manager) Get(deviceID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

// DeviceIDs returns the IDs of all registered sessions.
func (m *Manager) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Snapshots returns the current snapshot of every session, keyed by
// device ID.
func (m *Manager) Snapshots() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make(map[string]Snapshot, len(m.sessions))
	for id, s := range m.sessions {
		snaps[id] = s.Snapshot()
	}
	return snaps
}

// ConnectAll establishes every session's initial connection. Connection
// failures are tolerated (each session's supervisor keeps retrying in the
// background); authentication failures are collected and returned because
// bad credentials need operator attention.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var authErrs []error
	for _, s := range sessions {
		if err := s.Connect(ctx); err != nil {
			if isAuthErr(err) {
				authErrs = append(authErrs, fmt.Errorf("device %s: %w", s.DeviceID(), err))
				continue
			}
			if m.logger != nil {
				m.logger.Warn("initial connection failed, retrying in background",
					"device", s.DeviceID(), "error", err)
			}
		}
	}

	if len(authErrs) > 0 {
		return fmt.Errorf("%d device(s) rejected credentials: %w", len(authErrs), authErrs[0])
	}
	return nil
}

// CloseAll disconnects every session and blocks until their goroutines
// have stopped.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Disconnect()
		}(s)
	}
	wg.Wait()
}
