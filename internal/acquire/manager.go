// Package acquire implements the concurrent camera-acquisition core:
// per-device acquisition sessions with scoped buffer fetch, node callback
// registration, and a manager coordinating concurrent shutdown. The device
// transport itself is consumed through the backend interfaces and never
// implemented here.
package acquire

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openacq/camnode/internal/backend"
	"github.com/openacq/camnode/internal/events"
	"github.com/openacq/camnode/internal/metrics"
)

const defaultResetGrace = 50 * time.Millisecond

// ManagerOptions configures a new Manager.
type ManagerOptions struct {
	// Backend provides device enumeration and session opening (required).
	Backend backend.Backend

	// Logger for manager and session operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// Bus receives session lifecycle and node change events (optional).
	Bus *events.Bus

	// Metrics receives acquisition counters (optional).
	Metrics *metrics.Acquisition

	// ResetGrace is the pause between stopping and destroying sessions
	// during Reset, giving in-flight fetches time to unwind. Defaults to
	// 50ms.
	ResetGrace time.Duration
}

// Manager creates acquisition sessions against a backend and tracks every
// live session so Reset can guarantee clean teardown. All methods are safe
// for concurrent use.
type Manager struct {
	backend    backend.Backend
	logger     *slog.Logger
	bus        *events.Bus
	metrics    *metrics.Acquisition
	resetGrace time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager bound to a backend context.
func NewManager(opts *ManagerOptions) *Manager {
	if opts == nil || opts.Backend == nil {
		panic("ManagerOptions with Backend is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resetGrace := opts.ResetGrace
	if resetGrace <= 0 {
		resetGrace = defaultResetGrace
	}

	return &Manager{
		backend:    opts.Backend,
		logger:     logger,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		resetGrace: resetGrace,
		sessions:   make(map[string]*Session),
	}
}

// Devices returns the backend's current device enumeration.
func (m *Manager) Devices() []backend.DeviceInfo {
	return m.backend.Enumerate()
}

// Create opens a session for the device at the given enumeration index.
// The index is validated against the current device list; creating several
// sessions on the same index is permitted, each with its own backend
// device session.
func (m *Manager) Create(deviceIndex int) (*Session, error) {
	devices := m.backend.Enumerate()
	if deviceIndex < 0 || deviceIndex >= len(devices) {
		return nil, NewAcquireError(ErrCodeInvalidIndex,
			fmt.Sprintf("device index %d out of range [0, %d)", deviceIndex, len(devices)), nil)
	}

	dev, err := m.backend.Open(deviceIndex)
	if err != nil {
		return nil, NewAcquireError(ErrCodeBackend, "failed to open device", err)
	}

	s := &Session{
		id:          uuid.NewString(),
		deviceIndex: deviceIndex,
		info:        dev.Info(),
		dev:         dev,
		logger:      m.logger,
		bus:         m.bus,
		metrics:     m.metrics,
		manager:     m,
		state:       StateCreated,
	}
	s.callbacks = newCallbackRegistry(dev, s.id, m.logger, m.bus)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.Info("Session created", "session_id", s.id,
		"device_index", deviceIndex, "device_id", s.info.ID)
	s.publishState("", StateCreated)
	return s, nil
}

// Get returns a tracked session by ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Sessions returns all live sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Reset force-stops and destroys every outstanding session. Safe to call
// while other goroutines are mid-fetch: stopping cancels their wait so they
// fail fast with a STOPPING error instead of blocking out their full fetch
// timeout.
func (m *Manager) Reset() {
	sessions := m.Sessions()
	if len(sessions) == 0 {
		return
	}

	m.logger.Info("Resetting all sessions", "count", len(sessions))

	for _, s := range sessions {
		if err := s.Stop(); err != nil && !IsCode(err, ErrCodeUseAfterDestroy) {
			m.logger.Warn("Failed to stop session during reset",
				"session_id", s.ID(), "error", err)
		}
	}

	// Let in-flight fetches observe the cancellation and release their
	// buffers before the device sessions go away.
	time.Sleep(m.resetGrace)

	for _, s := range sessions {
		if err := s.Destroy(); err != nil && !IsCode(err, ErrCodeUseAfterDestroy) {
			m.logger.Warn("Failed to destroy session during reset",
				"session_id", s.ID(), "error", err)
		}
	}
}

// remove drops a destroyed session from tracking.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
}
