package acquire

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openacq/camnode/internal/backend"
	"github.com/openacq/camnode/internal/events"
	"github.com/openacq/camnode/internal/metrics"
)

// SessionState represents the lifecycle state of an acquisition session.
type SessionState string

// Session states. Destroyed is terminal.
const (
	StateCreated   SessionState = "created"
	StateRunning   SessionState = "running"
	StateStopped   SessionState = "stopped"
	StateDestroyed SessionState = "destroyed"
)

// Session is one bound acquisition relationship between the caller and a
// single device. It borrows a backend device session for its lifetime.
//
// A session's Fetch loop belongs to one goroutine; sharing Fetch across
// goroutines is caller responsibility. Start, Stop, Destroy, and the
// callback API are safe to call from any goroutine.
type Session struct {
	id          string
	deviceIndex int
	info        backend.DeviceInfo
	dev         backend.DeviceSession
	callbacks   *CallbackRegistry
	logger      *slog.Logger
	bus         *events.Bus
	metrics     *metrics.Acquisition
	manager     *Manager

	mu        sync.Mutex
	state     SessionState
	runCtx    context.Context
	runCancel context.CancelFunc
	fetched   atomic.Uint64
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// DeviceIndex returns the enumeration index the session was created with.
func (s *Session) DeviceIndex() int { return s.deviceIndex }

// Device returns the bound device's info.
func (s *Session) Device() backend.DeviceInfo { return s.info }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FetchedFrames returns the number of buffers fetched over the session's lifetime.
func (s *Session) FetchedFrames() uint64 { return s.fetched.Load() }

// Start transitions the session to running. Fails with ALREADY_RUNNING if
// the session is already running and USE_AFTER_DESTROY after Destroy.
func (s *Session) Start() error {
	s.mu.Lock()

	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return NewAcquireError(ErrCodeAlreadyRunning, "session is already running", nil)
	case StateDestroyed:
		s.mu.Unlock()
		return NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	}

	old := s.state
	s.state = StateRunning
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.logger.Info("Session started", "session_id", s.id, "device_id", s.info.ID)
	s.publishState(old, StateRunning)
	return nil
}

// Stop transitions the session to stopped and promptly unblocks any
// in-flight Fetch with a STOPPING error. Stopping a session that is not
// running is a no-op, so concurrent callers can race to tear down.
func (s *Session) Stop() error {
	s.mu.Lock()

	switch s.state {
	case StateDestroyed:
		s.mu.Unlock()
		return NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	case StateCreated, StateStopped:
		s.mu.Unlock()
		return nil
	}

	s.stopLocked()
	s.mu.Unlock()

	s.logger.Info("Session stopped", "session_id", s.id, "device_id", s.info.ID)
	s.publishState(StateRunning, StateStopped)
	return nil
}

// stopLocked performs the Running -> Stopped transition. Caller holds s.mu
// and is responsible for publishing the state change.
func (s *Session) stopLocked() {
	s.state = StateStopped
	if s.runCancel != nil {
		s.runCancel()
	}
}

// Fetch blocks until the next frame buffer is available and returns a
// scoped Buffer handle. Only valid while running. Returns a TIMEOUT error
// when no buffer arrives within timeout and a STOPPING error when Stop or
// Reset interrupts the wait. Backend faults surface as BACKEND_ERROR and
// leave the session stopped.
func (s *Session) Fetch(timeout time.Duration) (*Buffer, error) {
	s.mu.Lock()
	switch s.state {
	case StateDestroyed:
		s.mu.Unlock()
		return nil, NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	case StateRunning:
	default:
		s.mu.Unlock()
		return nil, NewAcquireError(ErrCodeNotRunning, "session is not running", nil)
	}
	ctx := s.runCtx
	s.mu.Unlock()

	raw, err := s.dev.AcquireBuffer(ctx, timeout)
	if err != nil {
		return nil, s.mapFetchError(err)
	}

	s.fetched.Add(1)
	s.metrics.FrameFetched(s.info.ID)
	if s.bus != nil {
		s.bus.Publish(events.FrameFetchedEvent{
			SessionID: s.id,
			DeviceID:  s.info.ID,
			FrameID:   raw.FrameID,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}

	return &Buffer{raw: raw, dev: s.dev, metrics: s.metrics}, nil
}

// mapFetchError classifies a backend acquire failure into the domain taxonomy.
func (s *Session) mapFetchError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, backend.ErrClosed):
		s.metrics.FetchAborted(s.info.ID)
		return NewAcquireError(ErrCodeStopping, "fetch aborted by shutdown", err)
	case errors.Is(err, backend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		s.metrics.FetchTimeout(s.info.ID)
		return NewAcquireError(ErrCodeTimeout, "no buffer available before deadline", err)
	default:
		// Backend fault: stop the session and leave cleanup to the caller.
		s.metrics.BackendFailure(s.info.ID)
		s.mu.Lock()
		wasRunning := s.state == StateRunning
		if wasRunning {
			s.stopLocked()
		}
		s.mu.Unlock()
		if wasRunning {
			s.logger.Error("Backend fault during fetch, session stopped",
				"session_id", s.id, "device_id", s.info.ID, "error", err)
			s.publishState(StateRunning, StateStopped)
		}
		return NewAcquireError(ErrCodeBackend, "backend fault during fetch", err)
	}
}

// WithFetch fetches one buffer, passes it to fn, and releases it on every
// exit path, including a panic in fn.
func (s *Session) WithFetch(timeout time.Duration, fn func(*Buffer) error) error {
	buf, err := s.Fetch(timeout)
	if err != nil {
		return err
	}
	defer buf.Release()
	return fn(buf)
}

// Destroy tears the session down: stops it if running, deregisters all node
// callbacks, and releases the backend device session. Terminal; every
// operation afterwards fails with USE_AFTER_DESTROY.
func (s *Session) Destroy() error {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	}

	old := s.state
	if s.state == StateRunning {
		// Tolerant shutdown: racing teardown must not fail.
		s.stopLocked()
	}
	s.state = StateDestroyed
	s.mu.Unlock()

	s.callbacks.close()
	if err := s.dev.Close(); err != nil {
		s.logger.Warn("Failed to close device session", "session_id", s.id, "error", err)
	}
	if s.manager != nil {
		s.manager.remove(s)
	}
	s.metrics.SessionClosed()

	s.logger.Info("Session destroyed", "session_id", s.id, "device_id", s.info.ID,
		"frames_fetched", s.fetched.Load())
	s.publishState(old, StateDestroyed)
	return nil
}

// Node looks up a device parameter node by name.
func (s *Session) Node(name string) (backend.Node, error) {
	if s.State() == StateDestroyed {
		return nil, NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	}

	node, err := s.dev.Node(name)
	if err != nil {
		if errors.Is(err, backend.ErrNodeNotFound) {
			return nil, NewAcquireError(ErrCodeUnknownNode, "node does not exist on device", err)
		}
		return nil, NewAcquireError(ErrCodeBackend, "node lookup failed", err)
	}
	return node, nil
}

// RegisterNodeCallback registers cb for change notifications on the named
// node. The returned token deregisters it. Registration is valid in any
// non-destroyed state, including while running.
func (s *Session) RegisterNodeCallback(nodeName string, cb NodeCallback, cbContext any) (Token, error) {
	if s.State() == StateDestroyed {
		return "", NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	}
	return s.callbacks.Register(nodeName, cb, cbContext)
}

// DeregisterNodeCallback removes a registration by token. Unknown or stale
// tokens fail with UNKNOWN_TOKEN; deregistration is not idempotent.
func (s *Session) DeregisterNodeCallback(token Token) error {
	if s.State() == StateDestroyed {
		return NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	}
	return s.callbacks.Deregister(token)
}

func (s *Session) publishState(old, new SessionState) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.SessionStateChangedEvent{
		SessionID: s.id,
		DeviceID:  s.info.ID,
		OldState:  string(old),
		NewState:  string(new),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
