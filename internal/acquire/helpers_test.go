package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openacq/camnode/internal/backend"
	"github.com/openacq/camnode/internal/backend/sim"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager builds a manager over a simulated backend with the given
// device IDs, each with a small pool and a fast frame clock.
func newTestManager(t *testing.T, devices ...string) (*Manager, *sim.Backend) {
	t.Helper()

	cfg := sim.Config{Version: 1, Devices: make(map[string]sim.DeviceSpec)}
	for _, id := range devices {
		cfg.Devices[id] = sim.DeviceSpec{
			Model:     "TLSimu",
			Serial:    id,
			Width:     8,
			Height:    8,
			FrameRate: 10000,
			PoolSize:  2,
		}
	}

	b := sim.New(cfg, quietLogger())
	m := NewManager(&ManagerOptions{
		Backend:    b,
		Logger:     quietLogger(),
		ResetGrace: 10 * time.Millisecond,
	})

	t.Cleanup(m.Reset)
	return m, b
}

var errStubFault = errors.New("simulated transport fault")

// faultyDevice is a device session whose acquires fail with a backend fault.
type faultyDevice struct {
	backend.DeviceSession
}

func (d *faultyDevice) AcquireBuffer(_ context.Context, _ time.Duration) (*backend.RawBuffer, error) {
	return nil, errStubFault
}

// faultyBackend wraps a working backend but hands out faulty device sessions.
type faultyBackend struct {
	inner backend.Backend
}

func (b *faultyBackend) Enumerate() []backend.DeviceInfo {
	return b.inner.Enumerate()
}

func (b *faultyBackend) Open(index int) (backend.DeviceSession, error) {
	dev, err := b.inner.Open(index)
	if err != nil {
		return nil, err
	}
	return &faultyDevice{DeviceSession: dev}, nil
}
