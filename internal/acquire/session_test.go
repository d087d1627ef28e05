package acquire

import (
	"testing"
	"time"

	"github.com/openacq/camnode/internal/backend/sim"
)

func TestSessionLifecycle(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")

	session, err := m.Create(0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if got := session.State(); got != StateCreated {
		t.Errorf("expected state created, got %v", got)
	}

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := session.State(); got != StateRunning {
		t.Errorf("expected state running, got %v", got)
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := session.State(); got != StateStopped {
		t.Errorf("expected state stopped, got %v", got)
	}

	// Stopped sessions can be restarted.
	if err := session.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := session.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if got := session.State(); got != StateDestroyed {
		t.Errorf("expected state destroyed, got %v", got)
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Start(); !IsCode(err, ErrCodeAlreadyRunning) {
		t.Errorf("expected ALREADY_RUNNING, got %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)

	// Stop before ever starting is a no-op, not an error.
	if err := session.Stop(); err != nil {
		t.Errorf("Stop on created session failed: %v", err)
	}

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestFetchRequiresRunning(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)

	if _, err := session.Fetch(time.Second); !IsCode(err, ErrCodeNotRunning) {
		t.Errorf("expected NOT_RUNNING before start, got %v", err)
	}

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, err := session.Fetch(time.Second); !IsCode(err, ErrCodeNotRunning) {
		t.Errorf("expected NOT_RUNNING after stop, got %v", err)
	}
}

func TestUseAfterDestroy(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)

	if err := session.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	if err := session.Start(); !IsCode(err, ErrCodeUseAfterDestroy) {
		t.Errorf("Start after destroy: expected USE_AFTER_DESTROY, got %v", err)
	}
	if err := session.Stop(); !IsCode(err, ErrCodeUseAfterDestroy) {
		t.Errorf("Stop after destroy: expected USE_AFTER_DESTROY, got %v", err)
	}
	if _, err := session.Fetch(time.Second); !IsCode(err, ErrCodeUseAfterDestroy) {
		t.Errorf("Fetch after destroy: expected USE_AFTER_DESTROY, got %v", err)
	}
	if err := session.Destroy(); !IsCode(err, ErrCodeUseAfterDestroy) {
		t.Errorf("second Destroy: expected USE_AFTER_DESTROY, got %v", err)
	}
	if _, err := session.Node("Width"); !IsCode(err, ErrCodeUseAfterDestroy) {
		t.Errorf("Node after destroy: expected USE_AFTER_DESTROY, got %v", err)
	}
}

func TestDestroyWhileRunningStopsFirst(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Destroy(); err != nil {
		t.Fatalf("Destroy of running session failed: %v", err)
	}
	if got := session.State(); got != StateDestroyed {
		t.Errorf("expected state destroyed, got %v", got)
	}
}

func TestFreeRunningTenFrames(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")

	session, err := m.Create(0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for nr := 0; nr < 10; nr++ {
		err := session.WithFetch(time.Second, func(buf *Buffer) error {
			if len(buf.Bytes()) == 0 {
				t.Errorf("frame %d: empty pixel data", nr)
			}
			if buf.Timestamp().IsZero() {
				t.Errorf("frame %d: zero timestamp", nr)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("fetch %d failed: %v", nr, err)
		}
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := session.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	if got := session.FetchedFrames(); got != 10 {
		t.Errorf("expected 10 fetched frames, got %d", got)
	}
	if got := session.State(); got != StateDestroyed {
		t.Errorf("expected state destroyed, got %v", got)
	}
}

func TestStopUnblocksFetchPromptly(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Hold both pool buffers so the next fetch blocks.
	for i := 0; i < 2; i++ {
		if _, err := session.Fetch(time.Second); err != nil {
			t.Fatalf("priming fetch %d failed: %v", i, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := session.Fetch(5 * time.Second)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	if err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !IsStopping(err) {
			t.Errorf("expected STOPPING, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("fetch took %v to unblock after stop", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("fetch did not unblock after stop")
	}
}

func TestBackendFaultLeavesSessionStopped(t *testing.T) {
	cfg := sim.Config{Version: 1, Devices: map[string]sim.DeviceSpec{
		"sim-0": {Serial: "sim-0", Width: 8, Height: 8, FrameRate: 10000, PoolSize: 2},
	}}
	m := NewManager(&ManagerOptions{
		Backend: &faultyBackend{inner: sim.New(cfg, quietLogger())},
		Logger:  quietLogger(),
	})
	t.Cleanup(m.Reset)

	session, err := m.Create(0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = session.Fetch(time.Second)
	if !IsCode(err, ErrCodeBackend) {
		t.Fatalf("expected BACKEND_ERROR, got %v", err)
	}
	if got := session.State(); got != StateStopped {
		t.Errorf("expected backend fault to leave session stopped, got %v", got)
	}
}
