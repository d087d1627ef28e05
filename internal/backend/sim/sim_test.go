package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openacq/camnode/internal/backend"
)

func simTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(devices ...string) Config {
	cfg := Config{Version: 1, Devices: make(map[string]DeviceSpec)}
	for _, id := range devices {
		cfg.Devices[id] = DeviceSpec{
			Model:     "TLSimu",
			Serial:    id,
			Width:     8,
			Height:    8,
			FrameRate: 10000,
			PoolSize:  2,
		}
	}
	return cfg
}

func TestEnumerateStableOrder(t *testing.T) {
	b := New(testConfig("sim-1", "sim-0", "sim-2"), simTestLogger())

	devices := b.Enumerate()
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}

	want := []string{"sim-0", "sim-1", "sim-2"}
	for i, info := range devices {
		if info.ID != want[i] {
			t.Errorf("device %d: expected %s, got %s", i, want[i], info.ID)
		}
	}
}

func TestOpenInvalidIndex(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())

	if _, err := b.Open(1); !errors.Is(err, backend.ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex, got %v", err)
	}
	if _, err := b.Open(-1); !errors.Is(err, backend.ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestAcquireReleaseCycle(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	// Pool size is 2; releasing each buffer before the next acquire must
	// never exhaust the pool.
	for i := 1; i <= 10; i++ {
		buf, err := dev.AcquireBuffer(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		if buf.FrameID != uint64(i) {
			t.Errorf("expected frame id %d, got %d", i, buf.FrameID)
		}
		if err := dev.ReleaseBuffer(buf); err != nil {
			t.Fatalf("release %d failed: %v", i, err)
		}
	}
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	var held []*backend.RawBuffer
	for i := 0; i < 2; i++ {
		buf, err := dev.AcquireBuffer(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		held = append(held, buf)
	}

	if _, err := dev.AcquireBuffer(context.Background(), 20*time.Millisecond); !errors.Is(err, backend.ErrTimeout) {
		t.Errorf("expected ErrTimeout with exhausted pool, got %v", err)
	}

	for _, buf := range held {
		if err := dev.ReleaseBuffer(buf); err != nil {
			t.Fatalf("release failed: %v", err)
		}
	}
}

func TestReleaseNotOutstanding(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	buf, err := dev.AcquireBuffer(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := dev.ReleaseBuffer(buf); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := dev.ReleaseBuffer(buf); !errors.Is(err, backend.ErrBufferNotOutstanding) {
		t.Errorf("expected ErrBufferNotOutstanding on double release, got %v", err)
	}
}

func TestAcquireUnblocksOnCancel(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	// Exhaust the pool so the next acquire blocks on a free slot.
	for i := 0; i < 2; i++ {
		if _, err := dev.AcquireBuffer(context.Background(), time.Second); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := dev.AcquireBuffer(ctx, 5*time.Second)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("acquire did not unblock after cancel")
	}
}

func TestNodeSubscribeNotifies(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	values := make(chan any, 4)
	id, err := dev.Subscribe("Width", func(node backend.Node) {
		values <- node.Value()
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	node, err := dev.Node("Width")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	if err := node.SetValue(100); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	if got := <-values; got != int64(100) {
		t.Errorf("expected notified value 100, got %v", got)
	}

	if err := dev.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := node.SetValue(200); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	select {
	case v := <-values:
		t.Errorf("unexpected notification after unsubscribe: %v", v)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestNodeTypeValidation(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	width, _ := dev.Node("Width")
	if err := width.SetValue("wide"); err == nil {
		t.Error("expected error setting string on integer node")
	}
	// Decoded JSON numbers arrive as float64
	if err := width.SetValue(float64(640)); err != nil {
		t.Errorf("integral float rejected on integer node: %v", err)
	}
	if got := width.Value(); got != int64(640) {
		t.Errorf("expected value 640, got %v", got)
	}
	if err := width.SetValue(1.5); err == nil {
		t.Error("expected error setting fractional value on integer node")
	}

	mode, _ := dev.Node("TriggerMode")
	if err := mode.SetValue("Maybe"); err == nil {
		t.Error("expected error setting invalid enumeration entry")
	}
	if err := mode.SetValue("On"); err != nil {
		t.Errorf("valid enumeration entry rejected: %v", err)
	}

	trigger, _ := dev.Node("TriggerSoftware")
	if err := trigger.SetValue(1); err == nil {
		t.Error("expected error setting command node")
	}
	if err := trigger.Execute(); err != nil {
		t.Errorf("Execute failed: %v", err)
	}
	if got := trigger.Value(); got != int64(1) {
		t.Errorf("expected execution count 1, got %v", got)
	}

	if _, err := dev.Node("NoSuchNode"); !errors.Is(err, backend.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestFrameProgressFiresPerFrame(t *testing.T) {
	b := New(testConfig("sim-0"), simTestLogger())
	dev, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	progress := make(chan any, 16)
	if _, err := dev.Subscribe(FrameProgressNode, func(node backend.Node) {
		progress <- node.Value()
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		buf, err := dev.AcquireBuffer(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		if err := dev.ReleaseBuffer(buf); err != nil {
			t.Fatalf("release failed: %v", err)
		}
	}

	for i := 1; i <= 3; i++ {
		select {
		case v := <-progress:
			if v != int64(i) {
				t.Errorf("expected progress %d, got %v", i, v)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("missing progress notification %d", i)
		}
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Devices) != 1 {
		t.Fatalf("expected default single device, got %d", len(cfg.Devices))
	}
}

func TestLoadConfigNormalizesSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	content := `
version = 1

[devices.cam-a]
model = "TLSimu"
serial = "A001"

[devices.cam-b]
width = 32
height = 24
frame_rate = 50.0
pool_size = 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	a := cfg.Devices["cam-a"]
	if a.Width == 0 || a.PoolSize == 0 || a.FrameRate == 0 {
		t.Errorf("expected defaults filled in, got %+v", a)
	}

	bSpec := cfg.Devices["cam-b"]
	if bSpec.Width != 32 || bSpec.PoolSize != 8 {
		t.Errorf("explicit values overwritten: %+v", bSpec)
	}
}
