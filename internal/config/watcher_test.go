package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type deviceFile struct {
	Model     string  `toml:"model"`
	FrameRate float64 `toml:"frame_rate"`
}

func loadDeviceFile(path string) (deviceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return deviceFile{}, err
	}
	var cfg deviceFile
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDeviceFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	writeDeviceFile(t, path, "model = \"TLSimu\"\nframe_rate = 15.0\n")

	received := make(chan deviceFile, 1)
	w := NewConfigWatcher(
		path,
		loadDeviceFile,
		quietLogger(),
		WithDebounce[deviceFile](50*time.Millisecond),
	)
	w.OnReload(func(cfg deviceFile) {
		received <- cfg
	})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	writeDeviceFile(t, path, "model = \"TLSimu\"\nframe_rate = 60.0\n")

	select {
	case cfg := <-received:
		if cfg.FrameRate != 60.0 {
			t.Errorf("got frame_rate %v, want 60.0", cfg.FrameRate)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherLoadsFreshOnEveryChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	writeDeviceFile(t, path, "frame_rate = 1.0\n")

	var loadCount atomic.Int32
	loader := func(p string) (deviceFile, error) {
		loadCount.Add(1)
		return loadDeviceFile(p)
	}

	received := make(chan deviceFile, 10)
	w := NewConfigWatcher(path, loader, quietLogger(), WithDebounce[deviceFile](50*time.Millisecond))
	w.OnReload(func(cfg deviceFile) {
		received <- cfg
	})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeDeviceFile(t, path, "frame_rate = 10.0\n")
	<-received

	time.Sleep(100 * time.Millisecond)
	writeDeviceFile(t, path, "frame_rate = 20.0\n")
	cfg := <-received

	if cfg.FrameRate != 20.0 {
		t.Errorf("expected frame_rate 20.0, got %v", cfg.FrameRate)
	}
	if got := loadCount.Load(); got < 2 {
		t.Errorf("expected at least 2 loads, got %d", got)
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	writeDeviceFile(t, path, "frame_rate = 1.0\n")

	errs := make(chan error, 1)
	loader := func(p string) (deviceFile, error) {
		return deviceFile{}, fmt.Errorf("load rejected")
	}

	called := make(chan struct{}, 1)
	w := NewConfigWatcher(
		path,
		loader,
		quietLogger(),
		WithDebounce[deviceFile](50*time.Millisecond),
		WithErrorHandler[deviceFile](func(err error) { errs <- err }),
	)
	w.OnReload(func(deviceFile) {
		called <- struct{}{}
	})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeDeviceFile(t, path, "frame_rate = 2.0\n")

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}

	select {
	case <-called:
		t.Fatal("handler should not run when load fails")
	default:
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	writeDeviceFile(t, path, "frame_rate = 1.0\n")

	var kept, removed atomic.Int32
	w := NewConfigWatcher(path, loadDeviceFile, quietLogger(), WithDebounce[deviceFile](50*time.Millisecond))
	w.OnReload(func(deviceFile) { kept.Add(1) })
	unsub := w.OnReload(func(deviceFile) { removed.Add(1) })
	unsub()

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeDeviceFile(t, path, "frame_rate = 2.0\n")
	time.Sleep(300 * time.Millisecond)

	if kept.Load() == 0 {
		t.Error("remaining handler was not called")
	}
	if removed.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}
