package acquire

import (
	"errors"
	"testing"
	"time"
)

func TestBufferReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buf, err := session.Fetch(time.Second)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if err := buf.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	// Second release must not double-free the underlying buffer.
	if err := buf.Release(); err != nil {
		t.Errorf("repeated Release failed: %v", err)
	}
}

func TestBuffersReturnToPool(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Pool holds 2 buffers; 20 fetch/release cycles only work if every
	// released handle actually returns its buffer.
	for i := 0; i < 20; i++ {
		buf, err := session.Fetch(time.Second)
		if err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
		if err := buf.Release(); err != nil {
			t.Fatalf("release %d failed: %v", i, err)
		}
	}
}

func TestWithFetchReleasesOnError(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	wantErr := errors.New("processing failed")
	for i := 0; i < 5; i++ {
		err := session.WithFetch(time.Second, func(_ *Buffer) error {
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("expected processing error, got %v", err)
		}
	}

	// If WithFetch leaked on the error path the pool (size 2) would be
	// exhausted by now.
	buf, err := session.Fetch(time.Second)
	if err != nil {
		t.Fatalf("pool exhausted after error-path fetches: %v", err)
	}
	_ = buf.Release()
}

func TestWithFetchReleasesOnPanic(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		func() {
			defer func() {
				if recover() == nil {
					t.Error("expected panic to propagate")
				}
			}()
			_ = session.WithFetch(time.Second, func(_ *Buffer) error {
				panic("frame processing blew up")
			})
		}()
	}

	buf, err := session.Fetch(time.Second)
	if err != nil {
		t.Fatalf("pool exhausted after panic-path fetches: %v", err)
	}
	_ = buf.Release()
}

func TestBufferMetadata(t *testing.T) {
	m, _ := newTestManager(t, "sim-0")
	session, _ := m.Create(0)
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := session.WithFetch(time.Second, func(buf *Buffer) error {
		if buf.FrameID() != 1 {
			t.Errorf("expected frame id 1, got %d", buf.FrameID())
		}
		if buf.Width() != 8 || buf.Height() != 8 {
			t.Errorf("unexpected dimensions %dx%d", buf.Width(), buf.Height())
		}
		if buf.PixelFormat() != "Mono8" {
			t.Errorf("unexpected pixel format %q", buf.PixelFormat())
		}
		if len(buf.Bytes()) != 64 {
			t.Errorf("expected 64 bytes of pixel data, got %d", len(buf.Bytes()))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithFetch failed: %v", err)
	}
}
