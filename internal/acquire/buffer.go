package acquire

import (
	"sync"
	"time"

	"github.com/openacq/camnode/internal/backend"
	"github.com/openacq/camnode/internal/metrics"
)

// Buffer is a scoped handle on one fetched frame. It borrows the underlying
// backend buffer for exactly the span between Fetch and Release; Release is
// idempotent and the backend buffer is returned exactly once. The pixel data
// is read-only through this handle.
type Buffer struct {
	raw     *backend.RawBuffer
	dev     backend.DeviceSession
	metrics *metrics.Acquisition

	releaseOnce sync.Once
	releaseErr  error
}

// FrameID returns the device-assigned monotonic frame identifier.
func (b *Buffer) FrameID() uint64 { return b.raw.FrameID }

// Timestamp returns the frame capture time.
func (b *Buffer) Timestamp() time.Time { return b.raw.Timestamp }

// Width returns the frame width in pixels.
func (b *Buffer) Width() int { return b.raw.Width }

// Height returns the frame height in pixels.
func (b *Buffer) Height() int { return b.raw.Height }

// PixelFormat returns the frame pixel format name.
func (b *Buffer) PixelFormat() string { return b.raw.PixelFormat }

// Bytes returns the pixel data. The slice aliases pool memory: it must not
// be modified and must not be retained past Release.
func (b *Buffer) Bytes() []byte { return b.raw.Data }

// Release returns the underlying buffer to the backend pool. Safe to call
// more than once; only the first call releases.
func (b *Buffer) Release() error {
	b.releaseOnce.Do(func() {
		b.releaseErr = b.dev.ReleaseBuffer(b.raw)
		b.metrics.BufferReleased()
	})
	return b.releaseErr
}
