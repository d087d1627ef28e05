// Package sim provides a simulated device backend: a configurable set of
// synthetic cameras with paced frame generation, bounded buffer pools, and
// a notifying parameter node map. It is the default backend for the demo
// commands and the acquisition tests.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openacq/camnode/internal/backend"
)

// DeviceChangeFunc is notified when SetConfig adds or removes devices.
type DeviceChangeFunc func(added, removed []backend.DeviceInfo)

// Backend implements backend.Backend with simulated devices.
type Backend struct {
	mu       sync.RWMutex
	devices  []deviceEntry
	logger   *slog.Logger
	onChange DeviceChangeFunc
}

type deviceEntry struct {
	info backend.DeviceInfo
	spec DeviceSpec
}

// New creates a simulated backend from a device configuration.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{logger: logger}
	b.devices = entriesFromConfig(cfg)
	return b
}

func entriesFromConfig(cfg Config) []deviceEntry {
	entries := make([]deviceEntry, 0, len(cfg.Devices))
	for _, id := range sortedIDs(cfg.Devices) {
		spec := normalizeSpec(cfg.Devices[id])
		serial := spec.Serial
		if serial == "" {
			serial = id
		}
		entries = append(entries, deviceEntry{
			info: backend.DeviceInfo{
				ID:     id,
				Model:  spec.Model,
				Vendor: spec.Vendor,
				Serial: serial,
			},
			spec: spec,
		})
	}
	return entries
}

// SetOnDeviceChange sets the callback invoked when SetConfig changes the
// device list.
func (b *Backend) SetOnDeviceChange(fn DeviceChangeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// SetConfig replaces the device list. Open sessions keep the device they
// were bound to; only enumeration changes.
func (b *Backend) SetConfig(cfg Config) {
	entries := entriesFromConfig(cfg)

	b.mu.Lock()
	old := b.devices
	b.devices = entries
	onChange := b.onChange
	b.mu.Unlock()

	if onChange == nil {
		return
	}

	added, removed := diffDevices(old, entries)
	if len(added) > 0 || len(removed) > 0 {
		onChange(added, removed)
	}
}

func diffDevices(old, cur []deviceEntry) (added, removed []backend.DeviceInfo) {
	oldIDs := make(map[string]backend.DeviceInfo, len(old))
	for _, e := range old {
		oldIDs[e.info.ID] = e.info
	}
	curIDs := make(map[string]backend.DeviceInfo, len(cur))
	for _, e := range cur {
		curIDs[e.info.ID] = e.info
		if _, ok := oldIDs[e.info.ID]; !ok {
			added = append(added, e.info)
		}
	}
	for id, info := range oldIDs {
		if _, ok := curIDs[id]; !ok {
			removed = append(removed, info)
		}
	}
	return added, removed
}

// Enumerate implements backend.Backend.
func (b *Backend) Enumerate() []backend.DeviceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]backend.DeviceInfo, len(b.devices))
	for i, e := range b.devices {
		infos[i] = e.info
	}
	return infos
}

// Open implements backend.Backend. Multiple sessions per device are
// permitted; each gets its own buffer pool and node map.
func (b *Backend) Open(index int) (backend.DeviceSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index < 0 || index >= len(b.devices) {
		return nil, fmt.Errorf("%w: %d of %d", backend.ErrInvalidIndex, index, len(b.devices))
	}

	entry := b.devices[index]
	b.logger.Debug("opening simulated device", "device_id", entry.info.ID)
	return newSession(entry.info, entry.spec), nil
}

// session is one open simulated device: a slot pool, a frame pacer, and a
// node map.
type session struct {
	info  backend.DeviceInfo
	spec  DeviceSpec
	nodes *nodeMap

	free    chan int
	buffers [][]byte

	mu          sync.Mutex
	closed      bool
	closeCh     chan struct{}
	frameID     uint64
	nextFrameAt time.Time
	outstanding map[int]bool
}

func newSession(info backend.DeviceInfo, spec DeviceSpec) *session {
	s := &session{
		info:        info,
		spec:        spec,
		nodes:       newNodeMap(spec),
		free:        make(chan int, spec.PoolSize),
		buffers:     make([][]byte, spec.PoolSize),
		closeCh:     make(chan struct{}),
		outstanding: make(map[int]bool),
	}
	for i := 0; i < spec.PoolSize; i++ {
		s.buffers[i] = make([]byte, spec.Width*spec.Height)
		s.free <- i
	}
	return s
}

// Info implements backend.DeviceSession.
func (s *session) Info() backend.DeviceInfo { return s.info }

// framePeriod reads the pacing interval from the frame rate node so that
// node mutation actually changes acquisition behavior.
func (s *session) framePeriod() time.Duration {
	node, err := s.nodes.get("AcquisitionFrameRate")
	if err != nil {
		return time.Millisecond
	}
	rate, ok := node.Value().(float64)
	if !ok || rate <= 0 {
		return time.Millisecond
	}
	return time.Duration(float64(time.Second) / rate)
}

// AcquireBuffer implements backend.DeviceSession.
func (s *session) AcquireBuffer(ctx context.Context, timeout time.Duration) (*backend.RawBuffer, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Wait for a free slot.
	var slot int
	select {
	case slot = <-s.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closeCh:
		return nil, backend.ErrClosed
	case <-timer.C:
		return nil, backend.ErrTimeout
	}

	// Pace frame delivery.
	s.mu.Lock()
	now := time.Now()
	at := s.nextFrameAt
	if at.Before(now) {
		at = now
	}
	s.nextFrameAt = at.Add(s.framePeriod())
	s.mu.Unlock()

	if wait := time.Until(at); wait > 0 {
		pacer := time.NewTimer(wait)
		select {
		case <-pacer.C:
		case <-ctx.Done():
			pacer.Stop()
			s.free <- slot
			return nil, ctx.Err()
		case <-s.closeCh:
			pacer.Stop()
			s.free <- slot
			return nil, backend.ErrClosed
		case <-timer.C:
			pacer.Stop()
			s.free <- slot
			return nil, backend.ErrTimeout
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.free <- slot
		return nil, backend.ErrClosed
	}
	s.frameID++
	id := s.frameID
	s.outstanding[slot] = true
	s.mu.Unlock()

	data := s.buffers[slot]
	fillFrame(data, id, s.info.Serial)

	s.nodes.setFrameProgress(id)

	return &backend.RawBuffer{
		Slot:        slot,
		FrameID:     id,
		Timestamp:   time.Now(),
		Width:       s.spec.Width,
		Height:      s.spec.Height,
		PixelFormat: "Mono8",
		Data:        data,
	}, nil
}

// fillFrame writes a deterministic per-frame pattern seeded by the device
// serial, so tests can detect cross-device buffer mixups.
func fillFrame(data []byte, frameID uint64, serial string) {
	var seed byte
	for i := 0; i < len(serial); i++ {
		seed += serial[i]
	}
	for i := range data {
		data[i] = byte(frameID) + byte(i) + seed
	}
}

// ReleaseBuffer implements backend.DeviceSession.
func (s *session) ReleaseBuffer(buf *backend.RawBuffer) error {
	if buf == nil {
		return backend.ErrBufferNotOutstanding
	}

	s.mu.Lock()
	if !s.outstanding[buf.Slot] {
		s.mu.Unlock()
		return fmt.Errorf("%w: slot %d", backend.ErrBufferNotOutstanding, buf.Slot)
	}
	delete(s.outstanding, buf.Slot)
	closed := s.closed
	s.mu.Unlock()

	if !closed {
		s.free <- buf.Slot
	}
	return nil
}

// Node implements backend.DeviceSession.
func (s *session) Node(name string) (backend.Node, error) {
	return s.nodes.get(name)
}

// Subscribe implements backend.DeviceSession.
func (s *session) Subscribe(name string, fn backend.NotifyFunc) (backend.SubscriptionID, error) {
	return s.nodes.subscribe(name, fn)
}

// Unsubscribe implements backend.DeviceSession.
func (s *session) Unsubscribe(id backend.SubscriptionID) error {
	return s.nodes.unsubscribe(id)
}

// Close implements backend.DeviceSession. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()
	return nil
}
