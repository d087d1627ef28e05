package backend

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by backend implementations.
var (
	// ErrTimeout is returned by AcquireBuffer when no buffer became
	// available within the requested timeout.
	ErrTimeout = errors.New("backend: acquire timed out")

	// ErrNodeNotFound is returned when a named node does not exist on the device.
	ErrNodeNotFound = errors.New("backend: node not found")

	// ErrInvalidIndex is returned by Open for an out-of-range device index.
	ErrInvalidIndex = errors.New("backend: device index out of range")

	// ErrClosed is returned by operations on a closed device session.
	ErrClosed = errors.New("backend: device session closed")

	// ErrBufferNotOutstanding is returned by ReleaseBuffer for a buffer
	// that is not currently held by the caller.
	ErrBufferNotOutstanding = errors.New("backend: buffer not outstanding")
)

// DeviceInfo describes one enumerated device.
type DeviceInfo struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Vendor string `json:"vendor"`
	Serial string `json:"serial"`
}

// RawBuffer is one frame buffer owned by the backend's pool. Callers borrow
// it from AcquireBuffer and must return it with ReleaseBuffer. Data must not
// be modified or retained past release.
type RawBuffer struct {
	Slot        int
	FrameID     uint64
	Timestamp   time.Time
	Width       int
	Height      int
	PixelFormat string
	Data        []byte
}

// NodeType is the value type of a device parameter node.
type NodeType string

// Node types.
const (
	NodeTypeInteger     NodeType = "integer"
	NodeTypeFloat       NodeType = "float"
	NodeTypeEnumeration NodeType = "enumeration"
	NodeTypeCommand     NodeType = "command"
)

// Node is a named, typed device parameter. Integer, float, and enumeration
// nodes carry a value; command nodes are fired with Execute.
type Node interface {
	Name() string
	Type() NodeType

	// Value returns the current value: int64, float64, or string
	// depending on Type. Command nodes return their execution count.
	Value() any

	// SetValue updates the node value and notifies subscribers.
	SetValue(value any) error

	// Execute fires a command node. Non-command nodes return an error.
	Execute() error
}

// NotifyFunc receives node change notifications. It may be invoked from a
// backend-owned goroutine and must not block for long.
type NotifyFunc func(node Node)

// SubscriptionID identifies one node subscription within a device session.
type SubscriptionID uint64

// DeviceSession is one open connection to a device. Sessions are not safe
// for concurrent AcquireBuffer calls from multiple goroutines; every other
// method is safe to call concurrently.
type DeviceSession interface {
	// Info returns the device this session is bound to.
	Info() DeviceInfo

	// AcquireBuffer blocks until the next frame buffer is available, the
	// timeout elapses (ErrTimeout), or ctx is cancelled (ctx.Err()).
	AcquireBuffer(ctx context.Context, timeout time.Duration) (*RawBuffer, error)

	// ReleaseBuffer returns a borrowed buffer to the pool.
	ReleaseBuffer(buf *RawBuffer) error

	// Node looks up a parameter node by name.
	Node(name string) (Node, error)

	// Subscribe registers fn for change notifications on the named node.
	Subscribe(name string, fn NotifyFunc) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// Close releases the session. Blocked AcquireBuffer calls return ErrClosed.
	Close() error
}

// Backend is the device transport layer: enumeration and session opening.
// The acquisition core consumes this interface and never implements it.
type Backend interface {
	// Enumerate returns the currently known devices, in stable index order.
	Enumerate() []DeviceInfo

	// Open opens a session against the device at the given enumeration index.
	Open(index int) (DeviceSession, error)
}
