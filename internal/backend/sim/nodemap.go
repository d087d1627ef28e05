package sim

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/openacq/camnode/internal/backend"
)

// FrameProgressNode is the event-style node whose value updates on every
// generated frame while acquisition runs.
const FrameProgressNode = "EventFrameProgress"

// nodeMap holds the parameter nodes of one simulated device and fans out
// change notifications to subscribers.
type nodeMap struct {
	mu      sync.Mutex
	nodes   map[string]*simNode
	subs    map[backend.SubscriptionID]subscription
	byNode  map[string][]backend.SubscriptionID
	nextSub backend.SubscriptionID
}

type subscription struct {
	node string
	fn   backend.NotifyFunc
}

// simNode implements backend.Node against the shared nodeMap lock.
type simNode struct {
	nm        *nodeMap
	name      string
	typ       backend.NodeType
	value     any
	choices   []string
	execCount int64
}

// newNodeMap builds the default node set for a simulated device.
func newNodeMap(spec DeviceSpec) *nodeMap {
	nm := &nodeMap{
		nodes:  make(map[string]*simNode),
		subs:   make(map[backend.SubscriptionID]subscription),
		byNode: make(map[string][]backend.SubscriptionID),
	}

	add := func(n *simNode) {
		n.nm = nm
		nm.nodes[n.name] = n
	}

	add(&simNode{name: "Width", typ: backend.NodeTypeInteger, value: int64(spec.Width)})
	add(&simNode{name: "Height", typ: backend.NodeTypeInteger, value: int64(spec.Height)})
	add(&simNode{name: "AcquisitionFrameRate", typ: backend.NodeTypeFloat, value: spec.FrameRate})
	add(&simNode{name: "AcquisitionMode", typ: backend.NodeTypeEnumeration, value: "Continuous", choices: []string{"Continuous", "SingleFrame"}})
	add(&simNode{name: "TriggerMode", typ: backend.NodeTypeEnumeration, value: "Off", choices: []string{"Off", "On"}})
	add(&simNode{name: "TriggerSource", typ: backend.NodeTypeEnumeration, value: "Software", choices: []string{"Software", "Line0"}})
	add(&simNode{name: "TriggerSoftware", typ: backend.NodeTypeCommand, value: int64(0)})
	add(&simNode{name: FrameProgressNode, typ: backend.NodeTypeInteger, value: int64(0)})

	return nm
}

func (nm *nodeMap) get(name string) (backend.Node, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	node, ok := nm.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNodeNotFound, name)
	}
	return node, nil
}

func (nm *nodeMap) subscribe(name string, fn backend.NotifyFunc) (backend.SubscriptionID, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, ok := nm.nodes[name]; !ok {
		return 0, fmt.Errorf("%w: %s", backend.ErrNodeNotFound, name)
	}

	nm.nextSub++
	id := nm.nextSub
	nm.subs[id] = subscription{node: name, fn: fn}
	nm.byNode[name] = append(nm.byNode[name], id)
	return id, nil
}

func (nm *nodeMap) unsubscribe(id backend.SubscriptionID) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	sub, ok := nm.subs[id]
	if !ok {
		return fmt.Errorf("unknown subscription id %d", id)
	}
	delete(nm.subs, id)

	ids := nm.byNode[sub.node]
	if i := slices.Index(ids, id); i >= 0 {
		nm.byNode[sub.node] = slices.Delete(ids, i, i+1)
	}
	return nil
}

// notify invokes subscribers for a node in subscription order. The lock is
// released before invoking so callbacks may read node values.
func (nm *nodeMap) notify(node *simNode) {
	nm.mu.Lock()
	fns := make([]backend.NotifyFunc, 0, len(nm.byNode[node.name]))
	for _, id := range nm.byNode[node.name] {
		fns = append(fns, nm.subs[id].fn)
	}
	nm.mu.Unlock()

	for _, fn := range fns {
		fn(node)
	}
}

// setFrameProgress updates the frame-progress event node and notifies.
func (nm *nodeMap) setFrameProgress(frameID uint64) {
	nm.mu.Lock()
	node := nm.nodes[FrameProgressNode]
	node.value = int64(frameID)
	nm.mu.Unlock()

	nm.notify(node)
}

// Name implements backend.Node.
func (n *simNode) Name() string { return n.name }

// Type implements backend.Node.
func (n *simNode) Type() backend.NodeType { return n.typ }

// Value implements backend.Node.
func (n *simNode) Value() any {
	n.nm.mu.Lock()
	defer n.nm.mu.Unlock()

	if n.typ == backend.NodeTypeCommand {
		return n.execCount
	}
	return n.value
}

// SetValue implements backend.Node.
func (n *simNode) SetValue(value any) error {
	n.nm.mu.Lock()

	switch n.typ {
	case backend.NodeTypeInteger:
		switch v := value.(type) {
		case int:
			n.value = int64(v)
		case int64:
			n.value = v
		case float64:
			// JSON decodes numbers as float64, accept integral values
			if v != math.Trunc(v) {
				n.nm.mu.Unlock()
				return fmt.Errorf("node %s: expected integer, got %v", n.name, v)
			}
			n.value = int64(v)
		default:
			n.nm.mu.Unlock()
			return fmt.Errorf("node %s: expected integer, got %T", n.name, value)
		}
	case backend.NodeTypeFloat:
		switch v := value.(type) {
		case float64:
			n.value = v
		case int:
			n.value = float64(v)
		case int64:
			n.value = float64(v)
		default:
			n.nm.mu.Unlock()
			return fmt.Errorf("node %s: expected float, got %T", n.name, value)
		}
	case backend.NodeTypeEnumeration:
		v, ok := value.(string)
		if !ok || !slices.Contains(n.choices, v) {
			n.nm.mu.Unlock()
			return fmt.Errorf("node %s: invalid enumeration entry %v", n.name, value)
		}
		n.value = v
	case backend.NodeTypeCommand:
		n.nm.mu.Unlock()
		return fmt.Errorf("node %s: command nodes cannot be set", n.name)
	}

	n.nm.mu.Unlock()
	n.nm.notify(n)
	return nil
}

// Execute implements backend.Node.
func (n *simNode) Execute() error {
	n.nm.mu.Lock()
	if n.typ != backend.NodeTypeCommand {
		n.nm.mu.Unlock()
		return fmt.Errorf("node %s is not a command node", n.name)
	}
	n.execCount++
	n.nm.mu.Unlock()

	n.nm.notify(n)
	return nil
}
