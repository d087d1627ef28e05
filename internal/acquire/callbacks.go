package acquire

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openacq/camnode/internal/backend"
	"github.com/openacq/camnode/internal/events"
)

// NodeCallback is invoked when an observed node changes value. It runs on a
// per-node dispatch goroutine, never on the fetch path: a slow callback
// delays later events for the same node but never for other nodes.
// Callbacks must be safe to run concurrently with the session's fetch loop.
type NodeCallback func(node backend.Node, context any)

// Token identifies one callback registration. Tokens are unique for the
// process lifetime.
type Token string

// queue depth per node before backend notification backpressure kicks in
const dispatchQueueSize = 64

type registration struct {
	token Token
	node  string
	cb    NodeCallback
	ctx   any
}

// nodeDispatcher owns the delivery path for one node: an ordered queue fed
// by the backend subscription and drained by a single goroutine.
type nodeDispatcher struct {
	queue chan backend.Node
	done  chan struct{}
	subID backend.SubscriptionID
}

// CallbackRegistry tracks node callback registrations for one session.
type CallbackRegistry struct {
	dev       backend.DeviceSession
	sessionID string
	logger    *slog.Logger
	bus       *events.Bus

	mu          sync.Mutex
	closed      bool
	byToken     map[Token]*registration
	byNode      map[string][]*registration
	dispatchers map[string]*nodeDispatcher
	wg          sync.WaitGroup
}

func newCallbackRegistry(dev backend.DeviceSession, sessionID string, logger *slog.Logger, bus *events.Bus) *CallbackRegistry {
	return &CallbackRegistry{
		dev:         dev,
		sessionID:   sessionID,
		logger:      logger,
		bus:         bus,
		byToken:     make(map[Token]*registration),
		byNode:      make(map[string][]*registration),
		dispatchers: make(map[string]*nodeDispatcher),
	}
}

// Register adds a callback for the named node and returns its token.
// Multiple registrations may observe the same node; for a single change
// event they fire in registration order.
func (r *CallbackRegistry) Register(nodeName string, cb NodeCallback, cbContext any) (Token, error) {
	if cb == nil {
		return "", fmt.Errorf("callback must not be nil")
	}

	// Validate node existence with the backend before touching registry state.
	if _, err := r.dev.Node(nodeName); err != nil {
		if errors.Is(err, backend.ErrNodeNotFound) {
			return "", NewAcquireError(ErrCodeUnknownNode, "node does not exist on device", err)
		}
		return "", NewAcquireError(ErrCodeBackend, "node lookup failed", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", NewAcquireError(ErrCodeUseAfterDestroy, "session has been destroyed", nil)
	}

	if _, ok := r.dispatchers[nodeName]; !ok {
		if err := r.startDispatcherLocked(nodeName); err != nil {
			r.mu.Unlock()
			return "", err
		}
	}

	reg := &registration{
		token: Token(uuid.NewString()),
		node:  nodeName,
		cb:    cb,
		ctx:   cbContext,
	}
	r.byToken[reg.token] = reg
	r.byNode[nodeName] = append(r.byNode[nodeName], reg)
	r.mu.Unlock()

	r.logger.Debug("Node callback registered",
		"session_id", r.sessionID, "node", nodeName, "token", string(reg.token))
	return reg.token, nil
}

// startDispatcherLocked subscribes to the backend and starts the dispatch
// goroutine for one node. Caller holds r.mu.
func (r *CallbackRegistry) startDispatcherLocked(nodeName string) error {
	d := &nodeDispatcher{
		queue: make(chan backend.Node, dispatchQueueSize),
		done:  make(chan struct{}),
	}

	subID, err := r.dev.Subscribe(nodeName, func(node backend.Node) {
		select {
		case d.queue <- node:
		case <-d.done:
		}
	})
	if err != nil {
		return NewAcquireError(ErrCodeBackend, "node subscription failed", err)
	}
	d.subID = subID
	r.dispatchers[nodeName] = d

	r.wg.Add(1)
	go r.dispatchLoop(nodeName, d)
	return nil
}

// dispatchLoop delivers change events for one node in arrival order.
func (r *CallbackRegistry) dispatchLoop(nodeName string, d *nodeDispatcher) {
	defer r.wg.Done()

	for {
		select {
		case node := <-d.queue:
			r.mu.Lock()
			regs := slices.Clone(r.byNode[nodeName])
			r.mu.Unlock()

			for _, reg := range regs {
				reg.cb(node, reg.ctx)
			}

			if r.bus != nil {
				r.bus.Publish(events.NodeChangedEvent{
					SessionID: r.sessionID,
					NodeName:  nodeName,
					Value:     fmt.Sprint(node.Value()),
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				})
			}
		case <-d.done:
			return
		}
	}
}

// Deregister removes a registration. Unknown or already-deregistered tokens
// fail with UNKNOWN_TOKEN: deregistration destroys a uniquely-owned
// resource and is deliberately not idempotent.
func (r *CallbackRegistry) Deregister(token Token) error {
	r.mu.Lock()

	reg, ok := r.byToken[token]
	if !ok {
		r.mu.Unlock()
		return NewAcquireError(ErrCodeUnknownToken, "unknown or stale callback token", nil)
	}
	delete(r.byToken, token)

	regs := r.byNode[reg.node]
	if i := slices.Index(regs, reg); i >= 0 {
		r.byNode[reg.node] = slices.Delete(regs, i, i+1)
	}

	// Tear the dispatcher down with the last registration for its node.
	var d *nodeDispatcher
	if len(r.byNode[reg.node]) == 0 {
		delete(r.byNode, reg.node)
		d = r.dispatchers[reg.node]
		delete(r.dispatchers, reg.node)
	}
	r.mu.Unlock()

	if d != nil {
		r.stopDispatcher(reg.node, d)
	}

	r.logger.Debug("Node callback deregistered",
		"session_id", r.sessionID, "node", reg.node, "token", string(token))
	return nil
}

func (r *CallbackRegistry) stopDispatcher(nodeName string, d *nodeDispatcher) {
	if err := r.dev.Unsubscribe(d.subID); err != nil {
		r.logger.Warn("Failed to unsubscribe node", "session_id", r.sessionID,
			"node", nodeName, "error", err)
	}
	close(d.done)
}

// close deregisters everything at session teardown and waits for in-flight
// deliveries to finish.
func (r *CallbackRegistry) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	dispatchers := r.dispatchers
	r.byToken = make(map[Token]*registration)
	r.byNode = make(map[string][]*registration)
	r.dispatchers = make(map[string]*nodeDispatcher)
	r.mu.Unlock()

	for nodeName, d := range dispatchers {
		r.stopDispatcher(nodeName, d)
	}
	r.wg.Wait()
}
