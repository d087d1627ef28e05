package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeDeviceDiscovery
	TypeNodeChanged
	TypeFrameFetched
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent fires on every acquisition session state transition.
type SessionStateChangedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	DeviceID  string `json:"device_id" example:"sim-0" doc:"Device the session is bound to"`
	OldState  string `json:"old_state" example:"created" doc:"Previous session state"`
	NewState  string `json:"new_state" example:"running" doc:"New session state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// DeviceDiscoveryEvent fires when the backend device list changes.
type DeviceDiscoveryEvent struct {
	DeviceID  string `json:"device_id" example:"sim-0" doc:"Device identifier"`
	Model     string `json:"model" example:"TLSimu" doc:"Device model"`
	Action    string `json:"action" example:"added" doc:"Action type: added, removed"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// NodeChangedEvent fires when a device parameter node changes value.
type NodeChangedEvent struct {
	SessionID string `json:"session_id" doc:"Session observing the node"`
	NodeName  string `json:"node_name" example:"Width" doc:"Node name"`
	Value     string `json:"value" example:"1920" doc:"New value, stringified"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Change timestamp"`
}

// Type returns the event type identifier for NodeChangedEvent.
func (e NodeChangedEvent) Type() uint32 { return TypeNodeChanged }

// FrameFetchedEvent fires for every buffer fetched by a session.
type FrameFetchedEvent struct {
	SessionID string `json:"session_id" doc:"Fetching session"`
	DeviceID  string `json:"device_id" example:"sim-0" doc:"Device the frame came from"`
	FrameID   uint64 `json:"frame_id" example:"42" doc:"Monotonic frame identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Fetch timestamp"`
}

// Type returns the event type identifier for FrameFetchedEvent.
func (e FrameFetchedEvent) Type() uint32 { return TypeFrameFetched }
