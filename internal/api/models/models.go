package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.3" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-15T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go version used to build"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Device models
type DeviceData struct {
	Index  int    `json:"index" example:"0" doc:"Enumeration index used to open the device"`
	ID     string `json:"id" example:"sim-0" doc:"Stable device identifier"`
	Model  string `json:"model" example:"TLSimu" doc:"Device model name"`
	Vendor string `json:"vendor" example:"OpenAcq" doc:"Device vendor name"`
	Serial string `json:"serial" example:"SIM00000" doc:"Device serial number"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Enumerated devices"`
	Count   int          `json:"count" example:"1" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

// Session models
type SessionData struct {
	SessionID   string     `json:"session_id" example:"0b51b283-0a5a-4d9f-b6b3-d3b36e2e365e" doc:"Unique session identifier"`
	DeviceIndex int        `json:"device_index" example:"0" doc:"Device enumeration index"`
	DeviceID    string     `json:"device_id" example:"sim-0" doc:"Stable device identifier"`
	State       string     `json:"state" example:"running" doc:"Session state"`
	Frames      uint64     `json:"frames" example:"10" doc:"Frames fetched while running"`
	Device      DeviceData `json:"device" doc:"Device the session is bound to"`
}

type SessionListData struct {
	Sessions []SessionData `json:"sessions" doc:"Tracked sessions"`
	Count    int           `json:"count" example:"1" doc:"Number of sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

type SessionRequestData struct {
	DeviceIndex int `json:"device_index" minimum:"0" example:"0" doc:"Enumeration index of the device to open"`
}

type SessionRequest struct {
	Body SessionRequestData
}

type SessionResponse struct {
	Body SessionData
}

// Node models
type NodeData struct {
	Name  string `json:"name" example:"Width" doc:"Node name"`
	Type  string `json:"type" example:"integer" doc:"Node value type"`
	Value any    `json:"value,omitempty" doc:"Current node value (absent for command nodes)"`
}

type NodeResponse struct {
	Body NodeData
}

type NodeWriteData struct {
	Value any `json:"value" example:"640" doc:"New node value"`
}

// Log models
type LogEntryData struct {
	Timestamp  time.Time      `json:"timestamp" doc:"When the entry was logged"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	Module     string         `json:"module" example:"acquire" doc:"Module that produced the entry"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogListData struct {
	Entries []LogEntryData `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int            `json:"count" example:"120" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}
