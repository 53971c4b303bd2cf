// Package cloud implements the Cloud Connector (C7): enrollment, token
// lifecycle, a durable offline queue, batched export, heartbeat, and
// server-commanded policy sync.
package cloud

import (
	"encoding/json"
	"time"
)

// DeviceInfo is posted during enrollment.
type DeviceInfo struct {
	Hostname     string            `json:"hostname"`
	OS           string            `json:"os"`
	Arch         string            `json:"arch"`
	SensorVersion string           `json:"sensor_version"`
	CPUs         int               `json:"cpus"`
	MemoryMB     uint64            `json:"memory_mb"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Device is the cloud's record of this sensor, returned on registration.
type Device struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	WorkspaceID    string `json:"workspace_id,omitempty"`
	Name           string `json:"name"`
	Status         string `json:"status"`
}

// Credentials is the persisted device identity + bearer token.
type Credentials struct {
	DeviceID       string    `json:"device_id"`
	DeviceToken    string    `json:"device_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	OrgID          string    `json:"org_id"`
	WorkspaceID    string    `json:"workspace_id,omitempty"`
	APIEndpoint    string    `json:"api_endpoint"`
	StreamEndpoint string    `json:"stream_endpoint,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry.
func (c Credentials) Expired() bool { return !c.TokenExpiresAt.IsZero() && time.Now().After(c.TokenExpiresAt) }

// NeedsRotation reports whether the token is within its back half of
// lifetime and should be proactively rotated.
func (c Credentials) NeedsRotation(issuedAt time.Time) bool {
	if c.TokenExpiresAt.IsZero() {
		return false
	}
	half := issuedAt.Add(c.TokenExpiresAt.Sub(issuedAt) / 2)
	return time.Now().After(half)
}

// registerRequest/enrollRequest are the two enrollment POST bodies; they
// share a shape but are routed to different endpoints based on which
// credential prefix configured the connector (oxm_ vs enroll_).
type registerRequest struct {
	Device DeviceInfo `json:"device"`
}

type registrationResponse struct {
	Device      Device `json:"device"`
	Credentials struct {
		DeviceToken string    `json:"device_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	} `json:"credentials"`
}

// HeartbeatStats is the periodic status payload.
type HeartbeatStats struct {
	SensorVersion  string  `json:"sensor_version"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	EventsCaptured int64   `json:"events_captured"`
	EventsExported int64   `json:"events_exported"`
	EventsQueued   int64   `json:"events_queued"`
	PolicyVersion  string  `json:"policy_version,omitempty"`
	MemoryMB       float64 `json:"memory_mb"`
	CPUPercent     float64 `json:"cpu_percent"`
}

// DeviceStatus is the heartbeat request's top-level status field.
type DeviceStatus string

const (
	StatusActive   DeviceStatus = "active"
	StatusPaused   DeviceStatus = "paused"
	StatusStarting DeviceStatus = "starting"
	StatusStopping DeviceStatus = "stopping"
	StatusError    DeviceStatus = "error"
)

type heartbeatRequest struct {
	Status DeviceStatus   `json:"status"`
	Stats  HeartbeatStats `json:"stats"`
}

type heartbeatResponse struct {
	OK        bool            `json:"ok"`
	Timestamp time.Time       `json:"timestamp"`
	Commands  []ServerCommand `json:"commands"`
	PolicyVersion string      `json:"policy_version,omitempty"`
}

// CommandKind discriminates a heartbeat-delivered ServerCommand.
type CommandKind string

const (
	CommandRotateToken   CommandKind = "rotate_token"
	CommandFetchPolicies CommandKind = "fetch_policies"
	CommandRestart       CommandKind = "restart"
	CommandUpdate        CommandKind = "update"
)

// ServerCommand is a single command the cloud asked the device to run,
// consumed from a heartbeat response.
type ServerCommand struct {
	Type    CommandKind `json:"type"`
	Version string      `json:"version,omitempty"` // set on CommandUpdate
}

// rotateResponse is the /rotate-token response body.
type rotateResponse struct {
	DeviceToken string    `json:"device_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// batchRequest/batchResponse are the /v1/events/batch bodies. Events is
// kept as raw JSON so the client never has to import pkg/event's full type
// set just to forward bytes it already serialized once.
type batchRequest struct {
	DeviceID string            `json:"device_id"`
	Events   []json.RawMessage `json:"events"`
}

type batchResponse struct {
	Received int    `json:"received"`
	BatchID  string `json:"batch_id"`
}
