package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-intercom/internal/intercom"
)

// MQTT message types exchanged between the intercom bridge and consumers.

// Command names accepted on graylogic/command/intercom/{device_id}.
const (
	// CommandRelayOpen fires a relay pulse without waiting for the device.
	CommandRelayOpen = "relay_open"

	// CommandRelayOpenWait fires a relay pulse and waits for confirmation.
	CommandRelayOpenWait = "relay_open_wait"

	// CommandTestConnection probes the device with a one-shot login.
	CommandTestConnection = "test_connection"
)

// CommandMessage is received on the per-device command topic.
// Topic: graylogic/command/intercom/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name (relay_open, relay_open_wait,
	// test_connection).
	Command string `json:"command"`

	// Relay selects the relay for relay commands (0 or 1).
	Relay int `json:"relay"`

	// TimeoutMs is the optional relay pulse duration in milliseconds
	// (250-30000). Zero lets the device apply its default.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// Source indicates where the command originated (e.g. "api",
	// "automation").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was executed or handed to the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is published after processing a command.
// Topic: graylogic/ack/intercom/{device_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the device the command addressed.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("intercom").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage mirrors a session snapshot onto MQTT.
// Topic: graylogic/state/intercom/{device_id}, QoS 1, retained.
type StateMessage struct {
	DeviceID        string       `json:"device_id"`
	Timestamp       time.Time    `json:"timestamp"`
	Connected       bool         `json:"connected"`
	State           string       `json:"state"`
	RelayStates     map[int]bool `json:"relay_states"`
	DoorbellPressed bool         `json:"doorbell_pressed"`
	TokenExpiresAt  *time.Time   `json:"token_expires_at,omitempty"`
}

// NewStateMessage builds a state message from a session snapshot.
func NewStateMessage(snap intercom.Snapshot) StateMessage {
	msg := StateMessage{
		DeviceID:        snap.DeviceID,
		Timestamp:       time.Now().UTC(),
		Connected:       snap.Connected,
		State:           string(snap.State),
		RelayStates:     snap.RelayStates,
		DoorbellPressed: snap.DoorbellPressed,
	}
	if !snap.TokenExpiresAt.IsZero() {
		t := snap.TokenExpiresAt.UTC()
		msg.TokenExpiresAt = &t
	}
	return msg
}

// DoorbellMessage announces a doorbell press.
// Topic: graylogic/event/intercom/{device_id}/doorbell, never retained.
type DoorbellMessage struct {
	// EventID uniquely identifies this press so consumers can deduplicate
	// across QoS 1 redeliveries.
	EventID string `json:"event_id"`

	DeviceID  string    `json:"device_id"`
	Button    int       `json:"button"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDoorbellMessage builds a doorbell message from a session event.
func NewDoorbellMessage(ev intercom.DoorbellEvent) DoorbellMessage {
	return DoorbellMessage{
		EventID:   uuid.NewString(),
		DeviceID:  ev.DeviceID,
		Button:    ev.Button,
		Timestamp: ev.Time.UTC(),
	}
}

// HealthStatus represents overall bridge health.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// DeviceHealth summarises one session inside a health message.
type DeviceHealth struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

// HealthMessage is the periodic bridge health report.
// Topic: graylogic/health/intercom, QoS 1, retained.
type HealthMessage struct {
	BridgeID      string                  `json:"bridge_id"`
	Version       string                  `json:"version"`
	Status        HealthStatus            `json:"status"`
	Reason        string                  `json:"reason,omitempty"`
	Timestamp     time.Time               `json:"timestamp"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Devices       map[string]DeviceHealth `json:"devices"`
}
