package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-intercom/internal/intercom"
)

// commandTimeout bounds the execution of a single MQTT command,
// including any on-demand connect the session performs first.
const commandTimeout = 30 * time.Second

// Bus is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bridge fans intercom session state out to MQTT and executes commands
// received over MQTT.
//
// Per device it publishes retained state to graylogic/state/intercom/{id}
// and doorbell events to graylogic/event/intercom/{id}/doorbell, and it
// consumes commands from graylogic/command/intercom/{id}, acknowledging
// each on the matching ack topic.
type Bridge struct {
	manager *intercom.Manager
	bus     Bus
	logger  Logger
	topics  mqtt.Topics
	qos     byte
	health  *HealthReporter

	stopOnce sync.Once
}

// Options configure a Bridge.
type Options struct {
	Config  config.Config
	Manager *intercom.Manager
	Bus     Bus
	Logger  Logger
	Version string
}

// New creates a bridge. Call Start to begin publishing and consuming.
func New(opts Options) *Bridge {
	b := &Bridge{
		manager: opts.Manager,
		bus:     opts.Bus,
		logger:  opts.Logger,
		qos:     byte(opts.Config.MQTT.QoS),
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.Bus,
		Manager:   opts.Manager,
		Logger:    opts.Logger,
	})
	return b
}

// Start wires session callbacks to MQTT, subscribes to the command
// topics, publishes each device's initial state, and begins health
// reporting.
func (b *Bridge) Start(ctx context.Context) error {
	for _, id := range b.manager.DeviceIDs() {
		session, ok := b.manager.Get(id)
		if !ok {
			continue
		}
		session.OnStateChange(b.publishState)
		session.OnDoorbell(b.publishDoorbell)
	}

	if err := b.bus.Subscribe(b.topics.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}

	// Retained initial state so consumers see every device immediately,
	// connected or not.
	for id, snap := range b.manager.Snapshots() {
		if err := b.publishStateMessage(id, NewStateMessage(snap)); err != nil {
			b.logger.Warn("initial state publish failed", "device", id, "error", err)
		}
	}

	b.health.Start(ctx)
	b.logger.Info("bridge started", "devices", len(b.manager.DeviceIDs()))
	return nil
}

// Stop halts health reporting. Session and MQTT shutdown belong to their
// owners; the bridge only stops what it started.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// publishState mirrors a session snapshot to the retained state topic.
func (b *Bridge) publishState(snap intercom.Snapshot) {
	if err := b.publishStateMessage(snap.DeviceID, NewStateMessage(snap)); err != nil {
		b.logger.Warn("state publish failed", "device", snap.DeviceID, "error", err)
	}
}

func (b *Bridge) publishStateMessage(deviceID string, msg StateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return b.bus.Publish(b.topics.DeviceState(deviceID), payload, b.qos, true)
}

// publishDoorbell emits a doorbell event. Events are transient: a missed
// event is gone, consumers needing history must record it themselves.
func (b *Bridge) publishDoorbell(ev intercom.DoorbellEvent) {
	msg := NewDoorbellMessage(ev)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal doorbell event", "device", ev.DeviceID, "error", err)
		return
	}
	if err := b.bus.Publish(b.topics.DeviceDoorbell(ev.DeviceID), payload, b.qos, false); err != nil {
		b.logger.Warn("doorbell publish failed", "device", ev.DeviceID, "error", err)
		return
	}
	b.logger.Info("doorbell event published", "device", ev.DeviceID, "event_id", msg.EventID)
}

// handleCommand processes one inbound command message.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID := deviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("command on unexpected topic %q", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(deviceID, AckMessage{
			Timestamp: time.Now().UTC(),
			DeviceID:  deviceID,
			Status:    AckFailed,
			Protocol:  "intercom",
			Error:     &AckError{Code: ErrCodeInvalidCommand, Message: "malformed command payload"},
		})
		return fmt.Errorf("unmarshal command: %w", err)
	}

	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckAccepted,
		Protocol:  "intercom",
	}

	session, ok := b.manager.Get(deviceID)
	if !ok {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: ErrCodeNotConfigured, Message: "unknown device " + deviceID}
		b.publishAck(deviceID, ack)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.execute(ctx, session, cmd); err != nil {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: errorCode(err), Message: err.Error()}
		b.logger.Warn("command failed",
			"device", deviceID, "command", cmd.Command, "error", err)
	} else {
		b.logger.Info("command executed", "device", deviceID, "command", cmd.Command)
	}

	b.publishAck(deviceID, ack)
	return nil
}

// execute dispatches a command to the session.
func (b *Bridge) execute(ctx context.Context, session *intercom.Session, cmd CommandMessage) error {
	switch cmd.Command {
	case CommandRelayOpen:
		return session.OpenRelay(ctx, cmd.Relay, cmd.TimeoutMs)
	case CommandRelayOpenWait:
		ok, err := session.OpenRelayWait(ctx, cmd.Relay, cmd.TimeoutMs)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("device rejected relay open")
		}
		return nil
	case CommandTestConnection:
		return session.TestConnection(ctx)
	default:
		return fmt.Errorf("unsupported command %q", cmd.Command)
	}
}

func (b *Bridge) publishAck(deviceID string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshal ack", "device", deviceID, "error", err)
		return
	}
	if err := b.bus.Publish(b.topics.DeviceAck(deviceID), payload, b.qos, false); err != nil {
		b.logger.Warn("ack publish failed", "device", deviceID, "error", err)
	}
}

// errorCode maps session errors to ack error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, intercom.ErrInvalidRelay), errors.Is(err, intercom.ErrInvalidTimeout):
		return ErrCodeInvalidParameters
	case errors.Is(err, intercom.ErrAuthFailed):
		return ErrCodeAuthFailed
	case errors.Is(err, intercom.ErrRequestTimeout):
		return ErrCodeTimeout
	case errors.Is(err, intercom.ErrNotConnected), errors.Is(err, intercom.ErrConnectionFailed):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// deviceIDFromTopic extracts the device ID from a command topic
// (graylogic/command/intercom/{device_id}).
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return ""
	}
	return parts[3]
}
