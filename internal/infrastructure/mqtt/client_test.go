package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/config"
)

// newDisconnectedClient builds a client that has never connected, for
// exercising validation paths without a broker.
func newDisconnectedClient() *Client {
	cfg := config.MQTTConfig{}
	opts := buildClientOptions(cfg)
	return &Client{
		cfg:           cfg,
		options:       opts,
		client:        pahomqtt.NewClient(opts),
		subscriptions: make(map[string]subscription),
	}
}

// ===== Topic Builder Tests =====

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "device state", got: topics.DeviceState("front-door"), expected: "graylogic/state/intercom/front-door"},
		{name: "doorbell event", got: topics.DeviceDoorbell("front-door"), expected: "graylogic/event/intercom/front-door/doorbell"},
		{name: "device command", got: topics.DeviceCommand("gate"), expected: "graylogic/command/intercom/gate"},
		{name: "device ack", got: topics.DeviceAck("gate"), expected: "graylogic/ack/intercom/gate"},
		{name: "bridge health", got: topics.BridgeHealth(), expected: "graylogic/health/intercom"},
		{name: "bridge status", got: topics.BridgeStatus(), expected: "graylogic/system/intercom/status"},
		{name: "all commands", got: topics.AllDeviceCommands(), expected: "graylogic/command/intercom/+"},
		{name: "all states", got: topics.AllDeviceStates(), expected: "graylogic/state/intercom/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

// ===== Options Tests =====

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{}
	cfg.Broker.Host = "broker.local"
	cfg.Broker.Port = 8883
	cfg.Broker.ClientID = "intercom-bridge"
	cfg.Broker.TLS = true
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"
	cfg.Reconnect.InitialDelay = 1
	cfg.Reconnect.MaxDelay = 60

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("unexpected broker URL %q", got)
	}
	if opts.ClientID != "intercom-bridge" {
		t.Errorf("unexpected client id %q", opts.ClientID)
	}
	if opts.Username != "bridge" {
		t.Errorf("unexpected username %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect should be enabled")
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config should be set when TLS is enabled")
	}
}

func TestBuildClientOptions_PlainTCP(t *testing.T) {
	cfg := config.MQTTConfig{}
	cfg.Broker.Host = "localhost"
	cfg.Broker.Port = 1883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "tcp" {
		t.Errorf("expected tcp scheme, got %q", got)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS config should not be set for plain TCP")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "intercom-bridge")

	if !opts.WillEnabled {
		t.Fatal("will should be enabled")
	}
	if opts.WillTopic != "graylogic/system/intercom/status" {
		t.Errorf("unexpected will topic %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will should be retained")
	}
	payload := string(opts.WillPayload)
	if !strings.Contains(payload, `"status":"offline"`) {
		t.Errorf("will payload missing offline status: %s", payload)
	}
	if !strings.Contains(payload, `"unexpected_disconnect"`) {
		t.Errorf("will payload missing crash reason: %s", payload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("intercom-bridge")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("unexpected online payload: %s", online)
	}

	offline := buildOfflinePayload("intercom-bridge")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("unexpected offline payload: %s", offline)
	}
}

// ===== Validation Tests =====

func TestPublish_Validation(t *testing.T) {
	c := newDisconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", payload: []byte("x"), qos: 0, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "t", payload: []byte("x"), qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: "t", payload: make([]byte, maxPayloadSize+1), qos: 0, wantErr: ErrPublishFailed},
		{name: "not connected", topic: "t", payload: []byte("x"), qos: 0, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newDisconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v", err)
	}
	if err := c.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: got %v", err)
	}
	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v", err)
	}
	if err := c.Subscribe("t", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
