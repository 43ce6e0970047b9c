package intercom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/config"
)

// ===== Mock Device =====

// mockDevice emulates the intercom's WebSocket JSON-RPC endpoint: it
// answers login, refreshToken, and relay.open, and can push notification
// and error frames to the connected session.
type mockDevice struct {
	t   *testing.T
	srv *httptest.Server

	rejectLogin atomic.Bool
	relayResult atomic.Bool
	logins      atomic.Int32
	refreshes   atomic.Int32
	connections atomic.Int32
	tokenExpMs  atomic.Int64

	// refreshDelayMs and relayDelayMs stall the matching response,
	// widening the window the session spends waiting on it.
	refreshDelayMs atomic.Int64
	relayDelayMs   atomic.Int64

	relayOpens chan RelayOpenParams

	mu    sync.Mutex
	conns []*mockConn
}

type mockConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *mockConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func newMockDevice(t *testing.T) *mockDevice {
	t.Helper()

	d := &mockDevice{
		t:          t,
		relayOpens: make(chan RelayOpenParams, 16),
	}
	d.relayResult.Store(true)
	d.tokenExpMs.Store(900000)

	upgrader := websocket.Upgrader{}
	d.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wsock" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.connections.Add(1)
		mc := &mockConn{conn: conn}
		d.mu.Lock()
		d.conns = append(d.conns, mc)
		d.mu.Unlock()
		d.serve(mc)
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *mockDevice) serve(mc *mockConn) {
	for {
		_, data, err := mc.conn.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      int64           `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		switch req.Method {
		case MethodLogin:
			if d.rejectLogin.Load() {
				mc.writeJSON(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"error":   map[string]any{"code": -32001, "message": "Invalid credentials"},
				})
				continue
			}
			n := d.logins.Add(1)
			mc.writeJSON(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result": map[string]any{
					"token":    fmt.Sprintf("token-%d", n),
					"exp_time": d.tokenExpMs.Load(),
				},
			})

		case MethodRefreshToken:
			if delay := d.refreshDelayMs.Load(); delay > 0 {
				time.Sleep(time.Duration(delay) * time.Millisecond)
			}
			n := d.refreshes.Add(1)
			mc.writeJSON(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result": map[string]any{
					"token":    fmt.Sprintf("token-r%d", n),
					"exp_time": d.tokenExpMs.Load(),
				},
			})

		case MethodRelayOpen:
			var params RelayOpenParams
			_ = json.Unmarshal(req.Params, &params)
			select {
			case d.relayOpens <- params:
			default:
			}
			if delay := d.relayDelayMs.Load(); delay > 0 {
				time.Sleep(time.Duration(delay) * time.Millisecond)
			}
			mc.writeJSON(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  d.relayResult.Load(),
			})
		}
	}
}

// push sends a raw frame to the most recent connection.
func (d *mockDevice) push(v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		d.t.Fatal("push with no active connection")
	}
	if err := d.conns[len(d.conns)-1].writeJSON(v); err != nil {
		d.t.Logf("push failed: %v", err)
	}
}

func (d *mockDevice) deviceConfig() config.DeviceConfig {
	u, err := url.Parse(d.srv.URL)
	if err != nil {
		d.t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		d.t.Fatalf("parse server port: %v", err)
	}
	return config.DeviceConfig{
		ID:       "front-door",
		Host:     u.Hostname(),
		Port:     port,
		Username: "admin",
		Password: "secret",
	}
}

func newTestSession(t *testing.T, d *mockDevice) *Session {
	t.Helper()
	s, err := NewSession(Options{
		Device:         d.deviceConfig(),
		BackoffInitial: 50 * time.Millisecond,
		BackoffMax:     200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Disconnect)
	return s
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// ===== Connection Tests =====

func TestSession_ConnectAndLogin(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if !s.IsConnected() {
		t.Error("expected connected session")
	}
	snap := s.Snapshot()
	if snap.State != StateConnected {
		t.Errorf("expected state %q, got %q", StateConnected, snap.State)
	}
	if !snap.Connected {
		t.Error("snapshot should report connected")
	}
	if snap.TokenExpiresAt.IsZero() {
		t.Error("snapshot should carry token expiry")
	}
	if got, want := len(snap.RelayStates), 2; got != want {
		t.Errorf("expected %d relay entries, got %d", want, got)
	}
}

func TestSession_ConnectIdempotent(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if d.logins.Load() != 1 {
		t.Errorf("expected a single login, got %d", d.logins.Load())
	}
}

func TestSession_AuthFailureNotRetried(t *testing.T) {
	d := newMockDevice(t)
	d.rejectLogin.Store(true)
	s := newTestSession(t, d)

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if s.IsConnected() {
		t.Error("session should not be connected")
	}
	if s.reconnecting.Load() {
		t.Error("auth failure must not start the reconnect supervisor")
	}
}

func TestSession_ConnectionFailureStartsSupervisor(t *testing.T) {
	d := newMockDevice(t)
	cfg := d.deviceConfig()
	d.srv.Close()

	s, err := NewSession(Options{
		Device:         cfg,
		BackoffInitial: 50 * time.Millisecond,
		BackoffMax:     200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Disconnect()

	err = s.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if !s.reconnecting.Load() {
		t.Error("connection failure should start the reconnect supervisor")
	}
}

// backoffRecorder captures the retry delays the reconnect supervisor
// reports on each failed attempt.
type backoffRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *backoffRecorder) Debug(string, ...any) {}
func (r *backoffRecorder) Info(string, ...any)  {}
func (r *backoffRecorder) Error(string, ...any) {}

func (r *backoffRecorder) Warn(msg string, args ...any) {
	if msg != "reconnect attempt failed" {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "retry_in" {
			if d, ok := args[i+1].(time.Duration); ok {
				r.mu.Lock()
				r.delays = append(r.delays, d)
				r.mu.Unlock()
			}
		}
	}
}

func (r *backoffRecorder) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func TestSession_ReconnectBackoffDoublesToCap(t *testing.T) {
	const (
		initial  = 10 * time.Millisecond
		maxDelay = 40 * time.Millisecond
	)
	rec := &backoffRecorder{}

	s, err := NewSession(Options{
		Device: config.DeviceConfig{
			ID:       "front-door",
			Host:     "127.0.0.1",
			Port:     1,
			Username: "admin",
			Password: "secret",
		},
		BackoffInitial: initial,
		BackoffMax:     maxDelay,
		Logger:         rec,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Disconnect()

	if err := s.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return len(rec.snapshot()) >= 5
	}, "five reconnect attempts")

	delays := rec.snapshot()[:5]
	want := []time.Duration{initial, 2 * initial, maxDelay, maxDelay, maxDelay}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("attempt %d: delay = %v, want %v (full sequence %v)", i+1, d, want[i], delays)
		}
	}
}

func TestSession_ReconnectAfterConnectionLoss(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Drop the connection from the device side.
	d.mu.Lock()
	d.conns[0].conn.Close()
	d.mu.Unlock()

	waitFor(t, 5*time.Second, func() bool {
		return s.IsConnected() && d.logins.Load() >= 2
	}, "session to reconnect")
}

func TestSession_TestConnection(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if s.IsConnected() {
		t.Error("probe must not leave the session connected")
	}

	d.rejectLogin.Store(true)
	if err := s.TestConnection(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestSession_DisconnectTerminal(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s.Disconnect()
	s.Disconnect() // idempotent

	if err := s.Connect(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.OpenRelay(context.Background(), 0, 0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

// ===== Notification Tests =====

func TestSession_RelayStateNotification(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.push(map[string]any{
		"jsonrpc": "2.0",
		"method":  MethodRelayStateChanged,
		"params":  map[string]any{"relay": 1, "is_open": true},
	})

	waitFor(t, 2*time.Second, func() bool {
		return s.Snapshot().RelayStates[1]
	}, "relay state to update")

	if s.Snapshot().RelayStates[0] {
		t.Error("relay 0 should remain closed")
	}
}

func TestSession_DoorbellPulse(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	events := make(chan DoorbellEvent, 1)
	s.OnDoorbell(func(ev DoorbellEvent) {
		select {
		case events <- ev:
		default:
		}
	})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.push(map[string]any{
		"jsonrpc": "2.0",
		"method":  MethodButtonStateChanged,
		"params":  map[string]any{"button": 0, "state": true},
	})

	select {
	case ev := <-events:
		if ev.DeviceID != "front-door" || ev.Button != 0 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no doorbell event received")
	}

	waitFor(t, time.Second, func() bool {
		return s.Snapshot().DoorbellPressed
	}, "doorbell pressed in snapshot")

	// The pressed flag reverts on its own after the pulse.
	waitFor(t, 3*time.Second, func() bool {
		return !s.Snapshot().DoorbellPressed
	}, "doorbell pulse to revert")
}

func TestSession_ButtonReleaseIgnored(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	fired := atomic.Int32{}
	s.OnDoorbell(func(DoorbellEvent) { fired.Add(1) })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.push(map[string]any{
		"jsonrpc": "2.0",
		"method":  MethodButtonStateChanged,
		"params":  map[string]any{"button": 0, "state": false},
	})

	time.Sleep(200 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("button release should not emit a doorbell event")
	}
}

func TestSession_UnhandledNotificationDropped(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.push(map[string]any{
		"jsonrpc": "2.0",
		"method":  "com.fibaro.intercom.video.started",
		"params":  map[string]any{},
	})

	// Session must survive the unknown method.
	time.Sleep(100 * time.Millisecond)
	if !s.IsConnected() {
		t.Error("unknown notification should not affect the session")
	}
}

func TestSession_OnNotificationLastWins(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	first := atomic.Int32{}
	second := atomic.Int32{}
	s.OnNotification("custom.event", func(json.RawMessage) { first.Add(1) })
	s.OnNotification("custom.event", func(json.RawMessage) { second.Add(1) })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.push(map[string]any{"jsonrpc": "2.0", "method": "custom.event", "params": map[string]any{}})

	waitFor(t, 2*time.Second, func() bool {
		return second.Load() == 1
	}, "replacement handler to fire")
	if first.Load() != 0 {
		t.Error("replaced handler must not fire")
	}
}

// ===== Relay Command Tests =====

func TestSession_OpenRelay(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.OpenRelay(context.Background(), 0, 0); err != nil {
		t.Fatalf("OpenRelay: %v", err)
	}

	select {
	case params := <-d.relayOpens:
		if params.Relay != 0 {
			t.Errorf("expected relay 0, got %d", params.Relay)
		}
		if params.Timeout != nil {
			t.Error("timeout should be omitted when zero")
		}
		if params.Token == "" {
			t.Error("relay command must carry the session token")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("device never received relay.open")
	}
}

func TestSession_OpenRelayWait(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ok, err := s.OpenRelayWait(context.Background(), 1, 500)
	if err != nil {
		t.Fatalf("OpenRelayWait: %v", err)
	}
	if !ok {
		t.Error("expected device-confirmed success")
	}

	params := <-d.relayOpens
	if params.Relay != 1 {
		t.Errorf("expected relay 1, got %d", params.Relay)
	}
	if params.Timeout == nil || *params.Timeout != 500 {
		t.Errorf("expected timeout 500, got %v", params.Timeout)
	}
}

func TestSession_OpenRelayValidation(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	tests := []struct {
		name      string
		relay     int
		timeoutMs int
		wantErr   error
	}{
		{name: "relay too high", relay: 2, timeoutMs: 0, wantErr: ErrInvalidRelay},
		{name: "relay negative", relay: -1, timeoutMs: 0, wantErr: ErrInvalidRelay},
		{name: "timeout too short", relay: 0, timeoutMs: 100, wantErr: ErrInvalidTimeout},
		{name: "timeout too long", relay: 0, timeoutMs: 60000, wantErr: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.OpenRelay(context.Background(), tt.relay, tt.timeoutMs); !errors.Is(err, tt.wantErr) {
				t.Errorf("OpenRelay = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Validation happens before any connection attempt.
	if d.logins.Load() != 0 {
		t.Error("invalid arguments should never trigger a connection")
	}
}

func TestSession_OpenRelayConnectsOnDemand(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	// No explicit Connect: the command itself should log in first.
	if err := s.OpenRelay(context.Background(), 0, 0); err != nil {
		t.Fatalf("OpenRelay: %v", err)
	}
	if d.logins.Load() != 1 {
		t.Errorf("expected on-demand login, got %d logins", d.logins.Load())
	}
	if !s.IsConnected() {
		t.Error("session should remain connected after on-demand connect")
	}
}

// ===== Token Refresh Tests =====

func TestSession_TokenRefresh(t *testing.T) {
	d := newMockDevice(t)
	// A sub-second lifetime drives the health loop to refresh almost
	// immediately (wake interval is half the remaining lifetime).
	d.tokenExpMs.Store(500)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	initialExpiry := s.Snapshot().TokenExpiresAt
	if initialExpiry.IsZero() {
		t.Fatal("expected token expiry after login")
	}

	waitFor(t, 5*time.Second, func() bool {
		return d.refreshes.Load() >= 1 && s.Snapshot().TokenExpiresAt.After(initialExpiry)
	}, "token refresh to extend expiry")

	if !s.IsConnected() {
		t.Error("session should stay connected across a refresh")
	}
	if got := d.logins.Load(); got != 1 {
		t.Errorf("refresh must reuse the connection, got %d logins", got)
	}
	if got := d.connections.Load(); got != 1 {
		t.Errorf("refresh must not dial a new connection, got %d", got)
	}
}

func TestSession_CommandDuringRefresh(t *testing.T) {
	d := newMockDevice(t)
	d.tokenExpMs.Store(500)
	d.refreshDelayMs.Store(500)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return s.State() == StateReauthenticating
	}, "refresh to start")

	// The current token is still valid while the refresh is in flight, so
	// a command must ride the existing connection instead of dialing a
	// second one.
	if err := s.OpenRelay(context.Background(), 0, 0); err != nil {
		t.Fatalf("OpenRelay during refresh: %v", err)
	}

	select {
	case params := <-d.relayOpens:
		if params.Token == "" {
			t.Error("relay command must carry the session token")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("device never received relay.open")
	}

	if got := d.connections.Load(); got != 1 {
		t.Errorf("expected a single connection, got %d", got)
	}
	if got := d.logins.Load(); got != 1 {
		t.Errorf("expected a single login, got %d", got)
	}

	// Shutdown must join every goroutine, including the listener of the
	// one and only transport.
	done := make(chan struct{})
	go func() {
		s.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnect did not complete")
	}
}

func TestSession_StaleTeardownLeavesSuccessorAlone(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := s.currentTransport()

	// Drop the first connection and wait for the supervisor to replace it.
	d.mu.Lock()
	d.conns[0].conn.Close()
	d.mu.Unlock()
	waitFor(t, 5*time.Second, func() bool {
		return s.IsConnected() && d.logins.Load() >= 2
	}, "session to reconnect")

	// Hold a request in flight on the new connection, then deliver a late
	// teardown of the old transport. The pending request must survive.
	d.relayDelayMs.Store(300)
	result := make(chan error, 1)
	go func() {
		_, err := s.OpenRelayWait(context.Background(), 0, 0)
		result <- err
	}()

	select {
	case <-d.relayOpens:
	case <-time.After(3 * time.Second):
		t.Fatal("device never received relay.open")
	}
	s.teardownTransport(first)

	if err := <-result; err != nil {
		t.Errorf("stale teardown must not fail an in-flight request: %v", err)
	}
	if !s.IsConnected() {
		t.Error("stale teardown must not disconnect the session")
	}
}

// ===== Token Invalidation Tests =====

func TestSession_TokenInvalidForcesReconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping reconnect pause test in short mode")
	}

	d := newMockDevice(t)
	s := newTestSession(t, d)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.push(map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": -32000, "message": "Expired"},
	})

	waitFor(t, 2*time.Second, func() bool {
		return !s.IsConnected()
	}, "session to drop on token invalidation")

	// Reconnect happens after the fixed pause with a fresh login.
	waitFor(t, 6*time.Second, func() bool {
		return s.IsConnected() && d.logins.Load() >= 2
	}, "session to re-authenticate")
}

// ===== Manager Tests =====

func TestManager(t *testing.T) {
	d := newMockDevice(t)
	s := newTestSession(t, d)

	m := NewManager(nil)
	m.Add(s)

	got, ok := m.Get("front-door")
	if !ok || got != s {
		t.Fatal("Get should return the registered session")
	}
	if _, ok := m.Get("garage"); ok {
		t.Error("Get for unknown device should report false")
	}

	ids := m.DeviceIDs()
	if len(ids) != 1 || ids[0] != "front-door" {
		t.Errorf("unexpected device ids: %v", ids)
	}

	if err := m.ConnectAll(context.Background()); err != nil {
		t.Fatalf("ConnectAll: %v", err)
	}

	snaps := m.Snapshots()
	if !snaps["front-door"].Connected {
		t.Error("snapshot should report connected")
	}

	m.CloseAll()
	if s.IsConnected() {
		t.Error("CloseAll should disconnect sessions")
	}
}

func TestManager_ConnectAllReportsAuthFailure(t *testing.T) {
	d := newMockDevice(t)
	d.rejectLogin.Store(true)
	s := newTestSession(t, d)

	m := NewManager(nil)
	m.Add(s)

	if err := m.ConnectAll(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}
