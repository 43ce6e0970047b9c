package intercom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/config"
)

// Session timing. Login and refresh share the same response deadline; the
// synchronous relay command uses a shorter one because the device answers
// relay.open quickly or not at all.
const (
	loginTimeout   = 10 * time.Second
	refreshTimeout = 10 * time.Second
	requestTimeout = 10 * time.Second
	relayTimeout   = 5 * time.Second

	// defaultTokenTTL applies when a login result omits exp_time.
	defaultTokenTTL = 900 * time.Second

	// maxHealthInterval caps the token refresh cadence. The loop wakes at
	// min(maxHealthInterval, remaining/2) so a token is always refreshed
	// well before expiry.
	maxHealthInterval = 60 * time.Second

	// tokenInvalidPause is the fixed pause between a forced disconnect
	// (expired/invalid token) and the reconnect attempt.
	tokenInvalidPause = 2 * time.Second

	// doorbellPulse is how long DoorbellPressed stays true after a button
	// press notification before reverting.
	doorbellPulse = time.Second

	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 600 * time.Second
)

// State is the session lifecycle state.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateAuthenticating   State = "authenticating"
	StateConnected        State = "connected"
	StateReauthenticating State = "reauthenticating"
)

// Logger is the minimal logging interface the session needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Snapshot is a point-in-time copy of the device state a session tracks.
type Snapshot struct {
	DeviceID        string       `json:"device_id"`
	Connected       bool         `json:"connected"`
	State           State        `json:"state"`
	RelayStates     map[int]bool `json:"relay_states"`
	DoorbellPressed bool         `json:"doorbell_pressed"`
	TokenExpiresAt  time.Time    `json:"token_expires_at,omitzero"`
	LastAuthTime    time.Time    `json:"last_auth_time,omitzero"`
}

// DoorbellEvent is emitted when the intercom reports a button press.
type DoorbellEvent struct {
	DeviceID string    `json:"device_id"`
	Button   int       `json:"button"`
	Time     time.Time `json:"time"`
}

// StateCallback receives a snapshot after every observable state change.
type StateCallback func(Snapshot)

// DoorbellCallback receives doorbell press events.
type DoorbellCallback func(DoorbellEvent)

// NotificationHandler receives the raw params of a server notification.
type NotificationHandler func(params json.RawMessage)

// Options configure a Session.
type Options struct {
	Device config.DeviceConfig

	// BackoffInitial and BackoffMax bound the reconnect delay. Zero values
	// take the defaults (1s and 600s).
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Logger Logger
}

// Session is a persistent, self-healing connection to one intercom.
//
// A session owns its WebSocket transport, the request/response correlator,
// the token refresh loop, and the reconnect supervisor. All public methods
// are safe for concurrent use. Once Disconnect is called the session is
// terminal and cannot be reused.
type Session struct {
	device config.DeviceConfig
	logger Logger

	backoffInitial time.Duration
	backoffMax     time.Duration

	rpc *correlator

	// mu guards the connection and auth state below.
	mu              sync.RWMutex
	transport       *Transport
	state           State
	token           string
	tokenExpiresAt  time.Time
	lastAuthTime    time.Time
	relayStates     map[int]bool
	doorbellPressed bool

	// handlersMu guards the notification handler table. Registration for a
	// method replaces any previous handler: last registration wins.
	handlersMu sync.RWMutex
	handlers   map[string]NotificationHandler

	cbMu       sync.RWMutex
	onState    []StateCallback
	onDoorbell []DoorbellCallback

	// healthMu guards the stop channel of the current health loop so a
	// reconnect can retire the previous loop before starting its own.
	healthMu   sync.Mutex
	healthStop chan struct{}

	// connectMu serialises connect attempts so a user-initiated Connect
	// and the reconnect supervisor never dial concurrently.
	connectMu    sync.Mutex
	reconnecting atomic.Bool

	// taskMu serialises goroutine spawning against shutdown so no task is
	// added to the WaitGroup after Disconnect begins waiting on it.
	taskMu sync.Mutex
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewSession creates a session for one device. It does not connect;
// call Connect to establish the first connection.
func NewSession(opts Options) (*Session, error) {
	if opts.Device.Host == "" {
		return nil, fmt.Errorf("%w: device host is required", ErrConnectionFailed)
	}

	s := &Session{
		device:         opts.Device,
		logger:         opts.Logger,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
		rpc:            newCorrelator(),
		state:          StateDisconnected,
		relayStates:    map[int]bool{0: false, 1: false},
		handlers:       make(map[string]NotificationHandler),
		done:           make(chan struct{}),
	}
	if s.backoffInitial <= 0 {
		s.backoffInitial = defaultBackoffInitial
	}
	if s.backoffMax <= 0 {
		s.backoffMax = defaultBackoffMax
	}

	s.handlers[MethodRelayStateChanged] = s.handleRelayState
	s.handlers[MethodButtonStateChanged] = s.handleButtonState

	return s, nil
}

// DeviceID returns the configured device identifier.
func (s *Session) DeviceID() string {
	return s.device.ID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the session holds an authenticated
// connection: an open transport plus an unexpired token. A session in
// the middle of a token refresh still counts as connected, because the
// current token stays valid until the device says otherwise.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectedLocked()
}

// connectedLocked is the connected predicate; caller holds mu.
func (s *Session) connectedLocked() bool {
	if s.transport == nil || s.token == "" {
		return false
	}
	return s.state == StateConnected || s.state == StateReauthenticating
}

// Snapshot returns a copy of the tracked device state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// snapshotLocked builds a snapshot; caller holds mu.
func (s *Session) snapshotLocked() Snapshot {
	relays := make(map[int]bool, len(s.relayStates))
	for k, v := range s.relayStates {
		relays[k] = v
	}
	return Snapshot{
		DeviceID:        s.device.ID,
		Connected:       s.connectedLocked(),
		State:           s.state,
		RelayStates:     relays,
		DoorbellPressed: s.doorbellPressed,
		TokenExpiresAt:  s.tokenExpiresAt,
		LastAuthTime:    s.lastAuthTime,
	}
}

// OnStateChange registers a callback invoked with a fresh snapshot after
// every observable state change. Callbacks run on session goroutines and
// must not block.
func (s *Session) OnStateChange(cb StateCallback) {
	s.cbMu.Lock()
	s.onState = append(s.onState, cb)
	s.cbMu.Unlock()
}

// OnDoorbell registers a callback for doorbell press events.
func (s *Session) OnDoorbell(cb DoorbellCallback) {
	s.cbMu.Lock()
	s.onDoorbell = append(s.onDoorbell, cb)
	s.cbMu.Unlock()
}

// OnNotification registers a handler for a notification method, replacing
// any existing handler for that method. Registering for the relay or
// button methods overrides the session's built-in state tracking.
func (s *Session) OnNotification(method string, h NotificationHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = h
	s.handlersMu.Unlock()
}

// Connect establishes the connection and authenticates.
//
// Authentication failures are returned to the caller without retry, since
// retrying bad credentials cannot help. On a connection failure the
// reconnect supervisor is started before the error is returned, so the
// session keeps trying in the background.
//
// Returns:
//   - error: nil on success; wrapped ErrAuthFailed or ErrConnectionFailed
func (s *Session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.IsConnected() {
		return nil
	}

	err := s.connectOnce(ctx)
	if err == nil {
		return nil
	}
	if isAuthErr(err) {
		return err
	}

	s.scheduleReconnect(0)
	return err
}

// connectOnce performs one full connect-and-authenticate sequence:
// dial, start the listener, log in, adopt the token, start the health
// loop. On any failure the transport is torn down and an error returned.
func (s *Session) connectOnce(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.IsConnected() {
		return nil
	}

	// A transport can survive to this point with its token already gone,
	// for example when a teardown races the caller's connected check.
	// Retire it first: the session never holds two connections.
	if old := s.currentTransport(); old != nil {
		s.teardownTransport(old)
	}

	s.setState(StateAuthenticating)

	t, err := Dial(ctx, DialOptions{
		Host:      s.device.Host,
		Port:      s.device.Port,
		TLSVerify: s.device.TLSVerify,
	})
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	// The listener must be running before login is sent or the response
	// could be lost.
	if !s.goTask(func() { s.listen(t) }) {
		t.Close()
		return ErrSessionClosed
	}

	frame, err := s.call(MethodLogin, LoginParams{
		User: s.device.Username,
		Pass: s.device.Password,
	}, loginTimeout)
	if err != nil {
		s.teardownTransport(t)
		return fmt.Errorf("login: %w", err)
	}
	if frame.Error != nil {
		s.teardownTransport(t)
		return fmt.Errorf("%w: %s", ErrAuthFailed, frame.Error.Message)
	}

	res, ok := frame.AuthResult()
	if !ok {
		s.teardownTransport(t)
		return fmt.Errorf("%w: login response carried no token", ErrAuthFailed)
	}

	s.adoptToken(res)
	s.startHealthLoop()

	s.logInfo("connected",
		"device", s.device.ID,
		"host", s.device.Host,
		"token_expires_at", s.tokenExpiry())
	return nil
}

// Disconnect permanently closes the session: the health loop, the
// reconnect supervisor, and the transport all stop, and any in-flight
// requests fail. The session cannot be reconnected afterwards.
func (s *Session) Disconnect() {
	// Close done under taskMu so no new goroutine is spawned after this
	// point; wg.Wait below is then race-free.
	s.taskMu.Lock()
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	s.taskMu.Unlock()

	s.stopHealthLoop()

	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.token = ""
	s.tokenExpiresAt = time.Time{}
	s.state = StateDisconnected
	s.mu.Unlock()

	if t != nil {
		t.Close()
	}
	s.rpc.abandonAll()

	s.wg.Wait()
	s.publishSnapshot()
	s.logInfo("session closed", "device", s.device.ID)
}

// TestConnection probes the device with a one-shot connection and login,
// independent of the persistent session. The probe connection is always
// closed before returning.
func (s *Session) TestConnection(ctx context.Context) error {
	t, err := Dial(ctx, DialOptions{
		Host:      s.device.Host,
		Port:      s.device.Port,
		TLSVerify: s.device.TLSVerify,
	})
	if err != nil {
		return err
	}
	defer t.Close()

	req := NewRequest(1, MethodLogin, LoginParams{
		User: s.device.Username,
		Pass: s.device.Password,
	})
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal login: %w", ErrProtocol, err)
	}
	if err := t.Send(data); err != nil {
		return err
	}

	raw, err := t.ReceiveTimeout(loginTimeout)
	if err != nil {
		return err
	}
	frame, err := ParseFrame(raw)
	if err != nil {
		return err
	}
	if frame.Error != nil {
		return fmt.Errorf("%w: %s", ErrAuthFailed, frame.Error.Message)
	}
	if _, ok := frame.AuthResult(); !ok {
		return fmt.Errorf("%w: login response carried no token", ErrAuthFailed)
	}
	return nil
}

// OpenRelay fires a relay.open command without waiting for the device's
// result. timeoutMs is the optional pulse duration in milliseconds; zero
// lets the device apply its default.
//
// If the session is disconnected, one immediate connect attempt is made
// first; on failure the reconnect supervisor takes over and the command
// is not queued.
func (s *Session) OpenRelay(ctx context.Context, relay, timeoutMs int) error {
	req, err := s.prepareRelayOpen(ctx, relay, timeoutMs)
	if err != nil {
		return err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal relay.open: %w", ErrProtocol, err)
	}

	t := s.currentTransport()
	if t == nil {
		return ErrNotConnected
	}
	if err := t.Send(data); err != nil {
		s.handleConnectionLoss(t)
		return err
	}

	s.logDebug("relay open sent", "device", s.device.ID, "relay", relay, "timeout_ms", timeoutMs)
	return nil
}

// OpenRelayWait sends relay.open and waits for the device to confirm.
//
// Returns:
//   - bool: Device-reported success
//   - error: Wrapped ErrCommandFailed on an error frame, ErrRequestTimeout
//     if no confirmation arrives within 5s
func (s *Session) OpenRelayWait(ctx context.Context, relay, timeoutMs int) (bool, error) {
	req, err := s.prepareRelayOpen(ctx, relay, timeoutMs)
	if err != nil {
		return false, err
	}

	frame, err := s.callRequest(req, relayTimeout)
	if err != nil {
		return false, err
	}
	if frame.Error != nil {
		return false, fmt.Errorf("%w: %s", ErrCommandFailed, frame.Error.Message)
	}
	return frame.BoolResult(), nil
}

// prepareRelayOpen validates arguments, ensures the session is connected,
// and builds the request with the current token.
func (s *Session) prepareRelayOpen(ctx context.Context, relay, timeoutMs int) (Request, error) {
	if err := ValidateRelay(relay); err != nil {
		return Request{}, err
	}
	if timeoutMs != 0 {
		if err := ValidateRelayTimeout(timeoutMs); err != nil {
			return Request{}, err
		}
	}
	if s.closed.Load() {
		return Request{}, ErrSessionClosed
	}

	if !s.IsConnected() {
		if err := s.connectOnce(ctx); err != nil {
			if !isAuthErr(err) {
				s.scheduleReconnect(0)
			}
			return Request{}, fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}

	params := RelayOpenParams{
		Token: s.currentToken(),
		Relay: relay,
	}
	if timeoutMs != 0 {
		params.Timeout = &timeoutMs
	}
	return NewRequest(s.rpc.allocate(), MethodRelayOpen, params), nil
}

// call builds, sends, and awaits a correlated request.
func (s *Session) call(method string, params any, timeout time.Duration) (*Frame, error) {
	return s.callRequest(NewRequest(s.rpc.allocate(), method, params), timeout)
}

// callRequest sends a prepared request and waits for its response. The
// pending slot is resolved exactly once: by the response, the timeout,
// or session shutdown, whichever comes first.
func (s *Session) callRequest(req Request, timeout time.Duration) (*Frame, error) {
	t := s.currentTransport()
	if t == nil {
		return nil, ErrNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %w", ErrProtocol, req.Method, err)
	}

	ch := s.rpc.register(req.ID)
	if err := t.Send(data); err != nil {
		s.rpc.drop(req.ID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return frame, nil
	case <-timer.C:
		s.rpc.drop(req.ID)
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, req.Method, timeout)
	case <-s.done:
		s.rpc.drop(req.ID)
		return nil, ErrSessionClosed
	}
}

// listen is the read loop for one transport. It routes every inbound
// frame and decides, when the read fails, whether recovery is needed:
// a deliberately closed transport or a stopping session exits quietly,
// a normal closure marks the session disconnected without retrying, and
// anything else hands off to the reconnect supervisor.
func (s *Session) listen(t *Transport) {
	for {
		data, err := t.Receive()
		if err != nil {
			if t.Closed() || s.closed.Load() {
				return
			}
			if IsNormalClosure(err) {
				s.logInfo("device closed connection", "device", s.device.ID)
				s.teardownTransport(t)
				return
			}
			s.logWarn("connection lost", "device", s.device.ID, "error", err)
			s.handleConnectionLoss(t)
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			s.logWarn("dropping malformed frame", "device", s.device.ID, "error", err)
			continue
		}
		s.route(frame)
	}
}

// route dispatches one inbound frame. Rules apply in order; the first
// match wins:
//
//  1. ID matching a pending request resolves that request.
//  2. A method name dispatches to the notification handler table.
//  3. A result carrying a token is adopted (covers unsolicited token
//     pushes and responses whose request already timed out).
//  4. An error frame feeds the token-invalidation path.
//
// Anything else is logged and dropped; a bad frame never kills the
// session.
func (s *Session) route(f *Frame) {
	if s.rpc.resolve(f) {
		return
	}
	if f.Method != "" {
		s.dispatchNotification(f)
		return
	}
	if res, ok := f.AuthResult(); ok {
		s.logDebug("adopting unsolicited token", "device", s.device.ID)
		s.adoptToken(res)
		return
	}
	if f.Error != nil {
		s.handleErrorFrame(f.Error)
		return
	}
	s.logDebug("dropping unroutable frame", "device", s.device.ID)
}

func (s *Session) dispatchNotification(f *Frame) {
	s.handlersMu.RLock()
	h, ok := s.handlers[f.Method]
	s.handlersMu.RUnlock()

	if !ok {
		s.logDebug("unhandled notification", "device", s.device.ID, "method", f.Method)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logError("notification handler panic",
				"device", s.device.ID, "method", f.Method, "panic", r)
		}
	}()
	h(f.Params)
}

// handleRelayState tracks relay open/closed transitions.
func (s *Session) handleRelayState(params json.RawMessage) {
	var p RelayStateParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logWarn("malformed relay state notification", "device", s.device.ID, "error", err)
		return
	}

	s.mu.Lock()
	s.relayStates[p.Relay] = p.IsOpen
	s.mu.Unlock()

	s.logDebug("relay state changed", "device", s.device.ID, "relay", p.Relay, "is_open", p.IsOpen)
	s.publishSnapshot()
}

// handleButtonState turns a button press into a doorbell event and a
// short DoorbellPressed pulse in the snapshot. Releases (state=false)
// carry no information beyond the pulse and are ignored.
func (s *Session) handleButtonState(params json.RawMessage) {
	var p ButtonStateParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logWarn("malformed button state notification", "device", s.device.ID, "error", err)
		return
	}
	if !p.State {
		return
	}

	s.mu.Lock()
	s.doorbellPressed = true
	s.mu.Unlock()

	event := DoorbellEvent{
		DeviceID: s.device.ID,
		Button:   p.Button,
		Time:     time.Now(),
	}
	s.logInfo("doorbell pressed", "device", s.device.ID, "button", p.Button)
	s.publishSnapshot()

	s.cbMu.RLock()
	callbacks := make([]DoorbellCallback, len(s.onDoorbell))
	copy(callbacks, s.onDoorbell)
	s.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(event)
	}

	s.goTask(func() {
		if !s.sleep(doorbellPulse) {
			return
		}
		s.mu.Lock()
		s.doorbellPressed = false
		s.mu.Unlock()
		s.publishSnapshot()
	})
}

// handleErrorFrame processes an error that correlates to no pending
// request. Token invalidation forces a reconnect; anything else is
// logged and dropped.
func (s *Session) handleErrorFrame(e *RPCError) {
	if e.TokenInvalid() {
		s.logWarn("token invalidated by device", "device", s.device.ID, "error", e.Message)
		s.forceReconnect()
		return
	}
	s.logWarn("unsolicited error from device", "device", s.device.ID, "error", e.Error())
}

// adoptToken installs a new token and marks the session connected.
func (s *Session) adoptToken(res AuthResult) {
	now := time.Now()
	ttl := defaultTokenTTL
	if res.ExpTime > 0 {
		ttl = time.Duration(res.ExpTime) * time.Millisecond
	}

	s.mu.Lock()
	s.token = res.Token
	s.tokenExpiresAt = now.Add(ttl)
	s.lastAuthTime = now
	s.state = StateConnected
	s.mu.Unlock()

	s.publishSnapshot()
}

// startHealthLoop launches the token refresh loop, retiring any loop left
// over from a previous connection.
func (s *Session) startHealthLoop() {
	s.healthMu.Lock()
	if s.healthStop != nil {
		close(s.healthStop)
	}
	stop := make(chan struct{})
	s.healthStop = stop
	s.healthMu.Unlock()

	s.goTask(func() { s.healthLoop(stop) })
}

func (s *Session) stopHealthLoop() {
	s.healthMu.Lock()
	if s.healthStop != nil {
		close(s.healthStop)
		s.healthStop = nil
	}
	s.healthMu.Unlock()
}

// healthLoop refreshes the token before it expires. Each cycle recomputes
// the wake interval as min(60s, remaining/2), so refreshes get more
// frequent as expiry approaches and a freshly refreshed token backs the
// cadence off again.
func (s *Session) healthLoop(stop chan struct{}) {
	for {
		s.mu.RLock()
		connected := s.transport != nil && s.token != ""
		expiresAt := s.tokenExpiresAt
		s.mu.RUnlock()

		if !connected {
			return
		}

		remaining := time.Until(expiresAt)
		if remaining <= 0 {
			s.logWarn("token expired before refresh", "device", s.device.ID)
			s.forceReconnect()
			return
		}

		interval := remaining / 2
		if interval > maxHealthInterval {
			interval = maxHealthInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.refreshToken(); err != nil {
			if isTokenErr(err) {
				s.forceReconnect()
			} else {
				s.logWarn("token refresh failed", "device", s.device.ID, "error", err)
				s.handleConnectionLoss(nil)
			}
			return
		}
	}
}

// refreshToken exchanges the current token for a fresh one.
func (s *Session) refreshToken() error {
	s.setState(StateReauthenticating)

	frame, err := s.call(MethodRefreshToken, RefreshParams{Token: s.currentToken()}, refreshTimeout)
	if err != nil {
		return err
	}
	if frame.Error != nil {
		if frame.Error.TokenInvalid() {
			return fmt.Errorf("%w: %s", ErrTokenExpired, frame.Error.Message)
		}
		return fmt.Errorf("%w: refresh: %s", ErrCommandFailed, frame.Error.Message)
	}

	res, ok := frame.AuthResult()
	if !ok {
		return fmt.Errorf("%w: refresh response carried no token", ErrProtocol)
	}

	s.adoptToken(res)
	s.logDebug("token refreshed", "device", s.device.ID, "expires_at", s.tokenExpiry())
	return nil
}

// forceReconnect tears the connection down and reconnects after a short
// fixed pause. Used when the device invalidates the token: a plain
// request retry cannot recover, only a fresh login can.
func (s *Session) forceReconnect() {
	t := s.currentTransport()
	if t != nil {
		s.teardownTransport(t)
	}
	s.scheduleReconnect(tokenInvalidPause)
}

// handleConnectionLoss reacts to an abnormal failure of the given
// transport: tear it down, then hand off to the reconnect supervisor.
// Passing the failing transport (rather than reading the current one)
// keeps a stale transport's late error from tearing down a healthy
// successor. nil falls back to the current transport.
func (s *Session) handleConnectionLoss(t *Transport) {
	if t == nil {
		t = s.currentTransport()
	}
	if t != nil {
		s.teardownTransport(t)
	}
	s.scheduleReconnect(0)
}

// teardownTransport closes a transport and clears connection state, but
// only if it is still the session's current transport; a stale teardown
// only closes its own socket and must not abandon requests in flight on
// the successor. Relay states are retained as last-known values; the
// token is discarded because the next connection must authenticate from
// scratch.
func (s *Session) teardownTransport(t *Transport) {
	t.Close()

	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.token = ""
	s.tokenExpiresAt = time.Time{}
	s.state = StateDisconnected
	s.mu.Unlock()

	s.rpc.abandonAll()
	s.stopHealthLoop()
	s.publishSnapshot()
}

// publishSnapshot invokes state callbacks with a fresh snapshot.
func (s *Session) publishSnapshot() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()

	s.cbMu.RLock()
	callbacks := make([]StateCallback, len(s.onState))
	copy(callbacks, s.onState)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(snap)
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.publishSnapshot()
	}
}

func (s *Session) currentTransport() *Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

func (s *Session) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) tokenExpiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenExpiresAt
}

// goTask spawns a WaitGroup-tracked goroutine, unless the session is
// shutting down. Returns false if the task was not started.
func (s *Session) goTask(fn func()) bool {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// sleep waits for d or until shutdown. Returns false when interrupted.
func (s *Session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.done:
		return false
	case <-timer.C:
		return true
	}
}

func isAuthErr(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

func isTokenErr(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

func (s *Session) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Session) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Session) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Session) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
