package intercom

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the JSON-RPC protocol version the intercom speaks.
const ProtocolVersion = "2.0"

// JSON-RPC methods consumed by the session.
const (
	MethodLogin        = "com.fibaro.intercom.account.login"
	MethodRefreshToken = "com.fibaro.intercom.account.refreshToken"
	MethodRelayOpen    = "com.fibaro.intercom.relay.open"
)

// JSON-RPC methods received as server-initiated notifications.
const (
	MethodRelayStateChanged  = "com.fibaro.intercom.relay.stateChanged"
	MethodButtonStateChanged = "com.fibaro.intercom.device.buttonStateChanged"
)

// Relay command bounds. The device exposes two relays and accepts an
// optional pulse duration in milliseconds.
const (
	MinRelay = 0
	MaxRelay = 1

	MinRelayTimeoutMs = 250
	MaxRelayTimeoutMs = 30000
)

// Request is an outbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// NewRequest builds a request with the protocol version set.
func NewRequest(id int64, method string, params any) Request {
	return Request{
		JSONRPC: ProtocolVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// LoginParams are the parameters for account.login.
type LoginParams struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// RefreshParams are the parameters for account.refreshToken.
type RefreshParams struct {
	Token string `json:"token"`
}

// RelayOpenParams are the parameters for relay.open.
// Timeout is the optional pulse duration in milliseconds; nil omits it so
// the device applies its own default.
type RelayOpenParams struct {
	Token   string `json:"token"`
	Relay   int    `json:"relay"`
	Timeout *int   `json:"timeout,omitempty"`
}

// AuthResult is the result payload of a login or token refresh.
// ExpTime is the token lifetime in milliseconds; zero means the device did
// not report one and the default lifetime applies.
type AuthResult struct {
	Token   string `json:"token"`
	ExpTime int64  `json:"exp_time"`
}

// RelayStateParams is the payload of a relay.stateChanged notification.
type RelayStateParams struct {
	Relay  int  `json:"relay"`
	IsOpen bool `json:"is_open"`
}

// ButtonStateParams is the payload of a device.buttonStateChanged
// notification. State is true while the button is held down.
type ButtonStateParams struct {
	Button int  `json:"button"`
	State  bool `json:"state"`
}

// ErrorData carries the structured detail of a device error frame.
type ErrorData struct {
	Name string `json:"name"`
}

// RPCError is a JSON-RPC error object as sent by the device.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil && e.Data.Name != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data.Name)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TokenInvalid reports whether this error signals that the session token
// has expired or been invalidated. The device uses two shapes for this:
// a bare "Expired" message, or a structured InvalidToken error name.
func (e *RPCError) TokenInvalid() bool {
	if e == nil {
		return false
	}
	if e.Message == "Expired" {
		return true
	}
	return e.Data != nil && e.Data.Name == "InvalidToken"
}

// Frame is a decoded inbound JSON-RPC message. Exactly which fields are
// populated determines how the session routes it:
//
//  1. ID matching a pending request → resolves that request
//  2. Method set → server-initiated notification
//  3. Result containing a token → authentication/refresh result
//  4. Error with no correlated ID → token-invalidation / generic error path
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ParseFrame decodes a raw inbound message into a Frame.
//
// Returns:
//   - *Frame: Decoded frame ready for routing
//   - error: Wrapped ErrProtocol if the payload is not a JSON-RPC object
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrProtocol, err)
	}
	if f.JSONRPC != "" && f.JSONRPC != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrProtocol, f.JSONRPC)
	}
	return &f, nil
}

// AuthResult extracts a token-bearing result from the frame.
// The second return is false when the frame carries no usable token.
func (f *Frame) AuthResult() (AuthResult, bool) {
	if len(f.Result) == 0 {
		return AuthResult{}, false
	}
	var res AuthResult
	if err := json.Unmarshal(f.Result, &res); err != nil {
		return AuthResult{}, false
	}
	if res.Token == "" {
		return AuthResult{}, false
	}
	return res, true
}

// BoolResult interprets the frame result as a plain boolean, as returned
// by the synchronous relay.open variant. Missing or malformed results
// decode as false.
func (f *Frame) BoolResult() bool {
	var b bool
	if len(f.Result) == 0 {
		return false
	}
	if err := json.Unmarshal(f.Result, &b); err != nil {
		return false
	}
	return b
}

// ValidateRelay checks that the relay index is one the device exposes.
func ValidateRelay(relay int) error {
	if relay < MinRelay || relay > MaxRelay {
		return fmt.Errorf("%w: got %d", ErrInvalidRelay, relay)
	}
	return nil
}

// ValidateRelayTimeout checks the optional pulse duration in milliseconds.
func ValidateRelayTimeout(timeoutMs int) error {
	if timeoutMs < MinRelayTimeoutMs || timeoutMs > MaxRelayTimeoutMs {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, timeoutMs)
	}
	return nil
}
