package intercom

import "errors"

// Domain-specific errors for intercom sessions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a
	// disconnected session.
	ErrNotConnected = errors.New("intercom: not connected")

	// ErrConnectionFailed is returned when a connection attempt fails or
	// the transport drops mid-operation.
	ErrConnectionFailed = errors.New("intercom: connection failed")

	// ErrAuthFailed is returned when the device rejects the credentials or
	// the login response is malformed. It is surfaced to the caller and
	// never retried silently.
	ErrAuthFailed = errors.New("intercom: authentication failed")

	// ErrTokenExpired is returned when the device signals that the session
	// token has expired or been invalidated. It always triggers the forced
	// reconnect path rather than a plain retry.
	ErrTokenExpired = errors.New("intercom: token expired or invalid")

	// ErrRequestTimeout is returned when a correlated request receives no
	// response within its deadline.
	ErrRequestTimeout = errors.New("intercom: request timed out")

	// ErrProtocol is returned for malformed or unexpected frames. The
	// offending frame is dropped; the session continues.
	ErrProtocol = errors.New("intercom: protocol error")

	// ErrCommandFailed is returned when the device answers a command with
	// an error frame.
	ErrCommandFailed = errors.New("intercom: command failed")

	// ErrSessionClosed is returned for operations on a session after
	// Disconnect() has been called.
	ErrSessionClosed = errors.New("intercom: session closed")

	// ErrInvalidRelay is returned for relay indices outside {0, 1}.
	ErrInvalidRelay = errors.New("intercom: relay index must be 0 or 1")

	// ErrInvalidTimeout is returned for relay pulse durations outside
	// 250-30000 ms.
	ErrInvalidTimeout = errors.New("intercom: relay timeout must be 250-30000 ms")
)
