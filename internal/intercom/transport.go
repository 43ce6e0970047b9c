package intercom

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsPath is the WebSocket endpoint exposed by the intercom.
	wsPath = "/wsock"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// DialOptions configure a single WebSocket connection to an intercom.
type DialOptions struct {
	Host      string
	Port      int
	TLSVerify bool
}

// Transport is a single WebSocket connection to the intercom.
//
// The intercom terminates TLS with a self-signed certificate, so
// verification is off unless explicitly enabled in the device config.
//
// Thread Safety:
//   - Send() is safe for concurrent use (serialised by an internal mutex).
//   - Receive() must only be called from a single reader goroutine.
//   - Close() is idempotent and safe to call concurrently with both.
type Transport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

// Dial establishes a WebSocket connection to wss://host:port/wsock.
//
// Parameters:
//   - ctx: Cancels the handshake if it exceeds the caller's deadline
//   - opts: Device address and TLS verification mode
//
// Returns:
//   - *Transport: Connected transport ready for Send/Receive
//   - error: Wrapped ErrConnectionFailed on dial or handshake failure
func Dial(ctx context.Context, opts DialOptions) (*Transport, error) {
	u := url.URL{
		Scheme: "wss",
		Host:   fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Path:   wsPath,
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.TLSVerify, //nolint:gosec // self-signed device certs
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, u.Host, err)
	}

	return &Transport{conn: conn}, nil
}

// Send writes a text frame to the connection.
func (t *Transport) Send(data []byte) error {
	if t.closed.Load() {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrConnectionFailed, err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %w", ErrConnectionFailed, err)
	}
	return nil
}

// Receive blocks until the next frame arrives or the connection drops.
// Only one goroutine may call Receive at a time.
func (t *Transport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrConnectionFailed, err)
	}
	return data, nil
}

// ReceiveTimeout reads a single frame with a deadline. Used by one-shot
// probes; the persistent listener uses Receive.
func (t *Transport) ReceiveTimeout(d time.Duration) ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %w", ErrConnectionFailed, err)
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrRequestTimeout, err)
	}
	return data, nil
}

// Close shuts the connection down. A close frame is sent best-effort so a
// well-behaved peer sees a normal closure. Safe to call multiple times;
// any blocked Receive returns with an error.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		t.closed.Store(true)

		t.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}

// Closed reports whether Close has been called on this transport. The
// listener uses it to tell a deliberate shutdown apart from a dropped
// connection.
func (t *Transport) Closed() bool {
	return t.closed.Load()
}

// IsNormalClosure reports whether a receive error represents the peer
// closing the connection cleanly rather than the link failing. Receive
// wraps the underlying error, so this unwraps rather than type-asserts.
func IsNormalClosure(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
