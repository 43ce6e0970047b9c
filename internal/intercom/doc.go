// Package intercom implements persistent, self-healing sessions to FIBARO
// Intercom devices over WebSocket JSON-RPC.
//
// Each device gets one Session, which owns the full connection lifecycle:
// dialling wss://host:port/wsock, authenticating with account.login,
// keeping the token fresh via account.refreshToken, and recovering from
// failures with exponential backoff (1s doubling to a 600s cap, one
// reconnect sequence in flight at a time).
//
// # Features
//
//   - Request/response correlation over monotonic, never-reused IDs
//   - Proactive token refresh at min(60s, remaining lifetime / 2)
//   - Forced disconnect-reconnect when the device invalidates a token
//   - Relay open commands, fire-and-forget or confirmed
//   - Relay state and doorbell notifications surfaced as callbacks
//   - One-shot connection probing that leaves the session untouched
//
// # Usage
//
//	session, err := intercom.NewSession(intercom.Options{
//		Device: deviceCfg,
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	session.OnDoorbell(func(ev intercom.DoorbellEvent) { ... })
//	if err := session.Connect(ctx); err != nil { ... }
//	defer session.Disconnect()
//
//	err = session.OpenRelay(ctx, 0, 0)
//
// A Manager aggregates the sessions for all configured devices and fans
// out connect and shutdown.
//
// # Failure Model
//
// Authentication failures surface to the caller and are never retried
// silently. Connection failures hand off to the reconnect supervisor.
// Token invalidation ("Expired" / InvalidToken error frames) forces a
// full disconnect, a 2s pause, then a fresh login. Malformed frames are
// logged and dropped without affecting the session.
package intercom
