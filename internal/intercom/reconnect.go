package intercom

import (
	"context"
	"time"
)

// scheduleReconnect launches the reconnect supervisor if one is not
// already running. At most one supervisor exists per session, enforced
// with a compare-and-swap, so overlapping failure signals (read loop
// error, refresh timeout, token invalidation) collapse into a single
// reconnect sequence.
//
// initialPause delays the first attempt; the token-invalidation path uses
// it to give the device a moment before logging in again.
func (s *Session) scheduleReconnect(initialPause time.Duration) {
	if s.closed.Load() {
		return
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}

	started := s.goTask(func() {
		defer s.reconnecting.Store(false)
		s.superviseReconnect(initialPause)
	})
	if !started {
		s.reconnecting.Store(false)
	}
}

// superviseReconnect retries the full connect sequence with exponential
// backoff until it succeeds or the session shuts down. Every failed
// attempt doubles the delay up to the configured cap; waits abort
// immediately on shutdown rather than running out.
//
// Authentication failures do not stop the loop. Device firmware rejects
// logins while it is still booting, so treating an auth error as fatal
// here would strand a session over a transient condition. Persistent
// credential problems surface in the logs on every attempt.
func (s *Session) superviseReconnect(initialPause time.Duration) {
	if initialPause > 0 {
		if !s.sleep(initialPause) {
			return
		}
	}

	backoff := s.backoffInitial
	attempt := 0

	for !s.closed.Load() {
		attempt++
		err := s.connectOnce(context.Background())
		if err == nil {
			s.logInfo("reconnected", "device", s.device.ID, "attempts", attempt)
			return
		}

		s.logWarn("reconnect attempt failed",
			"device", s.device.ID,
			"attempt", attempt,
			"retry_in", backoff,
			"error", err)

		if !s.sleep(backoff) {
			return
		}
		backoff *= 2
		if backoff > s.backoffMax {
			backoff = s.backoffMax
		}
	}
}
