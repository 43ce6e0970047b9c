// Package bridge connects intercom sessions to MQTT.
//
// It mirrors each session's state onto a retained per-device topic,
// publishes doorbell presses as transient events with unique IDs, runs
// periodic health reporting, and executes commands received on the
// per-device command topics, acknowledging each one.
//
// # Message Flow
//
//	session snapshot   → graylogic/state/intercom/{id}            (retained)
//	doorbell press     → graylogic/event/intercom/{id}/doorbell
//	bridge health      → graylogic/health/intercom                (retained)
//	command            ← graylogic/command/intercom/{id}
//	acknowledgement    → graylogic/ack/intercom/{id}
//
// Commands: relay_open (fire-and-forget pulse), relay_open_wait
// (device-confirmed pulse), test_connection (one-shot probe).
package bridge
