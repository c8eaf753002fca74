// Package mqtt provides MQTT client connectivity for Halcyon Core.
//
// MQTT is the message bus connecting the pipeline agents: the controller
// forwards command batches, the coordinator announces pending work and
// publishes completions, the supervisor answers with decisions, and
// per-room control topics carry the physical light commands.
//
//	sensing side → light-commands → controller → actuator-commands
//	  → coordinator ⇄ (status / feedback) ⇄ supervisor
//	  → halcyon/room/{room}/light/control
//
// The package manages:
//   - Connection to the broker with auto-reconnect and backoff
//   - Publishing with QoS guarantees and bounded payload size
//   - Topic subscriptions with automatic restoration after reconnect
//   - Last Will and Testament for offline detection
//
// Delivery is at-least-once (QoS 1): consumers must tolerate duplicates,
// which the coordinator does by resolving each request exactly once.
// Ordering is preserved per publisher within a topic, not across topics.
package mqtt
