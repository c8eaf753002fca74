// Package approval defines the shared types of the command-approval
// workflow: command batches, supervisor decisions, status events, and the
// safety policy applied when no authoritative decision is available.
//
// The types in this package mirror the JSON payloads exchanged over MQTT
// between the coordinator and the supervisor, so both agents (and any
// external observer) agree on the wire format.
package approval
