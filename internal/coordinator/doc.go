// Package coordinator implements command execution with supervisor
// approval.
//
// The coordinator consumes light-command batches from the bus, holds each
// one as a pending request, and announces it with a pending status event.
// The supervisor answers on a separate feedback topic; the coordinator
// correlates the answer by request ID, bounded by a timeout, and then
// either executes the batch on the per-room control topics or rejects it.
// Either way exactly one completed status event is published per request.
//
// # Lifecycle of a request
//
//	created → pending (awaiting decision, bounded by timeout) → resolved → removed
//
// There is no transition back from resolved: the correlation store's
// remove-and-return is the single synchronization point, so a decision
// arriving after a timeout resolution (or a duplicate delivery, QoS 1 is
// at-least-once) is a no-op.
//
// # Waiting
//
// Each pending request owns a single-slot decision channel. The feedback
// handler writes into it at most once; the per-request watcher goroutine
// selects on the channel, its timeout timer, and shutdown. No condition
// variables, no polling, no shared lock on the wait path.
//
// # When no decision arrives
//
// The configured safety policy decides: fail-open approves (the historical
// behaviour) and fail-closed rejects. Fail-open means physical lights
// change without supervisor sign-off when the supervisor is down — see the
// approval package for the policy discussion.
package coordinator
