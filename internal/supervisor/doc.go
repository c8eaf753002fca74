// Package supervisor produces approval decisions for pending command
// batches.
//
// The engine listens on the actuator status topic and reviews each
// pending event in three tiers:
//
//  1. Deterministic rules: empty batches and floods are rejected,
//     night-time commands touching a sensitive room get a warning. Rules
//     run first and never consult the reasoner.
//  2. A language-model reasoner, bounded by a decision budget. A valid
//     verdict is forwarded verbatim; an unparseable one falls through to
//     a time-of-day heuristic.
//  3. The safety policy, when the reasoner times out or errors.
//
// Every pending event gets exactly one published decision, stamped with
// the event's request ID. A panic anywhere in review is converted into an
// emergency fallback decision rather than silence, because the
// coordinator's timeout is the last line of defence, not the first.
package supervisor
