package approval

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the verdict a decision carries.
//
// Both StatusApproved and StatusWarning authorise execution of the batch;
// StatusRejected vetoes it.
type Status string

const (
	StatusApproved Status = "approved"
	StatusWarning  Status = "warning"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the three known verdicts.
func (s Status) Valid() bool {
	switch s {
	case StatusApproved, StatusWarning, StatusRejected:
		return true
	}
	return false
}

// Authorizes reports whether a decision with this status permits the
// coordinator to execute device commands.
func (s Status) Authorizes() bool {
	return s == StatusApproved || s == StatusWarning
}

// SafetyPolicy controls what verdict is synthesised when no authoritative
// decision is available: request timeout, reasoner budget exhaustion, or a
// reasoner failure.
//
// PolicyFailOpen approves (the behaviour of the original deployment) and is
// the default. Fail-open on a physical-actuation system means lights change
// even when the supervisor is down — deliberate, but worth knowing before
// relying on it. PolicyFailClosed rejects instead.
type SafetyPolicy string

const (
	PolicyFailOpen   SafetyPolicy = "fail-open"
	PolicyFailClosed SafetyPolicy = "fail-closed"
)

// Valid reports whether p is a known safety policy.
func (p SafetyPolicy) Valid() bool {
	return p == PolicyFailOpen || p == PolicyFailClosed
}

// Fallback synthesises the decision used when no real decision arrived.
func (p SafetyPolicy) Fallback(reason string) Decision {
	status := StatusApproved
	if p == PolicyFailClosed {
		status = StatusRejected
	}
	return Decision{Status: status, Reason: reason}
}

// Decision is the supervisor's verdict on a pending command batch.
//
// RequestID ties the decision back to the batch that caused it. It is
// optional on the wire for compatibility with older supervisors; see the
// coordinator's match_latest_without_id mode.
type Decision struct {
	Status    Status `json:"status"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
	TimeTaken string `json:"time_taken,omitempty"`
}

// Stage identifies where a status event sits in the request lifecycle.
type Stage string

const (
	StagePending   Stage = "pending"
	StageCompleted Stage = "completed"
)

// StatusEvent is published by the coordinator on the actuator status topic.
//
// A pending event announces a batch awaiting approval and carries the full
// command map so the supervisor can reason about it. A completed event
// reports the resolved verdict. For a given request ID the completed event
// is always published after the pending event.
type StatusEvent struct {
	From      string            `json:"from"`
	Stage     Stage             `json:"status"`
	RequestID string            `json:"request_id"`
	Rooms     []string          `json:"rooms"`
	Commands  map[string]string `json:"commands,omitempty"`
	Decision  Status            `json:"decision,omitempty"`
	Timestamp float64           `json:"timestamp"`
}

// ValidColors is the closed set of color/state tokens a command may carry.
var ValidColors = map[string]bool{
	"red":    true,
	"yellow": true,
	"green":  true,
	"blue":   true,
	"white":  true,
	"off":    true,
}

// CommandBatch is a set of per-room light commands received from the
// controller. Batches are immutable once accepted; Validate is called
// before a batch is submitted and a failing batch is never submitted.
type CommandBatch struct {
	// Source labels the publisher that produced the batch.
	Source string

	// SentAt is the batch's send timestamp (Unix seconds).
	SentAt float64

	// Commands maps room identifier to color token.
	Commands map[string]string
}

// Validate checks room identifiers and color tokens.
//
// An empty batch is valid here: the supervisor's fast path rejects it with
// a proper decision, which keeps the pipeline observable instead of
// silently dropping the event.
func (b CommandBatch) Validate() error {
	for room, color := range b.Commands {
		if strings.TrimSpace(room) == "" {
			return fmt.Errorf("%w: empty room identifier", ErrInvalidBatch)
		}
		if !ValidColors[color] {
			return fmt.Errorf("%w: unknown color %q for room %q", ErrInvalidBatch, color, room)
		}
	}
	return nil
}

// Rooms returns the batch's room identifiers in sorted order.
//
// JSON objects carry no ordering, so the sorted list is the canonical
// "ordered sequence of rooms" used in status events and device commands.
func (b CommandBatch) Rooms() []string {
	rooms := make([]string, 0, len(b.Commands))
	for room := range b.Commands {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// NewRequestID generates a short opaque request ID.
//
// Eight hex characters of a UUID are plenty for the handful of requests
// in flight at once; uniqueness among outstanding requests is enforced by
// the correlation store, not here.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// UnixSeconds converts t to the float Unix-seconds wire format used on the
// agent topics.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
