package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/approval"
)

// PendingRequest is one command batch awaiting a decision.
//
// The decision channel is single-slot and written at most once (guarded by
// the store's delivered flag), so the sender never blocks and the watcher
// never misses a value.
type PendingRequest struct {
	ID        string
	Batch     approval.CommandBatch
	CreatedAt time.Time

	seq        uint64
	delivered  bool
	decisionCh chan approval.Decision
}

// Decision returns the channel the request's decision is delivered on.
func (p *PendingRequest) Decision() <-chan approval.Decision {
	return p.decisionCh
}

// PendingSnapshot is a read-only view of one pending request, shaped for
// the status API.
type PendingSnapshot struct {
	RequestID  string    `json:"request_id"`
	Rooms      []string  `json:"rooms"`
	CreatedAt  time.Time `json:"created_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// Store holds pending requests keyed by request ID.
//
// It is the single synchronization point of the approval workflow: Deliver
// hands a decision to exactly one waiter, and Resolve atomically removes
// the entry so a request can be resolved exactly once no matter how many
// signals race for it (supervisor decision, timeout, duplicate delivery).
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*PendingRequest
	seq     uint64
	now     func() time.Time
}

// NewStore creates an empty correlation store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*PendingRequest),
		now:     time.Now,
	}
}

// Add registers a batch under a fresh request ID and returns the pending
// entry. Short IDs may recur over the process lifetime; Add retries until
// the ID is unique among the currently outstanding requests.
func (s *Store) Add(batch approval.CommandBatch) *PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := approval.NewRequestID()
	for s.entries[id] != nil {
		id = approval.NewRequestID()
	}

	s.seq++
	p := &PendingRequest{
		ID:         id,
		Batch:      batch,
		CreatedAt:  s.now(),
		seq:        s.seq,
		decisionCh: make(chan approval.Decision, 1),
	}
	s.entries[id] = p
	return p
}

// Deliver hands a decision to the request's waiter.
//
// It reports false when the ID is unknown (already resolved, or never
// existed) or when a decision was already delivered; in both cases the
// decision is discarded. The first delivery wins.
func (s *Store) Deliver(id string, d approval.Decision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[id]
	if !ok || p.delivered {
		return false
	}
	p.delivered = true
	p.decisionCh <- d
	return true
}

// LatestID returns the most recently added pending request's ID.
//
// Used only by the match_latest_without_id compatibility path; recency is
// by insertion order, not by timestamp, so two requests added in the same
// clock tick still order correctly.
func (s *Store) LatestID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest *PendingRequest
		found  bool
	)
	for _, p := range s.entries {
		if !found || p.seq > latest.seq {
			latest = p
			found = true
		}
	}
	if !found {
		return "", false
	}
	return latest.ID, true
}

// Resolve removes the entry and returns it.
//
// The remove-and-return is atomic: exactly one caller gets ok=true for a
// given ID, which is what makes resolution idempotent under racing timeout
// and decision signals.
func (s *Store) Resolve(id string) (*PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	return p, true
}

// Len returns the number of outstanding requests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Pending returns a snapshot of all outstanding requests, oldest first.
func (s *Store) Pending() []PendingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]PendingSnapshot, 0, len(s.entries))
	for _, p := range s.entries {
		out = append(out, PendingSnapshot{
			RequestID:  p.ID,
			Rooms:      p.Batch.Rooms(),
			CreatedAt:  p.CreatedAt,
			AgeSeconds: now.Sub(p.CreatedAt).Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
