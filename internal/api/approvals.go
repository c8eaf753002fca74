package api

import (
	"net/http"
	"strconv"

	"github.com/halcyon-home/halcyon-core/internal/audit"
)

// handlePending returns the coordinator's outstanding requests, oldest
// first.
func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	pending := s.pending.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}

// handleDecisionLog returns resolved requests from the decision log.
//
// Query parameters: status, source, limit, offset.
func (s *Server) handleDecisionLog(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "decision log not configured")
		return
	}

	filter := audit.Filter{
		Status: r.URL.Query().Get("status"),
		Source: r.URL.Query().Get("source"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing decision log failed", "error", err)
		writeInternalError(w, "failed to list decision log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional integer query parameter, zero when absent.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
