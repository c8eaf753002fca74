// Package audit persists resolved approval requests to the decision_log
// table for after-the-fact review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one resolved request: what was asked, what was decided, and
// where the decision came from.
type Record struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Rooms      []string  `json:"rooms"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Filter controls which records to return.
type Filter struct {
	Status string // optional: filter by verdict (approved, warning, rejected)
	Source string // optional: filter by decision source (supervisor, timeout)
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated decision log results.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository defines the interface for decision log operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores decision records in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new decision log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a decision record. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "dec-" + uuid.NewString()[:8]
	}
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = time.Now().UTC()
	}

	roomsJSON, err := json.Marshal(rec.Rooms)
	if err != nil {
		return fmt.Errorf("marshalling rooms: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO decision_log (id, request_id, rooms, status, reason, source, created_at, resolved_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, string(roomsJSON),
		rec.Status, nullableString(rec.Reason), rec.Source,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.ResolvedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting decision record: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns decision records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE is assembled from fixed parameterised conditions, never from
	// user-supplied SQL.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM decision_log %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting decision records: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, request_id, rooms, status, reason, source, created_at, resolved_at, duration_ms FROM decision_log %s ORDER BY resolved_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decision records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var roomsJSON string
		var reason sql.NullString
		var createdAt, resolvedAt string

		if err := rows.Scan(&rec.ID, &rec.RequestID, &roomsJSON,
			&rec.Status, &reason, &rec.Source,
			&createdAt, &resolvedAt, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning decision record: %w", err)
		}

		if reason.Valid {
			rec.Reason = reason.String
		}
		if err := json.Unmarshal([]byte(roomsJSON), &rec.Rooms); err != nil {
			return nil, fmt.Errorf("parsing rooms for record %q: %w", rec.ID, err)
		}

		if rec.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for record %q: %w", rec.ID, err)
		}
		if rec.ResolvedAt, err = parseTimestamp(resolvedAt); err != nil {
			return nil, fmt.Errorf("parsing resolved_at for record %q: %w", rec.ID, err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decision records: %w", err)
	}

	if records == nil {
		records = []Record{}
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
