package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the decision_log
// schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	schema := `
		CREATE TABLE decision_log (
			id          TEXT PRIMARY KEY,
			request_id  TEXT NOT NULL,
			rooms       TEXT NOT NULL,
			status      TEXT NOT NULL,
			reason      TEXT,
			source      TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			resolved_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(requestID, status, source string, resolvedAt time.Time) *Record {
	return &Record{
		RequestID:  requestID,
		Rooms:      []string{"kitchen", "living_room"},
		Status:     status,
		Reason:     "auto approved",
		Source:     source,
		CreatedAt:  resolvedAt.Add(-2 * time.Second),
		ResolvedAt: resolvedAt,
		DurationMS: 2000,
	}
}

func TestCreateGeneratesID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rec := testRecord("req1", "approved", "supervisor", time.Now().UTC())
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.ID[:4] != "dec-" {
		t.Errorf("ID = %q, want dec- prefix", rec.ID)
	}
}

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, testRecord("req1", "approved", "supervisor", base)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, testRecord("req2", "rejected", "supervisor", base.Add(time.Minute))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, testRecord("req3", "approved", "timeout", base.Add(2*time.Minute))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Total)
	}
	if len(result.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(result.Records))
	}

	// Most recent first.
	if result.Records[0].RequestID != "req3" {
		t.Errorf("first record = %q, want req3", result.Records[0].RequestID)
	}
	if result.Records[2].RequestID != "req1" {
		t.Errorf("last record = %q, want req1", result.Records[2].RequestID)
	}

	got := result.Records[0]
	if got.Status != "approved" || got.Source != "timeout" {
		t.Errorf("record = %+v, want approved/timeout", got)
	}
	if len(got.Rooms) != 2 || got.Rooms[0] != "kitchen" {
		t.Errorf("Rooms = %v, want [kitchen living_room]", got.Rooms)
	}
	if !got.ResolvedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("ResolvedAt = %v, want %v", got.ResolvedAt, base.Add(2*time.Minute))
	}
}

func TestListFilters(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []*Record{
		testRecord("req1", "approved", "supervisor", base),
		testRecord("req2", "rejected", "supervisor", base.Add(time.Minute)),
		testRecord("req3", "approved", "timeout", base.Add(2*time.Minute)),
	}
	for _, rec := range seed {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"by status", Filter{Status: "approved"}, []string{"req3", "req1"}},
		{"by source", Filter{Source: "timeout"}, []string{"req3"}},
		{"status and source", Filter{Status: "approved", Source: "supervisor"}, []string{"req1"}},
		{"no match", Filter{Status: "warning"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(result.Records) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(result.Records), len(tt.want))
			}
			for i, id := range tt.want {
				if result.Records[i].RequestID != id {
					t.Errorf("record %d = %q, want %q", i, result.Records[i].RequestID, id)
				}
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := testRecord("req", "approved", "supervisor", base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Records) != 2 {
		t.Errorf("got %d records, want 2", len(result.Records))
	}
	if result.Limit != 2 || result.Offset != 2 {
		t.Errorf("Limit/Offset = %d/%d, want 2/2", result.Limit, result.Offset)
	}
}

func TestListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	result, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want 0", result.Offset)
	}
	if result.Records == nil {
		t.Error("Records should be empty slice, not nil")
	}
}

func TestCreatePreservesEmptyReason(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rec := testRecord("req1", "approved", "timeout", time.Now().UTC())
	rec.Reason = ""
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Records[0].Reason != "" {
		t.Errorf("Reason = %q, want empty", result.Records[0].Reason)
	}
}
