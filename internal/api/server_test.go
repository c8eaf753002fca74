package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/audit"
	"github.com/halcyon-home/halcyon-core/internal/coordinator"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/logging"
)

type fakePending struct {
	snapshots []coordinator.PendingSnapshot
}

func (f *fakePending) Pending() []coordinator.PendingSnapshot {
	return f.snapshots
}

type fakeAudit struct {
	result *audit.ListResult
	err    error
	filter audit.Filter
}

func (f *fakeAudit) Create(context.Context, *audit.Record) error { return nil }

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testServer(t *testing.T, mutate func(*Deps)) (*Server, *fakePending, *fakeAudit) {
	t.Helper()

	pending := &fakePending{}
	auditRepo := &fakeAudit{result: &audit.ListResult{Records: []audit.Record{}, Limit: 50}}

	deps := Deps{
		Logger:  logging.Default(),
		Pending: pending,
		Audit:   auditRepo,
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	server, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return server, pending, auditRepo
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func TestHealthOK(t *testing.T) {
	server, _, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthFunc{
			"mqtt":     func(context.Context) error { return nil },
			"database": func(context.Context) error { return nil },
		}
	})

	rec := get(t, server, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	components, _ := body["components"].(map[string]any)
	if components["mqtt"] != "ok" {
		t.Errorf("components = %v", components)
	}
}

func TestHealthDegraded(t *testing.T) {
	server, _, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthFunc{
			"mqtt": func(context.Context) error { return fmt.Errorf("not connected") },
		}
	})

	body := decodeBody(t, get(t, server, "/api/v1/health"))
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	components, _ := body["components"].(map[string]any)
	if components["mqtt"] != "not connected" {
		t.Errorf("components = %v", components)
	}
}

func TestPendingEndpoint(t *testing.T) {
	server, pending, _ := testServer(t, nil)
	pending.snapshots = []coordinator.PendingSnapshot{
		{RequestID: "abc12345", Rooms: []string{"kitchen"}, CreatedAt: time.Now().UTC(), AgeSeconds: 3.5},
	}

	rec := get(t, server, "/api/v1/approvals/pending")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	items, _ := body["pending"].([]any)
	if len(items) != 1 {
		t.Fatalf("pending = %v", body["pending"])
	}
	first, _ := items[0].(map[string]any)
	if first["request_id"] != "abc12345" {
		t.Errorf("request_id = %v", first["request_id"])
	}
}

func TestDecisionLogPassesFilter(t *testing.T) {
	server, _, auditRepo := testServer(t, nil)

	rec := get(t, server, "/api/v1/approvals/log?status=rejected&source=timeout&limit=10&offset=20")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	want := audit.Filter{Status: "rejected", Source: "timeout", Limit: 10, Offset: 20}
	if auditRepo.filter != want {
		t.Errorf("filter = %+v, want %+v", auditRepo.filter, want)
	}
}

func TestDecisionLogBadQuery(t *testing.T) {
	server, _, _ := testServer(t, nil)

	rec := get(t, server, "/api/v1/approvals/log?limit=lots")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDecisionLogRepoFailure(t *testing.T) {
	server, _, auditRepo := testServer(t, nil)
	auditRepo.err = fmt.Errorf("disk on fire")

	rec := get(t, server, "/api/v1/approvals/log")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestDecisionLogUnconfigured(t *testing.T) {
	server, _, _ := testServer(t, func(d *Deps) { d.Audit = nil })

	rec := get(t, server, "/api/v1/approvals/log")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	server, _, _ := testServer(t, nil)

	rec := get(t, server, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	echo := httptest.NewRecorder()
	server.buildRouter().ServeHTTP(echo, req)
	if got := echo.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Pending: &fakePending{}}); err == nil {
		t.Error("expected error for missing logger")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("expected error for missing pending source")
	}
}
