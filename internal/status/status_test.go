package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zero-models/zerogen/internal/migration"
)

func statusClock() time.Time {
	return time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
}

func getJSON(t *testing.T, handler http.Handler, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d, want 200", path, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want JSON", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding %s response: %v", path, err)
	}
	return rec
}

func TestHealthz(t *testing.T) {
	handler := NewHandler(Config{Flags: migration.NewFeatureFlags(migration.FlagsConfig{})})

	var body map[string]string
	getJSON(t, handler, "/healthz", &body)
	if body["status"] != "ok" {
		t.Fatalf("healthz status = %q, want ok", body["status"])
	}
}

func TestMigrationStatusHealthy(t *testing.T) {
	flags := migration.NewFeatureFlags(migration.FlagsConfig{Percentage: 25, Sticky: true})
	handler := NewHandler(Config{Flags: flags, Now: statusClock})

	var report Report
	getJSON(t, handler, "/migration/status", &report)

	if report.Status != "ok" {
		t.Fatalf("status = %q, want ok", report.Status)
	}
	if !report.GeneratedAt.Equal(statusClock()) {
		t.Fatalf("GeneratedAt = %v, want %v", report.GeneratedAt, statusClock())
	}
	if report.Flags.Percentage != 25 || !report.Flags.Sticky {
		t.Fatalf("flags snapshot = %+v", report.Flags)
	}
	if report.Flags.BreakerState != migration.BreakerClosed {
		t.Fatalf("breaker state = %s, want closed", report.Flags.BreakerState)
	}
	if report.RecommendRollback {
		t.Fatal("healthy state should not recommend rollback")
	}
	if report.Rollback.State != migration.StateActive {
		t.Fatalf("rollback state = %s, want active", report.Rollback.State)
	}
}

func TestMigrationStatusDegraded(t *testing.T) {
	flags := migration.NewFeatureFlags(migration.FlagsConfig{
		Percentage:     50,
		CircuitBreaker: true,
		ErrorThreshold: 1,
	})
	flags.RecordNewPipelineError()

	rollback, err := migration.NewRollbackManager(filepath.Join(t.TempDir(), "rollback.json"), nil)
	if err != nil {
		t.Fatalf("NewRollbackManager: %v", err)
	}

	stats := migration.NewMemoryStats()
	if err := stats.RecordRun(context.Background(), migration.PathPipeline, 80*time.Millisecond, false); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	handler := NewHandler(Config{Flags: flags, Rollback: rollback, Stats: stats, Now: statusClock})

	var report Report
	getJSON(t, handler, "/migration/status", &report)

	if report.Status != "degraded" {
		t.Fatalf("status = %q, want degraded with an open breaker", report.Status)
	}
	if report.Flags.BreakerState != migration.BreakerOpen {
		t.Fatalf("breaker state = %s, want open", report.Flags.BreakerState)
	}
	if !report.RecommendRollback {
		t.Fatal("open breaker while active should recommend rollback")
	}
	pipe, ok := report.Stats[migration.PathPipeline]
	if !ok {
		t.Fatalf("stats missing pipeline path: %+v", report.Stats)
	}
	if pipe.Runs != 1 || pipe.Errors != 1 {
		t.Fatalf("pipeline stats = %+v, want 1 failed run", pipe)
	}
}

func TestMigrationStatusAfterRollback(t *testing.T) {
	flags := migration.NewFeatureFlags(migration.FlagsConfig{CircuitBreaker: true, ErrorThreshold: 1})
	flags.RecordNewPipelineError()

	rollback, err := migration.NewRollbackManager(filepath.Join(t.TempDir(), "rollback.json"), nil)
	if err != nil {
		t.Fatalf("NewRollbackManager: %v", err)
	}
	if err := rollback.Trigger("breaker opened"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	handler := NewHandler(Config{Flags: flags, Rollback: rollback})

	var report Report
	getJSON(t, handler, "/migration/status", &report)

	if report.Rollback.State != migration.StateRolledBack {
		t.Fatalf("rollback state = %s, want rolled_back", report.Rollback.State)
	}
	if len(report.Rollback.History) != 1 || report.Rollback.History[0].Reason != "breaker opened" {
		t.Fatalf("rollback history = %+v", report.Rollback.History)
	}
	if report.RecommendRollback {
		t.Fatal("already rolled back, nothing to recommend")
	}
	if report.Status != "degraded" {
		t.Fatalf("status = %q, want degraded while rolled back", report.Status)
	}
}

func TestServerServesAndShutsDown(t *testing.T) {
	srv, err := NewServer(Config{
		Flags: migration.NewFeatureFlags(migration.FlagsConfig{}),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", resp.StatusCode)
	}
	if srv.Addr() != listener.Addr().String() {
		t.Fatalf("Addr = %s, want %s", srv.Addr(), listener.Addr().String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v after shutdown", err)
	}
}

func TestNewServerRequiresFlags(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected a wiring error without flags")
	}
}
