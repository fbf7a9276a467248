package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zero-models/zerogen/internal/generate"
)

// countingRegen is a RegenerateFunc that records invocations.
type countingRegen struct {
	mu    sync.Mutex
	calls int
	res   *generate.Result
	err   error
}

func (c *countingRegen) run(_ context.Context) (*generate.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	res := *c.res
	return &res, nil
}

func (c *countingRegen) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func okGeneration() *generate.Result {
	return &generate.Result{
		RunID:   "watch-run",
		Path:    "legacy",
		Success: true,
		Models: []generate.ModelReport{
			{Table: "posts", Model: "Post"},
			{Table: "users", Model: "User"},
		},
		Stats: generate.RunStats{FilesWritten: 5, Elapsed: 80 * time.Millisecond},
	}
}

func TestSessionRegeneratesOnSnapshotChange(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "zero_schema.json")
	if err := os.WriteFile(snapshot, []byte(`{"tables":[]}`), 0644); err != nil {
		t.Fatal(err)
	}

	regen := &countingRegen{res: okGeneration()}
	session, err := NewSession(SessionConfig{
		SnapshotPath: snapshot,
		Debounce:     50 * time.Millisecond,
		Regenerate:   regen.run,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer session.Stop()

	if err := session.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if regen.count() != 1 {
		t.Fatalf("initial generation ran %d times, want 1", regen.count())
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(snapshot, []byte(`{"tables":[{"name":"posts"}]}`), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for regen.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("regeneration ran %d times, want at least 2", regen.count())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSessionSurvivesFailingInitialGeneration(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "zero_schema.json")
	if err := os.WriteFile(snapshot, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	regen := &countingRegen{err: errors.New("extraction: snapshot unreadable")}
	session, err := NewSession(SessionConfig{
		SnapshotPath: snapshot,
		Regenerate:   regen.run,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer session.Stop()

	if err := session.Start(); err != nil {
		t.Fatalf("Start must keep watching after a failed initial run: %v", err)
	}
}

func TestSessionNotifiesClients(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	conn, cleanup := dialReload(t, rs)
	defer cleanup()
	waitForConnections(t, rs, 1)

	regen := &countingRegen{res: okGeneration()}
	session, err := NewSession(SessionConfig{
		SnapshotPath: filepath.Join(t.TempDir(), "zero_schema.json"),
		Regenerate:   regen.run,
		Reload:       rs,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if err := session.handleChanges([]string{"db/zero_schema.json"}); err != nil {
		t.Fatalf("handleChanges: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != MessageRegenerating || len(msg.Files) != 1 {
		t.Fatalf("first message = %+v, want regenerating", msg)
	}

	msg = readMessage(t, conn)
	if msg.Type != MessageModels {
		t.Fatalf("second message = %+v, want models", msg)
	}
	if len(msg.Models) != 2 || msg.Models[1] != "User" {
		t.Fatalf("models = %v", msg.Models)
	}
	if msg.FilesWritten != 5 {
		t.Fatalf("files written = %d, want 5", msg.FilesWritten)
	}
}

func TestSessionNotifiesErrors(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	conn, cleanup := dialReload(t, rs)
	defer cleanup()
	waitForConnections(t, rs, 1)

	failed := okGeneration()
	failed.Success = false
	failed.Errors = []string{"posts: render: template boom"}
	regen := &countingRegen{res: failed}

	session, err := NewSession(SessionConfig{
		SnapshotPath: filepath.Join(t.TempDir(), "zero_schema.json"),
		Regenerate:   regen.run,
		Reload:       rs,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// A run that completes with table errors keeps the session alive.
	if err := session.handleChanges([]string{"db/zero_schema.json"}); err != nil {
		t.Fatalf("handleChanges: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != MessageRegenerating {
		t.Fatalf("first message = %+v, want regenerating", msg)
	}
	msg = readMessage(t, conn)
	if msg.Type != MessageError || msg.Error == "" {
		t.Fatalf("second message = %+v, want error", msg)
	}
}

func TestNewSessionRequiresRegenerate(t *testing.T) {
	if _, err := NewSession(SessionConfig{SnapshotPath: "db/zero_schema.json"}); err == nil {
		t.Fatal("expected an error without a regenerate function")
	}
}
