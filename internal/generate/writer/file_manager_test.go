package writer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubFormatter struct {
	calls int
	err   error
	// rewrite applies a trivial transformation so tests can observe that
	// formatted content, not the original, reached disk.
	rewrite func(string) string
}

func (f *stubFormatter) FormatDir(ctx context.Context, dir string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.rewrite == nil {
		return nil
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, []byte(f.rewrite(string(raw))), 0o644)
	})
}

func newTestManager(t *testing.T, mutate func(*Config)) (*FileManager, string) {
	t.Helper()
	dir := t.TempDir()
	comparator, err := NewComparator(nil)
	if err != nil {
		t.Fatalf("NewComparator() error = %v", err)
	}
	cfg := Config{BaseDir: dir, Comparator: comparator}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewFileManager(cfg), dir
}

func TestFileManager_WriteAndSkipIdentical(t *testing.T) {
	m, dir := newTestManager(t, nil)
	ctx := context.Background()

	first := "// Generated at 2026-08-20T10:00:00Z\nexport interface A {}\n"
	res, err := m.WriteWithFormatting(ctx, "types/a-data.ts", first, false, false)
	if err != nil {
		t.Fatalf("first write error = %v", err)
	}
	if res.Action != ActionWritten {
		t.Fatalf("first write action = %s, want written", res.Action)
	}
	if _, err := os.Stat(filepath.Join(dir, "types", "a-data.ts")); err != nil {
		t.Fatalf("written file missing: %v", err)
	}

	// Re-run with only the timestamp changed: semantically identical.
	second := "// Generated at 2026-08-21T11:11:11Z\nexport interface A {}\n"
	res, err = m.WriteWithFormatting(ctx, "types/a-data.ts", second, false, false)
	if err != nil {
		t.Fatalf("second write error = %v", err)
	}
	if res.Action != ActionIdentical {
		t.Errorf("second write action = %s, want identical", res.Action)
	}

	// The file keeps the original timestamp; no rewrite happened.
	raw, _ := os.ReadFile(filepath.Join(dir, "types", "a-data.ts"))
	if string(raw) != first {
		t.Errorf("identical write modified the file")
	}
}

func TestFileManager_ForceBypassesSkip(t *testing.T) {
	m, dir := newTestManager(t, func(c *Config) { c.Force = true })
	ctx := context.Background()

	if _, err := m.WriteWithFormatting(ctx, "a.ts", "same", false, false); err != nil {
		t.Fatalf("write error = %v", err)
	}
	res, err := m.WriteWithFormatting(ctx, "a.ts", "same", false, false)
	if err != nil {
		t.Fatalf("write error = %v", err)
	}
	if res.Action != ActionWritten {
		t.Errorf("forced write action = %s, want written", res.Action)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.ts")); err != nil {
		t.Fatalf("file missing: %v", err)
	}
}

func TestFileManager_DryRunWritesNothing(t *testing.T) {
	m, dir := newTestManager(t, func(c *Config) { c.DryRun = true })

	res, err := m.WriteWithFormatting(context.Background(), "a.ts", "content", false, false)
	if err != nil {
		t.Fatalf("write error = %v", err)
	}
	if res.Action != ActionSkippedDryRun {
		t.Errorf("dry-run action = %s, want skipped_dry_run", res.Action)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.ts")); !os.IsNotExist(err) {
		t.Errorf("dry run created a file")
	}
}

func TestFileManager_DeferredBatchSingleFormatterCall(t *testing.T) {
	formatter := &stubFormatter{rewrite: func(s string) string { return strings.ReplaceAll(s, "  ", " ") }}
	m, dir := newTestManager(t, func(c *Config) { c.Formatter = formatter })
	ctx := context.Background()

	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		res, err := m.WriteWithFormatting(ctx, name, "const  x = 1;\n", true, true)
		if err != nil {
			t.Fatalf("queue %s error = %v", name, err)
		}
		if res.Action != ActionQueued {
			t.Fatalf("queued action = %s, want queued", res.Action)
		}
	}
	if m.QueueLen() != 3 {
		t.Fatalf("QueueLen() = %d, want 3", m.QueueLen())
	}

	results, err := m.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("ProcessBatch() returned %d results, want 3", len(results))
	}
	if formatter.calls != 1 {
		t.Errorf("formatter invoked %d times for the batch, want 1", formatter.calls)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "a.ts"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(raw) != "const x = 1;\n" {
		t.Errorf("formatted content did not reach disk: %q", string(raw))
	}
}

func TestFileManager_AutoFlushOnFileThreshold(t *testing.T) {
	formatter := &stubFormatter{}
	m, _ := newTestManager(t, func(c *Config) {
		c.Formatter = formatter
		c.BatchFileLimit = 2
	})
	ctx := context.Background()

	if _, err := m.WriteWithFormatting(ctx, "a.ts", "a", true, true); err != nil {
		t.Fatalf("queue error = %v", err)
	}
	if _, err := m.WriteWithFormatting(ctx, "b.ts", "b", true, true); err != nil {
		t.Fatalf("queue error = %v", err)
	}

	// The second enqueue crossed the threshold and flushed.
	if m.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d after threshold, want 0", m.QueueLen())
	}
	if formatter.calls != 1 {
		t.Errorf("formatter calls = %d, want 1", formatter.calls)
	}

	results, err := m.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("ProcessBatch() returned %d results, want the 2 auto-flushed", len(results))
	}
}

func TestFileManager_FormatterFailureFallsBack(t *testing.T) {
	formatter := &stubFormatter{err: errors.New("npx: command not found")}
	m, dir := newTestManager(t, func(c *Config) { c.Formatter = formatter })
	ctx := context.Background()

	if _, err := m.WriteWithFormatting(ctx, "a.ts", "const  x = 1;\n", true, true); err != nil {
		t.Fatalf("queue error = %v", err)
	}
	results, err := m.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if len(results) != 1 || results[0].Action != ActionWritten {
		t.Fatalf("results = %+v, want one written file", results)
	}

	// Unformatted original content is the fallback.
	raw, _ := os.ReadFile(filepath.Join(dir, "a.ts"))
	if string(raw) != "const  x = 1;\n" {
		t.Errorf("fallback content = %q, want the unformatted original", string(raw))
	}

	warnings := m.TakeWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "unformatted") {
		t.Errorf("warnings = %v, want a formatter fallback warning", warnings)
	}
	if len(m.TakeWarnings()) != 0 {
		t.Errorf("TakeWarnings() must drain")
	}
}

func TestFileManager_RejectsEscapingPaths(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	for _, path := range []string{"../outside.ts", "/etc/passwd", "a/../../b.ts"} {
		if _, err := m.WriteWithFormatting(ctx, path, "x", false, false); err == nil {
			t.Errorf("path %q was not rejected", path)
		}
	}
}

func TestFileManager_ReportsPerFileErrors(t *testing.T) {
	m, dir := newTestManager(t, nil)
	ctx := context.Background()

	// Occupy the parent path with a file so MkdirAll fails underneath it.
	if err := os.WriteFile(filepath.Join(dir, "types"), []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	res, err := m.WriteWithFormatting(ctx, "types/a-data.ts", "x", false, false)
	if err != nil {
		t.Fatalf("WriteWithFormatting() error = %v, per-file errors ride on the result", err)
	}
	if res.Err == nil {
		t.Errorf("expected a per-file filesystem error")
	}
}
