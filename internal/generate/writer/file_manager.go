package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Action is the outcome recorded for one write request.
type Action string

const (
	// ActionWritten means content reached disk.
	ActionWritten Action = "written"
	// ActionIdentical means the semantic comparator matched the existing
	// file and the write was skipped.
	ActionIdentical Action = "identical"
	// ActionSkippedDryRun means dry-run mode suppressed the write.
	ActionSkippedDryRun Action = "skipped_dry_run"
	// ActionQueued means the write waits in the batch queue; the final
	// action arrives from ProcessBatch.
	ActionQueued Action = "queued"
)

// Batch thresholds. The values come from the original deployment and are
// preserved as configurable defaults rather than re-derived.
const (
	DefaultBatchFileLimit = 100
	DefaultBatchByteLimit = 100 << 20 // 100MB estimated queue footprint
)

// Formatter runs an external formatting tool over a directory of queued
// files. Implementations must respect the context deadline.
type Formatter interface {
	FormatDir(ctx context.Context, dir string) error
}

// WriteResult reports the outcome of one write request. Err carries a
// per-file filesystem failure; the run continues but must report overall
// failure, since a partially written generated tree has stale
// cross-references.
type WriteResult struct {
	Path    string // request path, relative to the output dir
	AbsPath string
	Action  Action
	Bytes   int
	Err     error
}

// Config configures a FileManager.
type Config struct {
	// BaseDir is the output directory all relative paths resolve under.
	BaseDir string
	// Force bypasses semantic-diff skipping.
	Force bool
	// DryRun suppresses all writes.
	DryRun bool
	// BatchFileLimit flushes the queue when it holds this many files.
	// Zero selects DefaultBatchFileLimit.
	BatchFileLimit int
	// BatchByteLimit flushes the queue when queued content reaches this
	// size. Zero selects DefaultBatchByteLimit.
	BatchByteLimit int64
	// Comparator gates writes; required.
	Comparator *Comparator
	// Formatter formats batched content before the gated writes. Nil
	// disables formatting.
	Formatter Formatter
	Logger    *zap.Logger
}

type queuedFile struct {
	relPath string
	content string
}

// FileManager writes generated files under a base directory with semantic
// skip logic and batched external formatting. It is used by a single
// sequential run; it is not safe for concurrent use.
type FileManager struct {
	cfg Config

	queue       []queuedFile
	queuedBytes int64
	completed   []WriteResult
	warnings    []string
}

// NewFileManager creates a file manager. A nil logger is replaced with a
// no-op logger.
func NewFileManager(cfg Config) *FileManager {
	if cfg.BatchFileLimit <= 0 {
		cfg.BatchFileLimit = DefaultBatchFileLimit
	}
	if cfg.BatchByteLimit <= 0 {
		cfg.BatchByteLimit = DefaultBatchByteLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &FileManager{cfg: cfg}
}

// WriteWithFormatting writes content at relPath under the base directory.
// format selects the external formatter pass; deferWrite queues the file
// for batch formatting instead of flushing immediately. Queued entries
// report ActionQueued here and their final outcome from ProcessBatch.
func (m *FileManager) WriteWithFormatting(ctx context.Context, relPath, content string, format, deferWrite bool) (WriteResult, error) {
	abs, err := m.resolve(relPath)
	if err != nil {
		return WriteResult{Path: relPath, Action: ActionSkippedDryRun, Err: err}, err
	}

	if !format || m.cfg.Formatter == nil {
		return m.gatedWrite(relPath, abs, content), nil
	}

	m.queue = append(m.queue, queuedFile{relPath: relPath, content: content})
	m.queuedBytes += int64(len(content))

	if !deferWrite {
		results, err := m.flush(ctx)
		if err != nil {
			return WriteResult{Path: relPath, Err: err}, err
		}
		// Earlier deferred entries flushed alongside this one surface via
		// ProcessBatch; this call reports only its own file.
		m.completed = append(m.completed, results[:len(results)-1]...)
		return results[len(results)-1], nil
	}

	if len(m.queue) >= m.cfg.BatchFileLimit || m.queuedBytes >= m.cfg.BatchByteLimit {
		results, err := m.flush(ctx)
		if err != nil {
			return WriteResult{Path: relPath, Err: err}, err
		}
		m.completed = append(m.completed, results...)
	}

	return WriteResult{Path: relPath, AbsPath: abs, Action: ActionQueued, Bytes: len(content)}, nil
}

// ProcessBatch flushes any queued writes and returns every result
// completed since the previous call, including results from automatic
// threshold flushes. The error covers batch-level failures (scratch
// directory creation); per-file failures ride on the individual results.
func (m *FileManager) ProcessBatch(ctx context.Context) ([]WriteResult, error) {
	if len(m.queue) > 0 {
		results, err := m.flush(ctx)
		if err != nil {
			return nil, err
		}
		m.completed = append(m.completed, results...)
	}

	done := m.completed
	m.completed = nil
	return done, nil
}

// QueueLen returns the number of writes waiting in the batch queue.
func (m *FileManager) QueueLen() int {
	return len(m.queue)
}

// TakeWarnings drains accumulated non-fatal conditions (formatter
// fallbacks) for the run report.
func (m *FileManager) TakeWarnings() []string {
	w := m.warnings
	m.warnings = nil
	return w
}

// flush writes the queue to a scratch directory, runs the formatter once
// over the whole directory, reads the formatted content back, and
// performs the semantic-gated writes. Formatter failure falls back to the
// unformatted content: formatting is cosmetic, a broken formatter must
// not fail the run.
func (m *FileManager) flush(ctx context.Context) ([]WriteResult, error) {
	queue := m.queue
	m.queue = nil
	m.queuedBytes = 0

	contents := make(map[string]string, len(queue))
	for _, q := range queue {
		contents[q.relPath] = q.content
	}

	if m.cfg.Formatter != nil && !m.cfg.DryRun {
		formatted, err := m.formatBatch(ctx, queue)
		if err != nil {
			m.warnings = append(m.warnings, fmt.Sprintf("formatter unavailable, wrote unformatted output: %v", err))
			m.cfg.Logger.Warn("formatter failed, falling back to unformatted content", zap.Error(err))
		} else {
			contents = formatted
		}
	}

	results := make([]WriteResult, 0, len(queue))
	for _, q := range queue {
		abs, err := m.resolve(q.relPath)
		if err != nil {
			results = append(results, WriteResult{Path: q.relPath, Err: err})
			continue
		}
		content, ok := contents[q.relPath]
		if !ok {
			content = q.content
		}
		results = append(results, m.gatedWrite(q.relPath, abs, content))
	}
	return results, nil
}

// formatBatch writes queued contents into a temp directory, formats the
// directory in one external invocation, and reads everything back.
func (m *FileManager) formatBatch(ctx context.Context, queue []queuedFile) (map[string]string, error) {
	scratch, err := os.MkdirTemp("", "zerogen-format-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	for _, q := range queue {
		path := filepath.Join(scratch, q.relPath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(q.content), 0o644); err != nil {
			return nil, err
		}
	}

	if err := m.cfg.Formatter.FormatDir(ctx, scratch); err != nil {
		return nil, err
	}

	formatted := make(map[string]string, len(queue))
	for _, q := range queue {
		raw, err := os.ReadFile(filepath.Join(scratch, q.relPath))
		if err != nil {
			return nil, err
		}
		formatted[q.relPath] = string(raw)
	}
	return formatted, nil
}

// gatedWrite performs the semantic-diff-gated write for one file.
func (m *FileManager) gatedWrite(relPath, abs, content string) WriteResult {
	result := WriteResult{Path: relPath, AbsPath: abs, Bytes: len(content)}

	if !m.cfg.Force {
		if existing, err := os.ReadFile(abs); err == nil {
			if m.cfg.Comparator.Identical(string(existing), content) {
				result.Action = ActionIdentical
				m.cfg.Logger.Debug("content unchanged, skipping write", zap.String("path", relPath))
				return result
			}
		}
	}

	if m.cfg.DryRun {
		result.Action = ActionSkippedDryRun
		return result
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		result.Err = fmt.Errorf("creating output directory for %s: %w", relPath, err)
		return result
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		result.Err = fmt.Errorf("writing %s: %w", relPath, err)
		return result
	}

	result.Action = ActionWritten
	m.cfg.Logger.Debug("file written", zap.String("path", relPath), zap.Int("bytes", result.Bytes))
	return result
}

// resolve joins relPath under the base directory and rejects paths that
// escape it. Generated paths come from table names, which are external
// input; path traversal out of the output tree must be impossible.
func (m *FileManager) resolve(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path %s must be relative to the output directory", relPath)
	}

	full := filepath.Clean(filepath.Join(m.cfg.BaseDir, relPath))
	base := filepath.Clean(m.cfg.BaseDir) + string(filepath.Separator)
	if !strings.HasPrefix(full+string(filepath.Separator), base) {
		return "", fmt.Errorf("path %s escapes the output directory", relPath)
	}
	return full, nil
}
