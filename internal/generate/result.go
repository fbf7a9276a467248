package generate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zero-models/zerogen/internal/generate/writer"
)

// FileReport describes one generated file in the run report. Hash is the
// SHA-256 of the rendered content before writing; the migration output
// comparator uses it to detect behavioral drift between execution paths
// without retaining full file bodies.
type FileReport struct {
	Path   string        `json:"path"`
	Action writer.Action `json:"action"`
	Bytes  int           `json:"bytes"`
	Hash   string        `json:"hash"`
}

// ModelReport describes one generated model and its file set.
type ModelReport struct {
	Table    string       `json:"table"`
	Model    string       `json:"model"`
	Files    []FileReport `json:"files"`
	Patterns []string     `json:"patterns,omitempty"`
}

// RunStats aggregates timing and counts for a run.
type RunStats struct {
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
	ExtractElapsed time.Duration `json:"extract_elapsed"`
	RenderElapsed  time.Duration `json:"render_elapsed"`
	WriteElapsed   time.Duration `json:"write_elapsed"`
	Tables         int           `json:"tables"`
	FilesWritten   int           `json:"files_written"`
	FilesIdentical int           `json:"files_identical"`
	FilesSkipped   int           `json:"files_skipped"`
}

// Result is the per-run aggregate returned to the CLI layer. It is built
// once per invocation and immutable after Finalize.
type Result struct {
	RunID    string        `json:"run_id"`
	Path     string        `json:"path"` // "legacy" or "pipeline"
	Success  bool          `json:"success"`
	Models   []ModelReport `json:"models"`
	Files    []FileReport  `json:"files"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Stats    RunStats      `json:"stats"`
}

// NewResult starts a run report for the named execution path.
func NewResult(path string, startedAt time.Time) *Result {
	return &Result{
		RunID: uuid.NewString(),
		Path:  path,
		Stats: RunStats{StartedAt: startedAt},
	}
}

// AddModel appends a model report and folds its files into the run totals.
func (r *Result) AddModel(m ModelReport) {
	r.Models = append(r.Models, m)
	for _, f := range m.Files {
		r.AddFile(f)
	}
}

// AddFile folds a standalone file (the index barrel) into the run totals.
func (r *Result) AddFile(f FileReport) {
	r.Files = append(r.Files, f)
	switch f.Action {
	case writer.ActionWritten:
		r.Stats.FilesWritten++
	case writer.ActionIdentical:
		r.Stats.FilesIdentical++
	case writer.ActionSkippedDryRun:
		r.Stats.FilesSkipped++
	}
}

// AddError records a table-scoped generation error. The run keeps going
// for remaining tables, but the result reports overall failure.
func (r *Result) AddError(table string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", table, err))
}

// AddWarning records a non-fatal condition (formatter fallback, unknown
// column types) that should surface in the summary without failing the run.
func (r *Result) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Finalize stamps the elapsed time and computes the success flag: a run
// succeeds only when no errors were recorded. Partial output with errors
// is reported as failure because a half-written generated tree carries
// stale cross-references.
func (r *Result) Finalize(finishedAt time.Time) *Result {
	r.Stats.Elapsed = finishedAt.Sub(r.Stats.StartedAt)
	r.Stats.Tables = len(r.Models)
	r.Success = len(r.Errors) == 0
	return r
}

// ContentHash returns the hex SHA-256 of rendered content, the value
// carried by FileReport.Hash.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
