package generate

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching across package boundaries.
var (
	// ErrGenerationFailed indicates at least one table failed during a run.
	ErrGenerationFailed = errors.New("zerogen: generation failed")
	// ErrNoTables indicates filtering left nothing to generate.
	ErrNoTables = errors.New("zerogen: no tables to generate")
)

// TableError wraps a failure scoped to a single table. Runs record these
// and keep going; the aggregate result fails only at the end.
type TableError struct {
	Table string
	Phase string // "render", "relationships", "write"
	Err   error
}

// Error implements the error interface.
func (e *TableError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("generating %s (%s): %v", e.Table, e.Phase, e.Err)
	}
	return fmt.Sprintf("generating %s: %v", e.Table, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TableError) Unwrap() error { return e.Err }

// Is reports whether the target matches the sentinel for generation failures.
func (e *TableError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// NewTableError creates a TableError.
func NewTableError(table, phase string, err error) *TableError {
	return &TableError{Table: table, Phase: phase, Err: err}
}
