// Package pipeline is the staged replacement for the legacy generation
// coordinator. A pipeline is an explicit ordered list of stages, each a
// small transformation on a per-table generation context. Stages that
// cannot run against the current context are skipped; stage failures carry
// structured category and recoverability metadata instead of aborting the
// process.
package pipeline

import (
	"context"
	"fmt"

	"github.com/zero-models/zerogen/internal/generate"
)

// Category classifies a stage failure for error handling decisions.
type Category string

const (
	// CategoryValidation marks context or schema shape problems.
	CategoryValidation Category = "validation"
	// CategoryIO marks filesystem failures.
	CategoryIO Category = "io"
	// CategoryRender marks template rendering failures.
	CategoryRender Category = "render"
	// CategoryUnknown marks failures a stage did not classify.
	CategoryUnknown Category = "unknown"
)

// Stage is one step of the generation pipeline. Priority documents where a
// stage conceptually belongs in the flow; execution order is always the
// explicit slice the pipeline was constructed with.
type Stage interface {
	Name() string
	Priority() int
	// CanRun reports whether the stage's inputs are present on the context.
	// A stage that cannot run is skipped, not failed.
	CanRun(gctx *generate.Context) bool
	// Process returns an updated copy of the context. The input context is
	// never mutated.
	Process(ctx context.Context, gctx *generate.Context) (*generate.Context, error)
}

// StageError is the structured failure a pipeline surfaces: which stage
// broke, how the failure classifies, whether retrying the run could help,
// and a snapshot of the context at failure time for diagnostics.
type StageError struct {
	Stage       string
	Category    Category
	Recoverable bool
	Snapshot    *generate.Context
	Err         error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Category, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *StageError) Unwrap() error { return e.Err }

// fail builds a StageError with a snapshot of the failing context.
func fail(stage Stage, cat Category, recoverable bool, gctx *generate.Context, err error) *StageError {
	var snap *generate.Context
	if gctx != nil {
		snap = gctx.Clone()
	}
	return &StageError{
		Stage:       stage.Name(),
		Category:    cat,
		Recoverable: recoverable,
		Snapshot:    snap,
		Err:         err,
	}
}
