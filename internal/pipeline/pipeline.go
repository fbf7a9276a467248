package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/generate/writer"
)

// Pipeline executes stages in the order they were given. There is no
// runtime reordering, retry, or lazy resolution; the construction site owns
// the order and the dependency wiring.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
}

// New creates a pipeline from an explicit stage list. A nil logger is
// replaced with a no-op logger.
func New(logger *zap.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{stages: stages, logger: logger}
}

// NewGeneration builds the standard four-stage generation pipeline:
// validate, relationships, render, write.
func NewGeneration(renderer *generate.ModelRenderer, files *writer.FileManager, logger *zap.Logger) *Pipeline {
	return New(logger,
		NewValidateStage(),
		NewRelationshipsStage(),
		NewRenderStage(renderer),
		NewWriteStage(files),
	)
}

// StageNames lists the stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Execute runs the context through every stage. Stages whose CanRun
// returns false are skipped. The first failure stops execution and is
// returned as a *StageError; failures a stage did not classify are wrapped
// with the unknown category.
func (p *Pipeline) Execute(ctx context.Context, gctx *generate.Context) (*generate.Context, error) {
	current := gctx
	for _, stage := range p.stages {
		if !stage.CanRun(current) {
			p.logger.Debug("stage skipped",
				zap.String("stage", stage.Name()),
				zap.String("table", tableName(current)))
			continue
		}

		next, err := stage.Process(ctx, current)
		if err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				se = fail(stage, CategoryUnknown, false, current, err)
			}
			p.logger.Error("stage failed",
				zap.String("stage", se.Stage),
				zap.String("category", string(se.Category)),
				zap.Bool("recoverable", se.Recoverable),
				zap.String("table", tableName(current)),
				zap.Error(se.Err))
			return nil, se
		}
		current = next
	}
	return current, nil
}

func tableName(gctx *generate.Context) string {
	if gctx == nil || gctx.Table == nil {
		return ""
	}
	return gctx.Table.Name
}
