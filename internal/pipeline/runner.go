package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/generate/writer"
	"github.com/zero-models/zerogen/internal/schema"
)

// Runner drives the staged pipeline across a whole run: extract and filter
// the schema once, execute the pipeline per table, resolve the deferred
// batch writes, and aggregate a result. Run-level behavior matches the
// legacy coordinator exactly; only the per-table execution model differs.
type Runner struct {
	schemas  *schema.SchemaService
	pipe     *Pipeline
	renderer *generate.ModelRenderer
	files    *writer.FileManager
	poly     *generate.PolymorphicConfig
	logger   *zap.Logger
	genIndex bool
	now      func() time.Time
}

// RunnerConfig wires the runner's collaborators explicitly.
type RunnerConfig struct {
	Schemas       *schema.SchemaService
	Pipeline      *Pipeline
	Renderer      *generate.ModelRenderer
	Files         *writer.FileManager
	Polymorphic   *generate.PolymorphicConfig
	Logger        *zap.Logger
	GenerateIndex bool
	// Now is injectable so tests pin run timing; nil selects time.Now.
	Now func() time.Time
}

// NewRunner creates the pipeline runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		schemas:  cfg.Schemas,
		pipe:     cfg.Pipeline,
		renderer: cfg.Renderer,
		files:    cfg.Files,
		poly:     cfg.Polymorphic,
		logger:   cfg.Logger,
		genIndex: cfg.GenerateIndex,
		now:      cfg.Now,
	}
}

// Run generates model files for every table surviving the filter. Schema
// extraction or validation failure aborts the run; per-table stage failures
// are recorded and generation continues with the remaining tables.
func (r *Runner) Run(ctx context.Context, opts generate.Options) (*generate.Result, error) {
	res := generate.NewResult("pipeline", r.now())

	filter := schema.FilterOptions{
		ExcludeTables:  opts.ExcludeTables,
		IncludeOnly:    opts.Tables,
		SkipValidation: opts.SkipValidation,
	}

	extractStart := r.now()
	data, err := r.schemas.ExtractFilteredSchema(ctx, filter)
	if err != nil {
		return nil, err
	}
	res.Stats.ExtractElapsed = r.now().Sub(extractStart)

	for _, name := range opts.Tables {
		if _, ok := data.Table(name); !ok {
			res.AddError(name, &schema.TableNotFoundError{Name: name, Available: data.TableNames()})
		}
	}

	if len(data.Tables) == 0 {
		res.AddWarning("no tables to generate after filtering")
		return res.Finalize(r.now()), nil
	}

	r.logger.Info("starting pipeline run",
		zap.String("run_id", res.RunID),
		zap.Strings("stages", r.pipe.StageNames()),
		zap.Int("tables", len(data.Tables)),
		zap.Bool("dry_run", opts.DryRun))

	writeStart := r.now()
	pending := make([]generate.ModelReport, 0, len(data.Tables))
	var generated []string

	for i := range data.Tables {
		table := &data.Tables[i]
		gctx := generate.NewContext(table, data, r.poly, opts)

		out, err := r.pipe.Execute(ctx, gctx)
		if err != nil {
			res.AddError(table.Name, err)
			continue
		}

		report := generate.ModelReport{
			Table:    table.Name,
			Model:    generate.ModelName(table.Name),
			Patterns: patternNames(data, table.Name),
		}
		if files, ok := out.Metadata[generate.MetaFilesWritten].([]generate.FileReport); ok {
			report.Files = files
		}
		pending = append(pending, report)
		generated = append(generated, table.Name)
	}

	var indexReport generate.FileReport
	haveIndex := false
	if r.genIndex && len(generated) > 0 {
		indexReport, err = r.writeIndex(ctx, generated, !opts.SkipFormatting)
		if err != nil {
			res.AddError("index", err)
		} else {
			haveIndex = true
		}
	}

	outcomes := make(map[string]writer.WriteResult)
	batch, err := r.files.ProcessBatch(ctx)
	if err != nil {
		res.AddError("batch", err)
	}
	for _, wr := range batch {
		outcomes[wr.Path] = wr
	}

	for _, report := range pending {
		for i := range report.Files {
			f := &report.Files[i]
			wr, ok := outcomes[f.Path]
			if !ok {
				continue
			}
			f.Action = wr.Action
			if wr.Err != nil {
				res.AddError(report.Table, fmt.Errorf("writing %s: %w", f.Path, wr.Err))
			}
		}
		res.AddModel(report)
	}
	if haveIndex {
		if wr, ok := outcomes[indexReport.Path]; ok {
			indexReport.Action = wr.Action
			if wr.Err != nil {
				res.AddError("index", fmt.Errorf("writing %s: %w", indexReport.Path, wr.Err))
			}
		}
		res.AddFile(indexReport)
	}
	res.Stats.WriteElapsed = r.now().Sub(writeStart)

	for _, w := range r.files.TakeWarnings() {
		res.AddWarning("%s", w)
	}
	if unknown := r.renderer.Mapper().UnknownTypes(); len(unknown) > 0 {
		res.AddWarning("unrecognized column types mapped to sentinel: %s", strings.Join(unknown, ", "))
	}

	res.Finalize(r.now())
	r.logger.Info("pipeline run finished",
		zap.String("run_id", res.RunID),
		zap.Bool("success", res.Success),
		zap.Int("models", len(res.Models)),
		zap.Int("written", res.Stats.FilesWritten),
		zap.Duration("elapsed", res.Stats.Elapsed))
	return res, nil
}

// RunTable generates a single table's files through the pipeline.
func (r *Runner) RunTable(ctx context.Context, table string, opts generate.Options) (*generate.Result, error) {
	opts.Tables = []string{table}
	return r.Run(ctx, opts)
}

func (r *Runner) writeIndex(ctx context.Context, tables []string, format bool) (generate.FileReport, error) {
	content, err := r.renderer.RenderIndex(tables)
	if err != nil {
		return generate.FileReport{}, fmt.Errorf("render index: %w", err)
	}
	relPath := r.renderer.IndexPath()
	wres, err := r.files.WriteWithFormatting(ctx, relPath, content, format, format)
	if err != nil {
		return generate.FileReport{}, fmt.Errorf("write %s: %w", relPath, err)
	}
	return generate.FileReport{
		Path:   relPath,
		Action: wres.Action,
		Bytes:  len(content),
		Hash:   generate.ContentHash(content),
	}, nil
}

func patternNames(data *schema.SchemaData, table string) []string {
	if data.Patterns == nil {
		return nil
	}
	names := make([]string, 0, len(data.Patterns[table]))
	for _, p := range data.Patterns[table] {
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		return nil
	}
	return names
}
