package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zero-models/zerogen/internal/generate/writer"
	"github.com/zero-models/zerogen/internal/schema"
)

// Coordinator is the original single-pass orchestrator: extract and filter
// the schema once, then loop over tables sequentially, rendering and
// writing each model's file set. A table failure is recorded on the result
// and the loop continues; partial success is expected.
type Coordinator struct {
	schemas  *schema.SchemaService
	renderer *ModelRenderer
	files    *writer.FileManager
	poly     *PolymorphicConfig
	logger   *zap.Logger
	genIndex bool
	now      func() time.Time
}

// CoordinatorConfig wires the coordinator's collaborators explicitly.
// There is no service registry; the CLI layer is the single assembly
// point and everything arrives through this struct.
type CoordinatorConfig struct {
	Schemas       *schema.SchemaService
	Renderer      *ModelRenderer
	Files         *writer.FileManager
	Polymorphic   *PolymorphicConfig
	Logger        *zap.Logger
	GenerateIndex bool
	// Now is injectable so tests pin run timing; nil selects time.Now.
	Now func() time.Time
}

// NewCoordinator creates the legacy orchestrator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		schemas:  cfg.Schemas,
		renderer: cfg.Renderer,
		files:    cfg.Files,
		poly:     cfg.Polymorphic,
		logger:   cfg.Logger,
		genIndex: cfg.GenerateIndex,
		now:      cfg.Now,
	}
}

// Run generates model files for every table surviving the filter. Schema
// extraction or validation failure aborts the run; per-table failures are
// recorded and generation continues with the remaining tables.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*Result, error) {
	res := NewResult("legacy", c.now())

	filter := schema.FilterOptions{
		ExcludeTables:  opts.ExcludeTables,
		IncludeOnly:    opts.Tables,
		SkipValidation: opts.SkipValidation,
	}

	extractStart := c.now()
	data, err := c.schemas.ExtractFilteredSchema(ctx, filter)
	if err != nil {
		return nil, err
	}
	res.Stats.ExtractElapsed = c.now().Sub(extractStart)

	// Requested tables missing after filtering are per-table errors; the
	// rest of the run continues.
	for _, name := range opts.Tables {
		if _, ok := data.Table(name); !ok {
			res.AddError(name, &schema.TableNotFoundError{Name: name, Available: data.TableNames()})
		}
	}

	if len(data.Tables) == 0 {
		res.AddWarning("no tables to generate after filtering")
		return res.Finalize(c.now()), nil
	}

	c.logger.Info("starting generation",
		zap.String("run_id", res.RunID),
		zap.Int("tables", len(data.Tables)),
		zap.Bool("dry_run", opts.DryRun))

	format := !opts.SkipFormatting

	writeStart := c.now()
	pending := make([]ModelReport, 0, len(data.Tables))
	var generated []string

	for i := range data.Tables {
		table := &data.Tables[i]
		report, renderDur, err := c.generateTable(ctx, table, data, opts, format)
		res.Stats.RenderElapsed += renderDur
		if err != nil {
			res.AddError(table.Name, err)
			c.logger.Error("table generation failed",
				zap.String("table", table.Name), zap.Error(err))
			continue
		}
		pending = append(pending, report)
		generated = append(generated, table.Name)
	}

	var indexReport FileReport
	haveIndex := false
	if c.genIndex && len(generated) > 0 {
		indexReport, err = c.writeIndex(ctx, generated, format)
		if err != nil {
			res.AddError("index", err)
		} else {
			haveIndex = true
		}
	}

	// Deferred writes resolve here: one formatter pass over the whole
	// batch, then the semantic-gated writes.
	outcomes := make(map[string]writer.WriteResult)
	batch, err := c.files.ProcessBatch(ctx)
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
	res.Stats.WriteElapsed = c.now().Sub(writeStart) - res.Stats.RenderElapsed

	for _, w := range c.files.TakeWarnings() {
		res.AddWarning("%s", w)
	}
	if unknown := c.renderer.Mapper().UnknownTypes(); len(unknown) > 0 {
		res.AddWarning("unrecognized column types mapped to sentinel: %s", strings.Join(unknown, ", "))
	}

	res.Finalize(c.now())
	c.logger.Info("generation finished",
		zap.String("run_id", res.RunID),
		zap.Bool("success", res.Success),
		zap.Int("models", len(res.Models)),
		zap.Int("written", res.Stats.FilesWritten),
		zap.Int("identical", res.Stats.FilesIdentical),
		zap.Duration("elapsed", res.Stats.Elapsed))
	return res, nil
}

// RunTable generates a single table's files, the --table entry point.
func (c *Coordinator) RunTable(ctx context.Context, table string, opts Options) (*Result, error) {
	opts.Tables = []string{table}
	return c.Run(ctx, opts)
}

func (c *Coordinator) generateTable(ctx context.Context, table *schema.Table, data *schema.SchemaData, opts Options, format bool) (ModelReport, time.Duration, error) {
	gctx := NewContext(table, data, c.poly, opts)
	frags := Fragments(gctx)

	renderStart := c.now()
	files, err := c.renderer.RenderTable(gctx, frags)
	renderDur := c.now().Sub(renderStart)
	if err != nil {
		return ModelReport{}, renderDur, fmt.Errorf("render: %w", err)
	}

	report := ModelReport{
		Table:    table.Name,
		Model:    ModelName(table.Name),
		Patterns: patternNames(gctx),
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, relPath := range paths {
		content := files[relPath]
		wres, err := c.files.WriteWithFormatting(ctx, relPath, content, format, format)
		if err != nil {
			return ModelReport{}, renderDur, fmt.Errorf("write %s: %w", relPath, err)
		}
		report.Files = append(report.Files, FileReport{
			Path:   relPath,
			Action: wres.Action,
			Bytes:  len(content),
			Hash:   ContentHash(content),
		})
	}

	c.logger.Debug("generated table",
		zap.String("table", table.Name),
		zap.Int("files", len(report.Files)))

	return report, renderDur, nil
}

func (c *Coordinator) writeIndex(ctx context.Context, tables []string, format bool) (FileReport, error) {
	content, err := c.renderer.RenderIndex(tables)
	if err != nil {
		return FileReport{}, fmt.Errorf("render index: %w", err)
	}
	relPath := c.renderer.IndexPath()
	wres, err := c.files.WriteWithFormatting(ctx, relPath, content, format, format)
	if err != nil {
		return FileReport{}, fmt.Errorf("write %s: %w", relPath, err)
	}
	return FileReport{
		Path:   relPath,
		Action: wres.Action,
		Bytes:  len(content),
		Hash:   ContentHash(content),
	}, nil
}
