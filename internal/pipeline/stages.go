package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/generate/writer"
)

// ValidateStage checks that the context carries everything downstream
// stages assume: a named table with a columns list, resolved against an
// extracted schema. It stamps the context so later stages can gate on it.
type ValidateStage struct{}

// NewValidateStage creates the validation stage.
func NewValidateStage() *ValidateStage { return &ValidateStage{} }

func (s *ValidateStage) Name() string  { return "validate" }
func (s *ValidateStage) Priority() int { return 10 }

func (s *ValidateStage) CanRun(gctx *generate.Context) bool { return gctx != nil }

func (s *ValidateStage) Process(ctx context.Context, gctx *generate.Context) (*generate.Context, error) {
	switch {
	case gctx.Table == nil:
		return nil, fail(s, CategoryValidation, false, gctx, fmt.Errorf("context has no table"))
	case gctx.Table.Name == "":
		return nil, fail(s, CategoryValidation, false, gctx, fmt.Errorf("table has no name"))
	case gctx.Table.Columns == nil:
		return nil, fail(s, CategoryValidation, false, gctx, fmt.Errorf("table %s has no columns list", gctx.Table.Name))
	case gctx.Schema == nil:
		return nil, fail(s, CategoryValidation, false, gctx, fmt.Errorf("context has no schema data"))
	}
	return gctx.WithMetadata(generate.MetaSchemaExtracted, true), nil
}

// RelationshipsStage resolves the table's relationship fragments and stores
// them on the context for the render stage.
type RelationshipsStage struct{}

// NewRelationshipsStage creates the relationship stage.
func NewRelationshipsStage() *RelationshipsStage { return &RelationshipsStage{} }

func (s *RelationshipsStage) Name() string  { return "relationships" }
func (s *RelationshipsStage) Priority() int { return 20 }

func (s *RelationshipsStage) CanRun(gctx *generate.Context) bool {
	return gctx != nil && gctx.MetaBool(generate.MetaSchemaExtracted)
}

func (s *RelationshipsStage) Process(ctx context.Context, gctx *generate.Context) (*generate.Context, error) {
	return gctx.WithMetadata(generate.MetaRelationships, generate.Fragments(gctx)), nil
}

// RenderStage renders every generated file for the table and stores the
// path-keyed content on the context. It shares the legacy coordinator's
// renderer, so both execution paths emit identical bytes.
type RenderStage struct {
	renderer *generate.ModelRenderer
}

// NewRenderStage creates the render stage around the shared renderer.
func NewRenderStage(renderer *generate.ModelRenderer) *RenderStage {
	return &RenderStage{renderer: renderer}
}

func (s *RenderStage) Name() string  { return "render" }
func (s *RenderStage) Priority() int { return 30 }

func (s *RenderStage) CanRun(gctx *generate.Context) bool {
	if gctx == nil {
		return false
	}
	_, ok := gctx.Fragments()
	return ok
}

func (s *RenderStage) Process(ctx context.Context, gctx *generate.Context) (*generate.Context, error) {
	frags, _ := gctx.Fragments()
	files, err := s.renderer.RenderTable(gctx, frags)
	if err != nil {
		return nil, fail(s, CategoryRender, false, gctx, err)
	}
	return gctx.WithMetadata(generate.MetaGeneratedContent, files), nil
}

// WriteStage hands rendered content to the file manager. Writes are queued
// for batch formatting unless the run skips formatting; the final per-file
// actions are resolved by the runner after ProcessBatch.
type WriteStage struct {
	files *writer.FileManager
}

// NewWriteStage creates the write stage around the file manager.
func NewWriteStage(files *writer.FileManager) *WriteStage {
	return &WriteStage{files: files}
}

func (s *WriteStage) Name() string  { return "write" }
func (s *WriteStage) Priority() int { return 40 }

func (s *WriteStage) CanRun(gctx *generate.Context) bool {
	return gctx != nil && len(gctx.GeneratedContent()) > 0
}

func (s *WriteStage) Process(ctx context.Context, gctx *generate.Context) (*generate.Context, error) {
	content := gctx.GeneratedContent()
	format := !gctx.Options.SkipFormatting

	paths := make([]string, 0, len(content))
	for p := range content {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	reports := make([]generate.FileReport, 0, len(paths))
	for _, relPath := range paths {
		text := content[relPath]
		wres, err := s.files.WriteWithFormatting(ctx, relPath, text, format, format)
		if err != nil {
			return nil, fail(s, CategoryIO, true, gctx, fmt.Errorf("write %s: %w", relPath, err))
		}
		reports = append(reports, generate.FileReport{
			Path:   relPath,
			Action: wres.Action,
			Bytes:  len(text),
			Hash:   generate.ContentHash(text),
		})
	}

	return gctx.WithMetadata(generate.MetaFilesWritten, reports), nil
}
