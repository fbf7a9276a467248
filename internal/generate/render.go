package generate

import (
	"fmt"
	"sort"
	"time"

	"github.com/zero-models/zerogen/internal/generate/templates"
)

// Fragments computes the relationship fragments for the context's table.
// Relationship targets absent from the filtered schema are treated as
// excluded: filtering already removed excluded tables, so a missing
// target and an excluded one look the same here.
func Fragments(gctx *Context) RelationshipFragments {
	var missing []string
	if gctx.Schema != nil {
		for _, rel := range gctx.Relationships {
			if rel.TargetTable == "" {
				continue
			}
			if _, ok := gctx.Schema.Table(rel.TargetTable); !ok {
				missing = append(missing, rel.TargetTable)
			}
		}
	}
	return NewRelationshipProcessor(gctx.Table.Name, gctx.Relationships, missing).ProcessAll()
}

// ModelRenderer renders every generated file for one table. The legacy
// coordinator and the staged pipeline both delegate here, so the two
// paths emit identical bytes and migration comparisons measure
// orchestration differences, not rendering drift.
type ModelRenderer struct {
	templates *templates.Renderer
	mapper    *TypeMapper
	layout    Layout
	fields    map[string]string
	now       func() time.Time
}

// RendererConfig collects the collaborators a ModelRenderer needs.
type RendererConfig struct {
	Templates *templates.Renderer
	Mapper    *TypeMapper
	Layout    Layout
	// FieldMappings renames column-derived properties: column name to
	// property name, bypassing the inflection rules.
	FieldMappings map[string]string
	// Now is injectable so tests pin the generated-at header; nil selects
	// time.Now.
	Now func() time.Time
}

// NewModelRenderer creates a renderer from its configuration.
func NewModelRenderer(cfg RendererConfig) *ModelRenderer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ModelRenderer{
		templates: cfg.Templates,
		mapper:    cfg.Mapper,
		layout:    cfg.Layout.normalized(),
		fields:    cfg.FieldMappings,
		now:       cfg.Now,
	}
}

// Mapper exposes the type mapper so callers can collect unknown-type
// warnings after a run.
func (r *ModelRenderer) Mapper() *TypeMapper { return r.mapper }

// RenderTable produces the generated files for the context's table, keyed
// by output-relative path: the data interface, the model class, and the
// reactive model class.
func (r *ModelRenderer) RenderTable(gctx *Context, frags RelationshipFragments) (map[string]string, error) {
	table := gctx.Table
	if table == nil {
		return nil, fmt.Errorf("render: context has no table")
	}

	mc := r.modelContext(gctx, frags)

	steps := []struct {
		template string
		path     string
	}{
		{templates.TemplateDataInterface, r.layout.DataFile(table.Name)},
		{templates.TemplateModel, r.layout.ModelFile(table.Name)},
		{templates.TemplateReactiveModel, r.layout.ReactiveFile(table.Name)},
	}

	files := make(map[string]string, len(steps))
	for _, step := range steps {
		out, err := r.templates.Render(step.template, mc)
		if err != nil {
			return nil, err
		}
		files[step.path] = out
	}
	return files, nil
}

// IndexPath returns the output-relative path of the barrel file.
func (r *ModelRenderer) IndexPath() string { return r.layout.IndexFile() }

// RenderIndex renders the barrel file re-exporting every generated model.
// Entries are sorted by file base so output does not depend on extraction
// order.
func (r *ModelRenderer) RenderIndex(tables []string) (string, error) {
	entries := make([]templates.IndexEntry, len(tables))
	for i, t := range tables {
		entries[i] = templates.IndexEntry{
			ModelName:         ModelName(t),
			ReactiveModelName: ReactiveModelName(t),
			DataInterfaceName: DataInterfaceName(t),
			FileBase:          FileBase(t),
			ModelImport:       r.layout.IndexModelImport(t),
			ReactiveImport:    r.layout.IndexReactiveImport(t),
			DataImport:        r.layout.IndexDataImport(t),
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FileBase < entries[j].FileBase })

	return r.templates.Render(templates.TemplateIndex, templates.IndexContext{
		GeneratedAt: r.timestamp(),
		Models:      entries,
	})
}

func (r *ModelRenderer) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func (r *ModelRenderer) modelContext(gctx *Context, frags RelationshipFragments) templates.ModelContext {
	table := gctx.Table

	props := make([]templates.Property, 0, len(table.Columns))
	for i := range table.Columns {
		col := &table.Columns[i]
		tsType := r.mapper.MapColumn(col)
		if union, ok := gctx.Polymorphic.TypeColumnUnion(table.Name, col.Name); ok {
			tsType = union
		}
		name := PropertyName(col.Name)
		if mapped, ok := r.fields[col.Name]; ok && mapped != "" {
			name = mapped
		}
		props = append(props, templates.Property{
			Name:     name,
			Type:     tsType,
			Optional: col.Nullable,
			Column:   col.Name,
			Comment:  col.Comment,
		})
	}

	return templates.ModelContext{
		Table:                  table.Name,
		ModelName:              ModelName(table.Name),
		ReactiveModelName:      ReactiveModelName(table.Name),
		DataInterfaceName:      DataInterfaceName(table.Name),
		FileBase:               FileBase(table.Name),
		GeneratedAt:            r.timestamp(),
		DataImport:             r.layout.DataImport(table.Name),
		ModelImport:            r.layout.ModelImport(table.Name),
		ReactiveDataImport:     r.layout.ReactiveDataImport(table.Name),
		Properties:             props,
		RelationshipProperties: frags.Properties,
		Imports:                frags.Imports,
		ConstructorExclusions:  frags.ConstructorExclusions,
		Documentation:          r.docLines(gctx, frags),
		Registration:           frags.Registration,
		Patterns:               patternNames(gctx),
	}
}

// docLines combines relationship documentation with lines for polymorphic
// associations, which carry no single target table and so never appear in
// the processor's output.
func (r *ModelRenderer) docLines(gctx *Context, frags RelationshipFragments) []string {
	docs := append([]string(nil), frags.Documentation...)
	for _, rel := range gctx.Relationships {
		if !rel.Polymorphic || rel.Name == "" {
			continue
		}
		if union, ok := gctx.Polymorphic.UnionType(gctx.Table.Name, rel.Name); ok {
			docs = append(docs, fmt.Sprintf("%s: %s polymorphic (%s)", rel.Name, rel.Kind, union))
		}
	}
	return docs
}

func patternNames(gctx *Context) []string {
	if gctx.Schema == nil || gctx.Schema.Patterns == nil {
		return nil
	}
	patterns := gctx.Schema.Patterns[gctx.Table.Name]
	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.Name)
	}
	return names
}
