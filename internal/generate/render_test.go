package generate

import (
	"strings"
	"testing"
	"time"

	"github.com/zero-models/zerogen/internal/generate/templates"
	"github.com/zero-models/zerogen/internal/schema"
)

func renderFixture() *schema.SchemaData {
	return &schema.SchemaData{
		Tables: []schema.Table{
			{
				Name: "posts",
				Columns: []schema.Column{
					{Name: "id", Type: "bigint"},
					{Name: "title", Type: "string"},
					{Name: "published_at", Type: "datetime", Nullable: true},
					{Name: "author_id", Type: "bigint"},
					{Name: "status", Type: "string", Enum: true, EnumValues: []string{"draft", "published"}},
				},
			},
			{
				Name: "users",
				Columns: []schema.Column{
					{Name: "id", Type: "bigint"},
					{Name: "email", Type: "string"},
				},
			},
			{
				Name: "notes",
				Columns: []schema.Column{
					{Name: "id", Type: "bigint"},
					{Name: "entity_type", Type: "string"},
					{Name: "entity_id", Type: "bigint"},
					{Name: "payload", Type: "hstore"},
				},
			},
		},
		Relationships: []schema.Relationship{
			{Table: "posts", Kind: schema.BelongsTo, TargetTable: "users", Name: "author", ForeignKey: "author_id"},
			{Table: "posts", Kind: schema.HasMany, TargetTable: "comments", Name: "comments"},
			{Table: "users", Kind: schema.HasMany, TargetTable: "posts", Name: "posts", ForeignKey: "author_id"},
			{Table: "notes", Kind: schema.BelongsTo, Name: "entity", Polymorphic: true},
		},
		Patterns: map[string][]schema.Pattern{
			"posts": {{Name: "timestamps", Columns: []string{"created_at", "updated_at"}}},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
}

func newTestRenderer() *ModelRenderer {
	return NewModelRenderer(RendererConfig{
		Templates: templates.NewRenderer(""),
		Mapper:    NewTypeMapper(nil, ""),
		Now:       fixedClock,
	})
}

func renderContext(t *testing.T, data *schema.SchemaData, table string, poly *PolymorphicConfig) *Context {
	t.Helper()
	tbl, ok := data.Table(table)
	if !ok {
		t.Fatalf("fixture table %s missing", table)
	}
	return NewContext(tbl, data, poly, Options{})
}

func TestRenderTable(t *testing.T) {
	data := renderFixture()
	gctx := renderContext(t, data, "posts", nil)
	r := newTestRenderer()

	files, err := r.RenderTable(gctx, Fragments(gctx))
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}

	for _, path := range []string{"types/post-data.ts", "post.ts", "reactive-post.ts"} {
		if _, ok := files[path]; !ok {
			t.Errorf("missing output file %s (have %v)", path, len(files))
		}
	}

	iface := files["types/post-data.ts"]
	for _, want := range []string{
		"// Generated at 2026-08-21T10:00:00Z",
		"export interface PostData {",
		"  id: number;",
		"  publishedAt?: string | number;",
		"  status: 'draft' | 'published';",
	} {
		if !strings.Contains(iface, want) {
			t.Errorf("data interface missing %q\n%s", want, iface)
		}
	}

	model := files["post.ts"]
	for _, want := range []string{
		"// Source table: posts",
		"// Patterns: timestamps",
		"import type { PostData } from './types/post-data';",
		"import { User } from './user';",
		"export class Post extends Model {",
		"static readonly tableName = 'posts';",
		"  author?: User;",
		"this.assign(data, ['author']);",
		"author: { kind: 'belongs_to', model: () => User, foreignKey: 'author_id' }",
	} {
		if !strings.Contains(model, want) {
			t.Errorf("model missing %q\n%s", want, model)
		}
	}

	// comments targets a table absent from the filtered schema; nothing of
	// it may leak into the output.
	if strings.Contains(model, "Comment") {
		t.Errorf("model references skipped relationship target:\n%s", model)
	}

	reactive := files["reactive-post.ts"]
	for _, want := range []string{
		"import { Post } from './post';",
		"import type { PostData } from './types/post-data';",
		"export class ReactivePost extends Post {",
	} {
		if !strings.Contains(reactive, want) {
			t.Errorf("reactive model missing %q\n%s", want, reactive)
		}
	}
}

func TestRenderTableCustomLayout(t *testing.T) {
	data := renderFixture()
	gctx := renderContext(t, data, "posts", nil)
	r := NewModelRenderer(RendererConfig{
		Templates: templates.NewRenderer(""),
		Mapper:    NewTypeMapper(nil, ""),
		Layout:    Layout{TypesDir: "types", ModelsDir: "models", ReactiveDir: "reactive"},
		Now:       fixedClock,
	})

	files, err := r.RenderTable(gctx, Fragments(gctx))
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}

	for _, path := range []string{"types/post-data.ts", "models/post.ts", "reactive/reactive-post.ts"} {
		if _, ok := files[path]; !ok {
			t.Errorf("missing output file %s", path)
		}
	}

	model := files["models/post.ts"]
	if !strings.Contains(model, "import type { PostData } from '../types/post-data';") {
		t.Errorf("model data import not layout-aware:\n%s", model)
	}

	reactive := files["reactive/reactive-post.ts"]
	if !strings.Contains(reactive, "import { Post } from '../models/post';") {
		t.Errorf("reactive model import not layout-aware:\n%s", reactive)
	}
	if !strings.Contains(reactive, "import type { PostData } from '../types/post-data';") {
		t.Errorf("reactive data import not layout-aware:\n%s", reactive)
	}
}

func TestRenderTablePolymorphicEnrichment(t *testing.T) {
	data := renderFixture()
	poly := &PolymorphicConfig{
		Associations: map[string]PolymorphicAssociation{
			"notes.entity": {
				TypeColumn:      "entity_type",
				IDColumn:        "entity_id",
				DiscoveredTypes: []string{"Client", "Job"},
			},
		},
	}
	gctx := renderContext(t, data, "notes", poly)
	r := newTestRenderer()

	files, err := r.RenderTable(gctx, Fragments(gctx))
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}

	iface := files["types/note-data.ts"]
	if !strings.Contains(iface, "entityType: 'Client' | 'Job';") {
		t.Errorf("type column not enriched:\n%s", iface)
	}
	if !strings.Contains(iface, "entityId: number;") {
		t.Errorf("id column should keep its base mapping:\n%s", iface)
	}

	model := files["note.ts"]
	if !strings.Contains(model, "entity: belongs_to polymorphic ('Client' | 'Job')") {
		t.Errorf("polymorphic doc line missing:\n%s", model)
	}
}

func TestRenderTableWithoutPolymorphicConfig(t *testing.T) {
	data := renderFixture()
	gctx := renderContext(t, data, "notes", nil)
	r := newTestRenderer()

	files, err := r.RenderTable(gctx, Fragments(gctx))
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}

	// No enrichment: the type column keeps its plain mapping.
	if !strings.Contains(files["types/note-data.ts"], "entityType: string;") {
		t.Errorf("type column should degrade to string:\n%s", files["types/note-data.ts"])
	}

	unknown := r.Mapper().UnknownTypes()
	if len(unknown) != 1 || unknown[0] != "hstore" {
		t.Errorf("UnknownTypes = %v, want [hstore]", unknown)
	}
}

func TestRenderTableFieldMappings(t *testing.T) {
	data := renderFixture()
	gctx := renderContext(t, data, "posts", nil)
	r := NewModelRenderer(RendererConfig{
		Templates:     templates.NewRenderer(""),
		Mapper:        NewTypeMapper(nil, ""),
		FieldMappings: map[string]string{"published_at": "publishedOn"},
		Now:           fixedClock,
	})

	files, err := r.RenderTable(gctx, Fragments(gctx))
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}

	iface := files["types/post-data.ts"]
	if !strings.Contains(iface, "publishedOn?: string | number;") {
		t.Errorf("field mapping not applied:\n%s", iface)
	}
	if strings.Contains(iface, "publishedAt") {
		t.Errorf("inflected name should be replaced:\n%s", iface)
	}
}

func TestRenderIndexSorted(t *testing.T) {
	r := newTestRenderer()

	got, err := r.RenderIndex([]string{"users", "posts"})
	if err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}

	want := `// Code generated by zerogen. DO NOT EDIT.
// Generated at 2026-08-21T10:00:00Z

export { Post } from './post';
export { ReactivePost } from './reactive-post';
export type { PostData } from './types/post-data';
export { User } from './user';
export { ReactiveUser } from './reactive-user';
export type { UserData } from './types/user-data';
`
	if got != want {
		t.Errorf("index mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}
