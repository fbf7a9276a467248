package benchmarks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/generate/templates"
	"github.com/zero-models/zerogen/internal/generate/writer"
	"github.com/zero-models/zerogen/internal/migration"
	"github.com/zero-models/zerogen/internal/schema"
	"github.com/zero-models/zerogen/internal/status"
)

func benchSchema() *schema.SchemaData {
	return &schema.SchemaData{
		Tables: []schema.Table{
			{Name: "users", Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "email", Type: "string"},
				{Name: "settings", Type: "jsonb", Nullable: true},
				{Name: "role", Type: "string", Enum: true, EnumValues: []string{"admin", "member"}},
				{Name: "created_at", Type: "datetime"},
				{Name: "updated_at", Type: "datetime"},
			}},
			{Name: "posts", Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "user_id", Type: "bigint"},
				{Name: "title", Type: "string"},
				{Name: "body", Type: "text", Nullable: true},
			}},
		},
		Relationships: []schema.Relationship{
			{Table: "posts", Kind: schema.BelongsTo, TargetTable: "users", Name: "user", ForeignKey: "user_id"},
			{Table: "users", Kind: schema.HasMany, TargetTable: "posts", Name: "posts"},
		},
		Patterns:    map[string][]schema.Pattern{},
		Indexes:     map[string][]schema.Index{},
		Constraints: map[string][]schema.Constraint{},
	}
}

// BenchmarkStatusHandler measures one GET /migration/status round trip
// through the chi handler, report assembly and JSON encoding included.
func BenchmarkStatusHandler(b *testing.B) {
	flags := migration.NewFeatureFlags(migration.FlagsConfig{
		Percentage:     25,
		CircuitBreaker: true,
		ErrorThreshold: 5,
	})
	stats := migration.NewMemoryStats()
	for i := 0; i < 50; i++ {
		_ = stats.RecordRun(context.Background(), migration.PathLegacy, 90*time.Millisecond, true)
		_ = stats.RecordRun(context.Background(), migration.PathPipeline, 70*time.Millisecond, true)
	}

	handler := status.NewHandler(status.Config{Flags: flags, Stats: stats})
	req := httptest.NewRequest(http.MethodGet, "/migration/status", nil)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

// BenchmarkTypeMapper measures column type mapping across the vocabulary,
// enum union construction included.
func BenchmarkTypeMapper(b *testing.B) {
	mapper := generate.NewTypeMapper(map[string]string{"citext": "string"}, "")
	cols := []schema.Column{
		{Name: "id", Type: "bigint"},
		{Name: "email", Type: "citext"},
		{Name: "settings", Type: "jsonb"},
		{Name: "role", Type: "string", Enum: true, EnumValues: []string{"admin", "member", "guest"}},
		{Name: "created_at", Type: "datetime"},
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		for j := range cols {
			mapper.MapColumn(&cols[j])
		}
	}
}

// BenchmarkComparatorIdentical measures the semantic comparison that
// decides whether a generated file actually changed. The two inputs differ
// only in their generation header, the common case on a no-op run.
func BenchmarkComparatorIdentical(b *testing.B) {
	comparator, err := writer.NewComparator(nil)
	if err != nil {
		b.Fatal(err)
	}

	prev := "// Generated by zerogen on 2026-01-01T00:00:00Z\n" +
		"export interface UserData {\n  id: number;\n  email: string;\n  role: 'admin' | 'member';\n}\n"
	next := "// Generated by zerogen on 2026-02-01T12:34:56Z\n" +
		"export interface UserData {\n  id: number;\n  email: string;\n  role: 'admin' | 'member';\n}\n"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if !comparator.Identical(prev, next) {
			b.Fatal("header-only differences must compare identical")
		}
	}
}

// BenchmarkRenderTable measures rendering all three artifacts for one
// table, relationship fragments included.
func BenchmarkRenderTable(b *testing.B) {
	data := benchSchema()
	renderer := generate.NewModelRenderer(generate.RendererConfig{
		Templates: templates.NewRenderer(""),
		Mapper:    generate.NewTypeMapper(nil, ""),
		Layout:    generate.Layout{},
	})

	table, _ := data.Table("posts")
	poly := &generate.PolymorphicConfig{Associations: map[string]generate.PolymorphicAssociation{}}
	gctx := generate.NewContext(table, data, poly, generate.Options{})
	frags := generate.NewRelationshipProcessor(table.Name, gctx.Relationships, nil).ProcessAll()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := renderer.RenderTable(gctx, frags); err != nil {
			b.Fatal(err)
		}
	}
}
