package commands

import (
	"strings"
	"testing"

	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/schema"
)

func TestSchemaFindings(t *testing.T) {
	data := &schema.SchemaData{
		Tables: []schema.Table{
			{Name: "users", Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "mood", Type: "string", Enum: true},
				{Name: "location", Type: "geography"},
			}},
		},
		Relationships: []schema.Relationship{
			{Table: "notes", Kind: schema.BelongsTo, Name: "notable", Polymorphic: true},
		},
	}
	poly := &generate.PolymorphicConfig{Associations: map[string]generate.PolymorphicAssociation{}}
	mapper := generate.NewTypeMapper(nil, "")

	findings := schemaFindings(data, poly, mapper)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %v", len(findings), findings)
	}

	assertFinding := func(substr string) {
		t.Helper()
		for _, f := range findings {
			if strings.Contains(f, substr) {
				return
			}
		}
		t.Errorf("no finding mentions %q in %v", substr, findings)
	}
	assertFinding("users.mood")
	assertFinding(`"geography"`)
	assertFinding("notes.notable")
}

func TestSchemaFindingsCleanSchema(t *testing.T) {
	data := &schema.SchemaData{
		Tables: []schema.Table{
			{Name: "users", Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "email", Type: "string"},
			}},
		},
		Relationships: []schema.Relationship{
			{Table: "notes", Kind: schema.BelongsTo, Name: "notable", Polymorphic: true},
		},
	}
	poly := &generate.PolymorphicConfig{Associations: map[string]generate.PolymorphicAssociation{
		"notes.notable": {TypeColumn: "notable_type", IDColumn: "notable_id", DiscoveredTypes: []string{"User"}},
	}}
	mapper := generate.NewTypeMapper(nil, "")

	if findings := schemaFindings(data, poly, mapper); len(findings) != 0 {
		t.Errorf("expected no findings, got %v", findings)
	}
}

func TestSchemaFindingsTypeOverrideSilencesUnknown(t *testing.T) {
	data := &schema.SchemaData{
		Tables: []schema.Table{
			{Name: "places", Columns: []schema.Column{
				{Name: "location", Type: "geography"},
			}},
		},
	}
	poly := &generate.PolymorphicConfig{Associations: map[string]generate.PolymorphicAssociation{}}
	mapper := generate.NewTypeMapper(map[string]string{"geography": "GeoJSON"}, "")

	if findings := schemaFindings(data, poly, mapper); len(findings) != 0 {
		t.Errorf("an overridden type is not unknown, got %v", findings)
	}
}
