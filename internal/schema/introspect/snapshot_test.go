package introspect

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zero-models/zerogen/internal/schema"
)

func snapshotFixture() *schema.SchemaData {
	return &schema.SchemaData{
		Tables: []schema.Table{
			{Name: "users", Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "role", Type: "string", Enum: true, EnumValues: []string{"admin", "member"}},
			}},
			{Name: "posts", Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "user_id", Type: "bigint"},
			}},
		},
		Relationships: []schema.Relationship{
			{Table: "posts", Kind: schema.BelongsTo, TargetTable: "users", Name: "user", ForeignKey: "user_id"},
			{Table: "users", Kind: schema.HasMany, TargetTable: "posts", Name: "posts", ForeignKey: "user_id"},
		},
		Patterns: map[string][]schema.Pattern{
			"users": {{Name: "timestamps", Columns: []string{"created_at", "updated_at"}}},
		},
		Indexes: map[string][]schema.Index{
			"posts": {{Name: "index_posts_on_user_id", Columns: []string{"user_id"}}},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero_schema.json")
	want := snapshotFixture()

	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	got, err := NewSnapshotExtractor(path).ExtractSchema(context.Background())
	if err != nil {
		t.Fatalf("ExtractSchema: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestSnapshotWriteIsStableText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero_schema.json")
	if err := WriteSnapshot(path, snapshotFixture()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(raw)

	// Snapshots go into version control: indented, trailing newline.
	if !strings.HasSuffix(text, "\n") {
		t.Error("snapshot file does not end with a newline")
	}
	if !strings.Contains(text, "\n  \"tables\"") {
		t.Error("snapshot file is not indented")
	}
}

func TestSnapshotExtractorMissingFile(t *testing.T) {
	_, err := NewSnapshotExtractor(filepath.Join(t.TempDir(), "absent.json")).ExtractSchema(context.Background())
	if err == nil {
		t.Fatal("expected error for missing snapshot file")
	}
	if !strings.Contains(err.Error(), "reading schema snapshot") {
		t.Errorf("error = %v, want reading schema snapshot context", err)
	}
}

func TestSnapshotExtractorMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewSnapshotExtractor(path).ExtractSchema(context.Background())
	if err == nil {
		t.Fatal("expected error for malformed snapshot")
	}
	if !strings.Contains(err.Error(), "parsing schema snapshot") {
		t.Errorf("error = %v, want parsing schema snapshot context", err)
	}
}

func TestSnapshotExtractorHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero_schema.json")
	if err := WriteSnapshot(path, snapshotFixture()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSnapshotExtractor(path).ExtractSchema(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
