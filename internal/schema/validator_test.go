package schema

import (
	"errors"
	"testing"
)

func validData() *SchemaData {
	return &SchemaData{
		Tables: []Table{
			{Name: "users", Columns: []Column{{Name: "id", Type: "bigint"}}},
			{Name: "posts", Columns: []Column{{Name: "id", Type: "bigint"}}},
		},
		Relationships: []Relationship{
			{Table: "users", Kind: HasMany, TargetTable: "posts", Name: "posts"},
		},
		Patterns: map[string][]Pattern{},
		Indexes:  map[string][]Index{},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SchemaData)
		wantErr bool
	}{
		{
			name:   "well formed",
			mutate: func(d *SchemaData) {},
		},
		{
			name:    "nil tables",
			mutate:  func(d *SchemaData) { d.Tables = nil },
			wantErr: true,
		},
		{
			name:    "nil relationships",
			mutate:  func(d *SchemaData) { d.Relationships = nil },
			wantErr: true,
		},
		{
			name:    "nil patterns",
			mutate:  func(d *SchemaData) { d.Patterns = nil },
			wantErr: true,
		},
		{
			name:    "nil indexes",
			mutate:  func(d *SchemaData) { d.Indexes = nil },
			wantErr: true,
		},
		{
			name:   "nil constraints is tolerated",
			mutate: func(d *SchemaData) { d.Constraints = nil },
		},
		{
			name:    "unnamed table",
			mutate:  func(d *SchemaData) { d.Tables[0].Name = "" },
			wantErr: true,
		},
		{
			name:    "duplicate table",
			mutate:  func(d *SchemaData) { d.Tables[1].Name = "users" },
			wantErr: true,
		},
		{
			name:    "nil columns",
			mutate:  func(d *SchemaData) { d.Tables[0].Columns = nil },
			wantErr: true,
		},
		{
			name:    "unknown relationship kind",
			mutate:  func(d *SchemaData) { d.Relationships[0].Kind = "has_lots" },
			wantErr: true,
		},
		{
			name:    "relationship owner missing",
			mutate:  func(d *SchemaData) { d.Relationships[0].Table = "widgets" },
			wantErr: true,
		},
		{
			name:    "relationship target missing",
			mutate:  func(d *SchemaData) { d.Relationships[0].TargetTable = "widgets" },
			wantErr: true,
		},
		{
			name: "nameless relationship is skipped",
			mutate: func(d *SchemaData) {
				d.Relationships[0].Name = ""
				d.Relationships[0].TargetTable = "widgets"
			},
		},
		{
			name: "polymorphic target is not checked",
			mutate: func(d *SchemaData) {
				d.Relationships[0].Polymorphic = true
				d.Relationships[0].TargetTable = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			tt.mutate(data)

			err := Validate(data)
			if tt.wantErr && err == nil {
				t.Fatalf("Validate() expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if err != nil && !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("error %v does not match ErrInvalidSchema", err)
			}
		})
	}
}

func TestValidate_NilData(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatalf("Validate(nil) expected an error")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("posts", "widgets", "relationship gadgets targets a table that does not exist")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a *ValidationError, got %T", err)
	}
	if verr.Table != "posts" || verr.Reference != "widgets" {
		t.Errorf("fields = %q/%q, want posts/widgets", verr.Table, verr.Reference)
	}
}
