// Package schema defines the data model for extracted database schemas and
// the service that filters, validates, and caches them for the generator.
// Schema data is an opaque structured input: it can come from a live
// database, a JSON snapshot, or anything else that implements Extractor.
package schema

import "context"

// RelationshipKind identifies the association style between two tables.
type RelationshipKind string

const (
	BelongsTo RelationshipKind = "belongs_to"
	HasOne    RelationshipKind = "has_one"
	HasMany   RelationshipKind = "has_many"
)

// Valid reports whether the kind is one of the supported association styles.
func (k RelationshipKind) Valid() bool {
	switch k {
	case BelongsTo, HasOne, HasMany:
		return true
	}
	return false
}

// SchemaData is the root extraction artifact. It is immutable once returned
// from the Service: callers must not mutate tables or relationships they
// receive, since filtered results are cached and shared across lookups.
type SchemaData struct {
	Tables        []Table                 `json:"tables"`
	Relationships []Relationship          `json:"relationships"`
	Patterns      map[string][]Pattern    `json:"patterns"`
	Indexes       map[string][]Index      `json:"indexes"`
	Constraints   map[string][]Constraint `json:"constraints"`
}

// Table is a single relational table with its ordered column list.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Column describes one table column using the host ORM's type vocabulary
// (string, text, integer, bigint, decimal, float, boolean, datetime,
// timestamp, date, time, json, jsonb, uuid, binary, ...).
type Column struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Nullable   bool     `json:"nullable"`
	Default    *string  `json:"default,omitempty"`
	Enum       bool     `json:"enum,omitempty"`
	EnumValues []string `json:"enum_values,omitempty"`
	Comment    string   `json:"comment,omitempty"`
}

// Relationship links an owning table to a target table through a named
// association. Through is set for has_many :through style associations.
type Relationship struct {
	Table       string           `json:"table"`
	Kind        RelationshipKind `json:"kind"`
	TargetTable string           `json:"target_table"`
	Name        string           `json:"name"`
	Through     string           `json:"through,omitempty"`
	ForeignKey  string           `json:"foreign_key,omitempty"`
	Polymorphic bool             `json:"polymorphic,omitempty"`
}

// Pattern records a detected per-table convention (timestamps, soft delete,
// positioning, ...). Patterns feed generated documentation and the run
// report; they never change generation semantics.
type Pattern struct {
	Name        string   `json:"name"`
	Columns     []string `json:"columns"`
	Description string   `json:"description,omitempty"`
}

// Index describes a secondary index on a table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// Constraint describes a table constraint (check, foreign key, unique).
type Constraint struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Column     string `json:"column,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// Extractor produces raw schema data. Implementations live in the
// introspect package (live databases, JSON snapshots); the generator never
// assumes anything about how the data was produced, only its shape.
type Extractor interface {
	ExtractSchema(ctx context.Context) (*SchemaData, error)
}

// Table returns the named table and whether it exists.
func (d *SchemaData) Table(name string) (*Table, bool) {
	for i := range d.Tables {
		if d.Tables[i].Name == name {
			return &d.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns the table names in extraction order.
func (d *SchemaData) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// RelationshipsFor returns every relationship owned by the named table, in
// extraction order.
func (d *SchemaData) RelationshipsFor(table string) []Relationship {
	var rels []Relationship
	for _, r := range d.Relationships {
		if r.Table == table {
			rels = append(rels, r)
		}
	}
	return rels
}

// Column returns the named column and whether it exists.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
