// Package introspect provides schema.Extractor implementations: a JSON
// snapshot reader for offline runs and live introspectors for PostgreSQL,
// MySQL, and SQLite. Live introspectors normalize engine types into the
// Rails column vocabulary the generator understands and derive
// relationships and column-convention patterns that snapshot files carry
// explicitly.
package introspect

import (
	"sort"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/zero-models/zerogen/internal/schema"
)

// foreignKey is one foreign key constraint discovered by a live introspector.
type foreignKey struct {
	Table        string
	Column       string
	TargetTable  string
	TargetColumn string
}

// deriveRelationships converts foreign keys into association pairs. Every
// foreign key yields a belongs_to on the owning table and an inverse on the
// target: has_one when the key column carries a unique index, has_many
// otherwise. Inverse names follow the owning table; a key whose column
// prefix differs from the target name (author_id pointing at users) gets
// the prefix folded in so two keys to the same table stay distinct.
// Polymorphic pairs produce a belongs_to with no target table.
func deriveRelationships(tables []schema.Table, fks []foreignKey, unique map[string]map[string]bool) []schema.Relationship {
	rels := []schema.Relationship{}

	for _, fk := range fks {
		prefix := strings.TrimSuffix(fk.Column, "_id")
		if prefix == fk.Column || prefix == "" {
			prefix = inflect.Singularize(fk.TargetTable)
		}

		rels = append(rels, schema.Relationship{
			Table:       fk.Table,
			Kind:        schema.BelongsTo,
			TargetTable: fk.TargetTable,
			Name:        prefix,
			ForeignKey:  fk.Column,
		})

		inverseName := fk.Table
		if prefix != inflect.Singularize(fk.TargetTable) {
			inverseName = prefix + "_" + fk.Table
		}

		inverse := schema.Relationship{
			Table:       fk.TargetTable,
			Kind:        schema.HasMany,
			TargetTable: fk.Table,
			Name:        inverseName,
			ForeignKey:  fk.Column,
		}
		if unique[fk.Table][fk.Column] {
			inverse.Kind = schema.HasOne
			inverse.Name = inflect.Singularize(inverseName)
		}
		rels = append(rels, inverse)
	}

	for _, t := range tables {
		for _, prefix := range polymorphicPrefixes(t) {
			rels = append(rels, schema.Relationship{
				Table:       t.Name,
				Kind:        schema.BelongsTo,
				Name:        prefix,
				ForeignKey:  prefix + "_id",
				Polymorphic: true,
			})
		}
	}

	sortRelationships(rels)
	return rels
}

// kindOrder fixes the iteration order the generator relies on.
var kindOrder = map[schema.RelationshipKind]int{
	schema.BelongsTo: 0,
	schema.HasOne:    1,
	schema.HasMany:   2,
}

func sortRelationships(rels []schema.Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Table != rels[j].Table {
			return rels[i].Table < rels[j].Table
		}
		if kindOrder[rels[i].Kind] != kindOrder[rels[j].Kind] {
			return kindOrder[rels[i].Kind] < kindOrder[rels[j].Kind]
		}
		return rels[i].Name < rels[j].Name
	})
}

// polymorphicPrefixes finds column pairs named <prefix>_type plus
// <prefix>_id on a table.
func polymorphicPrefixes(t schema.Table) []string {
	ids := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if strings.HasSuffix(c.Name, "_id") {
			ids[strings.TrimSuffix(c.Name, "_id")] = true
		}
	}

	var prefixes []string
	for _, c := range t.Columns {
		if !strings.HasSuffix(c.Name, "_type") {
			continue
		}
		prefix := strings.TrimSuffix(c.Name, "_type")
		if prefix != "" && ids[prefix] {
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

// detectPatterns scans tables for Rails column conventions. The result maps
// table name to the patterns found there; tables without any convention are
// absent from the map.
func detectPatterns(tables []schema.Table) map[string][]schema.Pattern {
	patterns := make(map[string][]schema.Pattern)

	for _, t := range tables {
		var found []schema.Pattern

		if _, hasCreated := t.Column("created_at"); hasCreated {
			if _, hasUpdated := t.Column("updated_at"); hasUpdated {
				found = append(found, schema.Pattern{
					Name:        "timestamps",
					Columns:     []string{"created_at", "updated_at"},
					Description: "standard creation and update timestamps",
				})
			}
		}

		if _, ok := t.Column("deleted_at"); ok {
			found = append(found, schema.Pattern{
				Name:        "soft_delete",
				Columns:     []string{"deleted_at"},
				Description: "rows are hidden, not removed",
			})
		}

		for _, prefix := range polymorphicPrefixes(t) {
			found = append(found, schema.Pattern{
				Name:        "polymorphic",
				Columns:     []string{prefix + "_type", prefix + "_id"},
				Description: "polymorphic reference " + prefix,
			})
		}

		var counters []string
		for _, c := range t.Columns {
			if strings.HasSuffix(c.Name, "_count") {
				counters = append(counters, c.Name)
			}
		}
		if len(counters) > 0 {
			found = append(found, schema.Pattern{
				Name:        "counter_cache",
				Columns:     counters,
				Description: "denormalized association counters",
			})
		}

		if len(found) > 0 {
			patterns[t.Name] = found
		}
	}

	return patterns
}
