package generate

import (
	"fmt"
	"strings"

	"github.com/zero-models/zerogen/internal/schema"
)

// RelationshipFragments are the five independent pieces of generated text a
// table's relationships contribute to its model files.
type RelationshipFragments struct {
	// Properties are class property declarations: optional references for
	// belongs_to/has_one, arrays for has_many.
	Properties []string

	// Imports are deduplicated import statements for the target model
	// classes. Self-referential associations produce no import.
	Imports []string

	// ConstructorExclusions lists property names that are
	// relationship-derived rather than plain columns, so generated
	// constructors skip them when assigning column data.
	ConstructorExclusions []string

	// Documentation lists each relationship's kind and target in prose,
	// for the generated doc header.
	Documentation []string

	// Registration is the registerRelationships call recording
	// relationship metadata on the model class, empty when the table has
	// no generated relationships.
	Registration string
}

// RelationshipProcessor turns one table's relationship metadata into
// generated fragments. It is constructed per table with explicit data: no
// registry lookups, nothing hidden, so tests can drive it directly.
type RelationshipProcessor struct {
	table    string
	rels     []schema.Relationship
	excluded map[string]bool
}

// NewRelationshipProcessor creates a processor for table with its
// relationships and the run's excluded-table set.
func NewRelationshipProcessor(table string, rels []schema.Relationship, excludedTables []string) *RelationshipProcessor {
	excluded := make(map[string]bool, len(excludedTables))
	for _, name := range excludedTables {
		excluded[name] = true
	}
	return &RelationshipProcessor{table: table, rels: rels, excluded: excluded}
}

// kindSequence fixes the generation order. Relationship output must be
// deterministic across runs, so kinds are iterated in this order and
// within a kind in extraction order.
var kindSequence = []schema.RelationshipKind{
	schema.BelongsTo,
	schema.HasOne,
	schema.HasMany,
}

// ProcessAll generates all five fragments for the table. Relationships
// with a missing name or target, or whose target table is excluded, are
// skipped rather than failing: their absence is a filtering consequence,
// not an error.
func (p *RelationshipProcessor) ProcessAll() RelationshipFragments {
	var frags RelationshipFragments
	var registrations []string
	imported := make(map[string]bool)

	for _, kind := range kindSequence {
		for _, rel := range p.rels {
			if rel.Kind != kind {
				continue
			}
			if !p.generable(rel) {
				continue
			}

			property := PropertyName(rel.Name)
			target := ModelName(rel.TargetTable)

			frags.Properties = append(frags.Properties, propertyDecl(property, target, kind))
			frags.ConstructorExclusions = append(frags.ConstructorExclusions, property)
			frags.Documentation = append(frags.Documentation, docLine(rel, target))
			registrations = append(registrations, registrationEntry(property, target, rel))

			if rel.TargetTable != p.table && !imported[target] {
				imported[target] = true
				frags.Imports = append(frags.Imports,
					fmt.Sprintf("import { %s } from './%s';", target, FileBase(rel.TargetTable)))
			}
		}
	}

	if len(registrations) > 0 {
		frags.Registration = fmt.Sprintf("%s.registerRelationships({\n%s,\n});",
			ModelName(p.table), strings.Join(registrations, ",\n"))
	}

	return frags
}

// generable reports whether a relationship produces output for this table.
// Polymorphic associations carry no target table and are handled by the
// polymorphic configuration, not here.
func (p *RelationshipProcessor) generable(rel schema.Relationship) bool {
	if rel.Name == "" || rel.TargetTable == "" {
		return false
	}
	return !p.excluded[rel.TargetTable]
}

func propertyDecl(property, target string, kind schema.RelationshipKind) string {
	if kind == schema.HasMany {
		return fmt.Sprintf("%s: %s[];", property, target)
	}
	return fmt.Sprintf("%s?: %s;", property, target)
}

func docLine(rel schema.Relationship, target string) string {
	line := fmt.Sprintf("%s: %s %s", rel.Name, rel.Kind, target)
	if rel.Through != "" {
		line += " through " + rel.Through
	}
	return line
}

func registrationEntry(property, target string, rel schema.Relationship) string {
	fields := []string{
		fmt.Sprintf("kind: '%s'", rel.Kind),
		fmt.Sprintf("model: () => %s", target),
	}
	if rel.ForeignKey != "" {
		fields = append(fields, fmt.Sprintf("foreignKey: '%s'", rel.ForeignKey))
	}
	if rel.Through != "" {
		fields = append(fields, fmt.Sprintf("through: '%s'", PropertyName(rel.Through)))
	}
	return fmt.Sprintf("  %s: { %s }", property, strings.Join(fields, ", "))
}
