package schema

// Validate checks the structural invariants of extracted schema data:
// all top-level collections present, every table named with a columns list,
// and every relationship endpoint resolving to a table in the same data.
// The first violation found is returned as a *ValidationError.
//
// Relationships referencing tables that were filtered out never reach this
// point (the Service drops them during filtering); a dangling reference
// here means the upstream extraction itself is inconsistent, which aborts
// the run rather than producing misleading partial output.
func Validate(data *SchemaData) error {
	if data == nil {
		return NewValidationError("", "", "schema data is nil")
	}
	if data.Tables == nil {
		return NewValidationError("", "", "missing tables collection")
	}
	if data.Relationships == nil {
		return NewValidationError("", "", "missing relationships collection")
	}
	if data.Patterns == nil {
		return NewValidationError("", "", "missing patterns collection")
	}
	if data.Indexes == nil {
		return NewValidationError("", "", "missing indexes collection")
	}

	names := make(map[string]bool, len(data.Tables))
	for i := range data.Tables {
		t := &data.Tables[i]
		if t.Name == "" {
			return NewValidationError("", "", "table with empty name")
		}
		if names[t.Name] {
			return NewValidationError(t.Name, "", "duplicate table name")
		}
		if t.Columns == nil {
			return NewValidationError(t.Name, "", "table has no columns list")
		}
		names[t.Name] = true
	}

	for _, rel := range data.Relationships {
		if rel.Name == "" {
			// Nameless relationships are dropped at generation time (see
			// generate.RelationshipProcessor); they are not a structural
			// failure of the extraction.
			continue
		}
		if !rel.Kind.Valid() {
			return NewValidationError(rel.Table, "", "relationship "+rel.Name+" has unknown kind "+string(rel.Kind))
		}
		if !names[rel.Table] {
			return NewValidationError(rel.Table, rel.Table,
				"relationship "+rel.Name+" is owned by a table that does not exist")
		}
		if rel.Polymorphic {
			// Polymorphic associations have no single target table; their
			// targets come from the polymorphic configuration instead.
			continue
		}
		if rel.TargetTable == "" {
			continue
		}
		if !names[rel.TargetTable] {
			return NewValidationError(rel.Table, rel.TargetTable,
				"relationship "+rel.Name+" targets a table that does not exist")
		}
	}

	return nil
}
