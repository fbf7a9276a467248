package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching across package boundaries.
var (
	// ErrInvalidSchema indicates the extracted schema data is inconsistent.
	ErrInvalidSchema = errors.New("zerogen: invalid schema")
	// ErrTableNotFound indicates a table lookup after filtering failed.
	ErrTableNotFound = errors.New("zerogen: table not found")
)

// ValidationError reports a structural problem in extracted schema data:
// a missing top-level collection, a malformed table, or a relationship
// whose endpoint does not exist. The message names the exact dangling
// reference so the upstream extraction can be fixed.
type ValidationError struct {
	Table     string // table the problem was found on, if any
	Reference string // dangling table reference, if any
	Message   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("schema validation failed")
	if e.Table != "" {
		b.WriteString(" on table ")
		b.WriteString(e.Table)
	}
	if e.Reference != "" {
		b.WriteString(" (references ")
		b.WriteString(e.Reference)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches the sentinel for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSchema
}

// NewValidationError creates a ValidationError.
func NewValidationError(table, reference, message string) *ValidationError {
	return &ValidationError{Table: table, Reference: reference, Message: message}
}

// TableNotFoundError reports a lookup of a table that is absent from the
// filtered schema. Available carries the names that do exist, for messages.
type TableNotFoundError struct {
	Name      string
	Available []string
}

// Error implements the error interface.
func (e *TableNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("table %q not found in filtered schema", e.Name)
	}
	return fmt.Sprintf("table %q not found in filtered schema (available: %s)",
		e.Name, strings.Join(e.Available, ", "))
}

// Is reports whether the target matches the sentinel for missing tables.
func (e *TableNotFoundError) Is(target error) bool {
	return target == ErrTableNotFound
}
