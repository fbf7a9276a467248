// Package generate transforms filtered schema data into TypeScript model
// source. It holds the type mapper, the relationship processor, the
// polymorphic association config, and the legacy coordinator that drives a
// whole run table by table.
package generate

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// ModelName returns the singular PascalCase model name for a table:
// "user_profiles" becomes "UserProfile".
func ModelName(table string) string {
	return inflect.Camelize(inflect.Singularize(table))
}

// ReactiveModelName returns the reactive-record class name for a table:
// "users" becomes "ReactiveUser".
func ReactiveModelName(table string) string {
	return "Reactive" + ModelName(table)
}

// DataInterfaceName returns the data-interface name for a table:
// "users" becomes "UserData".
func DataInterfaceName(table string) string {
	return ModelName(table) + "Data"
}

// PropertyName returns the camelCase property name for a column or
// association: "user_id" becomes "userId".
func PropertyName(name string) string {
	return inflect.CamelizeDownFirst(name)
}

// FileBase returns the kebab-case singular file stem for a table:
// "user_profiles" becomes "user-profile". Generated file names derive
// from this stem, so it must stay stable across runs.
func FileBase(table string) string {
	return inflect.Dasherize(inflect.Singularize(table))
}

// ModelFileName returns the persisted-record file name for a table.
func ModelFileName(table string) string {
	return FileBase(table) + ".ts"
}

// ReactiveFileName returns the reactive-record file name for a table.
func ReactiveFileName(table string) string {
	return "reactive-" + FileBase(table) + ".ts"
}

// DataFileName returns the data-interface file name for a table. The
// directory it lands in comes from the Layout.
func DataFileName(table string) string {
	return FileBase(table) + "-data.ts"
}

// TableForType resolves a polymorphic type name back to its table:
// "LineItem" becomes "line_items".
func TableForType(typeName string) string {
	return inflect.Pluralize(inflect.Underscore(typeName))
}

// escapeSingleQuotes escapes backslashes and single quotes so a value can
// be embedded in a single-quoted TypeScript string literal.
func escapeSingleQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// quoteUnion joins values into a TypeScript union of single-quoted string
// literals: 'active' | 'disabled'.
func quoteUnion(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = "'" + escapeSingleQuotes(v) + "'"
	}
	return strings.Join(parts, " | ")
}
