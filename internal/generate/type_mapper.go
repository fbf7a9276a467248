package generate

import (
	"sort"

	"github.com/zero-models/zerogen/internal/schema"
)

// DefaultUnknownType is the sentinel emitted for column types the mapper
// does not recognize. Schema drift must degrade generation, not abort it.
const DefaultUnknownType = "unknown"

// baseTypeMap is the fixed mapping from the Rails column vocabulary to
// TypeScript type expressions. datetime and timestamp tolerate both
// serialized forms the sync layer produces (ISO string or epoch millis).
var baseTypeMap = map[string]string{
	"string":    "string",
	"text":      "string",
	"integer":   "number",
	"bigint":    "number",
	"decimal":   "number",
	"float":     "number",
	"boolean":   "boolean",
	"datetime":  "string | number",
	"timestamp": "string | number",
	"date":      "string",
	"time":      "string",
	"json":      "Record<string, unknown>",
	"jsonb":     "Record<string, unknown>",
	"uuid":      "string",
	"binary":    "Uint8Array",
}

// TypeMapper maps column type descriptors to TypeScript type expressions.
// Precedence: enum columns first, then per-instance overrides, then the
// fixed base map, then the unknown sentinel. MapType is total: it never
// fails, it degrades.
type TypeMapper struct {
	overrides map[string]string
	unknown   string

	unknownSeen map[string]bool
}

// NewTypeMapper creates a mapper with per-instance overrides (consulted
// before the base map) and a sentinel for unrecognized types. Empty
// unknownType selects DefaultUnknownType.
func NewTypeMapper(overrides map[string]string, unknownType string) *TypeMapper {
	if unknownType == "" {
		unknownType = DefaultUnknownType
	}
	return &TypeMapper{
		overrides:   overrides,
		unknown:     unknownType,
		unknownSeen: make(map[string]bool),
	}
}

// MapType converts a raw column type into a TypeScript type expression.
// Enum columns win regardless of their declared raw type; an enum with no
// values degrades to the unknown sentinel like any unrecognized type.
func (tm *TypeMapper) MapType(rawType string, col *schema.Column) string {
	if col != nil && col.Enum {
		if len(col.EnumValues) == 0 {
			tm.recordUnknown(rawType)
			return tm.unknown
		}
		return quoteUnion(col.EnumValues)
	}

	if t, ok := tm.overrides[rawType]; ok {
		return t
	}
	if t, ok := baseTypeMap[rawType]; ok {
		return t
	}

	tm.recordUnknown(rawType)
	return tm.unknown
}

// MapColumn maps a column using its own declared type.
func (tm *TypeMapper) MapColumn(col *schema.Column) string {
	return tm.MapType(col.Type, col)
}

func (tm *TypeMapper) recordUnknown(rawType string) {
	if rawType == "" {
		rawType = "(empty)"
	}
	tm.unknownSeen[rawType] = true
}

// UnknownTypes returns the raw types that fell through to the sentinel
// since construction, sorted for stable reporting.
func (tm *TypeMapper) UnknownTypes() []string {
	types := make([]string, 0, len(tm.unknownSeen))
	for t := range tm.unknownSeen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
