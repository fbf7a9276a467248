package generate

import (
	"github.com/zero-models/zerogen/internal/schema"
)

// Options are the run-wide knobs a single generation invocation carries.
// They come from CLI flags merged over the configuration file.
type Options struct {
	// DryRun reports what would be generated without writing anything.
	DryRun bool

	// Force bypasses the semantic-diff skip logic: files are rewritten
	// even when their normalized content is unchanged.
	Force bool

	// OutputDir is the directory generated files land in, relative to the
	// working directory unless the configuration explicitly permits
	// absolute paths.
	OutputDir string

	// Tables restricts generation to these tables when non-empty.
	Tables []string

	// ExcludeTables are merged with the configured and built-in
	// exclusion lists.
	ExcludeTables []string

	// SkipFormatting bypasses the external formatter pass.
	SkipFormatting bool

	// SkipValidation bypasses structural schema validation.
	SkipValidation bool

	// Verbose enables debug-level generation tracing.
	Verbose bool
}

// Metadata keys the stages write as they process a context. Each stage's
// effect on a context is visible purely as a diff on these entries.
const (
	MetaSchemaExtracted  = "schema_extracted"
	MetaRelationships    = "relationships_processed"
	MetaGeneratedContent = "generated_content"
	MetaFilesWritten     = "files_written"
)

// Context is the unit of work for one table moving through generation:
// the table, the full filtered schema it came from, the table's own
// relationships, the run options, and metadata accumulated by stages.
// Stages return updated copies instead of mutating in place, which keeps
// the pipeline composable and each stage independently testable.
type Context struct {
	Table         *schema.Table
	Schema        *schema.SchemaData
	Relationships []schema.Relationship
	Polymorphic   *PolymorphicConfig
	Options       Options
	Metadata      map[string]any
}

// NewContext creates the per-table unit of work. The relationship slice is
// resolved from the schema so stages never re-derive it.
func NewContext(table *schema.Table, data *schema.SchemaData, poly *PolymorphicConfig, opts Options) *Context {
	var rels []schema.Relationship
	if table != nil && data != nil {
		rels = data.RelationshipsFor(table.Name)
	}
	return &Context{
		Table:         table,
		Schema:        data,
		Relationships: rels,
		Polymorphic:   poly,
		Options:       opts,
		Metadata:      map[string]any{},
	}
}

// Clone returns a copy of the context with its own metadata map. The
// table, schema, and relationship data are shared: they are immutable by
// contract once extraction returns them.
func (c *Context) Clone() *Context {
	meta := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	clone := *c
	clone.Metadata = meta
	return &clone
}

// WithMetadata returns an updated copy of the context carrying the entry.
func (c *Context) WithMetadata(key string, value any) *Context {
	clone := c.Clone()
	clone.Metadata[key] = value
	return clone
}

// MetaString reads a string metadata entry, empty when absent.
func (c *Context) MetaString(key string) string {
	if v, ok := c.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaBool reads a boolean metadata entry, false when absent.
func (c *Context) MetaBool(key string) bool {
	if v, ok := c.Metadata[key].(bool); ok {
		return v
	}
	return false
}

// GeneratedContent returns the rendered file contents accumulated by the
// render stage, keyed by output-relative path.
func (c *Context) GeneratedContent() map[string]string {
	if v, ok := c.Metadata[MetaGeneratedContent].(map[string]string); ok {
		return v
	}
	return nil
}

// Fragments returns the relationship fragments stashed by the
// relationship stage, ok=false when that stage has not run yet.
func (c *Context) Fragments() (RelationshipFragments, bool) {
	v, ok := c.Metadata[MetaRelationships].(RelationshipFragments)
	return v, ok
}
