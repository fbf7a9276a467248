package schema

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultExcludedTables are Rails bookkeeping tables that never produce
// generated models. IncludeOnly overrides this list.
var DefaultExcludedTables = []string{
	"schema_migrations",
	"ar_internal_metadata",
	"active_storage_blobs",
	"active_storage_attachments",
	"active_storage_variant_records",
	"action_mailbox_inbound_emails",
	"action_text_rich_texts",
	"versions",
}

// defaultExcludedPrefixes drop database catalog tables that live
// introspection can surface alongside application tables.
var defaultExcludedPrefixes = []string{"pg_", "sqlite_"}

// FilterOptions controls which tables survive extraction.
type FilterOptions struct {
	// ExcludeTables is merged with DefaultExcludedTables.
	ExcludeTables []string

	// IncludeOnly, when non-empty, keeps exactly these tables and wins
	// over every exclusion, built-in defaults included.
	IncludeOnly []string

	// SkipValidation bypasses structural validation of the filtered result.
	SkipValidation bool
}

// CacheStats reports cache effectiveness for a SchemaService.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// SchemaService wraps an Extractor with filtering, validation, and a
// process-local result cache keyed by filter options.
type SchemaService struct {
	extractor Extractor
	logger    *zap.Logger

	mu     sync.RWMutex
	cache  map[string]*SchemaData
	hits   int64
	misses int64
}

// NewSchemaService creates a schema service around the given extractor.
// A nil logger is replaced with a no-op logger.
func NewSchemaService(extractor Extractor, logger *zap.Logger) *SchemaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaService{
		extractor: extractor,
		logger:    logger,
		cache:     make(map[string]*SchemaData),
	}
}

// ExtractFilteredSchema extracts the schema, applies the filter options,
// validates the result, and caches it. Repeated calls with equivalent
// options (order-insensitive) return the cached value.
func (s *SchemaService) ExtractFilteredSchema(ctx context.Context, opts FilterOptions) (*SchemaData, error) {
	key := filterKey(opts.ExcludeTables, opts.IncludeOnly)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()
		s.logger.Debug("schema cache hit", zap.String("key", key))
		return cached, nil
	}

	raw, err := s.extractor.ExtractSchema(ctx)
	if err != nil {
		return nil, err
	}

	filtered := filterSchema(raw, opts)

	if !opts.SkipValidation {
		if err := Validate(filtered); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.misses++
	s.cache[key] = filtered
	s.mu.Unlock()

	s.logger.Debug("schema extracted",
		zap.Int("tables", len(filtered.Tables)),
		zap.Int("relationships", len(filtered.Relationships)),
		zap.String("key", key))

	return filtered, nil
}

// SchemaForTable returns the filtered schema entry for a single table.
// A missing table yields a TableNotFoundError listing what is available.
func (s *SchemaService) SchemaForTable(ctx context.Context, name string, opts FilterOptions) (*Table, error) {
	data, err := s.ExtractFilteredSchema(ctx, opts)
	if err != nil {
		return nil, err
	}
	table, ok := data.Table(name)
	if !ok {
		return nil, &TableNotFoundError{Name: name, Available: data.TableNames()}
	}
	return table, nil
}

// ValidateTablesExist partitions names into those present in the filtered
// schema and those absent. Absence is reported, not treated as an error.
func (s *SchemaService) ValidateTablesExist(ctx context.Context, names []string, opts FilterOptions) (existing, missing []string, err error) {
	data, err := s.ExtractFilteredSchema(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range names {
		if _, ok := data.Table(name); ok {
			existing = append(existing, name)
		} else {
			missing = append(missing, name)
		}
	}
	return existing, missing, nil
}

// CacheStats returns a snapshot of cache counters.
func (s *SchemaService) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CacheStats{
		Hits:    s.hits,
		Misses:  s.misses,
		Entries: len(s.cache),
	}
}

// ClearCache drops all cached extractions. Counters are preserved.
func (s *SchemaService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*SchemaData)
}

// filterSchema applies include/exclude rules to a raw extraction. The
// input is never mutated. Relationships touching a filtered-out endpoint
// are dropped silently; they were valid in the raw schema and their
// absence is a consequence of the caller's own filter.
func filterSchema(raw *SchemaData, opts FilterOptions) *SchemaData {
	keep := keepSet(raw, opts)

	out := &SchemaData{
		Tables:        make([]Table, 0, len(keep)),
		Relationships: []Relationship{},
		Patterns:      map[string][]Pattern{},
		Indexes:       map[string][]Index{},
		Constraints:   map[string][]Constraint{},
	}

	for _, t := range raw.Tables {
		if keep[t.Name] {
			out.Tables = append(out.Tables, t)
		}
	}
	for _, rel := range raw.Relationships {
		if !keep[rel.Table] {
			continue
		}
		if !rel.Polymorphic && rel.TargetTable != "" && !keep[rel.TargetTable] {
			continue
		}
		out.Relationships = append(out.Relationships, rel)
	}
	for name, patterns := range raw.Patterns {
		if keep[name] {
			out.Patterns[name] = patterns
		}
	}
	for name, indexes := range raw.Indexes {
		if keep[name] {
			out.Indexes[name] = indexes
		}
	}
	for name, constraints := range raw.Constraints {
		if keep[name] {
			out.Constraints[name] = constraints
		}
	}

	return out
}

// keepSet resolves the filter options into the set of surviving table names.
func keepSet(raw *SchemaData, opts FilterOptions) map[string]bool {
	keep := make(map[string]bool, len(raw.Tables))

	if len(opts.IncludeOnly) > 0 {
		include := make(map[string]bool, len(opts.IncludeOnly))
		for _, name := range opts.IncludeOnly {
			include[strings.TrimSpace(name)] = true
		}
		for _, t := range raw.Tables {
			if include[t.Name] {
				keep[t.Name] = true
			}
		}
		return keep
	}

	exclude := make(map[string]bool, len(DefaultExcludedTables)+len(opts.ExcludeTables))
	for _, name := range DefaultExcludedTables {
		exclude[name] = true
	}
	for _, name := range opts.ExcludeTables {
		exclude[strings.TrimSpace(name)] = true
	}
	for _, t := range raw.Tables {
		if exclude[t.Name] || hasExcludedPrefix(t.Name) {
			continue
		}
		keep[t.Name] = true
	}
	return keep
}

func hasExcludedPrefix(name string) bool {
	for _, p := range defaultExcludedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// filterKey builds a stable cache key from filter options. Lists are
// sorted so equivalent filters share an entry.
func filterKey(exclude, include []string) string {
	ex := append([]string(nil), exclude...)
	in := append([]string(nil), include...)
	sort.Strings(ex)
	sort.Strings(in)

	var b strings.Builder
	b.WriteString("exclude=")
	b.WriteString(strings.Join(ex, ","))
	b.WriteString("|include=")
	b.WriteString(strings.Join(in, ","))
	return b.String()
}
