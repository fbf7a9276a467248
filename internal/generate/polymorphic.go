package generate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPolymorphicConfigPath is the conventional snapshot location,
// relative to the working directory.
const DefaultPolymorphicConfigPath = "config/zero_polymorphic_types.yml"

// PolymorphicStatistics records observed usage of a polymorphic
// association, written by the discover command.
type PolymorphicStatistics struct {
	TotalCount     int            `yaml:"total_count"`
	TypeCounts     map[string]int `yaml:"type_counts,omitempty"`
	LastAnalyzedAt time.Time      `yaml:"last_analyzed_at,omitempty"`
}

// PolymorphicAssociation describes one polymorphic association: the pair
// of columns implementing it and the model types observed or declared on
// the other end.
type PolymorphicAssociation struct {
	TypeColumn      string                `yaml:"type_column"`
	IDColumn        string                `yaml:"id_column"`
	PotentialTypes  []string              `yaml:"potential_types,omitempty"`
	DiscoveredTypes []string              `yaml:"discovered_types,omitempty"`
	MappedTables    []string              `yaml:"mapped_tables,omitempty"`
	Statistics      PolymorphicStatistics `yaml:"statistics,omitempty"`
}

// Types returns the type names generation should use: discovered types
// when the snapshot has been analyzed, the declared potential types
// otherwise.
func (a *PolymorphicAssociation) Types() []string {
	if len(a.DiscoveredTypes) > 0 {
		return a.DiscoveredTypes
	}
	return a.PotentialTypes
}

// PolymorphicConfig is the snapshot of polymorphic association metadata,
// keyed "table.association_name". Reflection over live model classes is
// deliberately not a generator dependency; the snapshot file is the source
// of truth and the discover command regenerates it out of band.
type PolymorphicConfig struct {
	Associations map[string]PolymorphicAssociation `yaml:"polymorphic_associations"`
}

// LoadPolymorphicConfig reads the snapshot at path. A missing file is not
// an error: the feature degrades to no polymorphic enrichment.
func LoadPolymorphicConfig(path string) (*PolymorphicConfig, error) {
	if path == "" {
		path = DefaultPolymorphicConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PolymorphicConfig{Associations: map[string]PolymorphicAssociation{}}, nil
		}
		return nil, fmt.Errorf("reading polymorphic config: %w", err)
	}

	var cfg PolymorphicConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing polymorphic config %s: %w", path, err)
	}
	if cfg.Associations == nil {
		cfg.Associations = map[string]PolymorphicAssociation{}
	}
	return &cfg, nil
}

// SavePolymorphicConfig writes the snapshot, sorted for stable diffs.
func SavePolymorphicConfig(path string, cfg *PolymorphicConfig) error {
	if path == "" {
		path = DefaultPolymorphicConfigPath
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding polymorphic config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating polymorphic config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing polymorphic config: %w", err)
	}
	return nil
}

// Association looks up the entry for table.association.
func (c *PolymorphicConfig) Association(table, association string) (PolymorphicAssociation, bool) {
	if c == nil || c.Associations == nil {
		return PolymorphicAssociation{}, false
	}
	a, ok := c.Associations[table+"."+association]
	return a, ok
}

// UnionType returns the TypeScript union for an association's type column,
// e.g. 'Client' | 'Job'. An association with zero discovered or potential
// types reports ok=false and is omitted from generated output: an empty
// union would be uninhabitable.
func (c *PolymorphicConfig) UnionType(table, association string) (string, bool) {
	a, ok := c.Association(table, association)
	if !ok {
		return "", false
	}
	types := a.Types()
	if len(types) == 0 {
		return "", false
	}
	return quoteUnion(types), true
}

// TypeColumnUnion returns the union type for a column serving as a
// polymorphic type column on the table, if any association declares it.
// Keys are scanned in sorted order so a column claimed by two associations
// resolves the same way every run.
func (c *PolymorphicConfig) TypeColumnUnion(table, column string) (string, bool) {
	if c == nil {
		return "", false
	}
	prefix := table + "."
	for _, key := range c.AssociationKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		a := c.Associations[key]
		if a.TypeColumn != column {
			continue
		}
		if union, ok := c.UnionType(table, key[len(prefix):]); ok {
			return union, true
		}
	}
	return "", false
}

// AssociationKeys returns the snapshot keys in sorted order, for stable
// listing by the polymorphic show command.
func (c *PolymorphicConfig) AssociationKeys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Associations))
	for k := range c.Associations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
