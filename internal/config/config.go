// Package config loads and validates the layered zerogen configuration:
// compiled defaults, then zerogen.yml, then the active environment's
// override block, then programmatic overrides, each layer deep-merged
// over the previous one.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment names recognized in the environments override block.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

const (
	// DefaultFileName is the configuration file stem searched for in the
	// working directory (zerogen.yml / zerogen.yaml).
	DefaultFileName = "zerogen"
	// EnvVar selects the active environment block.
	EnvVar = "ZEROGEN_ENV"
	// envPrefix namespaces the environment variables viper binds.
	envPrefix = "ZEROGEN"
)

// Config is the fully merged configuration tree.
type Config struct {
	ExcludedTables         []string             `mapstructure:"excluded_tables"`
	TypeOverrides          map[string]string    `mapstructure:"type_overrides"`
	FieldMappings          map[string]string    `mapstructure:"field_mappings"`
	Output                 OutputConfig         `mapstructure:"output"`
	FileOperations         FileOperationsConfig `mapstructure:"file_operations"`
	TemplateSettings       TemplateSettings     `mapstructure:"template_settings"`
	GeneratorOptions       GeneratorOptions     `mapstructure:"generator_options"`
	Performance            PerformanceConfig    `mapstructure:"performance"`
	PreserveCustomizations bool                 `mapstructure:"preserve_customizations"`
	Migration              MigrationConfig      `mapstructure:"migration"`
	Database               DatabaseConfig       `mapstructure:"database"`
}

// OutputConfig places generated files. All paths must be relative unless
// generator_options.allow_absolute_output is set.
type OutputConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	TypesDir    string `mapstructure:"types_dir"`
	ModelsDir   string `mapstructure:"models_dir"`
	ReactiveDir string `mapstructure:"reactive_dir"`
}

// FileOperationsConfig controls writing and batch formatting.
type FileOperationsConfig struct {
	DryRun                bool          `mapstructure:"dry_run"`
	Force                 bool          `mapstructure:"force"`
	SkipFormatting        bool          `mapstructure:"skip_formatting"`
	BatchFileLimit        int           `mapstructure:"batch_file_limit"`
	BatchByteLimit        int64         `mapstructure:"batch_byte_limit"`
	IgnoredHeaderPatterns []string      `mapstructure:"ignored_header_patterns"`
	PrettierCommand       string        `mapstructure:"prettier_command"`
	PrettierTimeout       time.Duration `mapstructure:"prettier_timeout"`
}

// TemplateSettings points the renderer at custom templates.
type TemplateSettings struct {
	CustomDir string `mapstructure:"custom_dir"`
}

// GeneratorOptions are per-run generation knobs.
type GeneratorOptions struct {
	AllowAbsoluteOutput bool   `mapstructure:"allow_absolute_output"`
	GenerateIndex       bool   `mapstructure:"generate_index"`
	UnknownType         string `mapstructure:"unknown_type"`
	// PolymorphicConfig is the snapshot path; empty selects the
	// conventional config/zero_polymorphic_types.yml.
	PolymorphicConfig string `mapstructure:"polymorphic_config"`
}

// PerformanceConfig sizes the schema cache and selects the stats backend.
type PerformanceConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
	StatsBackend    string        `mapstructure:"stats_backend"`
	RedisAddr       string        `mapstructure:"redis_addr"`
}

// MigrationConfig seeds the pipeline migration feature flags.
type MigrationConfig struct {
	Percentage     int    `mapstructure:"percentage"`
	Canary         bool   `mapstructure:"canary"`
	Sticky         bool   `mapstructure:"sticky"`
	CircuitBreaker bool   `mapstructure:"circuit_breaker"`
	ErrorThreshold int    `mapstructure:"error_threshold"`
	StateFile      string `mapstructure:"state_file"`
}

// DatabaseConfig locates the schema source: a live database or a JSON
// snapshot.
type DatabaseConfig struct {
	Adapter  string `mapstructure:"adapter"`
	URL      string `mapstructure:"url"`
	Snapshot string `mapstructure:"snapshot"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("excluded_tables", []string{})
	v.SetDefault("type_overrides", map[string]string{})
	v.SetDefault("field_mappings", map[string]string{})

	v.SetDefault("output.base_dir", "frontend/src/models")
	v.SetDefault("output.types_dir", "types")
	v.SetDefault("output.models_dir", ".")
	v.SetDefault("output.reactive_dir", ".")

	v.SetDefault("file_operations.dry_run", false)
	v.SetDefault("file_operations.force", false)
	v.SetDefault("file_operations.skip_formatting", false)
	v.SetDefault("file_operations.batch_file_limit", 100)
	v.SetDefault("file_operations.batch_byte_limit", int64(100<<20))
	v.SetDefault("file_operations.ignored_header_patterns", []string{})
	v.SetDefault("file_operations.prettier_command", "npx prettier --write .")
	v.SetDefault("file_operations.prettier_timeout", 2*time.Minute)

	v.SetDefault("template_settings.custom_dir", "")

	v.SetDefault("generator_options.allow_absolute_output", false)
	v.SetDefault("generator_options.generate_index", true)
	v.SetDefault("generator_options.unknown_type", "unknown")
	v.SetDefault("generator_options.polymorphic_config", "")

	v.SetDefault("performance.cache_ttl", 10*time.Minute)
	v.SetDefault("performance.cache_max_entries", 128)
	v.SetDefault("performance.stats_backend", "memory")
	v.SetDefault("performance.redis_addr", "localhost:6379")

	v.SetDefault("preserve_customizations", false)

	v.SetDefault("migration.percentage", 0)
	v.SetDefault("migration.canary", false)
	v.SetDefault("migration.sticky", true)
	v.SetDefault("migration.circuit_breaker", true)
	v.SetDefault("migration.error_threshold", 5)
	v.SetDefault("migration.state_file", ".zerogen/migration-state.json")

	v.SetDefault("database.adapter", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.snapshot", "db/zero_schema.json")
}

// Service owns the merged configuration and rebuilds it when overrides
// change, so every mutation re-runs the full layering and validation.
type Service struct {
	file      string
	env       string
	overrides map[string]any

	v          *viper.Viper
	cfg        *Config
	loadedFrom string
}

// Load builds the configuration service. path may be empty, in which case
// zerogen.yml is searched for in the working directory and its absence is
// not an error; an explicit path that cannot be read is.
func Load(path string) (*Service, error) {
	env := strings.ToLower(os.Getenv(EnvVar))
	if env == "" {
		env = EnvDevelopment
	}
	if !validEnv(env) {
		return nil, &ValidationError{
			Key:     EnvVar,
			Message: fmt.Sprintf("unknown environment %q (want %s, %s, or %s)", env, EnvDevelopment, EnvProduction, EnvTest),
		}
	}

	s := &Service{file: path, env: env, overrides: map[string]any{}}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the current merged configuration. Callers must treat it
// as read-only; mutations go through the Service.
func (s *Service) Config() *Config { return s.cfg }

// Environment returns the active environment name.
func (s *Service) Environment() string { return s.env }

// Source returns the config file path actually loaded, empty when running
// on defaults.
func (s *Service) Source() string { return s.loadedFrom }

// UpdateConfig sets one dotted key in the override layer and re-validates.
// An invalid value leaves the previous configuration in effect.
func (s *Service) UpdateConfig(key string, value any) error {
	return s.ApplyOverrides(map[string]any{key: value})
}

// ApplyOverrides merges CLI-style overrides into the override layer and
// re-validates. On failure the previous configuration stays in effect.
func (s *Service) ApplyOverrides(values map[string]any) error {
	saved := make(map[string]any, len(s.overrides))
	for k, v := range s.overrides {
		saved[k] = v
	}

	for k, v := range values {
		s.overrides[k] = v
	}
	if err := s.rebuild(); err != nil {
		s.overrides = saved
		return err
	}
	return nil
}

// AddExcludedTable appends a table to the exclusion list, ignoring
// duplicates.
func (s *Service) AddExcludedTable(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Key: "excluded_tables", Message: "table name must be non-empty"}
	}
	for _, t := range s.cfg.ExcludedTables {
		if t == name {
			return nil
		}
	}
	updated := append(append([]string{}, s.cfg.ExcludedTables...), name)
	return s.UpdateConfig("excluded_tables", updated)
}

// AddTypeOverride maps a raw column type to a TypeScript type expression.
func (s *Service) AddTypeOverride(rawType, tsType string) error {
	if strings.TrimSpace(rawType) == "" || strings.TrimSpace(tsType) == "" {
		return &ValidationError{Key: "type_overrides", Message: "raw type and TypeScript type must be non-empty"}
	}
	merged := make(map[string]string, len(s.cfg.TypeOverrides)+1)
	for k, v := range s.cfg.TypeOverrides {
		merged[k] = v
	}
	merged[rawType] = tsType
	return s.UpdateConfig("type_overrides", merged)
}

// rebuild re-runs the full layering: defaults, file, environment block,
// env vars, programmatic overrides. It only commits on success.
func (s *Service) rebuild() error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if s.file != "" {
		v.SetConfigFile(s.file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", s.file, err)
		}
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	if block := v.GetStringMap("environments." + s.env); len(block) > 0 {
		if err := v.MergeConfigMap(block); err != nil {
			return fmt.Errorf("merging %s environment block: %w", s.env, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range s.overrides {
		v.Set(key, value)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.v = v
	s.cfg = cfg
	s.loadedFrom = v.ConfigFileUsed()
	return nil
}

func validEnv(env string) bool {
	switch env {
	case EnvDevelopment, EnvProduction, EnvTest:
		return true
	}
	return false
}
