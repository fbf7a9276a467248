package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError names the offending key so config problems are fixable
// without reading generator source.
type ValidationError struct {
	Key     string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

func invalid(key, format string, args ...any) error {
	return &ValidationError{Key: key, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the merged configuration. Generation never starts on an
// invalid config; this is the fail-fast boundary.
func (c *Config) Validate() error {
	for i, table := range c.ExcludedTables {
		if strings.TrimSpace(table) == "" {
			return invalid("excluded_tables", "entry %d is empty", i)
		}
	}

	for raw, ts := range c.TypeOverrides {
		if strings.TrimSpace(raw) == "" || strings.TrimSpace(ts) == "" {
			return invalid("type_overrides", "mapping %q -> %q has an empty side", raw, ts)
		}
	}
	for column, property := range c.FieldMappings {
		if strings.TrimSpace(column) == "" || strings.TrimSpace(property) == "" {
			return invalid("field_mappings", "mapping %q -> %q has an empty side", column, property)
		}
	}

	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateFileOperations(); err != nil {
		return err
	}
	if err := c.validateGeneratorOptions(); err != nil {
		return err
	}
	if err := c.validatePerformance(); err != nil {
		return err
	}
	if err := c.validateMigration(); err != nil {
		return err
	}
	return c.validateDatabase()
}

func (c *Config) validateOutput() error {
	if strings.TrimSpace(c.Output.BaseDir) == "" {
		return invalid("output.base_dir", "must be non-empty")
	}

	// Absolute output paths are rejected unless explicitly permitted, so a
	// hostile config file cannot aim the generator at system directories.
	if !c.GeneratorOptions.AllowAbsoluteOutput {
		dirs := map[string]string{
			"output.base_dir":     c.Output.BaseDir,
			"output.types_dir":    c.Output.TypesDir,
			"output.models_dir":   c.Output.ModelsDir,
			"output.reactive_dir": c.Output.ReactiveDir,
		}
		for key, dir := range dirs {
			if dir != "" && filepath.IsAbs(dir) {
				return invalid(key, "must be relative unless generator_options.allow_absolute_output is set, got %q", dir)
			}
		}
	}
	return nil
}

func (c *Config) validateFileOperations() error {
	ops := c.FileOperations
	if ops.BatchFileLimit <= 0 {
		return invalid("file_operations.batch_file_limit", "must be positive, got %d", ops.BatchFileLimit)
	}
	if ops.BatchByteLimit <= 0 {
		return invalid("file_operations.batch_byte_limit", "must be positive, got %d", ops.BatchByteLimit)
	}
	if ops.PrettierTimeout <= 0 {
		return invalid("file_operations.prettier_timeout", "must be positive, got %s", ops.PrettierTimeout)
	}
	if strings.TrimSpace(ops.PrettierCommand) == "" {
		return invalid("file_operations.prettier_command", "must be non-empty")
	}
	for i, pattern := range ops.IgnoredHeaderPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return invalid(fmt.Sprintf("file_operations.ignored_header_patterns[%d]", i), "invalid pattern %q: %v", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateGeneratorOptions() error {
	if strings.TrimSpace(c.GeneratorOptions.UnknownType) == "" {
		return invalid("generator_options.unknown_type", "must be non-empty")
	}
	return nil
}

func (c *Config) validatePerformance() error {
	perf := c.Performance
	if perf.CacheTTL <= 0 {
		return invalid("performance.cache_ttl", "must be positive, got %s", perf.CacheTTL)
	}
	if perf.CacheMaxEntries <= 0 {
		return invalid("performance.cache_max_entries", "must be positive, got %d", perf.CacheMaxEntries)
	}
	switch perf.StatsBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(perf.RedisAddr) == "" {
			return invalid("performance.redis_addr", "must be non-empty for the redis stats backend")
		}
	default:
		return invalid("performance.stats_backend", "unknown backend %q (want memory or redis)", perf.StatsBackend)
	}
	return nil
}

func (c *Config) validateMigration() error {
	mig := c.Migration
	if mig.Percentage < 0 || mig.Percentage > 100 {
		return invalid("migration.percentage", "must be within 0..100, got %d", mig.Percentage)
	}
	if mig.ErrorThreshold <= 0 {
		return invalid("migration.error_threshold", "must be positive, got %d", mig.ErrorThreshold)
	}
	if strings.TrimSpace(mig.StateFile) == "" {
		return invalid("migration.state_file", "must be non-empty")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Adapter {
	case "", "postgres", "mysql", "sqlite":
		return nil
	}
	return invalid("database.adapter", "unknown adapter %q (want postgres, mysql, or sqlite)", c.Database.Adapter)
}
