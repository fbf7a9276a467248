package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/config"
	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/generate/templates"
	"github.com/zero-models/zerogen/internal/generate/writer"
	"github.com/zero-models/zerogen/internal/migration"
	"github.com/zero-models/zerogen/internal/pipeline"
	"github.com/zero-models/zerogen/internal/schema"
	"github.com/zero-models/zerogen/internal/schema/introspect"
)

// newLogger builds the command logger: a development logger in verbose
// mode, otherwise a production logger capped at the given level. Logger
// construction failure degrades to a no-op logger instead of aborting the
// command.
func newLogger(verbose bool, level zapcore.Level) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadConfig loads the layered configuration honoring the persistent
// --config flag.
func loadConfig() (*config.Service, error) {
	return config.Load(configFlag)
}

// sourceFlags override the configured schema source for one invocation.
type sourceFlags struct {
	snapshot string
	dbURL    string
	adapter  string
}

// addSourceFlags binds the schema-source flags shared by generate, schema,
// polymorphic discover, and watch.
func addSourceFlags(cmd *cobra.Command, src *sourceFlags) {
	cmd.Flags().StringVar(&src.snapshot, "source", "", "Read the schema from this JSON snapshot")
	cmd.Flags().StringVar(&src.dbURL, "db-url", "", "Introspect this live database instead of a snapshot")
	cmd.Flags().StringVar(&src.adapter, "adapter", "", "Database adapter for --db-url (postgres, mysql, sqlite)")
}

// inferAdapter guesses the adapter from the connection string shape.
// Postgres URLs carry a scheme, MySQL DSNs carry the tcp address marker,
// and SQLite databases are plain file paths.
func inferAdapter(dbURL string) string {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return "postgres"
	case strings.Contains(dbURL, "@tcp("), strings.Contains(dbURL, "@unix("):
		return "mysql"
	case strings.HasPrefix(dbURL, "file:"),
		strings.HasSuffix(dbURL, ".db"),
		strings.HasSuffix(dbURL, ".sqlite"),
		strings.HasSuffix(dbURL, ".sqlite3"):
		return "sqlite"
	}
	return ""
}

// resolveSource merges the source flags over the configured database
// section and answers (adapter, location). adapter "snapshot" means
// location is a JSON snapshot path; anything else is a connection string.
func resolveSource(cfg *config.Config, src sourceFlags) (string, string, error) {
	if src.dbURL != "" {
		adapter := src.adapter
		if adapter == "" {
			adapter = inferAdapter(src.dbURL)
		}
		if adapter == "" {
			adapter = cfg.Database.Adapter
		}
		if adapter == "" {
			return "", "", fmt.Errorf("cannot infer the database adapter from %q; pass --adapter", src.dbURL)
		}
		return adapter, src.dbURL, nil
	}
	if src.snapshot != "" {
		return "snapshot", src.snapshot, nil
	}
	if cfg.Database.Adapter != "" {
		if cfg.Database.URL == "" {
			return "", "", fmt.Errorf("database.adapter is %q but database.url is empty", cfg.Database.Adapter)
		}
		return cfg.Database.Adapter, cfg.Database.URL, nil
	}
	return "snapshot", cfg.Database.Snapshot, nil
}

// newExtractor builds the schema extractor for the resolved source. The
// returned closer releases the database connection; snapshot extraction
// holds nothing open.
func newExtractor(ctx context.Context, cfg *config.Config, src sourceFlags) (schema.Extractor, func(), error) {
	adapter, location, err := resolveSource(cfg, src)
	if err != nil {
		return nil, nil, err
	}

	switch adapter {
	case "snapshot":
		return introspect.NewSnapshotExtractor(location), func() {}, nil
	case "postgres":
		ex, err := introspect.NewPostgresExtractor(ctx, location, "")
		if err != nil {
			return nil, nil, err
		}
		return ex, func() { _ = ex.Close(context.Background()) }, nil
	case "mysql":
		ex, err := introspect.NewMySQLExtractor(ctx, location, "")
		if err != nil {
			return nil, nil, err
		}
		return ex, func() { _ = ex.Close() }, nil
	case "sqlite":
		ex, err := introspect.NewSQLiteExtractor(ctx, location)
		if err != nil {
			return nil, nil, err
		}
		return ex, func() { _ = ex.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown schema adapter %q", adapter)
}

// runFlags are the per-run generation knobs accepted on top of the
// configuration file.
type runFlags struct {
	dryRun         bool
	force          bool
	tables         []string
	excludeTables  []string
	outputDir      string
	skipPrettier   bool
	skipValidation bool
}

// buildOptions merges the run flags over the configured defaults. Flags
// only widen booleans: a config that forces dry_run cannot be overridden
// back off from the command line.
func buildOptions(cfg *config.Config, f runFlags) (generate.Options, error) {
	opts := generate.Options{
		DryRun:         cfg.FileOperations.DryRun || f.dryRun,
		Force:          cfg.FileOperations.Force || f.force,
		OutputDir:      cfg.Output.BaseDir,
		Tables:         f.tables,
		ExcludeTables:  append([]string{}, cfg.ExcludedTables...),
		SkipFormatting: cfg.FileOperations.SkipFormatting || f.skipPrettier,
		SkipValidation: f.skipValidation,
		Verbose:        verboseFlag,
	}
	if f.outputDir != "" {
		opts.OutputDir = f.outputDir
	}
	opts.ExcludeTables = append(opts.ExcludeTables, f.excludeTables...)

	// The config validator already rejects absolute configured paths; the
	// flag goes through the same gate.
	if !cfg.GeneratorOptions.AllowAbsoluteOutput && filepath.IsAbs(opts.OutputDir) {
		return generate.Options{}, &config.ValidationError{
			Key:     "output.base_dir",
			Message: fmt.Sprintf("must be relative unless generator_options.allow_absolute_output is set, got %q", opts.OutputDir),
		}
	}
	return opts, nil
}

// migrationState bundles the routing flags, the persisted rollback switch,
// and the stats backend. Close releases the stats backend connection.
type migrationState struct {
	flags    *migration.FeatureFlags
	rollback *migration.RollbackManager
	stats    migration.StatsStore
	close    func()
}

// buildMigrationState constructs the migration harness pieces shared by
// the generate, status, and watch commands. Environment variables override
// the configured flag values.
func buildMigrationState(cfg *config.Config, logger *zap.Logger) (*migrationState, error) {
	flagsCfg := migration.FlagsConfigFromEnv(migration.FlagsConfig{
		Percentage:     cfg.Migration.Percentage,
		Canary:         cfg.Migration.Canary,
		Sticky:         cfg.Migration.Sticky,
		CircuitBreaker: cfg.Migration.CircuitBreaker,
		ErrorThreshold: cfg.Migration.ErrorThreshold,
	})
	flags := migration.NewFeatureFlags(flagsCfg)

	rollback, err := migration.NewRollbackManager(cfg.Migration.StateFile, logger)
	if err != nil {
		return nil, fmt.Errorf("loading rollback state: %w", err)
	}

	state := &migrationState{flags: flags, rollback: rollback, close: func() {}}
	switch cfg.Performance.StatsBackend {
	case "redis":
		rs, err := migration.NewRedisStats(migration.RedisStatsConfig{
			Addr:   cfg.Performance.RedisAddr,
			Prefix: migration.DefaultStatsPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to the redis stats backend at %s: %w", cfg.Performance.RedisAddr, err)
		}
		state.stats = rs
		state.close = func() { _ = rs.Close() }
	default:
		state.stats = migration.NewMemoryStats()
	}
	return state, nil
}

// generatorStack is everything one generation run needs, assembled at the
// CLI boundary. Close releases the extractor connection and the stats
// backend.
type generatorStack struct {
	schemas  *schema.SchemaService
	router   *migration.Router
	flags    *migration.FeatureFlags
	rollback *migration.RollbackManager
	stats    migration.StatsStore
	close    func()
}

// buildGenerator wires the full generation stack: extractor, schema
// service, renderer, file manager, both generation paths, and the
// migration router in front of them.
func buildGenerator(ctx context.Context, cfg *config.Config, opts generate.Options, src sourceFlags, logger *zap.Logger) (*generatorStack, error) {
	extractor, closeExtractor, err := newExtractor(ctx, cfg, src)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*generatorStack, error) {
		closeExtractor()
		return nil, err
	}

	schemas := schema.NewSchemaService(extractor, logger)

	poly, err := generate.LoadPolymorphicConfig(cfg.GeneratorOptions.PolymorphicConfig)
	if err != nil {
		return fail(err)
	}

	renderer := generate.NewModelRenderer(generate.RendererConfig{
		Templates: templates.NewRenderer(cfg.TemplateSettings.CustomDir),
		Mapper:    generate.NewTypeMapper(cfg.TypeOverrides, cfg.GeneratorOptions.UnknownType),
		Layout: generate.Layout{
			TypesDir:    cfg.Output.TypesDir,
			ModelsDir:   cfg.Output.ModelsDir,
			ReactiveDir: cfg.Output.ReactiveDir,
		},
		FieldMappings: cfg.FieldMappings,
	})

	comparator, err := writer.NewComparator(cfg.FileOperations.IgnoredHeaderPatterns)
	if err != nil {
		return fail(err)
	}

	var formatter writer.Formatter
	if !opts.SkipFormatting {
		prettier, err := writer.NewPrettierRunner(cfg.FileOperations.PrettierCommand, cfg.FileOperations.PrettierTimeout, logger)
		if err != nil {
			return fail(err)
		}
		formatter = prettier
	}

	files := writer.NewFileManager(writer.Config{
		BaseDir:        opts.OutputDir,
		Force:          opts.Force,
		DryRun:         opts.DryRun,
		BatchFileLimit: cfg.FileOperations.BatchFileLimit,
		BatchByteLimit: cfg.FileOperations.BatchByteLimit,
		Comparator:     comparator,
		Formatter:      formatter,
		Logger:         logger,
	})

	coordinator := generate.NewCoordinator(generate.CoordinatorConfig{
		Schemas:       schemas,
		Renderer:      renderer,
		Files:         files,
		Polymorphic:   poly,
		Logger:        logger,
		GenerateIndex: cfg.GeneratorOptions.GenerateIndex,
	})
	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Schemas:       schemas,
		Pipeline:      pipeline.NewGeneration(renderer, files, logger),
		Renderer:      renderer,
		Files:         files,
		Polymorphic:   poly,
		Logger:        logger,
		GenerateIndex: cfg.GeneratorOptions.GenerateIndex,
	})

	mig, err := buildMigrationState(cfg, logger)
	if err != nil {
		return fail(err)
	}

	router, err := migration.NewRouter(migration.RouterConfig{
		Legacy:   coordinator,
		Pipeline: runner,
		Flags:    mig.flags,
		Rollback: mig.rollback,
		Stats:    mig.stats,
		Logger:   logger,
	})
	if err != nil {
		mig.close()
		return fail(err)
	}

	return &generatorStack{
		schemas:  schemas,
		router:   router,
		flags:    mig.flags,
		rollback: mig.rollback,
		stats:    mig.stats,
		close: func() {
			mig.close()
			closeExtractor()
		},
	}, nil
}
