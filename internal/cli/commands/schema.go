package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/cli/ui"
	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/schema"
	"github.com/zero-models/zerogen/internal/schema/introspect"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and validate the schema source",
		Long: `Work with the schema source directly, without generating anything.

  dump      - Extract the schema and write it to a JSON snapshot
  validate  - Check the schema for structural problems and generation hazards

Examples:
  zerogen schema dump --db-url postgres://localhost/myapp_development
  zerogen schema validate`,
	}

	cmd.AddCommand(newSchemaDumpCommand())
	cmd.AddCommand(newSchemaValidateCommand())

	return cmd
}

func newSchemaDumpCommand() *cobra.Command {
	var (
		output string
		src    sourceFlags
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Extract the schema and write a JSON snapshot",
		Long: `Extract the schema from the configured source and write it to a JSON
snapshot. Later runs can generate from the snapshot without touching the
database, which keeps CI and frontend-only checkouts database-free.

Examples:
  zerogen schema dump --db-url postgres://localhost/myapp_development
  zerogen schema dump --output db/zero_schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				return err
			}
			cfg := svc.Config()

			if output == "" {
				output = cfg.Database.Snapshot
			}

			logger := newLogger(verboseFlag, zapcore.ErrorLevel)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			extractor, closeExtractor, err := newExtractor(ctx, cfg, src)
			if err != nil {
				return err
			}
			defer closeExtractor()

			schemas := schema.NewSchemaService(extractor, logger)

			// The snapshot keeps every application table; configured
			// exclusions and validation happen at generation time.
			var data *schema.SchemaData
			err = ui.WithSpinner(cmd.OutOrStdout(), "Extracting schema", noColorFlag, func() error {
				var exErr error
				data, exErr = schemas.ExtractFilteredSchema(ctx, schema.FilterOptions{SkipValidation: true})
				return exErr
			})
			if err != nil {
				return err
			}

			if err := introspect.WriteSnapshot(output, data); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ui.WriteSuccess(out, fmt.Sprintf("Schema written to %s", output), noColorFlag)
			kv := ui.NewKeyValueTable(out, noColorFlag)
			kv.AddRow("Tables", strconv.Itoa(len(data.Tables)))
			kv.AddRow("Relationships", strconv.Itoa(len(data.Relationships)))
			kv.AddRow("Tables with patterns", strconv.Itoa(len(data.Patterns)))
			kv.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Snapshot path (defaults to database.snapshot)")
	addSourceFlags(cmd, &src)

	return cmd
}

func newSchemaValidateCommand() *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the schema for problems before generating",
		Long: `Validate the schema the way a generation run would, then scan for
hazards that would degrade the generated output: column types with no
TypeScript mapping, enum columns without values, and polymorphic
associations that have never been discovered.

Structural problems (duplicate tables, dangling relationship targets,
nameless columns) fail the command. Hazards are reported as warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				return err
			}
			cfg := svc.Config()

			logger := newLogger(verboseFlag, zapcore.ErrorLevel)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			extractor, closeExtractor, err := newExtractor(ctx, cfg, src)
			if err != nil {
				return err
			}
			defer closeExtractor()

			schemas := schema.NewSchemaService(extractor, logger)

			var data *schema.SchemaData
			err = ui.WithSpinner(cmd.OutOrStdout(), "Validating schema", noColorFlag, func() error {
				var exErr error
				data, exErr = schemas.ExtractFilteredSchema(ctx, schema.FilterOptions{
					ExcludeTables: cfg.ExcludedTables,
				})
				return exErr
			})
			if err != nil {
				if errors.Is(err, schema.ErrInvalidSchema) {
					fmt.Fprintln(cmd.ErrOrStderr(), ui.SchemaError(err.Error(), []string{
						"Fix the schema source and re-run",
						"Pass --db-url to validate against the live database instead",
					}, noColorFlag))
				}
				return err
			}

			poly, err := generate.LoadPolymorphicConfig(cfg.GeneratorOptions.PolymorphicConfig)
			if err != nil {
				return err
			}
			mapper := generate.NewTypeMapper(cfg.TypeOverrides, cfg.GeneratorOptions.UnknownType)

			out := cmd.OutOrStdout()
			findings := schemaFindings(data, poly, mapper)
			if len(findings) == 0 {
				ui.WriteSuccess(out, fmt.Sprintf("Schema is valid: %d tables, %d relationships", len(data.Tables), len(data.Relationships)), noColorFlag)
				return nil
			}

			fmt.Fprintln(out, ui.Warning(fmt.Sprintf("Schema is structurally valid with %d finding(s)", len(findings)), nil, noColorFlag))
			list := ui.NewList(out, true, noColorFlag)
			for _, f := range findings {
				list.AddItem(f)
			}
			list.Render()
			return nil
		},
	}

	addSourceFlags(cmd, &src)

	return cmd
}

// schemaFindings scans a structurally valid schema for conditions that
// degrade generated output. Each finding is a single human-readable line.
func schemaFindings(data *schema.SchemaData, poly *generate.PolymorphicConfig, mapper *generate.TypeMapper) []string {
	var findings []string

	for _, table := range data.Tables {
		for i := range table.Columns {
			col := &table.Columns[i]
			// An empty enum already has its own finding; feeding it to the
			// mapper would also misreport its raw type as unmapped.
			if col.Enum && len(col.EnumValues) == 0 {
				findings = append(findings, fmt.Sprintf(
					"enum column %s.%s has no values; its generated type degrades to the unknown sentinel",
					table.Name, col.Name))
				continue
			}
			mapper.MapColumn(col)
		}
	}
	for _, raw := range mapper.UnknownTypes() {
		findings = append(findings, fmt.Sprintf(
			"column type %q has no TypeScript mapping; add a type_overrides entry", raw))
	}

	for _, rel := range data.Relationships {
		if !rel.Polymorphic || rel.Kind != schema.BelongsTo {
			continue
		}
		if _, ok := poly.Association(rel.Table, rel.Name); !ok {
			findings = append(findings, fmt.Sprintf(
				"polymorphic association %s.%s has no discovered types; run 'zerogen polymorphic discover'",
				rel.Table, rel.Name))
		}
	}

	return findings
}
