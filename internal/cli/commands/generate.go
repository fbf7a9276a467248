package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/cli/ui"
	"github.com/zero-models/zerogen/internal/config"
	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/schema"
)

// NewGenerateCommand creates the generate command, the main entry point of
// the tool.
func NewGenerateCommand() *cobra.Command {
	var (
		flags runFlags
		src   sourceFlags
	)

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"g"},
		Short:   "Generate TypeScript models from the database schema",
		Long: `Generate TypeScript interfaces, model classes, and reactive wrappers
from the database schema.

The schema comes from the configured source: a JSON snapshot by default,
or a live database when database.adapter is set or --db-url is passed.
Files are only rewritten when their generated content meaningfully
changed, so timestamps and formatting noise never dirty the working tree.

Examples:
  zerogen generate
  zerogen generate --table users --table posts
  zerogen generate --db-url postgres://localhost/myapp_development
  zerogen generate --dry-run --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), []string{
					"Check the YAML syntax of zerogen.yml",
					"Run 'zerogen init' to create a fresh configuration",
				}, noColorFlag))
				return err
			}
			cfg := svc.Config()

			opts, err := buildOptions(cfg, flags)
			if err != nil {
				var verr *config.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				}
				return err
			}

			logger := newLogger(verboseFlag, zapcore.ErrorLevel)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			stack, err := buildGenerator(ctx, cfg, opts, src, logger)
			if err != nil {
				return err
			}
			defer stack.close()

			if len(flags.tables) > 0 {
				if err := checkRequestedTables(cmd, stack, opts, flags.tables); err != nil {
					return err
				}
			}

			var res *generate.Result
			run := func() error {
				var runErr error
				res, runErr = stack.router.Route(ctx, opts)
				return runErr
			}
			if verboseFlag {
				err = run()
			} else {
				err = ui.WithSpinner(cmd.OutOrStdout(), "Generating models", noColorFlag, run)
			}
			if err != nil {
				if errors.Is(err, schema.ErrInvalidSchema) {
					fmt.Fprintln(cmd.ErrOrStderr(), ui.SchemaError(err.Error(), []string{
						"Run 'zerogen schema validate' for the full findings",
						"Regenerate the snapshot if the database has moved on",
					}, noColorFlag))
				}
				return err
			}

			ui.RenderRunSummary(cmd.OutOrStdout(), res, ui.SummaryOptions{
				Verbose: verboseFlag,
				NoColor: noColorFlag,
			})
			if !res.Success {
				return fmt.Errorf("generation failed with %d error(s)", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Report what would change without writing files")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Rewrite files even when the comparison says they are identical")
	cmd.Flags().StringArrayVar(&flags.tables, "table", nil, "Generate only this table (repeatable)")
	cmd.Flags().StringSliceVar(&flags.excludeTables, "exclude-tables", nil, "Skip these tables on top of the configured exclusions")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Write generated files under this directory")
	cmd.Flags().BoolVar(&flags.skipPrettier, "skip-prettier", false, "Skip the prettier pass over written files")
	cmd.Flags().BoolVar(&flags.skipValidation, "skip-validation", false, "Skip structural schema validation")
	addSourceFlags(cmd, &src)

	return cmd
}

// checkRequestedTables verifies every --table value exists before any file
// work starts. Suggestions come from the full table list, so excluded
// requests still get a useful hint.
func checkRequestedTables(cmd *cobra.Command, stack *generatorStack, opts generate.Options, tables []string) error {
	data, err := stack.schemas.ExtractFilteredSchema(cmd.Context(), schema.FilterOptions{
		ExcludeTables:  opts.ExcludeTables,
		SkipValidation: opts.SkipValidation,
	})
	if err != nil {
		return err
	}

	var missing []string
	for _, name := range tables {
		if _, ok := data.Table(name); !ok {
			missing = append(missing, name)
			suggestions := ui.FindSimilar(name, data.TableNames(), nil)
			fmt.Fprintln(cmd.ErrOrStderr(), ui.TableNotFoundError(name, suggestions, noColorFlag))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d requested table(s) not found in the schema", len(missing))
	}
	return nil
}
