package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/cli/ui"
	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/schema"
	"github.com/zero-models/zerogen/internal/schema/introspect"
)

// NewPolymorphicCommand creates the polymorphic command group.
func NewPolymorphicCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polymorphic",
		Short: "Manage polymorphic association metadata",
		Long: `Polymorphic associations cannot be typed from the schema alone: the
set of models behind a *_type column only exists in the data. These
commands maintain the snapshot file generation reads union types from.

  discover  - Query the database for the types actually stored
  show      - List the snapshot contents

Examples:
  zerogen polymorphic discover --db-url postgres://localhost/myapp_development
  zerogen polymorphic show`,
	}

	cmd.AddCommand(newPolymorphicDiscoverCommand())
	cmd.AddCommand(newPolymorphicShowCommand())

	return cmd
}

func newPolymorphicShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the polymorphic association snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				return err
			}
			cfg := svc.Config()

			poly, err := generate.LoadPolymorphicConfig(cfg.GeneratorOptions.PolymorphicConfig)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			keys := poly.AssociationKeys()
			if len(keys) == 0 {
				fmt.Fprintln(out, ui.Info("No polymorphic associations recorded. Run 'zerogen polymorphic discover' against the development database.", noColorFlag))
				return nil
			}

			table := ui.NewTable(out, []string{"Association", "Type Column", "Types", "Rows"}, noColorFlag)
			for _, key := range keys {
				assoc := poly.Associations[key]
				table.AddRow(
					key,
					assoc.TypeColumn,
					strings.Join(assoc.Types(), ", "),
					strconv.Itoa(assoc.Statistics.TotalCount),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newPolymorphicDiscoverCommand() *cobra.Command {
	var (
		dbURL  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Query the database for polymorphic type usage",
		Long: `Find every polymorphic belongs_to in the schema, count the distinct
values in each type column, and write the results to the snapshot file.
Declared potential_types entries survive the rewrite; only the discovered
side is replaced.

Discovery reads production-shaped data, so point it at a database with
realistic rows. Only PostgreSQL is supported.

Examples:
  zerogen polymorphic discover --db-url postgres://localhost/myapp_development`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				return err
			}
			cfg := svc.Config()

			if dbURL == "" && cfg.Database.Adapter == "postgres" {
				dbURL = cfg.Database.URL
			}
			if dbURL == "" {
				return fmt.Errorf("discovery needs a PostgreSQL connection; pass --db-url or set database.adapter to postgres")
			}
			if output == "" {
				output = cfg.GeneratorOptions.PolymorphicConfig
			}
			if output == "" {
				output = generate.DefaultPolymorphicConfigPath
			}

			logger := newLogger(verboseFlag, zapcore.ErrorLevel)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			conn, err := pgx.Connect(ctx, dbURL)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", dbURL, err)
			}
			defer func() { _ = conn.Close(context.Background()) }()

			schemas := schema.NewSchemaService(introspect.NewPostgresExtractorWithConn(conn, ""), logger)

			var data *schema.SchemaData
			err = ui.WithSpinner(cmd.OutOrStdout(), "Extracting schema", noColorFlag, func() error {
				var exErr error
				data, exErr = schemas.ExtractFilteredSchema(ctx, schema.FilterOptions{
					ExcludeTables:  cfg.ExcludedTables,
					SkipValidation: true,
				})
				return exErr
			})
			if err != nil {
				return err
			}

			candidates := polymorphicCandidates(data)
			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintln(out, ui.Info("No polymorphic belongs_to associations in the schema.", noColorFlag))
				return nil
			}

			poly, err := generate.LoadPolymorphicConfig(output)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			bar := ui.NewProgressBar(out, ui.ProgressBarOptions{
				Total:   len(candidates),
				Message: "Analyzing associations",
				NoColor: noColorFlag,
			})
			for _, cand := range candidates {
				assoc, err := analyzeAssociation(ctx, conn, cand, now)
				if err != nil {
					bar.Finish()
					return fmt.Errorf("analyzing %s.%s: %w", cand.Table, cand.Name, err)
				}
				key := cand.Table + "." + cand.Name
				if prev, ok := poly.Associations[key]; ok {
					assoc.PotentialTypes = prev.PotentialTypes
				}
				poly.Associations[key] = assoc
				bar.Add(1)
			}
			bar.FinishWithMessage(fmt.Sprintf("Analyzed %d association(s)", len(candidates)))

			if err := generate.SavePolymorphicConfig(output, poly); err != nil {
				return err
			}

			ui.WriteSuccess(out, fmt.Sprintf("Polymorphic snapshot written to %s", output), noColorFlag)
			table := ui.NewTable(out, []string{"Association", "Types", "Rows"}, noColorFlag)
			for _, cand := range candidates {
				assoc := poly.Associations[cand.Table+"."+cand.Name]
				table.AddRow(
					cand.Table+"."+cand.Name,
					strings.Join(assoc.DiscoveredTypes, ", "),
					strconv.Itoa(assoc.Statistics.TotalCount),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db-url", "", "PostgreSQL connection string (defaults to database.url)")
	cmd.Flags().StringVar(&output, "output", "", "Snapshot path (defaults to generator_options.polymorphic_config)")

	return cmd
}

// polymorphicCandidate is one polymorphic belongs_to found in the schema.
type polymorphicCandidate struct {
	Table      string
	Name       string
	TypeColumn string
	IDColumn   string
}

// polymorphicCandidates pulls the polymorphic belongs_to associations out
// of the schema, sorted by table then association name.
func polymorphicCandidates(data *schema.SchemaData) []polymorphicCandidate {
	var cands []polymorphicCandidate
	for _, rel := range data.Relationships {
		if !rel.Polymorphic || rel.Kind != schema.BelongsTo {
			continue
		}
		cands = append(cands, polymorphicCandidate{
			Table:      rel.Table,
			Name:       rel.Name,
			TypeColumn: rel.Name + "_type",
			IDColumn:   rel.Name + "_id",
		})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Table != cands[j].Table {
			return cands[i].Table < cands[j].Table
		}
		return cands[i].Name < cands[j].Name
	})
	return cands
}

// analyzeAssociation counts the distinct type values stored in one
// association's type column.
func analyzeAssociation(ctx context.Context, conn *pgx.Conn, cand polymorphicCandidate, now time.Time) (generate.PolymorphicAssociation, error) {
	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM %s WHERE %s IS NOT NULL GROUP BY 1 ORDER BY 1",
		quotePgIdent(cand.TypeColumn), quotePgIdent(cand.Table), quotePgIdent(cand.TypeColumn),
	)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return generate.PolymorphicAssociation{}, err
	}
	defer rows.Close()

	assoc := generate.PolymorphicAssociation{
		TypeColumn: cand.TypeColumn,
		IDColumn:   cand.IDColumn,
		Statistics: generate.PolymorphicStatistics{
			TypeCounts:     map[string]int{},
			LastAnalyzedAt: now,
		},
	}
	for rows.Next() {
		var typeName string
		var count int64
		if err := rows.Scan(&typeName, &count); err != nil {
			return generate.PolymorphicAssociation{}, err
		}
		assoc.DiscoveredTypes = append(assoc.DiscoveredTypes, typeName)
		assoc.MappedTables = append(assoc.MappedTables, generate.TableForType(typeName))
		assoc.Statistics.TypeCounts[typeName] = int(count)
		assoc.Statistics.TotalCount += int(count)
	}
	if err := rows.Err(); err != nil {
		return generate.PolymorphicAssociation{}, err
	}
	return assoc, nil
}

// quotePgIdent double-quotes a PostgreSQL identifier sourced from schema
// metadata, doubling embedded quotes.
func quotePgIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
