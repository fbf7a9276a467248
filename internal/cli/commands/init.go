package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// initAnswers collects the interactive setup prompts.
type initAnswers struct {
	Adapter     string
	Snapshot    string
	DatabaseURL string
	OutputDir   string
	Percentage  int
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a zerogen.yml configuration interactively",
		Long: `Walk through the schema source, output layout, and pipeline rollout,
then write a commented zerogen.yml to the working directory.

Examples:
  zerogen init
  zerogen init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			const configPath = "zerogen.yml"

			if _, err := os.Stat(configPath); err == nil && !force {
				overwrite := false
				prompt := &survey.Confirm{
					Message: "zerogen.yml already exists. Overwrite it?",
				}
				if err := survey.AskOne(prompt, &overwrite); err != nil {
					return err
				}
				if !overwrite {
					return nil
				}
			}

			answers, err := askInitQuestions()
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, []byte(renderInitConfig(answers)), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", configPath, err)
			}

			successColor := color.New(color.FgGreen, color.Bold)
			infoColor := color.New(color.FgCyan)
			successColor.Printf("✓ Created %s\n", configPath)
			infoColor.Println("\nNext steps:")
			step := 1
			if answers.Adapter == "snapshot" {
				fmt.Printf("  %d. Put a schema snapshot at %s (or run 'zerogen schema dump --db-url ...')\n", step, answers.Snapshot)
				step++
			}
			fmt.Printf("  %d. Run 'zerogen generate' to produce the TypeScript models\n", step)
			fmt.Printf("  %d. Run 'zerogen generate --dry-run' first to preview the file set\n", step+1)
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing zerogen.yml without asking")

	return cmd
}

func askInitQuestions() (initAnswers, error) {
	answers := initAnswers{}

	if err := survey.AskOne(&survey.Select{
		Message: "Where does the schema come from?",
		Options: []string{"snapshot", "postgres", "mysql", "sqlite"},
		Default: "snapshot",
		Help:    "snapshot reads a JSON file; the others introspect a live database",
	}, &answers.Adapter); err != nil {
		return answers, err
	}

	if answers.Adapter == "snapshot" {
		if err := survey.AskOne(&survey.Input{
			Message: "Snapshot path:",
			Default: "db/zero_schema.json",
		}, &answers.Snapshot, survey.WithValidator(survey.Required)); err != nil {
			return answers, err
		}
	} else {
		if err := survey.AskOne(&survey.Input{
			Message: "Database URL:",
			Help:    "Leave empty to pass --db-url per invocation",
		}, &answers.DatabaseURL); err != nil {
			return answers, err
		}
	}

	if err := survey.AskOne(&survey.Input{
		Message: "Output directory for generated models:",
		Default: "frontend/src/models",
	}, &answers.OutputDir, survey.WithValidator(survey.Required)); err != nil {
		return answers, err
	}

	var percentage string
	if err := survey.AskOne(&survey.Input{
		Message: "Pipeline rollout percentage (0-100):",
		Default: "0",
		Help:    "0 keeps every run on the battle-tested legacy path",
	}, &percentage, survey.WithValidator(func(ans interface{}) error {
		s, _ := ans.(string)
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 || n > 100 {
			return fmt.Errorf("enter a number between 0 and 100")
		}
		return nil
	})); err != nil {
		return answers, err
	}
	answers.Percentage, _ = strconv.Atoi(strings.TrimSpace(percentage))

	return answers, nil
}

// renderInitConfig produces the commented zerogen.yml body.
func renderInitConfig(a initAnswers) string {
	var b strings.Builder

	b.WriteString("# zerogen configuration\n")
	b.WriteString("# Layering: compiled defaults < this file < environments.<env> < ZEROGEN_* env vars\n\n")

	b.WriteString("database:\n")
	if a.Adapter == "snapshot" {
		b.WriteString("  # Generation reads this JSON snapshot; refresh it with 'zerogen schema dump'.\n")
		fmt.Fprintf(&b, "  snapshot: %s\n", a.Snapshot)
	} else {
		fmt.Fprintf(&b, "  adapter: %s\n", a.Adapter)
		if a.DatabaseURL != "" {
			fmt.Fprintf(&b, "  url: %s\n", a.DatabaseURL)
		} else {
			b.WriteString("  # url: set here or pass --db-url per invocation\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("output:\n")
	fmt.Fprintf(&b, "  base_dir: %s\n", a.OutputDir)
	b.WriteString("  # types_dir, models_dir, and reactive_dir default to types/, models/, reactive/\n\n")

	b.WriteString("# Tables never generated. The built-in exclusions (schema_migrations,\n")
	b.WriteString("# ar_internal_metadata, ...) apply on top of this list.\n")
	b.WriteString("excluded_tables: []\n\n")

	b.WriteString("# Schema-type to TypeScript overrides, e.g. citext: string\n")
	b.WriteString("type_overrides: {}\n\n")

	b.WriteString("file_operations:\n")
	b.WriteString("  # Files are only rewritten on meaningful content changes.\n")
	b.WriteString("  dry_run: false\n")
	b.WriteString("  force: false\n")
	b.WriteString("  skip_formatting: false\n\n")

	b.WriteString("migration:\n")
	b.WriteString("  # Share of runs routed to the staged pipeline instead of the legacy\n")
	b.WriteString("  # coordinator. The ZEROGEN_MIGRATION_PERCENTAGE env var overrides this.\n")
	fmt.Fprintf(&b, "  percentage: %d\n", a.Percentage)
	b.WriteString("  canary: false\n")
	b.WriteString("  circuit_breaker: true\n")

	return b.String()
}
