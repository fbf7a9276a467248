// Package commands assembles the zerogen CLI. Every collaborator is
// constructed here and wired explicitly; there is no service registry.
package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// Persistent flags shared by every subcommand.
var (
	configFlag  string
	verboseFlag bool
	noColorFlag bool
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zerogen",
		Short: "TypeScript model generator for reactive sync frontends",
		Long: color.CyanString(`zerogen - schema-to-TypeScript model generator

zerogen introspects a relational schema (JSON snapshot or live database)
and generates TypeScript data interfaces, model classes, and reactive
model classes for a sync-enabled frontend.

Features:
  • Snapshot, PostgreSQL, MySQL, and SQLite schema sources
  • Enum, relationship, and polymorphic aware type mapping
  • Semantic diffing: unchanged schema produces zero writes
  • Legacy and staged generation paths behind migration flags
  • Watch mode with websocket reload for frontend dev servers`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColorFlag {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to zerogen.yml (default: search the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewSchemaCommand())
	rootCmd.AddCommand(NewPolymorphicCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewRollbackCommand())
	rootCmd.AddCommand(NewWatchCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the zerogen version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Print("zerogen version: ")
			valueColor.Println(Version)

			titleColor.Print("Git commit: ")
			valueColor.Println(GitCommit)

			titleColor.Print("Build date: ")
			valueColor.Println(BuildDate)

			titleColor.Print("Go version: ")
			valueColor.Println(goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
