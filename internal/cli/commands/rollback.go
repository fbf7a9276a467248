package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/cli/ui"
	"github.com/zero-models/zerogen/internal/migration"
)

// NewRollbackCommand creates the rollback command group.
func NewRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Manage the persistent pipeline rollback switch",
		Long: `The rollback switch pins every generation run to the legacy path. It
persists in the migration state file, so it survives process restarts
and overrides the rollout percentage until reset.

  trigger  - Engage the rollback
  reset    - Return routing to the feature flags
  history  - List recorded state transitions

Examples:
  zerogen rollback trigger --reason "pipeline emitted broken imports"
  zerogen rollback reset
  zerogen rollback history`,
	}

	cmd.AddCommand(newRollbackTriggerCommand())
	cmd.AddCommand(newRollbackResetCommand())
	cmd.AddCommand(newRollbackHistoryCommand())

	return cmd
}

// openRollback loads the config and the rollback manager for a rollback
// subcommand.
func openRollback(cmd *cobra.Command) (*migration.RollbackManager, error) {
	svc, err := loadConfig()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
		return nil, err
	}

	logger := newLogger(verboseFlag, zapcore.ErrorLevel)
	return migration.NewRollbackManager(svc.Config().Migration.StateFile, logger)
}

func newRollbackTriggerCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Pin every generation run to the legacy path",
		RunE: func(cmd *cobra.Command, args []string) error {
			rollback, err := openRollback(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := rollback.Trigger(reason); err != nil {
				fmt.Fprintln(out, ui.Warning(err.Error(), nil, noColorFlag))
				return nil
			}
			ui.WriteSuccess(out, "Rollback engaged: all generation runs use the legacy path", noColorFlag)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual rollback", "Why the rollback is being engaged")

	return cmd
}

func newRollbackResetCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return routing control to the feature flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			rollback, err := openRollback(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := rollback.Reset(reason); err != nil {
				fmt.Fprintln(out, ui.Warning(err.Error(), nil, noColorFlag))
				return nil
			}
			ui.WriteSuccess(out, "Rollback cleared: routing follows the configured rollout again", noColorFlag)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual reset", "Why the rollback is being cleared")

	return cmd
}

func newRollbackHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recorded rollback transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rollback, err := openRollback(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			events := rollback.History()
			if len(events) == 0 {
				fmt.Fprintln(out, ui.Info("No rollback events recorded.", noColorFlag))
				return nil
			}

			table := ui.NewTable(out, []string{"When", "From", "To", "Reason"}, noColorFlag)
			for _, ev := range events {
				table.AddRow(ev.At.Format(time.RFC3339), string(ev.From), string(ev.To), ev.Reason)
			}
			table.Render()
			return nil
		},
	}
}
