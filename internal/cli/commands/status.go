package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/cli/ui"
	"github.com/zero-models/zerogen/internal/migration"
	"github.com/zero-models/zerogen/internal/status"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var (
		serve   bool
		addr    string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline migration status",
		Long: `Report the state of the legacy-to-pipeline migration: rollout
percentage, circuit breaker, persistent rollback, and per-path run
statistics.

Run counters live in the configured stats backend. With the default
in-memory backend a fresh process reports zero runs; point
performance.stats_backend at redis to aggregate across processes.

Examples:
  zerogen status
  zerogen status --json
  zerogen status --serve --addr 127.0.0.1:8090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				return err
			}
			cfg := svc.Config()

			logger := newLogger(verboseFlag, zapcore.ErrorLevel)
			defer func() { _ = logger.Sync() }()

			mig, err := buildMigrationState(cfg, logger)
			if err != nil {
				return err
			}
			defer mig.close()

			statusCfg := status.Config{
				Addr:     addr,
				Flags:    mig.flags,
				Rollback: mig.rollback,
				Stats:    mig.stats,
				Logger:   logger,
			}

			if serve {
				srv, err := status.NewServer(statusCfg)
				if err != nil {
					return err
				}

				errCh := make(chan error, 1)
				go func() { errCh <- srv.Start() }()

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, ui.Info(fmt.Sprintf("Serving migration status at http://%s/migration/status", srv.Addr()), noColorFlag))
				fmt.Fprintln(out, ui.Info("Press Ctrl+C to stop", noColorFlag))

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sigCh)
				select {
				case err := <-errCh:
					return err
				case <-sigCh:
				}

				fmt.Fprintln(out, "\nShutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}

			report := status.BuildReport(cmd.Context(), statusCfg)
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderStatusReport(cmd.OutOrStdout(), report, noColorFlag)
			return nil
		},
	}

	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the report over HTTP instead of printing it once")
	cmd.Flags().StringVar(&addr, "addr", status.DefaultAddr, "Listen address for --serve")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")

	return cmd
}

// renderStatusReport prints the migration report as terminal tables.
func renderStatusReport(w io.Writer, report status.Report, noColor bool) {
	ui.Header(w, "Migration Status", noColor)

	breaker := "disabled"
	if report.Flags.BreakerEnabled {
		breaker = fmt.Sprintf("%s (%d/%d consecutive errors)",
			report.Flags.BreakerState, report.Flags.ConsecutiveErrors, report.Flags.ErrorThreshold)
	}

	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Status", report.Status)
	kv.AddRow("Pipeline rollout", strconv.Itoa(report.Flags.Percentage)+"%")
	kv.AddRow("Sticky routing", strconv.FormatBool(report.Flags.Sticky))
	kv.AddRow("Canary mode", strconv.FormatBool(report.Flags.Canary))
	kv.AddRow("Circuit breaker", breaker)
	kv.AddRow("Rollback", string(report.Rollback.State))
	kv.Render()

	if len(report.Stats) > 0 {
		paths := make([]string, 0, len(report.Stats))
		for path := range report.Stats {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		table := ui.NewTable(w, []string{"Path", "Runs", "Errors", "Avg ms"}, noColor)
		for _, path := range paths {
			stats := report.Stats[path]
			table.AddRow(
				path,
				strconv.FormatInt(stats.Runs, 10),
				strconv.FormatInt(stats.Errors, 10),
				strconv.FormatInt(stats.AvgMillis(), 10),
			)
		}
		table.Render()
	}

	switch {
	case report.Rollback.State == migration.StateRolledBack:
		fmt.Fprintln(w, ui.MigrationError("Rollback is engaged", "every generation run uses the legacy path until 'zerogen rollback reset'", noColor))
	case report.Flags.BreakerState == migration.BreakerOpen:
		fmt.Fprintln(w, ui.MigrationError("Circuit breaker is open", "runs route to the legacy path for the rest of this process", noColor))
	}
	if report.RecommendRollback && report.Rollback.State == migration.StateActive {
		fmt.Fprintln(w, ui.Warning("The breaker trip pattern suggests pinning the legacy path", []string{
			"Run 'zerogen rollback trigger' to persist the decision",
		}, noColor))
	}

	if len(report.Rollback.History) > 0 {
		section := ui.NewSection(w, "Rollback History", noColor)
		for _, ev := range report.Rollback.History {
			section.AddLine(fmt.Sprintf("%s  %s -> %s  %s",
				ev.At.Format(time.RFC3339), ev.From, ev.To, ev.Reason))
		}
		section.Render()
	}
}
