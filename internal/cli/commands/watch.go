package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zero-models/zerogen/internal/cli/ui"
	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/status"
	"github.com/zero-models/zerogen/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	var (
		addr     string
		debounce time.Duration
		src      sourceFlags
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate models whenever the schema inputs change",
		Long: `Run an initial generation, then watch the schema snapshot, the
configuration file, and the template override directory, regenerating on
every change. Connected dev clients get regeneration events over a
websocket at /reload on the status server.

Examples:
  zerogen watch
  zerogen watch --debounce 500ms
  zerogen watch --addr 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColorFlag))
				return err
			}
			cfg := svc.Config()

			opts, err := buildOptions(cfg, runFlags{})
			if err != nil {
				return err
			}

			logger := newLogger(verboseFlag, zapcore.InfoLevel)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			stack, err := buildGenerator(ctx, cfg, opts, src, logger)
			if err != nil {
				return err
			}
			defer stack.close()

			reload := watch.NewReloadServer(logger)
			defer reload.Close()

			statusSrv, err := status.NewServer(status.Config{
				Addr:     addr,
				Flags:    stack.flags,
				Rollback: stack.rollback,
				Stats:    stack.stats,
				Router:   stack.router,
				Reload:   http.HandlerFunc(reload.HandleWebSocket),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			serveErr := make(chan error, 1)
			go func() { serveErr <- statusSrv.Start() }()

			snapshotPath := ""
			if adapter, location, err := resolveSource(cfg, src); err == nil && adapter == "snapshot" {
				snapshotPath = location
			}

			session, err := watch.NewSession(watch.SessionConfig{
				SnapshotPath: snapshotPath,
				ConfigPath:   svc.Source(),
				TemplateDir:  cfg.TemplateSettings.CustomDir,
				Debounce:     debounce,
				Regenerate: func(ctx context.Context) (*generate.Result, error) {
					return stack.router.Route(ctx, opts)
				},
				Reload: reload,
				Logger: logger,
			})
			if err != nil {
				return fmt.Errorf("%w (a snapshot source, a zerogen.yml, or template_settings.custom_dir gives watch something to look at)", err)
			}
			if err := session.Start(); err != nil {
				return err
			}

			banner := color.New(color.FgCyan, color.Bold)
			info := color.New(color.FgWhite)

			fmt.Println()
			banner.Println("zerogen watch")
			info.Printf("   Status:  http://%s/migration/status\n", statusSrv.Addr())
			info.Printf("   Reload:  ws://%s/reload\n", statusSrv.Addr())
			fmt.Println()
			color.New(color.FgYellow).Println("Press Ctrl+C to stop")
			fmt.Println()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			select {
			case err := <-serveErr:
				_ = session.Stop()
				return err
			case <-sigChan:
			}

			fmt.Println("\n\nShutting down...")
			if err := session.Stop(); err != nil {
				logger.Warn("stopping watch session", zap.Error(err))
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}

			color.New(color.FgGreen).Println("Goodbye!")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", status.DefaultAddr, "Status and reload server address")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "How long to wait for file change bursts to settle")
	addSourceFlags(cmd, &src)

	return cmd
}
