package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/moru/host"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load modules and supervise their execution",
	Long: `Load the configured modules, initialize them, and drive the supervisor
loop until SIGINT/SIGTERM: idle modules are started every tick and finished
executions reaped, with their results logged.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("config", "c", "moru.toml", "Config file")
	runCmd.Flags().Duration("interval", 500*time.Millisecond, "Supervisor tick interval")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)
	configPath, _ := cmd.Flags().GetString("config")
	interval, _ := cmd.Flags().GetDuration("interval")

	cfg, err := host.LoadConfig(configPath)
	if err != nil {
		return err
	}

	uctx, err := host.NewContext(cfg, host.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := uctx.Initialize(ctx)
	if err != nil {
		return err
	}
	logger.Info("modules initialized", "modules", app.Modules())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := app.StartAll(ctx); err != nil {
			logger.Error("module start failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return shutdown(app, logger)
		case <-ticker.C:
		}

		results, err := app.ReapFinished(ctx)
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			app.Close(closeCtx)
			return fmt.Errorf("cleanup: %w", err)
		}
		logResults(logger, results)
	}
}

// shutdown reaps whatever already finished, then tears the host down.
// Executions still in flight are abandoned; they cannot be cancelled.
func shutdown(app *host.Context, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := app.ReapFinished(ctx)
	if err != nil {
		logger.Error("final cleanup failed", "error", err)
	}
	logResults(logger, results)

	if active := app.Active(); len(active) > 0 {
		logger.Info("abandoning running modules", "modules", active)
	}
	return app.Close(ctx)
}

func logResults(logger *slog.Logger, results []host.ModuleResult) {
	for _, r := range results {
		if r.Trap != nil {
			logger.Error("module trapped", "module", r.Module, "error", r.Trap)
		} else {
			logger.Info("module finished", "module", r.Module)
		}
	}
}
