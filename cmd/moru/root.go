package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "moru",
	Short: "WASM module host runtime",
	Long: `moru - Run pre-compiled WebAssembly modules with injected capabilities.

Modules are described in a TOML config file. Each one is compiled once,
linked against the messaging and debug capability surface, and supervised:
started when idle, reaped when its start function returns or traps. Modules
with a messaging block get a NATS connection and a companion event loop.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("log-json")

	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
