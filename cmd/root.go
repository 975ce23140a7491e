// Package cmd implements the recall command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Personal memory and retrieval engine",
		Long: `recall stores conversation transcripts and a working-memory file in a
local SQLite database and retrieves them with hybrid vector+keyword search.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(flagLogLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (JSON5)")
	cmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(storeCmd())
	cmd.AddCommand(searchCmd())
	cmd.AddCommand(transcriptsCmd())
	cmd.AddCommand(syncCmd())
	cmd.AddCommand(factCmd())
	cmd.AddCommand(memoryCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(watchCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
