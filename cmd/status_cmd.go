package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/memory"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store capabilities and index counts",
		Run: func(cmd *cobra.Command, args []string) {
			engine, cfg, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			status := engine.Status()
			if jsonOutput {
				data, _ := json.MarshalIndent(status, "", "  ")
				fmt.Println(string(data))
				return
			}

			fmt.Printf("Database:       %s\n", cfg.DatabasePath)
			fmt.Printf("Schema version: %d\n", status.SchemaVersion)
			fmt.Printf("Keyword search: %s\n", availability(status.FTSAvailable))
			fmt.Printf("Vector search:  %s\n", availability(status.VectorAvailable))
			if status.VectorAvailable {
				fmt.Printf("Vector dims:    %d\n", status.VectorDims)
			}
			for _, e := range status.Errors {
				fmt.Printf("Warning:        %s\n", e)
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable (degraded)"
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the working-memory file and re-index on change",
		Run: func(cmd *cobra.Command, args []string) {
			engine, cfg, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			watcher, err := memory.NewWatcher(engine, cfg.MemoryFile)
			if err != nil {
				fatal(err)
			}
			if err := watcher.Start(ctx); err != nil {
				fatal(err)
			}
			defer watcher.Stop()

			fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.MemoryFile)
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
		},
	}
}
