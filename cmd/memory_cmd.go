package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Re-index the working-memory file if it changed",
		Run: func(cmd *cobra.Command, args []string) {
			engine, cfg, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			if err := engine.Sync(ctx); err != nil {
				fatal(err)
			}
			fmt.Printf("Synced %s\n", cfg.MemoryFile)
		},
	}
}

func factCmd() *cobra.Command {
	var section string

	cmd := &cobra.Command{
		Use:   "fact [text]",
		Short: "Append a fact to working memory and re-index",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			engine, _, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			if err := engine.AddFact(ctx, args[0], section); err != nil {
				fatal(err)
			}
			fmt.Println("Fact recorded.")
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "markdown section to append under (default Facts)")
	return cmd
}

func memoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memory",
		Short: "Print the working-memory file",
		Run: func(cmd *cobra.Command, args []string) {
			engine, _, err := openEngine()
			if err != nil {
				fatal(err)
			}
			defer engine.Close(context.Background())

			content, err := engine.GetWorkingMemory()
			if err != nil {
				fatal(err)
			}
			if content == "" {
				fmt.Println("Working memory is empty.")
				return
			}
			fmt.Print(content)
		},
	}
}
