package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/store"
)

func searchCmd() *cobra.Command {
	var maxResults int
	var minScore float64
	var sources []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Hybrid search over indexed memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			engine, _, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			opts := memory.SearchOptions{
				MaxResults: maxResults,
				MinScore:   minScore,
			}
			for _, s := range sources {
				opts.Sources = append(opts.Sources, store.Source(s))
			}

			results, err := engine.Search(ctx, args[0], opts)
			if err != nil {
				fatal(err)
			}
			printSearchResults(results, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum results (default from config)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum fused score (default from config)")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "restrict to sources: transcript, document")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printSearchResults(results []memory.SearchResult, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SCORE\tSOURCE\tLOCATION\tSNIPPET\n")
	for _, r := range results {
		location := r.ID[:8]
		if r.Path != "" {
			location = fmt.Sprintf("%s:%d-%d", r.Path, r.StartLine, r.EndLine)
		}
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n",
			r.Score, r.Source, truncateStr(location, 40), truncateStr(r.Snippet, 80))
	}
	tw.Flush()
}
