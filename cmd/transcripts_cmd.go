package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/store"
)

func transcriptsCmd() *cobra.Command {
	var timeframe string
	var roles, channels []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "transcripts [query]",
		Short: "Search the raw conversation log",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			engine, _, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			opts := memory.TranscriptSearchOptions{
				Timeframe: memory.Timeframe(timeframe),
				Channels:  channels,
				Limit:     limit,
			}
			if len(args) > 0 {
				opts.Query = args[0]
			}
			for _, r := range roles {
				opts.Roles = append(opts.Roles, store.Role(r))
			}

			results, err := engine.SearchTranscripts(ctx, opts)
			if err != nil {
				fatal(err)
			}
			printTranscripts(results, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "all", "recency window: today, week, month, all")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "filter by role")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "filter by channel")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printTranscripts(results []memory.TranscriptResult, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(results) == 0 {
		fmt.Println("No transcripts found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "WHEN\tCHANNEL\tROLE\tTYPE\tCONTENT\n")
	for _, t := range results {
		when := time.UnixMilli(t.CreatedAt).Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			when, t.Channel, t.Role, t.Type, truncateStr(t.Snippet, 70))
	}
	tw.Flush()
}
