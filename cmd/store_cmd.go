package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/config"
	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/store"
)

func storeCmd() *cobra.Command {
	var session, channel, role, msgType, taskStatus string
	var taskID int64
	var wait bool

	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a conversation entry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			engine, _, err := openEngine()
			if err != nil {
				fatal(err)
			}
			ctx := context.Background()
			defer engine.Close(ctx)

			params := memory.StoreMessageParams{
				SessionID: config.NormalizeSessionID(session),
				Channel:   channel,
				Role:      store.Role(role),
				Type:      store.TranscriptType(msgType),
				Content:   args[0],
			}
			if cmd.Flags().Changed("task-id") {
				params.TaskID = &taskID
				params.TaskStatus = taskStatus
			}

			id, err := engine.StoreMessage(ctx, params)
			if err != nil {
				fatal(err)
			}

			if wait {
				engine.Flush(ctx)
			}
			fmt.Println(id)
		},
	}

	cmd.Flags().StringVar(&session, "session", "default", "session identifier")
	cmd.Flags().StringVar(&channel, "channel", "cli", "channel name")
	cmd.Flags().StringVar(&role, "role", "user", "author role: user, assistant, system")
	cmd.Flags().StringVar(&msgType, "type", "message", "entry type: message, thought, task, reflection")
	cmd.Flags().Int64Var(&taskID, "task-id", 0, "associated task id")
	cmd.Flags().StringVar(&taskStatus, "task-status", "", "task status")
	cmd.Flags().BoolVar(&wait, "wait", false, "index synchronously before exiting")
	return cmd
}
