package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memalerts/internal/api"
	"memalerts/internal/config"
	"memalerts/internal/queue"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions, optionally filtered by backlog status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.AIStatus, 0, len(statusFlags))
			for _, raw := range statusFlags {
				status, ok := queue.ParseAIStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q (want pending, processing, done, or failed)", raw)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				subs, err := store.ListSubmissions(commandCtx(cmd), limit, statuses...)
				if err != nil {
					return err
				}
				views := api.FromSubmissions(subs)
				if jsonOut {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No submissions")
					return nil
				}
				fmt.Fprintln(out, renderSubmissionTable(views))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by backlog status (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}
