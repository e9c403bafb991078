package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memalerts/internal/api"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process [id]",
		Short: "Run moderation attempts in the foreground",
		Long: "Without an id, drains ready submissions with a single worker. With an id,\n" +
			"claims and processes that submission if it is claimable now.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd.ErrOrStderr(), func(rt *localRuntime) error {
				if err := rt.cfg.RequirePipeline(); err != nil {
					return err
				}
				reqCtx := commandCtx(cmd)
				out := cmd.OutOrStdout()
				workerID := rt.workflow.WorkerID(0)
				if len(args) == 1 {
					handled, err := rt.workflow.ProcessSubmission(reqCtx, args[0], workerID)
					if err != nil {
						return err
					}
					if !handled {
						return fmt.Errorf("submission %s is not claimable (not pending, leased elsewhere, or waiting for retry)", args[0])
					}
				} else {
					processed, err := rt.workflow.Drain(reqCtx, limit)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Processed %d submission(s)\n", processed)
				}
				summary := rt.workflow.Status(reqCtx)
				c := summary.Counters
				fmt.Fprintf(out, "analyzed=%d reused=%d skipped=%d approved=%d failed=%d exhausted=%d\n",
					c.Analyzed, c.Reused, c.Skipped, c.Approved, c.Failed, c.Exhausted)
				if summary.LastError != "" {
					fmt.Fprintf(out, "last error: %s\n", summary.LastError)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum attempts when draining (0 for no limit)")
	return cmd
}

func newWatchdogCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Run one watchdog sweep over stuck submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd.ErrOrStderr(), func(rt *localRuntime) error {
				state, err := rt.workflow.SweepOnce(commandCtx(cmd))
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.FromWatchdogState(state))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Stuck found: %d\n", state.StuckFound)
				fmt.Fprintf(out, "Recovered:   %d\n", state.Recovered)
				fmt.Fprintf(out, "Exhausted:   %d\n", len(state.Exhausted))
				for _, id := range state.Exhausted {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}
