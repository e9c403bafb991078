package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"memalerts/internal/api"
	"memalerts/internal/daemonrun"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's workflow status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newDaemonClient(cfg)
			if err != nil {
				return err
			}
			status, err := client.Status(commandCtx(cmd))
			if err != nil {
				if pid, pidErr := daemonrun.ReadPIDFile(cfg); pidErr == nil && pid > 0 {
					return fmt.Errorf("%w (pid file records %d)", err, pid)
				}
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderDaemonStatus(status, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderDaemonStatus(s api.DaemonStatus, colorize bool) string {
	lines := renderSectionHeader("Daemon", colorize)
	running := statusError
	runningText := "stopped"
	if s.Running {
		running = statusOK
		runningText = fmt.Sprintf("pid %d, started %s", s.PID, relativeTime(s.StartedAt))
	}
	lines = append(lines, renderStatusLine("Running", running, runningText, colorize))
	lines = append(lines, renderStatusLine("Database", statusInfo, s.DatabasePath, colorize))

	wf := s.Workflow
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Workflow", colorize)...)
	lines = append(lines, renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d (%s)", wf.Workers, wf.InstanceID), colorize))
	c := wf.Counters
	lines = append(lines, renderStatusLine("Attempts", statusInfo, fmt.Sprintf(
		"analyzed %d, reused %d, skipped %d, approved %d, failed %d, exhausted %d",
		c.Analyzed, c.Reused, c.Skipped, c.Approved, c.Failed, c.Exhausted), colorize))
	b := wf.Backlog
	lines = append(lines, renderStatusLine("Backlog", statusInfo, fmt.Sprintf(
		"pending %d, processing %d, scheduled %d, terminal %d", b.Pending, b.Processing, b.Scheduled, b.FailedTerminal), colorize))
	if b.Stuck > 0 {
		lines = append(lines, renderStatusLine("Stuck", statusWarn, fmt.Sprintf("%d", b.Stuck), colorize))
	}
	if r := wf.LastResult; r != nil {
		lines = append(lines, renderStatusLine("Last result", statusInfo, fmt.Sprintf(
			"%s %s %s", r.SubmissionID, r.Outcome, relativeTime(r.FinishedAt)), colorize))
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, wf.LastError, colorize))
	}
	w := wf.Watchdog
	lines = append(lines, renderStatusLine("Watchdog", statusInfo, fmt.Sprintf(
		"%d sweeps, %d recovered, last %s", w.Runs, w.TotalRecovered, relativeTime(w.LastRunAt)), colorize))

	if len(s.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Startup checks", colorize)...)
		for _, check := range s.Checks {
			lines = append(lines, renderStatusLine(check.Name, passFail(check.Passed), check.Detail, colorize))
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
