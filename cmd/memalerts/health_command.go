package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"memalerts/internal/api"
	"memalerts/internal/config"
	"memalerts/internal/preflight"
	"memalerts/internal/queue"
)

type healthReport struct {
	Checks   []api.CheckResult  `json:"checks"`
	Database api.DatabaseHealth `json:"database"`
	AIStatus map[string]int     `json:"aiStatus"`
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check directories, tag vocabulary, analysis pipeline, and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				reqCtx := commandCtx(cmd)
				results := preflight.RunAll(reqCtx, cfg, nil)
				results = append(results, preflight.CheckDatabase(reqCtx, store))

				health, err := store.CheckHealth(reqCtx)
				if err != nil && health.Error == "" {
					health.Error = err.Error()
				}
				stats, err := store.Stats(reqCtx)
				if err != nil {
					return err
				}

				report := healthReport{
					Checks:   make([]api.CheckResult, 0, len(results)),
					Database: api.FromDatabaseHealth(health),
					AIStatus: make(map[string]int, len(stats)),
				}
				for _, r := range results {
					report.Checks = append(report.Checks, api.CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
				}
				for status, count := range stats {
					label := string(status)
					if label == "" {
						label = "none"
					}
					report.AIStatus[label] = count
				}

				if jsonOut {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					fmt.Fprintln(out, renderHealth(report, shouldColorize(out)))
				}
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d health check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderHealth(report healthReport, colorize bool) string {
	lines := renderSectionHeader("Checks", colorize)
	for _, check := range report.Checks {
		lines = append(lines, renderStatusLine(check.Name, passFail(check.Passed), check.Detail, colorize))
	}

	db := report.Database
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Database", colorize)...)
	size := "missing"
	if info, err := os.Stat(db.Path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	lines = append(lines, renderStatusLine("Path", statusInfo, fmt.Sprintf("%s (%s)", db.Path, size), colorize))
	lines = append(lines, renderStatusLine("Schema", statusInfo, fmt.Sprintf("v%d", db.SchemaVersion), colorize))
	lines = append(lines, renderStatusLine("Integrity", passFail(db.IntegrityCheck), yesNo(db.IntegrityCheck), colorize))
	if len(db.MissingTables) > 0 {
		lines = append(lines, renderStatusLine("Missing tables", statusError, strings.Join(db.MissingTables, ", "), colorize))
	}
	if len(db.MissingColumns) > 0 {
		lines = append(lines, renderStatusLine("Missing columns", statusError, strings.Join(db.MissingColumns, ", "), colorize))
	}
	if db.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, db.Error, colorize))
	}
	lines = append(lines, renderStatusLine("Submissions", statusInfo, humanize.Comma(int64(db.TotalSubmissions)), colorize))

	labels := make([]string, 0, len(report.AIStatus))
	for label := range report.AIStatus {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		lines = append(lines, renderStatusLine("  "+label, statusInfo, humanize.Comma(int64(report.AIStatus[label])), colorize))
	}
	return strings.Join(lines, "\n")
}
