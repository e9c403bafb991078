package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"memalerts/internal/api"
	"memalerts/internal/config"
	"memalerts/internal/queue"
)

var sampleOrder = []queue.BacklogCategory{
	queue.CategoryPending,
	queue.CategoryScheduled,
	queue.CategoryProcessing,
	queue.CategoryStuck,
	queue.CategoryFailedTerminal,
}

func newBacklogCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Summarize the moderation backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				backlog, err := newStatusService(cfg, store).Backlog(commandCtx(cmd), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, backlog)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderBacklog(backlog, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", api.DefaultSampleLimit, "Samples per category")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderBacklog(b api.Backlog, colorize bool) string {
	c := b.Counts
	rows := [][]string{
		{"Never enqueued", strconv.Itoa(c.NeverEnqueued)},
		{"Pending", strconv.Itoa(c.Pending)},
		{"  ready retries", strconv.Itoa(c.RetryReady)},
		{"Scheduled retries", strconv.Itoa(c.Scheduled)},
		{"Processing", strconv.Itoa(c.Processing)},
		{"  stuck", strconv.Itoa(c.Stuck)},
		{"Done", strconv.Itoa(c.Done)},
		{"Failed (retrying)", strconv.Itoa(c.FailedRetrying)},
		{"Failed (terminal)", strconv.Itoa(c.FailedTerminal)},
	}
	var sections []string
	sections = append(sections, strings.Join(renderSectionHeader("Backlog", colorize), "\n"))
	sections = append(sections, renderTable([]column{left("State"), right("Count")}, rows))

	for _, category := range sampleOrder {
		subs := b.Samples[string(category)]
		if len(subs) == 0 {
			continue
		}
		sections = append(sections, strings.Join(renderSectionHeader(categoryTitle(category), colorize), "\n"))
		sections = append(sections, renderSubmissionTable(subs))
	}
	if c.Stuck > 0 {
		sections = append(sections, renderStatusLine("Watchdog", statusWarn,
			fmt.Sprintf("%d stuck submission(s); run `memalerts watchdog` or wait for the daemon sweep", c.Stuck), colorize))
	}
	return strings.Join(sections, "\n")
}

func categoryTitle(category queue.BacklogCategory) string {
	switch category {
	case queue.CategoryPending:
		return "Oldest pending"
	case queue.CategoryScheduled:
		return "Next scheduled retries"
	case queue.CategoryProcessing:
		return "Processing"
	case queue.CategoryStuck:
		return "Stuck"
	case queue.CategoryFailedTerminal:
		return "Terminal failures"
	default:
		return string(category)
	}
}

func renderSubmissionTable(subs []api.Submission) string {
	rows := make([][]string, 0, len(subs))
	for _, sub := range subs {
		when := relativeTime(sub.UpdatedAt)
		switch {
		case sub.NextRetryAt != "":
			when = "retry " + relativeTime(sub.NextRetryAt)
		case sub.LockExpiresAt != "":
			when = "lease ends " + relativeTime(sub.LockExpiresAt)
		}
		rows = append(rows, []string{
			sub.ID,
			sub.File,
			sub.AIStatus,
			strconv.Itoa(sub.RetryCount),
			when,
			fallback(sub.Error, "-"),
		})
	}
	return renderTable([]column{
		left("ID"), left("File").clip(40), left("AI"), right("Attempts"), left("When"), left("Error").clip(48),
	}, rows)
}
