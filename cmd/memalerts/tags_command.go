package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"memalerts/internal/config"
	"memalerts/internal/queue"
	"memalerts/internal/tags"
)

func newTagsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Tag vocabulary utilities",
	}
	cmd.AddCommand(newTagsCheckCommand(ctx))
	cmd.AddCommand(newTagsUnmappedCommand(ctx))
	return cmd
}

func newTagsCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the tag vocabulary file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			vocab, err := tags.LoadVocabulary(cfg.Tags.VocabularyPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d aliases\n", cfg.Tags.VocabularyPath, vocab.Len())
			return nil
		},
	}
}

func newTagsUnmappedCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unmapped",
		Short: "List analysis tags that did not match the vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				unmapped, err := store.ListUnmappedTags(commandCtx(cmd), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(unmapped) == 0 {
					fmt.Fprintln(out, "No unmapped tags")
					return nil
				}
				rows := make([][]string, 0, len(unmapped))
				for _, u := range unmapped {
					rows = append(rows, []string{
						u.Tag,
						strconv.Itoa(u.Occurrences),
						relativeTime(u.LastSeenAt.Format(time.RFC3339)),
						u.LastSubmissionID,
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					left("Tag").clip(32), right("Seen"), left("Last seen"), left("Last submission"),
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}
