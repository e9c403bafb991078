package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"memalerts/internal/api"
	"memalerts/internal/config"
	"memalerts/internal/queue"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect content assets and channel projections",
	}
	cmd.AddCommand(newAssetShowCommand(ctx))
	cmd.AddCommand(newAssetPurgeCommand(ctx))
	cmd.AddCommand(newChannelMemesCommand(ctx))
	return cmd
}

func newAssetShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show the stored analysis and quarantine state for a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				reqCtx := commandCtx(cmd)
				fingerprint := strings.TrimSpace(args[0])
				asset, err := store.GetAsset(reqCtx, fingerprint)
				if err != nil {
					return err
				}
				if asset == nil {
					return fmt.Errorf("no asset for fingerprint %s", fingerprint)
				}
				quarantine, err := store.ActiveQuarantine(reqCtx, fingerprint, time.Now())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-16s %s\n", "Fingerprint:", asset.Fingerprint)
				fmt.Fprintf(out, "%-16s %s\n", "File:", api.RedactLocator(asset.FileLocator))
				fmt.Fprintf(out, "%-16s %s\n", "AI status:", fallback(string(asset.AIStatus), "none"))
				fmt.Fprintf(out, "%-16s %s\n", "Reusable:", yesNo(asset.Reusable()))
				if asset.PurgedAt != nil {
					fmt.Fprintf(out, "%-16s %s\n", "Purged:", relativeTime(asset.PurgedAt.Format(time.RFC3339)))
				}
				if a := asset.Analysis; a != nil {
					fmt.Fprintf(out, "%-16s %s (risk %.2f)\n", "Decision:", a.Decision, a.RiskScore)
					if len(a.AutoTags) > 0 {
						fmt.Fprintf(out, "%-16s %s\n", "Tags:", strings.Join(a.AutoTags, ", "))
					}
				}
				if quarantine != nil {
					fmt.Fprintf(out, "%-16s %s until %s (%s)\n", "Quarantined:",
						quarantine.Decision, quarantine.ExpiresAt.Format(time.RFC3339), fallback(quarantine.Reason, "no reason"))
				}
				return nil
			})
		},
	}
}

func newAssetPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <fingerprint>",
		Short: "Mark an asset's media as removed so it is never reused",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				changed, err := store.MarkAssetPurged(commandCtx(cmd), strings.TrimSpace(args[0]), time.Now())
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Asset %s marked purged\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Asset %s unknown or already purged\n", args[0])
				}
				return nil
			})
		},
	}
}

func newChannelMemesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "memes <channel-id>",
		Short: "List the approved memes published to a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				memes, err := store.ListChannelMemes(commandCtx(cmd), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(memes) == 0 {
					fmt.Fprintln(out, "No published memes")
					return nil
				}
				rows := make([][]string, 0, len(memes))
				for _, m := range memes {
					rows = append(rows, []string{
						m.SubmissionID,
						fallback(m.Title, "-"),
						fmt.Sprintf("%d", m.PriceCoins),
						strings.Join(m.AITags, ", "),
						relativeTime(m.CreatedAt.Format(time.RFC3339)),
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					left("Submission"), left("Title").clip(32), right("Price"), left("Tags").clip(40), left("Published"),
				}, rows))
				return nil
			})
		},
	}
}
