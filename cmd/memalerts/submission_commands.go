package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"memalerts/internal/api"
	"memalerts/internal/config"
	"memalerts/internal/lease"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

func newStatusService(cfg *config.Config, store *queue.Store) *api.StatusService {
	return api.NewStatusService(store, lease.PolicyFromConfig(cfg).StaleAfter)
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var in queue.NewSubmission
	var kind string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "submit <file-or-url>",
		Short: "Register a submission for moderation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.FileLocator = strings.TrimSpace(args[0])
			in.SourceKind = queue.SourceKind(strings.ToLower(strings.TrimSpace(kind)))
			if in.SourceKind == "" {
				in.SourceKind = queue.SourceUpload
				if strings.Contains(in.FileLocator, "://") {
					in.SourceKind = queue.SourceURL
				}
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				reqCtx := commandCtx(cmd)
				sub, err := store.CreateSubmission(reqCtx, in, time.Now())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Registered submission %s\n", sub.ID)
				if !enqueue {
					return nil
				}
				leases := lease.NewManager(store, lease.PolicyFromConfig(cfg), nil)
				if _, err := leases.Enqueue(reqCtx, sub.ID, "cli_submit"); err != nil {
					return fmt.Errorf("enqueue %s: %w", sub.ID, err)
				}
				fmt.Fprintln(out, "Queued for moderation")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "Submission id (generated when empty)")
	cmd.Flags().StringVar(&in.ChannelID, "channel", "", "Channel the meme was submitted to")
	cmd.Flags().StringVar(&in.SubmitterID, "submitter", "", "Viewer who submitted the meme")
	cmd.Flags().StringVar(&in.Title, "title", "", "Submission title")
	cmd.Flags().StringVar(&kind, "kind", "", "Source kind: upload or url (inferred when empty)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", true, "Enqueue the submission for moderation")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "enqueue <id>...",
		Short: "Enqueue submissions for moderation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				leases := lease.NewManager(store, lease.PolicyFromConfig(cfg), nil)
				out := cmd.OutOrStdout()
				var missing []string
				for _, id := range args {
					changed, err := leases.Enqueue(commandCtx(cmd), id, reason)
					switch {
					case errors.Is(err, services.ErrNotFound):
						fmt.Fprintf(out, "%s: not found\n", id)
						missing = append(missing, id)
					case err != nil:
						return fmt.Errorf("enqueue %s: %w", id, err)
					case changed:
						fmt.Fprintf(out, "%s: queued\n", id)
					default:
						fmt.Fprintf(out, "%s: already queued or in progress\n", id)
					}
				}
				if len(missing) > 0 {
					return fmt.Errorf("%d submission(s) not found", len(missing))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "cli", "Reason recorded with the enqueue")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a submission's moderation state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				sub, err := newStatusService(cfg, store).Describe(commandCtx(cmd), args[0])
				if err != nil {
					return err
				}
				if sub == nil {
					return fmt.Errorf("submission %s not found", args[0])
				}
				if jsonOut {
					return writeJSON(cmd, api.SubmissionResponse{Submission: *sub})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSubmission(*sub))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderSubmission(sub api.Submission) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-16s %s\n", label+":", value)
	}
	line("ID", sub.ID)
	line("Channel", sub.ChannelID)
	line("Submitter", fallback(sub.SubmitterID, "-"))
	line("Status", sub.Status)
	line("Source", fmt.Sprintf("%s (%s)", sub.File, sub.SourceKind))
	line("Title", fallback(sub.Title, "-"))
	line("AI status", sub.AIStatus)
	line("Attempts", fmt.Sprintf("%d", sub.RetryCount))
	line("Terminal", yesNo(sub.Terminal))
	if sub.EnqueueReason != "" {
		line("Enqueued by", sub.EnqueueReason)
	}
	if sub.LastTriedAt != "" {
		line("Last tried", relativeTime(sub.LastTriedAt))
	}
	if sub.NextRetryAt != "" {
		line("Next retry", relativeTime(sub.NextRetryAt))
	}
	if sub.LockedBy != "" {
		line("Locked by", fmt.Sprintf("%s until %s", sub.LockedBy, relativeTime(sub.LockExpiresAt)))
	}
	if sub.Error != "" {
		line("Error", sub.Error)
	}
	if sub.Fingerprint != "" {
		line("Fingerprint", sub.Fingerprint)
	}
	if sub.ReusedFrom != "" {
		line("Reused from", sub.ReusedFrom)
	}
	if a := sub.Analysis; a != nil {
		line("Decision", fmt.Sprintf("%s (risk %.2f)", a.Decision, a.RiskScore))
		if len(a.Labels) > 0 {
			line("Labels", strings.Join(a.Labels, ", "))
		}
		if len(a.Tags) > 0 {
			line("Tags", strings.Join(a.Tags, ", "))
		}
		line("Transcript", yesNo(a.HasTranscript))
	}
	return b.String()
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "retry <id>...",
		Short: "Reset terminally failed submissions for another round of attempts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				result, err := api.RetryFailedByID(commandCtx(cmd), newStatusService(cfg, store), args)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, item := range result.Items {
					switch item.Outcome {
					case api.RetryUpdated:
						fmt.Fprintf(out, "%s: reset for retry\n", item.ID)
					case api.RetryNotFound:
						fmt.Fprintf(out, "%s: not found\n", item.ID)
					default:
						fmt.Fprintf(out, "%s: not a terminal failure\n", item.ID)
					}
				}
				fmt.Fprintf(out, "%d submission(s) reset\n", result.UpdatedCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}
