package api

import "context"

// SubmissionActionService captures the operations needed by per-item retry
// workflows.
type SubmissionActionService interface {
	Describe(ctx context.Context, id string) (*Submission, error)
	RetryFailed(ctx context.Context, ids ...string) (int64, error)
}

type RetryOutcome string

const (
	RetryUpdated     RetryOutcome = "retried"
	RetryNotFound    RetryOutcome = "not_found"
	RetryNotTerminal RetryOutcome = "not_terminal"
)

type RetryItemResult struct {
	ID       string       `json:"id"`
	Outcome  RetryOutcome `json:"outcome"`
	AIStatus string       `json:"aiStatus,omitempty"`
}

type RetryResult struct {
	UpdatedCount int64             `json:"updatedCount"`
	Items        []RetryItemResult `json:"items"`
}

// RetryFailedByID validates ids and resets only terminal failures. Rows that
// are still retrying on their own schedule are reported as not_terminal.
func RetryFailedByID(ctx context.Context, service SubmissionActionService, ids []string) (RetryResult, error) {
	result := RetryResult{Items: make([]RetryItemResult, 0, len(ids))}
	for _, id := range ids {
		sub, err := service.Describe(ctx, id)
		if err != nil {
			return RetryResult{}, err
		}
		if sub == nil {
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryNotFound})
			continue
		}
		if !sub.Terminal {
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryNotTerminal, AIStatus: sub.AIStatus})
			continue
		}
		updated, err := service.RetryFailed(ctx, id)
		if err != nil {
			return RetryResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryUpdated, AIStatus: "pending"})
			continue
		}
		result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryNotTerminal, AIStatus: sub.AIStatus})
	}
	return result, nil
}
