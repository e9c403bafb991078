// Package approval decides whether analyzed content may be approved without a
// human moderator.
package approval

import (
	"math"

	"memalerts/internal/config"
	"memalerts/internal/queue"
)

// Reasons reported on a Verdict.
const (
	ReasonEligible       = "eligible"
	ReasonDisabled       = "disabled"
	ReasonNotLowestTier  = "decision_not_lowest"
	ReasonInvalidScore   = "invalid_score"
	ReasonScoreTooHigh   = "score_above_threshold"
	ReasonUnknownOutcome = "unknown_decision"
)

// Thresholds configures the policy.
type Thresholds struct {
	Enabled      bool
	MaxRiskScore float64
}

// ThresholdsFromConfig reads the approval section.
func ThresholdsFromConfig(cfg config.Approval) Thresholds {
	return Thresholds{Enabled: cfg.Enabled, MaxRiskScore: cfg.MaxRiskScore}
}

// Verdict is the policy outcome.
type Verdict struct {
	Approve bool
	Reason  string
}

// Decide reports whether content may be auto-approved. Only the lowest risk
// tier is eligible, and only when its score does not exceed the threshold.
func Decide(decision queue.Decision, riskScore float64, th Thresholds) Verdict {
	if !th.Enabled {
		return Verdict{Reason: ReasonDisabled}
	}
	parsed, ok := queue.ParseDecision(string(decision))
	if !ok {
		return Verdict{Reason: ReasonUnknownOutcome}
	}
	if parsed != queue.DecisionLow {
		return Verdict{Reason: ReasonNotLowestTier}
	}
	if math.IsNaN(riskScore) || math.IsInf(riskScore, 0) || riskScore < 0 {
		return Verdict{Reason: ReasonInvalidScore}
	}
	if riskScore > th.MaxRiskScore {
		return Verdict{Reason: ReasonScoreTooHigh}
	}
	return Verdict{Approve: true, Reason: ReasonEligible}
}
