package queue

import (
	"strings"
	"time"
)

// Status is the product-facing lifecycle of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Moderatable reports whether automated moderation may still act on the submission.
func (s Status) Moderatable() bool {
	return s == StatusPending || s == StatusApproved
}

// AIStatus is the moderation backlog state. The empty value means the
// submission was never enqueued.
type AIStatus string

const (
	AIStatusNone       AIStatus = ""
	AIStatusPending    AIStatus = "pending"
	AIStatusProcessing AIStatus = "processing"
	AIStatusDone       AIStatus = "done"
	AIStatusFailed     AIStatus = "failed"
)

var aiStatuses = []AIStatus{AIStatusPending, AIStatusProcessing, AIStatusDone, AIStatusFailed}

// ParseAIStatus converts user input into an AIStatus.
func ParseAIStatus(value string) (AIStatus, bool) {
	normalized := AIStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range aiStatuses {
		if status == normalized {
			return status, true
		}
	}
	return AIStatusNone, false
}

// SourceKind describes where the submission's media lives.
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceURL    SourceKind = "url"
)

// Supported reports whether the moderation pipeline can analyze this source.
func (k SourceKind) Supported() bool {
	return k == SourceUpload || k == SourceURL
}

// Decision is the risk tier assigned by content analysis.
type Decision string

const (
	DecisionLow    Decision = "low"
	DecisionMedium Decision = "medium"
	DecisionHigh   Decision = "high"
)

// ParseDecision converts a decision label into a Decision.
func ParseDecision(value string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(value))) {
	case DecisionLow:
		return DecisionLow, true
	case DecisionMedium:
		return DecisionMedium, true
	case DecisionHigh:
		return DecisionHigh, true
	default:
		return "", false
	}
}

// AboveLowest reports whether the decision warrants quarantine.
func (d Decision) AboveLowest() bool {
	return d == DecisionMedium || d == DecisionHigh
}

// Analysis holds the outputs of a completed content analysis.
type Analysis struct {
	Decision      Decision
	RiskScore     float64
	Labels        []string
	AutoTags      []string
	RawTags       []string
	Transcript    string
	Title         string
	Description   string
	ModelVersions map[string]string
}

// Submission is a viewer-submitted meme awaiting or past moderation.
type Submission struct {
	ID            string
	ChannelID     string
	SubmitterID   string
	Status        Status
	SourceKind    SourceKind
	FileLocator   string
	Fingerprint   string
	DurationMS    int64
	Title         string
	AIStatus      AIStatus
	RetryCount    int
	LastTriedAt   *time.Time
	NextRetryAt   *time.Time
	LockedBy      string
	LockExpiresAt *time.Time
	Analysis      *Analysis
	AIError       string
	CompletedAt   *time.Time
	ReusedFrom    string
	EnqueueReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TerminalFailure reports whether the retry budget is exhausted.
func (s *Submission) TerminalFailure() bool {
	return s != nil && s.AIStatus == AIStatusFailed && s.NextRetryAt == nil
}

// LeaseExpired reports whether a processing row's lease is missing or past expiry.
func (s *Submission) LeaseExpired(now time.Time) bool {
	if s == nil || s.AIStatus != AIStatusProcessing {
		return false
	}
	if s.LockedBy == "" || s.LockExpiresAt == nil {
		return true
	}
	return !s.LockExpiresAt.After(now)
}

// Lease captures the lease fields a conditional update expects to observe.
func (s *Submission) Lease() LeaseObservation {
	return LeaseObservation{
		AIStatus:      s.AIStatus,
		RetryCount:    s.RetryCount,
		LockedBy:      s.LockedBy,
		LockExpiresAt: s.LockExpiresAt,
	}
}

// NewSubmission carries the fields required to register a submission.
type NewSubmission struct {
	ID          string
	ChannelID   string
	SubmitterID string
	SourceKind  SourceKind
	FileLocator string
	Fingerprint string
	DurationMS  int64
	Title       string
}

// LeaseObservation is the lease state a compare-and-set update requires.
type LeaseObservation struct {
	AIStatus      AIStatus
	RetryCount    int
	LockedBy      string
	LockExpiresAt *time.Time
}

// FailureTransition is the row state written after a failed attempt.
type FailureTransition struct {
	RetryCount  int
	AIStatus    AIStatus
	NextRetryAt *time.Time
	Error       string
	At          time.Time
}

// Terminal reports whether the transition exhausts the retry budget.
func (f FailureTransition) Terminal() bool {
	return f.AIStatus == AIStatusFailed && f.NextRetryAt == nil
}

// Asset is the canonical analysis record for a content fingerprint.
type Asset struct {
	Fingerprint string
	FileLocator string
	DurationMS  int64
	AIStatus    AIStatus
	Analysis    *Analysis
	CompletedAt *time.Time
	PurgedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Reusable reports whether the asset carries analysis that may be copied.
func (a *Asset) Reusable() bool {
	return a != nil && a.AIStatus == AIStatusDone && a.PurgedAt == nil && a.Analysis != nil
}

// QuarantineEntry blocks reuse and auto-approval for a fingerprint until it expires.
type QuarantineEntry struct {
	Fingerprint  string
	FileLocator  string
	Decision     Decision
	Reason       string
	SubmissionID string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Active reports whether the entry still applies at now.
func (q *QuarantineEntry) Active(now time.Time) bool {
	return q != nil && q.ExpiresAt.After(now)
}

// ChannelMeme is the per-channel playable projection of an approved submission.
type ChannelMeme struct {
	ID            string
	ChannelID     string
	Fingerprint   string
	SubmissionID  string
	Title         string
	PriceCoins    int
	SearchText    string
	AIDescription string
	AITags        []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChannelMemeText is the derived text refreshed on existing projections.
type ChannelMemeText struct {
	Fingerprint   string
	Title         string
	SearchText    string
	AIDescription string
	AITags        []string
	At            time.Time
}

// UnmappedTag counts free-form tags that did not match the vocabulary.
type UnmappedTag struct {
	Tag              string
	Occurrences      int
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	LastSubmissionID string
}

// BacklogCounts summarizes moderation backlog state at a point in time.
type BacklogCounts struct {
	NeverEnqueued  int
	Pending        int
	RetryReady     int
	Scheduled      int
	Processing     int
	Stuck          int
	Done           int
	FailedRetrying int
	FailedTerminal int
}

// BacklogCategory selects a sample slice of the backlog.
type BacklogCategory string

const (
	CategoryPending        BacklogCategory = "pending"
	CategoryScheduled      BacklogCategory = "scheduled"
	CategoryProcessing     BacklogCategory = "processing"
	CategoryStuck          BacklogCategory = "stuck"
	CategoryFailedTerminal BacklogCategory = "failed_terminal"
)

// DatabaseHealth captures diagnostic information about the backlog database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalSubmissions int
	Error            string
}
