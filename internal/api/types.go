package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Submission describes a submission in a transport-friendly format.
type Submission struct {
	ID            string    `json:"id"`
	ChannelID     string    `json:"channelId"`
	SubmitterID   string    `json:"submitterId,omitempty"`
	Status        string    `json:"status"`
	SourceKind    string    `json:"sourceKind"`
	File          string    `json:"file"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Title         string    `json:"title,omitempty"`
	AIStatus      string    `json:"aiStatus"`
	RetryCount    int       `json:"retryCount"`
	LastTriedAt   string    `json:"lastTriedAt,omitempty"`
	NextRetryAt   string    `json:"nextRetryAt,omitempty"`
	LockedBy      string    `json:"lockedBy,omitempty"`
	LockExpiresAt string    `json:"lockExpiresAt,omitempty"`
	Terminal      bool      `json:"terminal"`
	Error         string    `json:"error,omitempty"`
	ReusedFrom    string    `json:"reusedFrom,omitempty"`
	EnqueueReason string    `json:"enqueueReason,omitempty"`
	CompletedAt   string    `json:"completedAt,omitempty"`
	CreatedAt     string    `json:"createdAt,omitempty"`
	UpdatedAt     string    `json:"updatedAt,omitempty"`
	Analysis      *Analysis `json:"analysis,omitempty"`
}

// Analysis mirrors the stored moderation outputs.
type Analysis struct {
	Decision      string            `json:"decision"`
	RiskScore     float64           `json:"riskScore"`
	Labels        []string          `json:"labels,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	RawTags       []string          `json:"rawTags,omitempty"`
	Title         string            `json:"title,omitempty"`
	Description   string            `json:"description,omitempty"`
	HasTranscript bool              `json:"hasTranscript"`
	ModelVersions map[string]string `json:"modelVersions,omitempty"`
}

// BacklogCounts summarizes backlog state.
type BacklogCounts struct {
	NeverEnqueued  int `json:"neverEnqueued"`
	Pending        int `json:"pending"`
	RetryReady     int `json:"retryReady"`
	Scheduled      int `json:"scheduled"`
	Processing     int `json:"processing"`
	Stuck          int `json:"stuck"`
	Done           int `json:"done"`
	FailedRetrying int `json:"failedRetrying"`
	FailedTerminal int `json:"failedTerminal"`
}

// Backlog is the payload served by GET /api/backlog.
type Backlog struct {
	GeneratedAt string                  `json:"generatedAt"`
	Counts      BacklogCounts           `json:"counts"`
	Samples     map[string][]Submission `json:"samples"`
}

// ItemResult describes the most recent finished attempt.
type ItemResult struct {
	SubmissionID string `json:"submissionId"`
	WorkerID     string `json:"workerId"`
	Outcome      string `json:"outcome"`
	Decision     string `json:"decision,omitempty"`
	Approved     bool   `json:"approved"`
	ReusedFrom   string `json:"reusedFrom,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
}

// Counters accumulate attempt results since daemon start.
type Counters struct {
	Analyzed  int `json:"analyzed"`
	Reused    int `json:"reused"`
	Skipped   int `json:"skipped"`
	Approved  int `json:"approved"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}

// WatchdogStatus reports the latest sweep.
type WatchdogStatus struct {
	Runs           int      `json:"runs"`
	LastRunAt      string   `json:"lastRunAt,omitempty"`
	StuckFound     int      `json:"stuckFound"`
	Recovered      int      `json:"recovered"`
	Exhausted      []string `json:"exhausted,omitempty"`
	TotalRecovered int      `json:"totalRecovered"`
	LastError      string   `json:"lastError,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	Workers    int            `json:"workers"`
	InstanceID string         `json:"instanceId"`
	LastError  string         `json:"lastError,omitempty"`
	LastResult *ItemResult    `json:"lastResult,omitempty"`
	Counters   Counters       `json:"counters"`
	Backlog    BacklogCounts  `json:"backlog"`
	Watchdog   WatchdogStatus `json:"watchdog"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	StartedAt    string         `json:"startedAt,omitempty"`
	Workflow     WorkflowStatus `json:"workflow"`
	Checks       []CheckResult  `json:"checks,omitempty"`
}

// CheckResult mirrors a single preflight or health check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DatabaseHealth reports schema and integrity diagnostics.
type DatabaseHealth struct {
	Path             string   `json:"path"`
	Exists           bool     `json:"exists"`
	Readable         bool     `json:"readable"`
	SchemaVersion    int      `json:"schemaVersion"`
	MissingTables    []string `json:"missingTables,omitempty"`
	MissingColumns   []string `json:"missingColumns,omitempty"`
	IntegrityCheck   bool     `json:"integrityCheck"`
	TotalSubmissions int      `json:"totalSubmissions"`
	Error            string   `json:"error,omitempty"`
	Healthy          bool     `json:"healthy"`
}

// SubmissionResponse wraps a single submission.
type SubmissionResponse struct {
	Submission Submission `json:"submission"`
}

// EnqueueResponse reports the outcome of an enqueue request.
type EnqueueResponse struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
