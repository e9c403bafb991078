package api

import (
	"context"
	"time"

	"memalerts/internal/queue"
)

// DefaultSampleLimit bounds each backlog sample when callers pass zero.
const DefaultSampleLimit = 5

// maxSampleLimit caps caller supplied sample sizes.
const maxSampleLimit = 50

var sampledCategories = []queue.BacklogCategory{
	queue.CategoryPending,
	queue.CategoryScheduled,
	queue.CategoryProcessing,
	queue.CategoryStuck,
	queue.CategoryFailedTerminal,
}

// BacklogStore abstracts the persistence reads the status surface needs.
type BacklogStore interface {
	BacklogCounts(ctx context.Context, now time.Time, staleBefore *time.Time) (queue.BacklogCounts, error)
	SampleSubmissions(ctx context.Context, category queue.BacklogCategory, now time.Time, staleBefore *time.Time, limit int) ([]*queue.Submission, error)
	GetSubmission(ctx context.Context, id string) (*queue.Submission, error)
	RetryFailed(ctx context.Context, at time.Time, ids ...string) (int64, error)
}

// StatusService exposes backlog queries returning API DTOs.
type StatusService struct {
	store      BacklogStore
	staleAfter time.Duration
	now        func() time.Time
}

// StatusOption customizes a StatusService.
type StatusOption func(*StatusService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StatusOption {
	return func(s *StatusService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStatusService constructs a StatusService. staleAfter matches the
// watchdog's staleness threshold so stuck counts agree with what a sweep
// would recover; zero disables staleness.
func NewStatusService(store BacklogStore, staleAfter time.Duration, opts ...StatusOption) *StatusService {
	if store == nil {
		return nil
	}
	s := &StatusService{store: store, staleAfter: staleAfter, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backlog returns counts per category plus up to sampleLimit submissions for
// each sampled category.
func (s *StatusService) Backlog(ctx context.Context, sampleLimit int) (Backlog, error) {
	if s == nil || s.store == nil {
		return Backlog{}, nil
	}
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	if sampleLimit > maxSampleLimit {
		sampleLimit = maxSampleLimit
	}
	now := s.now()
	cutoff := s.staleCutoff(now)

	counts, err := s.store.BacklogCounts(ctx, now, cutoff)
	if err != nil {
		return Backlog{}, err
	}
	backlog := Backlog{
		GeneratedAt: formatTime(now),
		Counts:      FromBacklogCounts(counts),
		Samples:     make(map[string][]Submission, len(sampledCategories)),
	}
	for _, category := range sampledCategories {
		subs, err := s.store.SampleSubmissions(ctx, category, now, cutoff, sampleLimit)
		if err != nil {
			return Backlog{}, err
		}
		backlog.Samples[string(category)] = FromSubmissions(subs)
	}
	return backlog, nil
}

// Describe fetches a single submission. It returns nil when the id is unknown.
func (s *StatusService) Describe(ctx context.Context, id string) (*Submission, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil || sub == nil {
		return nil, err
	}
	dto := FromSubmission(sub)
	return &dto, nil
}

// RetryFailed resets terminal failures for the given ids.
func (s *StatusService) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.RetryFailed(ctx, s.now(), ids...)
}

func (s *StatusService) staleCutoff(now time.Time) *time.Time {
	if s.staleAfter <= 0 {
		return nil
	}
	cutoff := now.Add(-s.staleAfter)
	return &cutoff
}
