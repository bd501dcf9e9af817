package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/ports"
)

// Ensure InMemoryStore implements the ContestStore interface.
var _ ports.ContestStore = (*InMemoryStore)(nil)

// InMemoryStore is a ContestStore for tests. It keeps the same guard
// semantics as the database store: writes check status and version and
// either fully apply or change nothing.
type InMemoryStore struct {
	mu        sync.Mutex
	contests  map[string]*domain.ContestSnapshot
	templates map[string]domain.JudgingTemplate
	results   map[string][]domain.ContestResult

	// BeforeLoad runs at the start of LoadSnapshot with the caller's
	// context. Tests use it to hold a computation in flight.
	BeforeLoad func(ctx context.Context, contestID string)

	// BeforeReplace runs inside ReplaceResults before the guard check,
	// without the lock held. Tests use it to change the contest mid-run.
	BeforeReplace func(contestID string)

	// FailReplace, when set, is returned by ReplaceResults without writing.
	FailReplace error

	loadCalls    atomic.Int64
	replaceCalls atomic.Int64
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contests:  make(map[string]*domain.ContestSnapshot),
		templates: make(map[string]domain.JudgingTemplate),
		results:   make(map[string][]domain.ContestResult),
	}
}

// Put stores a snapshot and its template, replacing any previous state of
// the contest. Existing results are kept.
func (s *InMemoryStore) Put(snapshot *domain.ContestSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[snapshot.Contest.ID] = CloneSnapshot(snapshot)
	if snapshot.Template != nil {
		s.templates[snapshot.Template.ID] = *CloneSnapshot(snapshot).Template
	}
}

// SetStatus changes a contest's status and bumps its version.
func (s *InMemoryStore) SetStatus(contestID string, status domain.ContestStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contests[contestID]; ok {
		c.Contest.Status = status
		c.Contest.Version++
	}
}

// Results returns a copy of the stored results of a contest.
func (s *InMemoryStore) Results(contestID string) []domain.ContestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.results[contestID])
}

// Scores returns a copy of the stored scores of a contest.
func (s *InMemoryStore) Scores(contestID string) []domain.Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return nil
	}
	return CloneSnapshot(c).Scores
}

// LoadCalls reports how many snapshots were read.
func (s *InMemoryStore) LoadCalls() int64 { return s.loadCalls.Load() }

// ReplaceCalls reports how many result writes were attempted.
func (s *InMemoryStore) ReplaceCalls() int64 { return s.replaceCalls.Load() }

// LoadSnapshot returns a copy of the stored contest.
func (s *InMemoryStore) LoadSnapshot(ctx context.Context, contestID string) (*domain.ContestSnapshot, error) {
	if s.BeforeLoad != nil {
		s.BeforeLoad(ctx, contestID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.loadCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrContestNotFound, contestID)
	}
	return CloneSnapshot(c), nil
}

// ReplaceResults replaces the contest's results if guard still holds.
func (s *InMemoryStore) ReplaceResults(
	ctx context.Context,
	contestID string,
	guard domain.Guard,
	results []domain.ContestResult,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.replaceCalls.Add(1)

	if s.BeforeReplace != nil {
		s.BeforeReplace(contestID)
	}
	if s.FailReplace != nil {
		return ports.NewStoreError("ReplaceResults", contestID, s.FailReplace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrContestNotFound, contestID)
	}
	if actual := c.Guard(); actual != guard {
		return domain.NewConflictError(contestID, guard, actual)
	}
	s.results[contestID] = slices.Clone(results)
	return nil
}

// LoadContest returns a copy of the stored contest configuration.
func (s *InMemoryStore) LoadContest(ctx context.Context, contestID string) (*domain.Contest, error) {
	snapshot, err := s.LoadSnapshot(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return &snapshot.Contest, nil
}

// LoadResults returns the stored results in rank order.
func (s *InMemoryStore) LoadResults(_ context.Context, contestID string) ([]domain.ContestResult, error) {
	return s.Results(contestID), nil
}

// LoadTemplate returns a stored template.
func (s *InMemoryStore) LoadTemplate(_ context.Context, templateID string) (*domain.JudgingTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrTemplateNotFound, templateID)
	}
	tpl.Criteria = slices.Clone(tpl.Criteria)
	return &tpl, nil
}

// UpsertScore replaces the (submission, judge) score while the contest is
// judging.
func (s *InMemoryStore) UpsertScore(_ context.Context, contestID string, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrContestNotFound, contestID)
	}
	if c.Contest.Status != domain.ContestJudging {
		expected := domain.Guard{Status: domain.ContestJudging, Version: c.Contest.Version}
		return domain.NewConflictError(contestID, expected, c.Guard())
	}
	if !slices.ContainsFunc(c.Submissions, func(sub domain.Submission) bool { return sub.ID == score.SubmissionID }) {
		return fmt.Errorf("%w: %s", ports.ErrSubmissionNotFound, score.SubmissionID)
	}

	for i, existing := range c.Scores {
		if existing.SubmissionID == score.SubmissionID && existing.JudgeID == score.JudgeID {
			c.Scores[i] = score
			return nil
		}
	}
	c.Scores = append(c.Scores, score)
	return nil
}
