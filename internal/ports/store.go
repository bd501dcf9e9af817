// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/contesthub/resultengine/internal/domain"
)

// ContestStore is the persistence collaborator of the result engine.
// Implementations wrap a relational database but the engine only relies on
// the consistency guarantees documented on each method.
type ContestStore interface {
	// LoadSnapshot reads the contest, its judging template, the candidate
	// submissions, their scores and their verified bonus entries in one
	// point-in-time read. A judge's in-flight edit must never be half
	// reflected in the returned snapshot.
	//
	// Returns domain.ErrContestNotFound if the contest does not exist.
	LoadSnapshot(ctx context.Context, contestID string) (*domain.ContestSnapshot, error)

	// ReplaceResults atomically replaces every ContestResult of the contest
	// with results. The replacement only happens if the stored contest still
	// matches guard; otherwise a *domain.ConflictError is returned and
	// nothing is written. An empty results slice clears the contest's
	// results.
	ReplaceResults(ctx context.Context, contestID string, guard domain.Guard, results []domain.ContestResult) error

	// LoadContest returns the contest configuration without its
	// submissions. Returns domain.ErrContestNotFound if it does not exist.
	LoadContest(ctx context.Context, contestID string) (*domain.Contest, error)

	// LoadResults returns the persisted results of a contest ordered by rank.
	LoadResults(ctx context.Context, contestID string) ([]domain.ContestResult, error)

	// LoadTemplate returns the judging template with the given id.
	LoadTemplate(ctx context.Context, templateID string) (*domain.JudgingTemplate, error)

	// UpsertScore creates or overwrites the judge's score for a submission.
	// The store refuses the write with a *domain.ConflictError unless the
	// owning contest is judging.
	UpsertScore(ctx context.Context, contestID string, score domain.Score) error
}

// RunObserver receives lifecycle notifications for engine runs. It is used
// for tracing and metrics; implementations must be safe for concurrent use.
type RunObserver interface {
	// Observe is called when a run starts. The returned context is used for
	// the rest of the run and finish is called exactly once with its result.
	Observe(ctx context.Context, contestID string) (context.Context, func(*domain.ContestOutcome, error))
}
