package application

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/contesthub/resultengine/infrastructure/scoring"
	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/ports"
)

// Engine computes and persists contest results.
//
// A computation reads one snapshot of the contest, validates the contest's
// scoring configuration, runs the scoring pipeline and replaces the
// contest's results in one guarded write. If the contest's status or
// version changed after the snapshot was read the write is refused with a
// *domain.ConflictError and the caller retries the whole computation.
//
// Engine is safe for concurrent use. Concurrent computations of the same
// contest share one run.
type Engine struct {
	store    ports.ContestStore
	pipeline *scoring.Pipeline
	observer ports.RunObserver
	log      logrus.FieldLogger
	now      func() time.Time
	timeout  time.Duration
	dryRun   bool

	flights singleflight.Group
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithObserver installs a run observer for tracing and metrics.
func WithObserver(observer ports.RunObserver) EngineOption {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithLogger sets the logger used for run summaries and data-quality
// warnings.
func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock sets the clock that stamps new awards and score update times.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over store.
func NewEngine(store ports.ContestStore, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("contest store is required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	discard := logrus.New()
	discard.Out = io.Discard

	e := &Engine{
		store:    store,
		pipeline: scoring.NewPipeline(cfg.RankerConfig()),
		observer: noopObserver{},
		log:      discard,
		now:      time.Now,
		timeout:  cfg.Timeout,
		dryRun:   cfg.DryRun,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ComputeContestResults computes the ranking of a contest, assigns its
// award tiers and atomically replaces the contest's persisted results.
//
// Returns a *domain.ConfigurationError when the contest's scoring
// configuration is invalid, and a *domain.ConflictError when the contest is
// not judging or completed, or changed during the run. No results are
// written on any error. When the engine is configured for dry runs the
// outcome is computed but not written.
//
// Concurrent calls for the same contest share one run and receive the same
// outcome, which callers must treat as read-only.
func (e *Engine) ComputeContestResults(ctx context.Context, contestID string) (*domain.ContestOutcome, error) {
	return e.coalesce(ctx, "compute", contestID, !e.dryRun)
}

// PreviewContestResults runs the same computation without writing, so a
// host can review the ranking before finalizing. Previews are allowed in
// every contest status.
func (e *Engine) PreviewContestResults(ctx context.Context, contestID string) (*domain.ContestOutcome, error) {
	return e.coalesce(ctx, "preview", contestID, false)
}

// coalesce joins concurrent runs of the same contest. The shared run is
// detached from any one caller's cancellation and stays bounded by the
// engine timeout; each caller stops waiting when its own context ends.
func (e *Engine) coalesce(ctx context.Context, mode, contestID string, commit bool) (*domain.ContestOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flight := context.WithoutCancel(ctx)
	ch := e.flights.DoChan(mode+"/"+contestID, func() (any, error) {
		return e.observe(flight, contestID, commit)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			e.log.WithField("contest_id", contestID).Debug("joined in-flight computation")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*domain.ContestOutcome), nil
	}
}

func (e *Engine) observe(ctx context.Context, contestID string, commit bool) (*domain.ContestOutcome, error) {
	ctx, finish := e.observer.Observe(ctx, contestID)
	outcome, err := e.compute(ctx, contestID, commit)
	finish(outcome, err)
	return outcome, err
}

func (e *Engine) compute(ctx context.Context, contestID string, commit bool) (*domain.ContestOutcome, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	log := e.log.WithField("contest_id", contestID)
	start := e.now()

	snapshot, err := e.store.LoadSnapshot(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest %s: %w", contestID, err)
	}

	if err := e.pipeline.ValidateContest(snapshot); err != nil {
		log.WithError(err).Warn("contest configuration rejected")
		return nil, err
	}

	guard := snapshot.Guard()
	if commit && !guard.Status.Finalizable() {
		expected := domain.Guard{Status: domain.ContestJudging, Version: guard.Version}
		return nil, domain.NewConflictError(contestID, expected, guard)
	}

	awardedAt := e.now().UTC()
	outcome, err := e.pipeline.Run(snapshot, awardedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute contest %s: %w", contestID, err)
	}
	outcome.DryRun = !commit

	for _, w := range outcome.Warnings {
		entry := log.WithField("kind", w.Kind)
		if w.SubmissionID != "" {
			entry = entry.WithField("submission_id", w.SubmissionID)
		}
		if w.JudgeID != "" {
			entry = entry.WithField("judge_id", w.JudgeID)
		}
		entry.Warn(w.Message)
	}

	if commit {
		previous, err := e.store.LoadResults(ctx, contestID)
		if err != nil {
			return nil, fmt.Errorf("failed to load results for contest %s: %w", contestID, err)
		}
		keepAwardedAt(outcome.Awarded, previous)

		if err := e.store.ReplaceResults(ctx, contestID, guard, outcome.Awarded); err != nil {
			return nil, fmt.Errorf("failed to write results for contest %s: %w", contestID, err)
		}
	}

	log.WithFields(logrus.Fields{
		"ranked":   len(outcome.Ranking),
		"awarded":  len(outcome.Awarded),
		"excluded": len(outcome.Excluded),
		"warnings": len(outcome.Warnings),
		"dry_run":  outcome.DryRun,
		"elapsed":  e.now().Sub(start),
	}).Info("contest results computed")

	return outcome, nil
}

// RecordScore validates a judge's score against the contest's judging
// template and stores it, replacing the judge's previous score for the
// submission. Scores can only be written while the contest is judging;
// once it is completed its scores are read-only.
//
// Returns an error wrapping domain.ErrInvalidScore when the score does not
// fit the template, and a *domain.ConflictError when the contest is not
// judging.
func (e *Engine) RecordScore(ctx context.Context, contestID string, score domain.Score) (domain.Score, error) {
	contest, err := e.store.LoadContest(ctx, contestID)
	if err != nil {
		return domain.Score{}, fmt.Errorf("failed to load contest %s: %w", contestID, err)
	}

	if contest.Status != domain.ContestJudging {
		expected := domain.Guard{Status: domain.ContestJudging, Version: contest.Version}
		return domain.Score{}, domain.NewConflictError(contestID, expected, domain.Guard{Status: contest.Status, Version: contest.Version})
	}
	if contest.TemplateID == "" {
		return domain.Score{}, domain.NewConfigurationError(contestID, "contest has no judging template")
	}

	tpl, err := e.store.LoadTemplate(ctx, contest.TemplateID)
	if err != nil {
		return domain.Score{}, fmt.Errorf("failed to load template %s: %w", contest.TemplateID, err)
	}
	schema, err := scoring.NewSchema(*tpl)
	if err != nil {
		return domain.Score{}, domain.NewConfigurationError(contestID, err.Error())
	}

	if score.TemplateID == "" {
		score.TemplateID = contest.TemplateID
	}
	if err := schema.ValidateScore(score); err != nil {
		return domain.Score{}, err
	}

	score.Total = schema.Total(score.CriteriaScores)
	score.UpdatedAt = e.now().UTC()

	if err := e.store.UpsertScore(ctx, contestID, score); err != nil {
		return domain.Score{}, fmt.Errorf("failed to store score: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"contest_id":    contestID,
		"submission_id": score.SubmissionID,
		"judge_id":      score.JudgeID,
		"total":         score.Total,
	}).Debug("judge score recorded")

	return score, nil
}

// Results returns the persisted results of a contest in rank order.
func (e *Engine) Results(ctx context.Context, contestID string) ([]domain.ContestResult, error) {
	results, err := e.store.LoadResults(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for contest %s: %w", contestID, err)
	}
	return results, nil
}

// keepAwardedAt carries the award time of every unchanged award over from
// the previous results, so recomputing an unchanged contest rewrites
// identical rows.
func keepAwardedAt(awarded, previous []domain.ContestResult) {
	byID := make(map[string]domain.ContestResult, len(previous))
	for _, r := range previous {
		byID[r.ID] = r
	}
	for i := range awarded {
		prev, ok := byID[awarded[i].ID]
		if ok && sameAward(prev, awarded[i]) {
			awarded[i].AwardedAt = prev.AwardedAt
		}
	}
}

func sameAward(a, b domain.ContestResult) bool {
	if a.SubmissionID != b.SubmissionID || a.Rank != b.Rank || a.PrizeLabel != b.PrizeLabel {
		return false
	}
	if a.PrizeAmount == nil || b.PrizeAmount == nil {
		return a.PrizeAmount == b.PrizeAmount
	}
	return *a.PrizeAmount == *b.PrizeAmount
}

type noopObserver struct{}

func (noopObserver) Observe(ctx context.Context, _ string) (context.Context, func(*domain.ContestOutcome, error)) {
	return ctx, func(*domain.ContestOutcome, error) {}
}
