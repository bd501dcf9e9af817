package scoring

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/contesthub/resultengine/internal/domain"
)

// Pipeline chains the scoring components over one contest snapshot:
//
//	scores   -> JudgeAggregator -> judge components
//	           CompositeRanker.Partition (exclude unjudged when judge weight > 0)
//	views    -> VoteNormalizer  -> vote components (rankable set only)
//	bonuses  -> BonusCalculator -> bonus components
//	           CompositeRanker.Rank -> AwardAssigner.Assign
//
// The pipeline performs no I/O and holds no state between runs; identical
// snapshots produce identical outcomes.
type Pipeline struct {
	config RankerConfig
}

// NewPipeline creates a pipeline with the given ranking configuration.
func NewPipeline(config RankerConfig) *Pipeline {
	return &Pipeline{config: config}
}

// Run computes the outcome of a snapshot. awardedAt is stamped on every
// awarded result and used as the outcome's computation time.
//
// Configuration problems are reported as a *domain.ConfigurationError before
// any computation happens. Data-quality problems never fail the run; they are
// returned in the outcome's warnings.
func (p *Pipeline) Run(snapshot *domain.ContestSnapshot, awardedAt time.Time) (*domain.ContestOutcome, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	contest := snapshot.Contest

	plan, err := p.prepare(snapshot)
	if err != nil {
		return nil, err
	}

	warnings := append([]domain.Warning(nil), plan.warnings...)

	submissions := candidateSubmissions(snapshot.Submissions)
	scores := scoresFor(submissions, snapshot.Scores)

	judges := map[string]JudgeResult{}
	if plan.judges != nil {
		var w []domain.Warning
		judges, w, err = plan.judges.Aggregate(scores)
		if err != nil {
			return nil, fmt.Errorf("aggregate judge scores: %w", err)
		}
		warnings = append(warnings, w...)
	}

	rankable, excluded, w := plan.ranker.Partition(submissions, judges)
	warnings = append(warnings, w...)

	votes := plan.votes.Normalize(rankable)

	ids := make([]string, len(rankable))
	for i, s := range rankable {
		ids[i] = s.ID
	}
	bonuses := plan.bonus.Calculate(ids, snapshot.Bonuses)

	candidates := make([]Candidate, 0, len(rankable))
	for _, s := range rankable {
		jr := judges[s.ID]
		candidates = append(candidates, Candidate{
			Submission: s,
			Components: domain.Components{
				Judge: jr.Component,
				Vote:  votes[s.ID],
				Bonus: bonuses[s.ID],
			},
			JudgeCount: jr.JudgeCount,
		})
	}

	ranking := plan.ranker.Rank(candidates)
	awarded, ranking := plan.awards.Assign(contest.ID, ranking, awardedAt)

	if excluded == nil {
		excluded = []domain.Exclusion{}
	}
	if warnings == nil {
		warnings = []domain.Warning{}
	}

	return &domain.ContestOutcome{
		ContestID:  contest.ID,
		Ranking:    ranking,
		Awarded:    awarded,
		Excluded:   excluded,
		Warnings:   warnings,
		ComputedAt: awardedAt,
	}, nil
}

// plan holds the components configured for one contest.
type plan struct {
	judges   *JudgeAggregator
	votes    *VoteNormalizer
	bonus    *BonusCalculator
	ranker   *CompositeRanker
	awards   *AwardAssigner
	warnings []domain.Warning
}

// prepare validates the contest configuration and builds the components.
// Every violation is collected into one ConfigurationError.
func (p *Pipeline) prepare(snapshot *domain.ContestSnapshot) (*plan, error) {
	contest := snapshot.Contest
	cfgErr := domain.NewConfigurationError(contest.ID)
	out := &plan{}

	if err := validate.Struct(contest); err != nil {
		cfgErr.Violations = append(cfgErr.Violations, describeValidation(err)...)
	}

	weights, w, err := NormalizeWeights(contest.JudgeWeightPercent, contest.OnlineVoteWeightPercent,
		contest.BonusPercentage, p.config.AllowEqualWeightFallback)
	if err != nil {
		cfgErr.Violations = append(cfgErr.Violations, err.Error())
	}
	out.warnings = append(out.warnings, w...)
	out.ranker = NewCompositeRanker(weights)

	if snapshot.Template != nil {
		schema, err := NewSchema(*snapshot.Template)
		if err != nil {
			cfgErr.Violations = append(cfgErr.Violations, err.Error())
		} else if out.judges, err = NewJudgeAggregator(schema); err != nil {
			cfgErr.Violations = append(cfgErr.Violations, err.Error())
		}
	} else if weights.Judge > 0 {
		cfgErr.Violations = append(cfgErr.Violations, "judge weight is positive but the contest has no judging template")
	}

	formula, err := contest.VoteFormula()
	if err != nil {
		cfgErr.Violations = append(cfgErr.Violations, err.Error())
	} else if out.votes, err = NewVoteNormalizer(formula); err != nil {
		cfgErr.Violations = append(cfgErr.Violations, err.Error())
	} else {
		out.warnings = append(out.warnings, out.votes.Warnings()...)
	}

	if out.bonus, err = NewBonusCalculator(BonusConfig{MaxScore: contest.BonusMaxScore}); err != nil {
		cfgErr.Violations = append(cfgErr.Violations, err.Error())
	}

	if out.awards, err = NewAwardAssigner(contest.AwardTiers); err != nil {
		cfgErr.Violations = append(cfgErr.Violations, err.Error())
	}

	if len(cfgErr.Violations) > 0 {
		cfgErr.Violations = dedupe(cfgErr.Violations)
		return nil, cfgErr
	}
	return out, nil
}

// ValidateContest reports whether the contest configuration can be computed
// with, without running the computation.
func (p *Pipeline) ValidateContest(snapshot *domain.ContestSnapshot) error {
	_, err := p.prepare(snapshot)
	return err
}

// candidateSubmissions keeps the ranked submission states, drops duplicate
// ids and sorts by id so downstream iteration never depends on read order.
func candidateSubmissions(submissions []domain.Submission) []domain.Submission {
	seen := make(map[string]bool, len(submissions))
	out := make([]domain.Submission, 0, len(submissions))
	for _, s := range submissions {
		if !s.Status.IsCandidate() || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// scoresFor keeps only the scores of the given submissions.
func scoresFor(submissions []domain.Submission, scores []domain.Score) []domain.Score {
	ids := make(map[string]bool, len(submissions))
	for _, s := range submissions {
		ids[s.ID] = true
	}
	out := make([]domain.Score, 0, len(scores))
	for _, s := range scores {
		if ids[s.SubmissionID] {
			out = append(out, s)
		}
	}
	return out
}

// describeValidation turns validator field errors into readable violations.
func describeValidation(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			out = append(out, fmt.Sprintf("%s failed %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
