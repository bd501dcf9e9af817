package scoring

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/contesthub/resultengine/internal/domain"
)

// Weights are the contest weights normalized to sum to 100.
type Weights struct {
	Judge float64 `json:"judge"`
	Vote  float64 `json:"vote"`
	Bonus float64 `json:"bonus"`
}

// RankerConfig controls composite ranking behavior.
type RankerConfig struct {
	// AllowEqualWeightFallback splits the composite evenly across the three
	// components when every contest weight is zero. When false such a
	// contest is rejected as misconfigured.
	AllowEqualWeightFallback bool `yaml:"allow_equal_weight_fallback" json:"allow_equal_weight_fallback"`
}

// DefaultRankerConfig returns a RankerConfig with the equal-thirds fallback
// enabled.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{AllowEqualWeightFallback: true}
}

// NormalizeWeights rescales the operator-entered percentages so they sum to
// 100. A sum other than 100 is reported as a weight_sum_mismatch warning.
// When all three are zero the result is equal thirds, or ErrAllWeightsZero
// if the fallback is disabled. Negative or non-finite weights are rejected.
func NormalizeWeights(judge, vote, bonus float64, allowFallback bool) (Weights, []domain.Warning, error) {
	for _, w := range []float64{judge, vote, bonus} {
		if w < 0 || !isFinite(w) {
			return Weights{}, nil, fmt.Errorf("%w: weights must be non-negative (judge=%v, vote=%v, bonus=%v)",
				domain.ErrInvalidConfiguration, judge, vote, bonus)
		}
	}

	sum := judge + vote + bonus
	if sum == 0 {
		if !allowFallback {
			return Weights{}, nil, ErrAllWeightsZero
		}
		third := 100.0 / 3
		return Weights{Judge: third, Vote: third, Bonus: third}, []domain.Warning{{
			Kind:    domain.WarningWeightSumMismatch,
			Message: "judge, vote and bonus weights are all 0; using equal thirds",
		}}, nil
	}

	weights := Weights{
		Judge: judge / sum * 100,
		Vote:  vote / sum * 100,
		Bonus: bonus / sum * 100,
	}

	var warnings []domain.Warning
	if sum != 100 {
		warnings = append(warnings, domain.Warning{
			Kind: domain.WarningWeightSumMismatch,
			Message: fmt.Sprintf("weights sum to %v; normalized to judge=%.4g vote=%.4g bonus=%.4g",
				sum, weights.Judge, weights.Vote, weights.Bonus),
		})
	}
	return weights, warnings, nil
}

// Candidate is a rankable submission together with its components.
type Candidate struct {
	Submission domain.Submission
	Components domain.Components
	JudgeCount int
}

// CompositeRanker blends components into a composite score and sorts
// submissions into a deterministic total order.
//
// Tie-break order for equal composite scores: higher judge component (an
// undefined judge component sorts below any defined one), higher bonus
// component, earlier submission time, then lexicographically smaller
// submission id. Because submission ids are unique no two entries ever
// compare equal.
type CompositeRanker struct {
	weights Weights
}

// NewCompositeRanker creates a ranker with already-normalized weights.
func NewCompositeRanker(weights Weights) *CompositeRanker {
	return &CompositeRanker{weights: weights}
}

// Weights returns the normalized weights in use.
func (r *CompositeRanker) Weights() Weights { return r.weights }

// Partition splits candidate submissions into those that can be ranked and
// those excluded for missing judge data. A submission with no judge score is
// excluded only when the judge weight is positive. The input order is kept.
func (r *CompositeRanker) Partition(
	submissions []domain.Submission,
	judges map[string]JudgeResult,
) ([]domain.Submission, []domain.Exclusion, []domain.Warning) {
	var (
		rankable []domain.Submission
		excluded []domain.Exclusion
		warnings []domain.Warning
	)

	for _, s := range submissions {
		if jr, ok := judges[s.ID]; ok && jr.Component != nil {
			rankable = append(rankable, s)
			continue
		}
		if r.weights.Judge == 0 {
			rankable = append(rankable, s)
			continue
		}
		excluded = append(excluded, domain.Exclusion{
			SubmissionID: s.ID,
			Reason:       domain.ExclusionInsufficientJudgeData,
		})
		warnings = append(warnings, domain.Warning{
			Kind:         domain.WarningInsufficientJudgeData,
			SubmissionID: s.ID,
			Message:      "no judge has scored this submission; pending judge scores",
		})
	}

	return rankable, excluded, warnings
}

// Composite returns the blended 0–100 score for the given components.
func (r *CompositeRanker) Composite(c domain.Components) float64 {
	var judge float64
	if r.weights.Judge > 0 {
		judge = c.JudgeOrZero()
	}
	return round((r.weights.Judge*judge + r.weights.Vote*c.Vote + r.weights.Bonus*c.Bonus) / 100)
}

// Rank computes composite scores and returns the entries sorted in final
// order with 1-based dense ranks assigned by position.
func (r *CompositeRanker) Rank(candidates []Candidate) []domain.RankedEntry {
	entries := make([]domain.RankedEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, domain.RankedEntry{
			SubmissionID:   c.Submission.ID,
			CompositeScore: r.Composite(c.Components),
			Components:     c.Components,
			JudgeCount:     c.JudgeCount,
			SubmittedAt:    c.Submission.SubmittedAt,
		})
	}

	slices.SortStableFunc(entries, CompareEntries)

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// CompareEntries orders a before b when a ranks higher. It is a total order
// over entries with distinct submission ids.
func CompareEntries(a, b domain.RankedEntry) int {
	if c := cmp.Compare(b.CompositeScore, a.CompositeScore); c != 0 {
		return c
	}
	if c := compareJudge(a.Components.Judge, b.Components.Judge); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Components.Bonus, a.Components.Bonus); c != 0 {
		return c
	}
	if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.SubmissionID, b.SubmissionID)
}

// compareJudge orders higher judge components first and undefined last.
func compareJudge(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*b, *a)
	}
}
