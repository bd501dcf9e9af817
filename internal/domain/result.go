package domain

import "time"

// Components holds the three normalized 0–100 inputs of a composite score.
// Judge is nil when no judge has scored the submission.
type Components struct {
	Judge *float64 `json:"judge,omitempty"`
	Vote  float64  `json:"vote"`
	Bonus float64  `json:"bonus"`
}

// JudgeOrZero returns the judge component, or 0 when it is undefined.
func (c Components) JudgeOrZero() float64 {
	if c.Judge == nil {
		return 0
	}
	return *c.Judge
}

// RankedEntry is one line of the final ranking.
type RankedEntry struct {
	// Rank is the 1-based position in the sorted list.
	Rank           int        `json:"rank"`
	SubmissionID   string     `json:"submission_id"`
	CompositeScore float64    `json:"composite_score"`
	Components     Components `json:"components"`
	JudgeCount     int        `json:"judge_count"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	// PrizeLabel is set when the entry received an award tier.
	PrizeLabel string `json:"prize_label,omitempty"`
}

// ContestResult is a persisted award. Results are derived data: a
// recomputation replaces the whole set for the contest.
type ContestResult struct {
	ID           string    `json:"id"`
	ContestID    string    `json:"contest_id"`
	SubmissionID string    `json:"submission_id"`
	Rank         int       `json:"rank"`
	PrizeLabel   string    `json:"prize_label"`
	PrizeAmount  *int64    `json:"prize_amount,omitempty"`
	AwardedAt    time.Time `json:"awarded_at"`
}

// ExclusionReason is a machine-readable reason a submission was left out of
// the ranking.
type ExclusionReason string

// ExclusionInsufficientJudgeData marks a submission nobody has judged while
// the judge weight is positive.
const ExclusionInsufficientJudgeData ExclusionReason = "insufficient_judge_data"

// Exclusion records a candidate submission that could not be ranked.
type Exclusion struct {
	SubmissionID string          `json:"submission_id"`
	Reason       ExclusionReason `json:"reason"`
}

// WarningKind classifies a non-fatal data-quality finding.
type WarningKind string

// Data-quality warning kinds surfaced with every outcome.
const (
	WarningWeightSumMismatch     WarningKind = "weight_sum_mismatch"
	WarningVoteSplitMismatch     WarningKind = "vote_split_mismatch"
	WarningScoreClamped          WarningKind = "score_clamped"
	WarningUnknownCriterion      WarningKind = "unknown_criterion"
	WarningTemplateMismatch      WarningKind = "template_mismatch"
	WarningInsufficientJudgeData WarningKind = "insufficient_judge_data"
)

// Warning is a data-integrity finding that was recovered from locally.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	SubmissionID string      `json:"submission_id,omitempty"`
	JudgeID      string      `json:"judge_id,omitempty"`
	Message      string      `json:"message"`
}

// ContestOutcome is the full result of one computation run.
type ContestOutcome struct {
	ContestID  string          `json:"contest_id"`
	Ranking    []RankedEntry   `json:"ranking"`
	Awarded    []ContestResult `json:"awarded"`
	Excluded   []Exclusion     `json:"excluded"`
	Warnings   []Warning       `json:"warnings"`
	ComputedAt time.Time       `json:"computed_at"`
	// DryRun is true when the outcome was not written to the store.
	DryRun bool `json:"dry_run"`
}
