// Package domain contains pure, dependency-free domain models and types
// for the contest result engine.
package domain

import "fmt"

// ContestStatus is the lifecycle state of a contest.
type ContestStatus string

// Contest lifecycle states. Results can only be computed while a contest is
// judging or completed.
const (
	ContestDraft     ContestStatus = "draft"
	ContestOpen      ContestStatus = "open"
	ContestJudging   ContestStatus = "judging"
	ContestCompleted ContestStatus = "completed"
)

// Finalizable reports whether results may be computed and written for a
// contest in this state.
func (s ContestStatus) Finalizable() bool {
	return s == ContestJudging || s == ContestCompleted
}

// VoteType selects which online-vote signal feeds the vote component.
type VoteType string

// Supported online vote types as stored on the contest.
const (
	VoteLikes         VoteType = "likes"
	VoteViews         VoteType = "views"
	VoteLikesAndViews VoteType = "likes_and_views"
)

// AwardTier is a named prize bracket with a fixed headcount.
// Tiers are stored on the contest in priority order.
type AwardTier struct {
	// Label is the prize name shown to participants, e.g. "대상".
	Label string `json:"label" yaml:"label" validate:"required"`

	// Count is how many submissions this tier awards.
	Count int `json:"count" yaml:"count" validate:"min=0"`

	// PrizeAmount is the optional prize money attached to the tier.
	PrizeAmount *int64 `json:"prize_amount,omitempty" yaml:"prize_amount,omitempty" validate:"omitempty,min=0"`
}

// Contest holds the scoring configuration of a single contest. It is fetched
// fresh for every computation and treated as an immutable value.
//
// The three weight percentages are operator-entered and need not sum to 100;
// the engine normalizes them.
type Contest struct {
	ID         string        `json:"id" validate:"required"`
	Status     ContestStatus `json:"status" validate:"required,oneof=draft open judging completed"`
	Version    int64         `json:"version"`
	TemplateID string        `json:"template_id"`

	JudgeWeightPercent      float64 `json:"judge_weight_percent" validate:"min=0"`
	OnlineVoteWeightPercent float64 `json:"online_vote_weight_percent" validate:"min=0"`
	BonusPercentage         float64 `json:"bonus_percentage" validate:"min=0"`

	OnlineVoteType   VoteType `json:"online_vote_type" validate:"required,oneof=likes views likes_and_views"`
	VoteLikesPercent float64  `json:"vote_likes_percent" validate:"min=0"`
	VoteViewsPercent float64  `json:"vote_views_percent" validate:"min=0"`

	BonusMaxScore float64 `json:"bonus_max_score" validate:"min=0"`

	AwardTiers []AwardTier `json:"award_tiers" validate:"dive"`
}

// VoteFormula is the tagged variant describing how raw engagement becomes
// the vote component. The unexported marker method seals the set of
// implementations to this package.
type VoteFormula interface {
	Type() VoteType
	isVoteFormula()
}

// LikesFormula ranks popularity by like count alone.
type LikesFormula struct{}

// ViewsFormula ranks popularity by view count alone.
type ViewsFormula struct{}

// BlendedFormula normalizes likes and views independently and blends them
// by the configured percentages.
type BlendedFormula struct {
	LikesPercent float64
	ViewsPercent float64
}

func (LikesFormula) Type() VoteType   { return VoteLikes }
func (ViewsFormula) Type() VoteType   { return VoteViews }
func (BlendedFormula) Type() VoteType { return VoteLikesAndViews }

func (LikesFormula) isVoteFormula()   {}
func (ViewsFormula) isVoteFormula()   {}
func (BlendedFormula) isVoteFormula() {}

// VoteFormula converts the stored vote type into its variant.
// Blend percentages are carried as entered; normalization happens in the
// vote normalizer so the deviation can be reported.
func (c Contest) VoteFormula() (VoteFormula, error) {
	switch c.OnlineVoteType {
	case VoteLikes:
		return LikesFormula{}, nil
	case VoteViews:
		return ViewsFormula{}, nil
	case VoteLikesAndViews:
		return BlendedFormula{LikesPercent: c.VoteLikesPercent, ViewsPercent: c.VoteViewsPercent}, nil
	default:
		return nil, fmt.Errorf("%w: unknown online vote type %q", ErrInvalidConfiguration, c.OnlineVoteType)
	}
}

// TierCapacity returns the total number of awards the tiers can hand out.
func (c Contest) TierCapacity() int {
	total := 0
	for _, t := range c.AwardTiers {
		if t.Count > 0 {
			total += t.Count
		}
	}
	return total
}

// Guard captures the contest state observed by the read phase. The write
// phase refuses to commit if the stored contest no longer matches it.
type Guard struct {
	Status  ContestStatus `json:"status"`
	Version int64         `json:"version"`
}
