package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/contesthub/resultengine/internal/domain"
)

// ContestRow is the persisted scoring configuration of a contest.
type ContestRow struct {
	ID         string `gorm:"primaryKey"`
	Status     string `gorm:"not null;default:'draft'"`
	Version    int64  `gorm:"not null;default:0"`
	TemplateID string `gorm:"index"`

	JudgeWeightPercent      float64 `gorm:"not null;default:0"`
	OnlineVoteWeightPercent float64 `gorm:"not null;default:0"`
	BonusPercentage         float64 `gorm:"not null;default:0"`
	OnlineVoteType          string  `gorm:"not null;default:'views'"`
	VoteLikesPercent        float64 `gorm:"not null;default:0"`
	VoteViewsPercent        float64 `gorm:"not null;default:0"`
	BonusMaxScore           float64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	// Relationships
	AwardTiers []AwardTierRow `gorm:"foreignKey:ContestID"`
}

func (ContestRow) TableName() string { return "contests" }

// AwardTierRow is one prize bracket of a contest. SortOrder is the tier
// priority, lowest first.
type AwardTierRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ContestID   string `gorm:"not null;index"`
	SortOrder   int    `gorm:"column:sort_order;not null;default:0"`
	Label       string `gorm:"not null"`
	Count       int    `gorm:"not null;default:0"`
	PrizeAmount *int64
}

func (AwardTierRow) TableName() string { return "contest_award_tiers" }

// TemplateRow is a judging rubric.
type TemplateRow struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Criteria []CriterionRow `gorm:"foreignKey:TemplateID"`
}

func (TemplateRow) TableName() string { return "judging_templates" }

// CriterionRow is one rubric line of a template.
type CriterionRow struct {
	TemplateID  string  `gorm:"primaryKey"`
	CriterionID string  `gorm:"primaryKey"`
	SortOrder   int     `gorm:"column:sort_order;not null;default:0"`
	Label       string  `gorm:"not null"`
	MaxScore    float64 `gorm:"not null"`
}

func (CriterionRow) TableName() string { return "judging_criteria" }

// SubmissionRow is the engine's read view of a submission. Views and likes
// are maintained by the tracking subsystem.
type SubmissionRow struct {
	ID          string    `gorm:"primaryKey"`
	ContestID   string    `gorm:"not null;index"`
	Status      string    `gorm:"not null;index"`
	Views       int64     `gorm:"not null;default:0"`
	LikeCount   int64     `gorm:"not null;default:0"`
	SubmittedAt time.Time `gorm:"not null"`
}

func (SubmissionRow) TableName() string { return "submissions" }

// ScoreRow is one judge's score for one submission.
type ScoreRow struct {
	SubmissionID   string            `gorm:"primaryKey"`
	JudgeID        string            `gorm:"primaryKey"`
	ContestID      string            `gorm:"not null;index"`
	TemplateID     string            `gorm:"not null"`
	CriteriaScores datatypes.JSONMap `gorm:"not null"`
	Total          float64           `gorm:"not null;default:0"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime:false"`
}

func (ScoreRow) TableName() string { return "scores" }

// BonusEntryRow is a participant's bonus proof.
type BonusEntryRow struct {
	ID            string  `gorm:"primaryKey"`
	ContestID     string  `gorm:"not null;index"`
	SubmissionID  string  `gorm:"not null;index"`
	BonusConfigID string  `gorm:"not null"`
	Score         float64 `gorm:"not null;default:0"`
	Verified      bool    `gorm:"not null;default:false"`
}

func (BonusEntryRow) TableName() string { return "bonus_entries" }

// ContestResultRow is a persisted award.
type ContestResultRow struct {
	ID           string    `gorm:"primaryKey"`
	ContestID    string    `gorm:"not null;uniqueIndex:idx_contest_results_submission"`
	SubmissionID string    `gorm:"not null;uniqueIndex:idx_contest_results_submission"`
	Rank         int       `gorm:"not null"`
	PrizeLabel   string    `gorm:"not null"`
	PrizeAmount  *int64
	AwardedAt    time.Time `gorm:"not null"`
}

func (ContestResultRow) TableName() string { return "contest_results" }

// allModels lists every table the store migrates.
func allModels() []any {
	return []any{
		&ContestRow{},
		&AwardTierRow{},
		&TemplateRow{},
		&CriterionRow{},
		&SubmissionRow{},
		&ScoreRow{},
		&BonusEntryRow{},
		&ContestResultRow{},
	}
}

func (r ContestRow) toDomain() domain.Contest {
	tiers := make([]domain.AwardTier, len(r.AwardTiers))
	for i, t := range r.AwardTiers {
		tiers[i] = domain.AwardTier{Label: t.Label, Count: t.Count, PrizeAmount: t.PrizeAmount}
	}
	return domain.Contest{
		ID:                      r.ID,
		Status:                  domain.ContestStatus(r.Status),
		Version:                 r.Version,
		TemplateID:              r.TemplateID,
		JudgeWeightPercent:      r.JudgeWeightPercent,
		OnlineVoteWeightPercent: r.OnlineVoteWeightPercent,
		BonusPercentage:         r.BonusPercentage,
		OnlineVoteType:          domain.VoteType(r.OnlineVoteType),
		VoteLikesPercent:        r.VoteLikesPercent,
		VoteViewsPercent:        r.VoteViewsPercent,
		BonusMaxScore:           r.BonusMaxScore,
		AwardTiers:              tiers,
	}
}

func contestRowFrom(c domain.Contest) ContestRow {
	tiers := make([]AwardTierRow, len(c.AwardTiers))
	for i, t := range c.AwardTiers {
		tiers[i] = AwardTierRow{ContestID: c.ID, SortOrder: i, Label: t.Label, Count: t.Count, PrizeAmount: t.PrizeAmount}
	}
	return ContestRow{
		ID:                      c.ID,
		Status:                  string(c.Status),
		Version:                 c.Version,
		TemplateID:              c.TemplateID,
		JudgeWeightPercent:      c.JudgeWeightPercent,
		OnlineVoteWeightPercent: c.OnlineVoteWeightPercent,
		BonusPercentage:         c.BonusPercentage,
		OnlineVoteType:          string(c.OnlineVoteType),
		VoteLikesPercent:        c.VoteLikesPercent,
		VoteViewsPercent:        c.VoteViewsPercent,
		BonusMaxScore:           c.BonusMaxScore,
		AwardTiers:              tiers,
	}
}

func (r TemplateRow) toDomain() domain.JudgingTemplate {
	criteria := make([]domain.Criterion, len(r.Criteria))
	for i, c := range r.Criteria {
		criteria[i] = domain.Criterion{ID: c.CriterionID, Label: c.Label, MaxScore: c.MaxScore}
	}
	return domain.JudgingTemplate{ID: r.ID, Name: r.Name, Criteria: criteria}
}

func templateRowFrom(t domain.JudgingTemplate) TemplateRow {
	criteria := make([]CriterionRow, len(t.Criteria))
	for i, c := range t.Criteria {
		criteria[i] = CriterionRow{TemplateID: t.ID, CriterionID: c.ID, SortOrder: i, Label: c.Label, MaxScore: c.MaxScore}
	}
	return TemplateRow{ID: t.ID, Name: t.Name, Criteria: criteria}
}

func (r SubmissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:          r.ID,
		ContestID:   r.ContestID,
		Status:      domain.SubmissionStatus(r.Status),
		Views:       r.Views,
		LikeCount:   r.LikeCount,
		SubmittedAt: r.SubmittedAt,
	}
}

func submissionRowFrom(s domain.Submission) SubmissionRow {
	return SubmissionRow{
		ID:          s.ID,
		ContestID:   s.ContestID,
		Status:      string(s.Status),
		Views:       s.Views,
		LikeCount:   s.LikeCount,
		SubmittedAt: s.SubmittedAt,
	}
}

// toDomain decodes the JSON criteria map. The JSON column decodes numbers
// as json.Number.
func (r ScoreRow) toDomain() (domain.Score, error) {
	criteria := make(map[string]float64, len(r.CriteriaScores))
	for id, v := range r.CriteriaScores {
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return domain.Score{}, fmt.Errorf("criterion %q of score %s/%s: %w", id, r.SubmissionID, r.JudgeID, err)
			}
			criteria[id] = f
		case float64:
			criteria[id] = n
		case int64:
			criteria[id] = float64(n)
		case int:
			criteria[id] = float64(n)
		default:
			return domain.Score{}, fmt.Errorf("criterion %q of score %s/%s: unexpected value %T", id, r.SubmissionID, r.JudgeID, v)
		}
	}
	return domain.Score{
		SubmissionID:   r.SubmissionID,
		JudgeID:        r.JudgeID,
		TemplateID:     r.TemplateID,
		CriteriaScores: criteria,
		Total:          r.Total,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func scoreRowFrom(contestID string, s domain.Score) ScoreRow {
	criteria := make(datatypes.JSONMap, len(s.CriteriaScores))
	for id, v := range s.CriteriaScores {
		criteria[id] = v
	}
	return ScoreRow{
		SubmissionID:   s.SubmissionID,
		JudgeID:        s.JudgeID,
		ContestID:      contestID,
		TemplateID:     s.TemplateID,
		CriteriaScores: criteria,
		Total:          s.Total,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (r BonusEntryRow) toDomain() domain.BonusEntry {
	return domain.BonusEntry{
		ID:            r.ID,
		SubmissionID:  r.SubmissionID,
		BonusConfigID: r.BonusConfigID,
		Score:         r.Score,
		Verified:      r.Verified,
	}
}

func bonusEntryRowFrom(contestID string, b domain.BonusEntry) BonusEntryRow {
	return BonusEntryRow{
		ID:            b.ID,
		ContestID:     contestID,
		SubmissionID:  b.SubmissionID,
		BonusConfigID: b.BonusConfigID,
		Score:         b.Score,
		Verified:      b.Verified,
	}
}

func (r ContestResultRow) toDomain() domain.ContestResult {
	return domain.ContestResult{
		ID:           r.ID,
		ContestID:    r.ContestID,
		SubmissionID: r.SubmissionID,
		Rank:         r.Rank,
		PrizeLabel:   r.PrizeLabel,
		PrizeAmount:  r.PrizeAmount,
		AwardedAt:    r.AwardedAt,
	}
}

func contestResultRowFrom(r domain.ContestResult) ContestResultRow {
	return ContestResultRow{
		ID:           r.ID,
		ContestID:    r.ContestID,
		SubmissionID: r.SubmissionID,
		Rank:         r.Rank,
		PrizeLabel:   r.PrizeLabel,
		PrizeAmount:  r.PrizeAmount,
		AwardedAt:    r.AwardedAt,
	}
}
