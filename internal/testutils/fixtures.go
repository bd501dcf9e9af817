package testutils

import (
	"maps"
	"slices"
	"time"

	"github.com/contesthub/resultengine/internal/domain"
)

// FixtureEpoch is the submission-time origin of every fixture. Submission
// offsets passed to the builder are relative to it.
var FixtureEpoch = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

// FixtureTemplate returns the rubric used by default fixtures:
// creativity 40, completeness 40, fit 20.
func FixtureTemplate() domain.JudgingTemplate {
	return domain.JudgingTemplate{
		ID:   "tpl-1",
		Name: "영상 공모전 심사표",
		Criteria: []domain.Criterion{
			{ID: "creativity", Label: "창의성", MaxScore: 40},
			{ID: "completeness", Label: "완성도", MaxScore: 40},
			{ID: "fit", Label: "주제 적합성", MaxScore: 20},
		},
	}
}

// SnapshotBuilder assembles contest snapshots for tests.
// It defaults to a judging contest weighted 60/30/10 on views with tiers
// 대상×1 and 최우수상×2.
type SnapshotBuilder struct {
	snapshot domain.ContestSnapshot
}

// NewSnapshot starts a snapshot for the given contest id.
func NewSnapshot(contestID string) *SnapshotBuilder {
	tpl := FixtureTemplate()
	return &SnapshotBuilder{snapshot: domain.ContestSnapshot{
		Contest: domain.Contest{
			ID:                      contestID,
			Status:                  domain.ContestJudging,
			Version:                 1,
			TemplateID:              tpl.ID,
			JudgeWeightPercent:      60,
			OnlineVoteWeightPercent: 30,
			BonusPercentage:         10,
			OnlineVoteType:          domain.VoteViews,
			BonusMaxScore:           10,
			AwardTiers: []domain.AwardTier{
				{Label: "대상", Count: 1},
				{Label: "최우수상", Count: 2},
			},
		},
		Template: &tpl,
	}}
}

// WithStatus sets the contest status.
func (b *SnapshotBuilder) WithStatus(status domain.ContestStatus) *SnapshotBuilder {
	b.snapshot.Contest.Status = status
	return b
}

// WithWeights sets the judge, vote and bonus weight percentages.
func (b *SnapshotBuilder) WithWeights(judge, vote, bonus float64) *SnapshotBuilder {
	b.snapshot.Contest.JudgeWeightPercent = judge
	b.snapshot.Contest.OnlineVoteWeightPercent = vote
	b.snapshot.Contest.BonusPercentage = bonus
	return b
}

// WithVoteType sets the vote type and, for likes_and_views, the split.
func (b *SnapshotBuilder) WithVoteType(voteType domain.VoteType, likesPercent, viewsPercent float64) *SnapshotBuilder {
	b.snapshot.Contest.OnlineVoteType = voteType
	b.snapshot.Contest.VoteLikesPercent = likesPercent
	b.snapshot.Contest.VoteViewsPercent = viewsPercent
	return b
}

// WithTiers replaces the award tiers.
func (b *SnapshotBuilder) WithTiers(tiers ...domain.AwardTier) *SnapshotBuilder {
	b.snapshot.Contest.AwardTiers = tiers
	return b
}

// WithoutTemplate removes the judging template.
func (b *SnapshotBuilder) WithoutTemplate() *SnapshotBuilder {
	b.snapshot.Contest.TemplateID = ""
	b.snapshot.Template = nil
	return b
}

// Submission adds a judged submission submitted offset after FixtureEpoch.
func (b *SnapshotBuilder) Submission(id string, views, likes int64, offset time.Duration) *SnapshotBuilder {
	return b.SubmissionWithStatus(id, domain.SubmissionJudged, views, likes, offset)
}

// SubmissionWithStatus adds a submission in the given review state.
func (b *SnapshotBuilder) SubmissionWithStatus(
	id string,
	status domain.SubmissionStatus,
	views, likes int64,
	offset time.Duration,
) *SnapshotBuilder {
	b.snapshot.Submissions = append(b.snapshot.Submissions, domain.Submission{
		ID:          id,
		ContestID:   b.snapshot.Contest.ID,
		Status:      status,
		Views:       views,
		LikeCount:   likes,
		SubmittedAt: FixtureEpoch.Add(offset),
	})
	return b
}

// Score adds a judge's rubric score on the fixture template.
func (b *SnapshotBuilder) Score(submissionID, judgeID string, creativity, completeness, fit float64) *SnapshotBuilder {
	b.snapshot.Scores = append(b.snapshot.Scores, domain.Score{
		SubmissionID: submissionID,
		JudgeID:      judgeID,
		TemplateID:   "tpl-1",
		CriteriaScores: map[string]float64{
			"creativity":   creativity,
			"completeness": completeness,
			"fit":          fit,
		},
		Total:     creativity + completeness + fit,
		UpdatedAt: FixtureEpoch.Add(24 * time.Hour),
	})
	return b
}

// Bonus adds a bonus entry.
func (b *SnapshotBuilder) Bonus(id, submissionID string, points float64, verified bool) *SnapshotBuilder {
	b.snapshot.Bonuses = append(b.snapshot.Bonuses, domain.BonusEntry{
		ID:            id,
		SubmissionID:  submissionID,
		BonusConfigID: "sns-share",
		Score:         points,
		Verified:      verified,
	})
	return b
}

// Build returns a deep copy of the snapshot so the builder can be reused.
func (b *SnapshotBuilder) Build() *domain.ContestSnapshot {
	return CloneSnapshot(&b.snapshot)
}

// CloneSnapshot deep-copies a snapshot.
func CloneSnapshot(s *domain.ContestSnapshot) *domain.ContestSnapshot {
	out := *s
	out.Contest.AwardTiers = slices.Clone(s.Contest.AwardTiers)
	if s.Template != nil {
		tpl := *s.Template
		tpl.Criteria = slices.Clone(s.Template.Criteria)
		out.Template = &tpl
	}
	out.Submissions = slices.Clone(s.Submissions)
	out.Scores = make([]domain.Score, len(s.Scores))
	for i, sc := range s.Scores {
		sc.CriteriaScores = maps.Clone(sc.CriteriaScores)
		out.Scores[i] = sc
	}
	out.Bonuses = slices.Clone(s.Bonuses)
	return &out
}
