package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/contesthub/resultengine/infrastructure/scoring"
	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/ports"
	"github.com/contesthub/resultengine/internal/testutils"
)

// newTestStore opens an in-memory SQLite store. A single connection keeps
// every query on the same in-memory database.
func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	logger, _ := test.NewNullLogger()

	s, err := Open(Config{
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fixture() *domain.ContestSnapshot {
	return testutils.NewSnapshot("contest-1").
		WithTiers(
			domain.AwardTier{Label: "대상", Count: 1, PrizeAmount: ptr(int64(1000000))},
			domain.AwardTier{Label: "최우수상", Count: 2},
		).
		Submission("sub-a", 120, 4, 0).
		Submission("sub-b", 80, 9, time.Hour).
		SubmissionWithStatus("sub-pending", domain.SubmissionPending, 999, 99, 2*time.Hour).
		Score("sub-a", "judge-1", 30, 35, 15).
		Score("sub-a", "judge-2", 28, 30, 18).
		Score("sub-b", "judge-1", 38, 36, 19).
		Bonus("bonus-1", "sub-b", 5, true).
		Bonus("bonus-2", "sub-a", 5, false).
		Build()
}

func ptr[T any](v T) *T { return &v }

func TestGormStore_ImportAndLoadSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Import(ctx, fixture()))

	snapshot, err := s.LoadSnapshot(ctx, "contest-1")
	require.NoError(t, err)

	assert.Equal(t, "contest-1", snapshot.Contest.ID)
	assert.Equal(t, domain.ContestJudging, snapshot.Contest.Status)
	assert.Equal(t, domain.VoteViews, snapshot.Contest.OnlineVoteType)
	assert.Equal(t, 60.0, snapshot.Contest.JudgeWeightPercent)
	assert.Equal(t, now, snapshot.ReadAt)

	require.Len(t, snapshot.Contest.AwardTiers, 2)
	assert.Equal(t, "대상", snapshot.Contest.AwardTiers[0].Label)
	require.NotNil(t, snapshot.Contest.AwardTiers[0].PrizeAmount)
	assert.Equal(t, int64(1000000), *snapshot.Contest.AwardTiers[0].PrizeAmount)
	assert.Equal(t, "최우수상", snapshot.Contest.AwardTiers[1].Label)
	assert.Equal(t, 2, snapshot.Contest.AwardTiers[1].Count)

	require.NotNil(t, snapshot.Template)
	require.Len(t, snapshot.Template.Criteria, 3)
	assert.Equal(t, []string{"creativity", "completeness", "fit"}, []string{
		snapshot.Template.Criteria[0].ID, snapshot.Template.Criteria[1].ID, snapshot.Template.Criteria[2].ID,
	})

	require.Len(t, snapshot.Submissions, 2, "pending submissions are not candidates")
	assert.Equal(t, "sub-a", snapshot.Submissions[0].ID)
	assert.Equal(t, int64(120), snapshot.Submissions[0].Views)
	assert.True(t, testutils.FixtureEpoch.Equal(snapshot.Submissions[0].SubmittedAt))

	require.Len(t, snapshot.Scores, 3)
	assert.Equal(t, "judge-1", snapshot.Scores[0].JudgeID)
	assert.Equal(t, map[string]float64{"creativity": 30, "completeness": 35, "fit": 15}, snapshot.Scores[0].CriteriaScores)
	assert.InDelta(t, 80.0, snapshot.Scores[0].Total, 1e-9)

	require.Len(t, snapshot.Bonuses, 1, "only verified bonus entries are read")
	assert.Equal(t, "bonus-1", snapshot.Bonuses[0].ID)
}

// TestGormStore_LoadSnapshot_JudgeComponent scores a snapshot read back
// from the database so stored criteria reach the judge component.
func TestGormStore_LoadSnapshot_JudgeComponent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snapshot := testutils.NewSnapshot("contest-1").
		WithTiers(domain.AwardTier{Label: "대상", Count: 1}).
		Submission("sub-a", 100, 0, 0).
		Submission("sub-b", 0, 0, time.Hour).
		Score("sub-a", "judge-1", 40, 40, 20).
		Score("sub-b", "judge-1", 20, 20, 10).
		Build()
	require.NoError(t, s.Import(ctx, snapshot))

	loaded, err := s.LoadSnapshot(ctx, "contest-1")
	require.NoError(t, err)
	require.Len(t, loaded.Scores, 2)
	assert.Equal(t, map[string]float64{"creativity": 40, "completeness": 40, "fit": 20}, loaded.Scores[0].CriteriaScores)

	outcome, err := scoring.NewPipeline(scoring.DefaultRankerConfig()).Run(loaded, testutils.FixtureEpoch)
	require.NoError(t, err)
	require.Len(t, outcome.Ranking, 2)

	tests := []struct {
		submissionID string
		judge        float64
	}{
		{submissionID: "sub-a", judge: 100},
		{submissionID: "sub-b", judge: 50},
	}
	for i, tt := range tests {
		entry := outcome.Ranking[i]
		assert.Equal(t, tt.submissionID, entry.SubmissionID)
		require.NotNil(t, entry.Components.Judge, tt.submissionID)
		assert.InDelta(t, tt.judge, *entry.Components.Judge, 1e-6, tt.submissionID)
	}
}

func TestScoreRow_ToDomain(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    float64
		wantErr bool
	}{
		{name: "json number", value: json.Number("37.5"), want: 37.5},
		{name: "float", value: 12.0, want: 12},
		{name: "integer", value: int64(7), want: 7},
		{name: "malformed json number", value: json.Number("abc"), wantErr: true},
		{name: "string", value: "40", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ScoreRow{SubmissionID: "sub-a", JudgeID: "judge-1", CriteriaScores: datatypes.JSONMap{"fit": tt.value}}

			score, err := row.toDomain()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), `criterion "fit"`)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score.CriteriaScores["fit"], 1e-9)
		})
	}
}

func TestGormStore_Import_ReplacesPreviousState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, fixture()))

	updated := testutils.NewSnapshot("contest-1").
		WithTiers(domain.AwardTier{Label: "우수상", Count: 5}).
		Submission("sub-c", 1, 1, 0).
		Build()
	require.NoError(t, s.Import(ctx, updated))

	snapshot, err := s.LoadSnapshot(ctx, "contest-1")
	require.NoError(t, err)
	require.Len(t, snapshot.Contest.AwardTiers, 1)
	assert.Equal(t, "우수상", snapshot.Contest.AwardTiers[0].Label)
	require.Len(t, snapshot.Submissions, 1)
	assert.Equal(t, "sub-c", snapshot.Submissions[0].ID)
	assert.Empty(t, snapshot.Scores)
	assert.Empty(t, snapshot.Bonuses)
}

func TestGormStore_LoadSnapshot_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadSnapshot(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrContestNotFound))
}

func TestGormStore_ReplaceResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, fixture()))

	awardedAt := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	guard := domain.Guard{Status: domain.ContestJudging, Version: 1}
	first := []domain.ContestResult{
		{ID: "r-1", ContestID: "contest-1", SubmissionID: "sub-b", Rank: 1, PrizeLabel: "대상", PrizeAmount: ptr(int64(1000000)), AwardedAt: awardedAt},
		{ID: "r-2", ContestID: "contest-1", SubmissionID: "sub-a", Rank: 2, PrizeLabel: "최우수상", AwardedAt: awardedAt},
	}

	require.NoError(t, s.ReplaceResults(ctx, "contest-1", guard, first))
	got, err := s.LoadResults(ctx, "contest-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sub-b", got[0].SubmissionID)
	assert.Equal(t, "대상", got[0].PrizeLabel)
	require.NotNil(t, got[0].PrizeAmount)
	assert.Equal(t, int64(1000000), *got[0].PrizeAmount)
	assert.Nil(t, got[1].PrizeAmount)

	t.Run("replacement drops rows that are no longer awarded", func(t *testing.T) {
		second := []domain.ContestResult{
			{ID: "r-2", ContestID: "contest-1", SubmissionID: "sub-a", Rank: 1, PrizeLabel: "대상", AwardedAt: awardedAt},
		}
		require.NoError(t, s.ReplaceResults(ctx, "contest-1", guard, second))

		got, err := s.LoadResults(ctx, "contest-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "sub-a", got[0].SubmissionID)
	})

	t.Run("empty set clears results", func(t *testing.T) {
		require.NoError(t, s.ReplaceResults(ctx, "contest-1", guard, nil))

		got, err := s.LoadResults(ctx, "contest-1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("results of another contest are rejected", func(t *testing.T) {
		err := s.ReplaceResults(ctx, "contest-1", guard, []domain.ContestResult{{ID: "x", ContestID: "contest-2"}})
		require.Error(t, err)
	})
}

func TestGormStore_ReplaceResults_Conflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, fixture()))

	guard := domain.Guard{Status: domain.ContestJudging, Version: 1}
	kept := []domain.ContestResult{{ID: "r-1", ContestID: "contest-1", SubmissionID: "sub-a", Rank: 1, PrizeLabel: "대상"}}
	require.NoError(t, s.ReplaceResults(ctx, "contest-1", guard, kept))

	// The host closes judging between the read and the write.
	require.NoError(t, s.SetContestState(ctx, "contest-1", domain.ContestCompleted))

	err := s.ReplaceResults(ctx, "contest-1", guard, []domain.ContestResult{
		{ID: "r-9", ContestID: "contest-1", SubmissionID: "sub-b", Rank: 1, PrizeLabel: "대상"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.Guard{Status: domain.ContestCompleted, Version: 2}, conflict.Actual)

	got, err := s.LoadResults(ctx, "contest-1")
	require.NoError(t, err)
	require.Len(t, got, 1, "a rejected write leaves the previous results in place")
	assert.Equal(t, "r-1", got[0].ID)
}

func TestGormStore_ReplaceResults_UnknownContest(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceResults(context.Background(), "missing", domain.Guard{Status: domain.ContestJudging}, nil)
	assert.True(t, errors.Is(err, domain.ErrContestNotFound))
}

func TestGormStore_UpsertScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, fixture()))

	updatedAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	score := domain.Score{
		SubmissionID:   "sub-b",
		JudgeID:        "judge-1",
		TemplateID:     "tpl-1",
		CriteriaScores: map[string]float64{"creativity": 10, "completeness": 10, "fit": 10},
		Total:          30,
		UpdatedAt:      updatedAt,
	}

	t.Run("overwrites the judge's previous score", func(t *testing.T) {
		require.NoError(t, s.UpsertScore(ctx, "contest-1", score))

		snapshot, err := s.LoadSnapshot(ctx, "contest-1")
		require.NoError(t, err)
		require.Len(t, snapshot.Scores, 3)

		var found bool
		for _, sc := range snapshot.Scores {
			if sc.SubmissionID == "sub-b" && sc.JudgeID == "judge-1" {
				found = true
				assert.InDelta(t, 30.0, sc.Total, 1e-9)
				assert.InDelta(t, 10.0, sc.CriteriaScores["fit"], 1e-9)
				assert.True(t, updatedAt.Equal(sc.UpdatedAt))
			}
		}
		assert.True(t, found)
	})

	t.Run("adds a new judge's score", func(t *testing.T) {
		second := score
		second.JudgeID = "judge-3"
		require.NoError(t, s.UpsertScore(ctx, "contest-1", second))

		snapshot, err := s.LoadSnapshot(ctx, "contest-1")
		require.NoError(t, err)
		assert.Len(t, snapshot.Scores, 4)
	})

	t.Run("unknown submission is rejected", func(t *testing.T) {
		missing := score
		missing.SubmissionID = "sub-zzz"
		err := s.UpsertScore(ctx, "contest-1", missing)
		assert.True(t, errors.Is(err, ports.ErrSubmissionNotFound))
	})

	t.Run("completed contest is read-only", func(t *testing.T) {
		require.NoError(t, s.SetContestState(ctx, "contest-1", domain.ContestCompleted))

		err := s.UpsertScore(ctx, "contest-1", score)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})
}

func TestGormStore_LoadTemplate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, fixture()))

	tpl, err := s.LoadTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, testutils.FixtureTemplate(), *tpl)

	_, err = s.LoadTemplate(ctx, "tpl-missing")
	assert.True(t, errors.Is(err, ports.ErrTemplateNotFound))
}

func TestOpen_InvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing driver", cfg: Config{DSN: ":memory:"}},
		{name: "unknown driver", cfg: Config{Driver: "mysql", DSN: "x"}},
		{name: "missing dsn", cfg: Config{Driver: DriverSQLite}},
		{name: "unknown isolation", cfg: Config{Driver: DriverSQLite, DSN: ":memory:", SnapshotIsolation: "snapshot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.cfg, logger)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid database config")
		})
	}
}

func TestIsolationLevel(t *testing.T) {
	assert.Equal(t, "Repeatable Read", isolationLevel("repeatable_read").String())
	assert.Equal(t, "Serializable", isolationLevel("serializable").String())
	assert.Equal(t, "Read Committed", isolationLevel("read_committed").String())
	assert.Equal(t, "Default", isolationLevel("").String())
}
