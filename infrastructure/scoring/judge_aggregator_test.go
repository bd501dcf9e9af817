package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contesthub/resultengine/internal/domain"
)

func newTestAggregator(t *testing.T) *JudgeAggregator {
	t.Helper()
	schema, err := NewSchema(rubric())
	require.NoError(t, err)
	agg, err := NewJudgeAggregator(schema)
	require.NoError(t, err)
	return agg
}

func score(submission, judge string, values map[string]float64) domain.Score {
	return domain.Score{SubmissionID: submission, JudgeID: judge, TemplateID: "tpl-1", CriteriaScores: values}
}

// TestNewJudgeAggregator_RequiresSchema verifies constructor validation.
func TestNewJudgeAggregator_RequiresSchema(t *testing.T) {
	_, err := NewJudgeAggregator(nil)
	assert.ErrorIs(t, err, ErrNilTemplate)
}

// TestJudgeAggregator_JudgeScore tests per-judge normalization and clamping.
func TestJudgeAggregator_JudgeScore(t *testing.T) {
	agg := newTestAggregator(t)

	tests := []struct {
		name          string
		values        map[string]float64
		expected      float64
		expectedKinds []domain.WarningKind
	}{
		{
			name:     "full marks normalize to 100",
			values:   map[string]float64{"creativity": 40, "completeness": 40, "fit": 20},
			expected: 100,
		},
		{
			name:     "missing criteria count as zero",
			values:   map[string]float64{"creativity": 30},
			expected: 30,
		},
		{
			name:          "value above max is clamped",
			values:        map[string]float64{"creativity": 55, "completeness": 40, "fit": 20},
			expected:      100,
			expectedKinds: []domain.WarningKind{domain.WarningScoreClamped},
		},
		{
			name:          "negative value is clamped to zero",
			values:        map[string]float64{"creativity": -10, "fit": 10},
			expected:      10,
			expectedKinds: []domain.WarningKind{domain.WarningScoreClamped},
		},
		{
			name:          "NaN value is clamped to zero",
			values:        map[string]float64{"creativity": math.NaN(), "fit": 10},
			expected:      10,
			expectedKinds: []domain.WarningKind{domain.WarningScoreClamped},
		},
		{
			name:          "unknown criterion is ignored",
			values:        map[string]float64{"creativity": 20, "bogus": 100},
			expected:      20,
			expectedKinds: []domain.WarningKind{domain.WarningUnknownCriterion},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := agg.JudgeScore(score("s1", "j1", tt.values))
			assert.InDelta(t, tt.expected, got, 1e-9)

			kinds := make([]domain.WarningKind, 0, len(warnings))
			for _, w := range warnings {
				kinds = append(kinds, w.Kind)
				assert.Equal(t, "s1", w.SubmissionID)
				assert.Equal(t, "j1", w.JudgeID)
			}
			if tt.expectedKinds == nil {
				assert.Empty(t, kinds)
			} else {
				assert.Equal(t, tt.expectedKinds, kinds)
			}
		})
	}
}

// TestJudgeAggregator_Aggregate tests the arithmetic mean across judges.
func TestJudgeAggregator_Aggregate(t *testing.T) {
	agg := newTestAggregator(t)

	scores := []domain.Score{
		score("s2", "j1", map[string]float64{"creativity": 20, "completeness": 20, "fit": 10}), // 50
		score("s1", "j2", map[string]float64{"creativity": 40, "completeness": 40, "fit": 20}), // 100
		score("s1", "j1", map[string]float64{"creativity": 30, "completeness": 30, "fit": 10}), // 70
	}

	results, warnings, err := agg.Aggregate(scores)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, results, 2)

	require.NotNil(t, results["s1"].Component)
	assert.InDelta(t, 85.0, *results["s1"].Component, 1e-9)
	assert.Equal(t, 2, results["s1"].JudgeCount)

	require.NotNil(t, results["s2"].Component)
	assert.InDelta(t, 50.0, *results["s2"].Component, 1e-9)
	assert.Equal(t, 1, results["s2"].JudgeCount)

	_, ok := results["s3"]
	assert.False(t, ok, "unscored submissions must be absent, not zero")
}

// TestJudgeAggregator_Aggregate_LatestScoreWins verifies that a duplicated
// (submission, judge) pair counts once with its latest value.
func TestJudgeAggregator_Aggregate_LatestScoreWins(t *testing.T) {
	agg := newTestAggregator(t)
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	older := score("s1", "j1", map[string]float64{"creativity": 10})
	older.UpdatedAt = base
	newer := score("s1", "j1", map[string]float64{"creativity": 40, "completeness": 40})
	newer.UpdatedAt = base.Add(time.Minute)

	results, _, err := agg.Aggregate([]domain.Score{newer, older})
	require.NoError(t, err)
	assert.Equal(t, 1, results["s1"].JudgeCount)
	assert.InDelta(t, 80.0, *results["s1"].Component, 1e-9)
}

// TestJudgeAggregator_Aggregate_TemplateMismatch verifies that scores for
// another template are skipped with a warning.
func TestJudgeAggregator_Aggregate_TemplateMismatch(t *testing.T) {
	agg := newTestAggregator(t)

	foreign := score("s1", "j1", map[string]float64{"creativity": 40})
	foreign.TemplateID = "tpl-old"

	results, warnings, err := agg.Aggregate([]domain.Score{foreign})
	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarningTemplateMismatch, warnings[0].Kind)
}

// TestJudgeAggregator_ComponentBounds checks 0 ≤ judge component ≤ 100 even
// with hostile inputs.
func TestJudgeAggregator_ComponentBounds(t *testing.T) {
	agg := newTestAggregator(t)

	scores := []domain.Score{
		score("s1", "j1", map[string]float64{"creativity": 1e9, "completeness": 1e9, "fit": 1e9}),
		score("s2", "j1", map[string]float64{"creativity": -1e9}),
		score("s3", "j1", map[string]float64{"creativity": math.Inf(1), "fit": math.Inf(-1)}),
	}

	results, _, err := agg.Aggregate(scores)
	require.NoError(t, err)
	for id, r := range results {
		require.NotNil(t, r.Component, id)
		assert.GreaterOrEqual(t, *r.Component, 0.0, id)
		assert.LessOrEqual(t, *r.Component, 100.0, id)
	}
}

// TestMean tests the arithmetic mean helper.
func TestMean(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		expected      float64
		expectedError string
	}{
		{name: "single value", values: []float64{75}, expected: 75},
		{name: "several values", values: []float64{70, 90, 80}, expected: 80},
		{name: "empty", values: nil, expectedError: "no scores provided"},
		{name: "NaN", values: []float64{1, math.NaN()}, expectedError: "invalid score at index 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mean(tt.values)
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}
