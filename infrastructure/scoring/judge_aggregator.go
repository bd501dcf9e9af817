package scoring

import (
	"fmt"
	"sort"

	"github.com/contesthub/resultengine/internal/domain"
)

// JudgeResult is the aggregated judge component of one submission.
type JudgeResult struct {
	SubmissionID string
	// Component is the mean normalized judge score, nil if no judge scored
	// the submission.
	Component *float64
	// JudgeCount is the number of distinct judges that contributed.
	JudgeCount int
}

// JudgeAggregator reduces raw rubric scores to a 0–100 judge component per
// submission.
//
// Algorithm: every score's total is taken over the template's criteria and
// normalized by the template's max total; the submission's component is the
// arithmetic mean (Σ judgeScores / count) of those normalized scores.
//
// Data integrity: values above a criterion's max score or below zero are
// clamped, unknown criteria are ignored and scores recorded against another
// template are skipped. Each case produces a warning and never fails the
// aggregation.
//
// Determinism: scores are processed in (submission, judge) order and criteria
// in template order, so identical inputs always sum in the same order.
type JudgeAggregator struct {
	schema *Schema
}

// NewJudgeAggregator creates an aggregator for the given template schema.
func NewJudgeAggregator(schema *Schema) (*JudgeAggregator, error) {
	if schema == nil {
		return nil, ErrNilTemplate
	}
	if schema.MaxTotal() <= 0 {
		return nil, fmt.Errorf("template %s has zero max total", schema.TemplateID())
	}
	return &JudgeAggregator{schema: schema}, nil
}

// JudgeScore normalizes one judge's score to 0–100, clamping out-of-range
// criterion values. The second return value lists the integrity warnings.
func (a *JudgeAggregator) JudgeScore(score domain.Score) (float64, []domain.Warning) {
	var warnings []domain.Warning
	var total float64

	for _, c := range a.schema.template.Criteria {
		v, ok := score.CriteriaScores[c.ID]
		if !ok {
			continue
		}
		clamped := clamp(v, 0, c.MaxScore)
		if clamped != v {
			warnings = append(warnings, domain.Warning{
				Kind:         domain.WarningScoreClamped,
				SubmissionID: score.SubmissionID,
				JudgeID:      score.JudgeID,
				Message: fmt.Sprintf("criterion %s value %v clamped to %v (max %v)",
					c.ID, v, clamped, c.MaxScore),
			})
		}
		total += clamped
	}

	unknown := make([]string, 0)
	for id := range score.CriteriaScores {
		if _, ok := a.schema.Criterion(id); !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		warnings = append(warnings, domain.Warning{
			Kind:         domain.WarningUnknownCriterion,
			SubmissionID: score.SubmissionID,
			JudgeID:      score.JudgeID,
			Message:      fmt.Sprintf("criterion %s is not part of template %s and was ignored", id, a.schema.TemplateID()),
		})
	}

	return total / a.schema.MaxTotal() * 100, warnings
}

// Aggregate computes the judge component of every submission that has at
// least one score. Submissions without scores are absent from the result;
// callers treat them as having an undefined judge component.
//
// When the same judge appears twice for a submission the most recently
// updated score wins.
func (a *JudgeAggregator) Aggregate(scores []domain.Score) (map[string]JudgeResult, []domain.Warning, error) {
	ordered := make([]domain.Score, len(scores))
	copy(ordered, scores)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SubmissionID != ordered[j].SubmissionID {
			return ordered[i].SubmissionID < ordered[j].SubmissionID
		}
		if ordered[i].JudgeID != ordered[j].JudgeID {
			return ordered[i].JudgeID < ordered[j].JudgeID
		}
		return ordered[i].UpdatedAt.Before(ordered[j].UpdatedAt)
	})

	var warnings []domain.Warning
	perSubmission := make(map[string][]float64)
	var submissionOrder []string

	for i, s := range ordered {
		// A later entry for the same pair supersedes this one.
		if i+1 < len(ordered) &&
			ordered[i+1].SubmissionID == s.SubmissionID &&
			ordered[i+1].JudgeID == s.JudgeID {
			continue
		}

		if s.TemplateID != "" && s.TemplateID != a.schema.TemplateID() {
			warnings = append(warnings, domain.Warning{
				Kind:         domain.WarningTemplateMismatch,
				SubmissionID: s.SubmissionID,
				JudgeID:      s.JudgeID,
				Message: fmt.Sprintf("score recorded against template %s, contest uses %s; ignored",
					s.TemplateID, a.schema.TemplateID()),
			})
			continue
		}

		judgeScore, w := a.JudgeScore(s)
		warnings = append(warnings, w...)

		if _, seen := perSubmission[s.SubmissionID]; !seen {
			submissionOrder = append(submissionOrder, s.SubmissionID)
		}
		perSubmission[s.SubmissionID] = append(perSubmission[s.SubmissionID], judgeScore)
	}

	results := make(map[string]JudgeResult, len(perSubmission))
	for _, id := range submissionOrder {
		judgeScores := perSubmission[id]
		mean, err := Mean(judgeScores)
		if err != nil {
			return nil, nil, fmt.Errorf("submission %s: %w", id, err)
		}
		component := round(mean)
		results[id] = JudgeResult{
			SubmissionID: id,
			Component:    &component,
			JudgeCount:   len(judgeScores),
		}
	}

	return results, warnings, nil
}

// Mean returns the arithmetic mean of values. It rejects empty input and
// NaN or infinite values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoScores
	}

	var sum float64
	for i, v := range values {
		if !isFinite(v) {
			return 0, fmt.Errorf("invalid score at index %d: %f", i, v)
		}
		sum += v
	}
	return sum / float64(len(values)), nil
}
