package scoring

import (
	"fmt"
	"sort"

	"github.com/contesthub/resultengine/internal/domain"
)

// Schema is a validated, indexed judging template. It answers criterion
// lookups and checks judge scores against the rubric.
//
// A Schema is immutable after construction and safe for concurrent use.
type Schema struct {
	template domain.JudgingTemplate
	index    map[string]int
	maxTotal float64
}

// NewSchema validates the template and builds its index.
//
// Returns an error if the template has no criteria, duplicated or empty
// criterion ids, or a non-positive or non-finite max score.
func NewSchema(template domain.JudgingTemplate) (*Schema, error) {
	if err := validate.Struct(template); err != nil {
		return nil, fmt.Errorf("template %s validation failed: %w", template.ID, err)
	}

	index := make(map[string]int, len(template.Criteria))
	var total float64
	for i, c := range template.Criteria {
		if !isFinite(c.MaxScore) {
			return nil, fmt.Errorf("template %s: criterion %s has non-finite max score", template.ID, c.ID)
		}
		if _, dup := index[c.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate criterion id %s", template.ID, c.ID)
		}
		index[c.ID] = i
		total += c.MaxScore
	}

	criteria := make([]domain.Criterion, len(template.Criteria))
	copy(criteria, template.Criteria)
	template.Criteria = criteria

	return &Schema{template: template, index: index, maxTotal: total}, nil
}

// TemplateID returns the id of the underlying template.
func (s *Schema) TemplateID() string { return s.template.ID }

// Criteria returns the criteria in template order.
func (s *Schema) Criteria() []domain.Criterion {
	out := make([]domain.Criterion, len(s.template.Criteria))
	copy(out, s.template.Criteria)
	return out
}

// Criterion looks up a criterion by id.
func (s *Schema) Criterion(id string) (domain.Criterion, bool) {
	i, ok := s.index[id]
	if !ok {
		return domain.Criterion{}, false
	}
	return s.template.Criteria[i], true
}

// MaxTotal returns the highest total a judge can award.
func (s *Schema) MaxTotal() float64 { return s.maxTotal }

// Total sums the criteria scores over the template's criteria, in template
// order. Unknown criteria are ignored and missing criteria count as zero.
func (s *Schema) Total(criteriaScores map[string]float64) float64 {
	var total float64
	for _, c := range s.template.Criteria {
		total += criteriaScores[c.ID]
	}
	return total
}

// ValidateScore is the write-time check for a judge's score. It rejects
// scores for another template, unknown criteria and values outside
// [0, maxScore]. The returned error wraps domain.ErrInvalidScore.
func (s *Schema) ValidateScore(score domain.Score) error {
	verr := domain.NewValidationError("score")

	if score.SubmissionID == "" {
		verr.AddError("submission id is required")
	}
	if score.JudgeID == "" {
		verr.AddError("judge id is required")
	}
	if score.TemplateID != s.template.ID {
		verr.AddError(fmt.Sprintf("template %q does not match %q", score.TemplateID, s.template.ID))
	}

	ids := make([]string, 0, len(score.CriteriaScores))
	for id := range score.CriteriaScores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		v := score.CriteriaScores[id]
		c, ok := s.Criterion(id)
		switch {
		case !ok:
			verr.AddError(fmt.Sprintf("unknown criterion %q", id))
		case !isFinite(v):
			verr.AddError(fmt.Sprintf("criterion %q has non-finite value", id))
		case v < 0:
			verr.AddError(fmt.Sprintf("criterion %q is negative (%.2f)", id, v))
		case v > c.MaxScore:
			verr.AddError(fmt.Sprintf("criterion %q exceeds max score (%.2f > %.2f)", id, v, c.MaxScore))
		}
	}

	if verr.HasErrors() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidScore, verr.Error())
	}
	return nil
}
