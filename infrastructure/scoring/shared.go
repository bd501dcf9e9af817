// Package scoring implements the contest result computation: rubric score
// aggregation, vote normalization, bonus calculation, composite ranking and
// award assignment. Everything in this package is pure and deterministic;
// persistence and orchestration live in the application layer.
package scoring

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by scoring components.
var (
	// ErrNoScores is returned when no scores are provided for aggregation.
	ErrNoScores = errors.New("no scores provided for aggregation")

	// ErrNilTemplate is returned when a component requiring a template gets none.
	ErrNilTemplate = errors.New("judging template is required")

	// ErrNilFormula is returned when the vote normalizer has no formula.
	ErrNilFormula = errors.New("vote formula is required")

	// ErrAllWeightsZero is returned when every contest weight is zero and the
	// equal-thirds fallback is disabled.
	ErrAllWeightsZero = errors.New("all contest weights are zero")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// scorePrecision is the number of decimal places kept on every component and
// composite score. Values that agree to this precision compare equal, so ties
// are detected exactly instead of depending on float rounding noise.
const scorePrecision = 1e6

func round(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clamp bounds v to [lo, hi]. NaN clamps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
