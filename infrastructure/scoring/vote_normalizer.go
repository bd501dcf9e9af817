package scoring

import (
	"fmt"

	"github.com/contesthub/resultengine/internal/domain"
)

// VoteNormalizer turns raw views and likes into a 0–100 vote component using
// min-max scaling over one contest's rankable submissions.
//
// When every submission has the same engagement the whole field scores 100:
// identical engagement is treated as fully earned rather than as zero.
type VoteNormalizer struct {
	formula domain.VoteFormula
	// likesShare and viewsShare are the blend percentages normalized to 100,
	// used only by the blended formula.
	likesShare float64
	viewsShare float64
	warnings   []domain.Warning
}

// NewVoteNormalizer creates a normalizer for the contest's vote formula.
// For the blended formula the like/view split is normalized to sum to 100;
// a deviation is reported by Warnings, negative percentages are rejected.
func NewVoteNormalizer(formula domain.VoteFormula) (*VoteNormalizer, error) {
	if formula == nil {
		return nil, ErrNilFormula
	}

	n := &VoteNormalizer{formula: formula}

	if blended, ok := formula.(domain.BlendedFormula); ok {
		likes, views := blended.LikesPercent, blended.ViewsPercent
		if likes < 0 || views < 0 || !isFinite(likes) || !isFinite(views) {
			return nil, fmt.Errorf("%w: vote split must be non-negative (likes=%v, views=%v)",
				domain.ErrInvalidConfiguration, likes, views)
		}

		sum := likes + views
		switch {
		case sum == 0:
			n.likesShare, n.viewsShare = 50, 50
			n.warnings = append(n.warnings, domain.Warning{
				Kind:    domain.WarningVoteSplitMismatch,
				Message: "vote likes/views percentages are both 0; using 50/50",
			})
		default:
			n.likesShare = likes / sum * 100
			n.viewsShare = views / sum * 100
			if sum != 100 {
				n.warnings = append(n.warnings, domain.Warning{
					Kind: domain.WarningVoteSplitMismatch,
					Message: fmt.Sprintf("vote likes/views percentages sum to %v; normalized to %.4g/%.4g",
						sum, n.likesShare, n.viewsShare),
				})
			}
		}
	}

	return n, nil
}

// Warnings returns the configuration warnings found at construction.
func (n *VoteNormalizer) Warnings() []domain.Warning {
	out := make([]domain.Warning, len(n.warnings))
	copy(out, n.warnings)
	return out
}

// Normalize computes the vote component of every submission. The returned
// map has an entry for each input submission.
func (n *VoteNormalizer) Normalize(submissions []domain.Submission) map[string]float64 {
	out := make(map[string]float64, len(submissions))
	if len(submissions) == 0 {
		return out
	}

	likes := make([]float64, len(submissions))
	views := make([]float64, len(submissions))
	for i, s := range submissions {
		likes[i] = float64(s.LikeCount)
		views[i] = float64(s.Views)
	}

	var scaled []float64
	switch f := n.formula.(type) {
	case domain.LikesFormula:
		scaled = MinMax(likes)
	case domain.ViewsFormula:
		scaled = MinMax(views)
	case domain.BlendedFormula:
		likesScaled := MinMax(likes)
		viewsScaled := MinMax(views)
		scaled = make([]float64, len(submissions))
		for i := range submissions {
			scaled[i] = (likesScaled[i]*n.likesShare + viewsScaled[i]*n.viewsShare) / 100
		}
	default:
		// The formula set is sealed in the domain package; reaching this is a
		// programming error.
		panic(fmt.Sprintf("unhandled vote formula %T", f))
	}

	for i, s := range submissions {
		out[s.ID] = round(scaled[i])
	}
	return out
}

// MinMax rescales values to 0–100 using (v − min) / (max − min) × 100. When
// all values are equal every element becomes 100.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if hi == lo {
		for i := range out {
			out[i] = 100
		}
		return out
	}

	span := hi - lo
	for i, v := range values {
		out[i] = (v - lo) / span * 100
	}
	return out
}
