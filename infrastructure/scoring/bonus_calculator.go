package scoring

import (
	"fmt"
	"sort"

	"github.com/contesthub/resultengine/internal/domain"
)

// BonusConfig controls the bonus component.
type BonusConfig struct {
	// MaxScore caps the raw bonus sum. Zero disables the bonus component.
	MaxScore float64 `yaml:"max_score" json:"max_score" validate:"min=0"`
}

// BonusCalculator sums each submission's verified bonus entries, caps the sum
// at the contest's bonus max score and scales it to 0–100.
type BonusCalculator struct {
	config BonusConfig
}

// NewBonusCalculator creates a calculator with a validated configuration.
func NewBonusCalculator(config BonusConfig) (*BonusCalculator, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if !isFinite(config.MaxScore) {
		return nil, fmt.Errorf("configuration validation failed: bonus max score must be finite")
	}
	return &BonusCalculator{config: config}, nil
}

// Enabled reports whether the bonus component can be non-zero.
func (c *BonusCalculator) Enabled() bool { return c.config.MaxScore > 0 }

// Calculate returns the bonus component for each submission id. Unverified
// entries, entries for other submissions and non-positive entry scores
// contribute nothing.
func (c *BonusCalculator) Calculate(submissionIDs []string, entries []domain.BonusEntry) map[string]float64 {
	out := make(map[string]float64, len(submissionIDs))
	for _, id := range submissionIDs {
		out[id] = 0
	}
	if !c.Enabled() {
		return out
	}

	ordered := make([]domain.BonusEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	raw := make(map[string]float64, len(submissionIDs))
	for _, e := range ordered {
		if !e.Verified || e.Score <= 0 || !isFinite(e.Score) {
			continue
		}
		if _, ok := out[e.SubmissionID]; !ok {
			continue
		}
		raw[e.SubmissionID] += e.Score
	}

	for id, sum := range raw {
		capped := clamp(sum, 0, c.config.MaxScore)
		out[id] = round(capped / c.config.MaxScore * 100)
	}
	return out
}
