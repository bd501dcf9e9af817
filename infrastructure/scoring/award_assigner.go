package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/contesthub/resultengine/internal/domain"
)

// resultNamespace scopes the name-based UUIDs of contest results so that the
// same (contest, submission) pair always yields the same result id.
var resultNamespace = uuid.MustParse("6f1c8f5e-3b7a-5d2e-9c41-2a9e7d0b4c13")

// AwardAssigner hands out award tiers to the head of a sorted ranking.
//
// Tiers are consumed in priority order: tier t with count n takes the next n
// unassigned entries. A submission receives at most one tier. When the
// ranking is shorter than the total tier capacity later tiers receive fewer
// or no awards; the assigner never wraps around.
type AwardAssigner struct {
	tiers []domain.AwardTier
}

// NewAwardAssigner validates and normalizes the tiers. Labels are trimmed
// and converted to Unicode NFC so that labels typed on different platforms
// persist identically.
//
// Returns an error wrapping domain.ErrInvalidConfiguration for a negative
// count or an empty label.
func NewAwardAssigner(tiers []domain.AwardTier) (*AwardAssigner, error) {
	normalized := make([]domain.AwardTier, 0, len(tiers))
	for i, t := range tiers {
		if t.Count < 0 {
			return nil, fmt.Errorf("%w: award tier %d (%q) has negative count %d",
				domain.ErrInvalidConfiguration, i, t.Label, t.Count)
		}
		label := NormalizeLabel(t.Label)
		if label == "" {
			return nil, fmt.Errorf("%w: award tier %d has an empty label", domain.ErrInvalidConfiguration, i)
		}
		t.Label = label
		normalized = append(normalized, t)
	}
	return &AwardAssigner{tiers: normalized}, nil
}

// NormalizeLabel trims surrounding whitespace and applies NFC normalization.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Assign walks ranking once and returns the awarded results together with a
// copy of the ranking whose awarded entries carry their prize label.
// The ranking must already be in final order.
func (a *AwardAssigner) Assign(
	contestID string,
	ranking []domain.RankedEntry,
	awardedAt time.Time,
) ([]domain.ContestResult, []domain.RankedEntry) {
	labeled := make([]domain.RankedEntry, len(ranking))
	copy(labeled, ranking)

	results := make([]domain.ContestResult, 0, min(len(ranking), a.capacity()))
	cursor := 0

	for _, tier := range a.tiers {
		for n := 0; n < tier.Count && cursor < len(labeled); n++ {
			entry := &labeled[cursor]
			entry.PrizeLabel = tier.Label

			var prize *int64
			if tier.PrizeAmount != nil {
				amount := *tier.PrizeAmount
				prize = &amount
			}

			results = append(results, domain.ContestResult{
				ID:           ResultID(contestID, entry.SubmissionID),
				ContestID:    contestID,
				SubmissionID: entry.SubmissionID,
				Rank:         entry.Rank,
				PrizeLabel:   tier.Label,
				PrizeAmount:  prize,
				AwardedAt:    awardedAt,
			})
			cursor++
		}
		if cursor >= len(labeled) {
			break
		}
	}

	return results, labeled
}

func (a *AwardAssigner) capacity() int {
	total := 0
	for _, t := range a.tiers {
		total += t.Count
	}
	return total
}

// ResultID derives the stable id of a contest result.
func ResultID(contestID, submissionID string) string {
	return uuid.NewSHA1(resultNamespace, []byte(contestID+"/"+submissionID)).String()
}
