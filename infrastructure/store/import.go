package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/ports"
)

// Import writes a snapshot into the store, replacing the contest's
// configuration, tiers, template, submissions, scores and bonus entries.
// It is used to load fixtures and to replay exported contests locally.
// Existing results are left untouched.
func (s *GormStore) Import(ctx context.Context, snapshot *domain.ContestSnapshot) error {
	contestID := snapshot.Contest.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if snapshot.Template != nil {
			tpl := templateRowFrom(*snapshot.Template)
			if err := tx.Where("template_id = ?", tpl.ID).Delete(&CriterionRow{}).Error; err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).
				Create(&tpl).Error; err != nil {
				return err
			}
			if len(tpl.Criteria) > 0 {
				if err := tx.Create(&tpl.Criteria).Error; err != nil {
					return err
				}
			}
		}

		contest := contestRowFrom(snapshot.Contest)
		if err := tx.Where("contest_id = ?", contestID).Delete(&AwardTierRow{}).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&contest).Error; err != nil {
			return err
		}
		if len(contest.AwardTiers) > 0 {
			if err := tx.Create(&contest.AwardTiers).Error; err != nil {
				return err
			}
		}

		for _, model := range []any{&ScoreRow{}, &BonusEntryRow{}, &SubmissionRow{}} {
			if err := tx.Where("contest_id = ?", contestID).Delete(model).Error; err != nil {
				return err
			}
		}

		if len(snapshot.Submissions) > 0 {
			rows := make([]SubmissionRow, len(snapshot.Submissions))
			for i, sub := range snapshot.Submissions {
				sub.ContestID = contestID
				rows[i] = submissionRowFrom(sub)
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		if len(snapshot.Scores) > 0 {
			rows := make([]ScoreRow, len(snapshot.Scores))
			for i, sc := range snapshot.Scores {
				rows[i] = scoreRowFrom(contestID, sc)
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		if len(snapshot.Bonuses) > 0 {
			rows := make([]BonusEntryRow, len(snapshot.Bonuses))
			for i, b := range snapshot.Bonuses {
				rows[i] = bonusEntryRowFrom(contestID, b)
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError("Import", contestID, err)
	}
	return nil
}

// SetContestState updates a contest's status and bumps its version. Hosts
// change contest state through their own admin surface; this exists for
// local replays and tests.
func (s *GormStore) SetContestState(ctx context.Context, contestID string, status domain.ContestStatus) error {
	res := s.db.WithContext(ctx).Model(&ContestRow{}).Where("id = ?", contestID).
		Updates(map[string]any{
			"status":  string(status),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return ports.NewStoreError("SetContestState", contestID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrContestNotFound
	}
	return nil
}
