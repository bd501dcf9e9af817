// Package store implements ports.ContestStore on a relational database
// through gorm. Postgres is the production dialect; SQLite backs local runs
// and tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/ports"
)

// Ensure GormStore implements the ContestStore interface.
var _ ports.ContestStore = (*GormStore)(nil)

var validate = validator.New()

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config configures the database connection.
type Config struct {
	// Driver selects the gorm dialector.
	Driver string `yaml:"driver" json:"driver" validate:"required,oneof=postgres sqlite"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" json:"dsn" validate:"required"`

	// SnapshotIsolation is the isolation level of the snapshot read
	// transaction. Postgres deployments should use repeatable_read so a
	// snapshot never mixes two states of a judge's edit.
	SnapshotIsolation string `yaml:"snapshot_isolation" json:"snapshot_isolation" validate:"omitempty,oneof=default read_committed repeatable_read serializable"`

	// MaxOpenConns caps the connection pool. Zero leaves the driver default.
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns" validate:"min=0"`

	// AutoMigrate creates or updates the tables on open.
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate"`

	// SlowQueryThreshold is the duration above which queries are logged.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold" validate:"min=0"`
}

// DefaultConfig returns a Config for a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Driver:             DriverSQLite,
		DSN:                "contest-results.db",
		SnapshotIsolation:  "default",
		AutoMigrate:        true,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// GormStore is a ContestStore backed by gorm.
type GormStore struct {
	db        *gorm.DB
	isolation sql.IsolationLevel
	now       func() time.Time
}

// Open connects to the configured database and, if enabled, migrates the
// schema. Gorm's own log output is routed to log.
func Open(cfg Config, log logrus.FieldLogger) (*GormStore, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             cfg.SlowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, ports.NewStoreError("Open", "", fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err))
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, ports.NewStoreError("Open", "", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := New(db, cfg)
	if cfg.AutoMigrate {
		if err := s.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, cfg Config) *GormStore {
	return &GormStore{
		db:        db,
		isolation: isolationLevel(cfg.SnapshotIsolation),
		now:       time.Now,
	}
}

func isolationLevel(name string) sql.IsolationLevel {
	switch name {
	case "read_committed":
		return sql.LevelReadCommitted
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// Migrate creates or updates every table the store uses.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return ports.NewStoreError("Migrate", "", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadSnapshot reads everything one computation needs inside a single
// read-only transaction.
func (s *GormStore) LoadSnapshot(ctx context.Context, contestID string) (*domain.ContestSnapshot, error) {
	snapshot := &domain.ContestSnapshot{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contest ContestRow
		if err := tx.Preload("AwardTiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).Where("id = ?", contestID).First(&contest).Error; err != nil {
			return err
		}
		snapshot.Contest = contest.toDomain()

		if contest.TemplateID != "" {
			tpl, err := loadTemplate(tx, contest.TemplateID)
			switch {
			case err == nil:
				snapshot.Template = tpl
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		statuses := make([]string, len(domain.CandidateStatuses))
		for i, st := range domain.CandidateStatuses {
			statuses[i] = string(st)
		}

		var submissions []SubmissionRow
		if err := tx.Where("contest_id = ? AND status IN ?", contestID, statuses).
			Order("id ASC").Find(&submissions).Error; err != nil {
			return err
		}
		snapshot.Submissions = make([]domain.Submission, len(submissions))
		for i, r := range submissions {
			snapshot.Submissions[i] = r.toDomain()
		}

		var scores []ScoreRow
		if err := tx.Where("contest_id = ?", contestID).
			Order("submission_id ASC, judge_id ASC").Find(&scores).Error; err != nil {
			return err
		}
		snapshot.Scores = make([]domain.Score, len(scores))
		for i, r := range scores {
			score, err := r.toDomain()
			if err != nil {
				return err
			}
			snapshot.Scores[i] = score
		}

		var bonuses []BonusEntryRow
		if err := tx.Where("contest_id = ? AND verified = ?", contestID, true).
			Order("id ASC").Find(&bonuses).Error; err != nil {
			return err
		}
		snapshot.Bonuses = make([]domain.BonusEntry, len(bonuses))
		for i, r := range bonuses {
			snapshot.Bonuses[i] = r.toDomain()
		}
		return nil
	}, &sql.TxOptions{Isolation: s.isolation, ReadOnly: true})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrContestNotFound, contestID)
		}
		return nil, ports.NewStoreError("LoadSnapshot", contestID, err)
	}

	snapshot.ReadAt = s.now()
	return snapshot, nil
}

// ReplaceResults deletes and re-inserts the contest's results in one
// transaction after locking the contest row and checking guard.
func (s *GormStore) ReplaceResults(
	ctx context.Context,
	contestID string,
	guard domain.Guard,
	results []domain.ContestResult,
) error {
	rows := make([]ContestResultRow, len(results))
	for i, r := range results {
		if r.ContestID != contestID {
			return fmt.Errorf("result %s belongs to contest %s, not %s", r.ID, r.ContestID, contestID)
		}
		rows[i] = contestResultRowFrom(r)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockContest(tx, contestID, guard); err != nil {
			return err
		}

		if err := tx.Where("contest_id = ?", contestID).Delete(&ContestResultRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})

	return s.wrap("ReplaceResults", contestID, err)
}

// LoadContest returns a contest with its award tiers.
func (s *GormStore) LoadContest(ctx context.Context, contestID string) (*domain.Contest, error) {
	var row ContestRow
	if err := s.db.WithContext(ctx).Preload("AwardTiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Where("id = ?", contestID).First(&row).Error; err != nil {
		return nil, s.wrap("LoadContest", contestID, err)
	}
	contest := row.toDomain()
	return &contest, nil
}

// LoadResults returns the persisted results ordered by rank.
func (s *GormStore) LoadResults(ctx context.Context, contestID string) ([]domain.ContestResult, error) {
	var rows []ContestResultRow
	if err := s.db.WithContext(ctx).Where("contest_id = ?", contestID).
		Order("rank ASC").Find(&rows).Error; err != nil {
		return nil, ports.NewStoreError("LoadResults", contestID, err)
	}

	results := make([]domain.ContestResult, len(rows))
	for i, r := range rows {
		results[i] = r.toDomain()
	}
	return results, nil
}

// LoadTemplate returns a judging template with its criteria in order.
func (s *GormStore) LoadTemplate(ctx context.Context, templateID string) (*domain.JudgingTemplate, error) {
	tpl, err := loadTemplate(s.db.WithContext(ctx), templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ports.ErrTemplateNotFound, templateID)
		}
		return nil, ports.NewStoreError("LoadTemplate", "", err)
	}
	return tpl, nil
}

func loadTemplate(db *gorm.DB, templateID string) (*domain.JudgingTemplate, error) {
	var row TemplateRow
	if err := db.Preload("Criteria", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	}).Where("id = ?", templateID).First(&row).Error; err != nil {
		return nil, err
	}
	tpl := row.toDomain()
	return &tpl, nil
}

// UpsertScore writes a judge's score while the contest is judging. The
// contest row is locked so the write cannot interleave with a status change.
func (s *GormStore) UpsertScore(ctx context.Context, contestID string, score domain.Score) error {
	row := scoreRowFrom(contestID, score)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contest, err := lockContest(tx, contestID, domain.Guard{})
		if err != nil {
			return err
		}
		if domain.ContestStatus(contest.Status) != domain.ContestJudging {
			actual := domain.Guard{Status: domain.ContestStatus(contest.Status), Version: contest.Version}
			expected := domain.Guard{Status: domain.ContestJudging, Version: contest.Version}
			return domain.NewConflictError(contestID, expected, actual)
		}

		var count int64
		if err := tx.Model(&SubmissionRow{}).
			Where("id = ? AND contest_id = ?", score.SubmissionID, contestID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", ports.ErrSubmissionNotFound, score.SubmissionID)
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}, {Name: "judge_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"template_id", "criteria_scores", "total", "updated_at"}),
		}).Create(&row).Error
	})

	return s.wrap("UpsertScore", contestID, err)
}

// lockContest reads the contest row FOR UPDATE. When guard is non-zero the
// row must still match it.
func lockContest(tx *gorm.DB, contestID string, guard domain.Guard) (*ContestRow, error) {
	var row ContestRow
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", contestID).
		First(&row).Error; err != nil {
		return nil, err
	}

	if guard != (domain.Guard{}) {
		actual := domain.Guard{Status: domain.ContestStatus(row.Status), Version: row.Version}
		if actual != guard {
			return nil, domain.NewConflictError(contestID, guard, actual)
		}
	}
	return &row, nil
}

// wrap maps gorm errors onto domain and port errors. Domain and port
// sentinels pass through unchanged.
func (s *GormStore) wrap(operation, contestID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", domain.ErrContestNotFound, contestID)
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, ports.ErrSubmissionNotFound):
		return err
	default:
		return ports.NewStoreError(operation, contestID, err)
	}
}
