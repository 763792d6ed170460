package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/comments"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeUserEmails  = "2026-10-01_normalize_user_emails"
	migrationBackfillCommentPosts = "2026-10-02_backfill_comment_post_ids"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeUserEmails, apply: normalizeUserEmails},
		{name: migrationBackfillCommentPosts, apply: backfillCommentPostIDs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeUserEmails lower-cases and trims emails in rows imported from the
// original Postgres deployment, which stored addresses as submitted.
func normalizeUserEmails(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("email <> LOWER(TRIM(email))").
		Update("email", gorm.Expr("LOWER(TRIM(email))")).Error
}

// backfillCommentPostIDs assigns the default post to comments imported from the
// original Postgres deployment, whose post_id column allowed empty values.
func backfillCommentPostIDs(db *gorm.DB) error {
	return db.Model(&comments.Comment{}).
		Where("post_id = ? OR post_id IS NULL", "").
		Update("post_id", comments.DefaultPostID).Error
}
