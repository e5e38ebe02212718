package database

import (
	"errors"
	"time"

	"github.com/morotw/awards/backend/internal/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSeedEventConfig     = "2025-09-01_seed_event_config"
	migrationFinalPositionUnique = "2025-09-01_finalists_position_unique"
	migrationNominationsMergeKey = "2025-09-02_nominations_merge_key_index"
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
		{name: migrationSeedEventConfig, apply: seedEventConfig},
		{name: migrationFinalPositionUnique, apply: createFinalPositionUniqueIndex},
		{name: migrationNominationsMergeKey, apply: createNominationMergeKeyIndex},
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

// seedEventConfig inserts the singleton configuration row with every override
// off and zero-value dates; admins set the real schedule from the console.
func seedEventConfig(db *gorm.DB) error {
	var existing event.EventConfig
	err := db.Where("id = ?", 1).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return db.Create(&event.EventConfig{ID: 1}).Error
}

// createFinalPositionUniqueIndex makes the store the final arbiter for
// concurrent reveals of the same position within a category.
func createFinalPositionUniqueIndex(db *gorm.DB) error {
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_finalists_category_position
		ON finalists (category_id, final_position)
		WHERE final_position IS NOT NULL;`).Error
}

// createNominationMergeKeyIndex backs the case-insensitive merge lookup on
// user-mode nominations.
func createNominationMergeKeyIndex(db *gorm.DB) error {
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_nominations_merge_key
		ON nominations (category_id, lower(nominated_user));`).Error
}
