package store

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: watch offsets and the playback log
		{
			ID: "001_watch_state_and_queue",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&FileWatchState{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&QueueRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("file_watch_state", "queue_records")
			},
		},

		// Migration 002: composite index for the log listing query
		// (profile filter + newest-first paging in one scan).
		{
			ID: "002_queue_records_profile_ts",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_queue_records_profile_ts
					ON queue_records(profile_id, timestamp DESC)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_queue_records_profile_ts").Error
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
