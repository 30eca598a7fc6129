// Package migrations provides database migration management for promptvid.
package migrations

import (
	"github.com/jmylchreest/promptvid/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.VideoSpec{},
				&models.VideoRun{},
				&models.Scene{},
				&models.Segment{},
				&models.ProcessingLock{},

				&models.Job{},
				&models.JobHistory{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"job_histories",
				"jobs",
				"processing_locks",
				"video_segments",
				"video_scenes",
				"video_runs",
				"video_specs",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
