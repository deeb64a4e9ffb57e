package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: runs and their component assignments
		{
			ID: "001_runs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Run{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&ClusterAssignment{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("cluster_assignments", "runs")
			},
		},

		// Migration 002: per-run topic salience
		{
			ID: "002_topic_salience",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&TopicSalience{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("topic_salience")
			},
		},
	})

	return m.Migrate()
}
