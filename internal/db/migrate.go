package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/jobvalidator/internal/models"
)

// AllModels returns every GORM model in the schema, parents first.
func AllModels() []interface{} {
	return []interface{}{
		&models.Job{},
		&models.LineItem{},
		&models.ChecklistPart{},
		&models.ChecklistAnswer{},
		&models.CustomField{},
		&models.ValidationFlag{},
		&models.Organization{},
		&models.SyncLog{},
		&models.NotificationLog{},
	}
}

// CompositeIndexes lists the named indexes the dashboard filters depend on.
var CompositeIndexes = []string{
	"idx_jobs_completed_org",
	"idx_jobs_created_org",
	"idx_jobs_completed_team",
	"idx_jobs_job_number",
	"idx_jobs_org_name",
}

// AutoMigrate creates or updates all tables and then makes sure the
// composite indexes exist.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return EnsureIndexes(db)
}

// EnsureIndexes creates any missing composite index on the jobs table. It is
// safe to run repeatedly, including against databases created by older
// builds that lack some indexes.
func EnsureIndexes(db *gorm.DB) error {
	m := db.Migrator()
	for _, name := range CompositeIndexes {
		if m.HasIndex(&models.Job{}, name) {
			continue
		}
		if err := m.CreateIndex(&models.Job{}, name); err != nil {
			return fmt.Errorf("db: create index %s: %w", name, err)
		}
	}
	return nil
}

// DropAll drops every table in the schema, children first.
func DropAll(db *gorm.DB) error {
	all := AllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", all[i], err)
		}
	}
	return nil
}
