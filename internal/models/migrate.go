package models

import (
	"log"

	"gorm.io/gorm"
)

// SchemaVersion is stamped onto every artifact at creation time so a
// cross-version restore can be flagged by the caller.
const SchemaVersion = "2.4"

// AutoMigrate runs database migrations for all core tables
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&BackupArtifact{},
		&BackupSettings{},
		&AuditLog{},
		&ErrorRecord{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed successfully")
	return nil
}
