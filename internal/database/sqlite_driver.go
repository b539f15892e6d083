package database

import (
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openjdk/jmerge/pkg/logger"
)

// Driver abstracts the database backend. Only SQLite is implemented;
// the interface keeps the door open for server databases.
type Driver interface {
	Name() string
	Open(dsn string) (gorm.Dialector, error)
	// PreMigrationConfig applies settings before migration. Foreign
	// keys stay off here so orphan rows cannot fail a migration.
	PreMigrationConfig(db *gorm.DB) error
	// PostMigrationConfig applies settings after migration completes.
	PostMigrationConfig(db *gorm.DB) error
}

// SQLiteDriver implements Driver for the embedded SQLite database.
type SQLiteDriver struct{}

func (d *SQLiteDriver) Name() string {
	return "sqlite"
}

func (d *SQLiteDriver) Open(dsn string) (gorm.Dialector, error) {
	return sqlite.Open(dsn), nil
}

// PreMigrationConfig limits SQLite to a single connection to avoid
// concurrent write conflicts, and enables WAL for concurrent reads.
func (d *SQLiteDriver) PreMigrationConfig(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		logger.Warn("Failed to enable WAL mode", zap.Error(err))
	}
	if err := db.Exec("PRAGMA synchronous = NORMAL").Error; err != nil {
		logger.Warn("Failed to set synchronous mode", zap.Error(err))
	}
	return nil
}

func (d *SQLiteDriver) PostMigrationConfig(db *gorm.DB) error {
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		logger.Warn("Failed to enable foreign keys", zap.Error(err))
	}
	return nil
}
