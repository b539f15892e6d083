// Package database provides database initialization and connection
// management. It uses GORM with SQLite for embedded storage, behind a
// driver abstraction for future relational backends.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/pkg/errors"
	"github.com/openjdk/jmerge/pkg/logger"
)

// DefaultDBPath is the default database file path.
const DefaultDBPath = "./data/jmerge.db"

var (
	db   *gorm.DB
	once sync.Once
)

// Init initializes the database connection and runs auto-migration.
// Safe to call multiple times; only the first call takes effect.
func Init() error {
	return InitWithPath(DefaultDBPath)
}

// InitWithPath initializes the database with a custom path. Primarily
// for tests; production code calls Init.
func InitWithPath(dbPath string) error {
	var initErr error
	once.Do(func() {
		initErr = initDB(dbPath)
	})
	return initErr
}

func initDB(dbPath string) error {
	logger.Info("Initializing database", zap.String("path", dbPath))

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to create database directory", err)
	}

	driver := &SQLiteDriver{}
	dialector, err := driver.Open(dbPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to open database", err)
	}

	db, err = gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	if err := driver.PreMigrationConfig(db); err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to apply pre-migration config", err)
	}

	models := model.AllModels()
	if err := db.AutoMigrate(models...); err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run database migrations", err)
	}

	if err := driver.PostMigrationConfig(db); err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to apply post-migration config", err)
	}

	logger.Info("Database initialized",
		zap.String("driver", driver.Name()),
		zap.Int("models", len(models)),
	)
	return nil
}

// Get returns the database instance. Panics when Init was not called.
func Get() *gorm.DB {
	if db == nil {
		panic("database not initialized, call Init first")
	}
	return db
}

// Close closes the database connection.
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	logger.Info("Closing database connection")
	return sqlDB.Close()
}

// ResetForTesting resets the database state so tests can re-initialize
// with their own temporary file. Only for tests.
func ResetForTesting() {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		db = nil
	}
	once = sync.Once{}
}

// Transaction executes fn within a database transaction.
func Transaction(fn func(tx *gorm.DB) error) error {
	return Get().Transaction(fn)
}

// HealthCheck pings the database.
func HealthCheck() error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to get database connection", err)
	}
	return sqlDB.Ping()
}
