// Package store opens the SQLite database backing the API and provides the
// small query builders used by handlers.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cs2kz-api/internal/model"
)

// Open connects to the SQLite database at path.
//
// The pool is limited to a single connection: SQLite allows one writer at
// a time, and serializing transactions in the pool guarantees that a
// transaction reading state it is about to modify observes every commit
// that preceded it.
func Open(path string, log *slog.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate creates or updates every table owned by the API.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Player{},
		&model.LoginSession{},
		&model.Server{},
		&model.Ban{},
		&model.Unban{},
		&model.AuditEntry{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
