// Package storetest opens throwaway databases for tests.
package storetest

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"cs2kz-api/internal/store"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New opens a migrated database in a per-test temporary directory.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), Logger())
	if err != nil {
		t.Fatalf("storetest: failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(db); err != nil {
			t.Logf("storetest: closing database: %v", err)
		}
	})

	if err := store.Migrate(db); err != nil {
		t.Fatalf("storetest: %v", err)
	}
	return db
}
