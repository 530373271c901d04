package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/foxzi/newsflash/internal/db"
)

// setupTestDB creates a temporary SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	d, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return d.DB
}
