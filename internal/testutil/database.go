package testutil

import (
	"testing"

	"mdnotes/internal/database"
	"mdnotes/internal/notes"
)

// NewTestDatabase creates an in-memory SQLite database with all migrations
// applied. The database is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.MigrateUp(notes.NewNopLogger()); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
