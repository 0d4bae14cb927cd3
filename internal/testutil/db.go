// Package testutil provides shared helpers for package tests.
package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/fundlens/fundlens/internal/database"
)

// NewTestDB creates a temporary SQLite database for testing with the schema
// for the given name applied ("screens" or "portfolio"). Returns the database
// and an idempotent cleanup function.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// A file-backed database keeps the pragma profile identical to
	// production; each test gets its own file for isolation.
	tmpFile, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		_ = db.Close()
	}
	return db, cleanup
}
