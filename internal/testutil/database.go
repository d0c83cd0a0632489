// Package testutil provides test helpers for setting up in-memory databases,
// creating fixtures, and making assertions.
package testutil

import (
	"fmt"
	"testing"

	"ledgersync/internal/database"

	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite database with the local
// schema migrated. Each call gets its own database so parallel tests never
// share rows.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", nextID())
	db, err := database.OpenLocal(dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

// TeardownTestDB closes the underlying database connection.
func TeardownTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()

	if err := database.Close(db); err != nil {
		t.Errorf("failed to close test database: %v", err)
	}
}
