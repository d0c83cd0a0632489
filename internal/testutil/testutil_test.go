package testutil_test

import (
	"testing"

	"ledgersync/internal/errors"
	"ledgersync/internal/models"
	"ledgersync/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"expenses", "income", "categories", "sync_runs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDBIsolated(t *testing.T) {
	a := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, a)
	b := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, b)

	testutil.CreateTestExpense(t, a, testutil.NewOwnerID(), 100, false)

	var count int64
	if err := b.Model(&models.Expense{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected second database to be empty, got %d rows", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	owner := testutil.NewOwnerID()

	exp := testutil.CreateTestExpense(t, db, owner, 100, true)
	if exp.OwnerID != owner || exp.UpdatedAt != 100 || !exp.Synced {
		t.Errorf("unexpected expense metadata: %+v", exp.SyncMeta)
	}

	var stored models.Expense
	if err := db.First(&stored, "id = ?", exp.ID).Error; err != nil {
		t.Fatalf("expense should be stored: %v", err)
	}
	if stored.UpdatedAt != 100 || stored.CreatedAt != 100 {
		t.Errorf("stored timestamps should be kept as given, got created=%d updated=%d", stored.CreatedAt, stored.UpdatedAt)
	}

	cat := testutil.CreateTestCategory(t, db, owner, models.CategoryTypeIncome)
	if cat.Type != models.CategoryTypeIncome {
		t.Errorf("expected income category, got %s", cat.Type)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrNotFound, "custom message")
	testutil.AssertAppError(t, err, "NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
