package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"ledgersync/internal/models"
	"ledgersync/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewOwnerID returns a fresh owner id.
func NewOwnerID() string {
	return fmt.Sprintf("owner-%d", nextID())
}

// EntryFields returns valid ledger entry fields.
func EntryFields(description, amount, category, date string) models.EntryFields {
	return models.EntryFields{
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Date:        date,
	}
}

// CoffeeFields is the canonical small expense used across tests.
func CoffeeFields() models.EntryFields {
	return EntryFields("Coffee", "4.50", "Food", "2024-01-10")
}

// NewTestExpense builds an expense owned by ownerID stamped updatedAt, without
// storing it.
func NewTestExpense(ownerID string, updatedAt int64, synced bool) *models.Expense {
	e := &models.Expense{}
	e.SyncMeta = testMeta(models.KindExpense, ownerID, updatedAt, synced)
	e.EntryFields = EntryFields(fmt.Sprintf("Test Expense %d", nextID()), "10.00", "Food", "2024-01-10")
	return e
}

// CreateTestExpense stores a fresh expense directly in db.
func CreateTestExpense(t *testing.T, db *gorm.DB, ownerID string, updatedAt int64, synced bool) *models.Expense {
	t.Helper()

	e := NewTestExpense(ownerID, updatedAt, synced)
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("failed to create test expense: %v", err)
	}
	return e
}

// NewTestIncome builds an income entry owned by ownerID, without storing it.
func NewTestIncome(ownerID string, updatedAt int64, synced bool) *models.Income {
	i := &models.Income{}
	i.SyncMeta = testMeta(models.KindIncome, ownerID, updatedAt, synced)
	i.EntryFields = EntryFields(fmt.Sprintf("Test Income %d", nextID()), "1000.00", "Salary", "2024-01-01")
	return i
}

// NewTestCategory builds a category owned by ownerID, without storing it.
func NewTestCategory(ownerID string, categoryType models.CategoryType, updatedAt int64, synced bool) *models.Category {
	c := &models.Category{}
	c.SyncMeta = testMeta(models.KindCategory, ownerID, updatedAt, synced)
	c.CategoryFields = models.CategoryFields{
		Name: fmt.Sprintf("Test Category %d", nextID()),
		Type: categoryType,
	}
	return c
}

// CreateTestCategory stores a fresh category directly in db.
func CreateTestCategory(t *testing.T, db *gorm.DB, ownerID string, categoryType models.CategoryType) *models.Category {
	t.Helper()

	c := NewTestCategory(ownerID, categoryType, time.Now().UnixMilli(), false)
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return c
}

func testMeta(kind models.Kind, ownerID string, updatedAt int64, synced bool) models.SyncMeta {
	return models.SyncMeta{
		ID:        uuid.NewPrefixed(kind.IDPrefix()),
		OwnerID:   ownerID,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
		Synced:    synced,
	}
}
