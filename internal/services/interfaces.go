package services

import (
	"context"

	"ledgersync/internal/models"
	"ledgersync/internal/pagination"
)

// EntryServicer defines the contract for ledger entry (expense and income)
// business logic. Reads come from the local store only.
type EntryServicer[T any] interface {
	Create(ctx context.Context, ownerID string, fields models.EntryFields) (*T, error)
	Update(ctx context.Context, rec *T) (*T, error)
	Delete(ctx context.Context, ownerID, id string) error
	Get(ctx context.Context, ownerID, id string) (*T, error)
	ListByOwner(ctx context.Context, ownerID string) ([]T, error)
	ListByCategory(ctx context.Context, ownerID, category string) ([]T, error)
	ListByDateRange(ctx context.Context, ownerID, from, to string) ([]T, error)
	ListPage(ctx context.Context, ownerID string, page pagination.PageRequest) (*pagination.PageResponse[T], error)
	ListUnsynced(ctx context.Context, ownerID string) ([]T, error)
	Wait()
}

// ExpenseServicer defines the contract for expense business logic.
type ExpenseServicer = EntryServicer[models.Expense]

// IncomeServicer defines the contract for income business logic.
type IncomeServicer = EntryServicer[models.Income]

// CategoryServicer defines the contract for category business logic.
type CategoryServicer interface {
	Create(ctx context.Context, ownerID string, fields models.CategoryFields) (*models.Category, error)
	Update(ctx context.Context, rec *models.Category) (*models.Category, error)
	Delete(ctx context.Context, ownerID, id string) error
	Get(ctx context.Context, ownerID, id string) (*models.Category, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Category, error)
	ListByType(ctx context.Context, ownerID string, categoryType models.CategoryType) ([]models.Category, error)
	ListPage(ctx context.Context, ownerID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	ListUnsynced(ctx context.Context, ownerID string) ([]models.Category, error)
	SeedDefaults(ctx context.Context, ownerID string) (SeedResult, error)
	Wait()
}

// JournalServicer defines the contract for the sync run journal.
type JournalServicer interface {
	Record(run *models.SyncRun)
	Last(ctx context.Context, ownerID string) (*models.SyncRun, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]models.SyncRun, error)
}
