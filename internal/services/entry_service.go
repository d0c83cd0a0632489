package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
	"ledgersync/internal/pagination"
)

// entryRecord is satisfied by *models.Expense and *models.Income.
type entryRecord[T any] interface {
	models.Record[T]
	Entry() *models.LedgerEntry
}

// entryService is the offline-first service for one ledger entry kind.
type entryService[T any, PT entryRecord[T]] struct {
	*recordService[T, PT]
}

// NewExpenseService creates a new ExpenseServicer.
func NewExpenseService(b Backend) ExpenseServicer {
	return &entryService[models.Expense, *models.Expense]{newRecordService[models.Expense, *models.Expense](b)}
}

// NewIncomeService creates a new IncomeServicer.
func NewIncomeService(b Backend) IncomeServicer {
	return &entryService[models.Income, *models.Income]{newRecordService[models.Income, *models.Income](b)}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("date DESC").Order("created_at DESC")
}

// Create records a new entry for ownerID. It returns once the entry is
// durable locally; the remote copy follows in the background.
func (s *entryService[T, PT]) Create(ctx context.Context, ownerID string, fields models.EntryFields) (PT, error) {
	return s.create(ctx, ownerID, func(rec PT) {
		rec.Entry().EntryFields = fields
	})
}

// Update replaces an existing entry with rec.
func (s *entryService[T, PT]) Update(ctx context.Context, rec PT) (PT, error) {
	return s.update(ctx, rec)
}

// Delete removes the entry locally and, best-effort, remotely.
func (s *entryService[T, PT]) Delete(ctx context.Context, ownerID, id string) error {
	return s.remove(ctx, ownerID, id)
}

// Get returns ownerID's entry with the given id.
func (s *entryService[T, PT]) Get(ctx context.Context, ownerID, id string) (PT, error) {
	return s.get(ctx, ownerID, id)
}

// ListByOwner returns every entry of ownerID, newest date first.
func (s *entryService[T, PT]) ListByOwner(ctx context.Context, ownerID string) ([]T, error) {
	return s.store.QueryByOwner(ctx, ownerID, newestFirst)
}

// ListByCategory returns ownerID's entries filed under the category name.
func (s *entryService[T, PT]) ListByCategory(ctx context.Context, ownerID, category string) ([]T, error) {
	return s.store.QueryByOwner(ctx, ownerID, newestFirst, func(db *gorm.DB) *gorm.DB {
		return db.Where("category = ?", category)
	})
}

// ListByDateRange returns ownerID's entries dated from..to inclusive. Both
// bounds are YYYY-MM-DD.
func (s *entryService[T, PT]) ListByDateRange(ctx context.Context, ownerID, from, to string) ([]T, error) {
	fromDate, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from date, expected YYYY-MM-DD")
	}
	toDate, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to date, expected YYYY-MM-DD")
	}
	if toDate.Before(fromDate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "from date must not be after to date")
	}

	// Dates are stored in their canonical layout, so string order is date order.
	return s.store.QueryByOwner(ctx, ownerID, newestFirst, func(db *gorm.DB) *gorm.DB {
		return db.Where("date >= ? AND date <= ?", from, to)
	})
}

// ListPage returns one page of ownerID's entries, newest date first.
func (s *entryService[T, PT]) ListPage(ctx context.Context, ownerID string, page pagination.PageRequest) (*pagination.PageResponse[T], error) {
	return s.listPage(ctx, ownerID, page, newestFirst)
}

// ListUnsynced returns ownerID's entries not yet confirmed by the remote.
func (s *entryService[T, PT]) ListUnsynced(ctx context.Context, ownerID string) ([]T, error) {
	return s.store.QueryUnsynced(ctx, ownerID)
}
