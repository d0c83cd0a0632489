package services

import (
	"context"
	"sync"

	"gorm.io/gorm"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
	"ledgersync/internal/pagination"
	"ledgersync/internal/remote"
	"ledgersync/internal/uuid"
)

// SeedResult reports what SeedDefaults did.
type SeedResult struct {
	// Seeded is the number of default categories created on this device.
	Seeded int `json:"seeded"`
	// Pulled is the number of categories copied from the remote because
	// another device had already claimed seeding.
	Pulled int `json:"pulled"`
}

// categoryService handles category-related business logic.
type categoryService struct {
	*recordService[models.Category, *models.Category]

	marker *remote.SeedMarker
	seedMu sync.Mutex
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(b Backend) CategoryServicer {
	s := &categoryService{
		recordService: newRecordService[models.Category, *models.Category](b),
		marker:        remote.NewSeedMarker(b.Remote, b.Identity, b.Timeout),
	}
	s.checkUpdate = func(cur, next *models.Category) error {
		if cur.Type != next.Type {
			return apperrors.ErrCategoryTypeImmutable
		}
		return nil
	}
	return s
}

func byName(db *gorm.DB) *gorm.DB {
	return db.Order("name ASC").Order("created_at ASC")
}

// Create creates a new category
func (s *categoryService) Create(ctx context.Context, ownerID string, fields models.CategoryFields) (*models.Category, error) {
	return s.create(ctx, ownerID, func(c *models.Category) {
		c.CategoryFields = fields
	})
}

// Update renames a category. Its type cannot change.
func (s *categoryService) Update(ctx context.Context, rec *models.Category) (*models.Category, error) {
	return s.update(ctx, rec)
}

// Delete deletes a category. Entries that name it keep the name.
func (s *categoryService) Delete(ctx context.Context, ownerID, id string) error {
	return s.remove(ctx, ownerID, id)
}

// Get retrieves a category by ID for a specific owner
func (s *categoryService) Get(ctx context.Context, ownerID, id string) (*models.Category, error) {
	return s.get(ctx, ownerID, id)
}

// ListByOwner returns ownerID's categories sorted by name.
func (s *categoryService) ListByOwner(ctx context.Context, ownerID string) ([]models.Category, error) {
	return s.store.QueryByOwner(ctx, ownerID, byName)
}

// ListByType returns ownerID's categories of one type sorted by name.
func (s *categoryService) ListByType(ctx context.Context, ownerID string, categoryType models.CategoryType) ([]models.Category, error) {
	return s.store.QueryByOwner(ctx, ownerID, byName, func(db *gorm.DB) *gorm.DB {
		return db.Where("type = ?", categoryType)
	})
}

// ListPage retrieves a paginated list of categories for an owner.
func (s *categoryService) ListPage(ctx context.Context, ownerID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	return s.listPage(ctx, ownerID, page, byName)
}

// ListUnsynced returns ownerID's categories not yet confirmed by the remote.
func (s *categoryService) ListUnsynced(ctx context.Context, ownerID string) ([]models.Category, error) {
	return s.store.QueryUnsynced(ctx, ownerID)
}

// SeedDefaults gives an owner with no categories the default catalog.
//
// Only one device may seed an owner: the owner's seed marker is claimed with
// create-only semantics first. A lost claim means another device seeded, so
// its categories are pulled instead, unless the remote holds none because the
// owner deleted them all. If the remote cannot be reached the catalog is
// seeded locally and pushed by a later sync. Default categories have ids
// derived from owner, type and name, so two devices that both seed converge
// on one catalog.
func (s *categoryService) SeedDefaults(ctx context.Context, ownerID string) (SeedResult, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	n, err := s.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return SeedResult{}, err
	}
	if n > 0 {
		return SeedResult{}, nil
	}

	won, err := s.marker.Claim(ctx, ownerID)
	if err != nil {
		s.log.Warnw("seed claim failed; seeding locally", "owner_id", ownerID, "error", err)
		won = true
	}
	if !won {
		result, empty, err := s.pullSeeded(ctx, ownerID)
		if err != nil || !empty {
			return result, err
		}
		s.log.Infow("seed marker present but no categories remain; reseeding", "owner_id", ownerID)
	}

	cats := s.defaultCatalog(ownerID)
	if err := s.store.PutAll(ctx, cats); err != nil {
		return SeedResult{}, err
	}
	for i := range cats {
		s.propagateWrite(&cats[i])
	}

	s.log.Infow("seeded default categories", "owner_id", ownerID, "count", len(cats))
	return SeedResult{Seeded: len(cats)}, nil
}

// pullSeeded copies the seeding device's categories. empty reports that the
// remote answered with no categories at all.
func (s *categoryService) pullSeeded(ctx context.Context, ownerID string) (result SeedResult, empty bool, err error) {
	cats, err := s.remote.FetchAll(ctx, ownerID)
	if err != nil {
		// The categories arrive with the next sync or live change.
		s.log.Warnw("seed claim lost and remote categories unreadable", "owner_id", ownerID, "error", err)
		return SeedResult{}, false, nil
	}
	if len(cats) == 0 {
		return SeedResult{}, true, nil
	}
	if err := s.store.PutAll(ctx, cats); err != nil {
		return SeedResult{}, false, err
	}
	return SeedResult{Pulled: len(cats)}, false, nil
}

func (s *categoryService) defaultCatalog(ownerID string) []models.Category {
	cats := make([]models.Category, 0, len(models.DefaultExpenseCategories)+len(models.DefaultIncomeCategories))
	add := func(name string, categoryType models.CategoryType) {
		now := s.clock.Now()
		cats = append(cats, models.Category{
			SyncMeta: models.SyncMeta{
				ID:        uuid.NewDerived(s.kind.IDPrefix(), ownerID, string(categoryType), name),
				OwnerID:   ownerID,
				CreatedAt: now,
				UpdatedAt: now,
			},
			CategoryFields: models.CategoryFields{Name: name, Type: categoryType},
		})
	}
	for _, name := range models.DefaultExpenseCategories {
		add(name, models.CategoryTypeExpense)
	}
	for _, name := range models.DefaultIncomeCategories {
		add(name, models.CategoryTypeIncome)
	}
	return cats
}
