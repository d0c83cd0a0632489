package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ledgersync/internal/clock"
	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/identity"
	"ledgersync/internal/localstore"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
	"ledgersync/internal/pagination"
	"ledgersync/internal/remote"
	"ledgersync/internal/uuid"
	"ledgersync/internal/validator"
)

// Backend bundles what every entity service writes through.
type Backend struct {
	DB       *gorm.DB
	Remote   remote.Store
	Identity identity.Provider
	Clock    clock.Clock
	Timeout  time.Duration
}

func (b Backend) clock() clock.Clock {
	if b.Clock == nil {
		return clock.New()
	}
	return b.Clock
}

// recordService is the write-through core shared by every entity service.
// Mutations land in the local store and return; the remote write runs on its
// own goroutine and only ever flips the synced flag.
type recordService[T any, PT models.Record[T]] struct {
	store  *localstore.Store[T, PT]
	remote *remote.Client[T, PT]
	clock  clock.Clock
	kind   models.Kind
	log    *zap.SugaredLogger

	inflight sync.WaitGroup

	// checkUpdate rejects kind-specific illegal transitions.
	checkUpdate func(cur, next PT) error
}

func newRecordService[T any, PT models.Record[T]](b Backend) *recordService[T, PT] {
	store := localstore.New[T, PT](b.DB)
	return &recordService[T, PT]{
		store:  store,
		remote: remote.NewClient[T, PT](b.Remote, b.Identity, b.Timeout),
		clock:  b.clock(),
		kind:   store.Kind(),
		log:    logger.Named("services").With("kind", string(store.Kind())),
	}
}

// create stamps a new record, stores it and starts propagation. fill sets
// the domain fields.
func (s *recordService[T, PT]) create(ctx context.Context, ownerID string, fill func(PT)) (PT, error) {
	if ownerID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "owner id is required")
	}

	rec := PT(new(T))
	fill(rec)
	if err := validator.Struct(rec); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	meta := rec.Meta()
	meta.ID = uuid.NewPrefixed(s.kind.IDPrefix())
	meta.OwnerID = ownerID
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.Synced = false

	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	s.propagateWrite(rec)
	return rec, nil
}

// update replaces the stored record with next. Identity and createdAt come
// from the stored copy; updatedAt always moves forward.
func (s *recordService[T, PT]) update(ctx context.Context, next PT) (PT, error) {
	if next == nil || next.Meta().ID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "record id is required")
	}
	if err := validator.Struct(next); err != nil {
		return nil, err
	}

	cur, ok, err := s.store.Get(ctx, next.Meta().ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if cur.Meta().OwnerID != next.Meta().OwnerID {
		return nil, apperrors.ErrOwnerImmutable
	}
	if s.checkUpdate != nil {
		if err := s.checkUpdate(cur, next); err != nil {
			return nil, err
		}
	}

	out := PT(new(T))
	*out = *next
	meta := out.Meta()
	meta.CreatedAt = cur.Meta().CreatedAt
	meta.UpdatedAt = clock.After(s.clock, cur.Meta().UpdatedAt)
	meta.Synced = false

	if err := s.store.Put(ctx, out); err != nil {
		return nil, err
	}
	s.propagateWrite(out)
	return out, nil
}

// remove deletes the local copy at once and the remote copy best-effort.
func (s *recordService[T, PT]) remove(ctx context.Context, ownerID, id string) error {
	cur, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotFound
	}
	if cur.Meta().OwnerID != ownerID {
		return apperrors.ErrUnauthorized
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.propagateDelete(ownerID, id)
	return nil
}

func (s *recordService[T, PT]) get(ctx context.Context, ownerID, id string) (PT, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Meta().OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

func (s *recordService[T, PT]) listPage(ctx context.Context, ownerID string, page pagination.PageRequest, order localstore.Scope) (*pagination.PageResponse[T], error) {
	page.Normalize()

	total, err := s.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.QueryByOwner(ctx, ownerID, order, pagination.Paginate(page))
	if err != nil {
		return nil, err
	}

	result := pagination.NewPageResponse(recs, page, total)
	return &result, nil
}

func (s *recordService[T, PT]) propagateWrite(rec PT) {
	snapshot := *rec
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		rec := PT(&snapshot)
		meta := rec.Meta()

		if err := s.remote.Write(context.Background(), rec); err != nil {
			s.log.Warnw("remote write failed; record stays unsynced",
				"id", meta.ID, "owner_id", meta.OwnerID, "error", err)
			return
		}
		if _, err := s.store.MarkSynced(context.Background(), meta.ID, meta.UpdatedAt); err != nil {
			s.log.Errorw("failed to mark record synced", "id", meta.ID, "error", err)
		}
	}()
}

func (s *recordService[T, PT]) propagateDelete(ownerID, id string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.remote.Delete(context.Background(), ownerID, id); err != nil {
			s.log.Warnw("remote delete failed", "id", id, "owner_id", ownerID, "error", err)
		}
	}()
}

// Wait blocks until every propagation started so far has finished.
func (s *recordService[T, PT]) Wait() {
	s.inflight.Wait()
}
