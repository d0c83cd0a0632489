// Package localstore is the on-device record store. It is the read-of-record
// for every foreground query: records are keyed by id with secondary lookups
// by owner, by (owner, date) and by (owner, synced).
//
// All methods run against local SQLite only and never touch the network. Any
// failure is a STORAGE_FAILURE and is returned to the caller as-is; nothing
// is retried here.
package localstore

import (
	"bytes"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
)

// Scope narrows a query, e.g. a date range or a page.
type Scope = func(*gorm.DB) *gorm.DB

// Store holds the records of one kind.
type Store[T any, PT models.Record[T]] struct {
	db *gorm.DB
}

// New returns the store for record kind T over an open, migrated database.
func New[T any, PT models.Record[T]](db *gorm.DB) *Store[T, PT] {
	return &Store[T, PT]{db: db}
}

// Kind returns the record kind held by this store.
func (s *Store[T, PT]) Kind() models.Kind {
	return PT(new(T)).Kind()
}

// Put inserts rec or replaces the stored record with the same id.
func (s *Store[T, PT]) Put(ctx context.Context, rec PT) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return nil
}

// MergeOutcome is what MergeRemote did with a remote copy.
type MergeOutcome int

const (
	// MergeApplied means the remote copy replaced or created the local one.
	MergeApplied MergeOutcome = iota
	// MergeKeptLocal means the local copy is newer, or unsynced at the same stamp.
	MergeKeptLocal
	// MergeUnchanged means the local copy already matched.
	MergeUnchanged
)

// MergeRemote stores rec, a copy observed on the remote, when it wins
// Last-Write-Wins against the local copy. The read, the decision and the
// upsert share one transaction, so a local edit either commits before the
// read or waits until the merge is done.
func (s *Store[T, PT]) MergeRemote(ctx context.Context, rec PT) (MergeOutcome, error) {
	var outcome MergeOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur := PT(new(T))
		found := true
		if err := tx.Where("id = ?", rec.Meta().ID).Take(cur).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			found = false
		}

		var local *models.SyncMeta
		if found {
			local = cur.Meta()
		}
		switch {
		case !models.RemoteWins(local, rec.Meta().UpdatedAt):
			outcome = MergeKeptLocal
			return nil
		case found && sameContent[T](cur, rec):
			outcome = MergeUnchanged
			return nil
		}
		outcome = MergeApplied
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return outcome, nil
}

// sameContent reports whether two copies carry the same stamp and fields.
func sameContent[T any, PT models.Record[T]](a, b PT) bool {
	if a.Meta().UpdatedAt != b.Meta().UpdatedAt || a.Meta().Synced != b.Meta().Synced {
		return false
	}
	fa, errA := a.MarshalFields()
	fb, errB := b.MarshalFields()
	return errA == nil && errB == nil && bytes.Equal(fa, fb)
}

// PutAll stores every record in one transaction.
func (s *Store[T, PT]) PutAll(ctx context.Context, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range recs {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(PT(&recs[i])).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return nil
}

// Get returns the record with the given id; ok is false when there is none.
func (s *Store[T, PT]) Get(ctx context.Context, id string) (rec PT, ok bool, err error) {
	out := new(T)
	err = s.db.WithContext(ctx).Where("id = ?", id).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return PT(out), true, nil
}

// Delete removes the record with the given id. Deleting a missing id is a
// no-op.
func (s *Store[T, PT]) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T)).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return nil
}

// QueryByOwner returns every record owned by ownerID. Order is unspecified
// unless a scope imposes one.
func (s *Store[T, PT]) QueryByOwner(ctx context.Context, ownerID string, scopes ...Scope) ([]T, error) {
	var out []T
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Scopes(scopes...).
		Find(&out).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return out, nil
}

// QueryUnsynced returns ownerID's records whose local copy is ahead of the
// remote (synced = false).
func (s *Store[T, PT]) QueryUnsynced(ctx context.Context, ownerID string) ([]T, error) {
	return s.QueryByOwner(ctx, ownerID, func(db *gorm.DB) *gorm.DB {
		return db.Where("synced = ?", false)
	})
}

// CountByOwner counts ownerID's records matching the optional scopes.
func (s *Store[T, PT]) CountByOwner(ctx context.Context, ownerID string, scopes ...Scope) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(new(T)).
		Where("owner_id = ?", ownerID).
		Scopes(scopes...).
		Count(&n).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return n, nil
}

// MarkSynced flags the record as equal to the remote copy, but only if its
// updatedAt still equals the propagated one. A newer local edit made while
// the write was in flight stays unsynced. Reports whether a row changed.
func (s *Store[T, PT]) MarkSynced(ctx context.Context, id string, updatedAt int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(new(T)).
		Where("id = ? AND updated_at = ?", id, updatedAt).
		Update("synced", true)
	if res.Error != nil {
		return false, apperrors.Wrap(apperrors.ErrStorageFailure, res.Error)
	}
	return res.RowsAffected > 0, nil
}
