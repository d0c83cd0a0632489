package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ledgersync/internal/clock"
	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/identity"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
)

// DefaultTimeout bounds a remote call when none is configured.
const DefaultTimeout = 10 * time.Second

// Client is the typed, identity-checked view of one collection.
type Client[T any, PT models.Record[T]] struct {
	store      Store
	ids        identity.Provider
	timeout    time.Duration
	collection string
	log        *zap.SugaredLogger
}

// NewClient returns a Client for record kind T. A non-positive timeout means
// DefaultTimeout.
func NewClient[T any, PT models.Record[T]](store Store, ids identity.Provider, timeout time.Duration) *Client[T, PT] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	kind := PT(new(T)).Kind()
	return &Client[T, PT]{
		store:      store,
		ids:        ids,
		timeout:    timeout,
		collection: string(kind),
		log:        logger.Named("remote").With("collection", string(kind)),
	}
}

// Collection returns the remote collection name.
func (c *Client[T, PT]) Collection() string {
	return c.collection
}

// Write creates or replaces the remote copy of rec.
func (c *Client[T, PT]) Write(ctx context.Context, rec PT) error {
	meta := rec.Meta()
	if err := authorize(c.ids, meta.OwnerID); err != nil {
		return err
	}
	doc, err := ToDocument[T, PT](rec)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return mapError(c.store.Put(ctx, c.collection, doc))
}

// Delete removes the remote copy of id. A missing document is not an error.
func (c *Client[T, PT]) Delete(ctx context.Context, ownerID, id string) error {
	if err := authorize(c.ids, ownerID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return mapError(c.store.Delete(ctx, c.collection, id, ownerID))
}

// FetchAll returns every remote record owned by ownerID. A collection that
// has never been created yields no records and no error. Documents whose
// body cannot be decoded are skipped.
func (c *Client[T, PT]) FetchAll(ctx context.Context, ownerID string) ([]T, error) {
	if err := authorize(c.ids, ownerID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	docs, err := c.store.List(ctx, c.collection, ownerID)
	if errors.Is(err, apperrors.ErrUnknownCollection) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := FromDocument[T, PT](doc)
		if err != nil {
			c.log.Warnw("skipping undecodable document", "id", doc.ID, "error", err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// RecordChange is a Change decoded into the record kind. Record is nil for
// removals.
type RecordChange[T any, PT models.Record[T]] struct {
	Type    ChangeType
	ID      string
	OwnerID string
	Record  PT
}

// Subscription is the cancellation handle of a live subscription.
type Subscription struct {
	once sync.Once
	stop func()
}

// Cancel ends the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.stop)
}

// Subscribe delivers every change to ownerID's records until the returned
// subscription is cancelled.
func (c *Client[T, PT]) Subscribe(ctx context.Context, ownerID string, fn func(RecordChange[T, PT])) (*Subscription, error) {
	if err := authorize(c.ids, ownerID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stop, err := c.store.Watch(ctx, c.collection, ownerID, func(ch Change) {
		rc := RecordChange[T, PT]{Type: ch.Type, ID: ch.Document.ID, OwnerID: ch.Document.OwnerID}
		if ch.Type != ChangeRemoved {
			rec, err := FromDocument[T, PT](ch.Document)
			if err != nil {
				c.log.Warnw("dropping undecodable change", "id", ch.Document.ID, "error", err)
				return
			}
			rc.Record = rec
		}
		fn(rc)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &Subscription{stop: stop}, nil
}

// SeedMarker claims the one-time default category seeding for an owner.
type SeedMarker struct {
	store   Store
	ids     identity.Provider
	timeout time.Duration
	now     func() time.Time
}

// NewSeedMarker returns a SeedMarker over store.
func NewSeedMarker(store Store, ids identity.Provider, timeout time.Duration) *SeedMarker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SeedMarker{store: store, ids: ids, timeout: timeout, now: time.Now}
}

// Claim writes ownerID's marker with create-only semantics. It reports true
// for exactly one caller across all devices.
func (m *SeedMarker) Claim(ctx context.Context, ownerID string) (bool, error) {
	if err := authorize(m.ids, ownerID); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	now := m.now().UTC()
	created, err := m.store.CreateIfAbsent(ctx, SeedCollection, Document{
		ID:        ownerID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      []byte(`{}`),
	})
	if err != nil {
		return false, mapError(err)
	}
	return created, nil
}

// ToDocument converts a record into its remote document.
func ToDocument[T any, PT models.Record[T]](rec PT) (Document, error) {
	data, err := rec.MarshalFields()
	if err != nil {
		return Document{}, fmt.Errorf("encoding %s fields: %w", rec.Kind(), err)
	}
	meta := rec.Meta()
	return Document{
		ID:        meta.ID,
		OwnerID:   meta.OwnerID,
		CreatedAt: clock.ToTime(meta.CreatedAt),
		UpdatedAt: clock.ToTime(meta.UpdatedAt),
		Data:      data,
	}, nil
}

// FromDocument converts a remote document into a record. The result is
// marked synced: it is, by definition, what the remote holds.
func FromDocument[T any, PT models.Record[T]](doc Document) (PT, error) {
	rec := PT(new(T))
	if err := rec.UnmarshalFields(doc.Data); err != nil {
		return nil, fmt.Errorf("decoding %s fields: %w", rec.Kind(), err)
	}
	meta := rec.Meta()
	meta.ID = doc.ID
	meta.OwnerID = doc.OwnerID
	meta.CreatedAt = clock.FromTime(doc.CreatedAt)
	meta.UpdatedAt = clock.FromTime(doc.UpdatedAt)
	meta.Synced = true
	return rec, nil
}

func authorize(ids identity.Provider, ownerID string) error {
	subject, ok := ids.Current()
	if !ok {
		return apperrors.ErrUnauthenticated
	}
	if subject != ownerID {
		return apperrors.ErrUnauthorized
	}
	return nil
}

// mapError keeps backend AppErrors and turns everything else (deadlines,
// dial failures, broken connections) into UNAVAILABLE.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.ErrUnavailable, err)
	}
	if apperrors.Code(err) != "" {
		return err
	}
	return apperrors.Wrap(apperrors.ErrUnavailable, err)
}
