// Package listener applies remote changes to the local store as they arrive,
// between orchestrated syncs.
package listener

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"ledgersync/internal/localstore"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
	"ledgersync/internal/remote"
	"ledgersync/internal/services"
)

// Listener holds one live subscription per record kind for the session
// owner.
type Listener struct {
	backend services.Backend
	log     *zap.SugaredLogger

	mu    sync.Mutex
	owner string
	subs  []*remote.Subscription
}

// New returns a stopped Listener.
func New(b services.Backend) *Listener {
	return &Listener{backend: b, log: logger.Named("listener")}
}

// Start subscribes to ownerID's changes for every kind, replacing any
// previous subscription. If one kind cannot subscribe, none stay registered.
func (l *Listener) Start(ctx context.Context, ownerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()

	starts := []func(context.Context, string) (*remote.Subscription, error){
		subscriber[models.Expense](l),
		subscriber[models.Income](l),
		subscriber[models.Category](l),
	}
	subs := make([]*remote.Subscription, 0, len(starts))
	for _, start := range starts {
		sub, err := start(ctx, ownerID)
		if err != nil {
			for _, s := range subs {
				s.Cancel()
			}
			return err
		}
		subs = append(subs, sub)
	}

	l.owner = ownerID
	l.subs = subs
	l.log.Infow("listening for remote changes", "owner_id", ownerID)
	return nil
}

// Stop cancels every subscription. Safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Listener) stopLocked() {
	for _, s := range l.subs {
		s.Cancel()
	}
	if l.subs != nil {
		l.log.Infow("stopped listening", "owner_id", l.owner)
	}
	l.subs = nil
	l.owner = ""
}

// Active reports whether subscriptions are registered, and for whom.
func (l *Listener) Active() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner, l.subs != nil
}

func subscriber[T any, PT models.Record[T]](l *Listener) func(context.Context, string) (*remote.Subscription, error) {
	store := localstore.New[T, PT](l.backend.DB)
	client := remote.NewClient[T, PT](l.backend.Remote, l.backend.Identity, l.backend.Timeout)
	log := l.log.With("kind", string(store.Kind()))

	return func(ctx context.Context, ownerID string) (*remote.Subscription, error) {
		return client.Subscribe(ctx, ownerID, func(ch remote.RecordChange[T, PT]) {
			apply(store, log, ownerID, ch)
		})
	}
}

// apply merges one change. Removals delete unconditionally; writes go
// through the same Last-Write-Wins rule as a pull.
func apply[T any, PT models.Record[T]](store *localstore.Store[T, PT], log *zap.SugaredLogger, ownerID string, ch remote.RecordChange[T, PT]) {
	ctx := context.Background()
	if ch.OwnerID != ownerID {
		log.Warnw("dropping change for another owner", "id", ch.ID, "owner_id", ch.OwnerID)
		return
	}

	if ch.Type == remote.ChangeRemoved {
		if err := store.Delete(ctx, ch.ID); err != nil {
			log.Errorw("failed to apply remote delete", "id", ch.ID, "error", err)
		}
		return
	}

	outcome, err := store.MergeRemote(ctx, ch.Record)
	if err != nil {
		log.Errorw("failed to apply remote change", "id", ch.ID, "error", err)
		return
	}
	if outcome == localstore.MergeKeptLocal {
		log.Debugw("keeping newer local copy", "id", ch.ID)
	}
}
