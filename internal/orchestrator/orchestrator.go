// Package orchestrator reconciles the local store with the remote for one
// owner. Each kind is pushed, then pulled, in a fixed order; a failure in one
// kind never rolls back or stops the others.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ledgersync/internal/clock"
	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/localstore"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
	"ledgersync/internal/remote"
	"ledgersync/internal/services"
)

// KindReport is the outcome of one kind's push and pull.
type KindReport struct {
	Kind       models.Kind `json:"kind"`
	Pushed     int         `json:"pushed"`
	PushFailed int         `json:"push_failed"`
	Pulled     int         `json:"pulled"`
	KeptLocal  int         `json:"kept_local"`
	// RemoteUnavailable is set when the pull saw no remote data this round.
	RemoteUnavailable bool  `json:"remote_unavailable"`
	Err               error `json:"-"`
}

// Report is the outcome of one Run.
type Report struct {
	OwnerID    string       `json:"owner_id"`
	Skipped    bool         `json:"skipped"`
	StartedAt  int64        `json:"started_at"`
	FinishedAt int64        `json:"finished_at"`
	Kinds      []KindReport `json:"kinds"`
}

// Status folds the per-kind outcomes into the user-visible indicator.
func (r Report) Status() models.SyncStatus {
	if len(r.Kinds) == 0 {
		return models.SyncStatusNever
	}
	offline, clean := 0, 0
	for _, k := range r.Kinds {
		switch {
		case k.RemoteUnavailable && k.Pushed == 0:
			offline++
		case k.Err == nil && k.PushFailed == 0 && !k.RemoteUnavailable:
			clean++
		}
	}
	switch {
	case clean == len(r.Kinds):
		return models.SyncStatusSynced
	case offline == len(r.Kinds):
		return models.SyncStatusOffline
	}
	return models.SyncStatusPartial
}

// Totals sums the per-kind counters.
func (r Report) Totals() (pushed, pushFailed, pulled int) {
	for _, k := range r.Kinds {
		pushed += k.Pushed
		pushFailed += k.PushFailed
		pulled += k.Pulled
	}
	return
}

func (r Report) errorText() string {
	var errs []error
	for _, k := range r.Kinds {
		if k.Err != nil {
			errs = append(errs, errors.New(string(k.Kind)+": "+k.Err.Error()))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err.Error()
	}
	return ""
}

// kindSyncer reconciles one record kind.
type kindSyncer interface {
	sync(ctx context.Context, ownerID string) KindReport
}

// Orchestrator runs reconciliation passes. At most one pass runs at a time
// per Orchestrator.
type Orchestrator struct {
	kinds   []kindSyncer
	journal services.JournalServicer
	running atomic.Bool
	log     *zap.SugaredLogger
}

// New returns an Orchestrator over the backend's local and remote stores.
// journal may be nil.
func New(b services.Backend, journal services.JournalServicer) *Orchestrator {
	return &Orchestrator{
		kinds: []kindSyncer{
			newSyncer[models.Expense](b),
			newSyncer[models.Income](b),
			newSyncer[models.Category](b),
		},
		journal: journal,
		log:     logger.Named("orchestrator"),
	}
}

// Running reports whether a pass is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run reconciles every kind for ownerID. If another pass is already running
// it returns at once with Report.Skipped set.
func (o *Orchestrator) Run(ctx context.Context, ownerID string) (Report, error) {
	if ownerID == "" {
		return Report{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "owner id is required")
	}
	if !o.running.CompareAndSwap(false, true) {
		o.log.Debugw("sync already running; skipping", "owner_id", ownerID)
		return Report{OwnerID: ownerID, Skipped: true}, nil
	}
	defer o.running.Store(false)

	report := Report{OwnerID: ownerID, StartedAt: clock.FromTime(time.Now())}
	for _, k := range o.kinds {
		report.Kinds = append(report.Kinds, k.sync(ctx, ownerID))
	}
	report.FinishedAt = clock.FromTime(time.Now())

	pushed, failed, pulled := report.Totals()
	o.log.Infow("sync finished",
		"owner_id", ownerID,
		"status", report.Status(),
		"pushed", pushed,
		"push_failed", failed,
		"pulled", pulled,
		"duration_ms", report.FinishedAt-report.StartedAt,
	)

	if o.journal != nil {
		o.journal.Record(&models.SyncRun{
			OwnerID:    ownerID,
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			Status:     report.Status(),
			Pushed:     pushed,
			PushFailed: failed,
			Pulled:     pulled,
			Errors:     report.errorText(),
		})
	}
	return report, nil
}

// Status returns the indicator of ownerID's most recent finished pass.
func (o *Orchestrator) Status(ctx context.Context, ownerID string) (models.SyncStatus, error) {
	if o.journal == nil {
		return models.SyncStatusNever, nil
	}
	last, err := o.journal.Last(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if last == nil {
		return models.SyncStatusNever, nil
	}
	return last.Status, nil
}

type syncer[T any, PT models.Record[T]] struct {
	store  *localstore.Store[T, PT]
	remote *remote.Client[T, PT]
	log    *zap.SugaredLogger
}

func newSyncer[T any, PT models.Record[T]](b services.Backend) *syncer[T, PT] {
	store := localstore.New[T, PT](b.DB)
	return &syncer[T, PT]{
		store:  store,
		remote: remote.NewClient[T, PT](b.Remote, b.Identity, b.Timeout),
		log:    logger.Named("orchestrator").With("kind", string(store.Kind())),
	}
}

func (s *syncer[T, PT]) sync(ctx context.Context, ownerID string) KindReport {
	report := KindReport{Kind: s.store.Kind()}
	if err := s.push(ctx, ownerID, &report); err != nil {
		report.Err = err
		return report
	}
	if err := s.pull(ctx, ownerID, &report); err != nil {
		report.Err = err
	}
	return report
}

// push writes every unsynced record. A failed write leaves the record for
// the next pass; only local storage errors stop the loop.
func (s *syncer[T, PT]) push(ctx context.Context, ownerID string, report *KindReport) error {
	pending, err := s.store.QueryUnsynced(ctx, ownerID)
	if err != nil {
		return err
	}
	for i := range pending {
		rec := PT(&pending[i])
		meta := rec.Meta()
		if err := s.remote.Write(ctx, rec); err != nil {
			report.PushFailed++
			s.log.Warnw("push failed", "id", meta.ID, "owner_id", ownerID, "error", err)
			continue
		}
		if _, err := s.store.MarkSynced(ctx, meta.ID, meta.UpdatedAt); err != nil {
			return err
		}
		report.Pushed++
	}
	return nil
}

// pull merges every remote record with Last-Write-Wins. UNAVAILABLE means no
// remote data was observed this round.
func (s *syncer[T, PT]) pull(ctx context.Context, ownerID string, report *KindReport) error {
	recs, err := s.remote.FetchAll(ctx, ownerID)
	if errors.Is(err, apperrors.ErrUnavailable) {
		report.RemoteUnavailable = true
		return nil
	}
	if err != nil {
		return err
	}

	for i := range recs {
		outcome, err := s.store.MergeRemote(ctx, PT(&recs[i]))
		if err != nil {
			return err
		}
		switch outcome {
		case localstore.MergeApplied:
			report.Pulled++
		case localstore.MergeKeptLocal:
			report.KeptLocal++
		}
	}
	return nil
}
