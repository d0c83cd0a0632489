// Package engine is the per-session entry point of the sync engine: it owns
// the entity services and drives the listener, the connectivity monitor and
// the orchestrator for whoever is logged in.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ledgersync/internal/clock"
	"ledgersync/internal/connectivity"
	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/identity"
	"ledgersync/internal/listener"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
	"ledgersync/internal/orchestrator"
	"ledgersync/internal/remote"
	"ledgersync/internal/services"
)

// Deps are the collaborators an Engine is built from.
type Deps struct {
	DB     *gorm.DB
	Remote remote.Store
	Clock  clock.Clock
	// Timeout bounds each remote call.
	Timeout time.Duration
	// ProbeInterval is the connectivity probe period.
	ProbeInterval time.Duration
	// Debounce delays the reconnect sync; zero means the monitor default.
	Debounce time.Duration
}

// Engine serves one logged-in owner at a time.
type Engine struct {
	Expenses   services.ExpenseServicer
	Income     services.IncomeServicer
	Categories services.CategoryServicer
	Journal    services.JournalServicer

	session  *identity.Session
	sync     *orchestrator.Orchestrator
	listener *listener.Listener
	deps     Deps
	log      *zap.SugaredLogger

	mu      sync.Mutex
	owner   string
	monitor *connectivity.Monitor
	seeded  services.SeedResult
}

// New wires an Engine. Nobody is logged in yet.
func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	session := identity.NewSession()
	b := services.Backend{
		DB:       d.DB,
		Remote:   d.Remote,
		Identity: session,
		Clock:    d.Clock,
		Timeout:  d.Timeout,
	}
	journal := services.NewJournalService(d.DB)

	return &Engine{
		Expenses:   services.NewExpenseService(b),
		Income:     services.NewIncomeService(b),
		Categories: services.NewCategoryService(b),
		Journal:    journal,
		session:    session,
		sync:       orchestrator.New(b, journal),
		listener:   listener.New(b),
		deps:       d,
		log:        logger.Named("engine"),
	}
}

// Login starts a session for ownerID: live changes, default categories,
// connectivity monitoring and a first sync. Any current session, including
// one for the same owner, is ended first. Remote failures never fail a login.
func (e *Engine) Login(ctx context.Context, ownerID string) (orchestrator.Report, error) {
	if ownerID == "" {
		return orchestrator.Report{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "owner id is required")
	}

	e.mu.Lock()
	current := e.owner
	e.mu.Unlock()
	if current != "" {
		e.Logout()
	}

	e.session.Set(ownerID)
	e.mu.Lock()
	e.owner = ownerID
	e.mu.Unlock()

	if err := e.listener.Start(ctx, ownerID); err != nil {
		e.log.Warnw("live changes unavailable; relying on sync", "owner_id", ownerID, "error", err)
	}

	seeded, err := e.Categories.SeedDefaults(ctx, ownerID)
	if err != nil {
		return orchestrator.Report{}, err
	}
	e.mu.Lock()
	e.seeded = seeded
	e.mu.Unlock()
	if seeded.Seeded > 0 || seeded.Pulled > 0 {
		e.log.Infow("default categories ready", "owner_id", ownerID, "seeded", seeded.Seeded, "pulled", seeded.Pulled)
	}

	opts := []connectivity.Option{}
	if e.deps.Debounce > 0 {
		opts = append(opts, connectivity.WithDebounce(e.deps.Debounce))
	}
	monitor := connectivity.NewMonitor(e.deps.Remote, e.deps.ProbeInterval, func(ctx context.Context) {
		e.reconnected(ctx, ownerID)
	}, opts...)
	e.mu.Lock()
	e.monitor = monitor
	e.mu.Unlock()
	monitor.Start(context.Background())

	return e.sync.Run(ctx, ownerID)
}

// reconnected restores the live subscription if it was lost and reconciles.
// It does nothing once ownerID's session has ended.
func (e *Engine) reconnected(ctx context.Context, ownerID string) {
	if owner, _ := e.Owner(); owner != ownerID {
		return
	}
	if owner, ok := e.listener.Active(); !ok || owner != ownerID {
		if err := e.listener.Start(ctx, ownerID); err != nil {
			e.log.Warnw("failed to restore live changes", "owner_id", ownerID, "error", err)
		}
	}
	if _, err := e.sync.Run(ctx, ownerID); err != nil {
		e.log.Errorw("reconnect sync failed", "owner_id", ownerID, "error", err)
	}
}

// Logout ends the session: it cancels live changes and monitoring, then
// waits for in-flight propagation before dropping the identity.
func (e *Engine) Logout() {
	e.mu.Lock()
	monitor := e.monitor
	owner := e.owner
	e.monitor = nil
	e.owner = ""
	e.seeded = services.SeedResult{}
	e.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	e.listener.Stop()
	e.Wait()
	e.session.Clear()

	if owner != "" {
		e.log.Infow("logged out", "owner_id", owner)
	}
}

// Owner returns the logged-in owner.
func (e *Engine) Owner() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner, e.owner != ""
}

// Seeded reports what the current session's login did to the default
// categories.
func (e *Engine) Seeded() services.SeedResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seeded
}

func (e *Engine) requireOwner() (string, error) {
	owner, ok := e.Owner()
	if !ok {
		return "", apperrors.ErrUnauthenticated
	}
	return owner, nil
}

// Sync runs a reconciliation pass for the logged-in owner.
func (e *Engine) Sync(ctx context.Context) (orchestrator.Report, error) {
	owner, err := e.requireOwner()
	if err != nil {
		return orchestrator.Report{}, err
	}
	return e.sync.Run(ctx, owner)
}

// Status returns the synced/offline indicator of the logged-in owner.
func (e *Engine) Status(ctx context.Context) (models.SyncStatus, error) {
	owner, err := e.requireOwner()
	if err != nil {
		return "", err
	}
	return e.sync.Status(ctx, owner)
}

// SetOnline forwards a platform connectivity signal.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	monitor := e.monitor
	e.mu.Unlock()
	if monitor != nil {
		monitor.SetOnline(online)
	}
}

// Wait blocks until every in-flight propagation has finished.
func (e *Engine) Wait() {
	e.Expenses.Wait()
	e.Income.Wait()
	e.Categories.Wait()
}
