package listener

import (
	"context"
	"testing"
	"time"

	"ledgersync/internal/clock"
	"ledgersync/internal/identity"
	"ledgersync/internal/localstore"
	"ledgersync/internal/models"
	"ledgersync/internal/remote"
	"ledgersync/internal/remote/memory"
	"ledgersync/internal/services"
	"ledgersync/internal/testutil"
)

const wait = 2 * time.Second

type fixture struct {
	owner   string
	session *identity.Session
	remote  *memory.Store
	backend services.Backend
	exps    *localstore.Store[models.Expense, *models.Expense]
	cats    *localstore.Store[models.Category, *models.Category]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	f := &fixture{owner: testutil.NewOwnerID(), session: identity.NewSession(), remote: memory.New()}
	f.session.Set(f.owner)
	f.backend = services.Backend{
		DB:       db,
		Remote:   f.remote,
		Identity: f.session,
		Clock:    clock.New(),
		Timeout:  time.Second,
	}
	f.exps = localstore.New[models.Expense](db)
	f.cats = localstore.New[models.Category](db)
	return f
}

func (f *fixture) putRemote(t *testing.T, e *models.Expense) {
	t.Helper()
	doc, err := remote.ToDocument[models.Expense](e)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, f.remote.Put(context.Background(), string(models.KindExpense), doc))
}

func (f *fixture) localExpense(id string) (*models.Expense, bool) {
	e, ok, _ := f.exps.Get(context.Background(), id)
	return e, ok
}

func TestListenerAppliesRemoteChanges(t *testing.T) {
	f := newFixture(t)
	l := New(f.backend)
	ctx := context.Background()

	testutil.AssertNoError(t, l.Start(ctx, f.owner))
	defer l.Stop()

	e := testutil.NewTestExpense(f.owner, 100, false)
	f.putRemote(t, e)
	testutil.Eventually(t, wait, func() bool {
		got, ok := f.localExpense(e.ID)
		return ok && got.Synced && got.UpdatedAt == 100
	}, "created change applied")

	edit := *e
	edit.UpdatedAt = 200
	edit.Description = "edited on another device"
	f.putRemote(t, &edit)
	testutil.Eventually(t, wait, func() bool {
		got, ok := f.localExpense(e.ID)
		return ok && got.Description == "edited on another device"
	}, "updated change applied")

	testutil.AssertNoError(t, f.remote.Delete(ctx, string(models.KindExpense), e.ID, f.owner))
	testutil.Eventually(t, wait, func() bool {
		_, ok := f.localExpense(e.ID)
		return !ok
	}, "removal applied")

	cat := testutil.NewTestCategory(f.owner, models.CategoryTypeIncome, 50, false)
	doc, err := remote.ToDocument[models.Category](cat)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, f.remote.Put(ctx, string(models.KindCategory), doc))
	testutil.Eventually(t, wait, func() bool {
		_, ok, _ := f.cats.Get(ctx, cat.ID)
		return ok
	}, "category change applied")
}

func TestListenerKeepsNewerUnsyncedEdit(t *testing.T) {
	f := newFixture(t)
	l := New(f.backend)
	ctx := context.Background()

	local := testutil.NewTestExpense(f.owner, 300, false)
	local.Description = "offline edit"
	testutil.AssertNoError(t, f.exps.Put(ctx, local))

	testutil.AssertNoError(t, l.Start(ctx, f.owner))
	defer l.Stop()

	stale := *local
	stale.UpdatedAt = 250
	stale.Description = "stale notification"
	f.putRemote(t, &stale)

	// A later change to a different record proves the stale one was handled.
	marker := testutil.NewTestExpense(f.owner, 1, false)
	f.putRemote(t, marker)
	testutil.Eventually(t, wait, func() bool {
		_, ok := f.localExpense(marker.ID)
		return ok
	}, "marker applied")

	got, _ := f.localExpense(local.ID)
	if got.Description != "offline edit" || got.Synced {
		t.Errorf("stale notification clobbered the local edit: %+v", got)
	}
}

func TestListenerRestartAndStop(t *testing.T) {
	f := newFixture(t)
	l := New(f.backend)
	ctx := context.Background()

	testutil.AssertNoError(t, l.Start(ctx, f.owner))
	testutil.AssertNoError(t, l.Start(ctx, f.owner))
	if n := f.remote.Watchers(); n != len(models.Kinds) {
		t.Errorf("expected %d watchers after restart, got %d", len(models.Kinds), n)
	}
	if owner, ok := l.Active(); !ok || owner != f.owner {
		t.Errorf("expected active for %s, got %q (%v)", f.owner, owner, ok)
	}

	l.Stop()
	l.Stop()
	if n := f.remote.Watchers(); n != 0 {
		t.Errorf("expected no watchers after stop, got %d", n)
	}
	if _, ok := l.Active(); ok {
		t.Error("expected inactive listener")
	}

	e := testutil.NewTestExpense(f.owner, 10, false)
	f.putRemote(t, e)
	time.Sleep(50 * time.Millisecond)
	if _, ok := f.localExpense(e.ID); ok {
		t.Error("expected no changes applied after stop")
	}
}

func TestListenerStartFailures(t *testing.T) {
	t.Run("remote unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.remote.SetAvailable(false)
		l := New(f.backend)

		err := l.Start(context.Background(), f.owner)
		testutil.AssertAppError(t, err, "UNAVAILABLE")
		if _, ok := l.Active(); ok {
			t.Error("expected inactive listener")
		}
	})

	t.Run("another owner", func(t *testing.T) {
		f := newFixture(t)
		l := New(f.backend)

		err := l.Start(context.Background(), testutil.NewOwnerID())
		testutil.AssertAppError(t, err, "UNAUTHORIZED")
		if n := f.remote.Watchers(); n != 0 {
			t.Errorf("expected no watchers left behind, got %d", n)
		}
	})
}

func TestApplyDropsForeignOwner(t *testing.T) {
	f := newFixture(t)
	log := New(f.backend).log

	foreign := testutil.NewTestExpense(testutil.NewOwnerID(), 10, true)
	apply(f.exps, log, f.owner, remote.RecordChange[models.Expense, *models.Expense]{
		Type:    remote.ChangeCreated,
		ID:      foreign.ID,
		OwnerID: foreign.OwnerID,
		Record:  foreign,
	})

	if _, ok := f.localExpense(foreign.ID); ok {
		t.Error("expected change for another owner dropped")
	}
}
