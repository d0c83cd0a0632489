package remote_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/identity"
	"ledgersync/internal/models"
	"ledgersync/internal/remote"
	"ledgersync/internal/remote/memory"
	"ledgersync/internal/testutil"
)

// slowStore blocks every call until the context is done.
type slowStore struct{ remote.Store }

func (slowStore) Put(ctx context.Context, _ string, _ remote.Document) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestClientIdentity(t *testing.T) {
	store := memory.New()
	session := identity.NewSession()
	client := remote.NewClient[models.Expense](store, session, time.Second)
	ctx := context.Background()
	exp := testutil.NewTestExpense("alice", 100, false)

	err := client.Write(ctx, exp)
	testutil.AssertAppError(t, err, "UNAUTHENTICATED")

	session.Set("bob")
	err = client.Write(ctx, exp)
	testutil.AssertAppError(t, err, "UNAUTHORIZED")
	_, err = client.FetchAll(ctx, "alice")
	testutil.AssertAppError(t, err, "UNAUTHORIZED")
	_, err = client.Subscribe(ctx, "alice", func(remote.RecordChange[models.Expense, *models.Expense]) {})
	testutil.AssertAppError(t, err, "UNAUTHORIZED")

	if _, ok, _ := store.Get(ctx, "expense", exp.ID); ok {
		t.Error("rejected write must not reach the store")
	}

	session.Set("alice")
	testutil.AssertNoError(t, client.Write(ctx, exp))
}

func TestClientWriteAndFetch(t *testing.T) {
	store := memory.New()
	client := remote.NewClient[models.Expense](store, identity.Static("alice"), time.Second)
	ctx := context.Background()

	t.Run("missing collection is empty", func(t *testing.T) {
		recs, err := client.FetchAll(ctx, "alice")
		testutil.AssertNoError(t, err)
		if len(recs) != 0 {
			t.Errorf("expected no records, got %d", len(recs))
		}
	})

	exp := testutil.NewTestExpense("alice", 1704844800123, false)
	exp.EntryFields = testutil.CoffeeFields()
	testutil.AssertNoError(t, client.Write(ctx, exp))
	testutil.AssertNoError(t, client.Write(ctx, exp))

	recs, err := client.FetchAll(ctx, "alice")
	testutil.AssertNoError(t, err)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	got := recs[0]
	if got.ID != exp.ID || got.OwnerID != "alice" || got.UpdatedAt != exp.UpdatedAt || got.CreatedAt != exp.CreatedAt {
		t.Errorf("metadata mismatch: got %+v, want %+v", got.SyncMeta, exp.SyncMeta)
	}
	if !got.Synced {
		t.Error("fetched records should be marked synced")
	}
	if got.Description != "Coffee" || got.Amount.String() != "4.5" || got.Category != "Food" || got.Date != "2024-01-10" {
		t.Errorf("fields mismatch: %+v", got.EntryFields)
	}

	t.Run("undecodable documents are skipped", func(t *testing.T) {
		testutil.AssertNoError(t, store.Put(ctx, "expense", remote.Document{
			ID: "exp_bad", OwnerID: "alice", UpdatedAt: time.Now(), Data: []byte("not json"),
		}))
		recs, err := client.FetchAll(ctx, "alice")
		testutil.AssertNoError(t, err)
		if len(recs) != 1 {
			t.Errorf("expected the bad document to be skipped, got %d records", len(recs))
		}
	})
}

func TestClientDelete(t *testing.T) {
	store := memory.New()
	client := remote.NewClient[models.Income](store, identity.Static("alice"), time.Second)
	ctx := context.Background()

	inc := testutil.NewTestIncome("alice", 100, false)
	testutil.AssertNoError(t, client.Write(ctx, inc))
	testutil.AssertNoError(t, client.Delete(ctx, "alice", inc.ID))
	testutil.AssertNoError(t, client.Delete(ctx, "alice", inc.ID))

	recs, err := client.FetchAll(ctx, "alice")
	testutil.AssertNoError(t, err)
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestClientUnavailable(t *testing.T) {
	store := memory.New()
	store.SetAvailable(false)
	client := remote.NewClient[models.Category](store, identity.Static("alice"), time.Second)
	ctx := context.Background()

	err := client.Write(ctx, testutil.NewTestCategory("alice", models.CategoryTypeExpense, 1, false))
	testutil.AssertAppError(t, err, "UNAVAILABLE")
	_, err = client.FetchAll(ctx, "alice")
	testutil.AssertAppError(t, err, "UNAVAILABLE")
	err = client.Delete(ctx, "alice", "cat_1")
	testutil.AssertAppError(t, err, "UNAVAILABLE")
}

func TestClientTimeout(t *testing.T) {
	client := remote.NewClient[models.Expense](slowStore{}, identity.Static("alice"), 20*time.Millisecond)

	start := time.Now()
	err := client.Write(context.Background(), testutil.NewTestExpense("alice", 1, false))
	testutil.AssertAppError(t, err, "UNAVAILABLE")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in chain, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("write should give up after the timeout, took %v", elapsed)
	}
}

func TestClientSubscribe(t *testing.T) {
	store := memory.New()
	client := remote.NewClient[models.Expense](store, identity.Static("alice"), time.Second)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []remote.RecordChange[models.Expense, *models.Expense]
	)
	sub, err := client.Subscribe(ctx, "alice", func(ch remote.RecordChange[models.Expense, *models.Expense]) {
		mu.Lock()
		seen = append(seen, ch)
		mu.Unlock()
	})
	testutil.AssertNoError(t, err)

	exp := testutil.NewTestExpense("alice", 100, false)
	testutil.AssertNoError(t, client.Write(ctx, exp))
	testutil.AssertNoError(t, client.Delete(ctx, "alice", exp.ID))

	testutil.Eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, "created and removed changes")

	mu.Lock()
	if seen[0].Type != remote.ChangeCreated || seen[0].Record == nil || seen[0].Record.Description != exp.Description {
		t.Errorf("unexpected created change: %+v", seen[0])
	}
	if seen[1].Type != remote.ChangeRemoved || seen[1].Record != nil || seen[1].ID != exp.ID {
		t.Errorf("unexpected removed change: %+v", seen[1])
	}
	mu.Unlock()

	sub.Cancel()
	sub.Cancel()
	if n := store.Watchers(); n != 0 {
		t.Errorf("expected watcher to be released, got %d", n)
	}
}

func TestSeedMarker(t *testing.T) {
	store := memory.New()
	marker := remote.NewSeedMarker(store, identity.Static("alice"), time.Second)
	ctx := context.Background()

	won, err := marker.Claim(ctx, "alice")
	testutil.AssertNoError(t, err)
	if !won {
		t.Error("first claim should win")
	}
	won, err = marker.Claim(ctx, "alice")
	testutil.AssertNoError(t, err)
	if won {
		t.Error("second claim should lose")
	}

	_, err = marker.Claim(ctx, "bob")
	testutil.AssertAppError(t, err, "UNAUTHORIZED")

	store.SetAvailable(false)
	_, err = remote.NewSeedMarker(store, identity.Static("carol"), time.Second).Claim(ctx, "carol")
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("expected UNAVAILABLE, got %v", err)
	}
}
