package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledgersync/internal/remote"
	"ledgersync/internal/testutil"
)

func doc(id, owner string, updated int64, data string) remote.Document {
	return remote.Document{
		ID:        id,
		OwnerID:   owner,
		CreatedAt: time.UnixMilli(1).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
		Data:      []byte(data),
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	d := doc("exp_1", "alice", 100, `{"description":"Coffee"}`)
	testutil.AssertNoError(t, s.Put(ctx, "expense", d))
	testutil.AssertNoError(t, s.Put(ctx, "expense", d))

	docs, err := s.List(ctx, "expense", "alice")
	testutil.AssertNoError(t, err)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if string(docs[0].Data) != `{"description":"Coffee"}` {
		t.Errorf("unexpected data %s", docs[0].Data)
	}
}

func TestPutNeverRegresses(t *testing.T) {
	s := New()
	ctx := context.Background()

	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_1", "alice", 200, `{"v":2}`)))
	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_1", "alice", 100, `{"v":1}`)))

	got, ok, err := s.Get(ctx, "expense", "exp_1")
	testutil.AssertNoError(t, err)
	if !ok {
		t.Fatal("expected document")
	}
	if got.UpdatedAt.UnixMilli() != 200 || string(got.Data) != `{"v":2}` {
		t.Errorf("older write should not apply, got %+v", got)
	}
}

func TestOwnership(t *testing.T) {
	s := New()
	ctx := context.Background()
	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_1", "alice", 100, `{}`)))

	err := s.Put(ctx, "expense", doc("exp_1", "mallory", 200, `{}`))
	testutil.AssertAppError(t, err, "UNAUTHORIZED")

	err = s.Delete(ctx, "expense", "exp_1", "mallory")
	testutil.AssertAppError(t, err, "UNAUTHORIZED")

	docs, _ := s.List(ctx, "expense", "mallory")
	if len(docs) != 0 {
		t.Errorf("mallory should see no documents, got %d", len(docs))
	}
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	testutil.AssertNoError(t, s.Put(ctx, "income", doc("inc_1", "alice", 100, `{}`)))

	testutil.AssertNoError(t, s.Delete(ctx, "income", "inc_1", "alice"))
	if _, ok, _ := s.Get(ctx, "income", "inc_1"); ok {
		t.Error("expected document to be gone")
	}
	testutil.AssertNoError(t, s.Delete(ctx, "income", "inc_1", "alice"))
	testutil.AssertNoError(t, s.Delete(ctx, "never", "x", "alice"))
}

func TestListUnknownCollection(t *testing.T) {
	_, err := New().List(context.Background(), "category", "alice")
	testutil.AssertAppError(t, err, "UNKNOWN_COLLECTION")
}

func TestCreateIfAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.CreateIfAbsent(ctx, remote.SeedCollection, doc("alice", "alice", 1, `{}`))
			if err != nil {
				t.Errorf("CreateIfAbsent: %v", err)
				return
			}
			if created {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("expected exactly one winner, got %d", won)
	}
}

func TestUnavailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SetAvailable(false)

	if err := s.Put(ctx, "expense", doc("exp_1", "alice", 1, `{}`)); !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline from Ping, got %v", err)
	}

	s.SetAvailable(true)
	testutil.AssertNoError(t, s.Ping(ctx))
}

func TestWatch(t *testing.T) {
	s := New()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		changes []remote.Change
	)
	stop, err := s.Watch(ctx, "expense", "alice", func(ch remote.Change) {
		mu.Lock()
		changes = append(changes, ch)
		mu.Unlock()
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_1", "alice", 100, `{"v":1}`)))
	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_1", "alice", 200, `{"v":2}`)))
	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_2", "bob", 100, `{}`)))
	testutil.AssertNoError(t, s.Put(ctx, "income", doc("inc_1", "alice", 100, `{}`)))
	testutil.AssertNoError(t, s.Delete(ctx, "expense", "exp_1", "alice"))

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(changes)
	}
	testutil.Eventually(t, time.Second, func() bool { return count() == 3 }, "three changes for alice's expenses")

	mu.Lock()
	want := []remote.ChangeType{remote.ChangeCreated, remote.ChangeUpdated, remote.ChangeRemoved}
	for i, ch := range changes {
		if ch.Type != want[i] || ch.Document.ID != "exp_1" {
			t.Errorf("change %d: expected %s exp_1, got %s %s", i, want[i], ch.Type, ch.Document.ID)
		}
	}
	mu.Unlock()

	stop()
	stop()
	if n := s.Watchers(); n != 0 {
		t.Errorf("expected no watchers after stop, got %d", n)
	}

	testutil.AssertNoError(t, s.Put(ctx, "expense", doc("exp_3", "alice", 100, `{}`)))
	time.Sleep(20 * time.Millisecond)
	if n := count(); n != 3 {
		t.Errorf("expected no deliveries after stop, got %d changes", n)
	}
}
