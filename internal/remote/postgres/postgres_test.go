package postgres

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"ledgersync/internal/database"
	"ledgersync/internal/remote"
	"ledgersync/internal/testutil"
	"ledgersync/internal/uuid"
)

func TestTableFor(t *testing.T) {
	tests := []struct {
		collection string
		want       string
		wantErr    bool
	}{
		{collection: "expense", want: "expense_documents"},
		{collection: "income", want: "income_documents"},
		{collection: "category", want: "category_documents"},
		{collection: remote.SeedCollection, want: "seed_marker_documents"},
		{collection: "users; DROP TABLE x", wantErr: true},
		{collection: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			got, err := tableFor(tt.collection)
			if tt.wantErr {
				testutil.AssertAppError(t, err, "UNKNOWN_COLLECTION")
				return
			}
			testutil.AssertNoError(t, err)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNotificationPayload(t *testing.T) {
	// Shape produced by notify_document_change().
	raw := `{"collection" : "expense", "op" : "update", "id" : "exp_1", "owner_id" : "alice"}`
	var p notification
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Collection != "expense" || p.Op != "update" || p.ID != "exp_1" || p.OwnerID != "alice" {
		t.Errorf("unexpected payload %+v", p)
	}
}

// openTestStore connects to the database named by LEDGERSYNC_TEST_POSTGRES_DSN
// and LEDGERSYNC_TEST_POSTGRES_URL, skipping when they are not set.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("LEDGERSYNC_TEST_POSTGRES_DSN")
	url := os.Getenv("LEDGERSYNC_TEST_POSTGRES_URL")
	if dsn == "" || url == "" {
		t.Skip("LEDGERSYNC_TEST_POSTGRES_DSN/URL not set")
	}
	mgr, err := database.NewManager(dsn, url)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, mgr.RunMigrations())
	t.Cleanup(func() { _ = database.Close(mgr.DB()) })
	return New(mgr.DB(), mgr.DSN())
}

func testDoc(owner string, updated time.Time, data string) remote.Document {
	return remote.Document{
		ID:        uuid.NewPrefixed("exp"),
		OwnerID:   owner,
		CreatedAt: updated,
		UpdatedAt: updated,
		Data:      []byte(data),
	}
}

func TestStoreIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := uuid.New()
	t0 := time.UnixMilli(time.Now().UnixMilli()).UTC()

	d := testDoc(owner, t0, `{"description":"Coffee"}`)
	testutil.AssertNoError(t, s.Put(ctx, "expense", d))
	testutil.AssertNoError(t, s.Put(ctx, "expense", d))

	stale := d
	stale.UpdatedAt = t0.Add(-time.Second)
	stale.Data = []byte(`{"description":"Stale"}`)
	testutil.AssertNoError(t, s.Put(ctx, "expense", stale))

	got, ok, err := s.Get(ctx, "expense", d.ID)
	testutil.AssertNoError(t, err)
	if !ok || !got.UpdatedAt.Equal(t0) {
		t.Fatalf("expected the original document, got %+v (ok=%v)", got, ok)
	}

	other := d
	other.OwnerID = uuid.New()
	other.UpdatedAt = t0.Add(time.Second)
	testutil.AssertAppError(t, s.Put(ctx, "expense", other), "UNAUTHORIZED")

	docs, err := s.List(ctx, "expense", owner)
	testutil.AssertNoError(t, err)
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}

	created, err := s.CreateIfAbsent(ctx, remote.SeedCollection, remote.Document{ID: owner, OwnerID: owner, CreatedAt: t0, UpdatedAt: t0, Data: []byte(`{}`)})
	testutil.AssertNoError(t, err)
	if !created {
		t.Error("first claim should create")
	}
	created, err = s.CreateIfAbsent(ctx, remote.SeedCollection, remote.Document{ID: owner, OwnerID: owner, CreatedAt: t0, UpdatedAt: t0, Data: []byte(`{}`)})
	testutil.AssertNoError(t, err)
	if created {
		t.Error("second claim should not create")
	}

	testutil.AssertNoError(t, s.Delete(ctx, "expense", d.ID, owner))
	testutil.AssertNoError(t, s.Delete(ctx, "expense", d.ID, owner))
}

func TestWatchIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := uuid.New()

	var (
		mu      sync.Mutex
		changes []remote.Change
	)
	stop, err := s.Watch(ctx, "expense", owner, func(ch remote.Change) {
		mu.Lock()
		changes = append(changes, ch)
		mu.Unlock()
	})
	testutil.AssertNoError(t, err)
	defer stop()

	d := testDoc(owner, time.Now().UTC(), `{}`)
	testutil.AssertNoError(t, s.Put(ctx, "expense", d))
	testutil.AssertNoError(t, s.Delete(ctx, "expense", d.ID, owner))
	// Another owner's change must not be delivered.
	testutil.AssertNoError(t, s.Put(ctx, "expense", testDoc(uuid.New(), time.Now().UTC(), `{}`)))

	testutil.Eventually(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		n := len(changes)
		return n > 0 && changes[n-1].Type == remote.ChangeRemoved && changes[n-1].Document.ID == d.ID
	}, "delete notification")

	mu.Lock()
	defer mu.Unlock()
	for _, ch := range changes {
		if ch.Document.OwnerID != owner {
			t.Errorf("received change for owner %s", ch.Document.OwnerID)
		}
	}
}
