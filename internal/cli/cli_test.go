package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"ledgersync/internal/engine"
	"ledgersync/internal/identity"
	"ledgersync/internal/models"
	"ledgersync/internal/remote/memory"
	"ledgersync/internal/services"
	"ledgersync/internal/testutil"
)

type harness struct {
	opts   RootOptions
	remote *memory.Store
}

// newHarness gives every invocation a fresh engine over one local database
// and one in-memory remote, the way separate ledgerctl runs share a device.
func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	h := &harness{remote: memory.New()}
	h.opts = RootOptions{
		Owner:  testutil.NewOwnerID(),
		Format: "json",
		Open: func(ctx context.Context, owner string) (*Session, error) {
			e := engine.New(engine.Deps{
				DB:            db,
				Remote:        h.remote,
				Timeout:       time.Second,
				ProbeInterval: time.Hour,
			})
			return NewSession(e, nil), nil
		},
		Tokens: identity.NewTokens("test-secret", time.Hour),
	}
	return h
}

func (h *harness) run(args ...string) (string, error) {
	opts := h.opts
	cmd := NewRootCommand(&opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string, data interface{}) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %q", resp.Status)
	}
	if err := json.Unmarshal(resp.Data, data); err != nil {
		t.Fatalf("failed to parse data %s: %v", resp.Data, err)
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(&RootOptions{Format: "text"})
	for _, name := range []string{"expense", "income", "category", "sync", "status", "token"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("expected command %s, got %v", name, err)
		}
	}
	if f := cmd.PersistentFlags().Lookup("format"); f == nil || f.DefValue != "text" {
		t.Errorf("expected --format defaulting to text, got %+v", f)
	}
}

func TestExpenseAddAndList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("expense", "add", "--amount", "4.50", "-c", "Food", "-d", "coffee", "--date", "2026-01-02")
	testutil.AssertNoError(t, err)
	var created models.LedgerEntry
	decode(t, out, &created)
	if created.ID == "" || !created.Synced {
		t.Errorf("expected a synced expense, got %+v", created)
	}
	if created.OwnerID != h.opts.Owner {
		t.Errorf("expected owner %s, got %s", h.opts.Owner, created.OwnerID)
	}

	_, err = h.run("expense", "add", "--amount", "12", "-c", "Transport", "-d", "bus pass", "--date", "2026-01-05")
	testutil.AssertNoError(t, err)

	t.Run("all newest first", func(t *testing.T) {
		out, err := h.run("expense", "list")
		testutil.AssertNoError(t, err)
		var entries []models.LedgerEntry
		decode(t, out, &entries)
		if len(entries) != 2 || entries[0].Date != "2026-01-05" {
			t.Errorf("expected two entries newest first, got %+v", entries)
		}
	})

	t.Run("by category", func(t *testing.T) {
		out, err := h.run("expense", "list", "-c", "Food")
		testutil.AssertNoError(t, err)
		var entries []models.LedgerEntry
		decode(t, out, &entries)
		if len(entries) != 1 || entries[0].ID != created.ID {
			t.Errorf("expected only the coffee, got %+v", entries)
		}
	})

	t.Run("by date range", func(t *testing.T) {
		out, err := h.run("expense", "list", "--from", "2026-01-01", "--to", "2026-01-03")
		testutil.AssertNoError(t, err)
		var entries []models.LedgerEntry
		decode(t, out, &entries)
		if len(entries) != 1 {
			t.Errorf("expected one entry in range, got %d", len(entries))
		}
	})

	t.Run("paged", func(t *testing.T) {
		out, err := h.run("expense", "list", "--page", "2", "--page-size", "1")
		testutil.AssertNoError(t, err)
		var entries []models.LedgerEntry
		decode(t, out, &entries)
		if len(entries) != 1 || entries[0].ID != created.ID {
			t.Errorf("expected the older entry on page 2, got %+v", entries)
		}
	})

	t.Run("half a range", func(t *testing.T) {
		_, err := h.run("expense", "list", "--from", "2026-01-01")
		testutil.AssertAppError(t, err, "INVALID_INPUT")
		if code := ExitCode(err); code != ExitCommandError {
			t.Errorf("expected exit code %d, got %d", ExitCommandError, code)
		}
	})

	docs, err := h.remote.List(context.Background(), string(models.KindExpense), h.opts.Owner)
	testutil.AssertNoError(t, err)
	if len(docs) != 2 {
		t.Errorf("expected both expenses at the remote, got %d", len(docs))
	}
}

func TestEntryInputErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("income", "add", "--amount", "lots", "-c", "Salary", "-d", "pay")
	testutil.AssertAppError(t, err, "INVALID_INPUT")

	_, err = h.run("income", "add", "--amount", "-5", "-c", "Salary", "-d", "pay")
	testutil.AssertAppError(t, err, "INVALID_INPUT")

	_, err = h.run("income", "delete", "inc_missing")
	testutil.AssertAppError(t, err, "NOT_FOUND")

	h.opts.Owner = ""
	_, err = h.run("income", "list")
	testutil.AssertAppError(t, err, "INVALID_INPUT")

	_, err = h.run("status", "--owner", testutil.NewOwnerID(), "--format", "yaml")
	if err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Errorf("expected invalid format error, got %v", err)
	}
}

func TestIncomeDelete(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("income", "add", "--amount", "2500", "-c", "Salary", "-d", "january")
	testutil.AssertNoError(t, err)
	var created models.LedgerEntry
	decode(t, out, &created)

	_, err = h.run("income", "delete", created.ID)
	testutil.AssertNoError(t, err)

	out, err = h.run("income", "list")
	testutil.AssertNoError(t, err)
	var entries []models.LedgerEntry
	decode(t, out, &entries)
	if len(entries) != 0 {
		t.Errorf("expected no income left, got %d", len(entries))
	}
	if _, ok, _ := h.remote.Get(context.Background(), string(models.KindIncome), created.ID); ok {
		t.Error("expected the remote copy deleted")
	}
}

func TestCategoryCommands(t *testing.T) {
	h := newHarness(t)
	catalog := len(models.DefaultExpenseCategories) + len(models.DefaultIncomeCategories)

	out, err := h.run("category", "seed")
	testutil.AssertNoError(t, err)
	var result services.SeedResult
	decode(t, out, &result)
	if result.Seeded != catalog {
		t.Errorf("expected %d seeded, got %+v", catalog, result)
	}

	out, err = h.run("category", "seed")
	testutil.AssertNoError(t, err)
	result = services.SeedResult{}
	decode(t, out, &result)
	if result.Seeded != 0 || result.Pulled != 0 {
		t.Errorf("expected a second seed to do nothing, got %+v", result)
	}

	_, err = h.run("category", "add", "Pets", "--type", "expense")
	testutil.AssertNoError(t, err)
	_, err = h.run("category", "add", "Pets", "--type", "savings")
	if err == nil {
		t.Error("expected an unknown type rejected")
	}

	out, err = h.run("category", "list", "--type", "expense")
	testutil.AssertNoError(t, err)
	var cats []models.Category
	decode(t, out, &cats)
	if len(cats) != len(models.DefaultExpenseCategories)+1 {
		t.Errorf("expected defaults plus Pets, got %d", len(cats))
	}
}

func TestSyncAndStatus(t *testing.T) {
	h := newHarness(t)

	var status statusView
	out, err := h.run("status")
	testutil.AssertNoError(t, err)
	decode(t, out, &status)
	if status.Status != models.SyncStatusNever {
		t.Errorf("expected never before any sync, got %s", status.Status)
	}

	var report syncView
	out, err = h.run("sync")
	testutil.AssertNoError(t, err)
	decode(t, out, &report)
	if report.Status != models.SyncStatusSynced || len(report.Kinds) != len(models.Kinds) {
		t.Errorf("expected a synced report per kind, got %+v", report)
	}

	h.remote.SetAvailable(false)
	_, err = h.run("expense", "add", "--amount", "3", "-c", "Food", "-d", "offline snack")
	testutil.AssertNoError(t, err)

	out, err = h.run("status")
	testutil.AssertNoError(t, err)
	status = statusView{}
	decode(t, out, &status)
	if status.Status != models.SyncStatusOffline {
		t.Errorf("expected offline after an unreachable login, got %s", status.Status)
	}
	if status.Pending[models.KindExpense] != 1 {
		t.Errorf("expected one pending expense, got %v", status.Pending)
	}

	h.remote.SetAvailable(true)
	out, err = h.run("sync")
	testutil.AssertNoError(t, err)
	report = syncView{}
	decode(t, out, &report)
	if report.Status != models.SyncStatusSynced || report.Kinds[0].Pushed != 1 {
		t.Errorf("expected the pending expense pushed, got %+v", report)
	}

	out, err = h.run("status", "--format", "text")
	testutil.AssertNoError(t, err)
	if !strings.Contains(out, "status: synced") {
		t.Errorf("expected text status, got %q", out)
	}
}

func TestTokenCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("token", "--format", "text")
	testutil.AssertNoError(t, err)
	subject, err := h.opts.Tokens.Verify(strings.TrimSpace(out))
	testutil.AssertNoError(t, err)
	if subject != h.opts.Owner {
		t.Errorf("expected subject %s, got %s", h.opts.Owner, subject)
	}
}
