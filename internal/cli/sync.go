package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ledgersync/internal/models"
	"ledgersync/internal/orchestrator"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local ledger with the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, false, func(s *Session, owner string) error {
				// Login runs the first pass.
				report, err := s.Login(cmd.Context(), owner)
				if err != nil {
					return err
				}
				view := newSyncView(report)
				return newPrinter(opts, cmd.OutOrStdout()).print(view, func(w io.Writer) {
					printSyncView(w, view)
				})
			})
		},
	}
}

// syncView is a Report with errors flattened for output.
type syncView struct {
	OwnerID string            `json:"owner_id"`
	Status  models.SyncStatus `json:"status"`
	Skipped bool              `json:"skipped,omitempty"`
	Kinds   []kindView        `json:"kinds"`
}

type kindView struct {
	orchestrator.KindReport
	Error string `json:"error,omitempty"`
}

func newSyncView(r orchestrator.Report) syncView {
	v := syncView{OwnerID: r.OwnerID, Status: r.Status(), Skipped: r.Skipped}
	for _, k := range r.Kinds {
		kv := kindView{KindReport: k}
		if k.Err != nil {
			kv.Error = k.Err.Error()
		}
		v.Kinds = append(v.Kinds, kv)
	}
	return v
}

func printSyncView(w io.Writer, v syncView) {
	if v.Skipped {
		fmt.Fprintln(w, "another sync is already running")
		return
	}
	rows := make([][]string, 0, len(v.Kinds))
	for _, k := range v.Kinds {
		note := k.Error
		if note == "" && k.RemoteUnavailable {
			note = "remote unavailable"
		}
		rows = append(rows, []string{
			string(k.Kind),
			strconv.Itoa(k.Pushed),
			strconv.Itoa(k.PushFailed),
			strconv.Itoa(k.Pulled),
			strconv.Itoa(k.KeptLocal),
			note,
		})
	}
	table(w, []string{"KIND", "PUSHED", "FAILED", "PULLED", "KEPT", "NOTE"}, rows)
	fmt.Fprintf(w, "status: %s\n", v.Status)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last sync result and pending local changes",
		Long:  "status reads only the local database; it never contacts the remote store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, false, func(s *Session, owner string) error {
				ctx := cmd.Context()
				last, err := s.Journal.Last(ctx, owner)
				if err != nil {
					return err
				}

				view := statusView{OwnerID: owner, Status: models.SyncStatusNever, Pending: map[models.Kind]int{}}
				if last != nil {
					view.Status = last.Status
					view.LastRun = last
				}
				exps, err := s.Expenses.ListUnsynced(ctx, owner)
				if err != nil {
					return err
				}
				incs, err := s.Income.ListUnsynced(ctx, owner)
				if err != nil {
					return err
				}
				cats, err := s.Categories.ListUnsynced(ctx, owner)
				if err != nil {
					return err
				}
				view.Pending[models.KindExpense] = len(exps)
				view.Pending[models.KindIncome] = len(incs)
				view.Pending[models.KindCategory] = len(cats)

				return newPrinter(opts, cmd.OutOrStdout()).print(view, func(w io.Writer) {
					printStatusView(w, view)
				})
			})
		},
	}
}

type statusView struct {
	OwnerID string              `json:"owner_id"`
	Status  models.SyncStatus   `json:"status"`
	LastRun *models.SyncRun     `json:"last_run,omitempty"`
	Pending map[models.Kind]int `json:"pending"`
}

func printStatusView(w io.Writer, v statusView) {
	fmt.Fprintf(w, "status: %s\n", v.Status)
	if v.LastRun != nil {
		finished := time.UnixMilli(v.LastRun.FinishedAt).Format(time.RFC3339)
		fmt.Fprintf(w, "last sync: %s (pushed %d, failed %d, pulled %d)\n",
			finished, v.LastRun.Pushed, v.LastRun.PushFailed, v.LastRun.Pulled)
		if v.LastRun.Errors != "" {
			fmt.Fprintf(w, "errors: %s\n", v.LastRun.Errors)
		}
	}
	rows := make([][]string, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		rows = append(rows, []string{string(k), strconv.Itoa(v.Pending[k])})
	}
	table(w, []string{"KIND", "PENDING"}, rows)
}
