package cli

import (
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ledgersync/internal/engine"
	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
	"ledgersync/internal/pagination"
	"ledgersync/internal/services"
)

// entryRecord is a ledger entry kind as the commands see it.
type entryRecord[T any] interface {
	*T
	Entry() *models.LedgerEntry
}

// NewExpenseCommand creates the expense command group.
func NewExpenseCommand(opts *RootOptions) *cobra.Command {
	return newEntryCommand[models.Expense](opts, "expense", "Record and list expenses",
		func(e *engine.Engine) services.EntryServicer[models.Expense] { return e.Expenses })
}

// NewIncomeCommand creates the income command group.
func NewIncomeCommand(opts *RootOptions) *cobra.Command {
	return newEntryCommand[models.Income](opts, "income", "Record and list income",
		func(e *engine.Engine) services.EntryServicer[models.Income] { return e.Income })
}

func newEntryCommand[T any, PT entryRecord[T]](opts *RootOptions, use, short string, service func(*engine.Engine) services.EntryServicer[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	cmd.AddCommand(newEntryAddCommand[T, PT](opts, use, service))
	cmd.AddCommand(newEntryListCommand[T, PT](opts, use, service))
	cmd.AddCommand(newEntryDeleteCommand(opts, use, service))
	return cmd
}

func newEntryAddCommand[T any, PT entryRecord[T]](opts *RootOptions, use string, service func(*engine.Engine) services.EntryServicer[T]) *cobra.Command {
	var (
		amount string
		date   string
		fields models.EntryFields
	)

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Record a new " + use,
		Example: "  ledgerctl " + use + " add --amount 4.50 --category Food --description coffee",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := decimal.NewFromString(amount)
			if err != nil {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be a decimal number")
			}
			fields.Amount = parsed
			if fields.Date, err = resolveDate(date, time.Now()); err != nil {
				return err
			}

			return withSession(cmd.Context(), opts, true, func(s *Session, owner string) error {
				created, err := service(s.Engine).Create(cmd.Context(), owner, fields)
				if err != nil {
					return err
				}
				// Propagation outcome decides the synced flag shown.
				s.Wait()
				if latest, err := service(s.Engine).Get(cmd.Context(), owner, PT(created).Entry().ID); err == nil {
					created = latest
				}
				entry := PT(created).Entry()
				return newPrinter(opts, cmd.OutOrStdout()).print(entry, func(w io.Writer) {
					printEntries(w, []*models.LedgerEntry{entry})
				})
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount, strictly positive (required)")
	cmd.Flags().StringVarP(&fields.Description, "description", "d", "", "what the money was for (required)")
	cmd.Flags().StringVarP(&fields.Category, "category", "c", "", "category name (required)")
	cmd.Flags().StringVar(&date, "date", "today", "calendar date, YYYY-MM-DD or a phrase like yesterday")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newEntryListCommand[T any, PT entryRecord[T]](opts *RootOptions, use string, service func(*engine.Engine) services.EntryServicer[T]) *cobra.Command {
	var (
		category string
		from, to string
		unsynced bool
		page     pagination.PageRequest
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + use + " entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (from == "") != (to == "") {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "--from and --to must be given together")
			}
			if from != "" {
				now := time.Now()
				var err error
				if from, err = resolveDate(from, now); err != nil {
					return err
				}
				if to, err = resolveDate(to, now); err != nil {
					return err
				}
			}

			// Listing reads the local store only; no login needed.
			return withSession(cmd.Context(), opts, false, func(s *Session, owner string) error {
				svc := service(s.Engine)
				var (
					records []T
					err     error
				)
				switch {
				case page.Page > 0:
					var result *pagination.PageResponse[T]
					result, err = svc.ListPage(cmd.Context(), owner, page)
					if result != nil {
						records = result.Data
					}
				case unsynced:
					records, err = svc.ListUnsynced(cmd.Context(), owner)
				case from != "":
					records, err = svc.ListByDateRange(cmd.Context(), owner, from, to)
				case category != "":
					records, err = svc.ListByCategory(cmd.Context(), owner, category)
				default:
					records, err = svc.ListByOwner(cmd.Context(), owner)
				}
				if err != nil {
					return err
				}

				entries := make([]*models.LedgerEntry, 0, len(records))
				for i := range records {
					e := PT(&records[i]).Entry()
					if category != "" && e.Category != category {
						continue
					}
					entries = append(entries, e)
				}
				return newPrinter(opts, cmd.OutOrStdout()).print(entries, func(w io.Writer) {
					printEntries(w, entries)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "only entries in this category")
	cmd.Flags().StringVar(&from, "from", "", "first date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date, inclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&unsynced, "unsynced", false, "only entries not yet acknowledged by the remote")
	cmd.Flags().IntVar(&page.Page, "page", 0, "list one page of all entries (1-based)")
	cmd.Flags().IntVar(&page.PageSize, "page-size", pagination.DefaultPageSize, "entries per page with --page")

	return cmd
}

func newEntryDeleteCommand[T any](opts *RootOptions, use string, service func(*engine.Engine) services.EntryServicer[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a " + use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, true, func(s *Session, owner string) error {
				if err := service(s.Engine).Delete(cmd.Context(), owner, args[0]); err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					writeRow(w, []string{"deleted", args[0]})
				})
			})
		},
	}
}

func printEntries(w io.Writer, entries []*models.LedgerEntry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.ID, e.Date, e.Amount.StringFixed(2), e.Category, e.Description, syncedLabel(e.Synced)})
	}
	table(w, []string{"ID", "DATE", "AMOUNT", "CATEGORY", "DESCRIPTION", "SYNCED"}, rows)
}

func syncedLabel(synced bool) string {
	if synced {
		return "yes"
	}
	return "pending"
}
