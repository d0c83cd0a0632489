package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/models"
	"ledgersync/internal/services"
)

// NewCategoryCommand creates the category command group.
func NewCategoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage expense and income categories",
	}
	cmd.AddCommand(newCategoryListCommand(opts))
	cmd.AddCommand(newCategoryAddCommand(opts))
	cmd.AddCommand(newCategorySeedCommand(opts))
	return cmd
}

func newCategoryListCommand(opts *RootOptions) *cobra.Command {
	var categoryType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, false, func(s *Session, owner string) error {
				var (
					cats []models.Category
					err  error
				)
				if categoryType != "" {
					cats, err = s.Categories.ListByType(cmd.Context(), owner, models.CategoryType(categoryType))
				} else {
					cats, err = s.Categories.ListByOwner(cmd.Context(), owner)
				}
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).print(cats, func(w io.Writer) {
					printCategories(w, cats)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&categoryType, "type", "t", "", "only categories of this type (expense|income)")
	return cmd
}

func newCategoryAddCommand(opts *RootOptions) *cobra.Command {
	var fields models.CategoryFields

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields.Name = args[0]
			return withSession(cmd.Context(), opts, true, func(s *Session, owner string) error {
				cat, err := s.Categories.Create(cmd.Context(), owner, fields)
				if err != nil {
					return err
				}
				s.Wait()
				if latest, err := s.Categories.Get(cmd.Context(), owner, cat.ID); err == nil {
					cat = latest
				}
				return newPrinter(opts, cmd.OutOrStdout()).print(cat, func(w io.Writer) {
					printCategories(w, []models.Category{*cat})
				})
			})
		},
	}

	cmd.Flags().Var(newCategoryTypeValue(&fields.Type), "type", "category type (expense|income)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newCategorySeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Make sure the default categories exist",
		Long: "Logging in seeds the default catalog for an owner without categories, " +
			"or pulls it when another device already seeded it. seed reports which happened.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, true, func(s *Session, owner string) error {
				result := s.Seeded()
				return newPrinter(opts, cmd.OutOrStdout()).print(result, func(w io.Writer) {
					printSeedResult(w, result)
				})
			})
		},
	}
}

func printCategories(w io.Writer, cats []models.Category) {
	rows := make([][]string, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, []string{c.ID, c.Name, string(c.Type), syncedLabel(c.Synced)})
	}
	table(w, []string{"ID", "NAME", "TYPE", "SYNCED"}, rows)
}

func printSeedResult(w io.Writer, r services.SeedResult) {
	switch {
	case r.Seeded > 0:
		writeRow(w, []string{"seeded", strconv.Itoa(r.Seeded), "default categories"})
	case r.Pulled > 0:
		writeRow(w, []string{"pulled", strconv.Itoa(r.Pulled), "categories seeded by another device"})
	default:
		writeRow(w, []string{"categories already present"})
	}
}

// categoryTypeValue is a pflag.Value accepting only known category types.
type categoryTypeValue struct {
	target *models.CategoryType
}

func newCategoryTypeValue(target *models.CategoryType) *categoryTypeValue {
	return &categoryTypeValue{target: target}
}

func (v *categoryTypeValue) String() string {
	if v.target == nil {
		return ""
	}
	return string(*v.target)
}

func (v *categoryTypeValue) Set(s string) error {
	switch t := models.CategoryType(s); t {
	case models.CategoryTypeExpense, models.CategoryTypeIncome:
		*v.target = t
		return nil
	}
	return apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be expense or income")
}

func (v *categoryTypeValue) Type() string { return "type" }
