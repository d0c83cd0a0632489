package models

import "encoding/json"

// CategoryType represents the type of category
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// CategoryFields are the user-editable fields of a category. Type is fixed
// at creation.
type CategoryFields struct {
	Name string       `gorm:"not null" json:"name" validate:"required,max=100"`
	Type CategoryType `gorm:"not null;index" json:"type" validate:"required,oneof=expense income"`
}

// Category is a label ledger entries refer to by name.
type Category struct {
	SyncMeta
	CategoryFields
}

// Kind implements Record.
func (Category) Kind() Kind { return KindCategory }

// TableName pins the local table name.
func (Category) TableName() string { return "categories" }

// MarshalFields encodes the domain fields for the remote document body.
func (c *Category) MarshalFields() ([]byte, error) {
	return json.Marshal(c.CategoryFields)
}

// UnmarshalFields replaces the domain fields from a remote document body.
func (c *Category) UnmarshalFields(data []byte) error {
	var f CategoryFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.CategoryFields = f
	return nil
}

// Default catalog seeded for a user who owns no categories yet.
var (
	DefaultExpenseCategories = []string{
		"Food", "Transport", "Shopping", "Bills", "Entertainment", "Health", "Education", "Other",
	}
	DefaultIncomeCategories = []string{
		"Salary", "Freelance", "Investment", "Business", "Rental", "Gift", "Other",
	}
)
