package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format of ledger entries.
const DateLayout = "2006-01-02"

// EntryFields are the user-editable fields of a ledger entry.
type EntryFields struct {
	Description string          `gorm:"not null" json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount" validate:"gt=0"`
	Category    string          `gorm:"not null" json:"category" validate:"required,max=100"`
	Date        string          `gorm:"not null" json:"date" validate:"required,datetime=2006-01-02"`
}

// LedgerEntry is the shape shared by expenses and income.
type LedgerEntry struct {
	SyncMeta
	EntryFields
}

// Entry returns the shared ledger entry so generic code can reach the fields
// of expenses and income alike.
func (e *LedgerEntry) Entry() *LedgerEntry { return e }

// MarshalFields encodes the domain fields for the remote document body.
func (e *LedgerEntry) MarshalFields() ([]byte, error) {
	return json.Marshal(e.EntryFields)
}

// UnmarshalFields replaces the domain fields from a remote document body.
func (e *LedgerEntry) UnmarshalFields(data []byte) error {
	var f EntryFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	e.EntryFields = f
	return nil
}

// Expense is money going out.
type Expense struct {
	LedgerEntry
}

// Kind implements Record.
func (Expense) Kind() Kind { return KindExpense }

// TableName pins the local table name.
func (Expense) TableName() string { return "expenses" }

// Income is money coming in.
type Income struct {
	LedgerEntry
}

// Kind implements Record.
func (Income) Kind() Kind { return KindIncome }

// TableName pins the local table name.
func (Income) TableName() string { return "income" }
