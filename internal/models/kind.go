package models

// Kind names a synchronized record kind. It doubles as the remote collection
// name.
type Kind string

const (
	KindExpense  Kind = "expense"
	KindIncome   Kind = "income"
	KindCategory Kind = "category"
)

// Kinds lists every record kind in the fixed order a sync run visits them.
var Kinds = []Kind{KindExpense, KindIncome, KindCategory}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindCategory:
		return true
	}
	return false
}

// IDPrefix is the tag put in front of ids minted for this kind.
func (k Kind) IDPrefix() string {
	switch k {
	case KindExpense:
		return "exp"
	case KindIncome:
		return "inc"
	case KindCategory:
		return "cat"
	}
	return string(k)
}
