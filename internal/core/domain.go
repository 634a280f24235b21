package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Groceries      Category = "Groceries"
	DiningOut      Category = "Dining Out"
	Entertainment  Category = "Entertainment"
	Transportation Category = "Transportation"
	Shopping       Category = "Shopping"
	Housing        Category = "Housing"
	Utilities      Category = "Utilities"
	IncomeCategory Category = "Income"
	Others         Category = "Others"
)

const (
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

type (
	TransactionType string

	Category string

	Period string

	User struct {
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		PasswordHash string `json:"-"`
		FullName     string `json:"fullName"`
	}

	Transaction struct {
		ID          int64           `json:"id"`
		UserID      int64           `json:"userId"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Type        TransactionType `json:"type"`
		Date        time.Time       `json:"date"`
	}

	Budget struct {
		ID       int64           `json:"id"`
		UserID   int64           `json:"userId"`
		Category Category        `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Period   Period          `json:"period"`
	}

	// Session is a server-side login. Token is the opaque value handed to
	// the client.
	Session struct {
		Token        string
		UserID       int64
		Lifetime     time.Duration
		ExpiresAt    time.Time
		LastActivity time.Time
		// Renewed is set by the auth service when this use moved ExpiresAt.
		// It is never stored.
		Renewed bool
	}
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	Groceries,
	DiningOut,
	Entertainment,
	Transportation,
	Shopping,
	Housing,
	Utilities,
	IncomeCategory,
	Others,
}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidPeriod    = errors.New("invalid budget period")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingDate      = errors.New("missing date")
	ErrDateOutOfRange   = errors.New("date out of range")
	ErrMissingUser      = errors.New("missing user")
)

// Dates are kept to four-digit years so they render as RFC 3339.
var (
	MinDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// DateInRange reports whether t lies within [MinDate, MaxDate].
func DateInRange(t time.Time) bool {
	return !t.Before(MinDate) && !t.After(MaxDate)
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (p Period) IsValid() bool {
	return p == Monthly || p == Yearly
}

// Validate checks a fully built transaction. Repositories run it before
// every insert.
func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return ErrMissingUser
	}
	if t.Description == "" {
		return ErrEmptyDescription
	}
	if t.Amount.IsNegative() || t.Amount.GreaterThanOrEqual(MaxAmount) {
		return ErrInvalidAmount
	}
	if !t.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if !DateInRange(t.Date) {
		return ErrDateOutOfRange
	}
	return nil
}

func (b Budget) Validate() error {
	if b.UserID <= 0 {
		return ErrMissingUser
	}
	if b.Amount.IsNegative() || b.Amount.GreaterThanOrEqual(MaxAmount) {
		return ErrInvalidAmount
	}
	if !b.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !b.Period.IsValid() {
		return ErrInvalidPeriod
	}
	return nil
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TransactionFilter narrows a transaction listing. Zero values match all.
type TransactionFilter struct {
	Type     TransactionType
	Category Category
}

func (f TransactionFilter) Matches(t Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return true
}

// Apply returns the matching transactions, preserving order.
func (f TransactionFilter) Apply(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
