// Package core implements the expense analytics engine: CSV parsing into
// transactions, per-category aggregation, pie chart geometry and the
// income/expense summary shown next to it.
//
// Everything in this package is pure. Diagnostics go to an injected Logger and
// nothing is persisted or sent over the network.
package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedLabel is assigned to rows whose category column is blank.
const UncategorizedLabel = "Uncategorized"

type (
	// Transaction is one validated CSV row. Negative amounts are expenses,
	// zero and positive amounts are income.
	Transaction struct {
		Date        time.Time
		Description string
		Category    string
		Amount      decimal.Decimal
	}

	// CategorySummary is the aggregated expense total for one category.
	// Percentage is kept unrounded; rounding is a display concern.
	CategorySummary struct {
		Category   string
		Amount     decimal.Decimal
		Percentage float64
	}

	// FinancialSummary holds the totals displayed above the chart.
	FinancialSummary struct {
		Income     decimal.Decimal
		Expenses   decimal.Decimal
		NetBalance decimal.Decimal
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// IsExpense reports whether the transaction counts towards category spending.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// Validate checks the invariants every parsed transaction satisfies.
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.Category == "" {
		return errors.New("empty category")
	}
	return nil
}
