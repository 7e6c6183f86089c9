package core

import (
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summarize groups expense transactions by category. Income rows are ignored.
// The result is sorted by amount, largest first; equal amounts keep the order
// in which their categories first appeared. It is never nil.
func Summarize(txs []Transaction) []CategorySummary {
	index := make(map[string]int)
	out := make([]CategorySummary, 0)
	total := decimal.Zero

	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		abs := tx.Amount.Abs()
		total = total.Add(abs)

		i, ok := index[tx.Category]
		if !ok {
			i = len(out)
			index[tx.Category] = i
			out = append(out, CategorySummary{Category: tx.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(abs)
	}

	for i := range out {
		out[i].Percentage = percentOf(out[i].Amount, total)
	}

	slices.SortStableFunc(out, func(a, b CategorySummary) int {
		return b.Amount.Cmp(a.Amount)
	})
	return out
}

// TotalExpense returns the sum of all category amounts.
func TotalExpense(summary []CategorySummary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summary {
		total = total.Add(s.Amount)
	}
	return total
}

func percentOf(part, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return part.Mul(hundred).Div(total).InexactFloat64()
}
