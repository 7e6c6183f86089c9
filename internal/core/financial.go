package core

import "github.com/shopspring/decimal"

// Financials totals income and expenses. Zero amounts count as income.
func Financials(txs []Transaction) FinancialSummary {
	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.IsExpense() {
			expenses = expenses.Add(tx.Amount.Abs())
		} else {
			income = income.Add(tx.Amount)
		}
	}
	return FinancialSummary{
		Income:     income,
		Expenses:   expenses,
		NetBalance: income.Sub(expenses),
	}
}

// IsSurplus reports whether the net balance is zero or positive.
func (f FinancialSummary) IsSurplus() bool {
	return !f.NetBalance.IsNegative()
}
