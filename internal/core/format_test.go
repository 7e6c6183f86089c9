package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFinancialsScenarioA(t *testing.T) {
	got := Financials([]Transaction{tx("Food", "-4.50"), tx("Income", "2000.00")})

	if !got.Income.Equal(decimal.RequireFromString("2000.00")) {
		t.Fatalf("income: got %s", got.Income)
	}
	if !got.Expenses.Equal(decimal.RequireFromString("4.50")) {
		t.Fatalf("expenses: got %s", got.Expenses)
	}
	if !got.NetBalance.Equal(decimal.RequireFromString("1995.50")) {
		t.Fatalf("net: got %s", got.NetBalance)
	}
	if !got.IsSurplus() {
		t.Fatalf("expected surplus")
	}
}

func TestFinancialsNetBalance(t *testing.T) {
	cases := [][]Transaction{
		nil,
		{tx("a", "0")},
		{tx("a", "-10"), tx("b", "-0.01")},
		{tx("a", "100"), tx("b", "-250.75"), tx("c", "0.25")},
	}
	for i, txs := range cases {
		got := Financials(txs)
		if !got.NetBalance.Equal(got.Income.Sub(got.Expenses)) {
			t.Fatalf("case %d: net %s != income %s - expenses %s", i, got.NetBalance, got.Income, got.Expenses)
		}
		if got.Expenses.IsNegative() || got.Income.IsNegative() {
			t.Fatalf("case %d: totals must not be negative", i)
		}
	}
	if Financials(cases[2]).IsSurplus() {
		t.Fatalf("expenses only should be a deficit")
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"4.5", "$4.50"},
		{"-4.50", "-$4.50"},
		{"1995.5", "$1,995.50"},
		{"1234.56", "$1,234.56"},
		{"-1234567.891", "-$1,234,567.89"},
		{"0.07", "$0.07"},
		{"-0.001", "$0.00"},
		{"12345678901234567.89", "$12,345,678,901,234,567.89"},
		{"-98765432109876543210.005", "-$98,765,432,109,876,543,210.01"},
	}
	for _, tc := range cases {
		if got := FormatCurrency(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	cases := map[float64]string{
		70:              "70.0%",
		100:             "100.0%",
		0:               "0.0%",
		33.333333333333: "33.3%",
		12.96:           "13.0%",
	}
	for in, want := range cases {
		if got := FormatPercent(in); got != want {
			t.Fatalf("%v: expected %q, got %q", in, want, got)
		}
	}
}
