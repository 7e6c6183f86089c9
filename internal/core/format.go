package core

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatCurrency renders an amount as US dollars with two decimals and comma
// grouping, e.g. "$1,234.56" or "-$4.50".
func FormatCurrency(d decimal.Decimal) string {
	rounded := d.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	n, _ := new(big.Int).SetString(whole, 10)
	return sign + "$" + humanize.BigComma(n) + "." + frac
}

// FormatPercent renders a percentage with one decimal, e.g. "70.0%".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
