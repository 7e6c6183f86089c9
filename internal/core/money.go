// This file provides amount and date parsing for CSV cells.
//
// Amounts are parsed into arbitrary precision decimals so that values such as
// "1234.505" survive unchanged; nothing is rounded at parse time.

package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order. Slash dates are month-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

// ParseAmount converts a signed decimal string into a decimal.
//
// It accepts an optional leading '+' or '-' and a dot as decimal separator.
// Surrounding whitespace is ignored.
//
// Examples:
//
//	ParseAmount("-4.50")   -> -4.5, nil
//	ParseAmount("2000.00") -> 2000, nil
//	ParseAmount("abc")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// decimal accepts exponents; a statement amount never carries one.
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseDate parses a calendar date using the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
