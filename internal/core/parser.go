package core

import (
	"encoding/csv"
	"io"
	"strings"
)

// Column names required in the header, in the order they are reported.
const (
	ColumnDate        = "date"
	ColumnDescription = "description"
	ColumnCategory    = "category"
	ColumnAmount      = "amount"
)

var requiredColumns = []string{ColumnDate, ColumnDescription, ColumnCategory, ColumnAmount}

// ParseResult is a successful parse: the kept transactions in input order and
// the rows that were dropped on the way.
type ParseResult struct {
	Transactions []Transaction
	RowErrors    []RowError
}

// Skipped returns the number of rows that were dropped.
func (r ParseResult) Skipped() int {
	return len(r.RowErrors)
}

// Parser turns CSV text into transactions.
type Parser struct {
	logger Logger
}

// NewParser returns a parser reporting diagnostics to logger. A nil logger
// discards them.
func NewParser(logger Logger) *Parser {
	return &Parser{logger: orNop(logger)}
}

// Parse parses raw with a parser that discards diagnostics.
func Parse(raw string) (ParseResult, error) {
	return NewParser(nil).Parse(raw)
}

// Parse reads the whole of raw. A non-nil error is always a *FileError and
// comes with an empty result; row level problems are reported in the result.
func (p *Parser) Parse(raw string) (ParseResult, error) {
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return p.reject(&FileError{Kind: FileErrorEmpty})
	}
	if err != nil {
		return p.reject(&FileError{Kind: FileErrorMalformed, Err: err})
	}

	cols, missing := mapHeader(header)
	if len(missing) > 0 {
		return p.reject(&FileError{Kind: FileErrorMissingColumns, Missing: missing})
	}

	var (
		result ParseResult
		rows   int
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.reject(&FileError{Kind: FileErrorMalformed, Err: err})
		}
		line, _ := r.FieldPos(0)
		if isBlank(record) {
			continue
		}
		rows++

		tx, rowErr := buildTransaction(record, cols, line)
		if rowErr != nil {
			p.logger.Debug("Skipping CSV row", "row", rowErr.Row, "column", rowErr.Column, "reason", rowErr.Reason)
			result.RowErrors = append(result.RowErrors, *rowErr)
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}

	if rows == 0 {
		return p.reject(&FileError{Kind: FileErrorNoRows})
	}
	if len(result.Transactions) == 0 {
		return p.reject(&FileError{Kind: FileErrorNoValidRows, RowErrors: result.RowErrors})
	}
	if len(result.RowErrors) > 0 {
		p.logger.Warn("CSV rows skipped", "skipped", len(result.RowErrors), "rows", rows)
	}
	p.logger.Info("CSV parsed", "transactions", len(result.Transactions), "skipped", len(result.RowErrors))
	return result, nil
}

func (p *Parser) reject(fe *FileError) (ParseResult, error) {
	p.logger.Error("CSV file rejected", "error", fe.Error(), "kind", fe.Kind.String())
	return ParseResult{}, fe
}

// mapHeader resolves the index of each required column. Names are compared
// case-insensitively; the first occurrence of a duplicated name wins.
func mapHeader(header []string) (map[string]int, []string) {
	cols := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := cols[key]; !seen {
			cols[key] = i
		}
	}

	out := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, name := range requiredColumns {
		idx, ok := cols[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = idx
	}
	return out, missing
}

// buildTransaction validates one record. Cells beyond the end of a short
// record read as blank.
func buildTransaction(record []string, cols map[string]int, line int) (Transaction, *RowError) {
	cell := func(name string) string {
		if idx := cols[name]; idx < len(record) {
			return record[idx]
		}
		return ""
	}

	rawAmount := cell(ColumnAmount)
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return Transaction{}, &RowError{Row: line, Column: ColumnAmount, Value: rawAmount, Reason: "not a signed decimal"}
	}

	rawDate := cell(ColumnDate)
	date, err := ParseDate(rawDate)
	if err != nil {
		return Transaction{}, &RowError{Row: line, Column: ColumnDate, Value: rawDate, Reason: "not a calendar date"}
	}

	category := strings.TrimSpace(cell(ColumnCategory))
	if category == "" {
		category = UncategorizedLabel
	}

	return Transaction{
		Date:        date,
		Description: strings.TrimSpace(cell(ColumnDescription)),
		Category:    category,
		Amount:      amount,
	}, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
