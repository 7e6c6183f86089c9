package core

// Analysis bundles everything the analytics view renders for one dataset. It
// is plain data; callers derive new views with WithActive rather than mutating
// it in place.
type Analysis struct {
	Transactions []Transaction
	RowErrors    []RowError
	Categories   []CategorySummary
	Slices       []ChartSlice
	Financials   FinancialSummary
}

// NewAnalysis derives the category summary, chart slices and totals from a
// committed transaction set.
func NewAnalysis(txs []Transaction, rowErrors []RowError) Analysis {
	categories := Summarize(txs)
	return Analysis{
		Transactions: txs,
		RowErrors:    rowErrors,
		Categories:   categories,
		Slices:       BuildSlices(categories),
		Financials:   Financials(txs),
	}
}

// Analyze parses raw and derives the full analysis. A *FileError aborts.
func Analyze(raw string, logger Logger) (Analysis, error) {
	res, err := NewParser(logger).Parse(raw)
	if err != nil {
		return Analysis{}, err
	}
	return NewAnalysis(res.Transactions, res.RowErrors), nil
}

// HasData reports whether at least one transaction was loaded.
func (a Analysis) HasData() bool {
	return len(a.Transactions) > 0
}

// HasExpenses reports whether there is anything to chart. Income-only data
// loads fine but has no slices.
func (a Analysis) HasExpenses() bool {
	return len(a.Slices) > 0
}

// TopCategories returns at most n categories, largest first.
func (a Analysis) TopCategories(n int) []CategorySummary {
	if n < 0 {
		n = 0
	}
	if n > len(a.Categories) {
		n = len(a.Categories)
	}
	return a.Categories[:n]
}

// ActiveSlice returns the currently highlighted slice.
func (a Analysis) ActiveSlice() (ChartSlice, bool) {
	return ActiveSlice(a.Slices)
}

// WithActive returns a copy with slice i highlighted. Out of range indices
// leave the selection unchanged.
func (a Analysis) WithActive(i int) Analysis {
	a.Slices = SetActive(a.Slices, i)
	return a
}

// Skipped returns the number of rows dropped while parsing.
func (a Analysis) Skipped() int {
	return len(a.RowErrors)
}
