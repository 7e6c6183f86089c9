package http

import (
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"insights/internal/core"
	"insights/internal/datasets"
	"insights/internal/storage"
)

// Pie geometry used by the analytics template, in SVG user units.
const (
	chartRadius = 100.0
	chartCenter = 125.0
	chartSize   = 2 * chartCenter

	topCategories = 5
)

// analyticsView is the data behind analytics.html.
type analyticsView struct {
	Ref       datasets.Ref
	Analysis  core.Analysis
	Top       []core.CategorySummary
	Active    core.ChartSlice
	HasActive bool
	ChartSize float64
}

func newAnalyticsView(ref datasets.Ref, a core.Analysis) analyticsView {
	active, ok := a.ActiveSlice()
	return analyticsView{
		Ref:       ref,
		Analysis:  a,
		Top:       a.TopCategories(topCategories),
		Active:    active,
		HasActive: ok,
		ChartSize: chartSize,
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"currency": core.FormatCurrency,
		"percent":  core.FormatPercent,
		"slicePath": func(s core.ChartSlice) string {
			return core.SlicePath(s, chartRadius, chartCenter, chartCenter)
		},
		"ago":    humanize.Time,
		"plural": noun,
	}
}

type analysisResponse struct {
	DatasetID    string         `json:"dataset_id"`
	FileName     string         `json:"file_name"`
	LoadedAt     time.Time      `json:"loaded_at"`
	Transactions int            `json:"transactions"`
	Skipped      int            `json:"skipped"`
	Financials   financialsJSON `json:"financials"`
	Categories   []categoryJSON `json:"categories"`
	Slices       []sliceJSON    `json:"slices"`
	RowErrors    []rowErrorJSON `json:"row_errors"`
}

type financialsJSON struct {
	Income     decimal.Decimal `json:"income"`
	Expenses   decimal.Decimal `json:"expenses"`
	NetBalance decimal.Decimal `json:"net_balance"`
	Surplus    bool            `json:"surplus"`
}

type categoryJSON struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

type sliceJSON struct {
	Index      int             `json:"index"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
	StartAngle float64         `json:"start_angle"`
	EndAngle   float64         `json:"end_angle"`
	Color      string          `json:"color"`
	Active     bool            `json:"active"`
	Path       string          `json:"path"`
}

type rowErrorJSON struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

type snapshotJSON struct {
	DatasetID  string          `json:"dataset_id"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
	Rank       int             `json:"rank"`
	TakenAt    time.Time       `json:"taken_at"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func newAnalysisResponse(ref datasets.Ref, a core.Analysis) analysisResponse {
	resp := analysisResponse{
		DatasetID:    ref.ID,
		FileName:     ref.FileName,
		LoadedAt:     ref.LoadedAt,
		Transactions: len(a.Transactions),
		Skipped:      a.Skipped(),
		Financials: financialsJSON{
			Income:     a.Financials.Income,
			Expenses:   a.Financials.Expenses,
			NetBalance: a.Financials.NetBalance,
			Surplus:    a.Financials.IsSurplus(),
		},
		Categories: make([]categoryJSON, 0, len(a.Categories)),
		Slices:     make([]sliceJSON, 0, len(a.Slices)),
		RowErrors:  make([]rowErrorJSON, 0, len(a.RowErrors)),
	}

	for _, c := range a.Categories {
		resp.Categories = append(resp.Categories, categoryJSON{Category: c.Category, Amount: c.Amount, Percentage: c.Percentage})
	}
	for _, s := range a.Slices {
		resp.Slices = append(resp.Slices, sliceJSON{
			Index:      s.Index,
			Category:   s.Category,
			Amount:     s.Amount,
			Percentage: s.Percentage,
			StartAngle: s.StartAngle,
			EndAngle:   s.EndAngle,
			Color:      s.Color,
			Active:     s.Active,
			Path:       core.SlicePath(s, chartRadius, chartCenter, chartCenter),
		})
	}
	for _, e := range a.RowErrors {
		resp.RowErrors = append(resp.RowErrors, rowErrorJSON{Row: e.Row, Column: e.Column, Value: e.Value, Reason: e.Reason})
	}
	return resp
}

func newSnapshotsResponse(snaps []storage.Snapshot) []snapshotJSON {
	out := make([]snapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotJSON{
			DatasetID:  s.DatasetID,
			Category:   s.Category,
			Amount:     s.Amount,
			Percentage: s.Percentage,
			Rank:       s.Rank,
			TakenAt:    s.TakenAt,
		})
	}
	return out
}
