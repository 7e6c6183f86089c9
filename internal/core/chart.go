package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Palette is the ordered list of slice colours. Colours are assigned by slice
// position, not by category, so reordering the summary moves them.
var Palette = []string{
	"#3b82f6", "#2563eb", "#1d4ed8", "#1e40af",
	"#ef4444", "#dc2626", "#b91c1c", "#991b1b",
	"#10b981", "#059669", "#047857", "#065f46",
	"#f59e0b", "#d97706", "#b45309", "#92400e",
	"#8b5cf6", "#7c3aed", "#6d28d9", "#5b21b6",
}

var fullTurn = decimal.NewFromInt(360)

// ChartSlice is one pie wedge. Angles are degrees measured clockwise from
// 12 o'clock; a slice covers [StartAngle, EndAngle).
type ChartSlice struct {
	Index      int
	Category   string
	Amount     decimal.Decimal
	Percentage float64
	StartAngle float64
	EndAngle   float64
	Color      string
	Active     bool
}

// Sweep returns the angular size of the slice.
func (s ChartSlice) Sweep() float64 {
	return s.EndAngle - s.StartAngle
}

// ColorAt returns the palette colour for position i.
func ColorAt(i int) string {
	return Palette[i%len(Palette)]
}

// BuildSlices lays the summary out around the circle in order. The first slice
// is active. When the total is positive the last slice ends at exactly 360.
func BuildSlices(summary []CategorySummary) []ChartSlice {
	out := make([]ChartSlice, 0, len(summary))
	total := TotalExpense(summary)

	running := decimal.Zero
	for i, entry := range summary {
		size := decimal.Zero
		if total.IsPositive() {
			size = entry.Amount.Mul(fullTurn).Div(total)
		}
		end := running.Add(size)
		out = append(out, ChartSlice{
			Index:      i,
			Category:   entry.Category,
			Amount:     entry.Amount,
			Percentage: entry.Percentage,
			StartAngle: running.InexactFloat64(),
			EndAngle:   end.InexactFloat64(),
			Color:      ColorAt(i),
			Active:     i == 0,
		})
		running = end
	}

	if n := len(out); n > 0 && total.IsPositive() {
		out[n-1].EndAngle = 360
	}
	return out
}

// SetActive returns a copy of slices where only index is active. An index
// outside the slice leaves the input untouched and returns it as is.
func SetActive(slices []ChartSlice, index int) []ChartSlice {
	if index < 0 || index >= len(slices) {
		return slices
	}
	out := make([]ChartSlice, len(slices))
	copy(out, slices)
	for i := range out {
		out[i].Active = i == index
	}
	return out
}

// ActiveSlice returns the active slice, if any.
func ActiveSlice(slices []ChartSlice) (ChartSlice, bool) {
	for _, s := range slices {
		if s.Active {
			return s, true
		}
	}
	return ChartSlice{}, false
}

// PolarToCartesian maps an angle in chart degrees (0 at the top, clockwise)
// onto SVG coordinates where y grows downwards.
func PolarToCartesian(cx, cy, radius, angle float64) (x, y float64) {
	rad := (angle - 90) * math.Pi / 180
	return cx + radius*math.Cos(rad), cy + radius*math.Sin(rad)
}

// SlicePath returns the SVG path for a wedge centred on (cx, cy). A slice
// covering the whole circle is drawn as two half arcs since an arc whose
// endpoints coincide renders nothing. An empty slice has an empty path.
func SlicePath(s ChartSlice, radius, cx, cy float64) string {
	sweep := s.Sweep()
	if sweep <= 0 {
		return ""
	}

	var b strings.Builder
	if sweep >= 360-1e-9 {
		tx, ty := PolarToCartesian(cx, cy, radius, 0)
		bx, by := PolarToCartesian(cx, cy, radius, 180)
		b.WriteString("M " + num(tx) + " " + num(ty))
		b.WriteString(" A " + num(radius) + " " + num(radius) + " 0 1 1 " + num(bx) + " " + num(by))
		b.WriteString(" A " + num(radius) + " " + num(radius) + " 0 1 1 " + num(tx) + " " + num(ty))
		b.WriteString(" Z")
		return b.String()
	}

	sx, sy := PolarToCartesian(cx, cy, radius, s.StartAngle)
	ex, ey := PolarToCartesian(cx, cy, radius, s.EndAngle)
	largeArc := "0"
	if sweep > 180 {
		largeArc = "1"
	}
	b.WriteString("M " + num(cx) + " " + num(cy))
	b.WriteString(" L " + num(sx) + " " + num(sy))
	b.WriteString(" A " + num(radius) + " " + num(radius) + " 0 " + largeArc + " 1 " + num(ex) + " " + num(ey))
	b.WriteString(" Z")
	return b.String()
}

func num(f float64) string {
	// Round away float noise such as 1.2246e-14 for sin(180).
	f = math.Round(f*1e4) / 1e4
	if f == 0 {
		f = 0 // normalise -0
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
