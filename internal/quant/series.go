package quant

import (
	"fmt"
	"math"
	"time"

	"github.com/irfndi/celebrum-quant/internal/utils"
)

// dayLayout is the calendar-day key used to match observations across series.
const dayLayout = "2006-01-02"

// Observation is a single dated price.
type Observation struct {
	Date  time.Time
	Price float64
}

// PriceSeries is an immutable, date-ordered price history for one instrument.
type PriceSeries struct {
	ticker string
	points []Observation
}

// NewPriceSeries validates and copies the observations.
func NewPriceSeries(ticker string, points []Observation) (PriceSeries, error) {
	if ticker == "" {
		return PriceSeries{}, utils.NewValidationError("ticker is required")
	}
	copied := make([]Observation, len(points))
	for i, p := range points {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
			return PriceSeries{}, utils.NewValidationErrorf("%s: price at %s must be positive and finite, got %v",
				ticker, p.Date.Format(dayLayout), p.Price)
		}
		if i > 0 && !p.Date.After(points[i-1].Date) {
			return PriceSeries{}, utils.NewValidationErrorf("%s: dates must be strictly increasing at index %d", ticker, i)
		}
		copied[i] = p
	}
	return PriceSeries{ticker: ticker, points: copied}, nil
}

// Ticker returns the instrument identifier.
func (s PriceSeries) Ticker() string { return s.ticker }

// Len returns the number of observations.
func (s PriceSeries) Len() int { return len(s.points) }

// Prices returns a copy of the prices in date order.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Price
	}
	return out
}

// Dates returns a copy of the observation dates.
func (s PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Date
	}
	return out
}

// Last returns the most recent price, or 0 for an empty series.
func (s PriceSeries) Last() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.points[len(s.points)-1].Price
}

// AlignedColumn is one macro series re-indexed onto the target dates.
type AlignedColumn struct {
	Ticker string
	Values []float64
}

// AlignedSeriesSet holds the target and macro columns on a common, fully
// populated date axis.
type AlignedSeriesSet struct {
	Dates  []time.Time
	Target []float64
	Macros []AlignedColumn
}

// Len returns the number of aligned rows.
func (a AlignedSeriesSet) Len() int { return len(a.Dates) }

// Align re-indexes each macro onto the target's calendar days with forward
// fill, drops macros that never overlap the target or cover fewer than
// minCoverage rows, then trims every column to the range where all retained
// columns have values. Macro order is preserved.
func Align(target PriceSeries, macros []PriceSeries, minCoverage int) (AlignedSeriesSet, []Diagnostic) {
	n := target.Len()
	dates := target.Dates()
	index := make(map[string]int, n)
	for i, d := range dates {
		index[d.UTC().Format(dayLayout)] = i
	}

	var diagnostics []Diagnostic
	type column struct {
		ticker     string
		values     []float64
		firstValid int
	}
	retained := make([]column, 0, len(macros))

	for _, m := range macros {
		raw := make([]float64, n)
		for i := range raw {
			raw[i] = math.NaN()
		}
		matched := 0
		for _, p := range m.points {
			if i, ok := index[p.Date.UTC().Format(dayLayout)]; ok {
				raw[i] = p.Price
				matched++
			}
		}
		if matched == 0 {
			diagnostics = append(diagnostics, Diagnostic{
				Kind:    KindMissingMacroSeries,
				Stage:   "align",
				Ticker:  m.ticker,
				Message: "no observations overlap the target dates",
			})
			continue
		}

		firstValid := -1
		last := math.NaN()
		for i, v := range raw {
			if !math.IsNaN(v) {
				last = v
				if firstValid < 0 {
					firstValid = i
				}
			}
			raw[i] = last
		}

		if coverage := n - firstValid; coverage < minCoverage {
			diagnostics = append(diagnostics, Diagnostic{
				Kind:    KindMissingMacroSeries,
				Stage:   "align",
				Ticker:  m.ticker,
				Message: fmt.Sprintf("only %d aligned points, need %d", coverage, minCoverage),
			})
			continue
		}
		retained = append(retained, column{ticker: m.ticker, values: raw, firstValid: firstValid})
	}

	start := 0
	for _, c := range retained {
		if c.firstValid > start {
			start = c.firstValid
		}
	}

	set := AlignedSeriesSet{
		Dates:  dates[start:],
		Target: target.Prices()[start:],
		Macros: make([]AlignedColumn, len(retained)),
	}
	for i, c := range retained {
		set.Macros[i] = AlignedColumn{Ticker: c.ticker, Values: c.values[start:]}
	}
	return set, diagnostics
}
