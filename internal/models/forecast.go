package models

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-quant/internal/quant"
	"github.com/irfndi/celebrum-quant/internal/utils"
)

const dateLayout = "2006-01-02"

// PricePoint is one dated close in a request payload.
type PricePoint struct {
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
	Price float64 `json:"price" validate:"gt=0"`
}

// SeriesPayload is a named price history in a request payload.
type SeriesPayload struct {
	Ticker string       `json:"ticker" validate:"required"`
	Points []PricePoint `json:"points" validate:"min=1,dive"`
}

// ForecastRequest carries caller-supplied series for an on-demand forecast.
type ForecastRequest struct {
	Target SeriesPayload   `json:"target"`
	Macros []SeriesPayload `json:"macros" validate:"dive"`
}

var requestValidator = validator.New()

// Validate checks the request shape. Errors are *utils.ValidationError.
func (r *ForecastRequest) Validate() error {
	return utils.FromValidator(requestValidator.Struct(r))
}

// ToInput validates the request and converts it into engine input.
func (r *ForecastRequest) ToInput() (quant.Input, error) {
	if err := r.Validate(); err != nil {
		return quant.Input{}, err
	}

	target, err := r.Target.toSeries()
	if err != nil {
		return quant.Input{}, err
	}
	macros := make([]quant.PriceSeries, 0, len(r.Macros))
	for _, m := range r.Macros {
		s, err := m.toSeries()
		if err != nil {
			return quant.Input{}, err
		}
		macros = append(macros, s)
	}
	return quant.Input{Target: target, Macros: macros}, nil
}

func (p SeriesPayload) toSeries() (quant.PriceSeries, error) {
	points := make([]quant.Observation, len(p.Points))
	for i, pt := range p.Points {
		date, err := time.Parse(dateLayout, pt.Date)
		if err != nil {
			return quant.PriceSeries{}, utils.NewValidationErrorf("%s: invalid date %q", p.Ticker, pt.Date)
		}
		points[i] = quant.Observation{Date: date, Price: pt.Price}
	}
	return quant.NewPriceSeries(p.Ticker, points)
}

// NewSeriesPayload renders a series back into request form.
func NewSeriesPayload(s quant.PriceSeries) SeriesPayload {
	dates := s.Dates()
	prices := s.Prices()
	points := make([]PricePoint, len(prices))
	for i := range prices {
		points[i] = PricePoint{Date: dates[i].Format(dateLayout), Price: prices[i]}
	}
	return SeriesPayload{Ticker: s.Ticker(), Points: points}
}

// ForecastMeta summarizes the drift and volatility of a forecast.
// Drifts and volatility are percentages per step.
type ForecastMeta struct {
	BaseDrift      float64 `json:"baseDrift"`
	MacroDrag      float64 `json:"macroDrag"`
	AdjustedDrift  float64 `json:"adjustedDrift"`
	StepVolatility float64 `json:"stepVolatility"`
	Horizon        int     `json:"horizon"`
}

// Cone is one projected step with its 1σ and 2σ bands.
type Cone struct {
	Step   int     `json:"step"`
	Center float64 `json:"center"`
	Upper1 float64 `json:"upper1"`
	Lower1 float64 `json:"lower1"`
	Upper2 float64 `json:"upper2"`
	Lower2 float64 `json:"lower2"`
}

// SigmaLevel is one row of the sigma probability grid.
type SigmaLevel struct {
	Sigma       float64 `json:"sigma"`
	Price       float64 `json:"price"`
	PctMove     float64 `json:"pctMove"`
	Probability float64 `json:"probability"`
}

// QuantilePrice is the terminal price at a cumulative probability.
type QuantilePrice struct {
	Price   float64 `json:"price"`
	PctMove float64 `json:"pctMove"`
}

// MacroContribution is one macro series' share of the drag.
type MacroContribution struct {
	Ticker      string  `json:"ticker"`
	Correlation float64 `json:"correlation"`
	ZScore      float64 `json:"zScore"`
	Impact      float64 `json:"impact"`
}

// ForecastResult is the published forecast document.
type ForecastResult struct {
	Timestamp      int64                    `json:"ts"`
	CurrentPrice   float64                  `json:"currentPrice"`
	Meta           ForecastMeta             `json:"meta"`
	Kalman         []float64                `json:"kalman"`
	Dates          []string                 `json:"dates"`
	Projections    []float64                `json:"projections"`
	Cones          []Cone                   `json:"cones"`
	SigmaGrid      []SigmaLevel             `json:"sigmaGrid"`
	Quantiles      map[string]QuantilePrice `json:"quantiles"`
	MacroBreakdown []MacroContribution      `json:"macroBreakdown"`
	Diagnostics    []quant.Diagnostic       `json:"diagnostics,omitempty"`
}

// NewForecastResult rounds a full-precision forecast for publication.
func NewForecastResult(f *quant.Forecast) *ForecastResult {
	res := &ForecastResult{
		Timestamp:    f.GeneratedAt.UnixMilli(),
		CurrentPrice: round(f.CurrentPrice, 2),
		Meta: ForecastMeta{
			BaseDrift:      round(f.Drift.Base*100, 6),
			MacroDrag:      round(f.Drift.MacroDrag, 6),
			AdjustedDrift:  round(f.Drift.Adjusted*100, 6),
			StepVolatility: round(f.Drift.StepVolatility*100, 4),
			Horizon:        f.Horizon,
		},
		Kalman:         make([]float64, len(f.Smoothed)),
		Dates:          make([]string, len(f.Dates)),
		Projections:    make([]float64, len(f.Cones)),
		Cones:          make([]Cone, len(f.Cones)),
		SigmaGrid:      make([]SigmaLevel, len(f.SigmaGrid)),
		Quantiles:      make(map[string]QuantilePrice, len(f.Quantiles)),
		MacroBreakdown: make([]MacroContribution, len(f.Macros)),
		Diagnostics:    f.Diagnostics,
	}

	for i, v := range f.Smoothed {
		res.Kalman[i] = round(v, 2)
	}
	for i, d := range f.Dates {
		res.Dates[i] = d.Format(dateLayout)
	}
	for i, c := range f.Cones {
		res.Projections[i] = round(c.Center, 2)
		res.Cones[i] = Cone{
			Step:   c.Step,
			Center: round(c.Center, 2),
			Upper1: round(c.Upper1, 2),
			Lower1: round(c.Lower1, 2),
			Upper2: round(c.Upper2, 2),
			Lower2: round(c.Lower2, 2),
		}
	}
	for i, g := range f.SigmaGrid {
		res.SigmaGrid[i] = SigmaLevel{
			Sigma:       g.Sigma,
			Price:       round(g.Price, 2),
			PctMove:     round(g.PctMove, 2),
			Probability: round(g.Probability, 1),
		}
	}
	for _, q := range f.Quantiles {
		res.Quantiles[q.Name] = QuantilePrice{
			Price:   round(q.Price, 2),
			PctMove: round(q.PctMove, 2),
		}
	}
	for i, m := range f.Macros {
		res.MacroBreakdown[i] = MacroContribution{
			Ticker:      m.Ticker,
			Correlation: round(m.Correlation, 4),
			ZScore:      round(m.ZScore, 4),
			Impact:      round(m.Impact, 4),
		}
	}
	return res
}

// GeneratedAt returns the forecast timestamp.
func (r *ForecastResult) GeneratedAt() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// ErrorRecord is emitted in place of a forecast on fatal failure.
type ErrorRecord struct {
	Error string `json:"error"`
}

// NewErrorRecord wraps err for publication.
func NewErrorRecord(err error) ErrorRecord {
	return ErrorRecord{Error: err.Error()}
}

// round returns v at the given decimal places; non-finite values pass through.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// CycleFailure is published when a scheduled cycle exhausts its retries.
// RetryIn is the delay in milliseconds until the next scheduled cycle.
type CycleFailure struct {
	Timestamp int64  `json:"ts"`
	Message   string `json:"message"`
	RetryIn   int64  `json:"retryIn"`
}
