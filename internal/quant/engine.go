package quant

import (
	"fmt"
	"time"
)

// Input is the aligned-by-caller data handed to the engine.
type Input struct {
	Target PriceSeries
	Macros []PriceSeries
}

// Forecast is the full-precision result of one pipeline run.
type Forecast struct {
	GeneratedAt  time.Time
	Target       string
	CurrentPrice float64
	Dates        []time.Time
	Smoothed     []float64
	Drift        Drift
	Horizon      int
	Terminal     Terminal
	Cones        []ConfidenceCone
	SigmaGrid    []SigmaGridEntry
	Quantiles    []Quantile
	Macros       []MacroImpact
	Diagnostics  []Diagnostic
}

// Projections returns the cone centers in step order.
func (f *Forecast) Projections() []float64 {
	out := make([]float64, len(f.Cones))
	for i, c := range f.Cones {
		out[i] = c.Center
	}
	return out
}

// Engine runs the forecasting pipeline with a fixed parameter set.
type Engine struct {
	params Params
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates params and returns a ready engine.
func NewEngine(params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{params: params, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Params returns the engine's constants.
func (e *Engine) Params() Params { return e.params }

// Run executes smoothing, correlation, macro impact, drift, projection, sigma
// grid and quantile stages in order. Fatal conditions return a *Error and no
// forecast; absorbed degradations are listed in Forecast.Diagnostics.
func (e *Engine) Run(in Input) (forecast *Forecast, err error) {
	defer func() {
		if r := recover(); r != nil {
			forecast = nil
			err = &Error{Kind: KindNumerical, Stage: "engine", Message: fmt.Sprint(r)}
		}
	}()

	p := e.params
	if in.Target.Len() < p.MinObservations {
		return nil, insufficientData("input", "target %q has %d observations, need %d",
			in.Target.Ticker(), in.Target.Len(), p.MinObservations)
	}

	prices := in.Target.Prices()
	current := prices[len(prices)-1]

	smoothed, err := Smooth(prices, p.ObservationNoise, p.ProcessNoise)
	if err != nil {
		return nil, err
	}

	aligned, diagnostics := Align(in.Target, in.Macros, p.ZScoreWindow)
	report, err := AnalyzeCorrelations(aligned, p.ZScoreWindow)
	if err != nil {
		return nil, err
	}
	diagnostics = append(diagnostics, report.Diagnostics...)

	impacts, drag := EstimateMacroImpact(report.Macros, p.MacroDamping)

	drift, err := EstimateDrift(smoothed, prices, drag, p)
	if err != nil {
		return nil, err
	}

	cones := ProjectPath(current, drift, p.Horizon)
	terminal := TerminalDistribution(current, drift, p.Horizon, cones)

	grid, degenerate := BuildSigmaGrid(terminal, p.SigmaOffsets())
	if degenerate {
		diagnostics = append(diagnostics, Diagnostic{
			Kind:    KindDegenerateVariance,
			Stage:   "sigma_grid",
			Ticker:  in.Target.Ticker(),
			Message: "terminal sigma is zero, standardized z set to 0",
		})
	}
	quantiles := EstimateQuantiles(terminal, p.Quantiles)

	forecast = &Forecast{
		GeneratedAt:  e.now(),
		Target:       in.Target.Ticker(),
		CurrentPrice: current,
		Dates:        in.Target.Dates(),
		Smoothed:     smoothed,
		Drift:        drift,
		Horizon:      p.Horizon,
		Terminal:     terminal,
		Cones:        cones,
		SigmaGrid:    grid,
		Quantiles:    quantiles,
		Macros:       impacts,
		Diagnostics:  diagnostics,
	}
	if err := checkFinite(forecast); err != nil {
		return nil, err
	}
	return forecast, nil
}

// checkFinite rejects a forecast carrying any value that cannot be published.
func checkFinite(f *Forecast) error {
	fail := func(format string, args ...interface{}) error {
		return &Error{Kind: KindNumerical, Stage: "engine", Message: fmt.Sprintf(format, args...) + " is not finite"}
	}

	for name, v := range map[string]float64{
		"base drift":      f.Drift.Base,
		"adjusted drift":  f.Drift.Adjusted,
		"step volatility": f.Drift.StepVolatility,
		"terminal center": f.Terminal.Center,
		"terminal mu":     f.Terminal.Mu,
		"terminal sigma":  f.Terminal.Sigma,
	} {
		if !isFinite(v) {
			return fail("%s", name)
		}
	}
	for i, v := range f.Smoothed {
		if !isFinite(v) {
			return fail("smoothed price %d", i)
		}
	}
	for _, c := range f.Cones {
		for _, v := range []float64{c.Center, c.Upper1, c.Lower1, c.Upper2, c.Lower2} {
			if !isFinite(v) {
				return fail("cone at step %d", c.Step)
			}
		}
	}
	for _, g := range f.SigmaGrid {
		if !isFinite(g.Price) || !isFinite(g.PctMove) || !isFinite(g.Probability) {
			return fail("sigma grid entry %+.1f", g.Sigma)
		}
	}
	for _, q := range f.Quantiles {
		if !isFinite(q.Price) || !isFinite(q.PctMove) {
			return fail("quantile %s", q.Name)
		}
	}
	for _, m := range f.Macros {
		if !isFinite(m.Correlation) || !isFinite(m.ZScore) || !isFinite(m.Impact) {
			return fail("macro impact of %s", m.Ticker)
		}
	}
	return nil
}
