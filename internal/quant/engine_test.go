package quant

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, p Params) *Engine {
	t.Helper()
	e, err := NewEngine(p, WithClock(fixedClock))
	require.NoError(t, err)
	return e
}

func geometric(n int, start, growth float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * math.Pow(growth, float64(i))
	}
	return out
}

func wiggly(n int, start float64, phase float64, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * math.Exp(amplitude*math.Sin(float64(i)*0.8+phase))
	}
	return out
}

func TestEngineConstantSeries(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	target := dailySeries(t, "FLAT", baseDay, ramp(40, 100, 0))

	f, err := e.Run(Input{Target: target})
	require.NoError(t, err)
	require.NotNil(t, f)

	assert.Equal(t, fixedClock(), f.GeneratedAt)
	assert.Equal(t, 100.0, f.CurrentPrice)
	assert.Len(t, f.Smoothed, 40)
	for _, v := range f.Smoothed {
		assert.InDelta(t, 100.0, v, 1e-12)
	}
	assert.Equal(t, 0.0, f.Drift.Base)
	assert.Equal(t, 0.0, f.Drift.StepVolatility)

	require.Len(t, f.Cones, 14)
	for _, c := range f.Cones {
		assert.InDelta(t, 100.0, c.Center, 1e-12)
		assert.Equal(t, c.Center, c.Upper2)
		assert.Equal(t, c.Center, c.Lower2)
	}
	for _, q := range f.Quantiles {
		assert.InDelta(t, 100.0, q.Price, 1e-12)
	}

	var sigmaDiag bool
	for _, d := range f.Diagnostics {
		if d.Stage == "sigma_grid" {
			sigmaDiag = true
			assert.Equal(t, KindDegenerateVariance, d.Kind)
		}
	}
	assert.True(t, sigmaDiag)
}

func TestEngineSteadyGrowth(t *testing.T) {
	prices := geometric(40, 100, 1.01)

	// The default noise (R=0.1, Q=1e-3) lags a steady 1% trend and reports a
	// base drift near 0.0081; a responsive filter tracks it within 10%.
	t.Run("responsive smoother recovers the growth rate", func(t *testing.T) {
		p := DefaultParams()
		p.ObservationNoise = 1e-3
		p.ProcessNoise = 0.1
		e := newTestEngine(t, p)

		f, err := e.Run(Input{Target: dailySeries(t, "GROW", baseDay, prices)})
		require.NoError(t, err)
		assert.InEpsilon(t, 0.01, f.Drift.Base, 0.1)
		assert.InDelta(t, 0.0, f.Drift.StepVolatility, 1e-9)

		projections := f.Projections()
		require.Len(t, projections, 14)
		assert.Greater(t, projections[0], f.CurrentPrice)
		for i := 1; i < len(projections); i++ {
			assert.Greater(t, projections[i], projections[i-1])
		}
	})

	t.Run("default smoother still trends upward", func(t *testing.T) {
		e := newTestEngine(t, DefaultParams())
		f, err := e.Run(Input{Target: dailySeries(t, "GROW", baseDay, prices)})
		require.NoError(t, err)
		assert.Greater(t, f.Drift.Base, 0.0)
		assert.Equal(t, f.Drift.Base, f.Drift.Adjusted)
	})
}

func TestEngineNonFiniteOutput(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 1e-150
		if i%2 == 1 {
			prices[i] = 1e150
		}
	}

	e := newTestEngine(t, DefaultParams())
	f, err := e.Run(Input{Target: dailySeries(t, "SWING", baseDay, prices)})
	assert.Nil(t, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNumerical))

	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, KindNumerical, qErr.Kind)
	assert.Equal(t, "engine", qErr.Stage)
	assert.Contains(t, qErr.Message, "not finite")
	assert.True(t, qErr.Fatal())
}

func TestCheckFinite(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	target := dailySeries(t, "TGT", baseDay, wiggly(40, 100, 0, 0.03))
	macro := dailySeries(t, "MAC", baseDay, wiggly(40, 10, 1, 0.05))

	tests := []struct {
		name   string
		mutate func(f *Forecast)
		want   string
	}{
		{"smoothed", func(f *Forecast) { f.Smoothed[3] = math.NaN() }, "smoothed price 3"},
		{"cone band", func(f *Forecast) { f.Cones[13].Upper2 = math.Inf(1) }, "cone at step 14"},
		{"sigma grid price", func(f *Forecast) { f.SigmaGrid[12].Price = math.Inf(1) }, "sigma grid entry +3.0"},
		{"sigma grid probability", func(f *Forecast) { f.SigmaGrid[0].Probability = math.NaN() }, "sigma grid entry -3.0"},
		{"quantile", func(f *Forecast) { f.Quantiles[4].PctMove = math.Inf(1) }, "quantile p95"},
		{"macro impact", func(f *Forecast) { f.Macros[0].Impact = math.NaN() }, "macro impact of MAC"},
		{"terminal sigma", func(f *Forecast) { f.Terminal.Sigma = math.Inf(1) }, "terminal sigma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := e.Run(Input{Target: target, Macros: []PriceSeries{macro}})
			require.NoError(t, err)
			require.NoError(t, checkFinite(f))

			tt.mutate(f)
			err = checkFinite(f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNumerical))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEngineRecoversPanic(t *testing.T) {
	p := DefaultParams()
	p.Quantiles = []QuantileLevel{{Name: "broken", Level: 1.5}}
	require.Error(t, p.Validate())

	// Bypass validation to drive an out-of-range level into the inverse CDF.
	e := &Engine{params: p, now: fixedClock}

	var (
		f   *Forecast
		err error
	)
	require.NotPanics(t, func() {
		f, err = e.Run(Input{Target: dailySeries(t, "TGT", baseDay, wiggly(40, 100, 0, 0.03))})
	})
	assert.Nil(t, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNumerical))

	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, "engine", qErr.Stage)
	assert.Contains(t, qErr.Message, "percentile out of bounds")
}

func TestEngineInsufficientHistory(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	f, err := e.Run(Input{Target: dailySeries(t, "SHORT", baseDay, ramp(10, 100, 1))})
	assert.Nil(t, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, KindInsufficientData, qErr.Kind)
	assert.True(t, qErr.Fatal())
}

func TestEngineNonOverlappingMacro(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	target := dailySeries(t, "TGT", baseDay, wiggly(40, 100, 0, 0.03))
	stale := dailySeries(t, "STALE", baseDay.AddDate(-2, 0, 0), wiggly(40, 10, 1, 0.05))

	f, err := e.Run(Input{Target: target, Macros: []PriceSeries{stale}})
	require.NoError(t, err)
	assert.Empty(t, f.Macros)
	assert.Equal(t, f.Drift.Base, f.Drift.Adjusted)

	var missing int
	for _, d := range f.Diagnostics {
		if d.Kind == KindMissingMacroSeries {
			missing++
			assert.Equal(t, "STALE", d.Ticker)
			assert.True(t, errors.Is(d.Err(), ErrMissingMacroSeries))
		}
	}
	assert.Equal(t, 1, missing)
}

func TestEngineMacroBreakdown(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	target := dailySeries(t, "TGT", baseDay, wiggly(40, 100, 0, 0.03))
	dxy := dailySeries(t, "DXY", baseDay, wiggly(40, 104, 0.3, 0.01))
	vix := dailySeries(t, "VIX", baseDay, wiggly(40, 18, 2.0, 0.2))

	f, err := e.Run(Input{Target: target, Macros: []PriceSeries{dxy, vix}})
	require.NoError(t, err)
	require.Len(t, f.Macros, 2)
	assert.Equal(t, "DXY", f.Macros[0].Ticker)
	assert.Equal(t, "VIX", f.Macros[1].Ticker)

	var drag float64
	for _, m := range f.Macros {
		assert.GreaterOrEqual(t, m.Correlation, -1.0)
		assert.LessOrEqual(t, m.Correlation, 1.0)
		assert.InDelta(t, m.Correlation*m.ZScore, m.Impact, 1e-12)
		drag += m.Impact * 0.2
	}
	assert.InDelta(t, drag, f.Drift.MacroDrag, 1e-12)
	assert.InDelta(t, f.Drift.Base+drag/100, f.Drift.Adjusted, 1e-12)

	// the engine must not change its answer between runs
	again, err := e.Run(Input{Target: target, Macros: []PriceSeries{dxy, vix}})
	require.NoError(t, err)
	assert.Equal(t, f.Drift, again.Drift)
	assert.Equal(t, f.Macros, again.Macros)
}

func TestEngineOutputShape(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	target := dailySeries(t, "TGT", baseDay, wiggly(60, 100, 0, 0.05))

	f, err := e.Run(Input{Target: target})
	require.NoError(t, err)

	assert.Len(t, f.Dates, 60)
	assert.Len(t, f.Smoothed, 60)
	assert.Len(t, f.Cones, 14)
	assert.Len(t, f.SigmaGrid, 13)
	require.Len(t, f.Quantiles, 5)
	assert.Greater(t, f.Drift.StepVolatility, 0.0)

	for i, c := range f.Cones {
		assert.Equal(t, i+1, c.Step)
		assert.LessOrEqual(t, c.Lower2, c.Lower1)
		assert.LessOrEqual(t, c.Lower1, c.Center)
		assert.LessOrEqual(t, c.Center, c.Upper1)
		assert.LessOrEqual(t, c.Upper1, c.Upper2)
	}
	for i := 1; i < len(f.SigmaGrid); i++ {
		assert.Greater(t, f.SigmaGrid[i].Price, f.SigmaGrid[i-1].Price)
	}
	for i := 1; i < len(f.Quantiles); i++ {
		assert.Greater(t, f.Quantiles[i].Price, f.Quantiles[i-1].Price)
	}
	assert.InDelta(t, (math.Exp(f.Terminal.Mu)-1)*100, f.Quantiles[2].PctMove, 1e-9)
}

func TestNewEngineRejectsBadParams(t *testing.T) {
	p := DefaultParams()
	p.Horizon = 0
	_, err := NewEngine(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.SigmaMax = -4
	_, err = NewEngine(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.Quantiles = []QuantileLevel{{Name: "p100", Level: 1}}
	_, err = NewEngine(p)
	assert.Error(t, err)
}
