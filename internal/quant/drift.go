package quant

// Drift is the per-step drift and volatility used by the projection stages.
type Drift struct {
	Base           float64
	MacroDrag      float64
	Adjusted       float64
	StepVolatility float64
}

// EstimateDrift fits the trend window of the smoothed line, normalizes the
// slope by the current price, blends in the macro drag, and measures step
// volatility from the raw log-returns. A short raw history narrows the
// volatility window instead of failing.
func EstimateDrift(smoothed []float64, prices []float64, drag float64, p Params) (Drift, error) {
	if len(smoothed) < p.TrendWindow {
		return Drift{}, insufficientData("drift", "trend fit needs %d smoothed points, have %d", p.TrendWindow, len(smoothed))
	}
	if len(prices) == 0 {
		return Drift{}, insufficientData("drift", "no raw prices")
	}

	current := prices[len(prices)-1]
	base := olsSlope(tail(smoothed, p.TrendWindow)) / current

	returns := logReturns(prices)
	vol := populationStdDev(tail(returns, p.VolatilityWindow))

	return Drift{
		Base:           base,
		MacroDrag:      drag,
		Adjusted:       base + drag/p.DragScale,
		StepVolatility: vol,
	}, nil
}
