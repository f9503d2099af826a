package quant

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

func logReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		returns = append(returns, math.Log(series[i]/series[i-1]))
	}
	return returns
}

// pearson returns the correlation of x and y clamped to [-1, 1]. The second
// result is false when either side has no variance.
func pearson(x []float64, y []float64) (float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, false
	}
	_, sx := stat.PopMeanStdDev(x, nil)
	_, sy := stat.PopMeanStdDev(y, nil)
	if sx == 0 || sy == 0 {
		return 0, false
	}

	corr := stat.Correlation(x, y, nil)
	if math.IsNaN(corr) {
		return 0, false
	}
	if corr > 1 {
		return 1, true
	}
	if corr < -1 {
		return -1, true
	}
	return corr, true
}

// olsSlope fits y = a + b*x over x = 0..len(y)-1 and returns b.
func olsSlope(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	return beta
}

// populationStdDev divides by n, matching the step volatility definition.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(values, nil)
	return std
}

// sampleStdDev divides by n-1.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

func tail(values []float64, n int) []float64 {
	if n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
