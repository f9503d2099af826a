package quant

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SigmaGridEntry is the terminal price at a fixed sigma offset with the
// probability of finishing at least that far in the direction of the move.
type SigmaGridEntry struct {
	Sigma       float64
	Price       float64
	PctMove     float64
	Probability float64
}

// Quantile is the terminal price below which Level of outcomes fall.
type Quantile struct {
	Name    string
	Level   float64
	Price   float64
	PctMove float64
}

// BuildSigmaGrid evaluates the terminal distribution at each offset. The
// boolean result is true when the terminal sigma is zero and every
// standardized z was defined as 0.
func BuildSigmaGrid(t Terminal, offsets []float64) ([]SigmaGridEntry, bool) {
	degenerate := t.Sigma == 0
	grid := make([]SigmaGridEntry, len(offsets))
	for i, s := range offsets {
		price := t.Center * math.Exp(s*t.Sigma)
		z := 0.0
		if !degenerate {
			z = (math.Log(price/t.Current) - t.Mu) / t.Sigma
		}

		var probability float64
		if price > t.Current {
			probability = (1 - distuv.UnitNormal.CDF(z)) * 100
		} else {
			probability = distuv.UnitNormal.CDF(z) * 100
		}

		grid[i] = SigmaGridEntry{
			Sigma:       s,
			Price:       price,
			PctMove:     (price/t.Current - 1) * 100,
			Probability: probability,
		}
	}
	return grid, degenerate
}

// EstimateQuantiles inverts the terminal log-normal at each level.
func EstimateQuantiles(t Terminal, levels []QuantileLevel) []Quantile {
	out := make([]Quantile, len(levels))
	for i, l := range levels {
		logReturn := distuv.UnitNormal.Quantile(l.Level)*t.Sigma + t.Mu
		price := t.Current * math.Exp(logReturn)
		out[i] = Quantile{
			Name:    l.Name,
			Level:   l.Level,
			Price:   price,
			PctMove: (price/t.Current - 1) * 100,
		}
	}
	return out
}
