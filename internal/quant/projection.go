package quant

import "math"

// ConfidenceCone is a projected center price with bands at one and two
// standard deviations of cumulative log-volatility.
type ConfidenceCone struct {
	Step   int
	Center float64
	Upper1 float64
	Lower1 float64
	Upper2 float64
	Lower2 float64
}

// ProjectPath advances current along exp(drift*step) for steps 1..horizon.
func ProjectPath(current float64, d Drift, horizon int) []ConfidenceCone {
	cones := make([]ConfidenceCone, horizon)
	for i := range cones {
		step := i + 1
		center := current * math.Exp(d.Adjusted*float64(step))
		sigma := d.StepVolatility * math.Sqrt(float64(step))
		cones[i] = ConfidenceCone{
			Step:   step,
			Center: center,
			Upper1: center * math.Exp(sigma),
			Lower1: center * math.Exp(-sigma),
			Upper2: center * math.Exp(2*sigma),
			Lower2: center * math.Exp(-2*sigma),
		}
	}
	return cones
}

// Terminal describes the log-normal distribution at the end of the horizon.
type Terminal struct {
	Current float64
	Center  float64
	Mu      float64
	Sigma   float64
}

// TerminalDistribution derives the horizon totals from the drift and the
// last projected center.
func TerminalDistribution(current float64, d Drift, horizon int, cones []ConfidenceCone) Terminal {
	center := current
	if len(cones) > 0 {
		center = cones[len(cones)-1].Center
	}
	return Terminal{
		Current: current,
		Center:  center,
		Mu:      d.Adjusted * float64(horizon),
		Sigma:   d.StepVolatility * math.Sqrt(float64(horizon)),
	}
}
