package quant

// filterState is the running estimate of the scalar filter.
type filterState struct {
	estimate    float64
	uncertainty float64
}

// step runs one predict/update cycle against observation z.
func (s *filterState) step(z, r, q float64) float64 {
	s.uncertainty += q
	gain := 1.0
	if denom := s.uncertainty + r; denom != 0 {
		gain = s.uncertainty / denom
	}
	s.estimate += gain * (z - s.estimate)
	s.uncertainty *= 1 - gain
	return s.estimate
}

// Smooth runs a steady-noise scalar Kalman filter over prices with
// observation noise r and process noise q and returns the filtered line.
func Smooth(prices []float64, r, q float64) ([]float64, error) {
	if len(prices) == 0 {
		return nil, insufficientData("smoother", "empty price series")
	}
	state := filterState{estimate: prices[0], uncertainty: 1.0}
	filtered := make([]float64, len(prices))
	for i, z := range prices {
		filtered[i] = state.step(z, r, q)
	}
	return filtered, nil
}
