package quant

// MacroImpact is the signed contribution of one macro series.
type MacroImpact struct {
	Ticker      string
	Correlation float64
	ZScore      float64
	Impact      float64
}

// EstimateMacroImpact turns correlation stats into per-macro impacts and the
// total drag, where drag = sum(impact * damping).
func EstimateMacroImpact(stats []MacroStat, damping float64) ([]MacroImpact, float64) {
	impacts := make([]MacroImpact, len(stats))
	drag := 0.0
	for i, s := range stats {
		impact := s.Correlation * s.ZScore
		drag += impact * damping
		impacts[i] = MacroImpact{
			Ticker:      s.Ticker,
			Correlation: s.Correlation,
			ZScore:      s.ZScore,
			Impact:      impact,
		}
	}
	return impacts, drag
}
