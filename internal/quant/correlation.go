package quant

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"golang.org/x/sync/errgroup"
)

// MacroStat is the correlation analysis of one macro column against the target.
type MacroStat struct {
	Ticker      string
	Correlation float64
	ZScore      float64
}

// CorrelationReport is the output of AnalyzeCorrelations.
type CorrelationReport struct {
	Macros      []MacroStat
	Diagnostics []Diagnostic
}

// AnalyzeCorrelations computes, for each macro column, the Pearson correlation
// of its log-returns with the target's and its latest rolling z-score. Macro
// columns are analyzed concurrently; the report keeps the input order. A
// panic in any column's analysis is returned as a Numerical error.
func AnalyzeCorrelations(set AlignedSeriesSet, window int) (CorrelationReport, error) {
	targetReturns := logReturns(set.Target)

	type slot struct {
		stat        MacroStat
		keep        bool
		diagnostics []Diagnostic
	}
	slots := make([]slot, len(set.Macros))

	var g errgroup.Group
	for i, col := range set.Macros {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &Error{Kind: KindNumerical, Stage: "correlation", Message: fmt.Sprintf("%s: %v", col.Ticker, r)}
				}
			}()

			s := &slots[i]
			s.stat.Ticker = col.Ticker

			z, ok, degenerate := latestZScore(col.Values, window)
			if !ok {
				s.diagnostics = append(s.diagnostics, Diagnostic{
					Kind:    KindMissingMacroSeries,
					Stage:   "correlation",
					Ticker:  col.Ticker,
					Message: fmt.Sprintf("z-score needs %d points, have %d", window, len(col.Values)),
				})
				return nil
			}
			if degenerate {
				s.diagnostics = append(s.diagnostics, Diagnostic{
					Kind:    KindDegenerateVariance,
					Stage:   "correlation",
					Ticker:  col.Ticker,
					Message: "rolling standard deviation is zero, z-score set to 0",
				})
			}

			corr, defined := pearson(targetReturns, logReturns(col.Values))
			if !defined {
				s.diagnostics = append(s.diagnostics, Diagnostic{
					Kind:    KindDegenerateVariance,
					Stage:   "correlation",
					Ticker:  col.Ticker,
					Message: "log-returns have no variance, correlation set to 0",
				})
			}

			s.stat.Correlation = corr
			s.stat.ZScore = z
			s.keep = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CorrelationReport{}, err
	}

	report := CorrelationReport{Macros: make([]MacroStat, 0, len(slots))}
	for _, s := range slots {
		report.Diagnostics = append(report.Diagnostics, s.diagnostics...)
		if s.keep {
			report.Macros = append(report.Macros, s.stat)
		}
	}
	return report, nil
}

// latestZScore standardizes the last value against the trailing window's
// simple moving average and sample standard deviation. ok is false when the
// series is shorter than the window; degenerate is true when the deviation is
// zero, in which case the z-score is 0.
func latestZScore(values []float64, window int) (z float64, ok bool, degenerate bool) {
	if window < 2 || len(values) < window {
		return 0, false, false
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	means := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(means) == 0 {
		return 0, false, false
	}
	mean := means[len(means)-1]

	std := sampleStdDev(tail(values, window))
	if std == 0 || !isFinite(std) {
		return 0, true, true
	}
	return (values[len(values)-1] - mean) / std, true, false
}
