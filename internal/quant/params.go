package quant

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// QuantileLevel names a cumulative probability reported by the quantile estimator.
type QuantileLevel struct {
	Name  string  `validate:"required"`
	Level float64 `validate:"gt=0,lt=1"`
}

// Params holds every tuning constant of the pipeline.
type Params struct {
	// Smoother noise: R (observation) and Q (process).
	ObservationNoise float64 `validate:"gte=0"`
	ProcessNoise     float64 `validate:"gte=0"`

	MinObservations  int `validate:"gte=2"`
	ZScoreWindow     int `validate:"gte=2"`
	TrendWindow      int `validate:"gte=2"`
	VolatilityWindow int `validate:"gte=1"`
	Horizon          int `validate:"gte=1"`

	// MacroDamping weights each macro impact into the drag; DragScale converts
	// the drag into fractional drift units.
	MacroDamping float64 `validate:"gte=0"`
	DragScale    float64 `validate:"gt=0"`

	SigmaMin  float64
	SigmaMax  float64 `validate:"gtefield=SigmaMin"`
	SigmaStep float64 `validate:"gt=0"`

	Quantiles []QuantileLevel `validate:"dive"`
}

// DefaultParams returns the calibrated constants of the forecaster.
func DefaultParams() Params {
	return Params{
		ObservationNoise: 1e-1,
		ProcessNoise:     1e-3,
		MinObservations:  30,
		ZScoreWindow:     20,
		TrendWindow:      14,
		VolatilityWindow: 30,
		Horizon:          14,
		MacroDamping:     0.2,
		DragScale:        100,
		SigmaMin:         -3.0,
		SigmaMax:         3.0,
		SigmaStep:        0.5,
		Quantiles:        DefaultQuantiles(),
	}
}

// DefaultQuantiles returns the p5..p95 levels.
func DefaultQuantiles() []QuantileLevel {
	return []QuantileLevel{
		{Name: "p5", Level: 0.05},
		{Name: "p25", Level: 0.25},
		{Name: "p50", Level: 0.50},
		{Name: "p75", Level: 0.75},
		{Name: "p95", Level: 0.95},
	}
}

var paramsValidator = validator.New()

// Validate checks the constants for internal consistency.
func (p Params) Validate() error {
	if err := paramsValidator.Struct(p); err != nil {
		return fmt.Errorf("invalid quant params: %w", err)
	}
	return nil
}

// SigmaOffsets expands the configured sigma range into grid offsets.
// Offsets are computed by index to avoid accumulating step error.
func (p Params) SigmaOffsets() []float64 {
	count := int((p.SigmaMax-p.SigmaMin)/p.SigmaStep+1e-9) + 1
	offsets := make([]float64, count)
	for i := range offsets {
		offsets[i] = p.SigmaMin + float64(i)*p.SigmaStep
	}
	return offsets
}
