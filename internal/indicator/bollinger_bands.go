package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// BollingerUpper computes the upper Bollinger band of the close price.
type BollingerUpper struct{}

// BollingerLower computes the lower Bollinger band of the close price.
type BollingerLower struct{}

// NewBollingerUpper creates a new upper band computer.
func NewBollingerUpper() Computer {
	return &BollingerUpper{}
}

// NewBollingerLower creates a new lower band computer.
func NewBollingerLower() Computer {
	return &BollingerLower{}
}

// Kind returns the kind of the indicator.
func (b *BollingerUpper) Kind() Kind {
	return KindBollingerUpper
}

// Kind returns the kind of the indicator.
func (b *BollingerLower) Kind() Kind {
	return KindBollingerLower
}

// Compute returns SMA + StdDev*sigma over the window.
func (b *BollingerUpper) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	return computeBand(bars, spec, +1)
}

// Compute returns SMA - StdDev*sigma over the window.
func (b *BollingerLower) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	return computeBand(bars, spec, -1)
}

func computeBand(bars []types.PriceBar, spec Spec, sign float64) (Series, error) {
	if err := validatePeriod(spec); err != nil {
		return nil, err
	}

	if spec.StdDev <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"bollinger band std dev multiplier must be positive, got %f", spec.StdDev)
	}

	series := emptySeries(len(bars))

	for i := spec.Period - 1; i < len(bars); i++ {
		window := bars[i-spec.Period+1 : i+1]

		var sum float64
		for _, bar := range window {
			sum += bar.Close
		}

		mean := sum / float64(spec.Period)

		var variance float64
		for _, bar := range window {
			diff := bar.Close - mean
			variance += diff * diff
		}

		sigma := math.Sqrt(variance / float64(spec.Period))
		series[i] = optional.Some(mean + sign*spec.StdDev*sigma)
	}

	return series, nil
}
