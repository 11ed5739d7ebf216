package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// ATR computes the Average True Range with Wilder smoothing. The risk manager
// uses the ATR at entry time to fix the stop-loss distance.
type ATR struct{}

// NewATR creates a new ATR computer.
func NewATR() Computer {
	return &ATR{}
}

// Kind returns the kind of the indicator.
func (a *ATR) Kind() Kind {
	return KindATR
}

// Compute returns the n-period ATR. The first value appears at index n-1,
// seeded with the simple mean of the first n true ranges.
func (a *ATR) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	if err := validatePeriod(spec); err != nil {
		return nil, err
	}

	series := emptySeries(len(bars))
	period := float64(spec.Period)

	var atr float64

	for i, bar := range bars {
		tr := bar.High - bar.Low
		if i > 0 {
			prevClose := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
		}

		switch {
		case i < spec.Period-1:
			atr += tr

			continue
		case i == spec.Period-1:
			atr = (atr + tr) / period
		default:
			atr = (atr*(period-1) + tr) / period
		}

		series[i] = optional.Some(atr)
	}

	return series, nil
}
