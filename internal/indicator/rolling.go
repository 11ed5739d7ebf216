package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// RollingHigh computes the highest high over the lookback window ending at
// each bar. Breakout strategies compare the current bar against the previous
// bar's value to stay causal.
type RollingHigh struct{}

// RollingLow computes the lowest low over the lookback window ending at each bar.
type RollingLow struct{}

// VolumeMean computes the mean volume over the lookback window ending at each bar.
type VolumeMean struct{}

// PrevRange computes the previous bar's high-low range, used by the
// volatility breakout strategy.
type PrevRange struct{}

// NewRollingHigh creates a new rolling high computer.
func NewRollingHigh() Computer {
	return &RollingHigh{}
}

// NewRollingLow creates a new rolling low computer.
func NewRollingLow() Computer {
	return &RollingLow{}
}

// NewVolumeMean creates a new volume mean computer.
func NewVolumeMean() Computer {
	return &VolumeMean{}
}

// NewPrevRange creates a new previous range computer.
func NewPrevRange() Computer {
	return &PrevRange{}
}

// Kind returns the kind of the indicator.
func (r *RollingHigh) Kind() Kind { return KindRollingHigh }

// Kind returns the kind of the indicator.
func (r *RollingLow) Kind() Kind { return KindRollingLow }

// Kind returns the kind of the indicator.
func (v *VolumeMean) Kind() Kind { return KindVolumeMean }

// Kind returns the kind of the indicator.
func (p *PrevRange) Kind() Kind { return KindPrevRange }

// Compute returns the n-period rolling maximum of the high.
func (r *RollingHigh) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	return computeRolling(bars, spec, func(bar types.PriceBar) float64 { return bar.High }, math.Max)
}

// Compute returns the n-period rolling minimum of the low.
func (r *RollingLow) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	return computeRolling(bars, spec, func(bar types.PriceBar) float64 { return bar.Low }, math.Min)
}

// Compute returns the n-period rolling mean of the volume.
func (v *VolumeMean) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	if err := validatePeriod(spec); err != nil {
		return nil, err
	}

	series := emptySeries(len(bars))

	var sum float64

	for i, bar := range bars {
		sum += bar.Volume
		if i >= spec.Period {
			sum -= bars[i-spec.Period].Volume
		}

		if i >= spec.Period-1 {
			series[i] = optional.Some(sum / float64(spec.Period))
		}
	}

	return series, nil
}

// Compute returns high[t-1] - low[t-1]; the first value is None.
func (p *PrevRange) Compute(bars []types.PriceBar, _ Spec) (Series, error) {
	series := emptySeries(len(bars))

	for i := 1; i < len(bars); i++ {
		series[i] = optional.Some(bars[i-1].High - bars[i-1].Low)
	}

	return series, nil
}

func computeRolling(bars []types.PriceBar, spec Spec, field func(types.PriceBar) float64, pick func(a, b float64) float64) (Series, error) {
	if err := validatePeriod(spec); err != nil {
		return nil, err
	}

	series := emptySeries(len(bars))

	for i := spec.Period - 1; i < len(bars); i++ {
		value := field(bars[i])
		for j := i - spec.Period + 1; j < i; j++ {
			value = pick(value, field(bars[j]))
		}

		series[i] = optional.Some(value)
	}

	return series, nil
}
