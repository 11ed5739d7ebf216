// Package indicator computes technical indicator series from price bars.
//
// Every computation is deterministic and causal: the value at index t depends
// only on bars at or before t. Values inside an indicator's warm-up window
// are optional.None, never zero, so downstream arithmetic cannot silently
// consume them.
package indicator

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Value is one indicator sample. None marks the warm-up window.
type Value = optional.Option[float64]

// Series is an indicator series aligned 1:1 with a price series.
type Series []Value

// Kind identifies an indicator computation.
type Kind string

const (
	KindSMA            Kind = "sma"
	KindRSI            Kind = "rsi"
	KindATR            Kind = "atr"
	KindBollingerUpper Kind = "bb_upper"
	KindBollingerLower Kind = "bb_lower"
	KindRollingHigh    Kind = "rolling_high"
	KindRollingLow     Kind = "rolling_low"
	KindVolumeMean     Kind = "volume_mean"
	KindPrevRange      Kind = "prev_range"
)

// Spec fully describes one indicator series to compute.
type Spec struct {
	Kind Kind
	// Period is the lookback window. Unused by KindPrevRange.
	Period int
	// StdDev is the band width multiplier, Bollinger kinds only.
	StdDev float64
}

// Name returns the canonical series name, e.g. "sma_50" or "bb_lower_20_2.0".
func (s Spec) Name() string {
	switch s.Kind {
	case KindPrevRange:
		return string(KindPrevRange)
	case KindBollingerUpper, KindBollingerLower:
		return fmt.Sprintf("%s_%d_%.1f", s.Kind, s.Period, s.StdDev)
	default:
		return fmt.Sprintf("%s_%d", s.Kind, s.Period)
	}
}

// Set maps canonical series names to computed series, all aligned to the same
// price series.
type Set map[string]Series

// Require returns the named series or a configuration error naming it.
func (s Set) Require(name string) (Series, error) {
	series, ok := s[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMissingIndicator,
			"required indicator %q has not been computed", name)
	}

	return series, nil
}

// AlignToBarTimes aligns externally supplied, timestamp-keyed samples (market
// sentiment, macro data) to a price series. Bars without a sample get a
// not-available value, so an auxiliary series behaves like any computed
// indicator inside a coverage gap.
func AlignToBarTimes(bars []types.PriceBar, samples map[time.Time]float64) Series {
	series := emptySeries(len(bars))

	for i, bar := range bars {
		if value, ok := samples[bar.Time]; ok {
			series[i] = optional.Some(value)
		}
	}

	return series
}

// Computer computes one kind of indicator series.
type Computer interface {
	// Kind returns the kind of the indicator.
	Kind() Kind
	// Compute returns the series for the given spec, aligned to bars.
	Compute(bars []types.PriceBar, spec Spec) (Series, error)
}

func validatePeriod(spec Spec) error {
	if spec.Period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod,
			"%s period must be positive, got %d", spec.Kind, spec.Period)
	}

	return nil
}

func emptySeries(n int) Series {
	series := make(Series, n)
	for i := range series {
		series[i] = optional.None[float64]()
	}

	return series
}
