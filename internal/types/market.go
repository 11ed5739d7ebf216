package types

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Interval is the sampling interval of a price series.
type Interval string

const (
	IntervalDay      Interval = "day"
	IntervalHour     Interval = "hour"
	IntervalMinute   Interval = "minute"
	IntervalMinute15 Interval = "minute15"
)

// PeriodsPerYear returns the number of bars per year for the interval,
// used to annualize returns and volatility. Crypto markets trade every day.
func (i Interval) PeriodsPerYear() float64 {
	switch i {
	case IntervalDay:
		return 365
	case IntervalHour:
		return 365 * 24
	case IntervalMinute15:
		return 365 * 24 * 4
	case IntervalMinute:
		return 365 * 24 * 60
	default:
		return 365
	}
}

// PriceBar represents a single OHLCV bar.
type PriceBar struct {
	Time   time.Time `yaml:"time" csv:"time"`
	Open   float64   `yaml:"open" csv:"open"`
	High   float64   `yaml:"high" csv:"high"`
	Low    float64   `yaml:"low" csv:"low"`
	Close  float64   `yaml:"close" csv:"close"`
	Volume float64   `yaml:"volume" csv:"volume"`
}

// ValidateSeries checks that a price series is non-empty, strictly ordered by
// time and contains only well-formed bars. It never reorders or repairs the
// input; the first offending bar aborts validation with its timestamp.
func ValidateSeries(bars []PriceBar) error {
	if len(bars) == 0 {
		return errors.New(errors.ErrCodeEmptySeries, "price series is empty")
	}

	for i, bar := range bars {
		if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
			return errors.Newf(errors.ErrCodeInvalidBar,
				"bar at %s has a non-positive price field", bar.Time.Format(time.RFC3339))
		}

		if bar.High < bar.Low {
			return errors.Newf(errors.ErrCodeInvalidBar,
				"bar at %s has high below low", bar.Time.Format(time.RFC3339))
		}

		if i > 0 && !bar.Time.After(bars[i-1].Time) {
			return errors.Newf(errors.ErrCodeNonMonotonicTimestamps,
				"bar at %s does not follow %s", bar.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}

	return nil
}

// FilterByTimeRange returns the sub-series within [start, end]. Absent bounds
// leave the corresponding side open.
func FilterByTimeRange(bars []PriceBar, start, end optional.Option[time.Time]) []PriceBar {
	filtered := make([]PriceBar, 0, len(bars))

	for _, bar := range bars {
		if start.IsSome() && bar.Time.Before(start.Unwrap()) {
			continue
		}

		if end.IsSome() && bar.Time.After(end.Unwrap()) {
			continue
		}

		filtered = append(filtered, bar)
	}

	return filtered
}
