package strategy

import (
	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// VolatilityBreakout buys when the bar's high exceeds the open plus a
// fraction k of the previous bar's range. Exits are left entirely to the
// common risk rules, so the strategy never emits a sell.
//
// Parameters:
//   - k (default 0.5)
//   - long_term_sma_period (optional, entry filter)
type VolatilityBreakout struct{}

// NewVolatilityBreakout creates the volatility breakout strategy.
func NewVolatilityBreakout() Strategy {
	return &VolatilityBreakout{}
}

// Name returns the registry key of the strategy.
func (s *VolatilityBreakout) Name() string {
	return "volatility_breakout"
}

// RequiredIndicators lists the series the strategy reads.
func (s *VolatilityBreakout) RequiredIndicators(params Params) []indicator.Spec {
	specs := []indicator.Spec{
		{Kind: indicator.KindPrevRange},
	}

	if period := params.Int("long_term_sma_period", 0); period > 0 {
		specs = append(specs, indicator.Spec{Kind: indicator.KindSMA, Period: period})
	}

	return specs
}

// Generate returns one signal per bar.
func (s *VolatilityBreakout) Generate(bars []types.PriceBar, indicators indicator.Set, params Params) ([]types.Signal, error) {
	prevRange, err := indicators.Require(indicator.Spec{Kind: indicator.KindPrevRange}.Name())
	if err != nil {
		return nil, err
	}

	var trendSMA indicator.Series

	if period := params.Int("long_term_sma_period", 0); period > 0 {
		trendSMA, err = indicators.Require(indicator.Spec{Kind: indicator.KindSMA, Period: period}.Name())
		if err != nil {
			return nil, err
		}
	}

	k := params.Float("k", 0.5)
	signals := make([]types.Signal, len(bars))

	for t, bar := range bars {
		if prevRange[t].IsNone() || (trendSMA != nil && trendSMA[t].IsNone()) {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		target := bar.Open + prevRange[t].Unwrap()*k
		trendOK := trendSMA == nil || bar.Close > trendSMA[t].Unwrap()

		if bar.High > target && trendOK {
			signals[t] = types.NewSignal(bar.Time, 1)
		} else {
			signals[t] = types.NewSignal(bar.Time, 0)
		}
	}

	return signals, nil
}
