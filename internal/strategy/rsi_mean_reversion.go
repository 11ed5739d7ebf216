package strategy

import (
	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// RSIMeanReversion buys when the RSI crosses up through the oversold level
// and sells when it crosses down through the overbought level. Crossing, not
// dwelling: a bar deep inside the oversold zone does not re-trigger.
//
// Parameters:
//   - rsi_period (default 14)
//   - oversold_level (default 30)
//   - overbought_level (default 70)
//   - long_term_sma_period (optional, entry filter)
type RSIMeanReversion struct{}

// NewRSIMeanReversion creates the RSI mean reversion strategy.
func NewRSIMeanReversion() Strategy {
	return &RSIMeanReversion{}
}

// Name returns the registry key of the strategy.
func (s *RSIMeanReversion) Name() string {
	return "rsi_mean_reversion"
}

// RequiredIndicators lists the series the strategy reads.
func (s *RSIMeanReversion) RequiredIndicators(params Params) []indicator.Spec {
	specs := []indicator.Spec{
		{Kind: indicator.KindRSI, Period: params.Int("rsi_period", 14)},
	}

	if period := params.Int("long_term_sma_period", 0); period > 0 {
		specs = append(specs, indicator.Spec{Kind: indicator.KindSMA, Period: period})
	}

	return specs
}

// Generate returns one signal per bar.
func (s *RSIMeanReversion) Generate(bars []types.PriceBar, indicators indicator.Set, params Params) ([]types.Signal, error) {
	rsi, err := indicators.Require(indicator.Spec{Kind: indicator.KindRSI, Period: params.Int("rsi_period", 14)}.Name())
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

	oversold := params.Float("oversold_level", 30)
	overbought := params.Float("overbought_level", 70)
	signals := make([]types.Signal, len(bars))

	for t, bar := range bars {
		if t == 0 || rsi[t].IsNone() || rsi[t-1].IsNone() {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		if trendSMA != nil && trendSMA[t].IsNone() {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		current, previous := rsi[t].Unwrap(), rsi[t-1].Unwrap()
		trendOK := trendSMA == nil || bar.Close > trendSMA[t].Unwrap()

		switch {
		case current > oversold && previous <= oversold && trendOK:
			signals[t] = types.NewSignal(bar.Time, 1)
		case current < overbought && previous >= overbought:
			signals[t] = types.NewSignal(bar.Time, -1)
		default:
			signals[t] = types.NewSignal(bar.Time, 0)
		}
	}

	return signals, nil
}
