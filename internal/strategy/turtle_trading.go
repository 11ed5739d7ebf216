package strategy

import (
	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// TurtleTrading buys breakouts of the prior entry-period high and sells when
// the low breaks the prior exit-period low.
//
// Parameters:
//   - entry_period (default 20)
//   - exit_period (default 10)
//   - long_term_sma_period (optional, entry filter)
type TurtleTrading struct{}

// NewTurtleTrading creates the turtle trading strategy.
func NewTurtleTrading() Strategy {
	return &TurtleTrading{}
}

// Name returns the registry key of the strategy.
func (s *TurtleTrading) Name() string {
	return "turtle_trading"
}

// RequiredIndicators lists the series the strategy reads.
func (s *TurtleTrading) RequiredIndicators(params Params) []indicator.Spec {
	specs := []indicator.Spec{
		{Kind: indicator.KindRollingHigh, Period: params.Int("entry_period", 20)},
		{Kind: indicator.KindRollingLow, Period: params.Int("exit_period", 10)},
	}

	if period := params.Int("long_term_sma_period", 0); period > 0 {
		specs = append(specs, indicator.Spec{Kind: indicator.KindSMA, Period: period})
	}

	return specs
}

// Generate returns one signal per bar.
func (s *TurtleTrading) Generate(bars []types.PriceBar, indicators indicator.Set, params Params) ([]types.Signal, error) {
	entryHigh, err := indicators.Require(indicator.Spec{Kind: indicator.KindRollingHigh, Period: params.Int("entry_period", 20)}.Name())
	if err != nil {
		return nil, err
	}

	exitLow, err := indicators.Require(indicator.Spec{Kind: indicator.KindRollingLow, Period: params.Int("exit_period", 10)}.Name())
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

	signals := make([]types.Signal, len(bars))

	for t, bar := range bars {
		if t == 0 || entryHigh[t-1].IsNone() || exitLow[t-1].IsNone() {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		if trendSMA != nil && trendSMA[t].IsNone() {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		trendOK := trendSMA == nil || bar.Close > trendSMA[t].Unwrap()

		switch {
		case bar.High > entryHigh[t-1].Unwrap() && trendOK:
			signals[t] = types.NewSignal(bar.Time, 1)
		case bar.Low < exitLow[t-1].Unwrap():
			signals[t] = types.NewSignal(bar.Time, -1)
		default:
			signals[t] = types.NewSignal(bar.Time, 0)
		}
	}

	return signals, nil
}
