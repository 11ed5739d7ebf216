package strategy

import (
	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// TrendFollowing buys breakouts of the prior N-bar high confirmed by
// above-average volume and an optional long-term SMA trend filter, and sells
// when the close drops below a short exit SMA.
//
// Parameters:
//   - breakout_window (default 20)
//   - volume_avg_window (default 20)
//   - volume_multiplier (default 1.5)
//   - long_term_sma_period (optional, entry filter)
//   - exit_sma_period (default 10)
type TrendFollowing struct{}

// NewTrendFollowing creates the trend following strategy.
func NewTrendFollowing() Strategy {
	return &TrendFollowing{}
}

// Name returns the registry key of the strategy.
func (s *TrendFollowing) Name() string {
	return "trend_following"
}

// RequiredIndicators lists the series the strategy reads.
func (s *TrendFollowing) RequiredIndicators(params Params) []indicator.Spec {
	specs := []indicator.Spec{
		{Kind: indicator.KindRollingHigh, Period: params.Int("breakout_window", 20)},
		{Kind: indicator.KindVolumeMean, Period: params.Int("volume_avg_window", 20)},
		{Kind: indicator.KindSMA, Period: params.Int("exit_sma_period", 10)},
	}

	if period := params.Int("long_term_sma_period", 0); period > 0 {
		specs = append(specs, indicator.Spec{Kind: indicator.KindSMA, Period: period})
	}

	return specs
}

// Generate returns one signal per bar.
func (s *TrendFollowing) Generate(bars []types.PriceBar, indicators indicator.Set, params Params) ([]types.Signal, error) {
	rollingHigh, err := indicators.Require(indicator.Spec{Kind: indicator.KindRollingHigh, Period: params.Int("breakout_window", 20)}.Name())
	if err != nil {
		return nil, err
	}

	volumeMean, err := indicators.Require(indicator.Spec{Kind: indicator.KindVolumeMean, Period: params.Int("volume_avg_window", 20)}.Name())
	if err != nil {
		return nil, err
	}

	exitSMA, err := indicators.Require(indicator.Spec{Kind: indicator.KindSMA, Period: params.Int("exit_sma_period", 10)}.Name())
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

	multiplier := params.Float("volume_multiplier", 1.5)
	signals := make([]types.Signal, len(bars))

	for t, bar := range bars {
		// Breakouts compare against the previous bar's window so the current
		// bar cannot confirm its own high.
		if t == 0 || rollingHigh[t-1].IsNone() || volumeMean[t-1].IsNone() || exitSMA[t].IsNone() {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		if trendSMA != nil && trendSMA[t].IsNone() {
			signals[t] = types.WarmupSignal(bar.Time)

			continue
		}

		breakout := bar.High > rollingHigh[t-1].Unwrap()
		volumeConfirmed := bar.Volume > volumeMean[t-1].Unwrap()*multiplier
		trendOK := trendSMA == nil || bar.Close > trendSMA[t].Unwrap()

		switch {
		case breakout && volumeConfirmed && trendOK:
			signals[t] = types.NewSignal(bar.Time, 1)
		case bar.Close < exitSMA[t].Unwrap():
			signals[t] = types.NewSignal(bar.Time, -1)
		default:
			signals[t] = types.NewSignal(bar.Time, 0)
		}
	}

	return signals, nil
}
