package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// RSI computes the Relative Strength Index with Wilder smoothing.
type RSI struct{}

// NewRSI creates a new RSI computer.
func NewRSI() Computer {
	return &RSI{}
}

// Kind returns the kind of the indicator.
func (r *RSI) Kind() Kind {
	return KindRSI
}

// Compute returns the n-period RSI. The first value appears at index n since
// n price changes are needed for the initial averages.
func (r *RSI) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	if err := validatePeriod(spec); err != nil {
		return nil, err
	}

	series := emptySeries(len(bars))
	period := float64(spec.Period)

	var avgGain, avgLoss float64

	for i := 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close

		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		switch {
		case i < spec.Period:
			avgGain += gain
			avgLoss += loss

			continue
		case i == spec.Period:
			avgGain = (avgGain + gain) / period
			avgLoss = (avgLoss + loss) / period
		default:
			avgGain = (avgGain*(period-1) + gain) / period
			avgLoss = (avgLoss*(period-1) + loss) / period
		}

		if avgLoss == 0 {
			series[i] = optional.Some(100.0)

			continue
		}

		rs := avgGain / avgLoss
		series[i] = optional.Some(100.0 - 100.0/(1.0+rs))
	}

	return series, nil
}
