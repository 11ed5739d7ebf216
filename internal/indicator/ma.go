package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// SMA computes the simple moving average of the close price.
type SMA struct{}

// NewSMA creates a new SMA computer.
func NewSMA() Computer {
	return &SMA{}
}

// Kind returns the kind of the indicator.
func (s *SMA) Kind() Kind {
	return KindSMA
}

// Compute returns the n-period simple moving average. The first n-1 values
// are None.
func (s *SMA) Compute(bars []types.PriceBar, spec Spec) (Series, error) {
	if err := validatePeriod(spec); err != nil {
		return nil, err
	}

	series := emptySeries(len(bars))

	var sum float64

	for i, bar := range bars {
		sum += bar.Close
		if i >= spec.Period {
			sum -= bars[i-spec.Period].Close
		}

		if i >= spec.Period-1 {
			series[i] = optional.Some(sum / float64(spec.Period))
		}
	}

	return series, nil
}
