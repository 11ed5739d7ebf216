package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// Direction is a discrete trading decision.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Signal is one strategy's opinion at one timestamp. Strength is in [-1, 1];
// None means the strategy's indicators are still inside their warm-up window
// and downstream consumers must treat the signal as HOLD-equivalent.
type Signal struct {
	// Time is the bar timestamp the signal is aligned to.
	Time time.Time
	// Direction is the discrete reading of Strength.
	Direction Direction
	// Strength is the continuous score, None during warm-up.
	Strength optional.Option[float64]
}

// NewSignal builds a signal from a strength value, deriving the direction.
func NewSignal(t time.Time, strength float64) Signal {
	direction := DirectionHold

	switch {
	case strength > 0:
		direction = DirectionBuy
	case strength < 0:
		direction = DirectionSell
	}

	return Signal{
		Time:      t,
		Direction: direction,
		Strength:  optional.Some(strength),
	}
}

// WarmupSignal builds the not-yet-available signal for a timestamp.
func WarmupSignal(t time.Time) Signal {
	return Signal{
		Time:      t,
		Direction: DirectionHold,
		Strength:  optional.None[float64](),
	}
}

// EnsembleScore is the normalized weighted combination of strategy signals
// at one timestamp, together with the decision the thresholds produced.
type EnsembleScore struct {
	Time     time.Time
	Score    float64
	Decision Direction
}
