// Package ensemble combines weighted strategy signals into one decision.
package ensemble

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Combiner holds the fixed weights and thresholds of one ensemble
// configuration. It is immutable after construction.
type Combiner struct {
	weights       []float64
	totalWeight   float64
	buyThreshold  float64
	sellThreshold float64
}

// NewCombiner validates the configuration and builds a combiner. Weights must
// be non-negative and sum to a positive total; the buy threshold must sit
// strictly above the sell threshold.
func NewCombiner(weights []float64, buyThreshold, sellThreshold float64) (*Combiner, error) {
	if len(weights) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidWeight, "ensemble requires at least one strategy weight")
	}

	var total float64

	for i, w := range weights {
		if w < 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidWeight, "weight %d is negative (%f)", i, w)
		}

		total += w
	}

	if total <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidWeight, "weights must sum to a positive total, got %f", total)
	}

	if buyThreshold <= sellThreshold {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold,
			"buy threshold (%f) must be above sell threshold (%f)", buyThreshold, sellThreshold)
	}

	return &Combiner{
		weights:       weights,
		totalWeight:   total,
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
	}, nil
}

// Combine computes the normalized weighted score for one timestamp and
// applies the thresholds. The score is sum(w_i * s_i) / sum(w_i): dividing by
// the total weight makes thresholds comparable across configurations with
// different absolute weight scales.
//
// A strength that is still warming up contributes zero to the numerator while
// its weight stays in the denominator, so early-period scores are
// systematically damped. That is the intended cold-start behavior, not a bug.
//
// Thresholds are inclusive: a score exactly equal to the buy threshold is a
// BUY, exactly equal to the sell threshold is a SELL.
func (c *Combiner) Combine(t time.Time, strengths []optional.Option[float64]) (types.EnsembleScore, error) {
	if len(strengths) != len(c.weights) {
		return types.EnsembleScore{}, errors.Newf(errors.ErrCodeSeriesLengthMismatch,
			"got %d strengths for %d weights", len(strengths), len(c.weights))
	}

	var weightedSum float64

	for i, strength := range strengths {
		if strength.IsNone() {
			continue
		}

		weightedSum += c.weights[i] * strength.Unwrap()
	}

	score := weightedSum / c.totalWeight

	decision := types.DirectionHold

	switch {
	case score >= c.buyThreshold:
		decision = types.DirectionBuy
	case score <= c.sellThreshold:
		decision = types.DirectionSell
	}

	return types.EnsembleScore{
		Time:     t,
		Score:    score,
		Decision: decision,
	}, nil
}
