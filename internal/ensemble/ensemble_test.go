package ensemble

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

type EnsembleTestSuite struct {
	suite.Suite
	now time.Time
}

func (suite *EnsembleTestSuite) SetupSuite() {
	suite.now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func TestEnsembleSuite(t *testing.T) {
	suite.Run(t, new(EnsembleTestSuite))
}

func some(values ...float64) []optional.Option[float64] {
	strengths := make([]optional.Option[float64], len(values))
	for i, v := range values {
		strengths[i] = optional.Some(v)
	}

	return strengths
}

func (suite *EnsembleTestSuite) TestWeightValidation() {
	testCases := []struct {
		name    string
		weights []float64
		buy     float64
		sell    float64
		code    errors.ErrorCode
	}{
		{name: "no weights", weights: nil, buy: 0.5, sell: -0.5, code: errors.ErrCodeInvalidWeight},
		{name: "negative weight", weights: []float64{1, -0.5}, buy: 0.5, sell: -0.5, code: errors.ErrCodeInvalidWeight},
		{name: "zero total", weights: []float64{0, 0}, buy: 0.5, sell: -0.5, code: errors.ErrCodeInvalidWeight},
		{name: "inverted thresholds", weights: []float64{1}, buy: -0.5, sell: 0.5, code: errors.ErrCodeInvalidThreshold},
		{name: "equal thresholds", weights: []float64{1}, buy: 0.5, sell: 0.5, code: errors.ErrCodeInvalidThreshold},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			_, err := NewCombiner(tc.weights, tc.buy, tc.sell)
			suite.Require().Error(err)
			suite.True(errors.HasCode(err, tc.code))
		})
	}
}

func (suite *EnsembleTestSuite) TestScoreNormalization() {
	combiner, err := NewCombiner([]float64{2, 1, 1}, 0.5, -0.5)
	suite.Require().NoError(err)

	score, err := combiner.Combine(suite.now, some(1, 1, -1))
	suite.Require().NoError(err)

	// (2*1 + 1*1 + 1*-1) / 4 = 0.5
	suite.InDelta(0.5, score.Score, 1e-9)
	suite.Equal(types.DirectionBuy, score.Decision)
}

func (suite *EnsembleTestSuite) TestInclusiveThresholdBoundaries() {
	combiner, err := NewCombiner([]float64{1}, 0.5, -0.5)
	suite.Require().NoError(err)

	buy, err := combiner.Combine(suite.now, some(0.5))
	suite.Require().NoError(err)
	suite.Equal(types.DirectionBuy, buy.Decision)

	sell, err := combiner.Combine(suite.now, some(-0.5))
	suite.Require().NoError(err)
	suite.Equal(types.DirectionSell, sell.Decision)

	hold, err := combiner.Combine(suite.now, some(0.49))
	suite.Require().NoError(err)
	suite.Equal(types.DirectionHold, hold.Decision)
}

// TestColdStartDamping verifies a warming-up strategy keeps its weight in
// the denominator, pulling the score toward zero.
func (suite *EnsembleTestSuite) TestColdStartDamping() {
	combiner, err := NewCombiner([]float64{1, 1}, 0.6, -0.6)
	suite.Require().NoError(err)

	strengths := []optional.Option[float64]{
		optional.Some(1.0),
		optional.None[float64](),
	}

	score, err := combiner.Combine(suite.now, strengths)
	suite.Require().NoError(err)

	// 1*1 / (1+1): the absent strategy halves the score, so no trade fires.
	suite.InDelta(0.5, score.Score, 1e-9)
	suite.Equal(types.DirectionHold, score.Decision)
}

func (suite *EnsembleTestSuite) TestStrengthCountMismatch() {
	combiner, err := NewCombiner([]float64{1, 1}, 0.5, -0.5)
	suite.Require().NoError(err)

	_, err = combiner.Combine(suite.now, some(1))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSeriesLengthMismatch))
}

func (suite *EnsembleTestSuite) TestZeroWeightStrategyIsIgnored() {
	combiner, err := NewCombiner([]float64{1, 0}, 0.5, -0.5)
	suite.Require().NoError(err)

	// The zero-weight strategy screams SELL; the score ignores it.
	score, err := combiner.Combine(suite.now, some(1, -1))
	suite.Require().NoError(err)
	suite.InDelta(1.0, score.Score, 1e-9)
	suite.Equal(types.DirectionBuy, score.Decision)
}
