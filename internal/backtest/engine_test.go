package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/strategy"
	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// scriptedStrategy emits a fixed direction per bar index, letting the engine
// tests drive the full loop deterministically.
type scriptedStrategy struct {
	name    string
	buyAt   map[int]bool
	sellAt  map[int]bool
	warmups int
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) RequiredIndicators(params strategy.Params) []indicator.Spec {
	return nil
}

func (s *scriptedStrategy) Generate(bars []types.PriceBar, indicators indicator.Set, params strategy.Params) ([]types.Signal, error) {
	signals := make([]types.Signal, len(bars))

	for t, bar := range bars {
		switch {
		case t < s.warmups:
			signals[t] = types.WarmupSignal(bar.Time)
		case s.buyAt[t]:
			signals[t] = types.NewSignal(bar.Time, 1)
		case s.sellAt[t]:
			signals[t] = types.NewSignal(bar.Time, -1)
		default:
			signals[t] = types.NewSignal(bar.Time, 0)
		}
	}

	return signals, nil
}

// sentimentGate buys on extreme fear read from an externally supplied series.
type sentimentGate struct{}

func (s *sentimentGate) Name() string { return "sentiment_gate" }

func (s *sentimentGate) RequiredIndicators(params strategy.Params) []indicator.Spec {
	return nil
}

func (s *sentimentGate) Generate(bars []types.PriceBar, indicators indicator.Set, params strategy.Params) ([]types.Signal, error) {
	fearGreed, err := indicators.Require("fear_greed")
	if err != nil {
		return nil, err
	}

	signals := make([]types.Signal, len(bars))

	for t, bar := range bars {
		switch {
		case fearGreed[t].IsNone():
			signals[t] = types.WarmupSignal(bar.Time)
		case fearGreed[t].Unwrap() <= 20:
			signals[t] = types.NewSignal(bar.Time, 1)
		default:
			signals[t] = types.NewSignal(bar.Time, 0)
		}
	}

	return signals, nil
}

type EngineTestSuite struct {
	suite.Suite
	start time.Time
}

func (suite *EngineTestSuite) SetupSuite() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) dailyBars(closes ...float64) []types.PriceBar {
	bars := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = types.PriceBar{
			Time:   suite.start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		}
	}

	return bars
}

// engineWith registers a scripted strategy and returns a run configuration
// wired to it with weight 1.
func (suite *EngineTestSuite) engineWith(s strategy.Strategy, sim SimulationConfig, exits ExitParamsConfig) (*Engine, RunConfig) {
	engine := NewEngine(nil)
	suite.Require().NoError(engine.Strategies().Register(s))

	cfg := RunConfig{
		Ticker:     "KRW-BTC",
		Interval:   types.IntervalDay,
		Simulation: sim,
		Ensemble: EnsembleConfig{
			BuyThreshold:     0.5,
			SellThreshold:    -0.5,
			Strategies:       []StrategyConfig{{Name: s.Name(), Weight: 1}},
			CommonExitParams: exits,
		},
	}

	return engine, cfg
}

func (suite *EngineTestSuite) TestSingleRoundTrip() {
	scripted := &scriptedStrategy{
		name:   "scripted_round_trip",
		buyAt:  map[int]bool{2: true},
		sellAt: map[int]bool{6: true},
	}

	sim := SimulationConfig{
		InitialCapital:   10_000_000,
		MinOrderNotional: 5_000,
		FeeRate:          0.0005,
	}

	engine, cfg := suite.engineWith(scripted, sim, ExitParamsConfig{})

	bars := suite.dailyBars(100, 101, 102, 103, 104, 105, 106, 107)

	result, err := engine.Run(context.Background(), cfg, bars)
	suite.Require().NoError(err)
	suite.Require().Len(result.Records, 2)

	buy, sell := result.Records[0], result.Records[1]

	suite.Equal(types.SideBuy, buy.Side)
	suite.Equal(types.ReasonEnsembleBuy, buy.Reason)
	suite.InDelta(102.0, buy.Price, 1e-9)

	suite.Equal(types.SideSell, sell.Side)
	suite.Equal(types.ReasonEnsembleSell, sell.Reason)
	suite.InDelta(106.0, sell.Price, 1e-9)

	// Entry sizing reserves the fee: notional*(1+fee) spends all cash.
	suite.InDelta(10_000_000/1.0005/102, buy.Quantity, 1e-6)

	// Sell proceeds: cash after buy + qty*price*(1-fee).
	expectedCash := buy.CashAfter + sell.Quantity*sell.Price*(1-0.0005)
	suite.InDelta(expectedCash, sell.CashAfter, 1e-6)

	suite.Empty(result.Final.Holdings)
	suite.Len(result.Equity, len(bars))
	suite.Equal(1, result.Report.TradeCount)
	suite.Positive(result.Report.TotalReturnPct)
}

func (suite *EngineTestSuite) TestRSIMeanReversionRoundTrip() {
	// Flat, then a decline deep into oversold, then a rally that crosses the
	// RSI up through 30, then a decline that crosses it down through 70.
	closes := make([]float64, 0, 100)
	price := 100.0

	for i := 0; i < 20; i++ {
		closes = append(closes, price)
	}
	for i := 0; i < 20; i++ {
		price *= 0.985
		closes = append(closes, price)
	}
	for i := 0; i < 30; i++ {
		price *= 1.015
		closes = append(closes, price)
	}
	for i := 0; i < 30; i++ {
		price *= 0.99
		closes = append(closes, price)
	}

	engine := NewEngine(nil)
	cfg := RunConfig{
		Ticker:   "KRW-BTC",
		Interval: types.IntervalDay,
		Simulation: SimulationConfig{
			InitialCapital:   10_000_000,
			MinOrderNotional: 5_000,
			FeeRate:          0.0005,
		},
		Ensemble: EnsembleConfig{
			BuyThreshold:  0.5,
			SellThreshold: -0.5,
			Strategies:    []StrategyConfig{{Name: "rsi_mean_reversion", Weight: 1}},
		},
	}

	result, err := engine.Run(context.Background(), cfg, suite.dailyBars(closes...))
	suite.Require().NoError(err)

	// The all-in entry must fill; a skip here means the sized quantity was
	// rejected by the ledger.
	suite.Empty(result.Skipped)
	suite.Require().Len(result.Records, 2)

	buy, sell := result.Records[0], result.Records[1]

	suite.Equal(types.SideBuy, buy.Side)
	suite.Equal(types.ReasonEnsembleBuy, buy.Reason)
	suite.Equal(types.SideSell, sell.Side)
	suite.Equal(types.ReasonEnsembleSell, sell.Reason)
	suite.True(sell.Time.After(buy.Time))

	suite.InDelta(10_000_000/1.0005/buy.Price, buy.Quantity, 1e-6)

	expectedCash := buy.CashAfter + sell.Quantity*sell.Price*(1-0.0005)
	suite.InDelta(expectedCash, sell.CashAfter, 1e-6)

	// Cash can never go negative at any point of the run.
	for _, record := range result.Records {
		suite.GreaterOrEqual(record.CashAfter, 0.0)
	}

	suite.Equal(1, result.Report.TradeCount)
	suite.Empty(result.Final.Holdings)
}

func (suite *EngineTestSuite) TestAuxiliarySeriesDriveSignals() {
	engine := NewEngine(nil)
	suite.Require().NoError(engine.Strategies().Register(&sentimentGate{}))

	bars := suite.dailyBars(100, 100, 100, 100, 100)

	cfg := RunConfig{
		Ticker:     "KRW-BTC",
		Interval:   types.IntervalDay,
		Simulation: SimulationConfig{InitialCapital: 1_000_000, FeeRate: 0.0005},
		Ensemble: EnsembleConfig{
			BuyThreshold:  0.5,
			SellThreshold: -0.5,
			Strategies:    []StrategyConfig{{Name: "sentiment_gate", Weight: 1}},
		},
		// Sparse coverage: bars without a sample read as not-available.
		Auxiliary: map[string]map[time.Time]float64{
			"fear_greed": {
				bars[1].Time: 55,
				bars[3].Time: 10,
			},
		},
	}

	result, err := engine.Run(context.Background(), cfg, bars)
	suite.Require().NoError(err)

	// Only the extreme-fear sample triggers an entry.
	suite.Require().Len(result.Records, 1)
	suite.Equal(types.SideBuy, result.Records[0].Side)
	suite.True(result.Records[0].Time.Equal(bars[3].Time))
}

func (suite *EngineTestSuite) TestAtMostOnePosition() {
	// Repeated buy decisions while LONG must not pyramid.
	scripted := &scriptedStrategy{
		name:  "scripted_pyramid",
		buyAt: map[int]bool{1: true, 2: true, 3: true, 4: true},
	}

	sim := SimulationConfig{InitialCapital: 1_000_000, FeeRate: 0.0005}
	engine, cfg := suite.engineWith(scripted, sim, ExitParamsConfig{})

	result, err := engine.Run(context.Background(), cfg, suite.dailyBars(100, 100, 100, 100, 100, 100))
	suite.Require().NoError(err)

	suite.Require().Len(result.Records, 1)
	suite.Equal(types.SideBuy, result.Records[0].Side)
}

func (suite *EngineTestSuite) TestEntrySkippedBelowMinimumNotional() {
	scripted := &scriptedStrategy{
		name:  "scripted_small_account",
		buyAt: map[int]bool{1: true},
	}

	sim := SimulationConfig{
		InitialCapital:   4_000,
		MinOrderNotional: 5_000,
		FeeRate:          0.0005,
	}
	engine, cfg := suite.engineWith(scripted, sim, ExitParamsConfig{})

	result, err := engine.Run(context.Background(), cfg, suite.dailyBars(100, 100, 100))
	suite.Require().NoError(err)

	suite.Empty(result.Records)
	suite.NotEmpty(result.Skipped)
	suite.Zero(result.Report.TradeCount)
}

func (suite *EngineTestSuite) TestStopLossExitAtStopPrice() {
	scripted := &scriptedStrategy{
		name:  "scripted_stop",
		buyAt: map[int]bool{16: true},
	}

	multiplier := 1.0
	exits := ExitParamsConfig{
		StopLossATRMultiplier: &multiplier,
		ATRPeriod:             14,
	}

	sim := SimulationConfig{InitialCapital: 1_000_000, FeeRate: 0.0005}
	engine, cfg := suite.engineWith(scripted, sim, exits)

	// Flat closes, then a crash far below any plausible stop level.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}

	closes[18] = 60
	closes[19] = 60

	result, err := engine.Run(context.Background(), cfg, suite.dailyBars(closes...))
	suite.Require().NoError(err)
	suite.Require().Len(result.Records, 2)

	stop := result.Records[1]
	suite.Equal(types.ReasonStopLoss, stop.Reason)

	// The fill price is the stop level, not the crash close.
	suite.Greater(stop.Price, 60.0)
	suite.Less(stop.Price, 100.0)
}

func (suite *EngineTestSuite) TestEmptySeriesFails() {
	engine := NewEngine(nil)

	cfg := RunConfig{
		Ticker:   "KRW-BTC",
		Interval: types.IntervalDay,
		Ensemble: EnsembleConfig{
			BuyThreshold:  0.5,
			SellThreshold: -0.5,
			Strategies:    []StrategyConfig{{Name: "turtle_trading", Weight: 1}},
		},
		Simulation: SimulationConfig{InitialCapital: 1000},
	}

	_, err := engine.Run(context.Background(), cfg, nil)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))
}

func (suite *EngineTestSuite) TestNonMonotonicSeriesFails() {
	engine := NewEngine(nil)

	bars := suite.dailyBars(100, 101, 102)
	bars[2].Time = bars[0].Time

	cfg := RunConfig{
		Ticker:   "KRW-BTC",
		Interval: types.IntervalDay,
		Ensemble: EnsembleConfig{
			BuyThreshold:  0.5,
			SellThreshold: -0.5,
			Strategies:    []StrategyConfig{{Name: "turtle_trading", Weight: 1}},
		},
		Simulation: SimulationConfig{InitialCapital: 1000},
	}

	_, err := engine.Run(context.Background(), cfg, bars)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNonMonotonicTimestamps))
}

func (suite *EngineTestSuite) TestUnknownStrategyFails() {
	engine := NewEngine(nil)

	cfg := RunConfig{
		Ticker:   "KRW-BTC",
		Interval: types.IntervalDay,
		Ensemble: EnsembleConfig{
			BuyThreshold:  0.5,
			SellThreshold: -0.5,
			Strategies:    []StrategyConfig{{Name: "no_such_strategy", Weight: 1}},
		},
		Simulation: SimulationConfig{InitialCapital: 1000},
	}

	_, err := engine.Run(context.Background(), cfg, suite.dailyBars(100, 101))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (suite *EngineTestSuite) TestCancelledContext() {
	engine := NewEngine(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RunConfig{
		Ticker:   "KRW-BTC",
		Interval: types.IntervalDay,
		Ensemble: EnsembleConfig{
			BuyThreshold:  0.5,
			SellThreshold: -0.5,
			Strategies:    []StrategyConfig{{Name: "turtle_trading", Weight: 1}},
		},
		Simulation: SimulationConfig{InitialCapital: 1000},
	}

	_, err := engine.Run(ctx, cfg, suite.dailyBars(100, 101, 102))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBacktestCancelled))
}
