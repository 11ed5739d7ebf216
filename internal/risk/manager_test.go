package risk

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

type RiskManagerTestSuite struct {
	suite.Suite
	now time.Time
}

func (suite *RiskManagerTestSuite) SetupSuite() {
	suite.now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
}

func TestRiskManagerSuite(t *testing.T) {
	suite.Run(t, new(RiskManagerTestSuite))
}

func (suite *RiskManagerTestSuite) bar(high, low, close float64) types.PriceBar {
	return types.PriceBar{
		Time:   suite.now,
		Open:   close,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 100,
	}
}

// fillRecord converts an intent into the record the ledger would produce,
// enough for OnFill to advance the state machine.
func fillRecord(intent types.TradeIntent) types.TradeRecord {
	return types.TradeRecord{
		Time:     intent.Time,
		Ticker:   intent.Ticker,
		Side:     intent.Side,
		Quantity: intent.Quantity,
		Price:    intent.Price,
		Reason:   intent.Reason,
	}
}

// open puts the manager into a LONG position at the given entry price.
func (suite *RiskManagerTestSuite) open(m *Manager, entryPrice, quantity float64, entryATR optional.Option[float64]) {
	m.OnFill(types.TradeRecord{
		Time:     suite.now,
		Ticker:   "KRW-BTC",
		Side:     types.SideBuy,
		Quantity: quantity,
		Price:    entryPrice,
	}, entryATR)
}

func (suite *RiskManagerTestSuite) TestEntrySizingReservesFee() {
	m := NewManager("KRW-BTC", Config{MinOrderNotional: 5000, FeeRate: 0.0005})

	intents, skips := m.Step(suite.bar(100, 100, 100), types.DirectionBuy, 10000)
	suite.Require().Len(intents, 1)
	suite.Empty(skips)

	intent := intents[0]
	suite.Equal(types.SideBuy, intent.Side)
	suite.Equal(types.ReasonEnsembleBuy, intent.Reason)

	// notional + fee must never exceed the cash that was available.
	notional := intent.Quantity * intent.Price
	suite.LessOrEqual(notional*(1+0.0005), 10000+1e-9)
	suite.InDelta(10000/1.0005/100, intent.Quantity, 1e-9)
}

func (suite *RiskManagerTestSuite) TestEntryBelowMinimumIsSkipped() {
	m := NewManager("KRW-BTC", Config{MinOrderNotional: 5000, FeeRate: 0.0005})

	intents, skips := m.Step(suite.bar(100, 100, 100), types.DirectionBuy, 4000)
	suite.Empty(intents)
	suite.Require().Len(skips, 1)
	suite.Contains(skips[0], "below minimum")
}

func (suite *RiskManagerTestSuite) TestHoldWhileFlatDoesNothing() {
	m := NewManager("KRW-BTC", Config{})

	intents, skips := m.Step(suite.bar(100, 100, 100), types.DirectionHold, 10000)
	suite.Empty(intents)
	suite.Empty(skips)

	intents, _ = m.Step(suite.bar(100, 100, 100), types.DirectionSell, 10000)
	suite.Empty(intents)
}

func (suite *RiskManagerTestSuite) TestStopLossBeatsEnsembleSell() {
	cfg := Config{Exit: ExitParams{
		StopLossATRMultiplier: optional.Some(2.0),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 1, optional.Some(5.0))

	// Stop sits at 100 - 5*2 = 90. The bar breaches it while the ensemble
	// also says SELL; the stop reason and stop price win.
	intents, _ := m.Step(suite.bar(95, 89, 91), types.DirectionSell, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.ReasonStopLoss, intents[0].Reason)
	suite.InDelta(90.0, intents[0].Price, 1e-9)
	suite.Equal(types.SideSell, intents[0].Side)
}

func (suite *RiskManagerTestSuite) TestPercentStopBeatsATRStop() {
	cfg := Config{Exit: ExitParams{
		StopLossPercent:       optional.Some(0.05),
		StopLossATRMultiplier: optional.Some(5.0),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 1, optional.Some(2.0))

	// Percent stop at 95, ATR stop at 100 - 2*5 = 90. The bar breaches both;
	// the percent stop fires first and fixes the fill price.
	intents, _ := m.Step(suite.bar(96, 85, 88), types.DirectionHold, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.ReasonStopLoss, intents[0].Reason)
	suite.InDelta(95.0, intents[0].Price, 1e-9)
}

func (suite *RiskManagerTestSuite) TestPercentStopWithoutEntryATR() {
	cfg := Config{Exit: ExitParams{
		StopLossPercent: optional.Some(0.1),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 1, optional.None[float64]())

	// The fixed stop needs no ATR; it fires at 90 on its own.
	intents, _ := m.Step(suite.bar(95, 88, 89), types.DirectionHold, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.ReasonStopLoss, intents[0].Reason)
	suite.InDelta(90.0, intents[0].Price, 1e-9)
}

func (suite *RiskManagerTestSuite) TestStopLossDisabledWithoutEntryATR() {
	cfg := Config{Exit: ExitParams{
		StopLossATRMultiplier: optional.Some(2.0),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 1, optional.None[float64]())

	intents, _ := m.Step(suite.bar(95, 50, 60), types.DirectionHold, 0)
	suite.Empty(intents)
}

func (suite *RiskManagerTestSuite) TestTrailingStopTracksHighWaterMark() {
	cfg := Config{Exit: ExitParams{
		TrailingStopPercent: optional.Some(0.1),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 1, optional.None[float64]())

	// Run the high up to 130; trailing trigger becomes 117.
	intents, _ := m.Step(suite.bar(130, 120, 125), types.DirectionHold, 0)
	suite.Empty(intents)

	intents, _ = m.Step(suite.bar(120, 115, 118), types.DirectionHold, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.ReasonTrailingStop, intents[0].Reason)
	suite.InDelta(117.0, intents[0].Price, 1e-9)
}

func (suite *RiskManagerTestSuite) TestEnsembleSellFillsAtClose() {
	m := NewManager("KRW-BTC", Config{})
	suite.open(m, 100, 2, optional.None[float64]())

	intents, _ := m.Step(suite.bar(110, 105, 108), types.DirectionSell, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.ReasonEnsembleSell, intents[0].Reason)
	suite.InDelta(108.0, intents[0].Price, 1e-9)
	suite.InDelta(2.0, intents[0].Quantity, 1e-9)
}

func (suite *RiskManagerTestSuite) TestPartialProfitFiresOnce() {
	cfg := Config{Exit: ExitParams{
		PartialProfitTarget: optional.Some(0.1),
		PartialProfitRatio:  optional.Some(0.5),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 2, optional.None[float64]())

	intents, _ := m.Step(suite.bar(112, 108, 111), types.DirectionHold, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.SidePartialSell, intents[0].Side)
	suite.Equal(types.ReasonPartialProfit, intents[0].Reason)
	suite.InDelta(1.0, intents[0].Quantity, 1e-9)

	m.OnFill(fillRecord(intents[0]), optional.None[float64]())

	// Still above the target on the next bar; the one-shot flag holds.
	intents, _ = m.Step(suite.bar(115, 110, 114), types.DirectionHold, 0)
	suite.Empty(intents)

	position := m.Position()
	suite.Require().True(position.IsSome())
	suite.InDelta(1.0, position.Unwrap().Quantity, 1e-9)
	suite.True(position.Unwrap().PartialProfitTaken)
}

func (suite *RiskManagerTestSuite) TestPartialExitKeepsHighWaterMark() {
	cfg := Config{Exit: ExitParams{
		PartialProfitTarget: optional.Some(0.1),
		PartialProfitRatio:  optional.Some(0.5),
		TrailingStopPercent: optional.Some(0.1),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 2, optional.None[float64]())

	// High of 130 sets the mark, and the close triggers the partial exit.
	intents, _ := m.Step(suite.bar(130, 125, 128), types.DirectionHold, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.SidePartialSell, intents[0].Side)
	m.OnFill(fillRecord(intents[0]), optional.None[float64]())

	suite.InDelta(130.0, m.Position().Unwrap().HighWaterMark, 1e-9)

	// Trailing trigger stays at 130*0.9 = 117, referenced to the pre-partial
	// high-water mark.
	intents, _ = m.Step(suite.bar(120, 116, 118), types.DirectionHold, 0)
	suite.Require().Len(intents, 1)
	suite.Equal(types.ReasonTrailingStop, intents[0].Reason)
	suite.InDelta(117.0, intents[0].Price, 1e-9)
}

func (suite *RiskManagerTestSuite) TestPartialAndStopInSameStep() {
	cfg := Config{Exit: ExitParams{
		PartialProfitTarget:   optional.Some(0.1),
		PartialProfitRatio:    optional.Some(0.5),
		StopLossATRMultiplier: optional.Some(2.0),
	}}
	m := NewManager("KRW-BTC", cfg)
	suite.open(m, 100, 2, optional.Some(5.0))

	// A wild bar: closes above the partial target but its low breached the
	// stop. Both intents fire; the full exit covers only the remainder.
	intents, _ := m.Step(suite.bar(115, 85, 112), types.DirectionHold, 0)
	suite.Require().Len(intents, 2)
	suite.Equal(types.SidePartialSell, intents[0].Side)
	suite.Equal(types.ReasonStopLoss, intents[1].Reason)
	suite.InDelta(1.0, intents[1].Quantity, 1e-9)
}

func (suite *RiskManagerTestSuite) TestOnFillSellClearsPosition() {
	m := NewManager("KRW-BTC", Config{})
	suite.open(m, 100, 1, optional.None[float64]())
	suite.True(m.Position().IsSome())

	m.OnFill(types.TradeRecord{Side: types.SideSell}, optional.None[float64]())
	suite.True(m.Position().IsNone())
}
