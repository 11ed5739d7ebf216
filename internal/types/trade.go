package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill.
type Side string

const (
	SideBuy         Side = "BUY"
	SideSell        Side = "SELL"
	SidePartialSell Side = "PARTIAL_SELL"
)

// TradeReason identifies which rule produced a trade intent.
type TradeReason string

const (
	ReasonEnsembleBuy   TradeReason = "ensemble_buy"
	ReasonEnsembleSell  TradeReason = "ensemble_sell"
	ReasonStopLoss      TradeReason = "stop_loss"
	ReasonTrailingStop  TradeReason = "trailing_stop"
	ReasonPartialProfit TradeReason = "partial_profit"
)

// TradeIntent is an abstract order emitted by the risk manager. The ledger is
// the only component that turns an intent into a fill; actual exchange
// submission lives outside this module.
type TradeIntent struct {
	Time     time.Time
	Ticker   string
	Side     Side
	Quantity float64
	Price    float64
	Reason   TradeReason
}

// TradeRecord is an immutable, append-only audit entry for a fill. The ledger
// writes a record before mutating state so the final portfolio can always be
// reconstructed by replaying records over the initial capital.
type TradeRecord struct {
	ID        string      `yaml:"id" csv:"id"`
	Time      time.Time   `yaml:"time" csv:"time"`
	Ticker    string      `yaml:"ticker" csv:"ticker"`
	Side      Side        `yaml:"side" csv:"side"`
	Quantity  float64     `yaml:"quantity" csv:"quantity"`
	Price     float64     `yaml:"price" csv:"price"`
	Fee       float64     `yaml:"fee" csv:"fee"`
	CashAfter float64     `yaml:"cash_after" csv:"cash_after"`
	Reason    TradeReason `yaml:"reason" csv:"reason"`
}

// Notional returns quantity x price.
func (r TradeRecord) Notional() float64 {
	return r.Quantity * r.Price
}

// Position is the open long position for one ticker. At most one position per
// ticker exists at any time; there is no pyramiding.
type Position struct {
	Ticker    string
	EntryTime time.Time
	// EntryPrice is the fill price of the opening trade.
	EntryPrice float64
	Quantity   float64
	// EntryATR is the ATR at entry time. The stop-loss level is fixed from it
	// and never recomputed while the position is open. Zero when the ATR was
	// still warming up at entry, which disables the ATR stop.
	EntryATR float64
	// HighWaterMark is the highest price seen since entry; it only moves up.
	HighWaterMark float64
	// PartialProfitTaken marks that the one-shot partial exit already fired.
	PartialProfitTaken bool
}

// PortfolioState is a snapshot of the ledger. Cash arithmetic is carried in
// decimals so repeated fee debits cannot drift.
type PortfolioState struct {
	Cash        decimal.Decimal
	Holdings    map[string]decimal.Decimal
	RealizedPnL decimal.Decimal
	TotalFees   decimal.Decimal
}

// HoldingQuantity returns the held quantity for a ticker, zero when flat.
func (s PortfolioState) HoldingQuantity(ticker string) decimal.Decimal {
	if qty, ok := s.Holdings[ticker]; ok {
		return qty
	}

	return decimal.Zero
}

// EquityPoint is one sample of the equity curve: cash plus holdings marked at
// the bar close.
type EquityPoint struct {
	Time  time.Time `yaml:"time"`
	Value float64   `yaml:"value"`
}
