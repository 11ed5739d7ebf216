// Package risk decides entries and exits for one ticker. The manager turns
// ensemble decisions and the common exit rules into abstract trade intents;
// it never touches cash itself. Fills are confirmed back via OnFill so the
// ledger stays the single source of truth.
package risk

import (
	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// ExitParams are the common exit rules shared by every strategy. An absent
// parameter disables the corresponding rule.
type ExitParams struct {
	// StopLossPercent fixes the stop at entry*(1-pct). Checked ahead of the
	// ATR stop when both are configured.
	StopLossPercent optional.Option[float64]
	// StopLossATRMultiplier fixes the stop at entry - ATR*multiplier, using
	// the ATR value at entry time.
	StopLossATRMultiplier optional.Option[float64]
	// TrailingStopPercent exits on a pullback of this fraction from the
	// high-water mark since entry.
	TrailingStopPercent optional.Option[float64]
	// PartialProfitTarget is the unrealized gain fraction that triggers the
	// one-shot partial exit.
	PartialProfitTarget optional.Option[float64]
	// PartialProfitRatio is the fraction of the position sold by the partial
	// exit.
	PartialProfitRatio optional.Option[float64]
}

// Config holds the sizing and exit configuration of a manager.
type Config struct {
	// MinOrderNotional rejects entries whose notional falls below it.
	MinOrderNotional float64
	// FeeRate is used to size entries so the fee can never overdraw cash.
	FeeRate float64
	// Exit holds the common exit rules.
	Exit ExitParams
}

// Manager is the per-ticker position state machine: FLAT or LONG, at most one
// open position, no pyramiding.
type Manager struct {
	cfg      Config
	ticker   string
	position *types.Position
}

// NewManager creates a manager starting FLAT.
func NewManager(ticker string, cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		ticker:   ticker,
		position: nil,
	}
}

// Position returns a copy of the open position, or None when FLAT.
func (m *Manager) Position() optional.Option[types.Position] {
	if m.position == nil {
		return optional.None[types.Position]()
	}

	return optional.Some(*m.position)
}

// Step evaluates one bar and returns the intents to execute, plus
// human-readable reasons for intents that were considered and skipped.
//
// Exit evaluation order within a step: the partial profit exit runs first,
// then at most one full exit fires, with risk control overriding the signal:
// fixed-percent stop, then ATR stop, then trailing stop, then ensemble SELL.
// A position that was
// still FLAT at the start of the step can only enter; exits begin on the
// next bar.
func (m *Manager) Step(bar types.PriceBar, decision types.Direction, availableCash float64) (intents []types.TradeIntent, skips []string) {
	if m.position == nil {
		if decision != types.DirectionBuy {
			return nil, nil
		}

		// Size so that notional + fee never exceeds cash.
		notional := availableCash / (1 + m.cfg.FeeRate)
		if notional < m.cfg.MinOrderNotional {
			return nil, []string{"entry skipped: notional below minimum order size"}
		}

		quantity := notional / bar.Close
		if quantity <= 0 {
			return nil, []string{"entry skipped: no cash available"}
		}

		return []types.TradeIntent{{
			Time:     bar.Time,
			Ticker:   m.ticker,
			Side:     types.SideBuy,
			Quantity: quantity,
			Price:    bar.Close,
			Reason:   types.ReasonEnsembleBuy,
		}}, nil
	}

	// The high-water mark only moves up.
	if bar.High > m.position.HighWaterMark {
		m.position.HighWaterMark = bar.High
	}

	remaining := m.position.Quantity

	if intent, ok := m.partialProfitIntent(bar); ok {
		intents = append(intents, intent)
		remaining -= intent.Quantity
	}

	if exit, ok := m.fullExitIntent(bar, decision, remaining); ok {
		intents = append(intents, exit)
	}

	return intents, nil
}

// OnFill confirms an executed fill and advances the state machine. entryATR
// is only read for opening fills; pass the ATR at the entry bar, None while
// the ATR is still warming up (which disables the ATR stop for the position).
func (m *Manager) OnFill(record types.TradeRecord, entryATR optional.Option[float64]) {
	switch record.Side {
	case types.SideBuy:
		m.position = &types.Position{
			Ticker:             m.ticker,
			EntryTime:          record.Time,
			EntryPrice:         record.Price,
			Quantity:           record.Quantity,
			EntryATR:           entryATR.TakeOr(0),
			HighWaterMark:      record.Price,
			PartialProfitTaken: false,
		}
	case types.SidePartialSell:
		if m.position != nil {
			m.position.Quantity -= record.Quantity
			m.position.PartialProfitTaken = true
		}
	case types.SideSell:
		m.position = nil
	}
}

func (m *Manager) partialProfitIntent(bar types.PriceBar) (types.TradeIntent, bool) {
	target := m.cfg.Exit.PartialProfitTarget
	ratio := m.cfg.Exit.PartialProfitRatio

	if m.position.PartialProfitTaken || target.IsNone() || ratio.IsNone() {
		return types.TradeIntent{}, false
	}

	if bar.Close < m.position.EntryPrice*(1+target.Unwrap()) {
		return types.TradeIntent{}, false
	}

	quantity := m.position.Quantity * ratio.Unwrap()
	if quantity <= 0 {
		return types.TradeIntent{}, false
	}

	return types.TradeIntent{
		Time:     bar.Time,
		Ticker:   m.ticker,
		Side:     types.SidePartialSell,
		Quantity: quantity,
		Price:    bar.Close,
		Reason:   types.ReasonPartialProfit,
	}, true
}

func (m *Manager) fullExitIntent(bar types.PriceBar, decision types.Direction, quantity float64) (types.TradeIntent, bool) {
	if quantity <= 0 {
		return types.TradeIntent{}, false
	}

	exit := types.TradeIntent{
		Time:     bar.Time,
		Ticker:   m.ticker,
		Side:     types.SideSell,
		Quantity: quantity,
	}

	if pct := m.cfg.Exit.StopLossPercent; pct.IsSome() {
		stopPrice := m.position.EntryPrice * (1 - pct.Unwrap())
		if bar.Low <= stopPrice {
			exit.Price = stopPrice
			exit.Reason = types.ReasonStopLoss

			return exit, true
		}
	}

	if mult := m.cfg.Exit.StopLossATRMultiplier; mult.IsSome() && m.position.EntryATR > 0 {
		stopPrice := m.position.EntryPrice - m.position.EntryATR*mult.Unwrap()
		if bar.Low <= stopPrice {
			exit.Price = stopPrice
			exit.Reason = types.ReasonStopLoss

			return exit, true
		}
	}

	if pct := m.cfg.Exit.TrailingStopPercent; pct.IsSome() {
		trailingPrice := m.position.HighWaterMark * (1 - pct.Unwrap())
		if bar.Low <= trailingPrice {
			exit.Price = trailingPrice
			exit.Reason = types.ReasonTrailingStop

			return exit, true
		}
	}

	if decision == types.DirectionSell {
		exit.Price = bar.Close
		exit.Reason = types.ReasonEnsembleSell

		return exit, true
	}

	return types.TradeIntent{}, false
}
