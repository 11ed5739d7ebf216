// Package ledger is the single source of truth for cash, holdings, fees and
// realized PnL. All money arithmetic is carried in decimals so repeated fee
// debits cannot drift, and every mutation is preceded by an immutable
// TradeRecord so the final state can be reconstructed by replay.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

var (
	// quantityTolerance absorbs float rounding when a sell intent slightly
	// overshoots the held quantity.
	quantityTolerance = decimal.New(1, -9)
	// cashTolerance absorbs float rounding when a full-cash buy, recomputed
	// exactly, lands a hair above the available balance. The debit is clamped
	// to cash so an all-in entry is never rejected over dust.
	cashTolerance = decimal.New(1, -6)
)

type holding struct {
	quantity decimal.Decimal
	// avgEntry is the average entry price including fees, the basis for
	// realized PnL on exits.
	avgEntry decimal.Decimal
}

// Ledger tracks one portfolio through a simulated or live timeline.
type Ledger struct {
	feeRate        decimal.Decimal
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	holdings       map[string]*holding
	realizedPnL    decimal.Decimal
	totalFees      decimal.Decimal
	records        []types.TradeRecord
	equity         []types.EquityPoint
}

// New creates a ledger with the given starting capital and fee rate.
func New(initialCapital, feeRate float64) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"initial capital must be positive, got %f", initialCapital)
	}

	if feeRate < 0 || feeRate >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"fee rate must be in [0, 1), got %f", feeRate)
	}

	capital := decimal.NewFromFloat(initialCapital)

	return &Ledger{
		feeRate:        decimal.NewFromFloat(feeRate),
		initialCapital: capital,
		cash:           capital,
		holdings:       make(map[string]*holding),
		realizedPnL:    decimal.Zero,
		totalFees:      decimal.Zero,
		records:        nil,
		equity:         nil,
	}, nil
}

// Apply executes a trade intent against the portfolio. The fee is
// notional x fee rate and is always debited from cash, never netted against
// PnL. A BUY whose notional plus fee exceeds available cash beyond the dust
// tolerance is rejected whole, never partially filled; an overshoot inside
// the tolerance debits exactly the remaining cash.
func (l *Ledger) Apply(intent types.TradeIntent) (types.TradeRecord, error) {
	quantity := decimal.NewFromFloat(intent.Quantity)
	price := decimal.NewFromFloat(intent.Price)

	if quantity.IsNegative() || quantity.IsZero() || price.IsNegative() || price.IsZero() {
		return types.TradeRecord{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"fill must have positive quantity and price, got %f @ %f", intent.Quantity, intent.Price)
	}

	switch intent.Side {
	case types.SideBuy:
		return l.applyBuy(intent, quantity, price)
	case types.SideSell, types.SidePartialSell:
		return l.applySell(intent, quantity, price)
	default:
		return types.TradeRecord{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"unknown trade side %q", intent.Side)
	}
}

func (l *Ledger) applyBuy(intent types.TradeIntent, quantity, price decimal.Decimal) (types.TradeRecord, error) {
	notional := quantity.Mul(price)
	fee := notional.Mul(l.feeRate)
	total := notional.Add(fee)

	if total.GreaterThan(l.cash) {
		if total.Sub(l.cash).GreaterThan(cashTolerance) {
			return types.TradeRecord{}, errors.Newf(errors.ErrCodeInsufficientCash,
				"buy of %s requires %s but only %s cash is available",
				intent.Ticker, total.String(), l.cash.String())
		}

		total = l.cash
	}

	cashAfter := l.cash.Sub(total)
	record := l.newRecord(intent, fee, cashAfter)

	// Record first, then mutate, preserving replayability.
	l.records = append(l.records, record)
	l.cash = cashAfter
	l.totalFees = l.totalFees.Add(fee)

	h, ok := l.holdings[intent.Ticker]
	if !ok {
		h = &holding{quantity: decimal.Zero, avgEntry: decimal.Zero}
		l.holdings[intent.Ticker] = h
	}

	// Average entry includes the fee.
	newQuantity := h.quantity.Add(quantity)
	cost := h.avgEntry.Mul(h.quantity).Add(total)
	h.quantity = newQuantity
	h.avgEntry = cost.Div(newQuantity)

	return record, nil
}

func (l *Ledger) applySell(intent types.TradeIntent, quantity, price decimal.Decimal) (types.TradeRecord, error) {
	h, ok := l.holdings[intent.Ticker]
	if !ok || h.quantity.IsZero() {
		return types.TradeRecord{}, errors.Newf(errors.ErrCodeInsufficientHolding,
			"sell of %s with no open holding", intent.Ticker)
	}

	if quantity.GreaterThan(h.quantity) {
		if quantity.Sub(h.quantity).GreaterThan(quantityTolerance) {
			return types.TradeRecord{}, errors.Newf(errors.ErrCodeInsufficientHolding,
				"sell of %s for %s exceeds held quantity %s",
				intent.Ticker, quantity.String(), h.quantity.String())
		}

		quantity = h.quantity
	}

	notional := quantity.Mul(price)
	fee := notional.Mul(l.feeRate)
	cashAfter := l.cash.Add(notional).Sub(fee)
	record := l.newRecord(intent, fee, cashAfter)

	l.records = append(l.records, record)
	l.cash = cashAfter
	l.totalFees = l.totalFees.Add(fee)
	// The entry fee is inside avgEntry; the exit fee stays in totalFees and
	// is never silently netted against PnL.
	l.realizedPnL = l.realizedPnL.Add(price.Sub(h.avgEntry).Mul(quantity))

	h.quantity = h.quantity.Sub(quantity)
	if h.quantity.LessThanOrEqual(quantityTolerance) {
		delete(l.holdings, intent.Ticker)
	}

	return record, nil
}

func (l *Ledger) newRecord(intent types.TradeIntent, fee, cashAfter decimal.Decimal) types.TradeRecord {
	return types.TradeRecord{
		ID:        uuid.New().String(),
		Time:      intent.Time,
		Ticker:    intent.Ticker,
		Side:      intent.Side,
		Quantity:  intent.Quantity,
		Price:     intent.Price,
		Fee:       fee.InexactFloat64(),
		CashAfter: cashAfter.InexactFloat64(),
		Reason:    intent.Reason,
	}
}

// MarkToMarket appends an equity curve sample: cash plus every holding
// valued at its close price.
func (l *Ledger) MarkToMarket(t time.Time, closes map[string]float64) {
	value := l.cash

	for ticker, h := range l.holdings {
		if closePrice, ok := closes[ticker]; ok {
			value = value.Add(h.quantity.Mul(decimal.NewFromFloat(closePrice)))
		}
	}

	l.equity = append(l.equity, types.EquityPoint{
		Time:  t,
		Value: value.InexactFloat64(),
	})
}

// Cash returns the available cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash.InexactFloat64()
}

// Records returns the append-only trade audit trail.
func (l *Ledger) Records() []types.TradeRecord {
	return l.records
}

// EquityCurve returns the recorded equity samples.
func (l *Ledger) EquityCurve() []types.EquityPoint {
	return l.equity
}

// State returns a snapshot of the portfolio.
func (l *Ledger) State() types.PortfolioState {
	holdings := make(map[string]decimal.Decimal, len(l.holdings))
	for ticker, h := range l.holdings {
		holdings[ticker] = h.quantity
	}

	return types.PortfolioState{
		Cash:        l.cash,
		Holdings:    holdings,
		RealizedPnL: l.realizedPnL,
		TotalFees:   l.totalFees,
	}
}

// Replay reconstructs the portfolio state by re-applying a record sequence
// over the initial capital. Every record's cash balance is cross-checked; a
// mismatch means the trail and the parameters disagree.
func Replay(initialCapital, feeRate float64, records []types.TradeRecord) (types.PortfolioState, error) {
	replayed, err := New(initialCapital, feeRate)
	if err != nil {
		return types.PortfolioState{}, err
	}

	for _, record := range records {
		applied, err := replayed.Apply(types.TradeIntent{
			Time:     record.Time,
			Ticker:   record.Ticker,
			Side:     record.Side,
			Quantity: record.Quantity,
			Price:    record.Price,
			Reason:   record.Reason,
		})
		if err != nil {
			return types.PortfolioState{}, errors.Wrapf(errors.ErrCodeReplayMismatch, err,
				"replay failed at record %s", record.ID)
		}

		diff := decimal.NewFromFloat(applied.CashAfter).Sub(decimal.NewFromFloat(record.CashAfter)).Abs()
		if diff.GreaterThan(cashTolerance) {
			return types.PortfolioState{}, errors.Newf(errors.ErrCodeReplayMismatch,
				"replayed cash %f diverges from recorded %f at record %s",
				applied.CashAfter, record.CashAfter, record.ID)
		}
	}

	return replayed.State(), nil
}
