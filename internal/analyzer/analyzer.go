// Package analyzer computes summary statistics from a run's trade records
// and equity curve. It is a pure function of the ledger's output and never
// mutates ledger state.
package analyzer

import (
	"math"

	"github.com/quantlab-dev/ensembletrader/internal/types"
)

// Summarize builds a performance report. An empty history yields a
// zero-valued report: "no trades" is a valid outcome to evaluate, not an
// error. The caller fills in run identity fields (ID, ticker, timestamp).
func Summarize(records []types.TradeRecord, equity []types.EquityPoint, initialCapital float64, interval types.Interval) types.PerformanceReport {
	report := types.PerformanceReport{}

	if len(equity) > 0 && initialCapital > 0 {
		finalEquity := equity[len(equity)-1].Value
		report.FinalEquity = finalEquity
		report.TotalReturnPct = (finalEquity/initialCapital - 1) * 100
		report.MaxDrawdownPct = maxDrawdownPct(equity)
		report.SharpeRatio = sharpeRatio(equity, interval)
		report.AnnualizedReturnPct = annualizedReturnPct(equity, initialCapital, report.TotalReturnPct)

		if report.MaxDrawdownPct != 0 {
			report.CalmarRatio = report.AnnualizedReturnPct / math.Abs(report.MaxDrawdownPct)
		}
	}

	summarizeTrades(&report, records)

	return report
}

// maxDrawdownPct returns the worst peak-to-trough decline in percent,
// negative or zero.
func maxDrawdownPct(equity []types.EquityPoint) float64 {
	peak := equity[0].Value
	worst := 0.0

	for _, point := range equity {
		if point.Value > peak {
			peak = point.Value
		}

		if peak > 0 {
			drawdown := point.Value/peak - 1
			if drawdown < worst {
				worst = drawdown
			}
		}
	}

	return worst * 100
}

// sharpeRatio annualizes the mean over the sample standard deviation of
// per-bar returns.
func sharpeRatio(equity []types.EquityPoint, interval types.Interval) float64 {
	if len(equity) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)

	for i := 1; i < len(equity); i++ {
		if equity[i-1].Value > 0 {
			returns = append(returns, equity[i].Value/equity[i-1].Value-1)
		}
	}

	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}

	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}

	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 {
		return 0
	}

	return mean / std * math.Sqrt(interval.PeriodsPerYear())
}

func annualizedReturnPct(equity []types.EquityPoint, initialCapital, totalReturnPct float64) float64 {
	span := equity[len(equity)-1].Time.Sub(equity[0].Time)

	years := span.Hours() / (24 * 365.25)
	if years <= 0 {
		return totalReturnPct
	}

	finalEquity := equity[len(equity)-1].Value
	if finalEquity <= 0 {
		return -100
	}

	return (math.Pow(finalEquity/initialCapital, 1/years) - 1) * 100
}

// summarizeTrades pairs each exit with its entry price to produce per-exit
// PnL. Partial exits count as their own closed trades.
func summarizeTrades(report *types.PerformanceReport, records []types.TradeRecord) {
	var (
		entryPrice  float64
		inPosition  bool
		grossProfit float64
		grossLoss   float64
		winCount    int
		lossCount   int
		winSum      float64
		lossSum     float64
	)

	for _, record := range records {
		report.TotalFees += record.Fee

		switch record.Side {
		case types.SideBuy:
			entryPrice = record.Price
			inPosition = true
		case types.SideSell, types.SidePartialSell:
			if !inPosition {
				continue
			}

			pnl := (record.Price - entryPrice) * record.Quantity
			report.TradeCount++

			if pnl > 0 {
				winCount++
				winSum += pnl
				grossProfit += pnl
			} else {
				lossCount++
				lossSum += pnl
				grossLoss += -pnl
			}

			if record.Side == types.SideSell {
				inPosition = false
			}
		}
	}

	if report.TradeCount > 0 {
		report.WinRatePct = float64(winCount) / float64(report.TradeCount) * 100
	}

	if winCount > 0 {
		report.AverageWin = winSum / float64(winCount)
	}

	if lossCount > 0 {
		report.AverageLoss = lossSum / float64(lossCount)
	}

	switch {
	case grossLoss > 0:
		report.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		report.ProfitFactor = math.Inf(1)
	}
}
