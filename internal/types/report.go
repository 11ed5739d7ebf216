package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PerformanceReport summarizes a single run. All percentage fields are in
// percent, not fractions. An empty trade history produces a zero-valued
// report; "no trades" is a valid outcome to evaluate.
type PerformanceReport struct {
	// ID is the unique identifier for this run.
	ID string `yaml:"id"`
	// Timestamp is when the run was executed.
	Timestamp time.Time `yaml:"timestamp"`
	// Ticker of the tested asset.
	Ticker string `yaml:"ticker"`
	// TotalReturnPct is the final equity over initial capital, minus one.
	TotalReturnPct float64 `yaml:"total_return_pct"`
	// AnnualizedReturnPct is the CAGR over the covered period.
	AnnualizedReturnPct float64 `yaml:"annualized_return_pct"`
	// MaxDrawdownPct is the worst peak-to-trough equity decline. Negative or zero.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
	// SharpeRatio is the annualized mean/stddev of per-bar returns.
	SharpeRatio float64 `yaml:"sharpe_ratio"`
	// CalmarRatio is the annualized return over the absolute max drawdown.
	CalmarRatio float64 `yaml:"calmar_ratio"`
	// ProfitFactor is gross profit over gross loss across closed trades.
	ProfitFactor float64 `yaml:"profit_factor"`
	// WinRatePct is winning exits over total exits.
	WinRatePct float64 `yaml:"win_rate_pct"`
	// AverageWin is the mean PnL of winning exits.
	AverageWin float64 `yaml:"average_win"`
	// AverageLoss is the mean PnL of losing exits. Negative or zero.
	AverageLoss float64 `yaml:"average_loss"`
	// TradeCount is the number of closed (full or partial) exits.
	TradeCount int `yaml:"trade_count"`
	// TotalFees is the sum of all fees paid.
	TotalFees float64 `yaml:"total_fees"`
	// FinalEquity is the last equity curve value.
	FinalEquity float64 `yaml:"final_equity"`
}

// RankedReport is one entry of a sweep result set. Failed combinations carry
// their error string so sibling runs are reported alongside successes.
type RankedReport struct {
	// Name identifies the combination, e.g. "GS_rsi_mean_reversion_3".
	Name string `yaml:"name"`
	// Ticker of the tested asset.
	Ticker string `yaml:"ticker"`
	// Params is the canonical "key=value, ..." rendering of the combination.
	Params string `yaml:"params"`
	// Report is the performance summary; zero-valued when Error is set.
	Report PerformanceReport `yaml:"report"`
	// Error is non-empty when the combination failed.
	Error string `yaml:"error,omitempty"`
}

// WriteRankedReports writes a sweep's ranked result set to a YAML file.
func WriteRankedReports(path string, reports []RankedReport) error {
	data, err := yaml.Marshal(reports)
	if err != nil {
		return fmt.Errorf("failed to marshal reports to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write reports to file: %w", err)
	}

	return nil
}
