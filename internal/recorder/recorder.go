// Package recorder persists simulation output to DuckDB so runs can be
// inspected with SQL after the process exits. The default target is an
// in-memory database; pass a file path to keep results on disk.
package recorder

import (
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/quantlab-dev/ensembletrader/internal/logger"
	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Recorder writes trade records and performance reports into DuckDB.
type Recorder struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// New opens a DuckDB database at the given path (":memory:" for a
// process-local database) and creates the result tables.
func New(path string, log *logger.Logger) (*Recorder, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeRecorderInitFailed, err, "failed to open duckdb at %s", path)
	}

	r := &Recorder{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := r.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return r, nil
}

func (r *Recorder) initialize() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_records (
			trade_id TEXT PRIMARY KEY,
			run_id TEXT,
			timestamp TIMESTAMP,
			ticker TEXT,
			side TEXT,
			quantity DOUBLE,
			price DOUBLE,
			fee DOUBLE,
			cash_after DOUBLE,
			reason TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRecorderInitFailed, "failed to create trade_records table", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_reports (
			run_id TEXT PRIMARY KEY,
			created_at TIMESTAMP,
			ticker TEXT,
			total_return_pct DOUBLE,
			annualized_return_pct DOUBLE,
			max_drawdown_pct DOUBLE,
			sharpe_ratio DOUBLE,
			calmar_ratio DOUBLE,
			profit_factor DOUBLE,
			win_rate_pct DOUBLE,
			trade_count INTEGER,
			total_fees DOUBLE,
			final_equity DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRecorderInitFailed, "failed to create run_reports table", err)
	}

	return nil
}

// RecordTrades inserts every trade of a run in one transaction.
func (r *Recorder) RecordTrades(runID string, records []types.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeRecorderWriteFailed, "failed to begin transaction", err)
	}

	for _, record := range records {
		query := r.sq.
			Insert("trade_records").
			Columns(
				"trade_id", "run_id", "timestamp", "ticker", "side",
				"quantity", "price", "fee", "cash_after", "reason",
			).
			Values(
				record.ID, runID, record.Time, record.Ticker, string(record.Side),
				record.Quantity, record.Price, record.Fee, record.CashAfter, string(record.Reason),
			).
			RunWith(tx)

		if _, err := query.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeRecorderWriteFailed, "failed to insert trade record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeRecorderWriteFailed, "failed to commit trade records", err)
	}

	r.log.Debug("recorded trades",
		zap.String("run_id", runID),
		zap.Int("count", len(records)),
	)

	return nil
}

// RecordReport inserts the performance summary of a run.
func (r *Recorder) RecordReport(report types.PerformanceReport) error {
	query := r.sq.
		Insert("run_reports").
		Columns(
			"run_id", "created_at", "ticker",
			"total_return_pct", "annualized_return_pct", "max_drawdown_pct",
			"sharpe_ratio", "calmar_ratio", "profit_factor", "win_rate_pct",
			"trade_count", "total_fees", "final_equity",
		).
		Values(
			report.ID, report.Timestamp, report.Ticker,
			report.TotalReturnPct, report.AnnualizedReturnPct, report.MaxDrawdownPct,
			report.SharpeRatio, report.CalmarRatio, report.ProfitFactor, report.WinRatePct,
			report.TradeCount, report.TotalFees, report.FinalEquity,
		).
		RunWith(r.db)

	if _, err := query.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeRecorderWriteFailed, "failed to insert run report", err)
	}

	return nil
}

// TradeCount returns the number of recorded trades for a run.
func (r *Recorder) TradeCount(runID string) (int, error) {
	query := r.sq.
		Select("COUNT(*)").
		From("trade_records").
		Where(squirrel.Eq{"run_id": runID}).
		RunWith(r.db)

	var count int
	if err := query.QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeRecorderQueryFailed, "failed to count trade records", err)
	}

	return count, nil
}

// ReportSummary is the persisted shape of a run report, read back for
// inspection and tests.
type ReportSummary struct {
	RunID          string
	Ticker         string
	TotalReturnPct float64
	TradeCount     int
	CreatedAt      time.Time
}

// Reports returns all persisted run summaries, newest first.
func (r *Recorder) Reports() ([]ReportSummary, error) {
	query := r.sq.
		Select("run_id", "ticker", "total_return_pct", "trade_count", "created_at").
		From("run_reports").
		OrderBy("created_at DESC").
		RunWith(r.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRecorderQueryFailed, "failed to query run reports", err)
	}
	defer rows.Close()

	summaries := []ReportSummary{}

	for rows.Next() {
		var summary ReportSummary
		if err := rows.Scan(&summary.RunID, &summary.Ticker, &summary.TotalReturnPct, &summary.TradeCount, &summary.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRecorderQueryFailed, "failed to scan run report", err)
		}

		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

// Close releases the underlying database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}
