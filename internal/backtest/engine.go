// Package backtest replays a price series through the signal, ensemble, risk
// and ledger components, and orchestrates parameter sweeps across runs.
package backtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/quantlab-dev/ensembletrader/internal/analyzer"
	"github.com/quantlab-dev/ensembletrader/internal/ensemble"
	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/ledger"
	"github.com/quantlab-dev/ensembletrader/internal/logger"
	"github.com/quantlab-dev/ensembletrader/internal/risk"
	"github.com/quantlab-dev/ensembletrader/internal/strategy"
	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Engine runs backtests. One engine can serve many concurrent runs; each run
// owns its own ledger and risk manager and shares only the immutable
// registries.
type Engine struct {
	log        *logger.Logger
	strategies *strategy.Registry
	indicators *indicator.Registry
}

// NewEngine creates an engine with the built-in strategy and indicator
// registries. A nil logger disables logging.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{
		log:        log,
		strategies: strategy.NewRegistry(),
		indicators: indicator.NewRegistry(),
	}
}

// Strategies exposes the strategy registry so callers can register their own
// generators before running.
func (e *Engine) Strategies() *strategy.Registry {
	return e.strategies
}

// RunConfig is the resolved configuration of a single run.
type RunConfig struct {
	Ticker     string
	Interval   types.Interval
	Simulation SimulationConfig
	Ensemble   EnsembleConfig
	// Auxiliary holds precomputed series (fear-greed index, macro data) keyed
	// by series name, each keyed by bar timestamp. They are merged into the
	// indicator set before signal generation; timestamps without a sample
	// yield not-available values. A name already produced by the built-in
	// registry is kept as computed.
	Auxiliary map[string]map[time.Time]float64
}

// SkippedDecision records an intended trade that was skipped by a
// per-timestamp execution error. Skips never abort the run.
type SkippedDecision struct {
	Time   time.Time
	Reason string
}

// RunResult is the full output of a single run.
type RunResult struct {
	RunID   string
	Ticker  string
	Report  types.PerformanceReport
	Records []types.TradeRecord
	Equity  []types.EquityPoint
	Final   types.PortfolioState
	Skipped []SkippedDecision
}

// Run executes one backtest. Configuration and data validation complete
// before the first timestamp is processed; per-timestamp execution errors
// are absorbed into the result's skip list. Bars are processed strictly in
// increasing time order and each timestamp's processing is atomic: the
// context is only checked between bars.
func (e *Engine) Run(ctx context.Context, cfg RunConfig, bars []types.PriceBar) (*RunResult, error) {
	runID := uuid.New().String()

	if err := types.ValidateSeries(bars); err != nil {
		return nil, err
	}

	bars = types.FilterByTimeRange(bars, cfg.Simulation.StartTime, cfg.Simulation.EndTime)
	if len(bars) == 0 {
		return nil, errors.New(errors.ErrCodeEmptySeries, "no bars remain after date-range filtering")
	}

	strategies, weights, err := e.resolveEnsemble(cfg.Ensemble)
	if err != nil {
		return nil, err
	}

	combiner, err := ensemble.NewCombiner(weights, cfg.Ensemble.BuyThreshold, cfg.Ensemble.SellThreshold)
	if err != nil {
		return nil, err
	}

	atrSpec, specs := e.collectIndicatorSpecs(cfg, strategies)

	indicators, err := e.indicators.ComputeAll(bars, specs)
	if err != nil {
		return nil, err
	}

	for name, samples := range cfg.Auxiliary {
		if _, ok := indicators[name]; ok {
			continue
		}

		indicators[name] = indicator.AlignToBarTimes(bars, samples)
	}

	signals := make([][]types.Signal, len(strategies))

	for i, member := range strategies {
		generated, err := member.impl.Generate(bars, indicators, member.params)
		if err != nil {
			return nil, err
		}

		if len(generated) != len(bars) {
			return nil, errors.Newf(errors.ErrCodeSeriesLengthMismatch,
				"strategy %q produced %d signals for %d bars", member.impl.Name(), len(generated), len(bars))
		}

		signals[i] = generated
	}

	book, err := ledger.New(cfg.Simulation.InitialCapital, cfg.Simulation.FeeRate)
	if err != nil {
		return nil, err
	}

	riskManager := risk.NewManager(cfg.Ticker, risk.Config{
		MinOrderNotional: cfg.Simulation.MinOrderNotional,
		FeeRate:          cfg.Simulation.FeeRate,
		Exit:             cfg.Ensemble.CommonExitParams.ToRiskParams(),
	})

	var atrSeries indicator.Series
	if atrSpec.IsSome() {
		atrSeries = indicators[atrSpec.Unwrap().Name()]
	}

	result := &RunResult{
		RunID:  runID,
		Ticker: cfg.Ticker,
	}

	strengths := make([]optional.Option[float64], len(strategies))

	for t, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrCodeBacktestCancelled, "backtest cancelled", ctx.Err())
		default:
		}

		for i := range signals {
			strengths[i] = signals[i][t].Strength
		}

		score, err := combiner.Combine(bar.Time, strengths)
		if err != nil {
			return nil, err
		}

		intents, skips := riskManager.Step(bar, score.Decision, book.Cash())

		for _, reason := range skips {
			e.log.Debug("decision skipped",
				zap.String("run_id", runID),
				zap.String("ticker", cfg.Ticker),
				zap.Time("bar", bar.Time),
				zap.String("reason", reason),
			)
			result.Skipped = append(result.Skipped, SkippedDecision{Time: bar.Time, Reason: reason})
		}

		for _, intent := range intents {
			record, err := book.Apply(intent)
			if err != nil {
				if errors.IsExecutionError(err) {
					e.log.Debug("fill rejected",
						zap.String("run_id", runID),
						zap.String("ticker", cfg.Ticker),
						zap.Time("bar", bar.Time),
						zap.Error(err),
					)
					result.Skipped = append(result.Skipped, SkippedDecision{Time: bar.Time, Reason: err.Error()})

					continue
				}

				return nil, err
			}

			entryATR := optional.None[float64]()
			if atrSeries != nil {
				entryATR = atrSeries[t]
			}

			riskManager.OnFill(record, entryATR)
		}

		book.MarkToMarket(bar.Time, map[string]float64{cfg.Ticker: bar.Close})
	}

	result.Records = book.Records()
	result.Equity = book.EquityCurve()
	result.Final = book.State()

	report := analyzer.Summarize(result.Records, result.Equity, cfg.Simulation.InitialCapital, cfg.Interval)
	report.ID = runID
	report.Timestamp = time.Now()
	report.Ticker = cfg.Ticker
	result.Report = report

	e.log.Info("run completed",
		zap.String("run_id", runID),
		zap.String("ticker", cfg.Ticker),
		zap.Float64("total_return_pct", report.TotalReturnPct),
		zap.Int("trades", report.TradeCount),
	)

	return result, nil
}

type ensembleMember struct {
	impl   strategy.Strategy
	params strategy.Params
}

func (e *Engine) resolveEnsemble(cfg EnsembleConfig) ([]ensembleMember, []float64, error) {
	if len(cfg.Strategies) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidConfiguration, "ensemble has no strategies configured")
	}

	members := make([]ensembleMember, len(cfg.Strategies))
	weights := make([]float64, len(cfg.Strategies))

	for i, sc := range cfg.Strategies {
		impl, err := e.strategies.Get(sc.Name)
		if err != nil {
			return nil, nil, err
		}

		members[i] = ensembleMember{impl: impl, params: sc.Params}
		weights[i] = sc.Weight
	}

	return members, weights, nil
}

// collectIndicatorSpecs unions every strategy's required indicators with the
// ATR the stop-loss rule reads at entry time.
func (e *Engine) collectIndicatorSpecs(cfg RunConfig, members []ensembleMember) (optional.Option[indicator.Spec], []indicator.Spec) {
	var specs []indicator.Spec

	for _, member := range members {
		specs = append(specs, member.impl.RequiredIndicators(member.params)...)
	}

	atrSpec := optional.None[indicator.Spec]()

	if cfg.Ensemble.CommonExitParams.StopLossATRMultiplier != nil {
		period := cfg.Ensemble.CommonExitParams.ATRPeriod
		if period <= 0 {
			period = defaultATRPeriod
		}

		spec := indicator.Spec{Kind: indicator.KindATR, Period: period}
		atrSpec = optional.Some(spec)
		specs = append(specs, spec)
	}

	return atrSpec, specs
}
