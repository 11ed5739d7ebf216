package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/quantlab-dev/ensembletrader/internal/strategy"
	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Progress is called after each sweep run completes. May be nil.
type Progress func(completed, total int)

// paramPair is one key=value assignment of a grid combination.
type paramPair struct {
	Key   string
	Value float64
}

// paramCombination is one point of the Cartesian product, ordered by key so
// naming and tie-breaking stay deterministic.
type paramCombination []paramPair

// Canonical renders the combination as "k1=v1, k2=v2, ...".
func (c paramCombination) Canonical() string {
	parts := make([]string, len(c))
	for i, pair := range c {
		parts[i] = fmt.Sprintf("%s=%g", pair.Key, pair.Value)
	}

	return strings.Join(parts, ", ")
}

// ensemble-level keys recognized inside a parameter grid; everything else is
// handed to the strategy.
const (
	gridKeyBuyThreshold  = "buy_threshold"
	gridKeySellThreshold = "sell_threshold"
)

// RunGridSearch sweeps the configured strategy across the Cartesian product
// of the parameter grid. Each combination runs an independent simulation
// with a fresh portfolio; combinations execute concurrently up to
// cfg.Workers. A failing combination is reported alongside its siblings and
// never aborts them. Results come back ranked.
func (e *Engine) RunGridSearch(ctx context.Context, cfg Config, bars []types.PriceBar, progress Progress) ([]types.RankedReport, error) {
	gs := cfg.GridSearch
	if gs == nil {
		return nil, errors.New(errors.ErrCodeBacktestConfigError, "grid_search section is not configured")
	}

	if err := cfg.ResolveStrategies(e.strategies); err != nil {
		return nil, err
	}

	combinations := expandGrid(gs.ParamGrid)
	if len(combinations) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidGrid, "parameter grid expands to no combinations")
	}

	results := make([]types.RankedReport, len(combinations))

	var completed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Workers)

	for i, combination := range combinations {
		group.Go(func() error {
			name := fmt.Sprintf("GS_%s_%d", gs.TargetStrategyName, i)
			results[i] = types.RankedReport{
				Name:   name,
				Ticker: gs.TargetTicker,
				Params: combination.Canonical(),
			}

			runCfg := e.singleStrategyRunConfig(cfg, gs.TargetTicker, gs.TargetInterval, gs.TargetStrategyName, gs.BaseParams, combination)

			result, err := e.Run(groupCtx, runCfg, bars)
			if err != nil {
				if errors.HasCode(err, errors.ErrCodeBacktestCancelled) {
					return err
				}

				results[i].Error = err.Error()
			} else {
				results[i].Report = result.Report
			}

			if progress != nil {
				progress(int(completed.Add(1)), len(combinations))
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	rankReports(results)

	return results, nil
}

// singleStrategyRunConfig builds the run configuration for one sweep
// combination: the target strategy alone with weight 1, base parameters
// overlaid with the combination. The buy_threshold and sell_threshold grid
// keys adjust the ensemble thresholds instead of the strategy parameters.
func (e *Engine) singleStrategyRunConfig(cfg Config, ticker string, interval types.Interval, strategyName string, base strategy.Params, combination paramCombination) RunConfig {
	ensembleCfg := EnsembleConfig{
		BuyThreshold:     cfg.Ensemble.BuyThreshold,
		SellThreshold:    cfg.Ensemble.SellThreshold,
		CommonExitParams: cfg.Ensemble.CommonExitParams,
	}

	params := make(strategy.Params)
	params = params.Merge(base)

	for _, pair := range combination {
		switch pair.Key {
		case gridKeyBuyThreshold:
			ensembleCfg.BuyThreshold = pair.Value
		case gridKeySellThreshold:
			ensembleCfg.SellThreshold = pair.Value
		default:
			params[pair.Key] = pair.Value
		}
	}

	ensembleCfg.Strategies = []StrategyConfig{{
		Name:   strategyName,
		Weight: 1,
		Params: params,
	}}

	return RunConfig{
		Ticker:     ticker,
		Interval:   interval,
		Simulation: cfg.Simulation,
		Ensemble:   ensembleCfg,
	}
}

// expandGrid produces the Cartesian product of the grid in a deterministic
// order: keys sorted, values in their configured order.
func expandGrid(grid map[string][]float64) []paramCombination {
	keys := make([]string, 0, len(grid))
	for key := range grid {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	combinations := []paramCombination{{}}

	for _, key := range keys {
		expanded := make([]paramCombination, 0, len(combinations)*len(grid[key]))

		for _, prefix := range combinations {
			for _, value := range grid[key] {
				combination := make(paramCombination, len(prefix), len(prefix)+1)
				copy(combination, prefix)
				combination = append(combination, paramPair{Key: key, Value: value})
				expanded = append(expanded, combination)
			}
		}

		combinations = expanded
	}

	return combinations
}

// rankReports sorts in place: successful runs first by total return
// descending, ties by smaller max drawdown, remaining ties by the canonical
// parameter string; failed runs go last, ordered by name.
func rankReports(reports []types.RankedReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]

		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}

		if a.Error != "" {
			return a.Name < b.Name
		}

		if a.Report.TotalReturnPct != b.Report.TotalReturnPct {
			return a.Report.TotalReturnPct > b.Report.TotalReturnPct
		}

		// MaxDrawdownPct is negative; a larger value means a shallower drawdown.
		if a.Report.MaxDrawdownPct != b.Report.MaxDrawdownPct {
			return a.Report.MaxDrawdownPct > b.Report.MaxDrawdownPct
		}

		return a.Params < b.Params
	})
}
