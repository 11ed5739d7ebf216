package backtest

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// RunMultiTicker cross-validates every configured champion against every
// ticker. Each (champion, ticker) pair is an independent simulation; a
// ticker with no price data yields a failed report for each champion rather
// than aborting the sweep. Results are grouped by ticker and ranked by total
// return within each group.
func (e *Engine) RunMultiTicker(ctx context.Context, cfg Config, series map[string][]types.PriceBar, progress Progress) ([]types.RankedReport, error) {
	mt := cfg.MultiTicker
	if mt == nil {
		return nil, errors.New(errors.ErrCodeBacktestConfigError, "multi_ticker section is not configured")
	}

	if err := cfg.ResolveStrategies(e.strategies); err != nil {
		return nil, err
	}

	type pair struct {
		champion ChampionConfig
		ticker   string
	}

	pairs := make([]pair, 0, len(mt.ChampionsToRun)*len(mt.TickersToTest))
	for _, champion := range mt.ChampionsToRun {
		for _, ticker := range mt.TickersToTest {
			pairs = append(pairs, pair{champion: champion, ticker: ticker})
		}
	}

	if len(pairs) == 0 {
		return nil, errors.New(errors.ErrCodeBacktestConfigError, "multi_ticker requires at least one champion and one ticker")
	}

	results := make([]types.RankedReport, len(pairs))

	var completed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Workers)

	for i, p := range pairs {
		group.Go(func() error {
			results[i] = types.RankedReport{
				Name:   p.champion.Name,
				Ticker: p.ticker,
			}

			bars, ok := series[p.ticker]
			if !ok || len(bars) == 0 {
				results[i].Error = errors.Newf(errors.ErrCodeDataNotFound, "no price data for ticker %s", p.ticker).Error()
			} else {
				runCfg := e.singleStrategyRunConfig(cfg, p.ticker, mt.TargetInterval, p.champion.StrategyName, p.champion.Params, nil)

				result, err := e.Run(groupCtx, runCfg, bars)
				if err != nil {
					if errors.HasCode(err, errors.ErrCodeBacktestCancelled) {
						return err
					}

					results[i].Error = err.Error()
				} else {
					results[i].Report = result.Report
				}
			}

			if progress != nil {
				progress(int(completed.Add(1)), len(pairs))
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Ticker != results[j].Ticker {
			return results[i].Ticker < results[j].Ticker
		}

		if (results[i].Error == "") != (results[j].Error == "") {
			return results[i].Error == ""
		}

		if results[i].Report.TotalReturnPct != results[j].Report.TotalReturnPct {
			return results[i].Report.TotalReturnPct > results[j].Report.TotalReturnPct
		}

		return results[i].Name < results[j].Name
	})

	return results, nil
}
