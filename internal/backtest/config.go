package backtest

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/quantlab-dev/ensembletrader/internal/risk"
	"github.com/quantlab-dev/ensembletrader/internal/strategy"
	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

const (
	defaultWorkers       = 4
	defaultATRPeriod     = 14
	defaultBuyThreshold  = 0.5
	defaultSellThreshold = -0.5
)

// SimulationConfig holds portfolio-level run parameters.
type SimulationConfig struct {
	InitialCapital   float64                    `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting capital for the run,minimum=0"`
	MinOrderNotional float64                    `yaml:"min_order_notional" json:"min_order_notional" validate:"gte=0" jsonschema:"title=Minimum Order Notional"`
	FeeRate          float64                    `yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1" jsonschema:"title=Fee Rate,description=Fee as a fraction of notional"`
	StartTime        optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the tested period"`
	EndTime          optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the tested period"`
}

// UnmarshalYAML implements custom unmarshaling for SimulationConfig so absent
// dates become None instead of the zero time.
func (c *SimulationConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain struct {
		InitialCapital   float64    `yaml:"initial_capital"`
		MinOrderNotional float64    `yaml:"min_order_notional"`
		FeeRate          float64    `yaml:"fee_rate"`
		StartTime        *time.Time `yaml:"start_time"`
		EndTime          *time.Time `yaml:"end_time"`
	}

	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}

	c.InitialCapital = p.InitialCapital
	c.MinOrderNotional = p.MinOrderNotional
	c.FeeRate = p.FeeRate
	c.StartTime = optional.FromNillable(p.StartTime)
	c.EndTime = optional.FromNillable(p.EndTime)

	return nil
}

// ExitParamsConfig mirrors risk.ExitParams in YAML form. Absent values
// disable the corresponding rule.
type ExitParamsConfig struct {
	StopLossPercent       *float64 `yaml:"stop_loss_percent" json:"stop_loss_percent" jsonschema:"title=Stop Loss Percent,description=Fixed stop as a fraction below the entry price"`
	StopLossATRMultiplier *float64 `yaml:"stop_loss_atr_multiplier" json:"stop_loss_atr_multiplier" jsonschema:"title=Stop Loss ATR Multiplier"`
	TrailingStopPercent   *float64 `yaml:"trailing_stop_percent" json:"trailing_stop_percent" jsonschema:"title=Trailing Stop Percent"`
	PartialProfitTarget   *float64 `yaml:"partial_profit_target" json:"partial_profit_target" jsonschema:"title=Partial Profit Target"`
	PartialProfitRatio    *float64 `yaml:"partial_profit_ratio" json:"partial_profit_ratio" jsonschema:"title=Partial Profit Ratio"`
	ATRPeriod             int      `yaml:"atr_period" json:"atr_period" validate:"gte=0" jsonschema:"title=ATR Period,description=Lookback for the stop-loss ATR"`
}

// ToRiskParams converts the YAML form into the risk manager's parameters.
func (c ExitParamsConfig) ToRiskParams() risk.ExitParams {
	return risk.ExitParams{
		StopLossPercent:       optional.FromNillable(c.StopLossPercent),
		StopLossATRMultiplier: optional.FromNillable(c.StopLossATRMultiplier),
		TrailingStopPercent:   optional.FromNillable(c.TrailingStopPercent),
		PartialProfitTarget:   optional.FromNillable(c.PartialProfitTarget),
		PartialProfitRatio:    optional.FromNillable(c.PartialProfitRatio),
	}
}

// StrategyConfig is one weighted ensemble member.
type StrategyConfig struct {
	Name   string          `yaml:"name" json:"name" validate:"required" jsonschema:"title=Strategy Name"`
	Weight float64         `yaml:"weight" json:"weight" validate:"gte=0" jsonschema:"title=Weight"`
	Params strategy.Params `yaml:"params" json:"params" jsonschema:"title=Strategy Parameters"`
}

// EnsembleConfig is the ensemble decision configuration.
type EnsembleConfig struct {
	BuyThreshold     float64          `yaml:"buy_threshold" json:"buy_threshold" jsonschema:"title=Buy Threshold"`
	SellThreshold    float64          `yaml:"sell_threshold" json:"sell_threshold" jsonschema:"title=Sell Threshold"`
	Strategies       []StrategyConfig `yaml:"strategies" json:"strategies" validate:"dive" jsonschema:"title=Strategies"`
	CommonExitParams ExitParamsConfig `yaml:"common_exit_params" json:"common_exit_params" jsonschema:"title=Common Exit Parameters"`
}

// GridSearchConfig sweeps one strategy on one ticker across the Cartesian
// product of the parameter grid.
type GridSearchConfig struct {
	TargetTicker       string               `yaml:"target_ticker" json:"target_ticker" validate:"required" jsonschema:"title=Target Ticker"`
	TargetStrategyName string               `yaml:"target_strategy_name" json:"target_strategy_name" validate:"required" jsonschema:"title=Target Strategy"`
	TargetInterval     types.Interval       `yaml:"target_interval" json:"target_interval" jsonschema:"title=Target Interval"`
	ParamGrid          map[string][]float64 `yaml:"param_grid" json:"param_grid" validate:"min=1" jsonschema:"title=Parameter Grid"`
	BaseParams         strategy.Params      `yaml:"base_params" json:"base_params" jsonschema:"title=Base Parameters"`
}

// ChampionConfig is one fixed parameter set reused across tickers.
type ChampionConfig struct {
	Name         string          `yaml:"name" json:"name" validate:"required" jsonschema:"title=Champion Name"`
	StrategyName string          `yaml:"strategy_name" json:"strategy_name" validate:"required" jsonschema:"title=Strategy Name"`
	Params       strategy.Params `yaml:"params" json:"params" jsonschema:"title=Parameters"`
}

// MultiTickerConfig runs champion parameter sets against a ticker universe.
type MultiTickerConfig struct {
	TickersToTest  []string         `yaml:"tickers_to_test" json:"tickers_to_test" validate:"min=1" jsonschema:"title=Tickers To Test"`
	TargetInterval types.Interval   `yaml:"target_interval" json:"target_interval" jsonschema:"title=Target Interval"`
	ChampionsToRun []ChampionConfig `yaml:"champions_to_run" json:"champions_to_run" validate:"min=1,dive" jsonschema:"title=Champions To Run"`
}

// Config is the immutable top-level configuration, constructed once at
// process start and passed into components; nothing reads ambient globals.
type Config struct {
	Simulation  SimulationConfig   `yaml:"simulation" json:"simulation"`
	Ensemble    EnsembleConfig     `yaml:"ensemble" json:"ensemble"`
	GridSearch  *GridSearchConfig  `yaml:"grid_search" json:"grid_search,omitempty"`
	MultiTicker *MultiTickerConfig `yaml:"multi_ticker" json:"multi_ticker,omitempty"`
	// Workers bounds concurrent sweep runs.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0" jsonschema:"title=Workers,description=Maximum concurrent sweep runs"`
}

// LoadConfig parses and validates a YAML configuration. All structural
// validation happens here, before any simulation step runs.
func LoadConfig(data []byte) (Config, error) {
	config := Config{}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config YAML", err)
	}

	config.applyDefaults()

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "config validation failed", err)
	}

	if config.GridSearch != nil {
		for key, values := range config.GridSearch.ParamGrid {
			if len(values) == 0 {
				return Config{}, errors.Newf(errors.ErrCodeInvalidGrid,
					"param_grid entry %q has no candidate values", key)
			}
		}
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}

	if c.Ensemble.CommonExitParams.ATRPeriod == 0 {
		c.Ensemble.CommonExitParams.ATRPeriod = defaultATRPeriod
	}

	if c.Ensemble.BuyThreshold == 0 && c.Ensemble.SellThreshold == 0 {
		c.Ensemble.BuyThreshold = defaultBuyThreshold
		c.Ensemble.SellThreshold = defaultSellThreshold
	}

	if c.GridSearch != nil && c.GridSearch.TargetInterval == "" {
		c.GridSearch.TargetInterval = types.IntervalDay
	}

	if c.MultiTicker != nil && c.MultiTicker.TargetInterval == "" {
		c.MultiTicker.TargetInterval = types.IntervalDay
	}
}

// ResolveStrategies checks that every configured strategy name, including
// the grid-search target and every champion, resolves against the registry.
// Unknown names are configuration errors, never silent no-ops.
func (c Config) ResolveStrategies(registry *strategy.Registry) error {
	for _, sc := range c.Ensemble.Strategies {
		if _, err := registry.Get(sc.Name); err != nil {
			return err
		}
	}

	if c.GridSearch != nil {
		if _, err := registry.Get(c.GridSearch.TargetStrategyName); err != nil {
			return err
		}
	}

	if c.MultiTicker != nil {
		for _, champion := range c.MultiTicker.ChampionsToRun {
			if _, err := registry.Get(champion.StrategyName); err != nil {
				return err
			}
		}
	}

	return nil
}

// GenerateSchema generates a JSON schema for the configuration.
func (c Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			return nil
		},
	}

	return reflector.Reflect(&c), nil
}
