package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/quantlab-dev/ensembletrader/internal/backtest"
	"github.com/quantlab-dev/ensembletrader/internal/logger"
	"github.com/quantlab-dev/ensembletrader/internal/marketdata"
	"github.com/quantlab-dev/ensembletrader/internal/recorder"
	"github.com/quantlab-dev/ensembletrader/internal/types"
)

func loadConfig(path string) (backtest.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return backtest.LoadConfig(data)
}

func newEngine() (*backtest.Engine, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return backtest.NewEngine(log), nil
}

func sweepProgress(label string) backtest.Progress {
	var bar *progressbar.ProgressBar

	return func(completed, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), label)
		}

		_ = bar.Set(completed)
	}
}

// runAction executes a single ensemble backtest on one CSV file.
func runAction(ctx context.Context, cmd *cli.Command) error {
	config, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	bars, err := marketdata.LoadBars(cmd.String("data"))
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	if err := config.ResolveStrategies(engine.Strategies()); err != nil {
		return err
	}

	runCfg := backtest.RunConfig{
		Ticker:     cmd.String("ticker"),
		Interval:   types.Interval(cmd.String("interval")),
		Simulation: config.Simulation,
		Ensemble:   config.Ensemble,
	}

	result, err := engine.Run(ctx, runCfg, bars)
	if err != nil {
		return err
	}

	if dbPath := cmd.String("db"); dbPath != "" {
		rec, err := recorder.New(dbPath, nil)
		if err != nil {
			return err
		}
		defer rec.Close()

		if err := rec.RecordTrades(result.RunID, result.Records); err != nil {
			return err
		}

		if err := rec.RecordReport(result.Report); err != nil {
			return err
		}
	}

	out, err := yaml.Marshal(result.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if output := cmd.String("output"); output != "" {
		return os.WriteFile(output, out, 0644)
	}

	fmt.Print(string(out))

	return nil
}

// gridAction sweeps the configured strategy across its parameter grid.
func gridAction(ctx context.Context, cmd *cli.Command) error {
	config, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	bars, err := marketdata.LoadBars(cmd.String("data"))
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	reports, err := engine.RunGridSearch(ctx, config, bars, sweepProgress("grid search"))
	if err != nil {
		return err
	}

	return types.WriteRankedReports(cmd.String("output"), reports)
}

// multiAction cross-validates champion parameter sets against every ticker
// CSV found in the data directory.
func multiAction(ctx context.Context, cmd *cli.Command) error {
	config, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	series, err := marketdata.LoadDir(cmd.String("data"))
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	reports, err := engine.RunMultiTicker(ctx, config, series, sweepProgress("multi ticker"))
	if err != nil {
		return err
	}

	return types.WriteRankedReports(cmd.String("output"), reports)
}

// schemaAction writes the JSON schema of the configuration file, for editor
// completion via yaml-language-server.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	schema, err := backtest.Config{}.GenerateSchema()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if output := cmd.String("output"); output != "" {
		return os.WriteFile(output, data, 0644)
	}

	fmt.Println(string(data))

	return nil
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the YAML configuration file",
		Required: true,
	}
}

func outputFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "output",
		Aliases:  []string{"o"},
		Usage:    "Path for the result YAML (stdout if omitted)",
		Required: required,
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run strategy ensemble backtests over historical price data",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a single ensemble backtest",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to the price bar CSV file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "ticker",
						Aliases:  []string{"t"},
						Usage:    "Ticker symbol of the data file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "interval",
						Usage: "Bar interval (day, hour, minute, minute15)",
						Value: string(types.IntervalDay),
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "Optional DuckDB path for persisting trades and the report",
					},
					outputFlag(false),
				},
				Action: runAction,
			},
			{
				Name:  "grid",
				Usage: "Sweep one strategy across its parameter grid",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to the price bar CSV file",
						Required: true,
					},
					outputFlag(true),
				},
				Action: gridAction,
			},
			{
				Name:  "multi",
				Usage: "Cross-validate champion parameter sets against a ticker universe",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Directory of per-ticker CSV files",
						Required: true,
					},
					outputFlag(true),
				},
				Action: multiAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the configuration file",
				Flags:  []cli.Flag{outputFlag(false)},
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
