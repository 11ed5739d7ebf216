// Package marketdata loads historical price bars from CSV files. A file
// holds one ticker; the ticker name is the file name without extension.
package marketdata

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// csvTime accepts both date-only and RFC3339 timestamps.
type csvTime struct {
	time.Time
}

func (t *csvTime) UnmarshalCSV(value string) error {
	value = strings.TrimSpace(value)

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			t.Time = parsed.UTC()

			return nil
		}
	}

	return errors.Newf(errors.ErrCodeInvalidBar, "unparseable timestamp %q", value)
}

type csvRow struct {
	Time   csvTime `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// LoadBars reads one CSV file into a validated bar series.
func LoadBars(path string) ([]types.PriceBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to open %s", path)
	}
	defer file.Close()

	rows := []csvRow{}
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidBar, err, "failed to parse %s", path)
	}

	bars := make([]types.PriceBar, len(rows))
	for i, row := range rows {
		bars[i] = types.PriceBar{
			Time:   row.Time.Time,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		}
	}

	if err := types.ValidateSeries(bars); err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "invalid series in %s", path)
	}

	return bars, nil
}

// LoadDir reads every CSV file in a directory, keyed by ticker. Tickers with
// no file simply stay absent; the caller decides whether that is fatal.
func LoadDir(dir string) (map[string][]types.PriceBar, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to list %s", dir)
	}

	series := make(map[string][]types.PriceBar, len(paths))

	for _, path := range paths {
		ticker := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		bars, err := LoadBars(path)
		if err != nil {
			return nil, err
		}

		series[ticker] = bars
	}

	return series, nil
}
