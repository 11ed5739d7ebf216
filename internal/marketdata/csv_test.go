package marketdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

type CSVTestSuite struct {
	suite.Suite
	dir string
}

func (suite *CSVTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func TestCSVSuite(t *testing.T) {
	suite.Run(t, new(CSVTestSuite))
}

func (suite *CSVTestSuite) write(name, content string) string {
	path := filepath.Join(suite.dir, name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0644))

	return path
}

const sampleCSV = `time,open,high,low,close,volume
2024-01-01,100,105,95,102,1000
2024-01-02,102,110,101,108,1500
2024-01-03T00:00:00Z,108,112,106,111,900
`

func (suite *CSVTestSuite) TestLoadBars() {
	path := suite.write("KRW-BTC.csv", sampleCSV)

	bars, err := LoadBars(path)
	suite.Require().NoError(err)
	suite.Require().Len(bars, 3)

	suite.InDelta(102.0, bars[0].Close, 1e-9)
	suite.InDelta(110.0, bars[1].High, 1e-9)
	suite.Equal(2024, bars[2].Time.Year())
	suite.True(bars[0].Time.Before(bars[1].Time))
}

func (suite *CSVTestSuite) TestLoadBarsMissingFile() {
	_, err := LoadBars(filepath.Join(suite.dir, "absent.csv"))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (suite *CSVTestSuite) TestLoadBarsRejectsBadTimestamp() {
	path := suite.write("bad.csv", "time,open,high,low,close,volume\nyesterday,1,1,1,1,1\n")

	_, err := LoadBars(path)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidBar))
}

func (suite *CSVTestSuite) TestLoadBarsRejectsUnorderedSeries() {
	path := suite.write("unordered.csv", `time,open,high,low,close,volume
2024-01-02,100,105,95,102,1000
2024-01-01,102,110,101,108,1500
`)

	_, err := LoadBars(path)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNonMonotonicTimestamps))
}

func (suite *CSVTestSuite) TestLoadDirKeysByFileName() {
	suite.write("KRW-BTC.csv", sampleCSV)
	suite.write("KRW-ETH.csv", sampleCSV)

	series, err := LoadDir(suite.dir)
	suite.Require().NoError(err)
	suite.Len(series, 2)
	suite.Contains(series, "KRW-BTC")
	suite.Contains(series, "KRW-ETH")
}
