package collector

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/dataset"
	"equitycollector/internal/dictionary"
	"equitycollector/internal/fetcher"
	"equitycollector/internal/testutil"
	"equitycollector/internal/yahoo"
)

var runTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func testRange(t *testing.T) DateRange {
	t.Helper()
	dr, err := ParseDateRange("2016-01-01", "2023-12-31")
	require.NoError(t, err)
	return dr
}

func prices() *dataset.Table {
	return testutil.Table(
		[]string{"Date", "Open", "High", "Low", "Close", "Volume", "Dividends", "Stock Splits"},
		[]string{"2023-12-28", "194.14", "194.66", "193.17", "193.58", "34049900", "0", "0"},
		[]string{"2023-12-29", "193.90", "194.40", "191.73", "192.53", "42628800", "0", "0"},
	)
}

// statements returns the three primary statements without the given columns
func statements(without ...string) map[yahoo.Statement]*dataset.Table {
	drop := make(map[string]bool)
	for _, w := range without {
		drop[w] = true
	}

	build := func(columns []string, values ...string) *dataset.Table {
		header := []string{dataset.DateColumn}
		row := []string{"2023-09-30"}
		for i, c := range columns {
			if drop[c] {
				continue
			}
			header = append(header, c)
			row = append(row, values[i])
		}
		return testutil.Table(header, row)
	}

	return map[yahoo.Statement]*dataset.Table{
		yahoo.Balance: build(
			[]string{"Total Assets", "Total Liabilities Net Minority Interest", "Stockholders Equity", "Ordinary Shares Number"},
			"352583000000", "290437000000", "62146000000", "15550061000"),
		yahoo.Income: build(
			[]string{"Total Revenue", "Cost Of Revenue", "EBIT", "Net Income"},
			"383285000000", "214137000000", "114301000000", "96995000000"),
		yahoo.CashFlow: build(
			[]string{"Capital Expenditure", "Operating Cash Flow"},
			"-10959000000", "110543000000"),
	}
}

func sharesHistory() *dataset.Table {
	return testutil.Table(
		[]string{dataset.DateColumn, yahoo.SharesColumn},
		[]string{"2022-09-30", "15943425000"},
		[]string{"2023-09-30", "15550061000"},
	)
}

func healthyPrimary(without ...string) *testutil.MockPrimary {
	return &testutil.MockPrimary{
		PriceHistoryFunc: func(context.Context, string, time.Time, time.Time) (*dataset.Table, error) {
			return prices(), nil
		},
		StatementsFunc: func(context.Context, string) (map[yahoo.Statement]*dataset.Table, error) {
			return statements(without...), nil
		},
		SharesHistoryFunc: func(context.Context, string) (*dataset.Table, error) {
			return sharesHistory(), nil
		},
	}
}

func supplementTables() map[alphavantage.Statement]*dataset.Table {
	return map[alphavantage.Statement]*dataset.Table{
		alphavantage.Income: testutil.Table(
			[]string{"fiscalDateEnding", "totalRevenue", "costOfRevenue", "operatingIncome"},
			[]string{"2023-09-30", "383285000000", "214137000000", "114301000000"}),
		alphavantage.Balance: testutil.Table(
			[]string{"fiscalDateEnding", "totalAssets"},
			[]string{"2023-09-30", "352583000000"}),
		alphavantage.CashFlow: testutil.Table(
			[]string{"fiscalDateEnding", "operatingCashflow", "capitalExpenditures"},
			[]string{"2023-09-30", "110543000000", "10959000000"}),
	}
}

func TestCollectCompanyData_TotalFailure(t *testing.T) {
	primary := testutil.NewFailingPrimary(fetcher.NewNetworkError(errors.New("connection refused")))
	supplement := &testutil.MockSupplement{Tables: supplementTables()}

	c := New(primary,
		WithSupplement(supplement),
		WithClock(testutil.FixedClock(runTime)),
	)

	res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))
	require.NotNil(t, res)

	assert.Equal(t, "AAPL", res.Ticker)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, runTime, res.Timestamp)
	assert.Nil(t, res.MarketData)
	assert.Nil(t, res.FinancialData)
	assert.Nil(t, res.SharesOutstanding)
	assert.NotNil(t, res.Supplement)
	assert.Empty(t, res.Supplement)
	assert.Equal(t, dictionary.CriticalFields(), res.MissingCritical)
	assert.NotNil(t, res.SupplementCoverage)
	assert.Zero(t, res.Quality.Score)

	// no financials, so no supplement even though fields are missing
	assert.Empty(t, supplement.Asked())

	sources := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		assert.Equal(t, "AAPL", e.Ticker)
		assert.Equal(t, fetcher.ErrorTypeNetwork, e.Kind)
		sources = append(sources, e.Source)
	}
	assert.Equal(t, []string{SourceMarket, SourceFinancials, SourceShares}, sources)
}

func TestCollectCompanyData_NoDataIsNotAnError(t *testing.T) {
	c := New(&testutil.MockPrimary{}, WithHybrid(false))

	res := c.CollectCompanyData(context.Background(), "ZZZZ", testRange(t))
	require.NotNil(t, res)
	assert.Empty(t, res.Errors)
	assert.Zero(t, res.Quality.Score)
}

func TestCollectCompanyData_HybridOff(t *testing.T) {
	tests := []struct {
		name       string
		shares     bool
		wantScore  float64
		wantErrors int
	}{
		{"with shares", true, 90, 0},
		{"without shares", false, 80, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := healthyPrimary("EBIT")
			if !tt.shares {
				down := fetcher.NewServerError(503)
				primary.SharesHistoryFunc = func(context.Context, string) (*dataset.Table, error) { return nil, down }
				primary.CurrentSharesFunc = func(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, down }
			}
			supplement := &testutil.MockSupplement{Tables: supplementTables()}

			c := New(primary, WithHybrid(false), WithSupplement(supplement))
			res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))

			assert.NotNil(t, res.MarketData)
			assert.NotNil(t, res.FinancialData)
			assert.Equal(t, []string{"EBIT"}, res.MissingCritical)
			assert.Empty(t, res.Supplement)
			assert.Empty(t, supplement.Asked())
			assert.Equal(t, tt.wantScore, res.Quality.Score)
			assert.Len(t, res.Errors, tt.wantErrors)
		})
	}
}

func TestCollectCompanyData_Supplemented(t *testing.T) {
	missing := []string{"Cost Of Revenue", "EBIT", "Capital Expenditure"}
	supplement := &testutil.MockSupplement{Tables: supplementTables()}
	var progress bytes.Buffer

	c := New(healthyPrimary(missing...),
		WithSupplement(supplement),
		WithProgress(&progress),
	)
	res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))

	assert.Equal(t, missing, res.MissingCritical)
	assert.Equal(t, alphavantage.Statements, supplement.Asked())
	require.Len(t, res.Supplement, 3)
	for _, stmt := range alphavantage.Statements {
		assert.NotNil(t, res.Supplement[stmt], "statement %s", stmt)
	}
	assert.True(t, res.SupplementUsed())
	assert.Equal(t, missing, res.SupplementCoverage)
	assert.Equal(t, float64(100), res.Quality.Score)
	assert.True(t, res.Quality.Supplement)

	out := progress.String()
	assert.Contains(t, out, "3 critical fields missing")
	assert.Contains(t, out, "   - EBIT")
	assert.Contains(t, out, "data quality 100.0%")
}

func TestCollectCompanyData_NothingMissing(t *testing.T) {
	supplement := &testutil.MockSupplement{Tables: supplementTables()}

	c := New(healthyPrimary(), WithSupplement(supplement))
	res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))

	assert.Empty(t, res.MissingCritical)
	assert.Empty(t, supplement.Asked())
	assert.Equal(t, float64(90), res.Quality.Score)
	assert.Contains(t, res.Availability.Available, "at")
	assert.Contains(t, res.Availability.Missing, "cash")
	assert.Contains(t, res.Availability.Computable, "me")
}

func TestCollectCompanyData_SupplementFailures(t *testing.T) {
	supplement := &testutil.MockSupplement{
		Tables: map[alphavantage.Statement]*dataset.Table{
			alphavantage.Balance: supplementTables()[alphavantage.Balance],
		},
		Err: fetcher.NewQuotaExhaustedError(25, 25),
	}

	c := New(healthyPrimary("Total Assets"), WithSupplement(supplement))
	res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))

	require.Len(t, res.Supplement, 3)
	assert.Nil(t, res.Supplement[alphavantage.Income])
	assert.NotNil(t, res.Supplement[alphavantage.Balance])
	assert.Nil(t, res.Supplement[alphavantage.CashFlow])
	assert.Equal(t, []string{"Total Assets"}, res.SupplementCoverage)
	assert.Equal(t, float64(100), res.Quality.Score)

	require.Len(t, res.Errors, 2)
	assert.Equal(t, "av_income", res.Errors[0].Source)
	assert.Equal(t, "av_cashflow", res.Errors[1].Source)
	assert.Equal(t, fetcher.ErrorTypeQuotaExhausted, res.Errors[0].Kind)
}

func TestCollectCompanyData_AllSupplementAbsent(t *testing.T) {
	supplement := &testutil.MockSupplement{}

	c := New(healthyPrimary("EBIT"), WithSupplement(supplement))
	res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))

	// an attempted supplement scores even when every statement came back empty
	assert.Len(t, res.Supplement, 3)
	assert.True(t, res.SupplementUsed())
	assert.Zero(t, res.SupplementObtained())
	assert.True(t, res.Quality.Supplement)
	assert.Equal(t, float64(100), res.Quality.Score)
	assert.Empty(t, res.Errors)
}

func TestCollectCompanyData_SharesSnapshot(t *testing.T) {
	primary := healthyPrimary()
	primary.SharesHistoryFunc = func(context.Context, string) (*dataset.Table, error) {
		return nil, fetcher.NewNoDataError("no history")
	}
	primary.CurrentSharesFunc = func(context.Context, string) (decimal.Decimal, error) {
		return decimal.RequireFromString("15441900000"), nil
	}

	c := New(primary, WithClock(testutil.FixedClock(runTime)))
	res := c.CollectCompanyData(context.Background(), "AAPL", testRange(t))

	require.NotNil(t, res.SharesOutstanding)
	assert.True(t, res.SharesSnapshot)
	assert.Equal(t, 1, res.SharesOutstanding.Len())
	assert.Equal(t, "2024-03-15 10:30:00", res.SharesOutstanding.Value(0, dataset.DateColumn).String)
	assert.Equal(t, "15441900000", res.SharesOutstanding.Value(0, yahoo.SharesColumn).String)
	assert.Empty(t, res.Errors)
}

func TestFinancials_MergeOrder(t *testing.T) {
	p := NewPrimary(healthyPrimary())

	res := p.Financials(context.Background(), "AAPL")
	table, ok := res.Get()
	require.True(t, ok)

	assert.Equal(t, []string{
		"Date",
		"Total Assets", "Total Liabilities Net Minority Interest", "Stockholders Equity", "Ordinary Shares Number",
		"Total Revenue", "Cost Of Revenue", "EBIT", "Net Income",
		"Capital Expenditure", "Operating Cash Flow",
	}, table.Columns)
	assert.Equal(t, 1, table.Len())
}

func TestCheckCompleteness(t *testing.T) {
	critical := dictionary.CriticalFields()

	tests := []struct {
		name  string
		table *dataset.Table
		want  []string
	}{
		{
			name:  "nil table",
			table: nil,
			want:  critical,
		},
		{
			name:  "all present",
			table: dataset.New(append([]string{"Date"}, critical...)...),
			want:  []string{},
		},
		{
			name:  "three missing keep order",
			table: dataset.New("Date", "Total Revenue", "Net Income", "Total Assets", "Stockholders Equity", "Total Liabilities Net Minority Interest", "Operating Cash Flow"),
			want:  []string{"Cost Of Revenue", "EBIT", "Capital Expenditure"},
		},
		{
			name:  "no columns",
			table: dataset.New(),
			want:  critical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckCompleteness(tt.table, critical))
		})
	}
}

func TestParseDateRange(t *testing.T) {
	dr, err := ParseDateRange("2016-01-01", "2023-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), dr.Start)

	_, err = ParseDateRange("2023-12-31", "2016-01-01")
	assert.Error(t, err)

	_, err = ParseDateRange("yesterday", "2016-01-01")
	assert.Error(t, err)
}
