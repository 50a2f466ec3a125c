package yahoo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"equitycollector/internal/dataset"
	"equitycollector/internal/fetcher"
)

// Statement identifies one of the three annual financial statements
type Statement string

const (
	Income   Statement = "income"
	Balance  Statement = "balance"
	CashFlow Statement = "cashflow"
)

// SharesColumn is the value column of the shares-outstanding series
const SharesColumn = "shares_outstanding"

const (
	timeseriesPath = "/ws/fundamentals-timeseries/v1/finance/timeseries/"
	annualPrefix   = "annual"
	sharesKey      = "OrdinarySharesNumber"
)

// fundamentalsStart is the beginning of the fundamentals window
var fundamentalsStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Time-series keys requested for each statement, in column order
var statementKeys = map[Statement][]string{
	Income: {
		"TotalRevenue", "CostOfRevenue", "GrossProfit", "OperatingExpense",
		"SellingGeneralAndAdministration", "ResearchAndDevelopment", "OperatingIncome",
		"InterestExpense", "PretaxIncome", "TaxProvision", "NetIncome",
		"NetIncomeCommonStockholders", "BasicEPS", "DilutedEPS", "BasicAverageShares",
		"DilutedAverageShares", "EBIT", "EBITDA", "ReconciledDepreciation", "SpecialIncomeCharges",
	},
	Balance: {
		"TotalAssets", "CurrentAssets", "CashAndCashEquivalents", "AccountsReceivable",
		"Inventory", "GoodwillAndOtherIntangibleAssets", "InvestmentsAndAdvances", "GrossPPE",
		"NetPPE", "TotalLiabilitiesNetMinorityInterest", "CurrentLiabilities", "AccountsPayable",
		"CurrentDebt", "LongTermDebt", "TotalDebt", "IncomeTaxPayable",
		"NonCurrentDeferredTaxesLiabilities", "PreferredStock", "StockholdersEquity",
		"CommonStockEquity", "OrdinarySharesNumber", "ShareIssued", "WorkingCapital", "NetDebt",
	},
	CashFlow: {
		"OperatingCashFlow", "InvestingCashFlow", "FinancingCashFlow", "CapitalExpenditure",
		"FreeCashFlow", "RepurchaseOfCapitalStock", "IssuanceOfCapitalStock",
		"CashDividendsPaid", "DepreciationAndAmortization", "EndCashPosition",
	},
}

// StatementOrder lists the statements in the order they are merged
var StatementOrder = []Statement{Balance, Income, CashFlow}

// observation is one reported value of a time-series key
type observation struct {
	Date  string
	Value decimal.Decimal
}

// Statements fetches the three annual statements in a single request. Each
// table has a Date column plus one column per line item that has data.
func (c *Client) Statements(ctx context.Context, ticker string) (map[Statement]*dataset.Table, error) {
	var keys []string
	for _, s := range StatementOrder {
		keys = append(keys, statementKeys[s]...)
	}

	series, err := c.timeseries(ctx, ticker, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[Statement]*dataset.Table, len(StatementOrder))
	empty := true
	for _, s := range StatementOrder {
		table := buildStatement(statementKeys[s], series)
		if !table.Empty() {
			empty = false
		}
		out[s] = table
	}

	if empty {
		return nil, fetcher.NewNoDataError(fmt.Sprintf("no financial statements for %s", ticker))
	}

	return out, nil
}

// SharesHistory fetches the annual ordinary shares number as a series
func (c *Client) SharesHistory(ctx context.Context, ticker string) (*dataset.Table, error) {
	series, err := c.timeseries(ctx, ticker, []string{sharesKey})
	if err != nil {
		return nil, err
	}

	obs := series[sharesKey]
	if len(obs) == 0 {
		return nil, fetcher.NewNoDataError(fmt.Sprintf("no shares outstanding history for %s", ticker))
	}

	table := dataset.New(dataset.DateColumn, SharesColumn)
	for _, o := range obs {
		if err := table.AppendRow(dataset.Text(o.Date), dataset.Number(o.Value)); err != nil {
			return nil, err
		}
	}
	table.SortBy(dataset.DateColumn)

	return table, nil
}

func (c *Client) timeseries(ctx context.Context, ticker string, keys []string) (map[string][]observation, error) {
	types := make([]string, len(keys))
	for i, k := range keys {
		types[i] = annualPrefix + k
	}

	body, err := c.get(ctx, timeseriesPath+ticker, map[string]string{
		"symbol":  ticker,
		"type":    strings.Join(types, ","),
		"period1": strconv.FormatInt(fundamentalsStart.Unix(), 10),
		"period2": strconv.FormatInt(c.now().Unix(), 10),
	})
	if err != nil {
		return nil, err
	}

	return parseTimeseries(body)
}

// parseTimeseries reads a fundamentals time-series body. Each result names its
// key in meta.type and stores its observations under a field of that name.
func parseTimeseries(body []byte) (map[string][]observation, error) {
	if !gjson.ValidBytes(body) {
		return nil, fetcher.NewMalformedError("invalid fundamentals response", nil)
	}

	root := gjson.ParseBytes(body)
	if e := root.Get("timeseries.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fetcher.NewClientError(0, "fundamentals error: "+e.Get("description").String())
	}

	results := root.Get("timeseries.result")
	if !results.IsArray() {
		return nil, fetcher.NewMalformedError("fundamentals response has no timeseries.result", nil)
	}

	series := make(map[string][]observation)
	var parseErr error
	results.ForEach(func(_, r gjson.Result) bool {
		typ := r.Get("meta.type.0").String()
		if typ == "" {
			return true
		}
		key := strings.TrimPrefix(typ, annualPrefix)

		r.Get(gjson.Escape(typ)).ForEach(func(_, o gjson.Result) bool {
			if o.Type == gjson.Null {
				return true
			}
			raw := o.Get("reportedValue.raw")
			date := o.Get("asOfDate").String()
			if !raw.Exists() || date == "" {
				return true
			}
			v, err := decimal.NewFromString(raw.Raw)
			if err != nil {
				parseErr = fetcher.NewMalformedError(fmt.Sprintf("bad value for %s on %s", key, date), err)
				return false
			}
			series[key] = append(series[key], observation{Date: date, Value: v})
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return series, nil
}

// buildStatement pivots observations into one row per reporting date
func buildStatement(keys []string, series map[string][]observation) *dataset.Table {
	dates := make(map[string]struct{})
	var columns []string
	for _, k := range keys {
		obs := series[k]
		if len(obs) == 0 {
			continue
		}
		columns = append(columns, k)
		for _, o := range obs {
			dates[o.Date] = struct{}{}
		}
	}

	header := []string{dataset.DateColumn}
	for _, k := range columns {
		header = append(header, Title(k))
	}
	table := dataset.New(header...)

	ordered := make([]string, 0, len(dates))
	for d := range dates {
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)

	for _, d := range ordered {
		row := make(dataset.Row, len(header))
		row[0] = dataset.Text(d)
		for i, k := range columns {
			for _, o := range series[k] {
				if o.Date == d {
					row[i+1] = dataset.Number(o.Value)
					break
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// Title turns a camel-case key into the spaced column name used in
// statements: "TotalRevenue" becomes "Total Revenue", "NetPPE" becomes "Net PPE"
func Title(key string) string {
	runes := []rune(key)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
