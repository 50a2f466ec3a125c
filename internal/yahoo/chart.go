package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"equitycollector/internal/dataset"
	"equitycollector/internal/fetcher"
)

// Price history columns
var priceColumns = []string{
	dataset.DateColumn, "Open", "High", "Low", "Close", "Volume", "Dividends", "Stock Splits",
}

// chartResponse maps the chart API response. Price arrays hold null on days
// without a print, hence the pointers.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string `json:"currency"`
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Date        int64   `json:"date"`
					Numerator   float64 `json:"numerator"`
					Denominator float64 `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// PriceHistory fetches daily OHLCV rows between start (inclusive) and end
// (exclusive), with dividend amounts and split ratios on their ex-dates
func (c *Client) PriceHistory(ctx context.Context, ticker string, start, end time.Time) (*dataset.Table, error) {
	body, err := c.get(ctx, "/v8/finance/chart/"+ticker, map[string]string{
		"interval": "1d",
		"period1":  strconv.FormatInt(start.Unix(), 10),
		"period2":  strconv.FormatInt(end.Unix(), 10),
		"events":   "div,splits",
	})
	if err != nil {
		// unknown symbols come back as 404 with a chart error body
		if fetcher.IsType(err, fetcher.ErrorTypeClient) && len(body) > 0 {
			var resp chartResponse
			if json.Unmarshal(body, &resp) == nil && resp.Chart.Error != nil {
				return nil, fetcher.NewNoDataError(fmt.Sprintf("no price data for %s: %s", ticker, resp.Chart.Error.Description))
			}
		}
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fetcher.NewMalformedError("failed to parse chart response", err)
	}

	return parseChart(ticker, resp)
}

func parseChart(ticker string, resp chartResponse) (*dataset.Table, error) {
	if len(resp.Chart.Result) == 0 {
		return nil, fetcher.NewNoDataError(fmt.Sprintf("no price data for %s", ticker))
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, fetcher.NewNoDataError(fmt.Sprintf("no price data for %s", ticker))
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fetcher.NewMalformedError("chart response has no quote indicators", nil)
	}

	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n ||
		len(quote.Close) != n || len(quote.Volume) != n {
		return nil, fetcher.NewMalformedError("mismatched data lengths", nil)
	}

	day := func(ts int64) string {
		return time.Unix(ts+result.Meta.GMTOffset, 0).UTC().Format(time.DateOnly)
	}

	dividends := make(map[string]decimal.Decimal)
	for _, d := range result.Events.Dividends {
		dividends[day(d.Date)] = dividends[day(d.Date)].Add(decimal.NewFromFloat(d.Amount))
	}
	splits := make(map[string]decimal.Decimal)
	for _, s := range result.Events.Splits {
		if s.Denominator == 0 {
			continue
		}
		splits[day(s.Date)] = decimal.NewFromFloat(s.Numerator).Div(decimal.NewFromFloat(s.Denominator))
	}

	table := dataset.New(priceColumns...)
	for i, ts := range result.Timestamp {
		date := day(ts)

		volume := dataset.NA
		if v := quote.Volume[i]; v != nil {
			volume = dataset.Number(decimal.NewFromFloat(*v).Truncate(0))
		}

		if err := table.AppendRow(
			dataset.Text(date),
			dataset.Float(quote.Open[i]),
			dataset.Float(quote.High[i]),
			dataset.Float(quote.Low[i]),
			dataset.Float(quote.Close[i]),
			volume,
			dataset.Number(dividends[date]),
			dataset.Number(splits[date]),
		); err != nil {
			return nil, err
		}
	}

	return table, nil
}
