package yahoo

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"equitycollector/internal/fetcher"
)

// CurrentShares returns the latest shares outstanding reported in the quote
func (c *Client) CurrentShares(ctx context.Context, ticker string) (decimal.Decimal, error) {
	body, err := c.get(ctx, "/v7/finance/quote", map[string]string{
		"symbols": ticker,
	})
	if err != nil {
		return decimal.Zero, err
	}

	if !gjson.ValidBytes(body) {
		return decimal.Zero, fetcher.NewMalformedError("invalid quote response", nil)
	}

	raw := gjson.GetBytes(body, "quoteResponse.result.0.sharesOutstanding")
	if !raw.Exists() || raw.Type == gjson.Null {
		return decimal.Zero, fetcher.NewNoDataError(fmt.Sprintf("no shares outstanding in quote for %s", ticker))
	}

	shares, err := decimal.NewFromString(raw.Raw)
	if err != nil {
		return decimal.Zero, fetcher.NewMalformedError("bad sharesOutstanding value", err)
	}
	if !shares.IsPositive() {
		return decimal.Zero, fetcher.NewNoDataError(fmt.Sprintf("no shares outstanding in quote for %s", ticker))
	}

	return shares, nil
}
