package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/dataset"
	"equitycollector/internal/fetcher"
	"equitycollector/internal/yahoo"
)

// PrimarySource provides the market and fundamentals data. *yahoo.Client implements it.
type PrimarySource interface {
	PriceHistory(ctx context.Context, ticker string, start, end time.Time) (*dataset.Table, error)
	Statements(ctx context.Context, ticker string) (map[yahoo.Statement]*dataset.Table, error)
	SharesHistory(ctx context.Context, ticker string) (*dataset.Table, error)
	CurrentShares(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// SupplementSource provides secondary statements. *alphavantage.StatementFetcher implements it.
type SupplementSource interface {
	Fetch(ctx context.Context, ticker string, stmt alphavantage.Statement) fetcher.Result[*dataset.Table]
}

// Primary turns a PrimarySource into the three isolated primary fetches
type Primary struct {
	source PrimarySource
}

// NewPrimary wraps a primary source
func NewPrimary(source PrimarySource) *Primary {
	return &Primary{source: source}
}

// MarketData fetches daily prices between start and end
func (p *Primary) MarketData(ctx context.Context, ticker string, start, end time.Time) fetcher.Result[*dataset.Table] {
	return fetcher.From(p.source.PriceHistory(ctx, ticker, start, end))
}

// Financials fetches the three statements and outer-joins them on the
// reporting date: balance sheet, then income statement, then cash flow
func (p *Primary) Financials(ctx context.Context, ticker string) fetcher.Result[*dataset.Table] {
	statements, err := p.source.Statements(ctx, ticker)
	if err != nil {
		return fetcher.Fail[*dataset.Table](err)
	}

	tables := make([]*dataset.Table, 0, len(yahoo.StatementOrder))
	for _, s := range yahoo.StatementOrder {
		tables = append(tables, statements[s])
	}

	merged := dataset.OuterJoin(dataset.DateColumn, tables...)
	if merged == nil {
		return fetcher.Fail[*dataset.Table](fetcher.NewNoDataError(fmt.Sprintf("no financial statements for %s", ticker)))
	}
	return fetcher.Ok(merged)
}

// SharesOutstanding fetches the shares history. When the history cannot be
// obtained it falls back to the current value as a single row dated at now.
// The boolean reports that fallback.
func (p *Primary) SharesOutstanding(ctx context.Context, ticker string, now time.Time) (fetcher.Result[*dataset.Table], bool) {
	history, err := p.source.SharesHistory(ctx, ticker)
	if err == nil && !history.Empty() {
		return fetcher.Ok(history), false
	}
	if err == nil {
		err = fetcher.NewNoDataError(fmt.Sprintf("no shares outstanding history for %s", ticker))
	}

	current, cerr := p.source.CurrentShares(ctx, ticker)
	if cerr != nil {
		// the history failure is the one worth reporting unless it was only empty
		if fetcher.IsType(err, fetcher.ErrorTypeNoData) {
			return fetcher.Fail[*dataset.Table](cerr), false
		}
		return fetcher.Fail[*dataset.Table](err), false
	}

	snapshot := dataset.New(dataset.DateColumn, yahoo.SharesColumn)
	if err := snapshot.AppendRow(
		dataset.Text(now.Format(time.DateTime)),
		dataset.Number(current),
	); err != nil {
		return fetcher.Fail[*dataset.Table](err), false
	}
	return fetcher.Ok(snapshot), true
}
