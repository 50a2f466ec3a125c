package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/dataset"
	"equitycollector/internal/fetcher"
	"equitycollector/internal/yahoo"
)

// MockPrimary is a mock primary source for testing. A nil func returns a
// no-data error.
type MockPrimary struct {
	PriceHistoryFunc  func(ctx context.Context, ticker string, start, end time.Time) (*dataset.Table, error)
	StatementsFunc    func(ctx context.Context, ticker string) (map[yahoo.Statement]*dataset.Table, error)
	SharesHistoryFunc func(ctx context.Context, ticker string) (*dataset.Table, error)
	CurrentSharesFunc func(ctx context.Context, ticker string) (decimal.Decimal, error)

	calls atomic.Int32
}

// PriceHistory implements the primary source
func (m *MockPrimary) PriceHistory(ctx context.Context, ticker string, start, end time.Time) (*dataset.Table, error) {
	m.calls.Add(1)
	if m.PriceHistoryFunc != nil {
		return m.PriceHistoryFunc(ctx, ticker, start, end)
	}
	return nil, fetcher.NewNoDataError("no price data for " + ticker)
}

// Statements implements the primary source
func (m *MockPrimary) Statements(ctx context.Context, ticker string) (map[yahoo.Statement]*dataset.Table, error) {
	m.calls.Add(1)
	if m.StatementsFunc != nil {
		return m.StatementsFunc(ctx, ticker)
	}
	return nil, fetcher.NewNoDataError("no financial statements for " + ticker)
}

// SharesHistory implements the primary source
func (m *MockPrimary) SharesHistory(ctx context.Context, ticker string) (*dataset.Table, error) {
	m.calls.Add(1)
	if m.SharesHistoryFunc != nil {
		return m.SharesHistoryFunc(ctx, ticker)
	}
	return nil, fetcher.NewNoDataError("no shares outstanding history for " + ticker)
}

// CurrentShares implements the primary source
func (m *MockPrimary) CurrentShares(ctx context.Context, ticker string) (decimal.Decimal, error) {
	m.calls.Add(1)
	if m.CurrentSharesFunc != nil {
		return m.CurrentSharesFunc(ctx, ticker)
	}
	return decimal.Zero, fetcher.NewNoDataError("no shares outstanding in quote for " + ticker)
}

// Calls returns the number of source calls made
func (m *MockPrimary) Calls() int {
	return int(m.calls.Load())
}

// NewFailingPrimary returns a primary source whose every call fails with err
func NewFailingPrimary(err error) *MockPrimary {
	return &MockPrimary{
		PriceHistoryFunc: func(context.Context, string, time.Time, time.Time) (*dataset.Table, error) {
			return nil, err
		},
		StatementsFunc: func(context.Context, string) (map[yahoo.Statement]*dataset.Table, error) {
			return nil, err
		},
		SharesHistoryFunc: func(context.Context, string) (*dataset.Table, error) {
			return nil, err
		},
		CurrentSharesFunc: func(context.Context, string) (decimal.Decimal, error) {
			return decimal.Zero, err
		},
	}
}

// MockSupplement is a mock secondary source. Tables maps a statement to the
// table it returns; a missing statement returns Err, or absent when Err is nil.
type MockSupplement struct {
	Tables map[alphavantage.Statement]*dataset.Table
	Err    error

	mu    sync.Mutex
	asked []alphavantage.Statement
}

// Fetch implements the secondary source
func (m *MockSupplement) Fetch(_ context.Context, _ string, stmt alphavantage.Statement) fetcher.Result[*dataset.Table] {
	m.mu.Lock()
	m.asked = append(m.asked, stmt)
	m.mu.Unlock()

	if t, ok := m.Tables[stmt]; ok {
		return fetcher.Ok(t)
	}
	if m.Err != nil {
		return fetcher.Fail[*dataset.Table](m.Err)
	}
	return fetcher.Absent[*dataset.Table]()
}

// Asked returns the statements requested so far
func (m *MockSupplement) Asked() []alphavantage.Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alphavantage.Statement(nil), m.asked...)
}

// Table builds a table from string rows; an empty string is NA
func Table(columns []string, rows ...[]string) *dataset.Table {
	t := dataset.New(columns...)
	for _, r := range rows {
		row := make(dataset.Row, len(r))
		for i, v := range r {
			if v != "" {
				row[i] = dataset.Text(v)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// RecordingSleep is a sleep function that records durations instead of waiting
type RecordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d
func (r *RecordingSleep) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

// Waits returns the recorded durations
func (r *RecordingSleep) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// FixedClock returns a clock stuck at t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
