package fetcher

import "context"

// Fetcher is the unit of work the collector runs for each data field.
// Each fetcher knows how to retrieve one piece of data for a ticker and
// provides a source label used when its failures are recorded.
type Fetcher[T any] interface {
	// Fetch retrieves the data. Failures are carried in the Result, never returned.
	Fetch(ctx context.Context) Result[T]

	// Key returns the source label for this fetcher.
	// Examples:
	//   - yahoo_market
	//   - yahoo_financials
	//   - av_income
	Key() string
}

// Func adapts a plain function into a Fetcher
type Func[T any] struct {
	Source string
	Fn     func(ctx context.Context) Result[T]
}

// Fetch implements the Fetcher interface
func (f Func[T]) Fetch(ctx context.Context) Result[T] {
	return f.Fn(ctx)
}

// Key implements the Fetcher interface
func (f Func[T]) Key() string {
	return f.Source
}
