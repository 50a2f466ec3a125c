// Package collector gathers market data, financial statements and shares
// outstanding for one ticker, supplementing missing critical fields from a
// secondary source. Collection is best-effort per field: it always returns a
// result, never an error.
package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/dataset"
	"equitycollector/internal/dictionary"
	"equitycollector/internal/fetcher"
)

// maxListedMissing bounds how many missing fields the progress output names
const maxListedMissing = 5

// DateRange is the price-history window, start inclusive and end exclusive
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if !s.Before(e) {
		return DateRange{}, fmt.Errorf("start date %s is not before end date %s", start, end)
	}
	return DateRange{Start: s, End: e}, nil
}

// Collector runs the collection pipeline for a ticker
type Collector struct {
	primary    *Primary
	supplement SupplementSource
	hybrid     bool
	critical   []string
	now        func() time.Time
	logger     *slog.Logger
	progress   io.Writer
}

// Option configures the Collector
type Option func(*Collector)

// WithHybrid enables supplementing from the secondary source
func WithHybrid(enabled bool) Option {
	return func(c *Collector) {
		c.hybrid = enabled
	}
}

// WithSupplement sets the secondary source
func WithSupplement(s SupplementSource) Option {
	return func(c *Collector) {
		c.supplement = s
	}
}

// WithCriticalFields overrides the critical field list
func WithCriticalFields(fields []string) Option {
	return func(c *Collector) {
		c.critical = append([]string(nil), fields...)
	}
}

// WithClock sets the clock that stamps each run
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithProgress writes human-readable step output to w
func WithProgress(w io.Writer) Option {
	return func(c *Collector) {
		c.progress = w
	}
}

// New creates a Collector over the primary source. Hybrid mode is on by
// default but has no effect until a supplement source is set.
func New(primary PrimarySource, opts ...Option) *Collector {
	c := &Collector{
		primary:  NewPrimary(primary),
		hybrid:   true,
		critical: dictionary.CriticalFields(),
		now:      time.Now,
		logger:   slog.Default(),
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hybrid reports whether supplementing is enabled
func (c *Collector) Hybrid() bool {
	return c.hybrid && c.supplement != nil
}

// CollectCompanyData runs market data, financials, shares, the completeness
// check and, when needed, the supplement, in that order. Each step is tried
// once and its failure is recorded without stopping the others.
func (c *Collector) CollectCompanyData(ctx context.Context, ticker string, dates DateRange) *CollectionResult {
	res := newResult(uuid.NewString(), ticker, c.now())
	logger := c.logger.With("ticker", ticker, "run_id", res.RunID)

	c.printf("\n%s\nCollecting data for %s\n%s\n", rule, ticker, rule)

	c.printf("\nStep 1/4: market data\n")
	market := fetcher.Func[*dataset.Table]{
		Source: SourceMarket,
		Fn: func(ctx context.Context) fetcher.Result[*dataset.Table] {
			return c.primary.MarketData(ctx, ticker, dates.Start, dates.End)
		},
	}
	if table, ok := c.run(ctx, logger, res, market); ok {
		res.MarketData = table
		c.printf("  market data: %d days\n", table.Len())
	}

	c.printf("\nStep 2/4: financial statements\n")
	financials := fetcher.Func[*dataset.Table]{
		Source: SourceFinancials,
		Fn: func(ctx context.Context) fetcher.Result[*dataset.Table] {
			return c.primary.Financials(ctx, ticker)
		},
	}
	if table, ok := c.run(ctx, logger, res, financials); ok {
		res.FinancialData = table
		c.printf("  financial statements: %d reports, %d columns\n", table.Len(), len(table.Columns))
	}

	c.printf("\nStep 3/4: shares outstanding\n")
	var snapshot bool
	shares := fetcher.Func[*dataset.Table]{
		Source: SourceShares,
		Fn: func(ctx context.Context) fetcher.Result[*dataset.Table] {
			var r fetcher.Result[*dataset.Table]
			r, snapshot = c.primary.SharesOutstanding(ctx, ticker, res.Timestamp)
			return r
		},
	}
	if table, ok := c.run(ctx, logger, res, shares); ok {
		res.SharesOutstanding = table
		res.SharesSnapshot = snapshot
		if snapshot {
			logger.Warn("shares outstanding history unavailable, using current value")
			c.printf("  shares outstanding: current value only\n")
		} else {
			c.printf("  shares outstanding: %d observations\n", table.Len())
		}
	}

	c.printf("\nStep 4/4: completeness\n")
	res.MissingCritical = CheckCompleteness(res.FinancialData, c.critical)
	if res.FinancialData != nil {
		switch {
		case len(res.MissingCritical) == 0:
			c.printf("  all %d critical fields present\n", len(c.critical))
		case c.Hybrid():
			c.printf("  %d critical fields missing:\n", len(res.MissingCritical))
			for _, name := range firstN(res.MissingCritical, maxListedMissing) {
				c.printf("   - %s\n", name)
			}
			c.supplementFrom(ctx, logger, res)
		default:
			c.printf("  %d critical fields missing, hybrid mode disabled\n", len(res.MissingCritical))
		}
	}

	res.Availability = availability(res.FinancialData, res.MarketData, res.SharesOutstanding)
	res.Quality = assess(res)

	logger.Info("collection finished",
		"score", res.Quality.Score,
		"missing_critical", len(res.MissingCritical),
		"errors", len(res.Errors))
	c.printf("\n%s\nCollection finished for %s, data quality %.1f%%\n%s\n", rule, ticker, res.Quality.Score, rule)

	return res
}

// supplementFrom fetches every secondary statement and records which missing
// fields they cover
func (c *Collector) supplementFrom(ctx context.Context, logger *slog.Logger, res *CollectionResult) {
	c.printf("\n  supplementing from secondary source...\n")

	for _, stmt := range alphavantage.Statements {
		table, ok := c.run(ctx, logger, res, fetcher.Func[*dataset.Table]{
			Source: stmt.Source(),
			Fn: func(ctx context.Context) fetcher.Result[*dataset.Table] {
				return c.supplement.Fetch(ctx, res.Ticker, stmt)
			},
		})
		if !ok {
			// a skipped or failed attempt is still listed
			res.Supplement[stmt] = nil
			continue
		}
		res.Supplement[stmt] = table
		c.printf("  %s statement: %d reports\n", stmt, table.Len())
	}

	res.SupplementCoverage = supplementCoverage(res.MissingCritical, res.Supplement)
	if len(res.SupplementCoverage) > 0 {
		c.printf("  supplement covers: %s\n", strings.Join(res.SupplementCoverage, ", "))
	}
}

// run executes one fetch and unwraps its result. Failures other than no-data
// are appended to the run's errors; no-data is only logged.
func (c *Collector) run(ctx context.Context, logger *slog.Logger, res *CollectionResult, f fetcher.Fetcher[*dataset.Table]) (*dataset.Table, bool) {
	source := f.Key()
	r := f.Fetch(ctx)
	if table, ok := r.Get(); ok && table != nil {
		return table, true
	}
	if !r.Failed() {
		return nil, false
	}

	if r.Err.Type == fetcher.ErrorTypeNoData {
		logger.Warn("no data", "source", source, "error", r.Err.Message)
		c.printf("  no data from %s\n", source)
		return nil, false
	}

	logger.Error("fetch failed", "source", source, "kind", r.Err.Type, "error", r.Err)
	c.printf("  error from %s: %v\n", source, r.Err)
	res.Errors = append(res.Errors, ErrorRecord{
		Ticker:  res.Ticker,
		Source:  source,
		Kind:    r.Err.Type,
		Message: r.Err.Error(),
	})
	return nil, false
}

func (c *Collector) printf(format string, args ...any) {
	fmt.Fprintf(c.progress, format, args...)
}

var rule = strings.Repeat("=", 60)

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
