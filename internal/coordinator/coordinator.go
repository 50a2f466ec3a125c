package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sourcegraph/conc/pool"

	"equitycollector/internal/collector"
	"equitycollector/internal/storage"
)

// Collector collects one ticker. *collector.Collector implements it.
type Collector interface {
	CollectCompanyData(ctx context.Context, ticker string, dates collector.DateRange) *collector.CollectionResult
}

// Summary is the outcome of one ticker
type Summary struct {
	Ticker  string
	RunID   string
	Score   float64
	Missing int
	Errors  int
	Files   []string
	SaveErr error
}

// Coordinator runs the collector over a list of tickers and persists each result
type Coordinator struct {
	collector   Collector
	sink        storage.Sink
	concurrency int
	out         io.Writer
	logger      *slog.Logger
}

// Option configures the Coordinator
type Option func(*Coordinator)

// WithConcurrency sets how many tickers are collected at once
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithOutput sets where the summary lines are printed
func WithOutput(w io.Writer) Option {
	return func(c *Coordinator) {
		c.out = w
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a new Coordinator
func New(col Collector, sink storage.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		collector:   col,
		sink:        sink,
		concurrency: 1,
		out:         os.Stdout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run collects and saves every ticker, at most concurrency at a time, and
// prints one line per ticker in input order:
//   - Success: "TICKER: 90.0% (2 missing, 1 errors)"
//   - Save failure: "TICKER: ERROR - error message"
//
// Collection itself never fails; the returned error joins the save failures.
func (c *Coordinator) Run(ctx context.Context, tickers []string, dates collector.DateRange) ([]Summary, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers configured")
	}

	summaries := make([]Summary, len(tickers))

	p := pool.New().WithMaxGoroutines(c.concurrency)
	for i, ticker := range tickers {
		p.Go(func() {
			summaries[i] = c.runOne(ctx, ticker, dates)
		})
	}
	p.Wait()

	var errs []error
	for _, s := range summaries {
		if s.SaveErr != nil {
			fmt.Fprintf(c.out, "%s: ERROR - %v\n", s.Ticker, s.SaveErr)
			errs = append(errs, fmt.Errorf("%s: %w", s.Ticker, s.SaveErr))
			continue
		}
		fmt.Fprintf(c.out, "%s: %.1f%% (%d missing, %d errors)\n", s.Ticker, s.Score, s.Missing, s.Errors)
	}

	return summaries, errors.Join(errs...)
}

func (c *Coordinator) runOne(ctx context.Context, ticker string, dates collector.DateRange) Summary {
	res := c.collector.CollectCompanyData(ctx, ticker, dates)

	s := Summary{
		Ticker:  ticker,
		RunID:   res.RunID,
		Score:   res.Quality.Score,
		Missing: len(res.MissingCritical),
		Errors:  len(res.Errors),
	}

	files, err := c.sink.Save(res)
	s.Files = files
	if err != nil {
		c.logger.Error("failed to save collection", "ticker", ticker, "error", err)
		s.SaveErr = err
		return s
	}

	for _, f := range files {
		c.logger.Debug("saved", "ticker", ticker, "path", f)
	}
	return s
}
