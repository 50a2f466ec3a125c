package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/collector"
	"equitycollector/internal/config"
	"equitycollector/internal/coordinator"
	"equitycollector/internal/logging"
	"equitycollector/internal/quota"
	"equitycollector/internal/ratelimit"
	"equitycollector/internal/storage"
	"equitycollector/internal/yahoo"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the program and returns its exit code. Deferred cleanup runs
// before the process exits.
func run(args []string) int {
	// Load configuration
	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	logOpts := logging.DefaultOptions()
	logOpts.Level = cfg.LogLevel
	logOpts.Format = cfg.LogFormat
	logOpts.File = cfg.LogFile
	logger, logCloser, err := logging.New(logOpts)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nReceived interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer a.Close()

	if cfg.Schedule == "" {
		if err := a.collect(ctx); err != nil {
			logger.Error("collection failed", "error", err)
			return 1
		}
		return 0
	}

	if err := a.schedule(ctx, cfg.Schedule); err != nil {
		logger.Error("scheduler failed", "error", err)
		return 1
	}
	return 0
}

// app holds the wired components of one process
type app struct {
	tickers []string
	dates   collector.DateRange
	coord   *coordinator.Coordinator
	out     io.Writer
	logger  *slog.Logger
	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*app, error) {
	dates, err := collector.ParseDateRange(cfg.Start, cfg.End)
	if err != nil {
		return nil, err
	}

	a := &app{
		tickers: cfg.Tickers,
		dates:   dates,
		out:     out,
		logger:  logger,
	}

	limiter := ratelimit.New(map[ratelimit.API]rate.Limit{
		ratelimit.APIYahoo: rate.Limit(cfg.YahooRequestsPerSecond),
	})

	yc := yahoo.NewClient(
		yahoo.WithBaseURL(cfg.YahooBaseURL),
		yahoo.WithTimeout(cfg.YahooTimeout),
		yahoo.WithRetries(cfg.YahooRetries),
		yahoo.WithLimiter(limiter),
		yahoo.WithLogger(logger),
	)
	a.closers = append(a.closers, yc)

	counter, err := newCounter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, counter)

	av := alphavantage.NewStatementFetcher(cfg.AlphavantageAPIKey, cfg.AlphavantageBaseURL,
		alphavantage.WithHybrid(cfg.Hybrid),
		alphavantage.WithQuota(counter),
		alphavantage.WithPacer(ratelimit.NewPacer(cfg.AlphavantageCallsPerMinute, cfg.AlphavantagePaceInterval)),
		alphavantage.WithTimeout(cfg.AlphavantageTimeout),
		alphavantage.WithLogger(logger),
	)
	a.closers = append(a.closers, av)

	if cfg.Hybrid && cfg.AlphavantageAPIKey == "demo" {
		logger.Warn("using the shared demo key for Alpha Vantage; expect heavy rate limiting")
	}

	col := collector.New(yc,
		collector.WithHybrid(cfg.Hybrid),
		collector.WithSupplement(av),
		collector.WithLogger(logger),
		collector.WithProgress(out),
	)

	a.coord = coordinator.New(col, storage.NewFileSink(cfg.OutputDir),
		coordinator.WithConcurrency(cfg.Concurrency),
		coordinator.WithOutput(out),
		coordinator.WithLogger(logger),
	)

	return a, nil
}

// newCounter builds the daily ceiling counter for the configured persistence mode
func newCounter(ctx context.Context, cfg *config.Config) (*quota.Counter, error) {
	if cfg.QuotaPersistence != config.QuotaDaily {
		return quota.InProcess(cfg.AlphavantageDailyLimit), nil
	}

	store, err := quota.OpenBadgerStore(cfg.QuotaPath, "alphavantage")
	if err != nil {
		return nil, fmt.Errorf("failed to open quota store: %w", err)
	}

	counter, err := quota.NewCounter(ctx, cfg.AlphavantageDailyLimit, quota.WithStore(store))
	if err != nil {
		store.Close()
		return nil, err
	}
	return counter, nil
}

// collect runs one collection over every configured ticker
func (a *app) collect(ctx context.Context) error {
	fmt.Fprintln(a.out, "Collecting equity data...")
	fmt.Fprintln(a.out, "================================================")

	_, err := a.coord.Run(ctx, a.tickers, a.dates)

	fmt.Fprintln(a.out, "================================================")
	fmt.Fprintln(a.out, "Collection completed!")
	return err
}

// schedule runs collect on the cron spec until ctx is cancelled
func (a *app) schedule(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	if _, err := c.AddFunc(spec, func() {
		if err := a.collect(ctx); err != nil {
			a.logger.Error("scheduled collection failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	a.logger.Info("scheduler started", "schedule", spec, "tickers", len(a.tickers))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Close releases clients and the quota store
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
