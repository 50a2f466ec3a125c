// Package alphavantage is the secondary data source. It fetches annual
// financial statements under a daily call ceiling and a fixed per-minute pace.
package alphavantage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"resty.dev/v3"

	"equitycollector/internal/dataset"
	"equitycollector/internal/fetcher"
	"equitycollector/internal/quota"
	"equitycollector/internal/ratelimit"
)

const (
	// DefaultBaseURL is the Alpha Vantage query endpoint
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// DefaultDailyLimit is the free-tier daily call ceiling
	DefaultDailyLimit = 25

	// DefaultCallsPerMinute is the free-tier per-minute ceiling
	DefaultCallsPerMinute = 5

	// FiscalDateColumn is the period column of every statement
	FiscalDateColumn = "fiscalDateEnding"
)

// Statement identifies an annual financial statement
type Statement string

const (
	Income   Statement = "income"
	Balance  Statement = "balance"
	CashFlow Statement = "cashflow"
)

// Statements lists every statement in fetch order
var Statements = []Statement{Income, Balance, CashFlow}

// Function returns the API function selector for the statement
func (s Statement) Function() string {
	switch s {
	case Income:
		return "INCOME_STATEMENT"
	case Balance:
		return "BALANCE_SHEET"
	case CashFlow:
		return "CASH_FLOW"
	default:
		return ""
	}
}

// Source is the error-record source tag for the statement
func (s Statement) Source() string {
	return "av_" + string(s)
}

// StatementFetcher fetches statements from Alpha Vantage. All calls share one
// quota counter and one pacer, and are serialized so that the count a pause is
// based on is the count of the call that just finished.
type StatementFetcher struct {
	apiKey  string
	baseURL string
	hybrid  bool
	timeout time.Duration
	quota   *quota.Counter
	pacer   *ratelimit.Pacer
	logger  *slog.Logger

	mu   sync.Mutex
	http *resty.Client
}

// Option configures the StatementFetcher
type Option func(*StatementFetcher)

// WithHybrid enables or disables supplementary calls
func WithHybrid(enabled bool) Option {
	return func(f *StatementFetcher) {
		f.hybrid = enabled
	}
}

// WithQuota sets the daily call counter
func WithQuota(c *quota.Counter) Option {
	return func(f *StatementFetcher) {
		f.quota = c
	}
}

// WithPacer sets the pacer applied after every call
func WithPacer(p *ratelimit.Pacer) Option {
	return func(f *StatementFetcher) {
		f.pacer = p
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(f *StatementFetcher) {
		f.timeout = d
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *StatementFetcher) {
		f.logger = logger
	}
}

// NewStatementFetcher creates a new statement fetcher. Without options it is
// enabled, counts calls for the process lifetime against DefaultDailyLimit and
// paces at the free-tier rate.
func NewStatementFetcher(apiKey, baseURL string, opts ...Option) *StatementFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	f := &StatementFetcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		hybrid:  true,
		timeout: fetcher.DefaultTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.quota == nil {
		f.quota = quota.InProcess(DefaultDailyLimit)
	}
	if f.pacer == nil {
		f.pacer = ratelimit.NewPacer(DefaultCallsPerMinute, ratelimit.DefaultInterval)
	}

	// no transport retries: every attempt is one call against the ceiling
	f.http = fetcher.NewHTTPClient(f.baseURL, fetcher.ClientOptions{Timeout: f.timeout})

	return f
}

// Close releases the underlying HTTP client
func (f *StatementFetcher) Close() error {
	return f.http.Close()
}

// Enabled reports whether supplementary calls are allowed at all
func (f *StatementFetcher) Enabled() bool {
	return f.hybrid
}

// Calls returns the number of calls counted against the ceiling
func (f *StatementFetcher) Calls() int {
	return f.quota.Count()
}

// Fetch retrieves one statement for ticker.
//
// A disabled fetcher returns an absent result and a fetcher at its ceiling
// returns a quota_exhausted failure; neither touches the network or the
// counter. Otherwise exactly one request is made. When the provider answered
// with a JSON body, the call is counted and the pacer waits before the
// response is parsed. Transport failures and unparseable bodies free the slot.
func (f *StatementFetcher) Fetch(ctx context.Context, ticker string, stmt Statement) fetcher.Result[*dataset.Table] {
	if !f.hybrid {
		return fetcher.Absent[*dataset.Table]()
	}

	function := stmt.Function()
	if function == "" {
		return fetcher.Fail[*dataset.Table](fetcher.NewClientError(0, fmt.Sprintf("unknown statement %q", stmt)))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.quota.Reserve() {
		f.logger.Warn("alphavantage daily ceiling reached",
			"ticker", ticker, "statement", stmt, "calls", f.quota.Count(), "limit", f.quota.Limit())
		return fetcher.Fail[*dataset.Table](fetcher.NewQuotaExhaustedError(f.quota.Count(), f.quota.Limit()))
	}

	body, err := fetcher.Get(f.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": function,
			"symbol":   ticker,
			"apikey":   f.apiKey,
		}), "")
	if err != nil && !answered(err) {
		f.quota.Release()
		return fetcher.Fail[*dataset.Table](err)
	}
	if !gjson.ValidBytes(body) {
		f.quota.Release()
		if err == nil {
			err = fetcher.NewMalformedError("invalid alphavantage response", nil)
		}
		f.logger.Warn("alphavantage response not counted", "ticker", ticker, "statement", stmt, "error", err)
		return fetcher.Fail[*dataset.Table](err)
	}

	count, cerr := f.quota.Commit(ctx)
	if cerr != nil {
		f.logger.Warn("failed to persist alphavantage call count", "error", cerr)
	}
	f.logger.Info("alphavantage call", "ticker", ticker, "statement", stmt, "call", count, "limit", f.quota.Limit())

	pause, perr := f.pacer.Pace(ctx, count)
	f.logger.Debug("alphavantage pause", "branch", pause.String(), "call", count)

	if err != nil {
		return fetcher.Fail[*dataset.Table](err)
	}
	if perr != nil {
		return fetcher.Fail[*dataset.Table](perr)
	}

	table, err := parseStatement(ticker, stmt, body)
	if err != nil {
		return fetcher.Fail[*dataset.Table](err)
	}

	f.logger.Info("alphavantage statement fetched", "ticker", ticker, "statement", stmt, "reports", table.Len())
	return fetcher.Ok(table)
}

// answered reports whether the error came with a provider response
func answered(err error) bool {
	return !fetcher.IsType(err, fetcher.ErrorTypeNetwork) && !fetcher.IsType(err, fetcher.ErrorTypeTimeout)
}

// parseStatement converts the annualReports array into a table. Columns follow
// the key order of the first report, with keys first seen in later reports
// appended. The literal "None" is the provider's missing-value marker.
func parseStatement(ticker string, stmt Statement, body []byte) (*dataset.Table, error) {
	if !gjson.ValidBytes(body) {
		return nil, fetcher.NewMalformedError("invalid alphavantage response", nil)
	}

	root := gjson.ParseBytes(body)
	for _, key := range []string{"Note", "Information"} {
		if note := root.Get(key); note.Exists() {
			return nil, fetcher.NewRateLimitError(0, note.String())
		}
	}
	if msg := root.Get(gjson.Escape("Error Message")); msg.Exists() {
		return nil, fetcher.NewClientError(0, msg.String())
	}

	reports := root.Get("annualReports")
	if !reports.Exists() || !reports.IsArray() {
		return nil, fetcher.NewNoDataError(fmt.Sprintf("no %s statement for %s", stmt, ticker))
	}

	var columns []string
	seen := make(map[string]bool)
	var records []map[string]gjson.Result

	reports.ForEach(func(_, report gjson.Result) bool {
		record := make(map[string]gjson.Result)
		report.ForEach(func(k, v gjson.Result) bool {
			key := k.String()
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
			record[key] = v
			return true
		})
		records = append(records, record)
		return true
	})

	table := dataset.New(columns...)
	for _, record := range records {
		row := make(dataset.Row, len(columns))
		for i, col := range columns {
			v, ok := record[col]
			if !ok || v.Type == gjson.Null || v.String() == "None" {
				continue
			}
			row[i] = dataset.Text(v.String())
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}
