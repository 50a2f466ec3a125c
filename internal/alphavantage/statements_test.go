package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"equitycollector/internal/fetcher"
	"equitycollector/internal/quota"
	"equitycollector/internal/ratelimit"
)

const incomeBody = `{
	"symbol": "AAPL",
	"annualReports": [
		{"fiscalDateEnding": "2023-09-30", "reportedCurrency": "USD", "totalRevenue": "383285000000", "costOfRevenue": "214137000000", "ebit": "114301000000", "netIncome": "96995000000"},
		{"fiscalDateEnding": "2022-09-30", "reportedCurrency": "USD", "totalRevenue": "394328000000", "costOfRevenue": "223546000000", "ebit": "None", "netIncome": "99803000000"}
	],
	"quarterlyReports": []
}`

// recordingSleep captures the pauses taken by the pacer
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleep) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newPacer(perMinute int, sleep *recordingSleep) *ratelimit.Pacer {
	p := ratelimit.NewPacer(perMinute, 12*time.Second)
	p.Sleep = sleep.Sleep
	return p
}

func newServer(t *testing.T, body string, requests *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewStatementFetcher(t *testing.T) {
	f := NewStatementFetcher("test_api_key", "")
	defer f.Close()

	if f.apiKey != "test_api_key" {
		t.Errorf("apiKey = %q, want %q", f.apiKey, "test_api_key")
	}
	if f.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", f.baseURL, DefaultBaseURL)
	}
	if !f.Enabled() {
		t.Error("fetcher should be enabled by default")
	}
	if f.quota.Limit() != DefaultDailyLimit {
		t.Errorf("daily limit = %d, want %d", f.quota.Limit(), DefaultDailyLimit)
	}
	if f.pacer.PerMinute != DefaultCallsPerMinute {
		t.Errorf("per minute = %d, want %d", f.pacer.PerMinute, DefaultCallsPerMinute)
	}
}

func TestStatement_Function(t *testing.T) {
	tests := []struct {
		stmt     Statement
		function string
		source   string
	}{
		{Income, "INCOME_STATEMENT", "av_income"},
		{Balance, "BALANCE_SHEET", "av_balance"},
		{CashFlow, "CASH_FLOW", "av_cashflow"},
		{Statement("dividends"), "", "av_dividends"},
	}

	for _, tt := range tests {
		t.Run(string(tt.stmt), func(t *testing.T) {
			if got := tt.stmt.Function(); got != tt.function {
				t.Errorf("Function() = %q, want %q", got, tt.function)
			}
			if got := tt.stmt.Source(); got != tt.source {
				t.Errorf("Source() = %q, want %q", got, tt.source)
			}
		})
	}
}

func TestFetch_Success(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		q := r.URL.Query()
		if q.Get("function") != "INCOME_STATEMENT" {
			t.Errorf("function = %q, want INCOME_STATEMENT", q.Get("function"))
		}
		if q.Get("symbol") != "AAPL" {
			t.Errorf("symbol = %q, want AAPL", q.Get("symbol"))
		}
		if q.Get("apikey") != "test_key" {
			t.Errorf("apikey = %q, want test_key", q.Get("apikey"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(incomeBody))
	}))
	defer server.Close()

	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", server.URL, WithPacer(newPacer(5, sleep)))
	defer f.Close()

	res := f.Fetch(context.Background(), "AAPL", Income)
	if res.Failed() {
		t.Fatalf("Fetch() returned unexpected error: %v", res.Err)
	}

	table, ok := res.Get()
	if !ok {
		t.Fatal("Fetch() returned no table")
	}

	wantColumns := "fiscalDateEnding,reportedCurrency,totalRevenue,costOfRevenue,ebit,netIncome"
	if got := strings.Join(table.Columns, ","); got != wantColumns {
		t.Errorf("columns = %q, want %q", got, wantColumns)
	}
	if table.Len() != 2 {
		t.Fatalf("rows = %d, want 2", table.Len())
	}
	if got := table.Value(0, "totalRevenue").String; got != "383285000000" {
		t.Errorf("totalRevenue = %q, want 383285000000", got)
	}
	if got := table.Value(1, "ebit"); got.Valid {
		t.Errorf("ebit for 2022 = %q, want NA", got.String)
	}

	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
	if f.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", f.Calls())
	}
	if waits := sleep.Waits(); len(waits) != 1 || waits[0] != 12*time.Second {
		t.Errorf("waits = %v, want [12s]", waits)
	}
}

func TestFetch_HybridDisabled(t *testing.T) {
	var requests int32
	server := newServer(t, incomeBody, &requests)

	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", server.URL, WithHybrid(false), WithPacer(newPacer(5, sleep)))
	defer f.Close()

	for _, stmt := range Statements {
		res := f.Fetch(context.Background(), "AAPL", stmt)
		if res.Present() || res.Failed() {
			t.Errorf("Fetch(%s) = %+v, want absent", stmt, res)
		}
	}

	if requests != 0 {
		t.Errorf("requests = %d, want 0", requests)
	}
	if f.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0", f.Calls())
	}
	if len(sleep.Waits()) != 0 {
		t.Errorf("waits = %v, want none", sleep.Waits())
	}
}

func TestFetch_CeilingReached(t *testing.T) {
	var requests int32
	server := newServer(t, incomeBody, &requests)

	counter := quota.InProcess(2)
	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", server.URL, WithQuota(counter), WithPacer(newPacer(5, sleep)))
	defer f.Close()

	for i := 0; i < 2; i++ {
		if res := f.Fetch(context.Background(), "AAPL", Income); !res.Present() {
			t.Fatalf("call %d: Fetch() = %+v, want table", i+1, res)
		}
	}

	for i := 0; i < 5; i++ {
		res := f.Fetch(context.Background(), "AAPL", Balance)
		if !res.Failed() || res.Err.Type != fetcher.ErrorTypeQuotaExhausted {
			t.Errorf("Fetch() past ceiling = %+v, want quota_exhausted", res)
		}
	}

	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if counter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", counter.Count())
	}
	if got := len(sleep.Waits()); got != 2 {
		t.Errorf("pauses = %d, want 2", got)
	}
}

func TestFetch_PacingBranches(t *testing.T) {
	var requests int32
	server := newServer(t, incomeBody, &requests)

	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", server.URL,
		WithQuota(quota.InProcess(25)),
		WithPacer(newPacer(5, sleep)),
	)
	defer f.Close()

	for i := 0; i < 10; i++ {
		f.Fetch(context.Background(), "AAPL", Statements[i%len(Statements)])
	}

	want := []time.Duration{
		12 * time.Second, 12 * time.Second, 12 * time.Second, 12 * time.Second, 60 * time.Second,
		12 * time.Second, 12 * time.Second, 12 * time.Second, 12 * time.Second, 60 * time.Second,
	}
	got := sleep.Waits()
	if len(got) != len(want) {
		t.Fatalf("waits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("wait after call %d = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestFetch_ResponseKinds(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType fetcher.ErrorType
	}{
		{
			name:     "no annual reports",
			body:     `{}`,
			wantType: fetcher.ErrorTypeNoData,
		},
		{
			name:     "throttle note",
			body:     `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`,
			wantType: fetcher.ErrorTypeRateLimit,
		},
		{
			name:     "information",
			body:     `{"Information": "We have detected your API key as demo."}`,
			wantType: fetcher.ErrorTypeRateLimit,
		},
		{
			name:     "error message",
			body:     `{"Error Message": "Invalid API call."}`,
			wantType: fetcher.ErrorTypeClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests int32
			server := newServer(t, tt.body, &requests)

			sleep := &recordingSleep{}
			f := NewStatementFetcher("test_key", server.URL, WithPacer(newPacer(5, sleep)))
			defer f.Close()

			res := f.Fetch(context.Background(), "AAPL", CashFlow)
			if !res.Failed() {
				t.Fatalf("Fetch() = %+v, want failure", res)
			}
			if res.Err.Type != tt.wantType {
				t.Errorf("error type = %s, want %s", res.Err.Type, tt.wantType)
			}

			// the provider answered, so the call counts and is paced
			if f.Calls() != 1 {
				t.Errorf("Calls() = %d, want 1", f.Calls())
			}
			if len(sleep.Waits()) != 1 {
				t.Errorf("waits = %v, want one pause", sleep.Waits())
			}
		})
	}
}

func TestFetch_HTTPError(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCalls int
		wantWaits int
	}{
		{"empty body", "", 0, 0},
		{"json body", `{"Information": "Service temporarily unavailable."}`, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			sleep := &recordingSleep{}
			f := NewStatementFetcher("test_key", server.URL, WithPacer(newPacer(5, sleep)))
			defer f.Close()

			res := f.Fetch(context.Background(), "AAPL", Income)
			if !res.Failed() || res.Err.Type != fetcher.ErrorTypeServer {
				t.Fatalf("Fetch() = %+v, want server error", res)
			}
			if f.Calls() != tt.wantCalls {
				t.Errorf("Calls() = %d, want %d", f.Calls(), tt.wantCalls)
			}
			if len(sleep.Waits()) != tt.wantWaits {
				t.Errorf("waits = %v, want %d", sleep.Waits(), tt.wantWaits)
			}
		})
	}
}

func TestFetch_UnparseableBodyNotCounted(t *testing.T) {
	var requests int32
	server := newServer(t, `<html>maintenance</html>`, &requests)

	counter := quota.InProcess(1)
	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", server.URL, WithQuota(counter), WithPacer(newPacer(5, sleep)))
	defer f.Close()

	res := f.Fetch(context.Background(), "AAPL", Balance)
	if !res.Failed() || res.Err.Type != fetcher.ErrorTypeMalformed {
		t.Fatalf("Fetch() = %+v, want malformed error", res)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
	if counter.Count() != 0 {
		t.Errorf("Count() = %d, want 0", counter.Count())
	}
	if len(sleep.Waits()) != 0 {
		t.Errorf("waits = %v, want none", sleep.Waits())
	}
	if !counter.Reserve() {
		t.Error("slot was not released")
	}
}

func TestFetch_NoResponseReleasesSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	counter := quota.InProcess(1)
	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", url, WithQuota(counter), WithPacer(newPacer(5, sleep)))
	defer f.Close()

	res := f.Fetch(context.Background(), "AAPL", Income)
	if !res.Failed() || res.Err.Type != fetcher.ErrorTypeNetwork {
		t.Fatalf("Fetch() = %+v, want network error", res)
	}
	if counter.Count() != 0 {
		t.Errorf("Count() = %d, want 0", counter.Count())
	}
	if len(sleep.Waits()) != 0 {
		t.Errorf("waits = %v, want none", sleep.Waits())
	}
	if !counter.Reserve() {
		t.Error("slot was not released")
	}
}

func TestFetch_ConcurrentCallersShareCeiling(t *testing.T) {
	var requests int32
	server := newServer(t, incomeBody, &requests)

	sleep := &recordingSleep{}
	f := NewStatementFetcher("test_key", server.URL,
		WithQuota(quota.InProcess(4)),
		WithPacer(newPacer(5, sleep)),
	)
	defer f.Close()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Fetch(context.Background(), "MSFT", Balance)
		}()
	}
	wg.Wait()

	if requests != 4 {
		t.Errorf("requests = %d, want 4", requests)
	}
	if f.Calls() != 4 {
		t.Errorf("Calls() = %d, want 4", f.Calls())
	}
}
