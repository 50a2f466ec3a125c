package collector

import (
	"fmt"
	"time"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/dataset"
	"equitycollector/internal/fetcher"
)

// Error sources recorded in ErrorRecord.Source
const (
	SourceMarket     = "yahoo_market"
	SourceFinancials = "yahoo_financials"
	SourceShares     = "yahoo_shares"
)

// ErrorRecord is one failed sub-fetch of a collection run
type ErrorRecord struct {
	Ticker  string
	Source  string
	Kind    fetcher.ErrorType
	Message string
}

func (e ErrorRecord) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Ticker, e.Source, e.Kind, e.Message)
}

// CollectionResult is everything gathered for one ticker. Every field is
// initialised; a nil table means that piece of data is absent.
type CollectionResult struct {
	RunID     string
	Ticker    string
	Timestamp time.Time

	MarketData        *dataset.Table
	FinancialData     *dataset.Table
	SharesOutstanding *dataset.Table
	// SharesSnapshot marks a single-row current value instead of a history
	SharesSnapshot bool

	// Supplement holds one entry per attempted statement, nil when the attempt produced nothing
	Supplement map[alphavantage.Statement]*dataset.Table

	// MissingCritical lists the critical fields absent from FinancialData
	MissingCritical []string
	// SupplementCoverage lists the missing critical fields found in a supplement table
	SupplementCoverage []string
	// Availability of the critical dictionary codes in FinancialData
	Availability Availability

	Quality QualityAssessment
	Errors  []ErrorRecord
}

// Availability splits the critical codes by presence and lists the derived
// variables the available data supports
type Availability struct {
	Available  []string
	Missing    []string
	Computable []string
}

// SupplementUsed reports whether the supplement was attempted. It is the
// scored flag, so an attempt that obtained nothing still counts.
func (r *CollectionResult) SupplementUsed() bool {
	return len(r.Supplement) > 0
}

// SupplementObtained returns how many supplement statements came back with data
func (r *CollectionResult) SupplementObtained() int {
	n := 0
	for _, t := range r.Supplement {
		if t != nil {
			n++
		}
	}
	return n
}

func newResult(runID, ticker string, ts time.Time) *CollectionResult {
	return &CollectionResult{
		RunID:              runID,
		Ticker:             ticker,
		Timestamp:          ts,
		Supplement:         make(map[alphavantage.Statement]*dataset.Table),
		MissingCritical:    []string{},
		SupplementCoverage: []string{},
		Errors:             []ErrorRecord{},
	}
}
