// Package storage writes collection results to disk.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"equitycollector/internal/alphavantage"
	"equitycollector/internal/collector"
	"equitycollector/internal/dataset"
)

// Sink persists a collection result
type Sink interface {
	// Save writes the result and returns the paths written
	Save(res *collector.CollectionResult) ([]string, error)
}

// FileSink writes one flat directory of CSV tables and text reports
type FileSink struct {
	Dir string
}

// NewFileSink creates a FileSink rooted at dir
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Save writes, for the result's ticker, the market data, financial data and
// shares tables when present, one file per obtained supplement statement and
// the quality report. Existing files are overwritten.
func (s *FileSink) Save(res *collector.CollectionResult) ([]string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", s.Dir, err)
	}

	var written []string
	write := func(name string, t *dataset.Table) error {
		if t == nil {
			return nil
		}
		path := filepath.Join(s.Dir, name)
		if err := writeTable(path, t); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	ticker := res.Ticker
	tables := []namedTable{
		{ticker + "_market_data.csv", res.MarketData},
		{ticker + "_financial_data.csv", res.FinancialData},
		{ticker + "_shares_outstanding.csv", res.SharesOutstanding},
	}
	for _, stmt := range alphavantage.Statements {
		tables = append(tables, namedTable{fmt.Sprintf("%s_av_%s.csv", ticker, stmt), res.Supplement[stmt]})
	}

	for _, t := range tables {
		if err := write(t.name, t.table); err != nil {
			return written, err
		}
	}

	path := filepath.Join(s.Dir, ticker+"_quality_report.txt")
	if err := os.WriteFile(path, []byte(Report(res)), 0o644); err != nil {
		return written, fmt.Errorf("failed to write %s: %w", path, err)
	}
	written = append(written, path)

	return written, nil
}

type namedTable struct {
	name  string
	table *dataset.Table
}

func writeTable(path string, t *dataset.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := t.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Report renders the plain-text quality report
func Report(res *collector.CollectionResult) string {
	var b strings.Builder
	q := res.Quality

	fmt.Fprintf(&b, "Quality Report - %s\n", res.Ticker)
	fmt.Fprintf(&b, "Generated: %s\n", res.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Run: %s\n", res.RunID)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	fmt.Fprintf(&b, "Market Data: %s\n", yesNo(q.MarketData))
	fmt.Fprintf(&b, "Financial Data: %s\n", yesNo(q.FinancialData))
	shares := yesNo(q.Shares)
	if q.Shares && res.SharesSnapshot {
		shares += " (current value only)"
	}
	fmt.Fprintf(&b, "Shares Outstanding: %s\n", shares)
	supplement := yesNo(q.Supplement)
	if len(res.Supplement) > 0 {
		supplement += fmt.Sprintf(" (%d/%d statements obtained)", res.SupplementObtained(), len(res.Supplement))
	}
	fmt.Fprintf(&b, "Alpha Vantage Supplement: %s\n", supplement)
	fmt.Fprintf(&b, "\nOverall Score: %.1f%%\n", q.Score)

	if len(res.MissingCritical) > 0 {
		fmt.Fprintf(&b, "\nMissing critical fields (%d):\n", len(res.MissingCritical))
		for _, name := range res.MissingCritical {
			covered := ""
			for _, c := range res.SupplementCoverage {
				if c == name {
					covered = " [in supplement]"
					break
				}
			}
			fmt.Fprintf(&b, "  - %s%s\n", name, covered)
		}
	}

	a := res.Availability
	if len(a.Available)+len(a.Missing) > 0 {
		fmt.Fprintf(&b, "\nCritical codes available: %d/%d\n", len(a.Available), len(a.Available)+len(a.Missing))
		if len(a.Missing) > 0 {
			fmt.Fprintf(&b, "  missing: %s\n", strings.Join(a.Missing, ", "))
		}
		if len(a.Computable) > 0 {
			fmt.Fprintf(&b, "  computable: %s\n", strings.Join(a.Computable, ", "))
		}
	}

	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\nErrors (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", e.Source, e.Kind, e.Message)
		}
	}

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
