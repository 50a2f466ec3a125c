package collector

import (
	"equitycollector/internal/alphavantage"
	"equitycollector/internal/dataset"
	"equitycollector/internal/dictionary"
	"equitycollector/internal/yahoo"
)

// CheckCompleteness returns the critical names that are not columns of table,
// in the order of critical. A nil table is missing everything.
func CheckCompleteness(table *dataset.Table, critical []string) []string {
	missing := []string{}
	for _, name := range critical {
		if table == nil || !table.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// supplementCoverage returns the missing fields whose secondary-provider
// counterpart is a column of one of the supplement tables
func supplementCoverage(missing []string, supplement map[alphavantage.Statement]*dataset.Table) []string {
	covered := []string{}
	for _, name := range missing {
		code, ok := dictionary.CodeForYahoo(name)
		if !ok {
			continue
		}
		field, ok := dictionary.AlphaVantageField(code)
		if !ok {
			continue
		}
		for _, t := range supplement {
			if t.HasColumn(field) {
				covered = append(covered, name)
				break
			}
		}
	}
	return covered
}

// availability maps the financial and market columns onto dictionary codes
func availability(financials, market, shares *dataset.Table) Availability {
	var columns []string
	if financials != nil {
		columns = financials.Columns
	}
	available, missing := dictionary.Availability(columns)

	var codes []string
	for _, code := range dictionary.YahooCodes() {
		if name, _ := dictionary.YahooField(code); financials.HasColumn(name) {
			codes = append(codes, code)
		}
	}

	var extra []string
	if market.HasColumn("Close") {
		extra = append(extra, "Close")
	}
	if !shares.Empty() {
		extra = append(extra, yahoo.SharesColumn)
	}

	return Availability{
		Available:  available,
		Missing:    missing,
		Computable: dictionary.Computable(codes, extra...),
	}
}
