// Package dictionary maps a provider-neutral vocabulary of accounting codes
// onto each provider's native field names. The tables are read-only; callers
// get copies, never the backing maps.
package dictionary

import (
	"regexp"
	"sort"
)

// Yahoo Finance column names by code. Each is the spaced form of a requested
// time-series key.
var yahooFields = map[string]string{
	// Income statement
	"sale":   "Total Revenue",
	"cogs":   "Cost Of Revenue",
	"gp":     "Gross Profit",
	"xsga":   "Selling General And Administration",
	"xrd":    "Research And Development",
	"spi":    "Special Income Charges",
	"ebitda": "EBITDA",
	"dp":     "Depreciation And Amortization",
	"ebit":   "EBIT",
	"int":    "Interest Expense",
	"pi":     "Pretax Income",
	"tax":    "Tax Provision",
	"ni":     "Net Income",
	"dvc":    "Cash Dividends Paid",

	// Balance sheet, assets
	"at":    "Total Assets",
	"ca":    "Current Assets",
	"rec":   "Accounts Receivable",
	"cash":  "Cash And Cash Equivalents",
	"inv":   "Inventory",
	"intan": "Goodwill And Other Intangible Assets",
	"ivao":  "Investments And Advances",
	"ppeg":  "Gross PPE",
	"ppen":  "Net PPE",

	// Balance sheet, liabilities
	"lt":     "Total Liabilities Net Minority Interest",
	"cl":     "Current Liabilities",
	"ap":     "Accounts Payable",
	"debtst": "Current Debt",
	"txp":    "Income Tax Payable",
	"debtlt": "Long Term Debt",
	"txditc": "Non Current Deferred Taxes Liabilities",

	// Balance sheet, equity
	"pstk": "Preferred Stock",
	"seq":  "Stockholders Equity",

	// Cash flow
	"capx": "Capital Expenditure",
	"ocf":  "Operating Cash Flow",
	"fcf":  "Free Cash Flow",
	"eqbb": "Repurchase Of Capital Stock",
	"eqis": "Issuance Of Capital Stock",
}

// Alpha Vantage report fields by code
var alphaVantageFields = map[string]string{
	// Income statement
	"sale":   "totalRevenue",
	"cogs":   "costOfRevenue",
	"gp":     "grossProfit",
	"ebitda": "ebitda",
	"ebit":   "operatingIncome",
	"int":    "interestExpense",
	"pi":     "incomeBeforeTax",
	"tax":    "incomeTaxExpense",
	"ni":     "netIncome",
	"xrd":    "researchAndDevelopment",
	"xsga":   "sellingGeneralAndAdministrative",

	// Balance sheet
	"at":     "totalAssets",
	"ca":     "totalCurrentAssets",
	"cash":   "cashAndCashEquivalentsAtCarryingValue",
	"rec":    "currentNetReceivables",
	"inv":    "inventory",
	"ppen":   "propertyPlantEquipment",
	"intan":  "intangibleAssets",
	"lt":     "totalLiabilities",
	"cl":     "totalCurrentLiabilities",
	"debtst": "shortTermDebt",
	"debtlt": "longTermDebt",
	"seq":    "totalShareholderEquity",

	// Cash flow
	"ocf":  "operatingCashflow",
	"capx": "capitalExpenditures",
}

// DerivedVariable is a quantity computed from other codes
type DerivedVariable struct {
	Code    string
	Name    string
	Formula string
}

var derived = []DerivedVariable{
	{"be", "Book Equity", "seq + txditc - pstk"},
	{"me", "Market Equity", "Close * shares_outstanding"},
	{"debt", "Total Debt", "debtlt + debtst"},
	{"netdebt", "Net Debt", "debt - cash"},
	{"nwc", "Net Working Capital", "ca - cl"},
	{"coa", "Current Operating Assets", "ca - cash"},
	{"col", "Current Operating Liabilities", "cl - debtst"},
	{"cowc", "Current Operating Working Capital", "coa - col"},
	{"ncoa", "Non-Current Operating Assets", "at - ca - ivao"},
	{"ncol", "Non-Current Operating Liabilities", "lt - cl - debtlt"},
	{"nncoa", "Net Non-Current Operating Assets", "ncoa - ncol"},
	{"oa", "Operating Assets", "coa + ncoa"},
	{"ol", "Operating Liabilities", "col + ncol"},
	{"noa", "Net Operating Assets", "oa - ol"},
	{"oacc", "Operating Accruals", "ni - ocf"},
	{"tacc", "Total Accruals", "oacc + change(nfna)"},
	{"bev", "Book Enterprise Value", "seq + netdebt"},
	{"mev", "Market Enterprise Value", "me + netdebt"},
}

// Codes whose absence blocks most downstream characteristics
var criticalCodes = []string{
	"at", "sale", "ni", "seq", "cash", "lt", "ca", "cl", "debtlt", "debtst", "capx", "ocf",
}

// Primary-provider columns the collector requires before it skips the supplement
var criticalFields = []string{
	"Total Revenue",
	"Cost Of Revenue",
	"EBIT",
	"Net Income",
	"Total Assets",
	"Total Liabilities Net Minority Interest",
	"Stockholders Equity",
	"Capital Expenditure",
	"Operating Cash Flow",
}

// CriticalFields returns the primary-provider column names checked for completeness
func CriticalFields() []string {
	return append([]string(nil), criticalFields...)
}

// CriticalCodes returns the critical accounting codes
func CriticalCodes() []string {
	return append([]string(nil), criticalCodes...)
}

// Derived returns the derived-variable formulas
func Derived() []DerivedVariable {
	return append([]DerivedVariable(nil), derived...)
}

// YahooField returns the Yahoo Finance column name for a code
func YahooField(code string) (string, bool) {
	name, ok := yahooFields[code]
	return name, ok
}

// AlphaVantageField returns the Alpha Vantage field name for a code
func AlphaVantageField(code string) (string, bool) {
	name, ok := alphaVantageFields[code]
	return name, ok
}

// CodeForYahoo returns the code of a Yahoo Finance column name
func CodeForYahoo(column string) (string, bool) {
	return reverse(yahooFields, column)
}

// CodeForAlphaVantage returns the code of an Alpha Vantage field name
func CodeForAlphaVantage(field string) (string, bool) {
	return reverse(alphaVantageFields, field)
}

func reverse(m map[string]string, name string) (string, bool) {
	for code, n := range m {
		if n == name {
			return code, true
		}
	}
	return "", false
}

// YahooCodes returns every code with a Yahoo Finance mapping, sorted
func YahooCodes() []string {
	return sortedKeys(yahooFields)
}

// AlphaVantageCodes returns every code with an Alpha Vantage mapping, sorted
func AlphaVantageCodes() []string {
	return sortedKeys(alphaVantageFields)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Availability splits the critical codes into those whose Yahoo Finance column
// is present in columns and those that are not, both in critical-code order
func Availability(columns []string) (available, missing []string) {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}

	for _, code := range criticalCodes {
		name, ok := yahooFields[code]
		if _, found := present[name]; ok && found {
			available = append(available, code)
		} else {
			missing = append(missing, code)
		}
	}
	return available, missing
}

var operand = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(\([^)]*\))?`)

// Computable returns the derived variables whose operands are all known,
// in table order. Known operands are the given codes, the extra inputs (for
// example "Close" or "shares_outstanding") and any derived variable that is
// itself computable.
func Computable(codes []string, extra ...string) []string {
	known := make(map[string]bool, len(codes)+len(extra))
	for _, c := range codes {
		known[c] = true
	}
	for _, e := range extra {
		known[e] = true
	}

	for changed := true; changed; {
		changed = false
		for _, d := range derived {
			if known[d.Code] {
				continue
			}
			ok := true
			for _, op := range operand.FindAllString(d.Formula, -1) {
				if !known[op] {
					ok = false
					break
				}
			}
			if ok {
				known[d.Code] = true
				changed = true
			}
		}
	}

	var out []string
	for _, d := range derived {
		if known[d.Code] {
			out = append(out, d.Code)
		}
	}
	return out
}
