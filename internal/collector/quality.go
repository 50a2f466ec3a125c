package collector

// Quality weights, in points out of 100
const (
	WeightMarketData    = 40
	WeightFinancialData = 40
	WeightShares        = 10
	WeightSupplement    = 10
)

// QualityFlags are the presence indicators a score is computed from
type QualityFlags struct {
	MarketData    bool
	FinancialData bool
	Shares        bool
	Supplement    bool
}

// QualityAssessment is the scored summary of a collection run
type QualityAssessment struct {
	QualityFlags
	Score float64
}

// Assess scores the flags as a weighted sum
func Assess(flags QualityFlags) QualityAssessment {
	score := 0
	if flags.MarketData {
		score += WeightMarketData
	}
	if flags.FinancialData {
		score += WeightFinancialData
	}
	if flags.Shares {
		score += WeightShares
	}
	if flags.Supplement {
		score += WeightSupplement
	}
	return QualityAssessment{QualityFlags: flags, Score: float64(score)}
}

// assess recomputes the assessment from the result's data
func assess(r *CollectionResult) QualityAssessment {
	return Assess(QualityFlags{
		MarketData:    r.MarketData != nil,
		FinancialData: r.FinancialData != nil,
		Shares:        r.SharesOutstanding != nil,
		Supplement:    r.SupplementUsed(),
	})
}
