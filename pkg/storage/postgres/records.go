package postgres

import "time"

// OptionGreeksRecord is one greeks sample for a contract. The collector
// process owns writes to this table; this service only reads it.
type OptionGreeksRecord struct {
	Time       time.Time `gorm:"column:time;primaryKey"`
	Symbol     string    `gorm:"column:symbol;type:text;primaryKey;index:idx_greeks_symbol_expiry"`
	Strike     float64   `gorm:"column:strike;type:numeric;primaryKey"`
	Expiry     time.Time `gorm:"column:expiry;type:date;primaryKey;index:idx_greeks_symbol_expiry"`
	OptionType string    `gorm:"column:option_type;type:varchar(2);not null"`

	LTP    *float64 `gorm:"column:ltp"`
	Delta  *float64 `gorm:"column:delta"`
	Gamma  *float64 `gorm:"column:gamma"`
	Theta  *float64 `gorm:"column:theta"`
	Vega   *float64 `gorm:"column:vega"`
	IV     *float64 `gorm:"column:iv"`
	OI     *int64   `gorm:"column:oi"`
	Volume *int64   `gorm:"column:volume"`

	OverallRiskScore *float64 `gorm:"column:overall_risk_score"`
	Recommendation   *string  `gorm:"column:recommendation;type:text"`
}

func (OptionGreeksRecord) TableName() string {
	return "option_greeks"
}

// OptionRiskMetricsRecord is the risk decomposition computed for the greeks
// sample with the same (time, symbol, strike, expiry).
type OptionRiskMetricsRecord struct {
	Time   time.Time `gorm:"column:time;primaryKey"`
	Symbol string    `gorm:"column:symbol;type:text;primaryKey"`
	Strike float64   `gorm:"column:strike;type:numeric;primaryKey"`
	Expiry time.Time `gorm:"column:expiry;type:date;primaryKey"`

	VaR1Day          *float64 `gorm:"column:var_1day"`
	RiskPct          *float64 `gorm:"column:risk_pct"`
	TimeRisk         *float64 `gorm:"column:time_risk"`
	ThetaBurnPct     *float64 `gorm:"column:theta_burn_pct"`
	Moneyness        *string  `gorm:"column:moneyness;type:text"`
	LiquidityScore   *float64 `gorm:"column:liquidity_score"`
	OverallRiskScore *float64 `gorm:"column:overall_risk_score"`
	Recommendation   *string  `gorm:"column:recommendation;type:text"`
	DTE              *int     `gorm:"column:dte"`
	ExpectedMove     *float64 `gorm:"column:expected_move"`
}

func (OptionRiskMetricsRecord) TableName() string {
	return "option_risk_metrics"
}

// latestRow is the projection of the snapshot query.
type latestRow struct {
	Symbol           string
	Strike           float64
	Expiry           time.Time
	OptionType       string
	LTP              *float64 `gorm:"column:ltp"`
	OverallRiskScore *float64
	Recommendation   *string
}

// metricsRow is the projection of the greeks/risk join.
type metricsRow struct {
	Time       time.Time
	Symbol     string
	Strike     float64
	Expiry     time.Time
	OptionType string

	LTP    *float64 `gorm:"column:ltp"`
	Delta  *float64
	Gamma  *float64
	Theta  *float64
	Vega   *float64
	IV     *float64 `gorm:"column:iv"`
	OI     *int64   `gorm:"column:oi"`
	Volume *int64

	VaR1Day          *float64 `gorm:"column:var_1day"`
	RiskPct          *float64
	TimeRisk         *float64
	ThetaBurnPct     *float64
	Moneyness        *string
	LiquidityScore   *float64
	OverallRiskScore *float64
	Recommendation   *string
	DTE              *int `gorm:"column:dte"`
	ExpectedMove     *float64
}

// historyRow is one aggregated bucket.
type historyRow struct {
	Bucket           time.Time
	LTP              *float64 `gorm:"column:ltp"`
	Delta            *float64
	Gamma            *float64
	Theta            *float64
	Vega             *float64
	IV               *float64 `gorm:"column:iv"`
	OI               *int64   `gorm:"column:oi"`
	Volume           *int64
	OverallRiskScore *float64
	Recommendation   *string
}
