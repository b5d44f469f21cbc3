package postgres

import (
	"context"
	"fmt"

	"riskfeed/internal/options/memorystore"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05"
)

const latestMetricsSQL = `
SELECT DISTINCT ON (g.symbol, g.strike, g.expiry)
	(g.time AT TIME ZONE @tz) AS time,
	g.symbol, g.strike, g.expiry, g.option_type,
	g.ltp, g.delta, g.gamma, g.theta, g.vega, g.iv, g.oi, g.volume,
	r.var_1day, r.risk_pct, r.time_risk, r.theta_burn_pct,
	r.moneyness, r.liquidity_score, r.overall_risk_score,
	r.recommendation, r.dte, r.expected_move
FROM option_greeks g
JOIN option_risk_metrics r USING (time, symbol, strike, expiry)
WHERE g.symbol = @symbol AND g.expiry = @expiry::date
ORDER BY g.symbol, g.strike, g.expiry, g.time DESC
LIMIT 1`

// FetchMetrics returns the latest greeks and risk record for one contract,
// or nil when the contract has no joined record.
func (s *Store) FetchMetrics(ctx context.Context, symbol, expiry string) (*memorystore.Metrics, error) {
	p := s.poolFor(symbol)

	var rows []metricsRow
	err := p.DB.WithContext(ctx).
		Raw(latestMetricsSQL, namedArgs(s.timezone, symbol, expiry)...).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s metrics query: %w", p.Label, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toMetrics(), nil
}

func (r metricsRow) toMetrics() *memorystore.Metrics {
	return &memorystore.Metrics{
		Time:           r.Time.Format(timestampLayout),
		Symbol:         r.Symbol,
		Strike:         r.Strike,
		Expiry:         r.Expiry.Format(dateLayout),
		OptionType:     r.OptionType,
		LTP:            r.LTP,
		Delta:          r.Delta,
		Gamma:          r.Gamma,
		Theta:          r.Theta,
		Vega:           r.Vega,
		IV:             r.IV,
		OI:             r.OI,
		Volume:         r.Volume,
		VaR1Day:        r.VaR1Day,
		RiskPct:        r.RiskPct,
		TimeRisk:       r.TimeRisk,
		ThetaBurnPct:   r.ThetaBurnPct,
		Moneyness:      r.Moneyness,
		LiquidityScore: r.LiquidityScore,
		RiskScore:      r.OverallRiskScore,
		Recommendation: r.Recommendation,
		DTE:            r.DTE,
		ExpectedMove:   r.ExpectedMove,
	}
}
