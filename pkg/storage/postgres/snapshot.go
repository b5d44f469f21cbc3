package postgres

import (
	"context"
	"fmt"

	"riskfeed/internal/options/memorystore"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const latestBySymbolsSQL = `
SELECT DISTINCT ON (symbol, strike, expiry)
	symbol, strike, expiry, option_type,
	ltp, overall_risk_score, recommendation
FROM option_greeks
WHERE symbol = ANY(?)
ORDER BY symbol, strike, expiry, time DESC`

const latestAllSQL = `
SELECT DISTINCT ON (symbol, strike, expiry)
	symbol, strike, expiry, option_type,
	ltp, overall_risk_score, recommendation
FROM option_greeks
ORDER BY symbol, strike, expiry, time DESC`

// FetchSnapshot loads the latest row per tracked contract from both pools
// and groups them by expiry.
func (s *Store) FetchSnapshot(ctx context.Context) (*memorystore.Snapshot, error) {
	symbols := s.symbols.TrackedSymbols(ctx)
	if len(symbols) == 0 {
		s.logger.Warn("no tracked symbols, fetching all")
	}

	var rows []memorystore.ExpiryRow
	for _, p := range []*Pool{s.call, s.put} {
		latest, err := s.latest(ctx, p, symbols)
		if err != nil {
			return nil, fmt.Errorf("%s snapshot query: %w", p.Label, err)
		}
		s.logger.Debug("snapshot rows", zap.String("pool", p.Label), zap.Int("rows", len(latest)))

		for _, r := range latest {
			rows = append(rows, r.toExpiryRow())
		}
	}

	return memorystore.BuildSnapshot(rows, s.clock.Now().In(s.loc)), nil
}

func (s *Store) latest(ctx context.Context, p *Pool, symbols []string) ([]latestRow, error) {
	var out []latestRow
	tx := p.DB.WithContext(ctx)
	if len(symbols) > 0 {
		tx = tx.Raw(latestBySymbolsSQL, pq.Array(symbols))
	} else {
		tx = tx.Raw(latestAllSQL)
	}
	if err := tx.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r latestRow) toExpiryRow() memorystore.ExpiryRow {
	return memorystore.ExpiryRow{
		Expiry: r.Expiry.Format(dateLayout),
		ContractRow: memorystore.ContractRow{
			Symbol:         r.Symbol,
			Strike:         r.Strike,
			Type:           r.OptionType,
			Price:          r.LTP,
			RiskScore:      r.OverallRiskScore,
			Recommendation: r.Recommendation,
		},
	}
}
