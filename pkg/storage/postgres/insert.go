package postgres

import (
	"context"

	"gorm.io/gorm/clause"
)

// InsertGreeks writes greeks samples, skipping rows that already exist.
// Production data is written by the collector; this serves local seeding.
func (p *Pool) InsertGreeks(ctx context.Context, records ...*OptionGreeksRecord) error {
	if len(records) == 0 {
		return nil
	}
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}

// InsertRiskMetrics writes risk rows, skipping rows that already exist.
func (p *Pool) InsertRiskMetrics(ctx context.Context, records ...*OptionRiskMetricsRecord) error {
	if len(records) == 0 {
		return nil
	}
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}
