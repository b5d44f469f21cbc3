package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"riskfeed/config"

	"github.com/lib/pq"
)

// CreateDatabase connects to the server named by cfg and creates cfg.DBName
// if it does not exist yet. Intended for local development databases.
func CreateDatabase(ctx context.Context, cfg config.PostgresConfig) error {
	// Connect to the default 'postgres' DB
	admin := cfg
	admin.DSN = ""
	admin.DBName = "postgres"
	dsn, err := admin.ResolveDSN(ctx, "dev", nil)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer db.Close()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1);`
	if err := db.QueryRowContext(ctx, query, cfg.DBName).Scan(&exists); err != nil {
		return fmt.Errorf("check db exists failed: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.DBName)); err != nil {
		return fmt.Errorf("create db failed: %w", err)
	}
	return nil
}

// AutoMigrateOptionTables creates option_greeks and option_risk_metrics.
func AutoMigrateOptionTables(ctx context.Context, p *Pool) error {
	if err := p.DB.WithContext(ctx).AutoMigrate(&OptionGreeksRecord{}, &OptionRiskMetricsRecord{}); err != nil {
		return fmt.Errorf("auto-migrate %s option tables: %w", p.Label, err)
	}
	return nil
}
