package postgres

import (
	"context"
	"fmt"

	"riskfeed/config"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Pool labels; calls and puts live in separate databases.
const (
	LabelCall = "CE"
	LabelPut  = "PE"
)

// Pool is one bounded connection pool to a single options database.
type Pool struct {
	Label string
	DB    *gorm.DB
}

// NewPool opens a gorm connection and applies the pool limits from cfg.
func NewPool(label, dsn string, cfg config.PostgresConfig) (*Pool, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s postgres: %w", label, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Pool{Label: label, DB: db}, nil
}

// Ping checks out a connection and round-trips to the server.
func (p *Pool) Ping(ctx context.Context) error {
	db, err := p.DB.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Probe runs a trivial query through the pool, exercising a real checkout.
func (p *Pool) Probe(ctx context.Context) error {
	var one int
	return p.DB.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

func (p *Pool) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
