package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"riskfeed/config"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SymbolProvider yields the option symbols the snapshot should cover.
type SymbolProvider interface {
	TrackedSymbols(ctx context.Context) []string
}

// Store reads option risk data from the call and put databases.
type Store struct {
	call *Pool
	put  *Pool

	symbols  SymbolProvider
	cfg      config.PostgresPools
	timezone string
	loc      *time.Location
	clock    clockwork.Clock
	logger   *zap.Logger
}

// Open resolves both DSNs, connects, and pings each pool. Any failure here
// means the process cannot serve traffic.
func Open(ctx context.Context, cfg *config.Config, params config.ParameterGetter,
	symbols SymbolProvider, clock clockwork.Clock, logger *zap.Logger) (*Store, error) {
	env := cfg.Log.Environment

	open := func(label string, pc config.PostgresConfig) (*Pool, error) {
		// local databases assembled from fields may not exist yet
		if cfg.Postgres.AutoMigrate && env != "prod" && pc.DSN == "" {
			if err := CreateDatabase(ctx, pc); err != nil {
				return nil, fmt.Errorf("%s create database: %w", label, err)
			}
		}
		dsn, err := pc.ResolveDSN(ctx, env, params)
		if err != nil {
			return nil, fmt.Errorf("%s dsn: %w", label, err)
		}
		pool, err := NewPool(label, dsn, pc)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.QueryTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("%s ping: %w", label, err)
		}
		logger.Info("db pool connected", zap.String("pool", label))
		return pool, nil
	}

	call, err := open(LabelCall, cfg.Postgres.Call)
	if err != nil {
		return nil, err
	}
	put, err := open(LabelPut, cfg.Postgres.Put)
	if err != nil {
		_ = call.Close()
		return nil, err
	}

	return New(call, put, symbols, cfg.Postgres, cfg.Market, clock, logger), nil
}

func New(call, put *Pool, symbols SymbolProvider, cfg config.PostgresPools, market config.MarketConfig,
	clock clockwork.Clock, logger *zap.Logger) *Store {
	loc := market.Location()
	return &Store{
		call:     call,
		put:      put,
		symbols:  symbols,
		cfg:      cfg,
		timezone: loc.String(),
		loc:      loc,
		clock:    clock,
		logger:   logger.Named("postgres"),
	}
}

// poolFor picks the database holding symbol: calls end in CE, everything
// else is treated as a put.
func (s *Store) poolFor(symbol string) *Pool {
	if strings.HasSuffix(symbol, LabelCall) {
		return s.call
	}
	return s.put
}

// Migrate creates the option tables if they are missing. Only used against
// local development databases.
func (s *Store) Migrate(ctx context.Context) error {
	for _, p := range []*Pool{s.call, s.put} {
		if err := AutoMigrateOptionTables(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return errors.Join(s.call.Close(), s.put.Close())
}
