package feed

import (
	"context"
	"fmt"

	"riskfeed/config"
	"riskfeed/internal/alerts"
	"riskfeed/internal/api"
	"riskfeed/internal/options/broadcast"
	"riskfeed/internal/options/memorystore"
	"riskfeed/internal/options/stream"
	"riskfeed/internal/options/symbolmeta"
	"riskfeed/pkg/storage/postgres"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Start builds the risk feed and serves it until ctx is cancelled or a
// component fails. Errors before the HTTP server starts are fatal startup
// failures.
func Start(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	clock := clockwork.NewRealClock()

	// AWS: parameter store for DSNs and spot, SES/DynamoDB for alerts
	awsCfg, err := config.LoadAWS(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	params := config.NewParameterStoreFromConfig(awsCfg)

	// Tracked strike window around spot
	tracker := symbolmeta.NewTracker(
		symbolmeta.ParameterSpot{Params: params, Name: cfg.Market.SpotParameter},
		cfg.Market, clock, logger,
	)

	// Call/put database pools
	store, err := postgres.Open(ctx, cfg, params, tracker, clock, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close db pools", zap.Error(err))
		}
	}()
	if cfg.Postgres.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Shared in-memory state
	cache := memorystore.NewSnapshotCache()
	registry := memorystore.NewRegistry()

	fanout := broadcast.NewFanout(store, cfg.Broadcast.SendTimeout, cfg.Broadcast.MetricsTimeout, logger)
	scheduler := broadcast.NewScheduler(store, cache, registry, fanout, cfg.Broadcast, clock, logger)
	handler := stream.NewHandler(registry, cache, store, cfg.Session, clock, logger)

	server := api.NewServer(cfg.Server, cfg.Postgres.QueryTimeout, cfg.Log.Environment, api.Deps{
		Stream:    handler,
		Cache:     cache,
		Snapshots: store,
		Options:   store,
		Alerts:    alerts.NewServiceFromConfig(awsCfg, cfg.Alerts, logger),
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.KeepAlive(ctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	return g.Wait()
}
