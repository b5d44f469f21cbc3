package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"riskfeed/config"
	"riskfeed/internal/alerts"
	"riskfeed/internal/options/memorystore"
	"riskfeed/pkg/storage/postgres"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SnapshotSource fetches a fresh snapshot when the cache is still empty.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*memorystore.Snapshot, error)
}

// OptionSource serves single-contract lookups.
type OptionSource interface {
	FetchMetrics(ctx context.Context, symbol, expiry string) (*memorystore.Metrics, error)
	FetchHistory(ctx context.Context, symbol, expiry string, r postgres.HistoryRange) ([]postgres.HistoryPoint, error)
}

// AlertSubscriber stores email alert subscriptions.
type AlertSubscriber interface {
	Subscribe(ctx context.Context, req alerts.Request) (*alerts.Result, error)
}

// StreamHandler serves the websocket endpoint.
type StreamHandler interface {
	http.Handler
	CloseAll()
}

type Deps struct {
	Stream    StreamHandler
	Cache     *memorystore.SnapshotCache
	Snapshots SnapshotSource
	Options   OptionSource
	Alerts    AlertSubscriber
}

type Server struct {
	cfg          config.ServerConfig
	queryTimeout time.Duration
	deps         Deps
	router       *gin.Engine
	logger       *zap.Logger
}

func NewServer(cfg config.ServerConfig, queryTimeout time.Duration, env string, deps Deps, logger *zap.Logger) *Server {
	if env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{
		cfg:          cfg,
		queryTimeout: queryTimeout,
		deps:         deps,
		router:       router,
		logger:       logger.Named("api"),
	}
	s.registerRoutes()
	return s
}

// Router returns the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", gin.WrapH(s.deps.Stream))

	api := s.router.Group("/api")
	{
		api.GET("/snapshot", s.getSnapshot)
		api.GET("/history", s.getHistory)
		api.GET("/latest", s.getLatest)
		api.POST("/email-alert", s.postEmailAlert)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// hijacked websocket connections are not tracked by Shutdown
	srv.RegisterOnShutdown(s.deps.Stream.CloseAll)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
