package stream

import (
	"context"
	"errors"
	"net/http"

	"riskfeed/config"
	"riskfeed/internal/options/memorystore"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests on the stream endpoint and runs a Session
// for each connection.
type Handler struct {
	upgrader websocket.Upgrader
	registry *memorystore.Registry
	cache    *memorystore.SnapshotCache
	source   MetricsSource
	cfg      config.SessionConfig
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewHandler(registry *memorystore.Registry, cache *memorystore.SnapshotCache, source MetricsSource,
	cfg config.SessionConfig, clock clockwork.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		registry: registry,
		cache:    cache,
		source:   source,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.Named("stream"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	session := NewSession(NewClient(conn), h.registry, h.cache, h.source, h.cfg, h.clock, h.logger)
	if err := session.Run(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Info("session ended", zap.Error(err))
	}
}

// CloseAll closes every registered connection. Used at shutdown so sessions
// blocked on reads return promptly.
func (h *Handler) CloseAll() {
	for _, e := range h.registry.Entries() {
		if c, ok := e.Client.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}
