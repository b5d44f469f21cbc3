package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"riskfeed/config"
	"riskfeed/internal/metrics"
	"riskfeed/internal/options/memorystore"
	"riskfeed/internal/platform/deadline"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// MetricsSource returns the latest detailed metrics for one contract, or
// nil when there is no record.
type MetricsSource interface {
	FetchMetrics(ctx context.Context, symbol, expiry string) (*memorystore.Metrics, error)
}

// State of a client session. Closed is terminal.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Session drives one connected client: seeds it with the cached snapshot,
// handles subscribe/unsubscribe/pong, and pings after idle periods.
type Session struct {
	client   *Client
	registry *memorystore.Registry
	cache    *memorystore.SnapshotCache
	source   MetricsSource
	cfg      config.SessionConfig
	clock    clockwork.Clock
	logger   *zap.Logger

	state    atomic.Int32
	lastPong atomic.Int64
}

func NewSession(client *Client, registry *memorystore.Registry, cache *memorystore.SnapshotCache,
	source MetricsSource, cfg config.SessionConfig, clock clockwork.Clock, logger *zap.Logger) *Session {
	return &Session{
		client:   client,
		registry: registry,
		cache:    cache,
		source:   source,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With(zap.String("client_id", client.ID())),
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// LastPong is the time of the most recent pong, zero if none arrived.
func (s *Session) LastPong() time.Time {
	ns := s.lastPong.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run blocks until the client disconnects, a liveness ping fails, or ctx is
// cancelled. The client is always removed from the registry on return.
func (s *Session) Run(ctx context.Context) error {
	s.registry.Add(s.client)
	s.state.Store(int32(StateOpen))
	s.logger.Info("client connected", zap.Int("total", s.registry.Len()))

	defer s.close()

	s.sendInitialSnapshot()

	done := make(chan struct{})
	defer close(done)
	messages, readErr := s.readLoop(done)

	idle := s.clock.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("client disconnected gracefully")
				return nil
			}
			return fmt.Errorf("read: %w", err)

		case data := <-messages:
			if !idle.Stop() {
				select {
				case <-idle.Chan():
				default:
				}
			}
			idle.Reset(s.cfg.IdleTimeout)
			if err := s.handle(ctx, data); err != nil {
				return err
			}

		case <-idle.Chan():
			if err := s.client.Send(PingMessage(), s.cfg.SendTimeout); err != nil {
				s.logger.Warn("client not responding to ping", zap.Error(err))
				return fmt.Errorf("ping: %w", err)
			}
			metrics.PingsSentTotal.Inc()
			idle.Reset(s.cfg.IdleTimeout)
		}
	}
}

func (s *Session) close() {
	s.state.Store(int32(StateClosed))
	s.registry.Remove(s.client)
	_ = s.client.Close()
	s.logger.Info("client cleanup complete", zap.Int("remaining", s.registry.Len()))
}

func (s *Session) sendInitialSnapshot() {
	snap := s.cache.Load()
	if snap == nil {
		s.logger.Warn("no snapshot available yet for new client")
		return
	}

	payload, err := SnapshotMessage(snap)
	if err != nil {
		s.logger.Error("encode initial snapshot", zap.Error(err))
		return
	}
	if err := s.client.Send(payload, s.cfg.SendTimeout); err != nil {
		s.logger.Warn("could not send initial snapshot", zap.Error(err))
		return
	}
	s.logger.Info("sent initial snapshot", zap.Int("options", snap.ContractCount()))
}

// readLoop pumps inbound frames into a channel so the main loop can select
// on them alongside the idle timer.
func (s *Session) readLoop(done <-chan struct{}) (<-chan []byte, <-chan error) {
	messages := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		for {
			_, data, err := s.client.conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			select {
			case messages <- data:
			case <-done:
				return
			}
		}
	}()

	return messages, errs
}

// handle processes one inbound message. A returned error ends the session.
func (s *Session) handle(ctx context.Context, data []byte) error {
	req, err := ParseRequest(data)
	if err != nil {
		metrics.SessionMessagesTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn("invalid JSON from client", zap.Error(err))
		return s.reply(ErrorMessage(MsgInvalidJSON))
	}
	metrics.SessionMessagesTotal.WithLabelValues(req.Kind.String()).Inc()

	switch req.Kind {
	case KindSubscribe:
		return s.subscribe(ctx, req)

	case KindUnsubscribe:
		s.registry.Unsubscribe(s.client)
		s.logger.Info("unsubscribed")
		return s.reply(InfoMessage(MsgUnsubscribed))

	case KindPong:
		s.lastPong.Store(s.clock.Now().UnixNano())
		s.logger.Debug("received pong from client")
		return nil

	default:
		s.logger.Debug("ignoring unrecognised client message")
		return nil
	}
}

func (s *Session) subscribe(ctx context.Context, req Request) error {
	if req.Symbol == "" || req.Expiry == "" {
		s.logger.Warn("subscribe missing symbol or expiry")
		return s.reply(ErrorMessage(MsgMissingFields))
	}

	sub := memorystore.Subscription{Symbol: req.Symbol, Expiry: req.Expiry}
	if err := s.registry.Subscribe(s.client, sub); err != nil {
		// reaped by a broadcast cycle while we were reading
		return fmt.Errorf("subscribe: %w", err)
	}
	log := s.logger.With(zap.String("symbol", sub.Symbol), zap.String("expiry", sub.Expiry))
	log.Info("subscribed")

	m, err := deadline.Call(ctx, s.cfg.MetricsTimeout, func(ctx context.Context) (*memorystore.Metrics, error) {
		return s.source.FetchMetrics(ctx, sub.Symbol, sub.Expiry)
	})
	switch {
	case errors.Is(err, deadline.ErrTimeout):
		log.Error("timeout fetching immediate data", zap.Error(err))
		return s.reply(InfoMessage(MsgSubscribedPending))
	case err != nil:
		log.Error("error fetching immediate data", zap.Error(err))
		return s.reply(InfoMessage(MsgSubscribedPending))
	case m == nil:
		log.Warn("no immediate data")
		return s.reply(InfoMessage(MsgSubscribedPending))
	}

	payload, err := GreeksMessage(m)
	if err != nil {
		return fmt.Errorf("encode greeks: %w", err)
	}
	if err := s.reply(payload); err != nil {
		return err
	}
	log.Info("sent immediate greeks data")
	return nil
}

func (s *Session) reply(payload []byte) error {
	if err := s.client.Send(payload, s.cfg.SendTimeout); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}
