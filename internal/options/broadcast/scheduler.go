package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"riskfeed/config"
	"riskfeed/internal/metrics"
	"riskfeed/internal/options/memorystore"
	"riskfeed/internal/platform/deadline"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SnapshotSource loads the latest row per contract for the tracked symbols.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*memorystore.Snapshot, error)
}

// CycleStatus is the final state of one refresh cycle.
type CycleStatus int

const (
	StatusBroadcast CycleStatus = iota
	StatusSkippedTimeout
	StatusSkippedEmpty
	StatusFailed
)

func (s CycleStatus) String() string {
	switch s {
	case StatusBroadcast:
		return "broadcast"
	case StatusSkippedTimeout:
		return "skipped_timeout"
	case StatusSkippedEmpty:
		return "skipped_empty"
	default:
		return "failed"
	}
}

// CycleResult summarises one refresh cycle.
type CycleResult struct {
	Status    CycleStatus
	Contracts int
	Clients   int
	Delivered int
	Removed   int
	Err       error
	Duration  time.Duration
}

// Scheduler refreshes the snapshot cache on a fixed interval and fans every
// fresh snapshot out to all connected clients.
type Scheduler struct {
	source   SnapshotSource
	cache    *memorystore.SnapshotCache
	registry *memorystore.Registry
	fanout   *Fanout
	cfg      config.BroadcastConfig
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewScheduler(source SnapshotSource, cache *memorystore.SnapshotCache, registry *memorystore.Registry,
	fanout *Fanout, cfg config.BroadcastConfig, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		source:   source,
		cache:    cache,
		registry: registry,
		fanout:   fanout,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.Named("broadcast"),
	}
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. A failing cycle never stops the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("broadcast loop started", zap.Duration("interval", s.cfg.Interval))

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("broadcast loop stopped")
			return
		case <-ticker.Chan():
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one refresh and broadcast.
func (s *Scheduler) RunCycle(ctx context.Context) (res CycleResult) {
	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			res = CycleResult{Status: StatusFailed, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error("broadcast cycle panicked", zap.Any("panic", r))
		}
		res.Duration = s.clock.Since(start)
		metrics.BroadcastCyclesTotal.WithLabelValues(res.Status.String()).Inc()
		metrics.BroadcastCycleDuration.Observe(res.Duration.Seconds())
	}()

	snap, err := deadline.Call(ctx, s.cfg.SnapshotTimeout, s.source.FetchSnapshot)
	switch {
	case errors.Is(err, deadline.ErrTimeout):
		s.logger.Warn("snapshot fetch timed out, skipping cycle", zap.Error(err))
		return CycleResult{Status: StatusSkippedTimeout, Err: err}
	case err != nil:
		s.logger.Error("snapshot fetch failed, skipping cycle", zap.Error(err))
		return CycleResult{Status: StatusFailed, Err: err}
	}

	s.cache.Store(snap)
	res.Contracts = snap.ContractCount()
	metrics.SnapshotContracts.Set(float64(res.Contracts))
	if res.Contracts == 0 {
		s.logger.Warn("snapshot is empty, nothing to broadcast")
		res.Status = StatusSkippedEmpty
		return res
	}

	entries := s.registry.Entries()
	res.Clients = len(entries)
	if len(entries) == 0 {
		res.Status = StatusBroadcast
		return res
	}

	dispatches, err := s.fanout.Run(ctx, snap, entries)
	if err != nil {
		s.logger.Error("fan-out failed", zap.Error(err))
		return CycleResult{Status: StatusFailed, Contracts: res.Contracts, Clients: res.Clients, Err: err}
	}

	var dead []memorystore.Client
	for _, d := range dispatches {
		if d.Outcome == Delivered {
			res.Delivered++
			continue
		}
		s.logger.Warn("dropping client",
			zap.String("client_id", d.Client.ID()),
			zap.Stringer("outcome", d.Outcome),
			zap.Error(d.Err))
		if c, ok := d.Client.(io.Closer); ok {
			_ = c.Close()
		}
		dead = append(dead, d.Client)
	}
	res.Removed = s.registry.Remove(dead...)

	res.Status = StatusBroadcast
	s.logger.Info("broadcast complete",
		zap.Int("options", res.Contracts),
		zap.Int("clients", res.Clients),
		zap.Int("delivered", res.Delivered),
		zap.Int("removed", res.Removed))
	return res
}
