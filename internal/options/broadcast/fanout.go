package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"riskfeed/internal/metrics"
	"riskfeed/internal/options/memorystore"
	"riskfeed/internal/options/stream"
	"riskfeed/internal/platform/deadline"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Outcome of delivering one cycle to one client.
type Outcome int

const (
	Delivered Outcome = iota
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Dispatch records what happened for one client in one cycle.
type Dispatch struct {
	Client  memorystore.Client
	Outcome Outcome
	Greeks  bool // a greeks message followed the snapshot
	Err     error
}

// Fanout delivers a snapshot, and each subscriber's greeks, to every client
// concurrently. A slow or failing client never delays the others.
type Fanout struct {
	source         stream.MetricsSource
	sendTimeout    time.Duration
	metricsTimeout time.Duration
	logger         *zap.Logger
}

func NewFanout(source stream.MetricsSource, sendTimeout, metricsTimeout time.Duration, logger *zap.Logger) *Fanout {
	return &Fanout{
		source:         source,
		sendTimeout:    sendTimeout,
		metricsTimeout: metricsTimeout,
		logger:         logger,
	}
}

// Run sends snap to every entry and returns one Dispatch per entry, in the
// same order as entries.
func (f *Fanout) Run(ctx context.Context, snap *memorystore.Snapshot, entries []memorystore.Entry) ([]Dispatch, error) {
	payload, err := stream.SnapshotMessage(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	// subscribers to the same contract share one fetch per cycle
	var group singleflight.Group

	results := make([]Dispatch, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e memorystore.Entry) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Dispatch{Client: e.Client, Outcome: Failed, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			results[i] = f.deliver(ctx, &group, payload, e)
		}(i, e)
	}
	wg.Wait()

	for _, d := range results {
		metrics.DispatchOutcomesTotal.WithLabelValues(d.Outcome.String()).Inc()
	}
	return results, nil
}

func (f *Fanout) deliver(ctx context.Context, group *singleflight.Group, snapshot []byte, e memorystore.Entry) Dispatch {
	d := Dispatch{Client: e.Client}

	if err := e.Client.Send(snapshot, f.sendTimeout); err != nil {
		d.Outcome, d.Err = classify(err), err
		return d
	}
	if e.Subscription == nil {
		return d
	}

	greeks, err := f.greeks(ctx, group, *e.Subscription)
	if err != nil {
		// the client keeps its connection; it just misses this cycle's greeks
		f.logger.Warn("greeks fetch failed",
			zap.String("client_id", e.Client.ID()),
			zap.String("symbol", e.Subscription.Symbol),
			zap.String("expiry", e.Subscription.Expiry),
			zap.Error(err))
		return d
	}
	if greeks == nil {
		return d
	}

	if err := e.Client.Send(greeks, f.sendTimeout); err != nil {
		d.Outcome, d.Err = classify(err), err
		return d
	}
	d.Greeks = true
	return d
}

// greeks returns the encoded greeks message for sub, or nil when the store
// has no record for it.
func (f *Fanout) greeks(ctx context.Context, group *singleflight.Group, sub memorystore.Subscription) ([]byte, error) {
	v, err, _ := group.Do(sub.Symbol+"|"+sub.Expiry, func() (any, error) {
		m, err := deadline.Call(ctx, f.metricsTimeout, func(ctx context.Context) (*memorystore.Metrics, error) {
			return f.source.FetchMetrics(ctx, sub.Symbol, sub.Expiry)
		})
		if err != nil || m == nil {
			return []byte(nil), err
		}
		return stream.GreeksMessage(m)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func classify(err error) Outcome {
	if errors.Is(err, deadline.ErrTimeout) {
		return TimedOut
	}
	return Failed
}
