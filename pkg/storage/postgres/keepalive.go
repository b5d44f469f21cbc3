package postgres

import (
	"context"

	"riskfeed/internal/metrics"

	"go.uber.org/zap"
)

// KeepAlive probes both pools every KeepAliveInterval so the backing
// serverless databases do not suspend idle connections. Probe failures are
// logged and otherwise ignored. Blocks until ctx is cancelled.
func (s *Store) KeepAlive(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	s.logger.Info("db keep-alive started", zap.Duration("interval", s.cfg.KeepAliveInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.probeAll(ctx)
		}
	}
}

func (s *Store) probeAll(ctx context.Context) {
	for _, p := range []*Pool{s.call, s.put} {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		err := p.Probe(probeCtx)
		cancel()

		if err != nil {
			metrics.KeepAliveProbesTotal.WithLabelValues(p.Label, "error").Inc()
			s.logger.Warn("keep-alive failed", zap.String("pool", p.Label), zap.Error(err))
			continue
		}
		metrics.KeepAliveProbesTotal.WithLabelValues(p.Label, "ok").Inc()
	}
}
