package symbolmeta

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"riskfeed/config"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrInvalidSpot = errors.New("invalid spot price")

// SpotSource returns the current underlying spot price.
type SpotSource interface {
	Spot(ctx context.Context) (float64, error)
}

// ParameterSpot reads the spot price from a parameter store entry.
type ParameterSpot struct {
	Params config.ParameterGetter
	Name   string
}

func (p ParameterSpot) Spot(ctx context.Context) (float64, error) {
	raw, err := p.Params.Get(ctx, p.Name, true)
	if err != nil {
		return 0, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: parameter %s is empty", ErrInvalidSpot, p.Name)
	}
	spot, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSpot, err)
	}
	return spot, nil
}

// Tracker derives the tracked option symbols from a strike window around the
// at-the-money strike. The spot price is cached for a short TTL.
type Tracker struct {
	source SpotSource
	cfg    config.MarketConfig
	clock  clockwork.Clock
	logger *zap.Logger

	mu        sync.Mutex
	spot      float64
	fetchedAt time.Time
}

func NewTracker(source SpotSource, cfg config.MarketConfig, clock clockwork.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{
		source: source,
		cfg:    cfg,
		clock:  clock,
		logger: logger.Named("symbolmeta"),
	}
}

// Spot returns the cached spot, refreshing it when older than the TTL. Any
// lookup failure falls back to the configured static spot, which is cached
// like a real value.
func (t *Tracker) Spot(ctx context.Context) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.spot > 0 && now.Sub(t.fetchedAt) < t.cfg.SpotCacheTTL {
		return t.spot
	}

	spot, err := t.source.Spot(ctx)
	switch {
	case err != nil:
		t.logger.Error("could not fetch spot, using fallback", zap.Error(err), zap.Float64("fallback", t.cfg.FallbackSpot))
		spot = t.cfg.FallbackSpot
	case spot <= 0:
		t.logger.Error("spot is not positive, using fallback", zap.Float64("spot", spot), zap.Float64("fallback", t.cfg.FallbackSpot))
		spot = t.cfg.FallbackSpot
	default:
		t.logger.Info("refreshed spot cache", zap.Float64("spot", spot))
	}

	t.spot, t.fetchedAt = spot, now
	return spot
}

// TrackedSymbols returns every call symbol in the window followed by every
// put symbol, strikes ascending.
func (t *Tracker) TrackedSymbols(ctx context.Context) []string {
	spot := t.Spot(ctx)
	strikes := Strikes(spot, t.cfg.StrikeStep, t.cfg.StrikeWindow)

	symbols := make([]string, 0, 2*len(strikes))
	for _, side := range []string{"CE", "PE"} {
		for _, k := range strikes {
			symbols = append(symbols, Symbol(t.cfg.Underlying, k, side))
		}
	}

	atm := 0.0
	if len(strikes) > 0 {
		atm = strikes[len(strikes)/2]
	}
	t.logger.Debug("tracking strikes",
		zap.Float64("atm", atm),
		zap.Float64("spot", spot),
		zap.Int("strikes", len(strikes)))
	return symbols
}

// Strikes returns the 2*window+1 strikes centred on the at-the-money strike.
// Halfway spots round to the even multiple of step.
func Strikes(spot, step float64, window int) []float64 {
	if step <= 0 || window < 0 {
		return nil
	}
	atm := math.RoundToEven(spot/step) * step

	strikes := make([]float64, 0, 2*window+1)
	for i := -window; i <= window; i++ {
		strikes = append(strikes, atm+float64(i)*step)
	}
	return strikes
}

// Symbol formats an option symbol, e.g. NIFTY24000CE.
func Symbol(underlying string, strike float64, side string) string {
	return underlying + strconv.FormatFloat(strike, 'f', -1, 64) + side
}
