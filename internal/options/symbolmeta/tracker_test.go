package symbolmeta

import (
	"context"
	"errors"
	"testing"
	"time"

	"riskfeed/config"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSpot struct {
	values []float64
	errs   []error
	calls  int
}

func (s *stubSpot) Spot(context.Context) (float64, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	if i < len(s.values) {
		return s.values[i], nil
	}
	return s.values[len(s.values)-1], nil
}

type stubParams map[string]string

func (p stubParams) Get(_ context.Context, name string, _ bool) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", config.ErrParameterNotFound
	}
	return v, nil
}

func testMarket() config.MarketConfig {
	return config.MarketConfig{
		Underlying:   "NIFTY",
		StrikeStep:   50,
		StrikeWindow: 15,
		FallbackSpot: 24000,
		SpotCacheTTL: 30 * time.Second,
	}
}

// go test -v --run TestStrikes
func TestStrikes(t *testing.T) {
	tests := []struct {
		spot     float64
		wantATM  float64
		wantLow  float64
		wantHigh float64
	}{
		{24012.4, 24000, 23250, 24750},
		{24030, 24050, 23300, 24800},
		{24025, 24000, 23250, 24750}, // halfway rounds to even multiple
		{24075, 24100, 23350, 24850},
	}

	for _, tt := range tests {
		strikes := Strikes(tt.spot, 50, 15)
		require.Len(t, strikes, 31)
		assert.Equal(t, tt.wantLow, strikes[0], "spot %v", tt.spot)
		assert.Equal(t, tt.wantATM, strikes[15], "spot %v", tt.spot)
		assert.Equal(t, tt.wantHigh, strikes[30], "spot %v", tt.spot)
	}

	assert.Nil(t, Strikes(24000, 0, 15))
}

// go test -v --run TestSymbol
func TestSymbol(t *testing.T) {
	assert.Equal(t, "NIFTY24000CE", Symbol("NIFTY", 24000, "CE"))
	assert.Equal(t, "NIFTY23950PE", Symbol("NIFTY", 23950, "PE"))
	assert.Equal(t, "BANKNIFTY51250.5CE", Symbol("BANKNIFTY", 51250.5, "CE"))
}

// go test -v --run TestTrackedSymbolsOrder
func TestTrackedSymbolsOrder(t *testing.T) {
	tr := NewTracker(&stubSpot{values: []float64{24010}}, testMarket(), clockwork.NewFakeClock(), zap.NewNop())

	symbols := tr.TrackedSymbols(context.Background())
	require.Len(t, symbols, 62)
	assert.Equal(t, "NIFTY23250CE", symbols[0])
	assert.Equal(t, "NIFTY24000CE", symbols[15])
	assert.Equal(t, "NIFTY24750CE", symbols[30])
	assert.Equal(t, "NIFTY23250PE", symbols[31])
	assert.Equal(t, "NIFTY24750PE", symbols[61])
}

// go test -v --run TestSpotCachedForTTL
func TestSpotCachedForTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &stubSpot{values: []float64{24010, 24400}}
	tr := NewTracker(src, testMarket(), clock, zap.NewNop())

	assert.Equal(t, 24010.0, tr.Spot(context.Background()))
	clock.Advance(29 * time.Second)
	assert.Equal(t, 24010.0, tr.Spot(context.Background()))
	assert.Equal(t, 1, src.calls)

	clock.Advance(time.Second)
	assert.Equal(t, 24400.0, tr.Spot(context.Background()))
	assert.Equal(t, 2, src.calls)
}

// go test -v --run TestSpotFallback
func TestSpotFallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &stubSpot{values: []float64{0, 0, 24400}, errs: []error{errors.New("throttled")}}
	tr := NewTracker(src, testMarket(), clock, zap.NewNop())

	assert.Equal(t, 24000.0, tr.Spot(context.Background()))
	// fallback is cached too
	assert.Equal(t, 24000.0, tr.Spot(context.Background()))
	assert.Equal(t, 1, src.calls)

	clock.Advance(30 * time.Second)
	assert.Equal(t, 24000.0, tr.Spot(context.Background()), "non-positive spot falls back")

	clock.Advance(30 * time.Second)
	assert.Equal(t, 24400.0, tr.Spot(context.Background()))
}

// go test -v --run TestParameterSpot
func TestParameterSpot(t *testing.T) {
	params := stubParams{"nifty_spot": " 24123.45 ", "blank": "", "junk": "n/a"}

	v, err := ParameterSpot{Params: params, Name: "nifty_spot"}.Spot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24123.45, v)

	_, err = ParameterSpot{Params: params, Name: "blank"}.Spot(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSpot)

	_, err = ParameterSpot{Params: params, Name: "junk"}.Spot(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSpot)

	_, err = ParameterSpot{Params: params, Name: "missing"}.Spot(context.Background())
	assert.ErrorIs(t, err, config.ErrParameterNotFound)
}
