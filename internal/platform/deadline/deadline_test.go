package deadline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestCallReturnsValue
func TestCallReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), time.Second, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// go test -v --run TestCallAbandonsSlowCollaborator
func TestCallAbandonsSlowCollaborator(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Call(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release // ignores its context entirely
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

// go test -v --run TestCallMapsContextDeadline
func TestCallMapsContextDeadline(t *testing.T) {
	_, err := Call(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

// go test -v --run TestCallParentCancelled
func TestCallParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

// go test -v --run TestCallRecoversPanic
func TestCallRecoversPanic(t *testing.T) {
	_, err := Call(context.Background(), time.Second, func(context.Context) (int, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// go test -v --run TestDoPassesError
func TestDoPassesError(t *testing.T) {
	want := errors.New("pool exhausted")
	err := Do(context.Background(), time.Second, func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}
