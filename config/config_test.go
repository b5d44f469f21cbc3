package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestLoadDefaults
func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Broadcast.Interval)
	assert.Equal(t, 10*time.Second, cfg.Broadcast.SnapshotTimeout)
	assert.Equal(t, 5*time.Second, cfg.Broadcast.SendTimeout)
	assert.Equal(t, 90*time.Second, cfg.Session.IdleTimeout)
	assert.Equal(t, "NIFTY", cfg.Market.Underlying)
	assert.Equal(t, 15, cfg.Market.StrikeWindow)
	assert.Equal(t, 4*time.Minute, cfg.Postgres.KeepAliveInterval)
	assert.Equal(t, 10, cfg.Postgres.Call.MaxOpenConns)
	assert.Equal(t, "/neon_connection_string/put", cfg.Postgres.Put.Parameter)
}

// go test -v --run TestLoadEnvOverride
func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broadcast:\n  interval: 30s\n"), 0o644))

	t.Setenv("BROADCAST_INTERVAL", "5s")
	t.Setenv("POSTGRES_CALL_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Broadcast.Interval)
	assert.Equal(t, "db.internal", cfg.Postgres.Call.Host)
}

// go test -v --run TestLoadMissingExplicitFile
func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// go test -v --run TestMarketLocation
func TestMarketLocation(t *testing.T) {
	assert.Equal(t, time.UTC, MarketConfig{}.Location())
	assert.Equal(t, time.UTC, MarketConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "Asia/Kolkata", MarketConfig{Timezone: "Asia/Kolkata"}.Location().String())
}

type fakeSSM struct {
	values map[string]string
	err    error
	calls  []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, aws.ToString(in.Name))
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.Name)]
	if !ok {
		return &ssm.GetParameterOutput{}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

// go test -v --run TestParameterStoreGet
func TestParameterStoreGet(t *testing.T) {
	client := &fakeSSM{values: map[string]string{"nifty_spot": "24012.5"}}
	store := NewParameterStore(client)

	v, err := store.Get(context.Background(), "nifty_spot", true)
	require.NoError(t, err)
	assert.Equal(t, "24012.5", v)

	_, err = store.Get(context.Background(), "missing", true)
	assert.ErrorIs(t, err, ErrParameterNotFound)

	client.err = errors.New("throttled")
	_, err = store.Get(context.Background(), "nifty_spot", true)
	assert.ErrorContains(t, err, "throttled")
}

// go test -v --run TestResolveDSN
func TestResolveDSN(t *testing.T) {
	params := NewParameterStore(&fakeSSM{values: map[string]string{
		"/neon_connection_string/call": "postgres://neon/call",
	}})

	cfg := PostgresConfig{
		Host:      "localhost",
		Port:      5432,
		User:      "postgres",
		Password:  "pw",
		DBName:    "greeks",
		SSLMode:   "disable",
		TimeZone:  "UTC",
		Parameter: "/neon_connection_string/call",
	}

	dsn, err := cfg.ResolveDSN(context.Background(), "dev", params)
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=pw dbname=greeks sslmode=disable TimeZone=UTC", dsn)

	dsn, err = cfg.ResolveDSN(context.Background(), "prod", params)
	require.NoError(t, err)
	assert.Equal(t, "postgres://neon/call", dsn)

	cfg.Parameter = "/neon_connection_string/put"
	_, err = cfg.ResolveDSN(context.Background(), "prod", params)
	assert.ErrorIs(t, err, ErrParameterNotFound)

	cfg.DSN = "postgres://explicit"
	dsn, err = cfg.ResolveDSN(context.Background(), "prod", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://explicit", dsn)
}
