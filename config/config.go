package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Session   SessionConfig   `mapstructure:"session"`
	Market    MarketConfig    `mapstructure:"market"`
	Postgres  PostgresPools   `mapstructure:"postgres"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BroadcastConfig controls the periodic snapshot refresh and fan-out.
type BroadcastConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	MetricsTimeout  time.Duration `mapstructure:"metrics_timeout"`
}

// SessionConfig controls a single websocket client session.
type SessionConfig struct {
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	MetricsTimeout time.Duration `mapstructure:"metrics_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// MarketConfig describes how the tracked strike window is derived from spot.
type MarketConfig struct {
	Underlying    string        `mapstructure:"underlying"`
	StrikeStep    float64       `mapstructure:"strike_step"`
	StrikeWindow  int           `mapstructure:"strike_window"`
	FallbackSpot  float64       `mapstructure:"fallback_spot"`
	SpotCacheTTL  time.Duration `mapstructure:"spot_cache_ttl"`
	SpotParameter string        `mapstructure:"spot_parameter"`
	Timezone      string        `mapstructure:"timezone"`
}

// Location resolves the market timezone, falling back to UTC.
func (m MarketConfig) Location() *time.Location {
	if m.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type AWSConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

type AlertsConfig struct {
	Table   string        `mapstructure:"table"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("broadcast.interval", 30*time.Second)
	v.SetDefault("broadcast.snapshot_timeout", 10*time.Second)
	v.SetDefault("broadcast.send_timeout", 5*time.Second)
	v.SetDefault("broadcast.metrics_timeout", 5*time.Second)

	v.SetDefault("session.idle_timeout", 90*time.Second)
	v.SetDefault("session.send_timeout", 5*time.Second)
	v.SetDefault("session.metrics_timeout", 5*time.Second)
	v.SetDefault("session.max_message_size", 4096)

	v.SetDefault("market.underlying", "NIFTY")
	v.SetDefault("market.strike_step", 50)
	v.SetDefault("market.strike_window", 15)
	v.SetDefault("market.fallback_spot", 24000)
	v.SetDefault("market.spot_cache_ttl", 30*time.Second)
	v.SetDefault("market.spot_parameter", "nifty_spot")
	v.SetDefault("market.timezone", "Asia/Kolkata")

	for _, pool := range []string{"call", "put"} {
		for _, key := range []string{"host", "user", "password", "dbname", "timezone", "dsn"} {
			v.SetDefault("postgres."+pool+"."+key, "")
		}
		v.SetDefault("postgres."+pool+".port", 5432)
		v.SetDefault("postgres."+pool+".sslmode", "require")
		v.SetDefault("postgres."+pool+".max_open_conns", 10)
		v.SetDefault("postgres."+pool+".max_idle_conns", 1)
		v.SetDefault("postgres."+pool+".conn_max_lifetime", 30*time.Minute)
	}
	v.SetDefault("postgres.call.parameter", "/neon_connection_string/call")
	v.SetDefault("postgres.put.parameter", "/neon_connection_string/put")
	v.SetDefault("postgres.keepalive_interval", 4*time.Minute)
	v.SetDefault("postgres.query_timeout", 10*time.Second)
	v.SetDefault("postgres.auto_migrate", false)

	v.SetDefault("aws.region", "ap-south-1")
	v.SetDefault("aws.profile", "")
	v.SetDefault("alerts.table", "StockSubscriptions")
	v.SetDefault("alerts.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.output_file", "")
}

// Load loads application configuration using Viper.
// It reads config.yaml (from path when given, otherwise ./config and the
// executable-relative ../config) and overrides with environment variables.
// A missing config file is not an error: defaults and env still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
	}

	// Support environment variables with dot notation (e.g., BROADCAST_INTERVAL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
