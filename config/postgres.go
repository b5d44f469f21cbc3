package config

import (
	"context"
	"fmt"
	"time"
)

// PostgresPools holds one pool configuration per logical dataset: calls (CE)
// and puts (PE) live in separate databases.
type PostgresPools struct {
	Call PostgresConfig `mapstructure:"call"`
	Put  PostgresConfig `mapstructure:"put"`

	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`

	// AutoMigrate creates the option tables at startup. Local databases only.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// DSN, when set, is used verbatim in every environment.
	DSN string `mapstructure:"dsn"`
	// Parameter is the Parameter Store name holding the full connection
	// string in prod.
	Parameter string `mapstructure:"parameter"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ParameterGetter reads a single value from a parameter/secret store.
type ParameterGetter interface {
	Get(ctx context.Context, name string, decrypt bool) (string, error)
}

// ResolveDSN returns the connection string for this pool. In prod the whole
// string comes from Parameter Store; elsewhere it is assembled from fields.
func (cfg *PostgresConfig) ResolveDSN(ctx context.Context, env string, params ParameterGetter) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	if env == "prod" {
		if params == nil || cfg.Parameter == "" {
			return "", fmt.Errorf("no parameter configured for prod dsn")
		}
		dsn, err := params.Get(ctx, cfg.Parameter, true)
		if err != nil {
			return "", fmt.Errorf("read dsn parameter %s: %w", cfg.Parameter, err)
		}
		return dsn, nil
	}

	return cfg.localDSN(), nil
}

func (cfg *PostgresConfig) localDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}
