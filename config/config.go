// Package config loads process-wide configuration for the collaboration
// gateway: server/listener settings, the database and Redis connections
// backing the context store and daily cost aggregate, default budget caps,
// and provider API keys, grounded on the teacher's config/loader.go
// Config struct narrowed to this module's components.
package config

import (
	"fmt"
	"time"
)

// Config is the full process configuration (spec §4.10's gateway startup,
// plus every component that needs a connection string or a default).
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Budget    BudgetConfig    `yaml:"budget" env:"BUDGET"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig controls the HTTP/WebSocket listener (internal/server.Manager).
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig is the context store's backing database (spec §4.8).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"` // postgres or sqlite
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN renders a connection string in the form the matching gorm driver
// expects.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// MigrateURL renders the golang-migrate connection URL for this driver
// (ctxstore.NewMigrator's production schema path).
func (d DatabaseConfig) MigrateURL() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
	case "sqlite":
		return "sqlite3://" + d.Name
	default:
		return ""
	}
}

// RedisConfig backs the daily cost aggregate (spec §4.3).
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// BudgetConfig seeds the default session/daily caps new sessions get when
// the client doesn't set one explicitly (spec §4.3).
type BudgetConfig struct {
	DefaultCapUSD      float64 `yaml:"default_cap_usd" env:"DEFAULT_CAP_USD"`
	DefaultDailyCapUSD float64 `yaml:"default_daily_cap_usd" env:"DEFAULT_DAILY_CAP_USD"`
}

// AuthConfig carries the HS256 secret the gateway verifies authenticate
// frames against (spec §4.10).
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// LogConfig controls the zap logger every component is handed.
type LogConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`
	Format       string `yaml:"format" env:"FORMAT"` // json or console
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig controls the OTel SDK (internal/telemetry), off by
// default so `agentflow serve` with no collector running doesn't block
// on an unreachable OTLP endpoint.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
