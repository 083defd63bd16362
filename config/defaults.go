package config

import "time"

// DefaultConfig returns the configuration new deployments start from,
// adapted from the teacher's per-section defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Budget:    DefaultBudgetConfig(),
		Auth:      AuthConfig{JWTSecret: ""},
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "agentflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultBudgetConfig matches spec §4.3's fallback caps applied when a
// chat frame omits capUSD/dailyCapUSD.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		DefaultCapUSD:      1.00,
		DefaultDailyCapUSD: 20.00,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig ships disabled: OTel export only turns on when an
// operator points it at a collector.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "agentflow",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   0.1,
	}
}
