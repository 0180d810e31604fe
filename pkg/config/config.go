package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. MEETRELAY_SERVER_ADDRESS.
const EnvPrefix = "MEETRELAY_"

type Config struct {
	Server struct {
		Address         string        `yaml:"address" env:"ADDRESS"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`

	// Signal configures the websocket subscription gateway.
	Signal struct {
		Path           string        `yaml:"path" env:"PATH"`
		PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
		PongTimeout    time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
		WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		SendBuffer     int           `yaml:"send_buffer" env:"SEND_BUFFER"`
		AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	} `yaml:"signal" envPrefix:"SIGNAL_"`

	Logging struct {
		Level      string `yaml:"level" env:"LEVEL"`
		Format     string `yaml:"format" env:"FORMAT"`
		File       string `yaml:"file" env:"FILE"`
		MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
		MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
		MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	} `yaml:"logging" envPrefix:"LOG_"`

	Database struct {
		// Driver is "sqlite" or "memory".
		Driver string `yaml:"driver" env:"DRIVER"`
		DSN    string `yaml:"dsn" env:"DSN"`
		Debug  bool   `yaml:"debug" env:"DEBUG"`

		// UserCacheTTL caches profile lookups; 0 disables the cache.
		UserCacheTTL time.Duration `yaml:"user_cache_ttl" env:"USER_CACHE_TTL"`
	} `yaml:"database" envPrefix:"DATABASE_"`

	Redis struct {
		Enabled  bool   `yaml:"enabled" env:"ENABLED"`
		Address  string `yaml:"address" env:"ADDRESS"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
	} `yaml:"redis" envPrefix:"REDIS_"`

	Broadcast struct {
		// Driver is "local" or "redis".
		Driver          string        `yaml:"driver" env:"DRIVER"`
		ChannelPrefix   string        `yaml:"channel_prefix" env:"CHANNEL_PREFIX"`
		PublishTimeout  time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
		PublishRetries  int           `yaml:"publish_retries" env:"PUBLISH_RETRIES"`
		BreakerFailures int           `yaml:"breaker_failures" env:"BREAKER_FAILURES"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN"`
	} `yaml:"broadcast" envPrefix:"BROADCAST_"`

	Relay struct {
		AllowMultipleSessions bool `yaml:"allow_multiple_sessions" env:"ALLOW_MULTIPLE_SESSIONS"`
		MaxMessageLength      int  `yaml:"max_message_length" env:"MAX_MESSAGE_LENGTH"`
		MaxSignalBytes        int  `yaml:"max_signal_bytes" env:"MAX_SIGNAL_BYTES"`
		StrictSignals         bool `yaml:"strict_signals" env:"STRICT_SIGNALS"`
		MessageHistoryLimit   int  `yaml:"message_history_limit" env:"MESSAGE_HISTORY_LIMIT"`
	} `yaml:"relay" envPrefix:"RELAY_"`

	Sessions struct {
		IdleTimeout   time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
		SweepSchedule string        `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	} `yaml:"sessions" envPrefix:"SESSIONS_"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET"`
		Issuer          string        `yaml:"issuer" env:"ISSUER"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL"`
		AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	} `yaml:"auth" envPrefix:"AUTH_"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled" env:"ENABLED"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
			Burst             int     `yaml:"burst" env:"BURST"`
			MaxConcurrent     int     `yaml:"max_concurrent" env:"MAX_CONCURRENT"` // global concurrent HTTP requests
		} `yaml:"http" envPrefix:"HTTP_"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second" env:"MESSAGES_PER_SECOND"`
			Burst               int     `yaml:"burst" env:"BURST"`
			MaxConcurrent       int     `yaml:"max_concurrent_connections" env:"MAX_CONCURRENT_CONNECTIONS"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes" env:"MAX_MESSAGE_SIZE_BYTES"`
		} `yaml:"websocket" envPrefix:"WS_"`
	} `yaml:"rate_limiting" envPrefix:"RATE_LIMITING_"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED"`
		MetricsPath       string `yaml:"metrics_path" env:"METRICS_PATH"`
	} `yaml:"monitoring" envPrefix:"MONITORING_"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled" env:"ENABLED"`
		ServiceName    string  `yaml:"service_name" env:"SERVICE_NAME"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
		SampleRate     float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	} `yaml:"tracing" envPrefix:"TRACING_"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Path == "" {
		return fmt.Errorf("signal.path must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("signal.send_buffer must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Database
	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must not be empty when database.driver=sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be one of memory, sqlite (got %q)", c.Database.Driver)
	}
	if c.Database.UserCacheTTL < 0 {
		return fmt.Errorf("database.user_cache_ttl must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Broadcast
	switch c.Broadcast.Driver {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("broadcast.driver=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("broadcast.driver must be one of local, redis (got %q)", c.Broadcast.Driver)
	}
	if c.Broadcast.PublishTimeout <= 0 {
		return fmt.Errorf("broadcast.publish_timeout must be > 0")
	}
	if c.Broadcast.PublishRetries < 0 {
		return fmt.Errorf("broadcast.publish_retries must be >= 0")
	}
	if c.Broadcast.BreakerFailures <= 0 {
		return fmt.Errorf("broadcast.breaker_failures must be > 0")
	}
	if c.Broadcast.BreakerCooldown <= 0 {
		return fmt.Errorf("broadcast.breaker_cooldown must be > 0")
	}

	// Relay
	if c.Relay.MaxMessageLength <= 0 {
		return fmt.Errorf("relay.max_message_length must be > 0")
	}
	if c.Relay.MaxSignalBytes <= 0 {
		return fmt.Errorf("relay.max_signal_bytes must be > 0")
	}
	if c.Relay.MessageHistoryLimit <= 0 {
		return fmt.Errorf("relay.message_history_limit must be > 0")
	}

	// Sessions
	if c.Sessions.IdleTimeout < 0 {
		return fmt.Errorf("sessions.idle_timeout must be >= 0")
	}
	if c.Sessions.IdleTimeout > 0 && c.Sessions.SweepSchedule == "" {
		return fmt.Errorf("sessions.sweep_schedule must not be empty when sessions.idle_timeout > 0")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A missing file is not an error: defaults plus environment are used.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBuffer = 256
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "meetrelay.db"
	cfg.Database.UserCacheTTL = time.Minute

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Broadcast.Driver = "local"
	cfg.Broadcast.ChannelPrefix = "meetrelay:"
	cfg.Broadcast.PublishTimeout = 5 * time.Second
	cfg.Broadcast.PublishRetries = 2
	cfg.Broadcast.BreakerFailures = 5
	cfg.Broadcast.BreakerCooldown = 30 * time.Second

	cfg.Relay.AllowMultipleSessions = true
	cfg.Relay.MaxMessageLength = 5000
	cfg.Relay.MaxSignalBytes = 64 * 1024
	cfg.Relay.StrictSignals = false
	cfg.Relay.MessageHistoryLimit = 50

	cfg.Sessions.IdleTimeout = 2 * time.Minute
	cfg.Sessions.SweepSchedule = "@every 1m"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.Issuer = "meetrelay"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour // 7 days
	cfg.Auth.AllowedOrigins = []string{"*"}

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "meetrelay"
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}
