package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ReviewLens server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Bus      BusConfig
	Cache    CacheConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// EngineConfig configures the outbound client for the external analysis
// engine, including its retry and circuit-breaker policy.
type EngineConfig struct {
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration

	MaxRetries int
	RetryBase  time.Duration

	BreakerErrorThreshold float64
	BreakerMinRequests    int
	BreakerWindow         time.Duration
	BreakerResetTimeout   time.Duration
	BreakerHalfOpenProbes int
}

// BusConfig configures the inbound AMQP consumer for engine status events.
// An empty URL disables the consumer; the callback endpoint still works.
type BusConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

// CacheConfig holds the TTLs for the three cache entry families and the
// retention window for hit/miss counters.
type CacheConfig struct {
	ResultTTL        time.Duration
	StatusTTL        time.Duration
	TaskTTL          time.Duration
	CounterRetention time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("REVIEWLENS_PORT", 8080),
			Env:  envString("REVIEWLENS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Engine: EngineConfig{
			BaseURL:     os.Getenv("ENGINE_BASE_URL"),
			CallbackURL: os.Getenv("ENGINE_CALLBACK_URL"),
			Timeout:     envDuration("ENGINE_TIMEOUT", 30*time.Second),

			MaxRetries: envInt("ENGINE_MAX_RETRIES", 3),
			RetryBase:  envDuration("ENGINE_RETRY_BASE", 1*time.Second),

			BreakerErrorThreshold: envFloat("ENGINE_BREAKER_ERROR_THRESHOLD", 50.0),
			BreakerMinRequests:    envInt("ENGINE_BREAKER_MIN_REQUESTS", 5),
			BreakerWindow:         envDuration("ENGINE_BREAKER_WINDOW", 30*time.Second),
			BreakerResetTimeout:   envDuration("ENGINE_BREAKER_RESET_TIMEOUT", 60*time.Second),
			BreakerHalfOpenProbes: envInt("ENGINE_BREAKER_HALF_OPEN_PROBES", 1),
		},
		Bus: BusConfig{
			URL:        os.Getenv("AMQP_URL"),
			Exchange:   envString("AMQP_EXCHANGE", "analysis"),
			Queue:      envString("AMQP_QUEUE", "analysis.events"),
			RoutingKey: envString("AMQP_ROUTING_KEY", "analysis.status"),
		},
		Cache: CacheConfig{
			ResultTTL:        envDuration("CACHE_RESULT_TTL", 1*time.Hour),
			StatusTTL:        envDuration("CACHE_STATUS_TTL", 5*time.Minute),
			TaskTTL:          envDuration("CACHE_TASK_TTL", 30*time.Minute),
			CounterRetention: envDuration("CACHE_COUNTER_RETENTION", 7*24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return fmt.Errorf("ENGINE_BASE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}

	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must be at least 1, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.BreakerErrorThreshold <= 0 || c.Engine.BreakerErrorThreshold > 100 {
		return fmt.Errorf("ENGINE_BREAKER_ERROR_THRESHOLD must be in (0, 100], got %v", c.Engine.BreakerErrorThreshold)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
