package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dispatcher DispatcherConfig
	Collector  CollectorConfig
	Fusion     FusionConfig
	Delivery   DeliveryConfig
	Secrets    SecretsConfig
	Classifier ClassifierConfig
	Replay     ReplayConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Admin      AdminConfig
	SeedFile   string
}

type ServerConfig struct {
	Host                    string
	Port                    int
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IdleTimeout             time.Duration
	GracefulShutdownTimeout time.Duration
	RateLimitPerMinute      int
	CORSAllowedOrigins      []string
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type DispatcherConfig struct {
	Interval     time.Duration
	TaskQueue    string
	CycleTimeout time.Duration
}

type CollectorConfig struct {
	WorkerCount  int
	RateLimit    float64
	FetchTimeout time.Duration
	PollInterval time.Duration
}

type FusionConfig struct {
	Window            time.Duration
	RawAlertThreshold int
}

type DeliveryConfig struct {
	Topic          string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SendTimeout    time.Duration
}

type SecretsConfig struct {
	CacheTTL time.Duration
}

type ClassifierConfig struct {
	Endpoint string
	APIKey   string
}

type ReplayConfig struct {
	MaxRetries int
	Budget     time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

type AdminConfig struct {
	// TokenHash is the bcrypt hash of the admin token, not the token itself
	TokenHash string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:                    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                    getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:             getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:            getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:             getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			GracefulShutdownTimeout: getEnvDuration("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimitPerMinute:      getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			CORSAllowedOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 1*time.Hour),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Dispatcher: DispatcherConfig{
			Interval:     getEnvDuration("DISPATCHER_INTERVAL", 1*time.Minute),
			TaskQueue:    getEnv("DISPATCHER_TASK_QUEUE", "source-fetch"),
			CycleTimeout: getEnvDuration("DISPATCHER_CYCLE_TIMEOUT", 50*time.Second),
		},
		Collector: CollectorConfig{
			WorkerCount:  getEnvInt("COLLECTOR_WORKER_COUNT", 4),
			RateLimit:    getEnvFloat("COLLECTOR_RATE_LIMIT", 5.0),
			FetchTimeout: getEnvDuration("COLLECTOR_FETCH_TIMEOUT", 10*time.Second),
			PollInterval: getEnvDuration("COLLECTOR_POLL_INTERVAL", 500*time.Millisecond),
		},
		Fusion: FusionConfig{
			Window:            getEnvDuration("FUSION_WINDOW", 5*time.Minute),
			RawAlertThreshold: getEnvInt("FUSION_RAW_ALERT_THRESHOLD", 80),
		},
		Delivery: DeliveryConfig{
			Topic:          getEnv("DELIVERY_TOPIC", "notifications"),
			MaxRetries:     getEnvInt("DELIVERY_MAX_RETRIES", 3),
			InitialBackoff: getEnvDuration("DELIVERY_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getEnvDuration("DELIVERY_MAX_BACKOFF", 10*time.Second),
			SendTimeout:    getEnvDuration("DELIVERY_SEND_TIMEOUT", 10*time.Second),
		},
		Secrets: SecretsConfig{
			CacheTTL: getEnvDuration("SECRETS_CACHE_TTL", 5*time.Minute),
		},
		Classifier: ClassifierConfig{
			Endpoint: getEnv("CLASSIFIER_ENDPOINT", ""),
			APIKey:   getEnv("CLASSIFIER_API_KEY", ""),
		},
		Replay: ReplayConfig{
			MaxRetries: getEnvInt("REPLAY_MAX_RETRIES", 5),
			Budget:     getEnvDuration("REPLAY_BUDGET", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Admin: AdminConfig{
			TokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		},
		SeedFile: getEnv("SOURCES_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}
	if c.Collector.WorkerCount < 1 {
		return fmt.Errorf("collector worker count must be at least 1")
	}
	if c.Fusion.Window < 5*time.Minute || c.Fusion.Window > 10*time.Minute {
		return fmt.Errorf("fusion window must be between 5m and 10m, got %s", c.Fusion.Window)
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery max retries must not be negative")
	}
	if c.Server.RateLimitPerMinute < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per minute")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
