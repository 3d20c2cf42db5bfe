package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	Worker    WorkerConfig
	Engine    EngineSettings
	Broadcast BroadcastConfig
	Model     ModelConfig
	Refresh   RefreshConfig
	History   HistoryConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Ingest    IngestConfig
	Regions   RegionsConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type GRPCConfig struct {
	Port int
}

type ServerConfig struct {
	Host          string
	Port          int
	RateLimitRPS  int
	AllowedOrigin string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type BroadcastConfig struct {
	Delay              time.Duration
	DedupWindow        time.Duration
	DefaultPopulation  int64
	AllowUnknownRegion bool
}

type ModelConfig struct {
	URL     string
	Timeout time.Duration
}

type RefreshConfig struct {
	Interval time.Duration
}

type HistoryConfig struct {
	Cap int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type IngestConfig struct {
	WeatherURL     string
	WeatherAPIKey  string
	WeatherTimeout time.Duration
	MaxBulkRows    int
}

type RegionsConfig struct {
	File string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "localhost"),
			Port:          getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:  getEnvInt("RATE_LIMIT_RPS", 20),
			AllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		GRPC: GRPCConfig{
			Port: getEnvInt("GRPC_PORT", 50051),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Engine: EngineSettings{
			RiskLow:          getEnvInt("RISK_LOW", 40),
			RiskHigh:         getEnvInt("RISK_HIGH", 70),
			CooldownMinutes:  getEnvInt("ALERT_COOLDOWN_MINUTES", 60),
			CooldownEnforced: getEnvBool("ALERT_COOLDOWN_ENFORCED", false),
			MaxAlertsPerDay:  getEnvInt("MAX_ALERTS_PER_DAY", 0),
			ScoreBanding:     getEnvBool("RISK_SCORE_BANDING", false),
		},
		Broadcast: BroadcastConfig{
			Delay:              getEnvDuration("BROADCAST_DELAY", 2*time.Second),
			DedupWindow:        getEnvDuration("BROADCAST_DEDUP_WINDOW", 0),
			DefaultPopulation:  int64(getEnvInt("DEFAULT_POPULATION", 50000)),
			AllowUnknownRegion: getEnvBool("ALLOW_UNKNOWN_REGION", false),
		},
		Model: ModelConfig{
			URL:     getEnv("MODEL_URL", ""),
			Timeout: getEnvDuration("MODEL_TIMEOUT", 5*time.Second),
		},
		Refresh: RefreshConfig{
			Interval: getEnvDuration("REFRESH_INTERVAL", 30*time.Second),
		},
		History: HistoryConfig{
			Cap: getEnvInt("HISTORY_CAP", 50),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "disaster-broadcasts"),
		},
		Ingest: IngestConfig{
			WeatherURL:     getEnv("WEATHER_API_URL", ""),
			WeatherAPIKey:  getEnv("WEATHER_API_KEY", ""),
			WeatherTimeout: getEnvDuration("WEATHER_TIMEOUT", 10*time.Second),
			MaxBulkRows:    getEnvInt("INGEST_MAX_ROWS", 10000),
		},
		Regions: RegionsConfig{
			File: getEnv("REGIONS_FILE", ""),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/disaster-risk.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.History.Cap < 1 {
		return fmt.Errorf("history cap must be at least 1")
	}
	if c.Broadcast.DefaultPopulation < 1 {
		return fmt.Errorf("default population must be positive")
	}
	if c.Broadcast.Delay < 0 {
		return fmt.Errorf("broadcast delay must not be negative")
	}
	if c.Refresh.Interval < 15*time.Second || c.Refresh.Interval > 5*time.Minute {
		return fmt.Errorf("refresh interval must be between 15s and 5m")
	}
	if c.Ingest.MaxBulkRows < 1 {
		return fmt.Errorf("ingest max rows must be at least 1")
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
