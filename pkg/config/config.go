// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, RPC, Postgres, Kafka, Redis, Index, Matching, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	RPC      RPCConfig      `yaml:"rpc"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Matching MatchingConfig `yaml:"matching"`
	Locales  LocalesConfig  `yaml:"locales"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// SlowQuery logs the span tree of searches at least this slow. Zero
	// disables it.
	SlowQuery       time.Duration `yaml:"slowQuery"`
	// RateLimit is the number of requests per minute allowed from one
	// client address. Zero disables limiting.
	RateLimit       int           `yaml:"rateLimit"`
}

// RPCConfig holds the JSON-over-TCP endpoint used by remote connectors.
type RPCConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the import ledger.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	UnitImport string `yaml:"unitImport"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig controls where snapshots live and how often they are written.
type IndexConfig struct {
	DataDir       string        `yaml:"dataDir"`
	Persist       bool          `yaml:"persist"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	KeepSnapshots int           `yaml:"keepSnapshots"`
}

// MatchingConfig holds the fuzzy scorer constants and query defaults.
type MatchingConfig struct {
	OrderPenaltyFloor   float64 `yaml:"orderPenaltyFloor"`
	CodeMismatchPenalty float64 `yaml:"codeMismatchPenalty"`
	DefaultThreshold    int     `yaml:"defaultThreshold"`
	MaxHits             int     `yaml:"maxHits"`
}

// LocalesConfig lists the BCP-47 tags accepted by connectors. An empty list
// accepts any well-formed tag.
type LocalesConfig struct {
	Supported []string `yaml:"supported"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot work with.
func (c *Config) Validate() error {
	m := c.Matching
	if m.OrderPenaltyFloor < 0 || m.OrderPenaltyFloor > 1 {
		return fmt.Errorf("matching.orderPenaltyFloor must be within [0,1], got %v", m.OrderPenaltyFloor)
	}
	if m.CodeMismatchPenalty < 0 || m.CodeMismatchPenalty > 100 {
		return fmt.Errorf("matching.codeMismatchPenalty must be within [0,100], got %v", m.CodeMismatchPenalty)
	}
	if m.DefaultThreshold < 0 || m.DefaultThreshold > 100 {
		return fmt.Errorf("matching.defaultThreshold must be within [0,100], got %d", m.DefaultThreshold)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if m.MaxHits < 0 {
		return fmt.Errorf("matching.maxHits must not be negative, got %d", m.MaxHits)
	}
	if c.Index.Persist && c.Index.DataDir == "" {
		return fmt.Errorf("index.dataDir is required when index.persist is set")
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			SlowQuery:       500 * time.Millisecond,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":9091",
			Timeout: 5 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tmengine",
			User:            "tmengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "tmengine-import",
			Topics: KafkaTopics{
				UnitImport: "tm-import",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			DataDir:       "./data/tm",
			Persist:       true,
			FlushInterval: 30 * time.Second,
			KeepSnapshots: 3,
		},
		Matching: MatchingConfig{
			OrderPenaltyFloor:   0.8,
			CodeMismatchPenalty: 0.5,
			DefaultThreshold:    75,
			MaxHits:             25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	envInt("TM_SERVER_PORT", &cfg.Server.Port)
	envInt("TM_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	envString("TM_RPC_ADDR", &cfg.RPC.Addr)
	envBool("TM_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	envString("TM_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("TM_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("TM_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("TM_POSTGRES_USER", &cfg.Postgres.User)
	envString("TM_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("TM_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	envBool("TM_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("TM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	envBool("TM_REDIS_ENABLED", &cfg.Redis.Enabled)
	envString("TM_REDIS_ADDR", &cfg.Redis.Addr)
	envString("TM_REDIS_PASSWORD", &cfg.Redis.Password)
	envString("TM_INDEX_DATA_DIR", &cfg.Index.DataDir)
	envBool("TM_INDEX_PERSIST", &cfg.Index.Persist)
	envFloat("TM_MATCHING_ORDER_PENALTY_FLOOR", &cfg.Matching.OrderPenaltyFloor)
	envFloat("TM_MATCHING_CODE_MISMATCH_PENALTY", &cfg.Matching.CodeMismatchPenalty)
	envInt("TM_MATCHING_DEFAULT_THRESHOLD", &cfg.Matching.DefaultThreshold)
	envInt("TM_MATCHING_MAX_HITS", &cfg.Matching.MaxHits)
	if v := os.Getenv("TM_LOCALES"); v != "" {
		cfg.Locales.Supported = strings.Split(v, ",")
	}
	envString("TM_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("TM_LOGGING_FORMAT", &cfg.Logging.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
