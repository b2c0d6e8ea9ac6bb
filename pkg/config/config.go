// Package config loads and validates the relay configuration from a YAML file
// with environment-variable overrides. Credentials may be supplied inline, via
// environment, or through files (mounted secrets) that are read once at load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Source drivers.
const (
	SourceKafka     = "kafka"
	SourceJetStream = "jetstream"
)

// Store drivers.
const (
	StorePostgres   = "postgres"
	StoreOpenSearch = "opensearch"
	StoreRedis      = "redis"
	StoreMemory     = "memory"
)

// Document key policies.
const (
	KeyPolicyNone     = "none"
	KeyPolicyPosition = "position"
)

// Config is the top-level relay configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	NATS    NATSConfig    `yaml:"nats"`
	Store   StoreConfig   `yaml:"store"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SourceConfig selects the event transport and controls batch assembly and
// the behaviour after a failed batch.
type SourceConfig struct {
	Driver            string        `yaml:"driver"`
	MaxBatchSize      int           `yaml:"maxBatchSize"`
	MaxWait           time.Duration `yaml:"maxWait"`
	MaxRedeliveries   int           `yaml:"maxRedeliveries"`
	RedeliveryBackoff time.Duration `yaml:"redeliveryBackoff"`
	CommitOnFailure   bool          `yaml:"commitOnFailure"`
}

// KafkaConfig holds broker, topic and credential settings. Azure Event Hubs
// is reached through its Kafka endpoint with SASL PLAIN, username
// "$ConnectionString" and the namespace connection string as password.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topic         string        `yaml:"topic"`
	TLS           bool          `yaml:"tls"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	SASL          SASLConfig    `yaml:"sasl"`
}

// SASLConfig selects a SASL mechanism: "", "plain", "scram-sha-256" or
// "scram-sha-512".
type SASLConfig struct {
	Mechanism    string `yaml:"mechanism"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"passwordFile"`
}

// NATSConfig holds JetStream connection and durable consumer settings.
type NATSConfig struct {
	URL        string        `yaml:"url"`
	Name       string        `yaml:"name"`
	Stream     string        `yaml:"stream"`
	Subject    string        `yaml:"subject"`
	Consumer   string        `yaml:"consumer"`
	AckWait    time.Duration `yaml:"ackWait"`
	MaxDeliver int           `yaml:"maxDeliver"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Token      string        `yaml:"token"`
}

// StoreConfig selects the destination document store and the decorators
// applied around its write operation.
type StoreConfig struct {
	Driver       string           `yaml:"driver"`
	Collection   string           `yaml:"collection"`
	Lazy         bool             `yaml:"lazy"`
	EnsureSchema bool             `yaml:"ensureSchema"`
	WriteTimeout time.Duration    `yaml:"writeTimeout"`
	Breaker      BreakerConfig    `yaml:"breaker"`
	Postgres     PostgresConfig   `yaml:"postgres"`
	OpenSearch   OpenSearchConfig `yaml:"opensearch"`
	Redis        RedisConfig      `yaml:"redis"`
}

// BreakerConfig controls the circuit breaker around store writes.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	PasswordFile    string        `yaml:"passwordFile"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(p.Host), p.Port, dsnValue(p.User), dsnValue(p.Password), dsnValue(p.Database), dsnValue(p.SSLMode),
	)
}

// dsnValue quotes v when it is empty or contains characters that would end a
// key=value pair.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// OpenSearchConfig holds OpenSearch cluster settings.
type OpenSearchConfig struct {
	Addresses    []string `yaml:"addresses"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	PasswordFile string   `yaml:"passwordFile"`
	Insecure     bool     `yaml:"insecure"`
	Refresh      string   `yaml:"refresh"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"passwordFile"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"poolSize"`
}

// RelayConfig controls per-batch processing.
type RelayConfig struct {
	KeyPolicy      string `yaml:"keyPolicy"`
	Concurrency    int    `yaml:"concurrency"`
	AsyncLogBuffer int    `yaml:"asyncLogBuffer"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the ops server exposing /metrics and health probes.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, resolves credential files and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config suitable for local development. Names match
// the production deployment: hub "ai-usage", database "ai-usage-db",
// collection "ai-usage-container".
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Driver:            SourceKafka,
			MaxBatchSize:      100,
			MaxWait:           time.Second,
			MaxRedeliveries:   3,
			RedeliveryBackoff: 500 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "usage-relay",
			Topic:         "ai-usage",
			DialTimeout:   10 * time.Second,
		},
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			Name:       "usage-relay",
			Stream:     "AI_USAGE",
			Subject:    "ai-usage",
			Consumer:   "usage-relay",
			AckWait:    30 * time.Second,
			MaxDeliver: 5,
		},
		Store: StoreConfig{
			Driver:       StorePostgres,
			Collection:   "ai-usage-container",
			EnsureSchema: true,
			WriteTimeout: 10 * time.Second,
			Breaker: BreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "ai-usage-db",
				User:            "usage",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			OpenSearch: OpenSearchConfig{
				Addresses: []string{"https://localhost:9200"},
				Username:  "admin",
				Password:  "admin",
				Insecure:  true,
				Refresh:   "false",
			},
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Relay: RelayConfig{
			KeyPolicy:      KeyPolicyPosition,
			Concurrency:    1,
			AsyncLogBuffer: 1024,
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

// applyEnvOverrides reads RELAY_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_SOURCE_DRIVER"); v != "" {
		cfg.Source.Driver = v
	}
	if v := os.Getenv("RELAY_SOURCE_MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.MaxBatchSize = n
		}
	}
	if v := os.Getenv("RELAY_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RELAY_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("RELAY_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("RELAY_KAFKA_SASL_MECHANISM"); v != "" {
		cfg.Kafka.SASL.Mechanism = v
	}
	if v := os.Getenv("RELAY_KAFKA_SASL_USERNAME"); v != "" {
		cfg.Kafka.SASL.Username = v
	}
	if v := os.Getenv("RELAY_KAFKA_SASL_PASSWORD"); v != "" {
		cfg.Kafka.SASL.Password = v
	}
	if v := os.Getenv("RELAY_KAFKA_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.TLS = b
		}
	}
	if v := os.Getenv("RELAY_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("RELAY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("RELAY_STORE_COLLECTION"); v != "" {
		cfg.Store.Collection = v
	}
	if v := os.Getenv("RELAY_POSTGRES_HOST"); v != "" {
		cfg.Store.Postgres.Host = v
	}
	if v := os.Getenv("RELAY_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.Port = port
		}
	}
	if v := os.Getenv("RELAY_POSTGRES_DATABASE"); v != "" {
		cfg.Store.Postgres.Database = v
	}
	if v := os.Getenv("RELAY_POSTGRES_USER"); v != "" {
		cfg.Store.Postgres.User = v
	}
	if v := os.Getenv("RELAY_POSTGRES_PASSWORD"); v != "" {
		cfg.Store.Postgres.Password = v
	}
	if v := os.Getenv("RELAY_POSTGRES_SSLMODE"); v != "" {
		cfg.Store.Postgres.SSLMode = v
	}
	if v := os.Getenv("RELAY_OPENSEARCH_ADDRESSES"); v != "" {
		cfg.Store.OpenSearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("RELAY_OPENSEARCH_USERNAME"); v != "" {
		cfg.Store.OpenSearch.Username = v
	}
	if v := os.Getenv("RELAY_OPENSEARCH_PASSWORD"); v != "" {
		cfg.Store.OpenSearch.Password = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("RELAY_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("RELAY_KEY_POLICY"); v != "" {
		cfg.Relay.KeyPolicy = v
	}
	if v := os.Getenv("RELAY_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Relay.Concurrency = n
		}
	}
	if v := os.Getenv("RELAY_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RELAY_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RELAY_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

// resolveSecrets replaces passwords with the contents of their *File
// counterparts when set.
func resolveSecrets(cfg *Config) error {
	secrets := []struct {
		file   string
		target *string
	}{
		{cfg.Kafka.SASL.PasswordFile, &cfg.Kafka.SASL.Password},
		{cfg.Store.Postgres.PasswordFile, &cfg.Store.Postgres.Password},
		{cfg.Store.OpenSearch.PasswordFile, &cfg.Store.OpenSearch.Password},
		{cfg.Store.Redis.PasswordFile, &cfg.Store.Redis.Password},
	}
	for _, s := range secrets {
		if s.file == "" {
			continue
		}
		data, err := os.ReadFile(s.file)
		if err != nil {
			return fmt.Errorf("reading secret file %s: %w", s.file, err)
		}
		*s.target = strings.TrimSpace(string(data))
	}
	return nil
}

// Validate checks driver names and numeric limits.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case SourceKafka:
		if len(c.Kafka.Brokers) == 0 {
			return apperrors.NewConfigError("kafka.brokers", "at least one broker is required")
		}
		if c.Kafka.Topic == "" {
			return apperrors.NewConfigError("kafka.topic", "must not be empty")
		}
		switch c.Kafka.SASL.Mechanism {
		case "", "plain", "scram-sha-256", "scram-sha-512":
		default:
			return apperrors.NewConfigError("kafka.sasl.mechanism", "unsupported mechanism %q", c.Kafka.SASL.Mechanism)
		}
	case SourceJetStream:
		if c.NATS.Stream == "" || c.NATS.Consumer == "" {
			return apperrors.NewConfigError("nats", "stream and consumer are required")
		}
	default:
		return apperrors.NewConfigError("source.driver", "unknown driver %q", c.Source.Driver)
	}
	if c.Source.MaxBatchSize <= 0 {
		return apperrors.NewConfigError("source.maxBatchSize", "must be positive, got %d", c.Source.MaxBatchSize)
	}
	if c.Source.MaxRedeliveries < 0 {
		return apperrors.NewConfigError("source.maxRedeliveries", "must not be negative")
	}

	switch c.Store.Driver {
	case StorePostgres, StoreOpenSearch, StoreRedis, StoreMemory:
	default:
		return apperrors.NewConfigError("store.driver", "unknown driver %q", c.Store.Driver)
	}
	if c.Store.Collection == "" {
		return apperrors.NewConfigError("store.collection", "must not be empty")
	}

	switch c.Relay.KeyPolicy {
	case KeyPolicyNone, KeyPolicyPosition:
	default:
		return apperrors.NewConfigError("relay.keyPolicy", "unknown policy %q", c.Relay.KeyPolicy)
	}
	if c.Relay.Concurrency <= 0 {
		return apperrors.NewConfigError("relay.concurrency", "must be positive, got %d", c.Relay.Concurrency)
	}
	return nil
}
