package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Topic != "ai-usage" {
		t.Errorf("expected topic ai-usage, got %q", cfg.Kafka.Topic)
	}
	if cfg.Store.Collection != "ai-usage-container" {
		t.Errorf("expected collection ai-usage-container, got %q", cfg.Store.Collection)
	}
	if cfg.Relay.Concurrency != 1 {
		t.Errorf("expected sequential processing by default, got concurrency %d", cfg.Relay.Concurrency)
	}
	if cfg.Relay.KeyPolicy != KeyPolicyPosition {
		t.Errorf("expected key policy %q, got %q", KeyPolicyPosition, cfg.Relay.KeyPolicy)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
source:
  driver: jetstream
  maxBatchSize: 25
  maxWait: 250ms
store:
  driver: redis
  collection: usage
  redis:
    addr: redis:6379
relay:
  keyPolicy: none
  concurrency: 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Driver != SourceJetStream || cfg.Source.MaxBatchSize != 25 {
		t.Errorf("unexpected source config: %+v", cfg.Source)
	}
	if cfg.Source.MaxWait != 250*time.Millisecond {
		t.Errorf("expected maxWait 250ms, got %v", cfg.Source.MaxWait)
	}
	if cfg.Store.Driver != StoreRedis || cfg.Store.Redis.Addr != "redis:6379" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Relay.KeyPolicy != KeyPolicyNone || cfg.Relay.Concurrency != 4 {
		t.Errorf("unexpected relay config: %+v", cfg.Relay)
	}
	// Untouched sections keep their defaults.
	if cfg.Store.Postgres.Port != 5432 {
		t.Errorf("expected default postgres port, got %d", cfg.Store.Postgres.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_KAFKA_BROKERS", "a:9093,b:9093")
	t.Setenv("RELAY_KAFKA_SASL_MECHANISM", "plain")
	t.Setenv("RELAY_STORE_DRIVER", "memory")
	t.Setenv("RELAY_CONCURRENCY", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9093" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.SASL.Mechanism != "plain" {
		t.Errorf("expected plain mechanism, got %q", cfg.Kafka.SASL.Mechanism)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("expected memory store, got %q", cfg.Store.Driver)
	}
	if cfg.Relay.Concurrency != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Relay.Concurrency)
	}
}

func TestPasswordFile(t *testing.T) {
	secret := writeFile(t, "pg-password", "s3cret\n")
	path := writeFile(t, "relay.yaml", "store:\n  postgres:\n    passwordFile: "+secret+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Postgres.Password != "s3cret" {
		t.Errorf("expected password from file, got %q", cfg.Store.Postgres.Password)
	}
}

func TestPasswordFileMissing(t *testing.T) {
	path := writeFile(t, "relay.yaml", "kafka:\n  sasl:\n    passwordFile: /nonexistent/secret\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing secret file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown source", func(c *Config) { c.Source.Driver = "kinesis" }, "source.driver"},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"bad sasl", func(c *Config) { c.Kafka.SASL.Mechanism = "gssapi" }, "kafka.sasl.mechanism"},
		{"zero batch", func(c *Config) { c.Source.MaxBatchSize = 0 }, "source.maxBatchSize"},
		{"unknown store", func(c *Config) { c.Store.Driver = "cosmos" }, "store.driver"},
		{"empty collection", func(c *Config) { c.Store.Collection = "" }, "store.collection"},
		{"unknown key policy", func(c *Config) { c.Relay.KeyPolicy = "random" }, "relay.keyPolicy"},
		{"zero concurrency", func(c *Config) { c.Relay.Concurrency = 0 }, "relay.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var cfgErr *apperrors.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestDSNQuotesSpecialValues(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "a b'c", Database: "ai-usage-db", SSLMode: "disable"}
	want := `host=db port=5432 user=u password='a b\'c' dbname=ai-usage-db sslmode=disable`
	if got := p.DSN(); got != want {
		t.Errorf("DSN()\n got: %s\nwant: %s", got, want)
	}
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load("../../configs/development.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Topic != "ai-usage" || cfg.Store.Collection != "ai-usage-container" {
		t.Errorf("unexpected names: topic=%s collection=%s", cfg.Kafka.Topic, cfg.Store.Collection)
	}
	if !cfg.Store.Breaker.Enabled || cfg.Store.WriteTimeout != 10*time.Second {
		t.Errorf("unexpected store decorators: %+v", cfg.Store)
	}
}
